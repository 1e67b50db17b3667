package queue

import (
	"context"
	"errors"
	"testing"

	"sendqueue/pkg/queue/types"

	"github.com/stretchr/testify/assert"
)

func TestConnectivityMonitor_InitialState(t *testing.T) {
	source := newFakeReachability(true)
	m := NewConnectivityMonitor(context.Background(), source, testLogger())
	defer m.Close()

	assert.True(t, m.IsOnline())
}

func TestConnectivityMonitor_InitialStateErrorAssumesOffline(t *testing.T) {
	source := newFakeReachability(true)
	source.err = errors.New("reachability API unavailable")

	m := NewConnectivityMonitor(context.Background(), source, testLogger())
	defer m.Close()

	assert.False(t, m.IsOnline())
}

func TestConnectivityMonitor_OnlineEdgeFiresCallback(t *testing.T) {
	source := newFakeReachability(false)
	m := NewConnectivityMonitor(context.Background(), source, testLogger())
	defer m.Close()

	fired := 0
	m.OnBecameOnline(func() { fired++ })

	source.goOnline()
	assert.Equal(t, 1, fired)

	// Repeated online signals without an offline edge in between are not a
	// new transition.
	source.goOnline()
	assert.Equal(t, 1, fired)

	source.goOffline()
	assert.Equal(t, 1, fired)

	source.goOnline()
	assert.Equal(t, 2, fired)
}

func TestConnectivityMonitor_OfflineEdgeIsInformational(t *testing.T) {
	source := newFakeReachability(true)
	m := NewConnectivityMonitor(context.Background(), source, testLogger())
	defer m.Close()

	fired := 0
	m.OnBecameOnline(func() { fired++ })

	source.goOffline()
	assert.Equal(t, 0, fired)
	assert.False(t, m.IsOnline())
}

func TestConnectivityMonitor_ReachableFlagGatesOnline(t *testing.T) {
	source := newFakeReachability(false)
	m := NewConnectivityMonitor(context.Background(), source, testLogger())
	defer m.Close()

	fired := 0
	m.OnBecameOnline(func() { fired++ })

	// Connected but internet explicitly unreachable is still offline.
	unreachable := false
	source.setState(types.ConnectivityState{Connected: true, InternetReachable: &unreachable})
	assert.Equal(t, 0, fired)
	assert.False(t, m.IsOnline())

	reachable := true
	source.setState(types.ConnectivityState{Connected: true, InternetReachable: &reachable})
	assert.Equal(t, 1, fired)
	assert.True(t, m.IsOnline())
}

func TestConnectivityMonitor_SubscribeAndUnsubscribe(t *testing.T) {
	source := newFakeReachability(false)
	m := NewConnectivityMonitor(context.Background(), source, testLogger())
	defer m.Close()

	var seen []types.ConnectivityState
	unsubscribe := m.Subscribe(func(s types.ConnectivityState) {
		seen = append(seen, s)
	})

	source.goOnline()
	source.goOffline()
	assert.Len(t, seen, 2)

	unsubscribe()
	source.goOnline()
	assert.Len(t, seen, 2)
}

func TestConnectivityMonitor_CloseDetaches(t *testing.T) {
	source := newFakeReachability(false)
	m := NewConnectivityMonitor(context.Background(), source, testLogger())

	fired := 0
	m.OnBecameOnline(func() { fired++ })

	m.Close()
	source.goOnline()
	assert.Equal(t, 0, fired)
}
