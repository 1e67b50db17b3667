package queue

import (
	"context"
	"sync"

	"sendqueue/pkg/queue/types"

	"github.com/sirupsen/logrus"
)

// ConnectivityMonitor normalizes the OS reachability signal into a single
// online/offline boolean and detects edges between the two. Only the
// offline-to-online edge triggers the registered callback; the reverse edge
// is informational, since delivery attempts fail fast while offline.
type ConnectivityMonitor struct {
	mu        sync.Mutex
	source    types.Reachability
	logger    *logrus.Logger
	state     types.ConnectivityState
	listeners map[int]func(types.ConnectivityState)
	nextID    int
	onOnline  func()
	unsub     func()
	closed    bool
}

// NewConnectivityMonitor fetches the current reachability state once, then
// subscribes to change events. A source that cannot report its initial state
// is treated as offline until the first change event says otherwise.
func NewConnectivityMonitor(ctx context.Context, source types.Reachability, logger *logrus.Logger) *ConnectivityMonitor {
	if logger == nil {
		logger = logrus.New()
	}

	m := &ConnectivityMonitor{
		source:    source,
		logger:    logger,
		listeners: make(map[int]func(types.ConnectivityState)),
	}

	state, err := source.Current(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to read initial reachability state, assuming offline")
	} else {
		m.state = state
	}

	m.unsub = source.Subscribe(m.handleChange)

	return m
}

// CurrentState returns the latest normalized connectivity state.
func (m *ConnectivityMonitor) CurrentState() types.ConnectivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOnline reports whether delivery attempts are currently worth making.
func (m *ConnectivityMonitor) IsOnline() bool {
	return m.CurrentState().IsOnline()
}

// Subscribe registers a listener for every normalized state change and
// returns an unsubscribe function.
func (m *ConnectivityMonitor) Subscribe(listener func(types.ConnectivityState)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = listener

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// OnBecameOnline registers the callback invoked on each offline-to-online
// edge. The queue controller uses this to kick a processing pass.
func (m *ConnectivityMonitor) OnBecameOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = fn
}

// Close detaches from the reachability source.
func (m *ConnectivityMonitor) Close() {
	m.mu.Lock()
	unsub := m.unsub
	m.unsub = nil
	m.closed = true
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (m *ConnectivityMonitor) handleChange(next types.ConnectivityState) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	prev := m.state
	m.state = next

	wasOnline := prev.IsOnline()
	isOnline := next.IsOnline()

	listeners := make([]func(types.ConnectivityState), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	onOnline := m.onOnline
	m.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}

	switch {
	case !wasOnline && isOnline:
		m.logger.Info("Connectivity restored")
		if onOnline != nil {
			onOnline()
		}
	case wasOnline && !isOnline:
		m.logger.Info("Connectivity lost, queueing outbound messages")
	}
}
