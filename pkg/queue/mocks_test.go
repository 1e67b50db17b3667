package queue

import (
	"context"
	"sync"
	"time"

	"sendqueue/pkg/queue/types"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// fakeClock drives time by hand. Timers fire synchronously on the goroutine
// calling Advance, in firing order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) types.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.stopped = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		f := next.f
		c.mu.Unlock()
		f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// fakeReachability is a scriptable OS reachability source.
type fakeReachability struct {
	mu        sync.Mutex
	state     types.ConnectivityState
	err       error
	listeners map[int]func(types.ConnectivityState)
	nextID    int
}

func newFakeReachability(online bool) *fakeReachability {
	return &fakeReachability{
		state:     types.ConnectivityState{Connected: online},
		listeners: make(map[int]func(types.ConnectivityState)),
	}
}

func (r *fakeReachability) Current(ctx context.Context) (types.ConnectivityState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.err
}

func (r *fakeReachability) Subscribe(listener func(types.ConnectivityState)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = listener
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

func (r *fakeReachability) setState(state types.ConnectivityState) {
	r.mu.Lock()
	r.state = state
	listeners := make([]func(types.ConnectivityState), 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

func (r *fakeReachability) goOnline() {
	r.setState(types.ConnectivityState{Connected: true})
}

func (r *fakeReachability) goOffline() {
	r.setState(types.ConnectivityState{Connected: false})
}

// fakeTransport records every attempt and answers according to sendFunc; a
// nil sendFunc means every attempt succeeds.
type fakeTransport struct {
	mu       sync.Mutex
	clock    *fakeClock
	calls    []transportCall
	sendFunc func(call int, msg *types.QueuedMessage) (string, error)
}

type transportCall struct {
	localID        string
	conversationID string
	attempt        int
	at             time.Time
}

func (t *fakeTransport) Send(ctx context.Context, msg *types.QueuedMessage) (string, error) {
	t.mu.Lock()
	call := len(t.calls)
	rec := transportCall{
		localID:        msg.LocalID,
		conversationID: msg.ConversationID,
		attempt:        msg.AttemptCount + 1,
	}
	if t.clock != nil {
		rec.at = t.clock.Now()
	}
	t.calls = append(t.calls, rec)
	fn := t.sendFunc
	t.mu.Unlock()

	if fn == nil {
		return "remote-" + msg.LocalID, nil
	}
	return fn(call, msg)
}

func (t *fakeTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *fakeTransport) callOrder() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.calls))
	for i, c := range t.calls {
		out[i] = c.localID
	}
	return out
}

func (t *fakeTransport) callTimes() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Time, len(t.calls))
	for i, c := range t.calls {
		out[i] = c.at
	}
	return out
}

// eventRecorder collects delivery events.
type eventRecorder struct {
	mu     sync.Mutex
	events []types.DeliveryEvent
}

func (r *eventRecorder) listener() func(types.DeliveryEvent) {
	return func(ev types.DeliveryEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	}
}

func (r *eventRecorder) all() []types.DeliveryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.DeliveryEvent(nil), r.events...)
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
