package queue

import (
	"sort"
	"sync"
	"time"

	"sendqueue/internal/retry"
	"sendqueue/pkg/queue/types"

	"github.com/sirupsen/logrus"
)

// RetryScheduler decides which queued items are eligible for an attempt now,
// and owns the single wake timer armed for the next item that is not.
type RetryScheduler struct {
	mu     sync.Mutex
	policy *retry.Policy
	clock  types.Clock
	logger *logrus.Logger
	timer  types.Timer
}

// NewRetryScheduler creates a scheduler over the given backoff policy and
// clock.
func NewRetryScheduler(policy *retry.Policy, clock types.Clock, logger *logrus.Logger) *RetryScheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &RetryScheduler{
		policy: policy,
		clock:  clock,
		logger: logger,
	}
}

// Eligible returns the pending items whose backoff delay has elapsed, sorted
// FIFO by enqueue time.
func (s *RetryScheduler) Eligible(items []types.QueuedMessage, now time.Time) []types.QueuedMessage {
	var out []types.QueuedMessage
	for i := range items {
		item := items[i]
		if item.Status != types.ItemStatusPending {
			continue
		}
		if s.policy.IsEligible(&item, now) {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

// NextWakeTime returns the earliest instant at which a currently ineligible
// pending item becomes eligible. The second return is false when nothing is
// waiting out a delay.
func (s *RetryScheduler) NextWakeTime(items []types.QueuedMessage, now time.Time) (time.Time, bool) {
	var wake time.Time
	found := false
	for i := range items {
		item := items[i]
		if item.Status != types.ItemStatusPending {
			continue
		}
		at := s.policy.NextEligibleAt(&item)
		if !at.After(now) {
			continue
		}
		if !found || at.Before(wake) {
			wake = at
			found = true
		}
	}
	return wake, found
}

// Arm cancels any armed timer and arms a new one for the next wake time among
// items. fire runs on the timer goroutine. Arming with no waiting items just
// cancels.
func (s *RetryScheduler) Arm(items []types.QueuedMessage, fire func()) {
	now := s.clock.Now()
	wake, ok := s.NextWakeTime(items, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !ok {
		return
	}

	delay := wake.Sub(now)
	s.logger.WithField("delay", delay).Debug("Arming retry wake timer")
	s.timer = s.clock.AfterFunc(delay, fire)
}

// Cancel stops the armed wake timer, if any.
func (s *RetryScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
