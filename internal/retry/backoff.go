package retry

import (
	"time"

	"sendqueue/pkg/queue/types"
)

// delayTable is the fixed exponential schedule. The delay plateaus at the
// last entry rather than growing unboundedly; the attempt cap is enforced by
// the controller, not here.
var delayTable = [...]time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// Policy maps a failure count to the delay before the next attempt. It is a
// pure function of its input: no state, no I/O.
type Policy struct{}

// NewPolicy creates the fixed-table backoff policy.
func NewPolicy() *Policy {
	return &Policy{}
}

// DelayFor returns the delay after the given number of failed attempts.
func (p *Policy) DelayFor(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(delayTable) {
		attempts = len(delayTable) - 1
	}
	return delayTable[attempts]
}

// NextEligibleAt returns the earliest instant at which the item may be
// attempted. A never-attempted item is eligible immediately; backoff gates
// retries, not first attempts.
func (p *Policy) NextEligibleAt(msg *types.QueuedMessage) time.Time {
	if msg.AttemptCount == 0 {
		return msg.LastAttemptAt
	}
	return msg.LastAttemptAt.Add(p.DelayFor(msg.AttemptCount - 1))
}

// IsEligible reports whether the item's backoff delay has elapsed.
func (p *Policy) IsEligible(msg *types.QueuedMessage, now time.Time) bool {
	return !now.Before(p.NextEligibleAt(msg))
}
