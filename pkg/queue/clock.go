package queue

import (
	"time"

	"sendqueue/pkg/queue/types"
)

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) types.Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns the wall-clock implementation used outside tests.
func SystemClock() types.Clock {
	return systemClock{}
}
