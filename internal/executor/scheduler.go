package executor

import (
	"math/rand/v2"
	"time"
)

// Scheduler implements the "consumed" scheduler interface spec.md §6
// describes: runAfterDelay and runAfterRandomDelay, both of which post their
// task onto the given Executor rather than running it on the timer's own
// goroutine.
type Scheduler struct {
	exec *Executor
}

// NewScheduler wraps an Executor with delayed/randomized posting helpers.
func NewScheduler(exec *Executor) *Scheduler {
	return &Scheduler{exec: exec}
}

// RunAfterDelay posts task to the executor after d elapses. It returns a
// cancel function that prevents the task from ever being posted if called
// before the delay expires.
func (s *Scheduler) RunAfterDelay(d time.Duration, task func()) (cancel func()) {
	timer := time.AfterFunc(d, func() {
		s.exec.Post(task)
	})
	return func() { timer.Stop() }
}

// RunAfterRandomDelay posts task to the executor after a uniformly random
// delay in [min, max]. Matches spec.md §4.2/§4.4's "uniform random" timers
// and bootstrap back-offs.
func (s *Scheduler) RunAfterRandomDelay(min, max time.Duration, task func()) (cancel func()) {
	d := randomDuration(min, max)
	return s.RunAfterDelay(d, task)
}

func randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	return min + time.Duration(rand.Int64N(span+1))
}
