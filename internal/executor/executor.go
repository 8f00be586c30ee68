// Package executor models the single logical executor that the overlay core
// relies on for race-freedom: every transport callback and timer firing is
// posted here instead of touching core state directly, so core state is
// never mutated concurrently.
package executor

import (
	"sync"

	lockfreequeue "github.com/bsv-blockchain/go-lockfree-queue"
	"github.com/ordishs/go-utils"
)

// Task is a unit of work posted to the executor. Tasks run in post order on
// a single goroutine. Defined as an alias (not a distinct named type) so
// that Executor.Post and Scheduler's methods are directly assignable to
// plain func() callback fields elsewhere in this module.
type Task = func()

// Executor drains tasks posted concurrently by many producers (transport
// callbacks, timers) on exactly one consuming goroutine. The underlying
// queue is safe for concurrent enqueue but supports only one dequeuer,
// which matches this access pattern exactly.
type Executor struct {
	queue    *lockfreequeue.LockFreeQ[Task]
	wake     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates an Executor. Call Run in its own goroutine to start draining
// posted tasks, and Stop to shut it down.
func New() *Executor {
	return &Executor{
		queue:   lockfreequeue.NewLockFreeQ[Task](),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Post enqueues a task. It is safe to call from any goroutine, including
// from within a task running on the executor itself. Post on a stopped
// executor is a silent no-op, matching spec.md §5's "completion callbacks
// must be no-ops if the core is shut down".
func (e *Executor) Post(task Task) {
	select {
	case <-e.stopped:
		return
	default:
	}
	e.queue.Enqueue(task)
	utils.SafeSend(e.wake, struct{}{})
}

// Run drains the queue until Stop is called. It blocks the calling
// goroutine and must never be invoked from within a posted task.
func (e *Executor) Run() {
	for {
		for {
			t := e.queue.Dequeue()
			if t == nil {
				break
			}
			(*t)()
		}
		select {
		case <-e.stopped:
			// Drain whatever was enqueued right before shutdown, then exit.
			for {
				t := e.queue.Dequeue()
				if t == nil {
					return
				}
				(*t)()
			}
		case <-e.wake:
		}
	}
}

// Stopped reports whether Stop has been called, for callers that need to
// reject an operation synchronously rather than silently dropping its
// posted task.
func (e *Executor) Stopped() bool {
	select {
	case <-e.stopped:
		return true
	default:
		return false
	}
}

// Stop signals Run to exit after draining any already-queued tasks. Stop is
// idempotent and safe to call multiple times.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopped)
		utils.SafeClose(e.wake)
	})
}
