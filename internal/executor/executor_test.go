package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutorRunsPostedTasksInOrder(t *testing.T) {
	e := New()
	go e.Run()
	defer e.Stop()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		i := i
		e.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 4 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks did not complete in time")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestExecutorPostAfterStopIsNoop(t *testing.T) {
	e := New()
	go e.Run()
	e.Stop()

	ran := false
	e.Post(func() { ran = true })

	time.Sleep(10 * time.Millisecond)
	require.False(t, ran)
}

func TestExecutorStopIsIdempotent(t *testing.T) {
	e := New()
	go e.Run()
	require.NotPanics(t, func() {
		e.Stop()
		e.Stop()
	})
}

func TestSchedulerRunAfterDelayPostsOntoExecutor(t *testing.T) {
	e := New()
	go e.Run()
	defer e.Stop()
	s := NewScheduler(e)

	done := make(chan struct{})
	s.RunAfterDelay(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delayed task never ran")
	}
}

func TestSchedulerRunAfterDelayCancel(t *testing.T) {
	e := New()
	go e.Run()
	defer e.Stop()
	s := NewScheduler(e)

	ran := false
	cancel := s.RunAfterDelay(20*time.Millisecond, func() { ran = true })
	cancel()

	time.Sleep(40 * time.Millisecond)
	require.False(t, ran)
}

func TestRandomDurationWithinBounds(t *testing.T) {
	min := 10 * time.Millisecond
	max := 20 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := randomDuration(min, max)
		require.GreaterOrEqual(t, d, min)
		require.LessOrEqual(t, d, max)
	}
}

func TestRandomDurationDegenerateRange(t *testing.T) {
	min := 10 * time.Millisecond
	require.Equal(t, min, randomDuration(min, min))
}
