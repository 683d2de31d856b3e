package reactor

import (
	"testing"
	"time"
)

func TestPostPreservesSubmissionOrder(t *testing.T) {
	c := New()
	defer c.Stop()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		c.Post(func() { order = append(order, i) })
	}

	for i := 0; i < 5; i++ {
		if !c.PollOne() {
			t.Fatalf("expected a queued task at step %d", i)
		}
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestPollOneEmptyQueue(t *testing.T) {
	c := New()
	defer c.Stop()
	if c.PollOne() {
		t.Fatal("PollOne on empty queue must return false")
	}
}

func TestFutureResolveAfterCancelIsDiscarded(t *testing.T) {
	f, resolve := NewFuture[int]()
	f.Cancel()
	resolve(42)

	select {
	case <-f.Chan():
		t.Fatal("resolve after cancel must not deliver a value")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestFutureWaitReceivesResolvedValue(t *testing.T) {
	f, resolve := NewFuture[int]()
	go resolve(7)
	if got := f.Wait(); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}
