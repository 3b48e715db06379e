package transport

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalPoolRunsSubmittedWork(t *testing.T) {
	p := newLocalPool(2, 8)
	defer p.Stop()

	var n int32
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		ok := p.Submit(func() {
			atomic.AddInt32(&n, 1)
			wg.Done()
		})
		if !ok {
			t.Fatal("expected Submit to succeed")
		}
	}
	wg.Wait()
	if got := atomic.LoadInt32(&n); got != 5 {
		t.Fatalf("n = %d, want 5", got)
	}
}

func TestLocalPoolRejectsWhenBacklogFull(t *testing.T) {
	p := newLocalPool(1, 1)
	defer p.Stop()

	block := make(chan struct{})
	if !p.Submit(func() { <-block }) {
		t.Fatal("expected first submit to succeed")
	}
	// Give the single worker a moment to pick up the blocking task so the
	// backlog, not the in-flight slot, is what's being tested.
	time.Sleep(10 * time.Millisecond)

	if !p.Submit(func() {}) {
		t.Fatal("expected second submit to fill the one backlog slot")
	}
	if p.Submit(func() {}) {
		t.Fatal("expected third submit to be rejected, backlog full")
	}
	close(block)
}

func TestLocalPoolSubmitAfterStopFails(t *testing.T) {
	p := newLocalPool(1, 1)
	p.Stop()
	if p.Submit(func() {}) {
		t.Fatal("expected Submit after Stop to fail")
	}
}
