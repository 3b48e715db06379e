package invocation

import (
	"context"
	"testing"
	"time"
)

func TestInboxDeliverThenAwaitReturnsImmediately(t *testing.T) {
	ib := NewInbox()
	ib.Deliver("ok")

	res := ib.Await(context.Background(), 1000)
	if !res.Delivered || res.Value != "ok" {
		t.Fatalf("Await = %+v, want delivered ok", res)
	}
}

func TestInboxDeliverNilMapsToNullResponse(t *testing.T) {
	ib := NewInbox()
	ib.Deliver(nil)

	res := ib.Await(context.Background(), 1000)
	if !res.Delivered {
		t.Fatalf("expected delivery")
	}
	if _, ok := res.Value.(NullResponse); !ok {
		t.Fatalf("Value = %#v, want NullResponse", res.Value)
	}
}

func TestInboxAwaitZeroTimeoutNoValue(t *testing.T) {
	ib := NewInbox()
	res := ib.Await(context.Background(), 0)
	if res.Delivered {
		t.Fatalf("expected no delivery, got %+v", res)
	}
}

func TestInboxAwaitTimesOut(t *testing.T) {
	ib := NewInbox()
	start := time.Now()
	res := ib.Await(context.Background(), 50)
	if res.Delivered {
		t.Fatalf("expected timeout, got delivery %+v", res)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatalf("returned too early: %v", time.Since(start))
	}
}

func TestInboxAwaitInterruptedOnContextCancel(t *testing.T) {
	ib := NewInbox()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := ib.Await(ctx, 5000)
	if !res.Interrupted {
		t.Fatalf("expected interrupted, got %+v", res)
	}
}

func TestInboxLateSecondDeliveryObservedOnRepoll(t *testing.T) {
	ib := NewInbox()
	ib.Deliver("first")
	if v, ok := ib.Poll(); !ok || v != "first" {
		t.Fatalf("Poll = %v,%v want first", v, ok)
	}
	ib.Deliver("second")
	if v, ok := ib.Poll(); !ok || v != "second" {
		t.Fatalf("Poll = %v,%v want second", v, ok)
	}
}
