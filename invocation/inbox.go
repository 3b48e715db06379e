package invocation

import (
	"context"
	"time"

	"github.com/nawzhin/distgrid/clock"
)

// NullResponse is the sentinel written to an Inbox to distinguish "the
// call returned a genuine nil/zero result" from "nothing has arrived yet".
type NullResponse struct{}

// Inbox is the per-Invocation-Future single-consumer handoff: a bounded,
// FIFO queue that in normal operation carries at most one element, but
// tolerates a second write landing while the consumer is mid long-poll.
// Deliver is always non-blocking from the responder's point of view.
type Inbox struct {
	ch chan interface{}
}

// inboxCapacity comfortably covers the one in-flight response plus the one
// late arrival a long-poll liveness race can produce.
const inboxCapacity = 4

func NewInbox() *Inbox {
	return &Inbox{ch: make(chan interface{}, inboxCapacity)}
}

// Deliver hands obj to the inbox. A nil obj (a responder returning a
// genuine null result) is mapped to NullResponse before enqueueing. Deliver
// never blocks the delivering goroutine (the local operation runner or a
// network-receive thread): if the bounded buffer is ever exhausted — which
// should not happen under the one-attempt-in-flight invariant — the write
// is dispatched from a detached goroutine rather than stalling the caller.
func (ib *Inbox) Deliver(obj interface{}) {
	if obj == nil {
		obj = NullResponse{}
	}
	select {
	case ib.ch <- obj:
	default:
		go func() { ib.ch <- obj }()
	}
}

// AwaitResult is the outcome of one Await call.
type AwaitResult struct {
	Value       interface{}
	Delivered   bool
	Interrupted bool
}

// Await blocks up to timeoutMillis for the next element, or returns
// immediately (Delivered=false) if timeoutMillis <= 0 and nothing is
// already queued. If ctx is canceled before a value or the timeout arrives,
// Await reports Interrupted so the caller can absorb it unless the node
// has become inactive.
func (ib *Inbox) Await(ctx context.Context, timeoutMillis int64) AwaitResult {
	if timeoutMillis <= 0 {
		select {
		case v := <-ib.ch:
			return AwaitResult{Value: v, Delivered: true}
		default:
			return AwaitResult{}
		}
	}

	timer := time.NewTimer(clock.Duration(timeoutMillis))
	defer timer.Stop()

	select {
	case v := <-ib.ch:
		return AwaitResult{Value: v, Delivered: true}
	case <-timer.C:
		return AwaitResult{}
	case <-ctx.Done():
		return AwaitResult{Interrupted: true}
	}
}

// Poll is a non-blocking Await(ctx, 0); used to race one last look at the
// inbox after a liveness probe answers "not executing".
func (ib *Inbox) Poll() (interface{}, bool) {
	select {
	case v := <-ib.ch:
		return v, true
	default:
		return nil, false
	}
}
