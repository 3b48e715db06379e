package invocation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nawzhin/distgrid/clock"
	"github.com/nawzhin/distgrid/grid"
)

// echoOperation is the minimal concrete operation used across these tests:
// it carries a value that fakeServices' local runner hands back. On the
// remote path it is never run; each test's respond function answers instead.
type echoOperation struct {
	grid.BaseOperation
	value interface{}
}

func newEchoOperation(value interface{}) *echoOperation {
	return &echoOperation{value: value}
}

// fakeServices is an in-memory grid.OperationService/grid.ClusterService
// standing in for a real node: local dispatch runs synchronously, remote
// dispatch is answered by a scripted responder function so tests can
// simulate WrongTarget/retry/timeout sequences deterministically.
type fakeServices struct {
	self   grid.Address
	active int32 // atomic bool

	registry *CallRegistry

	mu        sync.Mutex
	members   map[grid.Address]bool
	executing map[int64]bool

	// respond is invoked on every Send; it decides how (and whether) to
	// answer the call, possibly asynchronously.
	respond func(f *fakeServices, op grid.Operation, target grid.Address)
}

func newFakeServices(self grid.Address) *fakeServices {
	return &fakeServices{
		self:      self,
		active:    1,
		registry:  NewCallRegistry(),
		members:   map[grid.Address]bool{self: true},
		executing: map[int64]bool{},
	}
}

func (f *fakeServices) RunOperationLocal(op grid.Operation) {
	if echo, ok := op.(*echoOperation); ok {
		op.SendResponse(echo.value)
		return
	}
	if probe, ok := op.(*IsStillExecutingOperation); ok {
		probe.Run(context.Background(), f)
		return
	}
	op.SendResponse(nil)
}

func (f *fakeServices) Send(op grid.Operation, target grid.Address) bool {
	if f.respond == nil {
		return false
	}
	f.respond(f, op, target)
	return true
}

func (f *fakeServices) RegisterCall(w grid.CallWaiter) int64 { return f.registry.Register(w) }
func (f *fakeServices) DeregisterCall(callID int64)          { f.registry.Deregister(callID) }
func (f *fakeServices) DefaultCallTimeout() int64            { return 2000 }
func (f *fakeServices) ThisAddress() grid.Address            { return f.self }
func (f *fakeServices) ClusterTime() int64                   { return clock.NowMillis() }
func (f *fakeServices) IsActive() bool                       { return atomic.LoadInt32(&f.active) == 1 }

func (f *fakeServices) SetActive(active bool) {
	if active {
		atomic.StoreInt32(&f.active, 1)
	} else {
		atomic.StoreInt32(&f.active, 0)
	}
}

func (f *fakeServices) IsOperationExecuting(ctx context.Context, caller grid.Address, callID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.executing[callID]
}

func (f *fakeServices) SetExecuting(callID int64, executing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executing[callID] = executing
}

func (f *fakeServices) GetMember(addr grid.Address) (grid.Member, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[addr] {
		return grid.Member{Address: addr}, true
	}
	return grid.Member{}, false
}

func (f *fakeServices) AddMember(addr grid.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[addr] = true
}

func localAddr() grid.Address  { return grid.Address{Host: "127.0.0.1", Port: 5701} }
func remoteAddr() grid.Address { return grid.Address{Host: "127.0.0.1", Port: 5702} }

// TestLocalHappyPath asserts a local dispatch delivers its result
// synchronously and Get returns it without touching the Call Registry.
func TestLocalHappyPath(t *testing.T) {
	svc := newFakeServices(localAddr())
	op := newEchoOperation("hello")

	f := NewTargetInvocation("Echo", op, localAddr(), 3, 10, 1000, svc, svc)
	if _, err := f.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	result, err := f.Get(context.Background(), clock.Infinite)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if result != "hello" {
		t.Fatalf("result = %v, want hello", result)
	}
	if f.InvokeCount() != 1 {
		t.Fatalf("InvokeCount = %d, want 1", f.InvokeCount())
	}
	if svc.registry.Len() != 0 {
		t.Fatalf("registry should stay empty for a local call")
	}
}

// TestRemoteHappyPath asserts a remote dispatch registers a call id, the
// registry routes a response back, Get returns it, and the registry entry
// is reclaimed.
func TestRemoteHappyPath(t *testing.T) {
	svc := newFakeServices(localAddr())
	svc.AddMember(remoteAddr())
	svc.respond = func(f *fakeServices, op grid.Operation, target grid.Address) {
		go f.registry.Route(op.CallID(), 42)
	}

	op := newEchoOperation(nil)
	f := NewTargetInvocation("Echo", op, remoteAddr(), 3, 10, 1000, svc, svc)
	if _, err := f.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	result, err := f.Get(context.Background(), clock.Infinite)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if result != 42 {
		t.Fatalf("result = %v, want 42", result)
	}
	if svc.registry.Len() != 0 {
		t.Fatalf("registry entry should be reclaimed after a terminal Get")
	}
}

// TestRetryThenSuccess asserts that when the first dispatch is answered
// with a WrongTargetError, the retry loop re-dispatches after
// tryPauseMillis, and the second attempt succeeds. invokeCount must be 2.
func TestRetryThenSuccess(t *testing.T) {
	svc := newFakeServices(localAddr())
	svc.AddMember(remoteAddr())

	var attempt int32
	svc.respond = func(f *fakeServices, op grid.Operation, target grid.Address) {
		n := atomic.AddInt32(&attempt, 1)
		if n == 1 {
			f.registry.Route(op.CallID(), &RetryableError{Cause: &WrongTargetError{}})
			return
		}
		f.registry.Route(op.CallID(), "ok")
	}

	op := newEchoOperation(nil)
	f := NewTargetInvocation("Echo", op, remoteAddr(), 5, 5, 1000, svc, svc)
	if _, err := f.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	result, err := f.Get(context.Background(), clock.Infinite)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if result != "ok" {
		t.Fatalf("result = %v, want ok", result)
	}
	if f.InvokeCount() != 2 {
		t.Fatalf("InvokeCount = %d, want 2", f.InvokeCount())
	}
}

// TestRetryBudgetExhausted asserts that when every attempt comes back
// retryable, once invokeCount reaches tryCount, Get raises an execution
// failure instead of retrying forever.
func TestRetryBudgetExhausted(t *testing.T) {
	svc := newFakeServices(localAddr())
	svc.AddMember(remoteAddr())
	svc.respond = func(f *fakeServices, op grid.Operation, target grid.Address) {
		f.registry.Route(op.CallID(), &RetryableError{Cause: &WrongTargetError{}})
	}

	op := newEchoOperation(nil)
	f := NewTargetInvocation("Echo", op, remoteAddr(), 2, 1, 5000, svc, svc)
	if _, err := f.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	_, err := f.Get(context.Background(), clock.Infinite)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *ExecutionError", err)
	}
	if f.InvokeCount() != 2 {
		t.Fatalf("InvokeCount = %d, want 2 (== tryCount)", f.InvokeCount())
	}
	if svc.registry.Len() != 0 {
		t.Fatalf("registry entry should be reclaimed once the budget is exhausted")
	}
}

// TestLongPollLivenessNotExecuting asserts that when the network response
// never arrives, but once the caller-visible wait exceeds maxPerPoll the
// liveness probe confirms the remote is no longer executing the call, Get
// raises OperationTimeoutError rather than waiting forever.
func TestLongPollLivenessNotExecuting(t *testing.T) {
	svc := newFakeServices(localAddr())
	svc.AddMember(remoteAddr())
	svc.respond = func(f *fakeServices, op grid.Operation, target grid.Address) {
		if _, ok := op.(*IsStillExecutingOperation); ok {
			f.registry.Route(op.CallID(), false)
			return
		}
		// the primary call's response never arrives.
	}

	op := newEchoOperation(nil)
	f := NewTargetInvocation("Echo", op, remoteAddr(), 1, 10, 40, svc, svc)
	if _, err := f.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	_, err := f.Get(context.Background(), 500)
	var opTimeout *OperationTimeoutError
	if !errors.As(err, &opTimeout) {
		t.Fatalf("err = %v, want *OperationTimeoutError", err)
	}
}

// TestLongPollRaceDelivery asserts that when the liveness probe answers
// "not executing" just as the real response lands in the inbox, Get
// prefers the late-arriving real response over manufacturing a timeout.
func TestLongPollRaceDelivery(t *testing.T) {
	svc := newFakeServices(localAddr())
	svc.AddMember(remoteAddr())

	var primaryCallID int64
	svc.respond = func(f *fakeServices, op grid.Operation, target grid.Address) {
		if probe, ok := op.(*IsStillExecutingOperation); ok {
			// Deliver the real, late response before answering the
			// liveness probe, so Get's post-probe Poll is guaranteed to
			// see it rather than racing a background goroutine.
			f.registry.Route(primaryCallID, "late but real")
			f.registry.Route(probe.CallID(), false)
			return
		}
		primaryCallID = op.CallID()
	}

	op := newEchoOperation(nil)
	f := NewTargetInvocation("Echo", op, remoteAddr(), 1, 10, 40, svc, svc)
	if _, err := f.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	result, err := f.Get(context.Background(), 500)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if result != "late but real" {
		t.Fatalf("result = %v, want 'late but real'", result)
	}
}

// TestInvokeCalledOnce asserts invoking the same Future a second
// time is rejected rather than silently re-dispatching.
func TestInvokeCalledOnce(t *testing.T) {
	svc := newFakeServices(localAddr())
	op := newEchoOperation("x")
	f := NewTargetInvocation("Echo", op, localAddr(), 3, 10, 1000, svc, svc)

	if _, err := f.Invoke(context.Background()); err != nil {
		t.Fatalf("first Invoke: %v", err)
	}
	if _, err := f.Invoke(context.Background()); err != ErrAlreadyInvoked {
		t.Fatalf("second Invoke err = %v, want ErrAlreadyInvoked", err)
	}
}

// TestInvokeOnInactiveNode asserts Invoke's local-node-active precondition.
func TestInvokeOnInactiveNode(t *testing.T) {
	svc := newFakeServices(localAddr())
	svc.SetActive(false)
	op := newEchoOperation("x")
	f := NewTargetInvocation("Echo", op, localAddr(), 3, 10, 1000, svc, svc)

	_, err := f.Invoke(context.Background())
	var inactive *InactiveNodeError
	if !errors.As(err, &inactive) {
		t.Fatalf("err = %v, want *InactiveNodeError", err)
	}
}

// TestNullResponseIsObservable asserts a responder explicitly handing back
// nil surfaces as a (nil, nil) terminal outcome, not a timeout or error.
func TestNullResponseIsObservable(t *testing.T) {
	svc := newFakeServices(localAddr())
	op := newEchoOperation(nil)
	f := NewTargetInvocation("Echo", op, localAddr(), 3, 10, 1000, svc, svc)

	if _, err := f.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	result, err := f.Get(context.Background(), clock.Infinite)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if result != nil {
		t.Fatalf("result = %v, want nil", result)
	}
}

// TestCallerDeadlineTimesOut asserts that when neither a response nor a
// long-poll window materializes, Get eventually raises a plain TimeoutError.
func TestCallerDeadlineTimesOut(t *testing.T) {
	svc := newFakeServices(localAddr())
	svc.AddMember(remoteAddr())
	svc.respond = func(f *fakeServices, op grid.Operation, target grid.Address) {
		// never answer; short caller timeout well under maxPerPoll means
		// no long-poll window is ever entered.
	}

	op := newEchoOperation(nil)
	f := NewTargetInvocation("Echo", op, remoteAddr(), 1, 10, 5000, svc, svc)
	if _, err := f.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	start := time.Now()
	_, err := f.Get(context.Background(), 60)
	if time.Since(start) > 2*time.Second {
		t.Fatalf("Get took too long: %v", time.Since(start))
	}
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want *TimeoutError", err)
	}
}

// TestCancelUnsupported asserts cancellation is a documented no-op
// failure, never a partial effect.
func TestCancelUnsupported(t *testing.T) {
	svc := newFakeServices(localAddr())
	op := newEchoOperation("x")
	f := NewTargetInvocation("Echo", op, localAddr(), 3, 10, 1000, svc, svc)

	err := f.Cancel(true)
	var unsupported *CancellationUnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want *CancellationUnsupportedError", err)
	}
	if f.IsCancelled() {
		t.Fatalf("IsCancelled() should remain false")
	}
}

// TestGetAfterTerminationReplaysCachedOutcome asserts that calling Get a
// second time on an already-terminal Future returns the same outcome
// without re-dispatching or re-entering the wait/liveness loop, even if a
// stale liveness probe would otherwise manufacture a different result.
func TestGetAfterTerminationReplaysCachedOutcome(t *testing.T) {
	svc := newFakeServices(localAddr())
	svc.AddMember(remoteAddr())
	svc.respond = func(f *fakeServices, op grid.Operation, target grid.Address) {
		if _, ok := op.(*IsStillExecutingOperation); ok {
			f.registry.Route(op.CallID(), false)
			return
		}
		go f.registry.Route(op.CallID(), "first result")
	}

	op := newEchoOperation(nil)
	f := NewTargetInvocation("Echo", op, remoteAddr(), 1, 10, 1000, svc, svc)
	if _, err := f.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	result, err := f.Get(context.Background(), clock.Infinite)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if result != "first result" {
		t.Fatalf("first Get result = %v, want \"first result\"", result)
	}

	result, err = f.Get(context.Background(), 500)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if result != "first result" {
		t.Fatalf("second Get result = %v, want \"first result\" (cached)", result)
	}
	if f.InvokeCount() != 1 {
		t.Fatalf("InvokeCount = %d, want 1 (second Get must not re-dispatch)", f.InvokeCount())
	}
}
