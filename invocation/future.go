// Package invocation is the heart of this module: the Invocation Future
// that resolves a target, dispatches an Operation locally or remotely,
// retries under recoverable failures, probes liveness on long waits, and
// hands back exactly one terminal outcome to its caller.
package invocation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nawzhin/distgrid/clock"
	"github.com/nawzhin/distgrid/grid"
	"github.com/nawzhin/distgrid/rlog"
)

// ErrAlreadyInvoked is returned by Invoke when called more than once on the
// same Future: a Future dispatches exactly once per invoke() call site.
var ErrAlreadyInvoked = errors.New("invocation: Invoke() already called on this future")

// Future orchestrates one logical call end to end: initial dispatch, the
// retry loop, long-poll liveness checking, and blocking/timed Get. It
// implements grid.CallWaiter so the Call Registry (owned by the
// OperationService) can route a response straight to Notify.
type Future struct {
	serviceName string
	op          grid.Operation
	target      TargetResolver

	services grid.OperationService
	cluster  grid.ClusterService

	parent       grid.Operation
	nestedPolicy NestedPolicy

	tryCount       int
	tryPauseMillis int64
	callTimeout    int64

	invokeCount int32 // atomic
	invoked     int32 // atomic, CAS guard for Invoke()

	mu        sync.Mutex
	done      bool
	result    interface{}
	resultErr error
	remote    bool
	callID    int64
	logTok    string

	inbox *Inbox
}

// NewPartitionInvocation builds a Future targeting the current owner of
// partitionID/replicaIndex, re-resolved on every dispatch so a migration
// mid-retry is observed.
func NewPartitionInvocation(serviceName string, op grid.Operation, partitionID, replicaIndex int32,
	tryCount int, tryPauseMillis, callTimeout int64,
	services grid.OperationService, cluster grid.ClusterService, partitions grid.PartitionService) *Future {

	return newFuture(serviceName, op, NewPartitionTarget(partitions, partitionID, replicaIndex),
		tryCount, tryPauseMillis, callTimeout, services, cluster, nil, AllowAllNested)
}

// NewTargetInvocation builds a Future aimed at a fixed member address,
// used directly for address-targeted calls and internally for the
// liveness probe's nested sub-invocation.
func NewTargetInvocation(serviceName string, op grid.Operation, target grid.Address,
	tryCount int, tryPauseMillis, callTimeout int64,
	services grid.OperationService, cluster grid.ClusterService) *Future {

	return newFuture(serviceName, op, NewFixedTarget(target),
		tryCount, tryPauseMillis, callTimeout, services, cluster, nil, AllowAllNested)
}

// NewNestedInvocation is like NewTargetInvocation but records parent so a
// non-default NestedPolicy can veto the call.
func NewNestedInvocation(serviceName string, parent, op grid.Operation, target grid.Address,
	tryCount int, tryPauseMillis, callTimeout int64,
	services grid.OperationService, cluster grid.ClusterService, policy NestedPolicy) *Future {

	if policy == nil {
		policy = AllowAllNested
	}
	return newFuture(serviceName, op, NewFixedTarget(target),
		tryCount, tryPauseMillis, callTimeout, services, cluster, parent, policy)
}

func newFuture(serviceName string, op grid.Operation, target TargetResolver,
	tryCount int, tryPauseMillis, callTimeout int64,
	services grid.OperationService, cluster grid.ClusterService,
	parent grid.Operation, policy NestedPolicy) *Future {

	return &Future{
		serviceName:    serviceName,
		op:             op,
		target:         target,
		services:       services,
		cluster:        cluster,
		parent:         parent,
		nestedPolicy:   policy,
		tryCount:       tryCount,
		tryPauseMillis: tryPauseMillis,
		callTimeout:    effectiveCallTimeout(callTimeout, op, services),
		inbox:          NewInbox(),
		logTok:         rlog.CallToken(),
	}
}

// effectiveCallTimeout is the caller's explicit timeout if positive,
// otherwise the node default. When the operation reports a bounded internal
// wait W and the node default exceeds 5000ms, W+5000ms is used instead of
// the default.
func effectiveCallTimeout(callTimeout int64, op grid.Operation, services grid.OperationService) int64 {
	if callTimeout > 0 {
		return callTimeout
	}
	def := services.DefaultCallTimeout()
	if waitTimeout, ok := op.SupportsWaiting(); ok && def > 5000 {
		return waitTimeout + 5000
	}
	return def
}

// Invoke performs the first dispatch. It must be called exactly once.
// It returns an error only for the preconditions this raises synchronously
// (already invoked, local node inactive, or a vetoed nested call); every
// other recoverable outcome of dispatch is instead delivered into the
// inbox for the retry loop in Get to own.
func (f *Future) Invoke(ctx context.Context) (*Future, error) {
	if !atomic.CompareAndSwapInt32(&f.invoked, 0, 1) {
		return nil, ErrAlreadyInvoked
	}
	if !f.services.IsActive() {
		return nil, &InactiveNodeError{}
	}
	if f.parent != nil && !f.nestedPolicy(f.parent, f.op) {
		return nil, errors.New("invocation: nested operation not allowed by policy")
	}

	f.op.SetCallTimeout(f.callTimeout)
	f.dispatch(ctx)
	return f, nil
}

// dispatch resolves the current target and attempts one delivery, local or
// remote. It never returns an error: every recoverable condition is
// funneled into the inbox so the Get retry loop owns it.
func (f *Future) dispatch(ctx context.Context) {
	atomic.AddInt32(&f.invokeCount, 1)

	target, ok := f.target.Resolve()

	f.op.SetServiceName(f.serviceName)
	f.op.SetCallerAddress(f.services.ThisAddress())
	f.op.SetPartitionID(f.target.PartitionID())
	f.op.SetReplicaIndex(f.target.ReplicaIndex())

	if !ok {
		if f.services.IsActive() {
			f.inbox.Deliver(&RetryableError{Cause: &WrongTargetError{
				PartitionID: f.target.PartitionID(), ReplicaIndex: f.target.ReplicaIndex()}})
		} else {
			f.inbox.Deliver(&InactiveNodeError{})
		}
		return
	}

	if !f.op.IsJoinOperation() {
		if _, isMember := f.cluster.GetMember(target); !isMember {
			f.inbox.Deliver(&RetryableError{Cause: &TargetNotMemberError{Target: target}})
			return
		}
	}

	f.op.SetInvocationTime(f.services.ClusterTime())

	if target == f.services.ThisAddress() {
		f.setCallState(false, 0)
		f.op.SetCallID(0)
		f.op.SetResponseHandler(f.Notify)
		f.services.RunOperationLocal(f.op)
		return
	}

	callID := f.services.RegisterCall(f)
	f.setCallState(true, callID)
	f.op.SetCallID(callID)

	if !f.services.Send(f.op, target) {
		f.services.DeregisterCall(callID)
		f.setCallState(false, 0)
		f.inbox.Deliver(&RetryableError{Cause: errors.New("send refused by transport")})
	}
}

func (f *Future) setCallState(remote bool, callID int64) {
	f.mu.Lock()
	f.remote = remote
	f.callID = callID
	f.mu.Unlock()
}

// Notify is the callback entry point external responders (the local
// operation runner, or a network-receive thread routing through the Call
// Registry) use to hand this Future its attempt's outcome.
func (f *Future) Notify(result interface{}) {
	f.inbox.Deliver(result)
}

// classification is the outcome of inspecting one inbox value: a terminal
// result, a terminal error, or a retryable cause.
type classification struct {
	result interface{}
	err    error
	retry  bool
	cause  error
}

func (f *Future) classify(value interface{}) classification {
	switch v := value.(type) {
	case NullResponse:
		return classification{}
	case *RetryableError:
		return classification{retry: true, cause: v.Cause}
	default:
		if e, ok := value.(error); ok {
			if ee, ok := e.(*ExecutionError); ok {
				return classification{err: ee}
			}
			return classification{err: WrapExecutionError(e)}
		}
		return classification{result: value}
	}
}

// Get blocks until a terminal outcome. timeoutMillis may be clock.Infinite.
// ctx cancellation during a wait is absorbed and the wait resumed unless
// the local node has meanwhile become inactive, in which case it
// propagates as an InactiveNodeError. Calling Get again after a Future has
// already reached a terminal outcome replays that same outcome without
// re-dispatching or re-entering the wait/liveness loop.
func (f *Future) Get(ctx context.Context, timeoutMillis int64) (interface{}, error) {
	f.mu.Lock()
	if f.done {
		result, err := f.result, f.resultErr
		f.mu.Unlock()
		return result, err
	}
	f.mu.Unlock()

	T := timeoutMillis
	maxPerPoll := clock.SaturatingDouble(f.callTimeout)
	longPolling := T > maxPerPoll
	pollCount := 0

	for {
		pollTimeout := minInt64(maxPerPoll, T)
		if pollTimeout < 0 {
			pollTimeout = 0
		}

		value, delivered, elapsed, err := f.awaitOnePoll(ctx, pollTimeout)
		if err != nil {
			return f.finish(nil, err)
		}
		T = clock.Decrement(T, elapsed)
		pollCount++

		if delivered {
			c := f.classify(value)
			if c.retry {
				if f.maybeRetry(ctx, &T) {
					continue
				}
				return f.finish(nil, WrapExecutionError(c.cause))
			}
			return f.finish(c.result, c.err)
		}

		if !longPolling {
			if T <= 0 {
				break
			}
			continue
		}

		target, ok := f.target.Resolve()
		if ok && target == f.services.ThisAddress() {
			// Migration: the partition we were waiting on now lives
			// here. Nothing to probe; just keep waiting, as long as
			// there is still budget left to wait with.
			if T <= 0 {
				break
			}
			continue
		}

		if IsStillExecuting(ctx, f.services, f.cluster, target, f.CallID()) {
			if T <= 0 {
				break
			}
			continue
		}

		if v, ok := f.inbox.Poll(); ok {
			c := f.classify(v)
			if c.retry {
				if f.maybeRetry(ctx, &T) {
					continue
				}
				return f.finish(nil, WrapExecutionError(c.cause))
			}
			return f.finish(c.result, c.err)
		}

		return f.finish(nil, &OperationTimeoutError{CallID: f.CallID(), WaitedMillis: pollTimeout * int64(pollCount)})
	}

	return f.finish(nil, &TimeoutError{WaitedMillis: timeoutMillis})
}

// maybeRetry applies the retry-budget check and, if a retry is allowed,
// sleeps tryPauseMillis, decrements T, and re-dispatches. It reports
// whether a retry was actually performed.
func (f *Future) maybeRetry(ctx context.Context, T *int64) bool {
	ic := atomic.LoadInt32(&f.invokeCount)
	if int(ic) >= f.tryCount || *T <= 0 {
		return false
	}
	if ic > 5 && ic%10 == 0 {
		rlog.Warnf("invocation[%s]: call still retrying after %d attempts", f.logTok, ic)
	}
	sleepMillis(ctx, f.tryPauseMillis)
	*T = clock.Decrement(*T, f.tryPauseMillis)
	f.dispatch(ctx)
	return true
}

func sleepMillis(ctx context.Context, millis int64) {
	timer := time.NewTimer(clock.Duration(millis))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// awaitOnePoll blocks up to pollTimeout on the inbox, absorbing context
// cancellations as long as the node remains active, and reports the total
// time actually spent waiting.
func (f *Future) awaitOnePoll(ctx context.Context, pollTimeout int64) (value interface{}, delivered bool, elapsed int64, err error) {
	remaining := pollTimeout
	for {
		start := clock.NowMillis()
		res := f.inbox.Await(ctx, remaining)
		step := clock.NowMillis() - start
		elapsed += step

		if res.Delivered {
			return res.Value, true, elapsed, nil
		}
		if res.Interrupted {
			if !f.services.IsActive() {
				return nil, false, elapsed, &InactiveNodeError{}
			}
			rlog.Debugf("invocation[%s]: absorbed interruption while waiting", f.logTok)
			remaining = clock.Decrement(remaining, step)
			if remaining <= 0 {
				return nil, false, elapsed, nil
			}
			continue
		}
		return nil, false, elapsed, nil
	}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// finish marks the Future terminal exactly once, caching result/err so a
// later Get call replays the same outcome instead of waiting again, and
// reclaims any Call Registry entry this Future holds. Calling finish again
// after the Future is already terminal is a no-op that returns the
// originally cached outcome, not whatever was just passed in.
func (f *Future) finish(result interface{}, err error) (interface{}, error) {
	f.mu.Lock()
	if f.done {
		result, err = f.result, f.resultErr
		f.mu.Unlock()
		return result, err
	}
	f.done = true
	f.result, f.resultErr = result, err
	remote, callID := f.remote, f.callID
	f.mu.Unlock()

	if remote && callID != 0 {
		f.services.DeregisterCall(callID)
	}
	return result, err
}

// GetBlocking is the legacy ergonomic Get(): no caller-visible timeout, and
// a TimeoutError is logged and swallowed rather than returned.
func (f *Future) GetBlocking(ctx context.Context) interface{} {
	result, err := f.Get(ctx, clock.Infinite)
	if _, ok := err.(*TimeoutError); ok {
		rlog.Warnf("invocation[%s]: get() with no deadline timed out unexpectedly: %v", f.logTok, err)
		return nil
	}
	return result
}

func (f *Future) IsDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// IsCancelled always reports false: cancellation is not supported.
func (f *Future) IsCancelled() bool { return false }

// Cancel is unsupported: this core cannot rescind work already accepted by
// a remote member.
func (f *Future) Cancel(bool) error { return &CancellationUnsupportedError{} }

func (f *Future) PartitionID() int32    { return f.target.PartitionID() }
func (f *Future) ReplicaIndex() int32   { return f.target.ReplicaIndex() }
func (f *Future) ServiceName() string   { return f.serviceName }
func (f *Future) Operation() grid.Operation { return f.op }
func (f *Future) InvokeCount() int32    { return atomic.LoadInt32(&f.invokeCount) }

func (f *Future) CallID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callID
}
