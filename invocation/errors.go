package invocation

import "fmt"

// RetryableError marks a failure the get() retry loop is allowed to
// re-dispatch on: transient dispatch/network failures and target-mismatch
// failures. It is never returned to a caller directly; it either triggers a
// retry or, once budget is exhausted, its Cause is wrapped into an
// ExecutionError.
type RetryableError struct {
	Cause error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Cause.Error() }
func (e *RetryableError) Unwrap() error { return e.Cause }

// WrongTargetError is raised by Dispatch when target resolution finds no
// current owner for the partition/replica (e.g. mid-migration). It is
// retryable.
type WrongTargetError struct {
	PartitionID, ReplicaIndex int32
}

func (e *WrongTargetError) Error() string {
	return fmt.Sprintf("wrong target for partition %d replica %d", e.PartitionID, e.ReplicaIndex)
}

// TargetNotMemberError is raised when a non-join operation's resolved
// target is not a current cluster member. It is retryable.
type TargetNotMemberError struct {
	Target fmt.Stringer
}

func (e *TargetNotMemberError) Error() string {
	return fmt.Sprintf("target %s is not a cluster member", e.Target)
}

// InactiveNodeError surfaces that the local node is no longer active: at
// invoke() time, in place of a WrongTargetError when no target resolves, or
// when a wait in Get is interrupted after the node became inactive.
type InactiveNodeError struct{}

func (e *InactiveNodeError) Error() string { return "local node is not active" }

// TimeoutError means the caller-visible deadline expired without a
// terminal outcome, distinct from OperationTimeoutError (liveness-confirmed
// abandonment).
type TimeoutError struct {
	WaitedMillis int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("invocation timed out after %dms", e.WaitedMillis)
}

// OperationTimeoutError is raised when a long-poll liveness probe confirms
// the remote is no longer executing the call and no response has arrived.
type OperationTimeoutError struct {
	CallID       int64
	WaitedMillis int64
}

func (e *OperationTimeoutError) Error() string {
	return fmt.Sprintf("operation (call %d) timed out after %dms of liveness-checked waiting", e.CallID, e.WaitedMillis)
}

// ExecutionError wraps a non-retryable failure a responder delivered as
// the call's result. Wrapping is idempotent: wrapping an already-wrapped
// ExecutionError returns it unchanged rather than nesting.
type ExecutionError struct {
	Cause error
}

func (e *ExecutionError) Error() string { return "execution failed: " + e.Cause.Error() }
func (e *ExecutionError) Unwrap() error { return e.Cause }

// WrapExecutionError wraps cause into an ExecutionError unless it already
// is one: an already-wrapped execution failure is never re-wrapped.
func WrapExecutionError(cause error) *ExecutionError {
	if ee, ok := cause.(*ExecutionError); ok {
		return ee
	}
	return &ExecutionError{Cause: cause}
}

// CancellationUnsupportedError is returned by Future.Cancel: this core
// cannot rescind work already accepted by a remote member.
type CancellationUnsupportedError struct{}

func (e *CancellationUnsupportedError) Error() string {
	return "cancellation is not supported by the invocation core"
}
