package grid

import "context"

// OperationService is the per-node collaborator the invocation engine
// dispatches through. A default ZeroMQ-backed implementation lives in the
// transport package; tests commonly supply a minimal in-memory fake.
type OperationService interface {
	// RunOperationLocal schedules op for execution on the local
	// operation-execution thread pool. The pool itself (worker sizing,
	// queueing policy) is out of scope for this core.
	RunOperationLocal(op Operation)

	// Send fire-and-forgets the serialized op to target. It returns false
	// if the operation could not be transmitted at all (the caller
	// surfaces this as a retryable IO failure); a false return must not
	// be interpreted as "target rejected the call".
	Send(op Operation, target Address) bool

	// RegisterCall allocates a Call Registry entry for a future awaiting
	// a remote response and returns the assigned call id.
	RegisterCall(f CallWaiter) int64

	// DeregisterCall reclaims a Call Registry entry. Safe to call more
	// than once or with an id that was never (or is no longer)
	// registered.
	DeregisterCall(callID int64)

	// DefaultCallTimeout is this node's configured default per-attempt
	// network budget in milliseconds, used when the caller did not
	// supply a positive callTimeout.
	DefaultCallTimeout() int64

	// IsOperationExecuting answers a liveness probe: is the operation
	// originally dispatched by caller under callID still running here?
	IsOperationExecuting(ctx context.Context, caller Address, callID int64) bool

	ThisAddress() Address
	ClusterTime() int64
	IsActive() bool
}

// CallWaiter is the minimal surface the Call Registry needs from an
// Invocation Future: a sink it can hand an asynchronous response to. The
// invocation package's Future implements it.
type CallWaiter interface {
	Notify(result interface{})
}

// ClusterService resolves member addresses into live Member records.
type ClusterService interface {
	GetMember(addr Address) (Member, bool)
}

// PartitionService answers "who currently owns this partition replica".
type PartitionService interface {
	// Owner returns the zero Address and false when the partition is
	// currently unassigned (e.g. mid-migration); the invocation engine
	// treats that as a recoverable WrongTargetError.
	Owner(partitionID int32, replicaIndex int32) (Address, bool)
}
