// Package grid defines the contracts this module consumes from the rest of
// a grid node: the Operation payload capability surface, cluster membership,
// partition ownership and the operation-execution service. Concrete
// payloads, the partition table and membership view, and the low-level
// packet transport are all external collaborators; this package only
// specifies the interfaces the invocation engine depends on.
package grid

import (
	"context"
	"fmt"
)

// Address identifies a grid member by its host:port. It is a plain value
// type so it can be used directly as a map key, the way clusterrpc's
// client used raw host/port pairs for its round-robin peer set.
type Address struct {
	Host string
	Port uint16
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// IsZero reports whether this is the unset Address, used as the "no
// target" sentinel returned by a TargetResolver.
func (a Address) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// Member is a cluster member as seen by ClusterService.
type Member struct {
	Address Address
	UUID    string
}

// Operation is the capability surface this core needs from an otherwise
// opaque Operation payload. Real payloads (puts, gets, locks, backup
// replication, IsStillExecuting, ...) embed BaseOperation and are free to
// carry whatever additional business fields and serialization logic they
// need; none of that is visible here.
type Operation interface {
	// ServiceName identifies which registered service handles this
	// operation (e.g. "LockService").
	ServiceName() string
	SetServiceName(string)

	PartitionID() int32
	SetPartitionID(int32)

	ReplicaIndex() int32
	SetReplicaIndex(int32)

	CallerAddress() Address
	SetCallerAddress(Address)

	// CallID is zero until a remote dispatch stamps one via
	// SetCallID; it is the Call Registry key correlating a response.
	CallID() int64
	SetCallID(int64)

	InvocationTime() int64
	SetInvocationTime(int64)

	CallTimeout() int64
	SetCallTimeout(int64)

	// IsJoinOperation bypasses the membership check in Dispatch: a node
	// joining the cluster is, by definition, not yet a member.
	IsJoinOperation() bool

	// SupportsWaiting reports whether this operation has a bounded
	// internal wait (e.g. a lock acquire with a wait timeout) and, if so,
	// what that bound is in milliseconds. It affects derivation of the
	// effective call timeout (see effectiveCallTimeout in the invocation
	// package).
	SupportsWaiting() (waitTimeoutMillis int64, ok bool)

	// SetResponseHandler attaches the sink this operation's business logic
	// must call (via SendResponse) exactly once it has a result. The
	// invocation engine attaches this on every dispatch; it is the only
	// hook this core has into an otherwise opaque operation's execution.
	SetResponseHandler(ResponseHandler)

	// SendResponse delivers result to whatever handler SetResponseHandler
	// last installed. A nil handler makes this a no-op, matching an
	// operation that is never actually run (e.g. a failed local dispatch).
	SendResponse(result interface{})
}

// ResponseHandler receives an operation's outcome, nil included: nil is a
// deliberate successful null result, distinct from "no response yet".
type ResponseHandler func(result interface{})

// Runnable is implemented by the handful of operations this core knows how
// to execute itself (currently only IsStillExecutingOperation). Arbitrary
// business operations are an external collaborator's concern and are never
// asserted against this interface outside the transport layer's built-in
// dispatch of reserved service operations.
type Runnable interface {
	Run(ctx context.Context, services OperationService)
}

// PayloadMarshaler is implemented by operations that carry a serializable
// payload beyond the routing metadata BaseOperation already tracks. An
// operation that doesn't implement it (none currently ship outside this
// core's own IsStillExecutingOperation) dispatches with an empty payload,
// leaving whatever business-specific serialization it needs to an external
// collaborator.
type PayloadMarshaler interface {
	MarshalPayload() ([]byte, error)
}

// BaseOperation is the common, embeddable implementation of Operation.
// Concrete operation types embed it and get all the routing-metadata
// plumbing for free, plus defaults for IsJoinOperation and SupportsWaiting
// that they override where needed (alongside whatever domain
// fields/serialization they need).
type BaseOperation struct {
	serviceName     string
	partitionID     int32
	replicaIndex    int32
	callerAddress   Address
	callID          int64
	invocationTime  int64
	callTimeout     int64
	responseHandler ResponseHandler
}

func (o *BaseOperation) ServiceName() string         { return o.serviceName }
func (o *BaseOperation) SetServiceName(s string)      { o.serviceName = s }
func (o *BaseOperation) PartitionID() int32           { return o.partitionID }
func (o *BaseOperation) SetPartitionID(p int32)       { o.partitionID = p }
func (o *BaseOperation) ReplicaIndex() int32          { return o.replicaIndex }
func (o *BaseOperation) SetReplicaIndex(r int32)      { o.replicaIndex = r }
func (o *BaseOperation) CallerAddress() Address       { return o.callerAddress }
func (o *BaseOperation) SetCallerAddress(a Address)   { o.callerAddress = a }
func (o *BaseOperation) CallID() int64                { return o.callID }
func (o *BaseOperation) SetCallID(id int64)           { o.callID = id }
func (o *BaseOperation) InvocationTime() int64        { return o.invocationTime }
func (o *BaseOperation) SetInvocationTime(t int64)    { o.invocationTime = t }
func (o *BaseOperation) CallTimeout() int64           { return o.callTimeout }
func (o *BaseOperation) SetCallTimeout(t int64)       { o.callTimeout = t }

// IsJoinOperation defaults to false; join-style operations override it.
func (o *BaseOperation) IsJoinOperation() bool { return false }

// SupportsWaiting defaults to "no bounded wait"; operations with one
// (lock acquire, map tryPut, ...) override it.
func (o *BaseOperation) SupportsWaiting() (int64, bool) { return 0, false }

func (o *BaseOperation) SetResponseHandler(h ResponseHandler) { o.responseHandler = h }

func (o *BaseOperation) SendResponse(result interface{}) {
	if o.responseHandler != nil {
		o.responseHandler(result)
	}
}
