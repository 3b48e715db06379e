package invocation

import (
	"context"

	"github.com/nawzhin/distgrid/grid"
	"github.com/nawzhin/distgrid/rlog"
	"github.com/nawzhin/distgrid/wireproto"
)

// LivenessServiceName is the reserved service name for the IsStillExecuting
// sub-invocation, mirroring how clusterrpc reserves the "__CLUSTERRPC"
// service/"Health" endpoint pair for its own built-in health check. The
// transport layer dispatches this name straight to a built-in handler
// instead of a registered business Handler.
const LivenessServiceName = "__DISTGRID"

// livenessCallTimeout bounds the probe itself, independently of the probed
// call's own callTimeout.
const livenessCallTimeout = 5000

// IsStillExecutingOperation is the one operation type this core ships a
// concrete implementation for: "is call Probe still running on you?". The
// answer always comes back through SendResponse, same as every other
// operation.
type IsStillExecutingOperation struct {
	grid.BaseOperation
	Probe int64
}

func NewIsStillExecutingOperation(probeCallID int64) *IsStillExecutingOperation {
	return &IsStillExecutingOperation{Probe: probeCallID}
}

// MarshalPayload implements grid.PayloadMarshaler so the transport layer
// can put this operation on the wire without knowing its concrete type.
func (op *IsStillExecutingOperation) MarshalPayload() ([]byte, error) {
	return wireproto.MarshalIsStillExecuting(op.Probe)
}

// Run answers the probe on the responding side: ask the local
// OperationService whether it is still executing Probe on caller's behalf
// and send the boolean back. The generic operation-execution thread pool
// that would normally run arbitrary business logic is out of scope for this
// core, but this one reserved operation's behavior is fully specified, so
// the transport layer invokes Run directly instead of treating it as opaque.
func (op *IsStillExecutingOperation) Run(ctx context.Context, services grid.OperationService) {
	executing := services.IsOperationExecuting(ctx, op.CallerAddress(), op.Probe)
	op.SendResponse(executing)
}

// IsStillExecuting issues a nested, non-retrying liveness sub-invocation
// and reduces any failure of the probe itself to "not executing" at warn
// level — a failed probe must never wedge the parent Future's retry loop.
func IsStillExecuting(ctx context.Context, services grid.OperationService, cluster grid.ClusterService, target grid.Address, callID int64) bool {
	op := NewIsStillExecutingOperation(callID)
	f := NewTargetInvocation(LivenessServiceName, op, target, 0, 0, livenessCallTimeout, services, cluster)

	if _, err := f.Invoke(ctx); err != nil {
		rlog.Warnf("invocation: liveness probe for call %d could not be dispatched: %v", callID, err)
		return false
	}

	result, err := f.Get(ctx, livenessCallTimeout)
	if err != nil {
		rlog.Warnf("invocation: liveness probe for call %d failed: %v", callID, err)
		return false
	}

	executing, ok := result.(bool)
	if !ok {
		rlog.Warnf("invocation: liveness probe for call %d returned unexpected type %T", callID, result)
		return false
	}
	return executing
}
