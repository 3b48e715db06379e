package transport

import (
	"context"
	"sync"

	"github.com/nawzhin/distgrid/clock"
	"github.com/nawzhin/distgrid/grid"
	"github.com/nawzhin/distgrid/invocation"
	"github.com/nawzhin/distgrid/rlog"
	"github.com/nawzhin/distgrid/security"
)

// executionKey identifies one in-flight local operation for the purposes
// of IsOperationExecuting: the (caller, callID) pair the caller itself
// used to dispatch it, since callID alone is only unique per-caller.
type executionKey struct {
	caller grid.Address
	callID int64
}

// Service is the default, ZeroMQ-backed implementation of
// grid.OperationService, grid.ClusterService and grid.PartitionService,
// wiring together a Dialer (outbound), a Server (inbound), a
// CallRegistry (pending remote calls) and a localPool (local dispatch),
// the way clusterrpc.Server and clusterrpc.Client jointly make up "the
// node" in that codebase, just unified behind the one interface this
// core's Invocation Future depends on.
type Service struct {
	self     grid.Address
	registry *invocation.CallRegistry
	dialer   *Dialer
	server   *Server
	pool     *localPool

	defaultCallTimeout int64

	mu        sync.RWMutex
	active    bool
	members   map[grid.Address]grid.Member
	owners    map[partitionKey]grid.Address
	executing map[executionKey]bool
}

type partitionKey struct {
	partitionID  int32
	replicaIndex int32
}

// NewService builds a Service with no Server attached; the caller wires
// one in afterwards with AttachServer, which also calls
// server.SetServices(service) (there is a chicken-and-egg dependency: the
// server's built-in liveness handler needs the service, the service needs
// the server to be listening).
func NewService(self grid.Address, defaultCallTimeout int64, sec *security.Manager, localWorkers, localBacklog int) *Service {
	registry := invocation.NewCallRegistry()
	s := &Service{
		self:               self,
		registry:           registry,
		dialer:             NewDialer(self, sec, registry),
		pool:               newLocalPool(localWorkers, localBacklog),
		defaultCallTimeout: defaultCallTimeout,
		active:             true,
		members:            make(map[grid.Address]grid.Member),
		owners:             make(map[partitionKey]grid.Address),
		executing:          make(map[executionKey]bool),
	}
	return s
}

// AttachServer wires a listening Server to this Service so it can answer
// liveness probes about locally-executing operations.
func (s *Service) AttachServer(srv *Server) {
	s.server = srv
	srv.SetServices(s)
}

// RunOperationLocal implements grid.OperationService. Only operations that
// implement grid.Runnable (currently just the built-in
// IsStillExecutingOperation) are actually executed here; any other
// operation is an external collaborator's business logic and this core
// has no way to run it, so it is logged and given a null response rather
// than left to hang the caller forever.
func (s *Service) RunOperationLocal(op grid.Operation) {
	key := executionKey{caller: op.CallerAddress(), callID: op.CallID()}
	s.mu.Lock()
	s.executing[key] = true
	s.mu.Unlock()

	submitted := s.pool.Submit(func() {
		defer func() {
			s.mu.Lock()
			delete(s.executing, key)
			s.mu.Unlock()
		}()

		runnable, ok := op.(grid.Runnable)
		if !ok {
			rlog.Warnf("transport: local operation for service %q has no Run method; sending null response", op.ServiceName())
			op.SendResponse(nil)
			return
		}
		timeout := op.CallTimeout()
		if timeout <= 0 {
			timeout = s.defaultCallTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), clock.Duration(timeout))
		defer cancel()
		runnable.Run(ctx, s)
	})
	if !submitted {
		rlog.Warnf("transport: local dispatch pool full, rejecting service %q call", op.ServiceName())
		s.mu.Lock()
		delete(s.executing, key)
		s.mu.Unlock()
		op.SendResponse(&invocation.RetryableError{Cause: errOverloaded})
	}
}

var errOverloaded = overloadedError{}

type overloadedError struct{}

func (overloadedError) Error() string { return "local dispatch pool overloaded" }

func (s *Service) Send(op grid.Operation, target grid.Address) bool {
	return s.dialer.Send(op, target)
}

func (s *Service) RegisterCall(f grid.CallWaiter) int64 {
	return s.registry.Register(f)
}

func (s *Service) DeregisterCall(callID int64) {
	s.registry.Deregister(callID)
}

func (s *Service) DefaultCallTimeout() int64 {
	return s.defaultCallTimeout
}

// IsOperationExecuting answers the liveness probe for both directions: if
// target is this node, consult the local bookkeeping directly; this
// method is only ever invoked with target==self because the probe's own
// Invocation Future dispatches it exactly like any other operation, local
// or remote, and RunOperationLocal/the server's built-in handler are what
// actually call it.
func (s *Service) IsOperationExecuting(ctx context.Context, caller grid.Address, callID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.executing[executionKey{caller: caller, callID: callID}]
}

func (s *Service) ThisAddress() grid.Address {
	return s.self
}

// ClusterTime stands in for a synchronized cluster clock with this node's
// own monotonic clock.NowMillis, which counts from process start and is
// not comparable across nodes; this core implements no time-sync protocol.
func (s *Service) ClusterTime() int64 {
	return clock.NowMillis()
}

func (s *Service) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive flips this node's active flag, e.g. during orderly shutdown:
// every in-flight Get immediately escalates absorbed interruptions into a
// terminal InactiveNodeError once this flips false.
func (s *Service) SetActive(active bool) {
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
}

// GetMember implements grid.ClusterService.
func (s *Service) GetMember(addr grid.Address) (grid.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[addr]
	return m, ok
}

// AddMember registers addr as a live cluster member, e.g. after a
// membership-protocol join event (out of this core's scope to implement;
// this is the seam an external collaborator drives).
func (s *Service) AddMember(m grid.Member) {
	s.mu.Lock()
	s.members[m.Address] = m
	s.mu.Unlock()
}

func (s *Service) RemoveMember(addr grid.Address) {
	s.mu.Lock()
	delete(s.members, addr)
	s.mu.Unlock()
}

// Owner implements grid.PartitionService.
func (s *Service) Owner(partitionID, replicaIndex int32) (grid.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.owners[partitionKey{partitionID: partitionID, replicaIndex: replicaIndex}]
	return addr, ok
}

// SetOwner records the current owner of one partition replica, the hook a
// partition-migration driver (out of scope) uses to keep this node's view
// current.
func (s *Service) SetOwner(partitionID, replicaIndex int32, addr grid.Address) {
	s.mu.Lock()
	s.owners[partitionKey{partitionID: partitionID, replicaIndex: replicaIndex}] = addr
	s.mu.Unlock()
}

func (s *Service) ClearOwner(partitionID, replicaIndex int32) {
	s.mu.Lock()
	delete(s.owners, partitionKey{partitionID: partitionID, replicaIndex: replicaIndex})
	s.mu.Unlock()
}

// Stop tears down the dialer's peer connections and the local pool. The
// listening Server, if any, is stopped separately since its lifecycle is
// owned by whoever called AttachServer.
func (s *Service) Stop() {
	s.dialer.Stop()
	s.pool.Stop()
}
