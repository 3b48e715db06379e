package invocation

import (
	"sync"
	"sync/atomic"

	"github.com/nawzhin/distgrid/grid"
)

// CallRegistry maps outstanding call ids to the Future awaiting their
// response, the way clusterrpc's client tags each request with a
// sequence_number and birpc's Endpoint keeps a pending map of in-flight
// *rpc.Call by id. IDs are 64-bit and monotonically increasing for the
// lifetime of the process; wraparound is only safe across a full process
// restart.
type CallRegistry struct {
	nextID int64 // atomic

	mu      sync.Mutex
	pending map[int64]grid.CallWaiter
}

func NewCallRegistry() *CallRegistry {
	return &CallRegistry{pending: make(map[int64]grid.CallWaiter)}
}

// Register atomically allocates a fresh call id and stores the mapping.
// Call ids start at 1 so that 0 can be reserved as "no call id" in
// Operation.CallID()'s zero value.
func (r *CallRegistry) Register(waiter grid.CallWaiter) int64 {
	id := atomic.AddInt64(&r.nextID, 1)

	r.mu.Lock()
	r.pending[id] = waiter
	r.mu.Unlock()

	return id
}

// Route delivers result to the future registered under callID and removes
// the mapping. It reports whether an entry was found; routing to an id
// that has already been deregistered (response arrived after abandonment,
// or a duplicate network delivery) is a no-op, not an error — the routing
// thread must never block on user code.
func (r *CallRegistry) Route(callID int64, result interface{}) bool {
	r.mu.Lock()
	waiter, ok := r.pending[callID]
	if ok {
		delete(r.pending, callID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	waiter.Notify(result)
	return true
}

// Deregister reclaims callID's entry without routing a response, used when
// a Future abandons the call locally (deadline expiry, liveness-confirmed
// timeout, or local node shutdown).
func (r *CallRegistry) Deregister(callID int64) {
	r.mu.Lock()
	delete(r.pending, callID)
	r.mu.Unlock()
}

// Len reports the number of outstanding calls; exposed for leak tests
// asserting that every Call Registry entry a Future creates is eventually
// deregistered.
func (r *CallRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Contains reports whether callID currently has a registered waiter; used
// by tests asserting registry cleanliness.
func (r *CallRegistry) Contains(callID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[callID]
	return ok
}
