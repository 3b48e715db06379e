package invocation

import "github.com/nawzhin/distgrid/grid"

// TargetResolver is the single capability distinguishing the two
// invocation shapes this core supports: PartitionTarget and FixedTarget
// differ only in Resolve, so they compose with Future rather than forming
// a type hierarchy.
type TargetResolver interface {
	// Resolve returns the current responsible member address, or
	// ok=false if there currently is none (e.g. an unassigned
	// partition) — the Future treats that as a retryable
	// WrongTargetError.
	Resolve() (grid.Address, bool)

	PartitionID() int32
	ReplicaIndex() int32
}

// PartitionTarget resolves against the current partition table on every
// call, so that a migration mid-retry is observed.
type PartitionTarget struct {
	Partitions   grid.PartitionService
	partitionID  int32
	replicaIndex int32
}

func NewPartitionTarget(partitions grid.PartitionService, partitionID, replicaIndex int32) *PartitionTarget {
	return &PartitionTarget{Partitions: partitions, partitionID: partitionID, replicaIndex: replicaIndex}
}

func (t *PartitionTarget) Resolve() (grid.Address, bool) {
	return t.Partitions.Owner(t.partitionID, t.replicaIndex)
}

func (t *PartitionTarget) PartitionID() int32  { return t.partitionID }
func (t *PartitionTarget) ReplicaIndex() int32 { return t.replicaIndex }

// FixedTarget always resolves to the address it was constructed with; it
// never reports "no target" since the address is supplied by the caller,
// not looked up.
type FixedTarget struct {
	Address grid.Address
}

func NewFixedTarget(addr grid.Address) *FixedTarget {
	return &FixedTarget{Address: addr}
}

func (t *FixedTarget) Resolve() (grid.Address, bool) { return t.Address, true }

// FixedTarget has no partition of its own; -1 signals "not
// partition-targeted" to logging/tracing code that inspects it.
func (t *FixedTarget) PartitionID() int32  { return -1 }
func (t *FixedTarget) ReplicaIndex() int32 { return 0 }
