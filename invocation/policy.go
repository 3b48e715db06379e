package invocation

import "github.com/nawzhin/distgrid/grid"

// NestedPolicy decides whether a child Operation may be invoked from
// within the handler of a parent Operation. The source system this core is
// modeled on carries a disabled rule set here (partition-level vs.
// key-based vs. partition-aware operations, matching partition ids); spec
// §9 leaves it an open question and asks only for a pluggable hook so a
// real policy can be added later without reshaping Dispatch. parent is nil
// for a top-level call.
type NestedPolicy func(parent, child grid.Operation) bool

// AllowAllNested is the default NestedPolicy: no nesting restriction.
func AllowAllNested(parent, child grid.Operation) bool { return true }
