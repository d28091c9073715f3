// Package regalloc assigns each IR value a physical register or stack slot.
//
// Entry to allocation is gated by a pure feasibility predicate; the
// orchestrator falls back to baseline compilation whenever the predicate
// rejects a (graph, instruction set) pair. Allocation itself therefore cannot
// fail on gated input; an error from Allocate is an invariant violation, not a
// per-method condition.
package regalloc

import (
	"fmt"

	"github.com/deepnoodle-ai/methodc/ir"
	"github.com/deepnoodle-ai/methodc/isa"
)

// LocationKind distinguishes register and stack assignments.
type LocationKind uint8

const (
	InRegister LocationKind = iota
	OnStack
)

// Location is one value's assigned position: a core register index or a
// stack slot index.
type Location struct {
	Kind  LocationKind
	Index int
}

// String formats the location for diagnostics.
func (l Location) String() string {
	if l.Kind == InRegister {
		return fmt.Sprintf("r%d", l.Index)
	}
	return fmt.Sprintf("[sp+%d]", l.Index)
}

// Assignment maps every live IR value to a location, with the resulting frame
// size and core-register spill mask. It is produced once per optimized
// compilation and never mutated after.
type Assignment struct {
	locations     map[ir.ValueID]Location
	frameSize     int
	coreSpillMask uint32
}

// Location returns the assigned location of a value.
func (a *Assignment) Location(v ir.ValueID) (Location, bool) {
	loc, ok := a.locations[v]
	return loc, ok
}

// FrameSize returns the stack frame size in bytes.
func (a *Assignment) FrameSize() int { return a.frameSize }

// CoreSpillMask returns the bitmask of callee-saved core registers the frame
// must preserve.
func (a *Assignment) CoreSpillMask() uint32 { return a.coreSpillMask }

// NumAssigned returns the number of values holding a location.
func (a *Assignment) NumAssigned() int { return len(a.locations) }

// Supports reports whether the allocator handles the instruction set at all.
// Distinct from per-graph feasibility: a supported set can still reject an
// individual graph.
func Supports(set isa.Set) bool {
	return isa.CoreRegisters(set) > 0
}

// CanAllocateFor is the pure feasibility predicate consulted before the
// optimized path is entered. It rejects graphs containing operations the
// allocator cannot model on the target: division needs either a hardware
// divider or fixed-register runtime support, available only on the 64-bit
// targets here. It also cuts off pathological register pressure.
func CanAllocateFor(g *ir.Graph, set isa.Set) bool {
	if !Supports(set) {
		return false
	}
	if g.NumRegisters > 8*isa.CoreRegisters(set) {
		return false
	}
	for i := 0; i < g.NumValues(); i++ {
		in := g.Instr(ir.ValueID(i))
		if in.Removed() {
			continue
		}
		if in.Op == ir.Div && set != isa.ARM64 && set != isa.X86_64 {
			return false
		}
	}
	return true
}
