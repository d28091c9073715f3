package regalloc

import (
	"fmt"
	"sort"

	"github.com/deepnoodle-ai/methodc/ir"
	"github.com/deepnoodle-ai/methodc/isa"
	"github.com/deepnoodle-ai/methodc/ssa"
)

// Allocator produces a register assignment from liveness computed on the
// final optimized graph.
type Allocator interface {
	Allocate(g *ir.Graph, live *ssa.Liveness, set isa.Set) (*Assignment, error)
}

// LinearScan is the default allocator: a single pass over live intervals in
// start order, expiring finished intervals and spilling the one that ends
// furthest away when the register file is exhausted.
type LinearScan struct{}

// calleeSavedFrom is the first register index treated as callee-saved when
// computing the spill mask.
const calleeSavedFrom = 4

// Allocate implements Allocator.
func (LinearScan) Allocate(g *ir.Graph, live *ssa.Liveness, set isa.Set) (*Assignment, error) {
	if !CanAllocateFor(g, set) {
		return nil, fmt.Errorf("regalloc: infeasible graph reached the allocator for %s", set)
	}

	numRegs := isa.CoreRegisters(set)
	free := make([]bool, numRegs)
	for i := range free {
		free[i] = true
	}

	type activeInterval struct {
		iv  ssa.Interval
		reg int
	}
	var active []activeInterval
	a := &Assignment{locations: make(map[ir.ValueID]Location, len(live.Intervals))}
	nextSlot := 0

	expire := func(start int) {
		kept := active[:0]
		for _, act := range active {
			if act.iv.End < start {
				free[act.reg] = true
				continue
			}
			kept = append(kept, act)
		}
		active = kept
	}

	for _, iv := range live.Intervals {
		expire(iv.Start)

		reg := -1
		for r := 0; r < numRegs; r++ {
			if free[r] {
				reg = r
				break
			}
		}
		if reg >= 0 {
			free[reg] = false
			active = append(active, activeInterval{iv: iv, reg: reg})
			sort.SliceStable(active, func(i, j int) bool { return active[i].iv.End < active[j].iv.End })
			a.locations[iv.Value] = Location{Kind: InRegister, Index: reg}
			if reg >= calleeSavedFrom {
				a.coreSpillMask |= 1 << uint(reg)
			}
			continue
		}

		// No free register: spill whichever of the current interval and the
		// furthest-ending active one lives longer.
		last := &active[len(active)-1]
		if last.iv.End > iv.End {
			a.locations[iv.Value] = a.locations[last.iv.Value]
			a.locations[last.iv.Value] = Location{Kind: OnStack, Index: nextSlot}
			nextSlot++
			last.iv = iv
			sort.SliceStable(active, func(i, j int) bool { return active[i].iv.End < active[j].iv.End })
		} else {
			a.locations[iv.Value] = Location{Kind: OnStack, Index: nextSlot}
			nextSlot++
		}
	}

	a.frameSize = frameSize(set, nextSlot)
	return a, nil
}

// frameSize computes the frame for the given spill slot count: saved return
// address and frame pointer plus the slots, aligned to 16 bytes.
func frameSize(set isa.Set, slots int) int {
	word := 4
	if set == isa.ARM64 || set == isa.X86_64 {
		word = 8
	}
	size := (2 + slots) * word
	if rem := size % 16; rem != 0 {
		size += 16 - rem
	}
	return size
}
