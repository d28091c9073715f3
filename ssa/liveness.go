package ssa

import (
	"sort"

	"github.com/deepnoodle-ai/methodc/ir"
)

// Liveness is a read-only view over an SSA graph describing when each value is
// live, expressed as intervals over a linearization of the blocks. It is
// consumed by the register allocator and becomes invalid as soon as the graph
// changes again.
type Liveness struct {
	// Intervals, sorted by ascending Start. One per live value.
	Intervals []Interval

	blockStart []int
	blockEnd   []int
}

// Interval is the live range of one value in linearized positions, both ends
// inclusive.
type Interval struct {
	Value ir.ValueID
	Start int
	End   int
}

// Analyze computes liveness for an SSA graph. Must run strictly after all
// optimization passes: passes change value lifetimes.
func Analyze(g *ir.Graph) *Liveness {
	if !g.InSSA {
		panic("ssa: liveness requires SSA form")
	}

	order := g.ReversePostorder()
	l := &Liveness{
		blockStart: make([]int, g.NumBlocks()),
		blockEnd:   make([]int, g.NumBlocks()),
	}

	// Linearize: phis share their block's start position, instructions get one
	// position each.
	pos := make([]int, g.NumValues())
	p := 0
	for _, bid := range order {
		b := g.Block(bid)
		l.blockStart[bid] = p
		for _, id := range b.Phis {
			pos[id] = p
		}
		for _, id := range b.Instrs {
			pos[id] = p
			p++
		}
		l.blockEnd[bid] = p
	}

	liveIn := newSets(g.NumBlocks())
	liveOut := newSets(g.NumBlocks())

	// Backward fixpoint. Phi inputs count as uses at the end of the matching
	// predecessor, not as live-in of the phi's block.
	for changed := true; changed; {
		changed = false
		for i := len(order) - 1; i >= 0; i-- {
			bid := order[i]
			b := g.Block(bid)
			out := map[ir.ValueID]struct{}{}
			for _, s := range b.Succs {
				sb := g.Block(s)
				for v := range liveIn[s] {
					out[v] = struct{}{}
				}
				// Remove the successor's phi defs; add our phi inputs.
				for _, id := range sb.Phis {
					delete(out, id)
				}
				slot := predIndex(sb, bid)
				for _, id := range sb.Phis {
					if arg := g.Instr(id).Args[slot]; arg != ir.NoValue {
						out[arg] = struct{}{}
					}
				}
			}
			in := map[ir.ValueID]struct{}{}
			for v := range out {
				in[v] = struct{}{}
			}
			for j := len(b.Instrs) - 1; j >= 0; j-- {
				instr := g.Instr(b.Instrs[j])
				delete(in, b.Instrs[j])
				for _, a := range instr.Args {
					in[a] = struct{}{}
				}
			}
			for _, id := range b.Phis {
				delete(in, id)
			}
			if !sameSet(liveOut[bid], out) || !sameSet(liveIn[bid], in) {
				liveOut[bid] = out
				liveIn[bid] = in
				changed = true
			}
		}
	}

	// Build intervals: start at the definition, end at the last use or the end
	// of any block the value is live out of.
	start := make(map[ir.ValueID]int)
	end := make(map[ir.ValueID]int)
	note := func(v ir.ValueID, at int) {
		if cur, ok := end[v]; !ok || at > cur {
			end[v] = at
		}
	}
	for _, bid := range order {
		b := g.Block(bid)
		for _, id := range b.Phis {
			start[id] = pos[id]
			note(id, pos[id])
		}
		for _, id := range b.Instrs {
			in := g.Instr(id)
			if in.Op.HasValue() {
				start[id] = pos[id]
				note(id, pos[id])
			}
			for _, a := range in.Args {
				note(a, pos[id])
			}
		}
		for v := range liveOut[bid] {
			note(v, l.blockEnd[bid]-1)
		}
	}

	// Values live into a loop header stay live across the whole loop: extend
	// them to the end of every back-edge source.
	for i := 0; i < g.NumBlocks(); i++ {
		b := g.Block(ir.BlockID(i))
		for _, s := range b.Succs {
			if !g.Dominates(s, b.ID) {
				continue
			}
			for v := range liveIn[s] {
				note(v, l.blockEnd[b.ID]-1)
			}
		}
	}

	for v, st := range start {
		l.Intervals = append(l.Intervals, Interval{Value: v, Start: st, End: end[v]})
	}
	sort.Slice(l.Intervals, func(i, j int) bool {
		a, b := l.Intervals[i], l.Intervals[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Value < b.Value
	})
	return l
}

// MaxLive returns the maximum number of simultaneously live values. The
// feasibility gate runs before liveness exists, so it cannot consult this;
// it measures the pressure the allocator actually faced.
func (l *Liveness) MaxLive() int {
	type event struct{ at, delta int }
	var events []event
	for _, iv := range l.Intervals {
		events = append(events, event{iv.Start, 1}, event{iv.End + 1, -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at != events[j].at {
			return events[i].at < events[j].at
		}
		return events[i].delta < events[j].delta
	})
	cur, max := 0, 0
	for _, e := range events {
		cur += e.delta
		if cur > max {
			max = cur
		}
	}
	return max
}

func predIndex(b *ir.Block, pred ir.BlockID) int {
	for i, p := range b.Preds {
		if p == pred {
			return i
		}
	}
	return -1
}

func newSets(n int) []map[ir.ValueID]struct{} {
	s := make([]map[ir.ValueID]struct{}, n)
	for i := range s {
		s[i] = map[ir.ValueID]struct{}{}
	}
	return s
}

func sameSet(a, b map[ir.ValueID]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if _, ok := b[v]; !ok {
			return false
		}
	}
	return true
}
