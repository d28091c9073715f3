// Package ssa converts a freshly built IR graph into static single assignment
// form and derives the analyses the rest of the pipeline consumes: the
// dominator tree, natural loops, and value liveness.
//
// Construction runs exactly once per graph, after the builder and before any
// optimization pass. The algorithms follow Cooper, Harvey and Kennedy's
// iterative dominance construction and the standard dominance-frontier phi
// placement with stack-based renaming.
package ssa

import (
	"fmt"

	"github.com/deepnoodle-ai/methodc/ir"
)

// Transform converts the graph to SSA form in place: computes the dominator
// tree, inserts phi nodes at dominance frontiers, and renames every local
// access into direct value flow. Preconditions are enforced as assertions: the
// graph must be well-formed and not already in SSA form.
func Transform(g *ir.Graph) {
	if g.InSSA {
		panic("ssa: graph already transformed")
	}
	if err := ir.Check(g); err != nil {
		panic(fmt.Sprintf("ssa: malformed graph on entry: %v", err))
	}

	splitCriticalEdges(g)

	t := &transform{g: g}
	t.computeDominators()
	t.computeFrontiers()
	t.insertPhis()
	t.rename()

	g.SetDominators(t.idom)
	g.InSSA = true
}

// FindNaturalLoops marks every block that heads a natural loop, identified by
// a back edge whose target dominates its source. Requires SSA form.
func FindNaturalLoops(g *ir.Graph) {
	if !g.InSSA {
		panic("ssa: loop discovery requires SSA form")
	}
	for i := 0; i < g.NumBlocks(); i++ {
		b := g.Block(ir.BlockID(i))
		for _, s := range b.Succs {
			if g.Dominates(s, b.ID) {
				g.Block(s).LoopHeader = true
			}
		}
	}
}

// splitCriticalEdges inserts a forwarding block on every edge from a
// multi-successor block to a multi-predecessor block. Codegen later places
// phi transfers at the end of predecessor blocks, which is only sound when no
// such edge remains.
func splitCriticalEdges(g *ir.Graph) {
	for i, n := 0, g.NumBlocks(); i < n; i++ {
		from := ir.BlockID(i)
		if len(g.Block(from).Succs) < 2 {
			continue
		}
		for si := range g.Block(from).Succs {
			to := g.Block(from).Succs[si]
			if len(g.Block(to).Preds) < 2 {
				continue
			}
			// NewBlock may grow the backing slice, so blocks are re-fetched
			// after every structural change.
			mid := g.NewBlock(g.Block(to).Offset)
			g.NewInstr(mid, ir.Instruction{Op: ir.Goto, Offset: g.Block(to).Offset})
			g.Block(from).Succs[si] = mid
			g.Block(mid).Preds = append(g.Block(mid).Preds, from)
			g.Block(mid).Succs = append(g.Block(mid).Succs, to)
			preds := g.Block(to).Preds
			for pi, p := range preds {
				if p == from {
					preds[pi] = mid
					break
				}
			}
		}
	}
}

type transform struct {
	g *ir.Graph

	order    []ir.BlockID // reverse postorder
	rpoIndex []int
	idom     []ir.BlockID
	children [][]ir.BlockID // dominator tree
	front    [][]ir.BlockID // dominance frontiers

	stacks    [][]ir.ValueID // per-local definition stacks
	zeroValue ir.ValueID
}

// computeDominators runs the iterative RPO dataflow of Cooper/Harvey/Kennedy.
func (t *transform) computeDominators() {
	g := t.g
	t.order = g.ReversePostorder()
	t.rpoIndex = make([]int, g.NumBlocks())
	for i, b := range t.order {
		t.rpoIndex[b] = i
	}
	t.idom = make([]ir.BlockID, g.NumBlocks())
	for i := range t.idom {
		t.idom[i] = ir.NoBlock
	}
	t.idom[g.Entry] = g.Entry

	for changed := true; changed; {
		changed = false
		for _, b := range t.order {
			if b == g.Entry {
				continue
			}
			newIdom := ir.NoBlock
			for _, p := range g.Block(b).Preds {
				if t.idom[p] == ir.NoBlock {
					continue
				}
				if newIdom == ir.NoBlock {
					newIdom = p
				} else {
					newIdom = t.intersect(p, newIdom)
				}
			}
			if newIdom != ir.NoBlock && t.idom[b] != newIdom {
				t.idom[b] = newIdom
				changed = true
			}
		}
	}

	t.children = make([][]ir.BlockID, g.NumBlocks())
	for i := 0; i < g.NumBlocks(); i++ {
		b := ir.BlockID(i)
		if d := t.idom[b]; d != ir.NoBlock && d != b {
			t.children[d] = append(t.children[d], b)
		}
	}
}

func (t *transform) intersect(b1, b2 ir.BlockID) ir.BlockID {
	for b1 != b2 {
		for t.rpoIndex[b1] > t.rpoIndex[b2] {
			b1 = t.idom[b1]
		}
		for t.rpoIndex[b2] > t.rpoIndex[b1] {
			b2 = t.idom[b2]
		}
	}
	return b1
}

func (t *transform) computeFrontiers() {
	g := t.g
	t.front = make([][]ir.BlockID, g.NumBlocks())
	for i := 0; i < g.NumBlocks(); i++ {
		b := g.Block(ir.BlockID(i))
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			runner := p
			for runner != ir.NoBlock && runner != t.idom[b.ID] {
				t.addFrontier(runner, b.ID)
				runner = t.idom[runner]
			}
		}
	}
}

func (t *transform) addFrontier(block, frontier ir.BlockID) {
	for _, f := range t.front[block] {
		if f == frontier {
			return
		}
	}
	t.front[block] = append(t.front[block], frontier)
}

// insertPhis places a phi for each local at the iterated dominance frontier of
// its definition sites.
func (t *transform) insertPhis() {
	g := t.g
	for local := 0; local < g.NumRegisters; local++ {
		var work []ir.BlockID
		onList := make([]bool, g.NumBlocks())
		hasPhi := make([]bool, g.NumBlocks())
		for i := 0; i < g.NumBlocks(); i++ {
			b := g.Block(ir.BlockID(i))
			for _, id := range b.Instrs {
				in := g.Instr(id)
				if in.Op == ir.StoreLocal && in.Local == local {
					if !onList[b.ID] {
						onList[b.ID] = true
						work = append(work, b.ID)
					}
					break
				}
			}
		}
		for len(work) > 0 {
			n := work[len(work)-1]
			work = work[:len(work)-1]
			for _, d := range t.front[n] {
				if hasPhi[d] {
					continue
				}
				hasPhi[d] = true
				args := make([]ir.ValueID, len(g.Block(d).Preds))
				for i := range args {
					args[i] = ir.NoValue
				}
				g.NewInstr(d, ir.Instruction{Op: ir.Phi, Local: local, Args: args, Offset: g.Block(d).Offset})
				if !onList[d] {
					onList[d] = true
					work = append(work, d)
				}
			}
		}
	}
}

// rename walks the dominator tree replacing every local access with the
// reaching definition and filling phi inputs at block edges.
func (t *transform) rename() {
	t.zeroValue = ir.NoValue
	t.stacks = make([][]ir.ValueID, t.g.NumRegisters)
	t.renameBlock(t.g.Entry)
}

func (t *transform) renameBlock(block ir.BlockID) {
	g := t.g
	b := g.Block(block)

	saved := make([]int, len(t.stacks))
	for i := range t.stacks {
		saved[i] = len(t.stacks[i])
	}

	for _, id := range b.Phis {
		t.push(g.Instr(id).Local, id)
	}
	// Copy the list: removing loads and stores mutates b.Instrs.
	instrs := append([]ir.ValueID(nil), b.Instrs...)
	for _, id := range instrs {
		in := g.Instr(id)
		switch in.Op {
		case ir.LoadLocal:
			g.ReplaceUses(id, t.current(in.Local))
			g.Remove(id)
		case ir.StoreLocal:
			t.push(in.Local, in.Args[0])
			g.Remove(id)
		}
	}

	for _, succ := range b.Succs {
		sb := g.Block(succ)
		predIdx := -1
		for i, p := range sb.Preds {
			if p == block {
				predIdx = i
				break
			}
		}
		if predIdx < 0 {
			continue
		}
		for _, id := range sb.Phis {
			phi := g.Instr(id)
			phi.Args[predIdx] = t.current(phi.Local)
		}
	}

	for _, child := range t.children[block] {
		t.renameBlock(child)
	}

	for i := range t.stacks {
		t.stacks[i] = t.stacks[i][:saved[i]]
	}
}

func (t *transform) push(local int, def ir.ValueID) {
	t.stacks[local] = append(t.stacks[local], def)
}

// current returns the reaching definition for a local, materializing a shared
// zero constant for locals read before any store. The verifier upstream rules
// this out for real methods, so the constant is almost always dead.
func (t *transform) current(local int) ir.ValueID {
	stack := t.stacks[local]
	if len(stack) > 0 {
		return stack[len(stack)-1]
	}
	if t.zeroValue == ir.NoValue {
		t.zeroValue = t.defineZero()
	}
	return t.zeroValue
}

// defineZero inserts a zero constant at the top of the entry block, ahead of
// the terminator, so it dominates every use.
func (t *transform) defineZero() ir.ValueID {
	g := t.g
	id := g.NewInstr(g.Entry, ir.Instruction{Op: ir.Const})
	e := g.Block(g.Entry)
	n := len(e.Instrs)
	e.Instrs[n-1], e.Instrs[n-2] = e.Instrs[n-2], e.Instrs[n-1]
	return id
}
