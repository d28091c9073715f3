package ir

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Check verifies the graph's structural well-formedness and returns every
// violation found, aggregated into one error. A non-nil result after a pass
// is an internal compiler error, never a per-method outcome.
//
// Checked: block/terminator shape, pred/succ symmetry, operand validity, phi
// arity, and (once the graph is in SSA form) the absence of local accesses and
// dominance consistency of every use.
func Check(g *Graph) error {
	var result *multierror.Error

	for bi := range g.blocks {
		b := &g.blocks[bi]
		if len(b.Instrs) == 0 {
			result = multierror.Append(result, fmt.Errorf("block %d: empty", b.ID))
			continue
		}
		for i, id := range b.Instrs {
			in := g.Instr(id)
			if in.removed {
				result = multierror.Append(result, fmt.Errorf("block %d: removed instruction v%d still listed", b.ID, id))
			}
			if in.Block != b.ID {
				result = multierror.Append(result, fmt.Errorf("block %d: instruction v%d claims block %d", b.ID, id, in.Block))
			}
			last := i == len(b.Instrs)-1
			if last && !in.Op.IsTerminator() {
				result = multierror.Append(result, fmt.Errorf("block %d: last instruction v%d (%s) is not a terminator", b.ID, id, in.Op))
			}
			if !last && in.Op.IsTerminator() {
				result = multierror.Append(result, fmt.Errorf("block %d: terminator v%d (%s) mid-block", b.ID, id, in.Op))
			}
		}
		if term := b.Terminator(); term != NoValue {
			want := -1
			switch g.Instr(term).Op {
			case Goto:
				want = 1
			case If:
				want = 2
			case Return, ReturnVoid:
				want = 0
			}
			if want >= 0 && len(b.Succs) != want {
				result = multierror.Append(result, fmt.Errorf("block %d: %s terminator with %d successors", b.ID, g.Instr(term).Op, len(b.Succs)))
			}
		}
		for _, s := range b.Succs {
			if !containsBlock(g.blocks[s].Preds, b.ID) {
				result = multierror.Append(result, fmt.Errorf("block %d: successor %d does not list it as predecessor", b.ID, s))
			}
		}
		for _, p := range b.Preds {
			if !containsBlock(g.blocks[p].Succs, b.ID) {
				result = multierror.Append(result, fmt.Errorf("block %d: predecessor %d does not list it as successor", b.ID, p))
			}
		}
		for _, id := range b.Phis {
			in := g.Instr(id)
			if in.Op != Phi {
				result = multierror.Append(result, fmt.Errorf("block %d: non-phi v%d in phi list", b.ID, id))
				continue
			}
			if len(in.Args) != len(b.Preds) {
				result = multierror.Append(result, fmt.Errorf("block %d: phi v%d has %d inputs for %d predecessors", b.ID, id, len(in.Args), len(b.Preds)))
			}
		}
	}

	for i := range g.instrs {
		in := &g.instrs[i]
		if in.removed {
			continue
		}
		for _, a := range in.Args {
			if a < 0 || int(a) >= len(g.instrs) {
				result = multierror.Append(result, fmt.Errorf("v%d: operand v%d out of range", i, a))
				continue
			}
			def := g.Instr(a)
			if def.removed {
				result = multierror.Append(result, fmt.Errorf("v%d: dangling use of removed v%d", i, a))
			}
			if !def.Op.HasValue() {
				result = multierror.Append(result, fmt.Errorf("v%d: operand v%d (%s) defines no value", i, a, def.Op))
			}
		}
	}

	if g.InSSA {
		if ssaErr := checkSSA(g); ssaErr != nil {
			result = multierror.Append(result, ssaErr.Errors...)
		}
	}
	return result.ErrorOrNil()
}

// checkSSA verifies the SSA-only invariants: locals are gone and every use is
// dominated by its definition.
func checkSSA(g *Graph) *multierror.Error {
	var result *multierror.Error
	for i := range g.instrs {
		in := &g.instrs[i]
		if in.removed {
			continue
		}
		if in.Op == LoadLocal || in.Op == StoreLocal {
			result = multierror.Append(result, fmt.Errorf("v%d: %s remains after SSA construction", i, in.Op))
			continue
		}
		if in.Op == Phi {
			// A phi input must be available at the end of the matching
			// predecessor, not at the phi itself.
			b := g.Block(in.Block)
			for j, a := range in.Args {
				if j >= len(b.Preds) {
					break
				}
				def := g.Instr(a)
				if !g.Dominates(def.Block, b.Preds[j]) {
					result = multierror.Append(result, fmt.Errorf("phi v%d: input v%d does not dominate predecessor %d", i, a, b.Preds[j]))
				}
			}
			continue
		}
		for _, a := range in.Args {
			def := g.Instr(a)
			if def.Block == in.Block {
				continue
			}
			if !g.Dominates(def.Block, in.Block) {
				result = multierror.Append(result, fmt.Errorf("v%d: use of v%d not dominated by its definition", i, a))
			}
		}
	}
	return result
}

func containsBlock(list []BlockID, id BlockID) bool {
	for _, b := range list {
		if b == id {
			return true
		}
	}
	return false
}
