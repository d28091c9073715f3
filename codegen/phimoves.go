package codegen

import (
	"fmt"

	"github.com/deepnoodle-ai/methodc/ir"
	"github.com/deepnoodle-ai/methodc/regalloc"
)

// emitPhiMoves transfers phi inputs into phi locations on the edge from a
// single-successor block. The moves are logically parallel: a move may not
// clobber the source of another, so they are ordered topologically and cycles
// are broken through a scratch register.
func (gen *generator) emitPhiMoves(sink *Sink, asg *regalloc.Assignment, from *ir.Block, to ir.BlockID) {
	g := gen.g
	tb := g.Block(to)
	if len(tb.Phis) == 0 {
		return
	}
	slot := predIndex(tb, from.ID)
	if slot < 0 {
		panic(fmt.Sprintf("codegen: block %d is not a predecessor of %d", from.ID, to))
	}

	type mv struct{ src, dst regalloc.Location }
	var moves []mv
	for _, id := range tb.Phis {
		phi := g.Instr(id)
		dst, ok := asg.Location(id)
		if !ok {
			continue // dead phi, nothing to transfer
		}
		src, ok := asg.Location(phi.Args[slot])
		if !ok {
			panic(fmt.Sprintf("codegen: phi input v%d has no assigned location", phi.Args[slot]))
		}
		if src == dst {
			continue
		}
		moves = append(moves, mv{src, dst})
	}

	for len(moves) > 0 {
		progress := false
		for i := 0; i < len(moves); i++ {
			blocked := false
			for j := range moves {
				if j != i && moves[j].src == moves[i].dst {
					blocked = true
					break
				}
			}
			if blocked {
				continue
			}
			gen.emitMove(sink, moves[i].src, moves[i].dst)
			moves = append(moves[:i], moves[i+1:]...)
			i--
			progress = true
		}
		if !progress {
			// Every remaining move is part of a cycle. Park one source in
			// scratch and redirect its readers there.
			tmp := regalloc.Location{Kind: regalloc.InRegister, Index: gen.enc.scratch(2)}
			parked := moves[0].src
			gen.emitMove(sink, parked, tmp)
			for j := range moves {
				if moves[j].src == parked {
					moves[j].src = tmp
				}
			}
		}
	}
}

// emitMove transfers a value between two assigned locations, using scratch 0
// for slot-to-slot transfers.
func (gen *generator) emitMove(sink *Sink, src, dst regalloc.Location) {
	switch {
	case src.Kind == regalloc.InRegister && dst.Kind == regalloc.InRegister:
		gen.enc.move(sink, dst.Index, src.Index)
	case src.Kind == regalloc.OnStack && dst.Kind == regalloc.InRegister:
		gen.enc.loadSlot(sink, dst.Index, src.Index)
	case src.Kind == regalloc.InRegister && dst.Kind == regalloc.OnStack:
		gen.enc.storeSlot(sink, src.Index, dst.Index)
	default:
		r := gen.enc.scratch(0)
		gen.enc.loadSlot(sink, r, src.Index)
		gen.enc.storeSlot(sink, r, dst.Index)
	}
}

func predIndex(b *ir.Block, pred ir.BlockID) int {
	for i, p := range b.Preds {
		if p == pred {
			return i
		}
	}
	return -1
}
