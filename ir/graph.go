package ir

// Graph is one method's IR. It is exclusively owned by one compilation
// attempt and mutated in place by each pass; it is never shared across
// concurrent compilations.
type Graph struct {
	instrs []Instruction
	blocks []Block

	Entry        BlockID
	NumRegisters int
	InSSA        bool

	// Immediate dominators, indexed by BlockID. Set by SSA construction; the
	// entry block is its own dominator and unreachable blocks map to NoBlock.
	idom []BlockID
}

// NewGraph creates an empty graph for a method with the given virtual
// register count.
func NewGraph(numRegisters int) *Graph {
	return &Graph{Entry: NoBlock, NumRegisters: numRegisters}
}

// NewBlock appends a new empty block and returns its id.
func (g *Graph) NewBlock(offset int) BlockID {
	id := BlockID(len(g.blocks))
	g.blocks = append(g.blocks, Block{ID: id, Offset: offset})
	return id
}

// NumBlocks returns the number of blocks ever created in the graph.
func (g *Graph) NumBlocks() int { return len(g.blocks) }

// NumValues returns the number of instructions ever created in the graph,
// removed ones included. ValueIDs are always below this bound.
func (g *Graph) NumValues() int { return len(g.instrs) }

// Block returns the block with the given id.
func (g *Graph) Block(id BlockID) *Block { return &g.blocks[id] }

// Instr returns the instruction with the given id.
func (g *Graph) Instr(id ValueID) *Instruction { return &g.instrs[id] }

// NewInstr appends an instruction to the given block and returns its id.
func (g *Graph) NewInstr(block BlockID, in Instruction) ValueID {
	id := ValueID(len(g.instrs))
	in.Block = block
	g.instrs = append(g.instrs, in)
	b := &g.blocks[block]
	if in.Op == Phi {
		b.Phis = append(b.Phis, id)
	} else {
		b.Instrs = append(b.Instrs, id)
	}
	return id
}

// AddEdge links pred -> succ in both directions.
func (g *Graph) AddEdge(pred, succ BlockID) {
	g.blocks[pred].Succs = append(g.blocks[pred].Succs, succ)
	g.blocks[succ].Preds = append(g.blocks[succ].Preds, pred)
}

// Remove detaches an instruction from its block and marks it removed. The
// slot is not reused; the arena is reclaimed only when the whole graph is
// dropped.
func (g *Graph) Remove(id ValueID) {
	in := &g.instrs[id]
	if in.removed {
		return
	}
	in.removed = true
	b := &g.blocks[in.Block]
	if in.Op == Phi {
		b.Phis = deleteID(b.Phis, id)
	} else {
		b.Instrs = deleteID(b.Instrs, id)
	}
}

func deleteID(list []ValueID, id ValueID) []ValueID {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// ReplaceUses rewrites every operand reference to old so it refers to new.
func (g *Graph) ReplaceUses(old, new ValueID) {
	for i := range g.instrs {
		in := &g.instrs[i]
		if in.removed {
			continue
		}
		for j, a := range in.Args {
			if a == old {
				in.Args[j] = new
			}
		}
	}
}

// HasUses reports whether any live instruction uses the given value.
func (g *Graph) HasUses(id ValueID) bool {
	for i := range g.instrs {
		in := &g.instrs[i]
		if in.removed {
			continue
		}
		for _, a := range in.Args {
			if a == id {
				return true
			}
		}
	}
	return false
}

// ReversePostorder returns the reachable blocks in reverse postorder from the
// entry block.
func (g *Graph) ReversePostorder() []BlockID {
	seen := make([]bool, len(g.blocks))
	var post []BlockID
	var visit func(BlockID)
	visit = func(id BlockID) {
		seen[id] = true
		for _, s := range g.blocks[id].Succs {
			if !seen[s] {
				visit(s)
			}
		}
		post = append(post, id)
	}
	if g.Entry != NoBlock {
		visit(g.Entry)
	}
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// SetDominators records the immediate-dominator table computed by SSA
// construction.
func (g *Graph) SetDominators(idom []BlockID) { g.idom = idom }

// IDom returns the immediate dominator of the given block, or NoBlock if
// dominance has not been computed or the block is unreachable.
func (g *Graph) IDom(b BlockID) BlockID {
	if g.idom == nil {
		return NoBlock
	}
	return g.idom[b]
}

// Dominates reports whether block a dominates block b. Valid only after
// SetDominators.
func (g *Graph) Dominates(a, b BlockID) bool {
	if g.idom == nil {
		return false
	}
	for {
		if a == b {
			return true
		}
		next := g.idom[b]
		if next == NoBlock || next == b {
			return false
		}
		b = next
	}
}
