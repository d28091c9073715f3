package optimize

import (
	"fmt"

	"github.com/deepnoodle-ai/methodc/ir"
)

// GlobalValueNumbering deduplicates pure computations across the dominator
// tree: an instruction computing a value already computed by a dominating
// instruction is replaced by it. The scoped table is saved and restored along
// the tree walk so only dominating entries are ever visible.
type GlobalValueNumbering struct{}

// Name implements Pass.
func (GlobalValueNumbering) Name() string { return "gvn" }

// Run implements Pass.
func (GlobalValueNumbering) Run(g *ir.Graph) {
	if !g.InSSA {
		return
	}
	children := make([][]ir.BlockID, g.NumBlocks())
	for i := 0; i < g.NumBlocks(); i++ {
		b := ir.BlockID(i)
		if d := g.IDom(b); d != ir.NoBlock && d != b {
			children[d] = append(children[d], b)
		}
	}
	n := numberer{g: g, children: children, table: map[string]ir.ValueID{}}
	n.visit(g.Entry)
}

type numberer struct {
	g        *ir.Graph
	children [][]ir.BlockID
	table    map[string]ir.ValueID
}

func (n *numberer) visit(block ir.BlockID) {
	g := n.g
	var added []string
	for _, id := range append([]ir.ValueID(nil), g.Block(block).Instrs...) {
		in := g.Instr(id)
		if in.Removed() || !in.Op.IsPure() || in.Op == ir.Phi {
			continue
		}
		key := n.key(in)
		if prev, ok := n.table[key]; ok {
			g.ReplaceUses(id, prev)
			g.Remove(id)
			continue
		}
		n.table[key] = id
		added = append(added, key)
	}
	for _, c := range n.children[block] {
		n.visit(c)
	}
	for _, key := range added {
		delete(n.table, key)
	}
}

// key builds the value number for a pure instruction. Commutative operations
// order their operands so both argument orders number the same.
func (n *numberer) key(in *ir.Instruction) string {
	if in.Op == ir.Const {
		return fmt.Sprintf("const:%d", in.Value)
	}
	a, b := in.Args[0], in.Args[1]
	if (in.Op == ir.Add || in.Op == ir.Mul) && b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%d:%d", in.Op, a, b)
}
