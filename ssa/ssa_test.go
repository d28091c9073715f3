package ssa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/methodc/bytecode"
	"github.com/deepnoodle-ai/methodc/ir"
)

func build(t *testing.T, registers, ins uint16, insns []uint16) *ir.Graph {
	t.Helper()
	m := bytecode.NewMethod(bytecode.MethodParams{
		Name:          "Test.method",
		Insns:         insns,
		RegistersSize: registers,
		InsSize:       ins,
	})
	g, err := ir.Build(m)
	require.Nil(t, err)
	return g
}

// const v0, #2; const v1, #3; add v2, v0, v1; return v2
func straightLine(t *testing.T) *ir.Graph {
	return build(t, 3, 0, []uint16{
		bytecode.Unit(bytecode.Const, 0), 2,
		bytecode.Unit(bytecode.Const, 1), 3,
		bytecode.Unit(bytecode.Add, 2), 0 | 1<<8,
		bytecode.Unit(bytecode.Return, 2),
	})
}

// v0 is reassigned on one arm only; the merge needs a phi.
func diamond(t *testing.T) *ir.Graph {
	return build(t, 2, 0, []uint16{
		bytecode.Unit(bytecode.Const, 0), 1,
		bytecode.Unit(bytecode.Const, 1), 0,
		bytecode.Unit(bytecode.IfEq, 0), 1, 9,
		bytecode.Unit(bytecode.Const, 0), 5,
		bytecode.Unit(bytecode.Return, 0),
	})
}

// A counting loop; the induction variable needs a phi at the header.
func loop(t *testing.T) *ir.Graph {
	return build(t, 3, 0, []uint16{
		bytecode.Unit(bytecode.Const, 0), 0,
		bytecode.Unit(bytecode.Const, 1), 3,
		bytecode.Unit(bytecode.Const, 2), 1,
		bytecode.Unit(bytecode.IfLt, 0), 1, 10,
		bytecode.Unit(bytecode.Return, 0),
		bytecode.Unit(bytecode.Add, 0), 0 | 2<<8,
		bytecode.Unit(bytecode.Goto, 0), 6,
	})
}

func countPhis(g *ir.Graph) int {
	n := 0
	for i := 0; i < g.NumBlocks(); i++ {
		n += len(g.Block(ir.BlockID(i)).Phis)
	}
	return n
}

func hasLocalOps(g *ir.Graph) bool {
	for i := 0; i < g.NumValues(); i++ {
		in := g.Instr(ir.ValueID(i))
		if in.Removed() {
			continue
		}
		if in.Op == ir.LoadLocal || in.Op == ir.StoreLocal {
			return true
		}
	}
	return false
}

func TestTransformStraightLine(t *testing.T) {
	g := straightLine(t)
	Transform(g)

	require.True(t, g.InSSA)
	require.Nil(t, ir.Check(g))
	require.False(t, hasLocalOps(g))
	require.Equal(t, 0, countPhis(g))
}

func TestTransformDiamond(t *testing.T) {
	g := diamond(t)
	Transform(g)

	require.Nil(t, ir.Check(g))
	require.False(t, hasLocalOps(g))
	require.Equal(t, 1, countPhis(g))

	// The phi inputs are the two const definitions of v0.
	for i := 0; i < g.NumBlocks(); i++ {
		for _, id := range g.Block(ir.BlockID(i)).Phis {
			phi := g.Instr(id)
			require.Equal(t, 2, len(phi.Args))
			for _, a := range phi.Args {
				require.Equal(t, ir.Const, g.Instr(a).Op)
			}
		}
	}
}

func TestTransformSplitsCriticalEdges(t *testing.T) {
	g := diamond(t)
	Transform(g)
	require.Nil(t, ir.Check(g))

	// Every predecessor of a block with phis must have that block as its only
	// successor, so phi transfers can be emitted at the predecessor's end.
	for i := 0; i < g.NumBlocks(); i++ {
		b := g.Block(ir.BlockID(i))
		if len(b.Phis) == 0 {
			continue
		}
		for _, p := range b.Preds {
			require.Equal(t, 1, len(g.Block(p).Succs))
		}
	}
}

func TestTransformLoop(t *testing.T) {
	g := loop(t)
	Transform(g)
	require.Nil(t, ir.Check(g))
	require.False(t, hasLocalOps(g))
	require.True(t, countPhis(g) >= 1)

	FindNaturalLoops(g)
	headers := 0
	for i := 0; i < g.NumBlocks(); i++ {
		if g.Block(ir.BlockID(i)).LoopHeader {
			headers++
		}
	}
	require.Equal(t, 1, headers)
}

func TestTransformArguments(t *testing.T) {
	// return p0 + p1
	g := build(t, 3, 2, []uint16{
		bytecode.Unit(bytecode.Add, 0), 1 | 2<<8,
		bytecode.Unit(bytecode.Return, 0),
	})
	Transform(g)
	require.Nil(t, ir.Check(g))

	// The add consumes the two params directly.
	for i := 0; i < g.NumValues(); i++ {
		in := g.Instr(ir.ValueID(i))
		if in.Removed() || in.Op != ir.Add {
			continue
		}
		require.Equal(t, ir.Param, g.Instr(in.Args[0]).Op)
		require.Equal(t, ir.Param, g.Instr(in.Args[1]).Op)
	}
}

func TestTransformTwicePanics(t *testing.T) {
	g := straightLine(t)
	Transform(g)
	require.Panics(t, func() { Transform(g) })
}

func TestFindNaturalLoopsRequiresSSA(t *testing.T) {
	g := straightLine(t)
	require.Panics(t, func() { FindNaturalLoops(g) })
}
