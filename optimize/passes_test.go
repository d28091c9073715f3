package optimize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/methodc/bytecode"
	"github.com/deepnoodle-ai/methodc/ir"
	"github.com/deepnoodle-ai/methodc/ssa"
)

func buildSSA(t *testing.T, registers uint16, insns []uint16) *ir.Graph {
	t.Helper()
	m := bytecode.NewMethod(bytecode.MethodParams{
		Name:          "Test.method",
		Insns:         insns,
		RegistersSize: registers,
	})
	g, err := ir.Build(m)
	require.Nil(t, err)
	ssa.Transform(g)
	return g
}

func liveOps(g *ir.Graph, op ir.Op) []ir.ValueID {
	var out []ir.ValueID
	for i := 0; i < g.NumValues(); i++ {
		id := ir.ValueID(i)
		in := g.Instr(id)
		if !in.Removed() && in.Op == op {
			out = append(out, id)
		}
	}
	return out
}

func returnArg(t *testing.T, g *ir.Graph) *ir.Instruction {
	t.Helper()
	rets := liveOps(g, ir.Return)
	require.Equal(t, 1, len(rets))
	return g.Instr(g.Instr(rets[0]).Args[0])
}

type recordingSink struct {
	names []string
}

func (r *recordingSink) DumpGraph(passName string) { r.names = append(r.names, passName) }

func TestPassOrder(t *testing.T) {
	var names []string
	for _, p := range Passes() {
		names = append(names, p.Name())
	}
	require.Equal(t, []string{
		"dead_code_elimination",
		"constant_folding",
		"redundant_phi_elimination",
		"dead_phi_elimination",
		"instruction_simplifier",
		"gvn",
		"instruction_simplifier_after_gvn",
	}, names)
}

func TestDeadCodeElimination(t *testing.T) {
	// The first const is overwritten before any read.
	g := buildSSA(t, 1, []uint16{
		bytecode.Unit(bytecode.Const, 0), 1,
		bytecode.Unit(bytecode.Const, 0), 2,
		bytecode.Unit(bytecode.Return, 0),
	})
	require.Equal(t, 2, len(liveOps(g, ir.Const)))

	DeadCodeElimination{}.Run(g)
	require.Nil(t, ir.Check(g))
	require.Equal(t, 1, len(liveOps(g, ir.Const)))
	require.Equal(t, int64(2), returnArg(t, g).Value)
}

func TestConstantFolding(t *testing.T) {
	// return 2 + 3
	g := buildSSA(t, 3, []uint16{
		bytecode.Unit(bytecode.Const, 0), 2,
		bytecode.Unit(bytecode.Const, 1), 3,
		bytecode.Unit(bytecode.Add, 2), 0 | 1<<8,
		bytecode.Unit(bytecode.Return, 2),
	})
	ConstantFolding{}.Run(g)
	require.Nil(t, ir.Check(g))

	require.Empty(t, liveOps(g, ir.Add))
	ret := returnArg(t, g)
	require.Equal(t, ir.Const, ret.Op)
	require.Equal(t, int64(5), ret.Value)
}

func TestConstantFoldingKeepsTrappingDiv(t *testing.T) {
	// return 1 / 0 must stay a division; folding it would drop the trap.
	g := buildSSA(t, 3, []uint16{
		bytecode.Unit(bytecode.Const, 0), 1,
		bytecode.Unit(bytecode.Const, 1), 0,
		bytecode.Unit(bytecode.Div, 2), 0 | 1<<8,
		bytecode.Unit(bytecode.Return, 2),
	})
	ConstantFolding{}.Run(g)
	require.Nil(t, ir.Check(g))
	require.Equal(t, 1, len(liveOps(g, ir.Div)))
}

func TestConstantFoldingCascades(t *testing.T) {
	// (2 + 3) * 4 folds completely in one run.
	g := buildSSA(t, 4, []uint16{
		bytecode.Unit(bytecode.Const, 0), 2,
		bytecode.Unit(bytecode.Const, 1), 3,
		bytecode.Unit(bytecode.Add, 2), 0 | 1<<8,
		bytecode.Unit(bytecode.Const, 3), 4,
		bytecode.Unit(bytecode.Mul, 2), 2 | 3<<8,
		bytecode.Unit(bytecode.Return, 2),
	})
	ConstantFolding{}.Run(g)
	require.Nil(t, ir.Check(g))

	ret := returnArg(t, g)
	require.Equal(t, ir.Const, ret.Op)
	require.Equal(t, int64(20), ret.Value)
}

func TestSimplifierAddZero(t *testing.T) {
	// return x + 0 reduces to x.
	g := buildSSA(t, 3, []uint16{
		bytecode.Unit(bytecode.Const, 0), 7,
		bytecode.Unit(bytecode.Const, 1), 0,
		bytecode.Unit(bytecode.Add, 2), 0 | 1<<8,
		bytecode.Unit(bytecode.Return, 2),
	})
	InstructionSimplifier{}.Run(g)
	require.Nil(t, ir.Check(g))

	require.Empty(t, liveOps(g, ir.Add))
	ret := returnArg(t, g)
	require.Equal(t, ir.Const, ret.Op)
	require.Equal(t, int64(7), ret.Value)
}

func TestSimplifierSelfSubtraction(t *testing.T) {
	// return x - x becomes the zero constant, converted in place.
	g := buildSSA(t, 2, []uint16{
		bytecode.Unit(bytecode.Const, 0), 9,
		bytecode.Unit(bytecode.Sub, 1), 0 | 0<<8,
		bytecode.Unit(bytecode.Return, 1),
	})
	InstructionSimplifier{}.Run(g)
	require.Nil(t, ir.Check(g))

	require.Empty(t, liveOps(g, ir.Sub))
	ret := returnArg(t, g)
	require.Equal(t, ir.Const, ret.Op)
	require.Equal(t, int64(0), ret.Value)
}

func TestSimplifierMulIdentityAndZero(t *testing.T) {
	// x*1 reduces to x; x*0 becomes zero.
	g := buildSSA(t, 4, []uint16{
		bytecode.Unit(bytecode.Const, 0), 5,
		bytecode.Unit(bytecode.Const, 1), 1,
		bytecode.Unit(bytecode.Mul, 2), 0 | 1<<8, // x*1
		bytecode.Unit(bytecode.Const, 3), 0,
		bytecode.Unit(bytecode.Mul, 2), 2 | 3<<8, // x*0
		bytecode.Unit(bytecode.Return, 2),
	})
	InstructionSimplifier{}.Run(g)
	require.Nil(t, ir.Check(g))

	require.Empty(t, liveOps(g, ir.Mul))
	ret := returnArg(t, g)
	require.Equal(t, ir.Const, ret.Op)
	require.Equal(t, int64(0), ret.Value)
}

func TestRedundantPhiElimination(t *testing.T) {
	// A phi whose two inputs are the same value is a copy of that value.
	g := ir.NewGraph(1)
	entry := g.NewBlock(0)
	left := g.NewBlock(0)
	right := g.NewBlock(0)
	merge := g.NewBlock(0)
	g.Entry = entry

	x := g.NewInstr(entry, ir.Instruction{Op: ir.Const, Value: 3})
	y := g.NewInstr(entry, ir.Instruction{Op: ir.Const, Value: 4})
	g.NewInstr(entry, ir.Instruction{Op: ir.If, Cond: ir.CondEq, Args: []ir.ValueID{x, y}})
	g.AddEdge(entry, left)
	g.AddEdge(entry, right)
	g.NewInstr(left, ir.Instruction{Op: ir.Goto})
	g.AddEdge(left, merge)
	g.NewInstr(right, ir.Instruction{Op: ir.Goto})
	g.AddEdge(right, merge)
	phi := g.NewInstr(merge, ir.Instruction{Op: ir.Phi, Local: 0, Args: []ir.ValueID{x, x}})
	g.NewInstr(merge, ir.Instruction{Op: ir.Return, Args: []ir.ValueID{phi}})
	g.InSSA = true

	RedundantPhiElimination{}.Run(g)

	require.True(t, g.Instr(phi).Removed())
	require.Equal(t, x, g.Instr(g.Block(merge).Terminator()).Args[0])
}

func TestDeadPhiElimination(t *testing.T) {
	g := ir.NewGraph(1)
	entry := g.NewBlock(0)
	left := g.NewBlock(0)
	right := g.NewBlock(0)
	merge := g.NewBlock(0)
	g.Entry = entry

	x := g.NewInstr(entry, ir.Instruction{Op: ir.Const, Value: 3})
	y := g.NewInstr(entry, ir.Instruction{Op: ir.Const, Value: 4})
	g.NewInstr(entry, ir.Instruction{Op: ir.If, Cond: ir.CondEq, Args: []ir.ValueID{x, y}})
	g.AddEdge(entry, left)
	g.AddEdge(entry, right)
	g.NewInstr(left, ir.Instruction{Op: ir.Goto})
	g.AddEdge(left, merge)
	g.NewInstr(right, ir.Instruction{Op: ir.Goto})
	g.AddEdge(right, merge)
	phi := g.NewInstr(merge, ir.Instruction{Op: ir.Phi, Local: 0, Args: []ir.ValueID{x, y}})
	g.NewInstr(merge, ir.Instruction{Op: ir.ReturnVoid})
	g.InSSA = true

	DeadPhiElimination{}.Run(g)
	require.True(t, g.Instr(phi).Removed())
}

func TestGlobalValueNumbering(t *testing.T) {
	// x+y computed twice, once with swapped operands; the second and third
	// compute the same number as the first.
	g := buildSSA(t, 5, []uint16{
		bytecode.Unit(bytecode.Const, 0), 2,
		bytecode.Unit(bytecode.Const, 1), 3,
		bytecode.Unit(bytecode.Add, 2), 0 | 1<<8, // x+y
		bytecode.Unit(bytecode.Add, 3), 1 | 0<<8, // y+x
		bytecode.Unit(bytecode.Add, 4), 2 | 3<<8,
		bytecode.Unit(bytecode.Return, 4),
	})
	require.Equal(t, 3, len(liveOps(g, ir.Add)))

	GlobalValueNumbering{}.Run(g)
	require.Nil(t, ir.Check(g))

	adds := liveOps(g, ir.Add)
	require.Equal(t, 2, len(adds))
	// The surviving final add consumes the surviving x+y twice.
	final := g.Instr(adds[1])
	require.Equal(t, adds[0], final.Args[0])
	require.Equal(t, adds[0], final.Args[1])
}

func TestPipelineFoldsAddMethod(t *testing.T) {
	g := buildSSA(t, 3, []uint16{
		bytecode.Unit(bytecode.Const, 0), 2,
		bytecode.Unit(bytecode.Const, 1), 3,
		bytecode.Unit(bytecode.Add, 2), 0 | 1<<8,
		bytecode.Unit(bytecode.Return, 2),
	})
	sink := &recordingSink{}
	Pipeline(g, sink)

	require.Nil(t, ir.Check(g))
	ret := returnArg(t, g)
	require.Equal(t, ir.Const, ret.Op)
	require.Equal(t, int64(5), ret.Value)

	// One dump per pass, in pipeline order.
	var names []string
	for _, p := range Passes() {
		names = append(names, p.Name())
	}
	require.Equal(t, names, sink.names)
}

func TestPipelineOnLoop(t *testing.T) {
	g := buildSSA(t, 3, []uint16{
		bytecode.Unit(bytecode.Const, 0), 0,
		bytecode.Unit(bytecode.Const, 1), 3,
		bytecode.Unit(bytecode.Const, 2), 1,
		bytecode.Unit(bytecode.IfLt, 0), 1, 10,
		bytecode.Unit(bytecode.Return, 0),
		bytecode.Unit(bytecode.Add, 0), 0 | 2<<8,
		bytecode.Unit(bytecode.Goto, 0), 6,
	})
	sink := &recordingSink{}
	require.NotPanics(t, func() { Pipeline(g, sink) })
	require.Nil(t, ir.Check(g))
}

func TestCoveragePasses(t *testing.T) {
	g := buildSSA(t, 3, []uint16{
		bytecode.Unit(bytecode.Const, 0), 0,
		bytecode.Unit(bytecode.Const, 1), 3,
		bytecode.Unit(bytecode.Const, 2), 1,
		bytecode.Unit(bytecode.IfLt, 0), 1, 10,
		bytecode.Unit(bytecode.Return, 0),
		bytecode.Unit(bytecode.Add, 0), 0 | 2<<8,
		bytecode.Unit(bytecode.Goto, 0), 6,
	})
	require.NotPanics(t, func() { CoveragePasses(g) })
	require.Nil(t, ir.Check(g))
}
