package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/methodc/bytecode"
	"github.com/deepnoodle-ai/methodc/ir"
	"github.com/deepnoodle-ai/methodc/isa"
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

func addGraph(t *testing.T) *ir.Graph {
	return buildSSA(t, 3, []uint16{
		bytecode.Unit(bytecode.Const, 0), 2,
		bytecode.Unit(bytecode.Const, 1), 3,
		bytecode.Unit(bytecode.Add, 2), 0 | 1<<8,
		bytecode.Unit(bytecode.Return, 2),
	})
}

func TestSupports(t *testing.T) {
	require.True(t, Supports(isa.Thumb2))
	require.True(t, Supports(isa.ARM64))
	require.False(t, Supports(isa.MIPS))
	require.False(t, Supports(isa.None))
}

func TestCanAllocateFor(t *testing.T) {
	g := addGraph(t)
	require.True(t, CanAllocateFor(g, isa.ARM64))
	require.True(t, CanAllocateFor(g, isa.Thumb2))
	require.False(t, CanAllocateFor(g, isa.MIPS))
}

func TestCanAllocateForRejectsDivOn32Bit(t *testing.T) {
	g := buildSSA(t, 3, []uint16{
		bytecode.Unit(bytecode.Const, 0), 8,
		bytecode.Unit(bytecode.Const, 1), 2,
		bytecode.Unit(bytecode.Div, 2), 0 | 1<<8,
		bytecode.Unit(bytecode.Return, 2),
	})
	require.True(t, CanAllocateFor(g, isa.ARM64))
	require.True(t, CanAllocateFor(g, isa.X86_64))
	require.False(t, CanAllocateFor(g, isa.Thumb2))
	require.False(t, CanAllocateFor(g, isa.X86))
}

func TestLinearScanAssignsEveryLiveValue(t *testing.T) {
	g := addGraph(t)
	live := ssa.Analyze(g)

	asg, err := LinearScan{}.Allocate(g, live, isa.ARM64)
	require.Nil(t, err)
	require.Equal(t, len(live.Intervals), asg.NumAssigned())

	for _, iv := range live.Intervals {
		_, ok := asg.Location(iv.Value)
		require.True(t, ok)
	}
	require.True(t, asg.FrameSize() > 0)
	require.Equal(t, 0, asg.FrameSize()%16)
}

func TestLinearScanOverlappingIntervalsGetDistinctRegisters(t *testing.T) {
	g := addGraph(t)
	live := ssa.Analyze(g)

	asg, err := LinearScan{}.Allocate(g, live, isa.ARM64)
	require.Nil(t, err)

	// The two const operands are simultaneously live at the add; if both are
	// in registers they must differ.
	locs := map[int]ir.ValueID{}
	for _, iv := range live.Intervals {
		for _, other := range live.Intervals {
			if iv.Value == other.Value || iv.End < other.Start || other.End < iv.Start {
				continue
			}
			a, _ := asg.Location(iv.Value)
			b, _ := asg.Location(other.Value)
			if a.Kind == InRegister && b.Kind == InRegister {
				require.NotEqual(t, a.Index, b.Index,
					"values v%d and v%d overlap in r%d", iv.Value, other.Value, a.Index)
			}
		}
		loc, _ := asg.Location(iv.Value)
		if loc.Kind == InRegister {
			locs[loc.Index] = iv.Value
		}
	}
	require.NotEmpty(t, locs)
}

func TestLinearScanSpillsUnderPressure(t *testing.T) {
	// Chain enough simultaneously live values to exceed the two allocatable
	// x86 registers: all four constants are live at the first add.
	g := buildSSA(t, 8, []uint16{
		bytecode.Unit(bytecode.Const, 0), 1,
		bytecode.Unit(bytecode.Const, 1), 2,
		bytecode.Unit(bytecode.Const, 2), 3,
		bytecode.Unit(bytecode.Const, 3), 4,
		bytecode.Unit(bytecode.Add, 4), 0 | 1<<8,
		bytecode.Unit(bytecode.Add, 5), 2 | 3<<8,
		bytecode.Unit(bytecode.Add, 6), 4 | 5<<8,
		bytecode.Unit(bytecode.Return, 6),
	})
	live := ssa.Analyze(g)
	require.True(t, live.MaxLive() > 2)

	asg, err := LinearScan{}.Allocate(g, live, isa.X86)
	require.Nil(t, err)

	var spilled int
	for _, iv := range live.Intervals {
		if loc, _ := asg.Location(iv.Value); loc.Kind == OnStack {
			spilled++
		}
	}
	require.True(t, spilled >= 1)
}

func TestLinearScanRejectsInfeasibleGraph(t *testing.T) {
	g := addGraph(t)
	live := ssa.Analyze(g)
	_, err := LinearScan{}.Allocate(g, live, isa.MIPS)
	require.NotNil(t, err)
}

func TestLocationString(t *testing.T) {
	require.Equal(t, "r3", Location{Kind: InRegister, Index: 3}.String())
	require.Equal(t, "[sp+2]", Location{Kind: OnStack, Index: 2}.String())
}
