package codegen

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/methodc/bytecode"
	"github.com/deepnoodle-ai/methodc/ir"
	"github.com/deepnoodle-ai/methodc/isa"
	"github.com/deepnoodle-ai/methodc/regalloc"
	"github.com/deepnoodle-ai/methodc/ssa"
)

var allSets = []isa.Set{isa.Thumb2, isa.ARM64, isa.X86, isa.X86_64}

func buildGraph(t *testing.T, registers, ins uint16, insns []uint16) *ir.Graph {
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

func addInsns() []uint16 {
	return []uint16{
		bytecode.Unit(bytecode.Const, 0), 2,
		bytecode.Unit(bytecode.Const, 1), 3,
		bytecode.Unit(bytecode.Add, 2), 0 | 1<<8,
		bytecode.Unit(bytecode.Return, 2),
	}
}

func diamondInsns() []uint16 {
	return []uint16{
		bytecode.Unit(bytecode.Const, 0), 1,
		bytecode.Unit(bytecode.Const, 1), 0,
		bytecode.Unit(bytecode.IfEq, 0), 1, 9,
		bytecode.Unit(bytecode.Const, 0), 5,
		bytecode.Unit(bytecode.Return, 0),
	}
}

func loopInsns() []uint16 {
	return []uint16{
		bytecode.Unit(bytecode.Const, 0), 0,
		bytecode.Unit(bytecode.Const, 1), 3,
		bytecode.Unit(bytecode.Const, 2), 1,
		bytecode.Unit(bytecode.IfLt, 0), 1, 10,
		bytecode.Unit(bytecode.Return, 0),
		bytecode.Unit(bytecode.Add, 0), 0 | 2<<8,
		bytecode.Unit(bytecode.Goto, 0), 6,
	}
}

func TestRegistryCoversSupportedSets(t *testing.T) {
	r := NewRegistry()
	for _, set := range allSets {
		g := buildGraph(t, 3, 0, addInsns())
		require.NotNil(t, r.Create(g, set), "no backend for %s", set)
		require.True(t, r.Allocatable(set))
	}
	g := buildGraph(t, 3, 0, addInsns())
	require.Nil(t, r.Create(g, isa.MIPS))
	require.False(t, r.Allocatable(isa.MIPS))
}

func TestCompileBaselineAllSets(t *testing.T) {
	for _, set := range allSets {
		for _, insns := range [][]uint16{addInsns(), diamondInsns(), loopInsns()} {
			g := buildGraph(t, 3, 0, insns)
			gen := NewRegistry().Create(g, set)
			sink := &Sink{}
			require.Nil(t, gen.CompileBaseline(sink))
			require.True(t, sink.Len() > 0)
			require.True(t, gen.FrameSize() > 0)
			require.Equal(t, 0, gen.FrameSize()%16)
		}
	}
}

func compileOptimized(t *testing.T, set isa.Set, registers uint16, insns []uint16) (Generator, *Sink) {
	t.Helper()
	g := buildGraph(t, registers, 0, insns)
	ssa.Transform(g)
	ssa.FindNaturalLoops(g)
	live := ssa.Analyze(g)
	asg, err := regalloc.LinearScan{}.Allocate(g, live, set)
	require.Nil(t, err)

	gen := NewRegistry().Create(g, set)
	sink := &Sink{}
	require.Nil(t, gen.CompileOptimized(sink, asg))
	return gen, sink
}

func TestCompileOptimizedAllSets(t *testing.T) {
	for _, set := range allSets {
		for _, insns := range [][]uint16{addInsns(), diamondInsns(), loopInsns()} {
			_, sink := compileOptimized(t, set, 3, insns)
			require.True(t, sink.Len() > 0)
		}
	}
}

func TestCompileOptimizedRequiresSSA(t *testing.T) {
	g := buildGraph(t, 3, 0, addInsns())
	gen := NewRegistry().Create(g, isa.ARM64)
	err := gen.CompileOptimized(&Sink{}, &regalloc.Assignment{})
	require.NotNil(t, err)
}

func TestCompileDeterministic(t *testing.T) {
	run := func() []byte {
		_, sink := compileOptimized(t, isa.ARM64, 3, loopInsns())
		return sink.Bytes()
	}
	require.Equal(t, run(), run())
}

func TestMappingTable(t *testing.T) {
	g := buildGraph(t, 3, 0, addInsns())
	gen := NewRegistry().Create(g, isa.ARM64)
	require.Nil(t, gen.CompileBaseline(&Sink{}))

	mapping, srcMap := gen.BuildMappingTable(false)
	require.Nil(t, srcMap)

	count := binary.LittleEndian.Uint32(mapping)
	require.True(t, count > 0)
	require.Equal(t, 4+int(count)*8, len(mapping))

	// Native offsets are non-decreasing in emission order.
	var prev uint32
	for i := 0; i < int(count); i++ {
		native := binary.LittleEndian.Uint32(mapping[4+i*8:])
		require.True(t, native >= prev)
		prev = native
	}

	mapping2, srcMap2 := gen.BuildMappingTable(true)
	require.Equal(t, mapping, mapping2)
	require.Equal(t, mapping, srcMap2)
}

func TestVMapTableIsIdentity(t *testing.T) {
	g := buildGraph(t, 3, 0, addInsns())
	gen := NewRegistry().Create(g, isa.ARM64)
	require.Nil(t, gen.CompileBaseline(&Sink{}))

	vmap := gen.BuildVMapTable()
	require.Equal(t, uint32(3), binary.LittleEndian.Uint32(vmap))
	for i := 0; i < 3; i++ {
		require.Equal(t, uint16(i), binary.LittleEndian.Uint16(vmap[4+i*2:]))
	}
}

func TestNativeGCMap(t *testing.T) {
	g := buildGraph(t, 3, 0, addInsns())
	gen := NewRegistry().Create(g, isa.ARM64)
	require.Nil(t, gen.CompileBaseline(&Sink{}))

	// Reference registers recorded at the return's offset (6) only.
	vm := bytecode.NewVerifiedMethod(map[uint16]uint32{6: 0b100})
	gcMap := gen.BuildNativeGCMap(vm)
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(gcMap))
	require.Equal(t, uint16(6), binary.LittleEndian.Uint16(gcMap[4:]))
	require.Equal(t, uint32(0b100), binary.LittleEndian.Uint32(gcMap[6:]))

	// No metadata yields an empty map, not a crash.
	empty := gen.BuildNativeGCMap(nil)
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(empty))
}

func TestStackMapsRecordSafepoints(t *testing.T) {
	// The division and the return are the safepoints.
	gen, _ := compileOptimized(t, isa.ARM64, 3, []uint16{
		bytecode.Unit(bytecode.Const, 0), 8,
		bytecode.Unit(bytecode.Const, 1), 2,
		bytecode.Unit(bytecode.Div, 2), 0 | 1<<8,
		bytecode.Unit(bytecode.Return, 2),
	})
	maps := gen.BuildStackMaps()
	count := binary.LittleEndian.Uint32(maps)
	require.Equal(t, uint32(2), count)
	require.Equal(t, 4+int(count)*16, len(maps))

	// The div safepoint carries its bytecode offset and a live-register mask.
	dex := binary.LittleEndian.Uint32(maps[4+4:])
	require.Equal(t, uint32(4), dex)
}

func TestPhiMovesOnDiamond(t *testing.T) {
	// The diamond's merge phi forces a transfer on each incoming edge; both
	// encodings must assemble without panicking and produce distinct code from
	// the baseline rendition.
	for _, set := range allSets {
		g := buildGraph(t, 2, 0, diamondInsns())
		ssa.Transform(g)
		live := ssa.Analyze(g)
		asg, err := regalloc.LinearScan{}.Allocate(g, live, set)
		require.Nil(t, err)

		gen := NewRegistry().Create(g, set)
		sink := &Sink{}
		require.Nil(t, gen.CompileOptimized(sink, asg))
		require.True(t, sink.Len() > 0)
	}
}

func TestThumb2SlotAccessDistinguishesScratchRegisters(t *testing.T) {
	// The 16-bit sp-relative forms only encode r0-r7; scratch traffic through
	// r8-r10 must take the wide forms rather than alias the low registers.
	enc := newThumb2Encoder()

	low, high := &Sink{}, &Sink{}
	enc.loadSlot(low, 0, 3)
	enc.loadSlot(high, 8, 3)
	require.NotEqual(t, low.Bytes(), high.Bytes())
	require.Equal(t, 2, low.Len())
	require.Equal(t, 4, high.Len())

	low, high = &Sink{}, &Sink{}
	enc.storeSlot(low, 2, 1)
	enc.storeSlot(high, 10, 1)
	require.NotEqual(t, low.Bytes(), high.Bytes())
	require.Equal(t, 4, high.Len())
}

func TestSink(t *testing.T) {
	s := &Sink{}
	s.Byte(0x01)
	s.Half(0x0302)
	s.Word(0x07060504)
	require.Equal(t, 7, s.Len())
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7}, s.Bytes())

	s.PatchWord(3, 0xAABBCCDD)
	require.Equal(t, uint32(0xAABBCCDD), s.WordAt(3))

	// Bytes hands out a copy.
	b := s.Bytes()
	b[0] = 0xFF
	require.Equal(t, byte(1), s.Bytes()[0])
}

func TestArtifactImmutability(t *testing.T) {
	code := []byte{1, 2, 3}
	a := NewArtifact(ArtifactParams{Code: code, FrameSize: 32, ISA: isa.ARM64, Optimized: true})

	code[0] = 9
	require.Equal(t, byte(1), a.Code()[0])
	a.Code()[1] = 9
	require.Equal(t, byte(2), a.Code()[1])

	require.Equal(t, 3, a.CodeSize())
	require.Equal(t, 32, a.FrameSize())
	require.Equal(t, isa.ARM64, a.ISA())
	require.True(t, a.Optimized())
	require.Nil(t, a.StackMaps())
}
