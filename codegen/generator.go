package codegen

import (
	"fmt"

	"github.com/deepnoodle-ai/methodc/bytecode"
	"github.com/deepnoodle-ai/methodc/ir"
	"github.com/deepnoodle-ai/methodc/isa"
	"github.com/deepnoodle-ai/methodc/regalloc"
)

// Generator compiles one graph for one instruction set. A generator is bound
// to its graph at creation and is not reused across methods.
type Generator interface {
	// CompileBaseline emits unoptimized code straight off the built graph,
	// with every virtual register in a frame slot.
	CompileBaseline(sink *Sink) error

	// CompileOptimized emits code for the optimized SSA graph using the
	// register assignment.
	CompileOptimized(sink *Sink, asg *regalloc.Assignment) error

	// FrameSize returns the frame size of the last compile.
	FrameSize() int

	// CoreSpillMask returns the callee-saved register mask of the last
	// compile.
	CoreSpillMask() uint32

	// BuildMappingTable returns the bytecode-to-native mapping table, plus a
	// source map when debug symbols are requested.
	BuildMappingTable(withSrcMap bool) (mapping, srcMap []byte)

	// BuildVMapTable returns the value-location map table (baseline only).
	BuildVMapTable() []byte

	// BuildNativeGCMap returns the native GC map assembled from verified
	// method metadata (baseline only).
	BuildNativeGCMap(vm *bytecode.VerifiedMethod) []byte

	// BuildStackMaps returns the stack-map table (optimized only).
	BuildStackMaps() []byte
}

// encoder is the per-instruction-set emission surface. Register operands are
// abstract core-register indices; each encoder maps them onto its own file.
type encoder interface {
	prologue(s *Sink, frameSize int, spillMask uint32)
	epilogue(s *Sink, frameSize int, spillMask uint32)
	loadImm(s *Sink, reg int, v int64)
	move(s *Sink, dst, src int)
	loadSlot(s *Sink, reg, slot int)
	storeSlot(s *Sink, reg, slot int)
	arith(s *Sink, op ir.Op, dst, lhs, rhs int)
	compare(s *Sink, lhs, rhs int)
	// jump and jumpCond emit a branch with a placeholder displacement and
	// return the fixup position for patch.
	jump(s *Sink) int
	jumpCond(s *Sink, cond ir.Cond) int
	patch(s *Sink, fixupAt, target int)
	ret(s *Sink)
	// scratch returns the i-th scratch register (0..2), outside the
	// allocatable range.
	scratch(i int) int
}

// generator is the shared backend skeleton; the encoder supplies the
// instruction encodings.
type generator struct {
	g   *ir.Graph
	set isa.Set
	enc encoder

	frameSize int
	spillMask uint32

	mappings   []mappingEntry
	safepoints []stackMapEntry
}

type mappingEntry struct {
	native uint32
	dex    uint32
}

type stackMapEntry struct {
	native    uint32
	dex       uint32
	regMask   uint32
	stackMask uint32
}

type fixup struct {
	at     int
	target ir.BlockID
}

// Arguments arrive in core registers 0..n-1; the return value leaves in
// register 0.
const returnReg = 0

func argReg(i int) int { return i }

// CompileBaseline implements Generator.
func (gen *generator) CompileBaseline(sink *Sink) error {
	g := gen.g
	gen.frameSize = baselineFrame(gen.set, g.NumRegisters)
	gen.spillMask = 0
	gen.enc.prologue(sink, gen.frameSize, gen.spillMask)

	blockOffsets := make([]int, g.NumBlocks())
	var fixups []fixup

	for bi := 0; bi < g.NumBlocks(); bi++ {
		b := g.Block(ir.BlockID(bi))
		blockOffsets[b.ID] = sink.Len()

		// Baseline value flow is block-local by construction: every value is
		// defined and consumed within a handful of instructions, so three
		// rotating scratch registers cover it.
		scratchOf := map[ir.ValueID]int{}
		next := 0
		define := func(id ir.ValueID) int {
			r := gen.enc.scratch(next % 3)
			next++
			scratchOf[id] = r
			return r
		}
		use := func(id ir.ValueID) int {
			r, ok := scratchOf[id]
			if !ok {
				panic(fmt.Sprintf("codegen: baseline operand v%d not materialized", id))
			}
			return r
		}

		for _, id := range b.Instrs {
			in := g.Instr(id)
			gen.mappings = append(gen.mappings, mappingEntry{uint32(sink.Len()), uint32(in.Offset)})
			switch in.Op {
			case ir.Nop:
			case ir.Param:
				gen.enc.move(sink, define(id), argReg(in.Local))
			case ir.Const:
				gen.enc.loadImm(sink, define(id), in.Value)
			case ir.LoadLocal:
				gen.enc.loadSlot(sink, define(id), in.Local)
			case ir.StoreLocal:
				gen.enc.storeSlot(sink, use(in.Args[0]), in.Local)
			case ir.Add, ir.Sub, ir.Mul, ir.Div:
				lhs, rhs := use(in.Args[0]), use(in.Args[1])
				if in.Op == ir.Div {
					gen.safepoint(sink, in, 0)
				}
				gen.enc.arith(sink, in.Op, define(id), lhs, rhs)
			case ir.Goto:
				fixups = append(fixups, fixup{gen.enc.jump(sink), b.Succs[0]})
			case ir.If:
				gen.enc.compare(sink, use(in.Args[0]), use(in.Args[1]))
				fixups = append(fixups, fixup{gen.enc.jumpCond(sink, in.Cond), b.Succs[0]})
				fixups = append(fixups, fixup{gen.enc.jump(sink), b.Succs[1]})
			case ir.Return:
				gen.enc.move(sink, returnReg, use(in.Args[0]))
				gen.safepoint(sink, in, 0)
				gen.enc.epilogue(sink, gen.frameSize, gen.spillMask)
				gen.enc.ret(sink)
			case ir.ReturnVoid:
				gen.safepoint(sink, in, 0)
				gen.enc.epilogue(sink, gen.frameSize, gen.spillMask)
				gen.enc.ret(sink)
			default:
				return fmt.Errorf("codegen: unexpected %s in baseline graph", in.Op)
			}
		}
	}

	for _, f := range fixups {
		gen.enc.patch(sink, f.at, blockOffsets[f.target])
	}
	return nil
}

// CompileOptimized implements Generator.
func (gen *generator) CompileOptimized(sink *Sink, asg *regalloc.Assignment) error {
	g := gen.g
	if !g.InSSA {
		return fmt.Errorf("codegen: optimized compile requires SSA form")
	}
	gen.frameSize = asg.FrameSize()
	gen.spillMask = asg.CoreSpillMask()
	gen.enc.prologue(sink, gen.frameSize, gen.spillMask)

	blockOffsets := make([]int, g.NumBlocks())
	var fixups []fixup

	for bi := 0; bi < g.NumBlocks(); bi++ {
		b := g.Block(ir.BlockID(bi))
		blockOffsets[b.ID] = sink.Len()

		for i, id := range b.Instrs {
			in := g.Instr(id)
			last := i == len(b.Instrs)-1
			if last {
				// Phi inputs are transferred on the edge. Critical edges were
				// split during SSA construction, so a multi-successor block
				// never feeds a phi.
				if len(b.Succs) == 1 {
					gen.emitPhiMoves(sink, asg, b, b.Succs[0])
				} else {
					for _, s := range b.Succs {
						if len(g.Block(s).Phis) > 0 {
							panic("codegen: phi input on an unsplit critical edge")
						}
					}
				}
			}
			gen.mappings = append(gen.mappings, mappingEntry{uint32(sink.Len()), uint32(in.Offset)})
			switch in.Op {
			case ir.Nop:
			case ir.Param:
				gen.store(sink, asg, id, argReg(in.Local))
			case ir.Const:
				r := gen.defReg(asg, id)
				gen.enc.loadImm(sink, r, in.Value)
				gen.flush(sink, asg, id, r)
			case ir.Add, ir.Sub, ir.Mul, ir.Div:
				lhs := gen.read(sink, asg, in.Args[0], 0)
				rhs := gen.read(sink, asg, in.Args[1], 1)
				if in.Op == ir.Div {
					gen.safepoint(sink, in, regMask(asg, in.Args))
				}
				r := gen.defReg(asg, id)
				gen.enc.arith(sink, in.Op, r, lhs, rhs)
				gen.flush(sink, asg, id, r)
			case ir.Goto:
				fixups = append(fixups, fixup{gen.enc.jump(sink), b.Succs[0]})
			case ir.If:
				lhs := gen.read(sink, asg, in.Args[0], 0)
				rhs := gen.read(sink, asg, in.Args[1], 1)
				gen.enc.compare(sink, lhs, rhs)
				fixups = append(fixups, fixup{gen.enc.jumpCond(sink, in.Cond), b.Succs[0]})
				fixups = append(fixups, fixup{gen.enc.jump(sink), b.Succs[1]})
			case ir.Return:
				r := gen.read(sink, asg, in.Args[0], 0)
				gen.enc.move(sink, returnReg, r)
				gen.safepoint(sink, in, regMask(asg, in.Args))
				gen.enc.epilogue(sink, gen.frameSize, gen.spillMask)
				gen.enc.ret(sink)
			case ir.ReturnVoid:
				gen.safepoint(sink, in, 0)
				gen.enc.epilogue(sink, gen.frameSize, gen.spillMask)
				gen.enc.ret(sink)
			default:
				return fmt.Errorf("codegen: unexpected %s in optimized graph", in.Op)
			}
		}
	}

	for _, f := range fixups {
		gen.enc.patch(sink, f.at, blockOffsets[f.target])
	}
	return nil
}

// read materializes a value into a register: its assigned register, or a
// scratch register loaded from its spill slot.
func (gen *generator) read(sink *Sink, asg *regalloc.Assignment, v ir.ValueID, scratchIdx int) int {
	loc, ok := asg.Location(v)
	if !ok {
		panic(fmt.Sprintf("codegen: value v%d has no assigned location", v))
	}
	if loc.Kind == regalloc.InRegister {
		return loc.Index
	}
	r := gen.enc.scratch(scratchIdx)
	gen.enc.loadSlot(sink, r, loc.Index)
	return r
}

// defReg returns the register a definition should target: its assigned
// register, or scratch 2 for spilled values (flush stores it afterwards).
func (gen *generator) defReg(asg *regalloc.Assignment, v ir.ValueID) int {
	if loc, ok := asg.Location(v); ok && loc.Kind == regalloc.InRegister {
		return loc.Index
	}
	return gen.enc.scratch(2)
}

// flush spills a freshly defined value if its location is a stack slot.
func (gen *generator) flush(sink *Sink, asg *regalloc.Assignment, v ir.ValueID, reg int) {
	if loc, ok := asg.Location(v); ok && loc.Kind == regalloc.OnStack {
		gen.enc.storeSlot(sink, reg, loc.Index)
	}
}

// store routes a register value into a definition's assigned location.
func (gen *generator) store(sink *Sink, asg *regalloc.Assignment, v ir.ValueID, src int) {
	loc, ok := asg.Location(v)
	if !ok {
		// Unused definition; nothing to transfer.
		return
	}
	if loc.Kind == regalloc.InRegister {
		if loc.Index != src {
			gen.enc.move(sink, loc.Index, src)
		}
		return
	}
	gen.enc.storeSlot(sink, src, loc.Index)
}

func (gen *generator) safepoint(sink *Sink, in *ir.Instruction, mask uint32) {
	gen.safepoints = append(gen.safepoints, stackMapEntry{
		native:  uint32(sink.Len()),
		dex:     uint32(in.Offset),
		regMask: mask,
	})
}

func regMask(asg *regalloc.Assignment, args []ir.ValueID) uint32 {
	var mask uint32
	for _, a := range args {
		if loc, ok := asg.Location(a); ok && loc.Kind == regalloc.InRegister {
			mask |= 1 << uint(loc.Index)
		}
	}
	return mask
}

// baselineFrame sizes the baseline frame: saved return address and frame
// pointer plus one slot per virtual register, aligned to 16 bytes.
func baselineFrame(set isa.Set, numRegisters int) int {
	word := 4
	if set == isa.ARM64 || set == isa.X86_64 {
		word = 8
	}
	size := (2 + numRegisters) * word
	if rem := size % 16; rem != 0 {
		size += 16 - rem
	}
	return size
}

// FrameSize implements Generator.
func (gen *generator) FrameSize() int { return gen.frameSize }

// CoreSpillMask implements Generator.
func (gen *generator) CoreSpillMask() uint32 { return gen.spillMask }
