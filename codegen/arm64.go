package codegen

import "github.com/deepnoodle-ai/methodc/ir"

// arm64Encoder emits A64: fixed 32-bit words, three-operand arithmetic.
// Abstract registers 0..15 map directly onto x0..x15; x16..x18 serve as
// scratch.
type arm64Encoder struct{}

func newARM64Encoder() encoder { return arm64Encoder{} }

func (arm64Encoder) scratch(i int) int { return 16 + i }

func (arm64Encoder) prologue(s *Sink, frameSize int, spillMask uint32) {
	s.Word(0xA9BF7BFD) // stp x29, x30, [sp, #-16]!
	s.Word(0xD1000000 | imm12(frameSize)<<10 | 31<<5 | 31) // sub sp, sp, #frame
}

func (arm64Encoder) epilogue(s *Sink, frameSize int, spillMask uint32) {
	s.Word(0x91000000 | imm12(frameSize)<<10 | 31<<5 | 31) // add sp, sp, #frame
	s.Word(0xA8C17BFD)                                     // ldp x29, x30, [sp], #16
}

func (arm64Encoder) ret(s *Sink) { s.Word(0xD65F03C0) }

func (arm64Encoder) loadImm(s *Sink, reg int, v int64) {
	s.Word(0xD2800000 | uint32(uint16(v))<<5 | uint32(reg)) // movz
}

func (arm64Encoder) move(s *Sink, dst, src int) {
	s.Word(0xAA0003E0 | uint32(src)<<16 | uint32(dst)) // orr xd, xzr, xm
}

func (arm64Encoder) loadSlot(s *Sink, reg, slot int) {
	s.Word(0xF9400000 | uint32(slot)<<10 | 31<<5 | uint32(reg)) // ldr xd, [sp, #slot]
}

func (arm64Encoder) storeSlot(s *Sink, reg, slot int) {
	s.Word(0xF9000000 | uint32(slot)<<10 | 31<<5 | uint32(reg)) // str xt, [sp, #slot]
}

func (arm64Encoder) arith(s *Sink, op ir.Op, dst, lhs, rhs int) {
	var base uint32
	switch op {
	case ir.Add:
		base = 0x8B000000
	case ir.Sub:
		base = 0xCB000000
	case ir.Mul:
		base = 0x9B007C00
	case ir.Div:
		base = 0x9AC00C00 // sdiv
	}
	s.Word(base | uint32(rhs)<<16 | uint32(lhs)<<5 | uint32(dst))
}

func (arm64Encoder) compare(s *Sink, lhs, rhs int) {
	s.Word(0xEB00001F | uint32(rhs)<<16 | uint32(lhs)<<5) // subs xzr, xn, xm
}

func (arm64Encoder) jump(s *Sink) int {
	at := s.Len()
	s.Word(0x14000000) // b, displacement patched later
	return at
}

func (arm64Encoder) jumpCond(s *Sink, cond ir.Cond) int {
	cc := uint32(0x0) // eq
	if cond == ir.CondLt {
		cc = 0xB // lt
	}
	at := s.Len()
	s.Word(0x54000000 | cc)
	return at
}

func (arm64Encoder) patch(s *Sink, fixupAt, target int) {
	word := s.WordAt(fixupAt)
	delta := uint32((target-fixupAt)/4)
	if word&0xFC000000 == 0x14000000 {
		word |= delta & 0x03FFFFFF
	} else {
		word |= (delta & 0x7FFFF) << 5
	}
	s.PatchWord(fixupAt, word)
}

func imm12(v int) uint32 { return uint32(v) & 0xFFF }
