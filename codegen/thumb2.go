package codegen

import "github.com/deepnoodle-ai/methodc/ir"

// thumb2Encoder emits Thumb2: 16-bit halfwords with 32-bit forms for wide
// immediates and branches. Abstract registers 0..7 map onto r0..r7; r8, r9
// and r10 serve as scratch, r12 as the assembler temporary.
type thumb2Encoder struct{}

func newThumb2Encoder() encoder { return thumb2Encoder{} }

func (thumb2Encoder) scratch(i int) int { return [3]int{8, 9, 10}[i] }

func (thumb2Encoder) prologue(s *Sink, frameSize int, spillMask uint32) {
	s.Half(0xB5F0)                             // push {r4-r7, lr}
	s.Half(0xB080 | uint16(frameSize/4)&0x7F)  // sub sp, #frame
}

func (thumb2Encoder) epilogue(s *Sink, frameSize int, spillMask uint32) {
	s.Half(0xB000 | uint16(frameSize/4)&0x7F) // add sp, #frame
	s.Half(0xBCF0)                            // pop {r4-r7}
}

func (thumb2Encoder) ret(s *Sink) { s.Half(0x4770) } // bx lr

func (thumb2Encoder) loadImm(s *Sink, reg int, v int64) {
	// movw: low 16 bits of the constant
	s.Half(0xF240 | uint16(reg))
	s.Half(uint16(v))
}

func (thumb2Encoder) move(s *Sink, dst, src int) {
	s.Half(0x4600 | uint16(src)<<3 | uint16(dst&7) | uint16(dst&8)<<4)
}

// Slot access uses the 16-bit SP-relative forms for r0-r7; the scratch
// registers r8-r10 need the wide T3 encodings.
func (thumb2Encoder) loadSlot(s *Sink, reg, slot int) {
	if reg < 8 {
		s.Half(0x9800 | uint16(reg)<<8 | uint16(slot)&0xFF) // ldr r, [sp, #slot]
		return
	}
	s.Half(0xF8DD) // ldr.w r, [sp, #slot*4]
	s.Half(uint16(reg)<<12 | uint16(slot*4)&0xFFF)
}

func (thumb2Encoder) storeSlot(s *Sink, reg, slot int) {
	if reg < 8 {
		s.Half(0x9000 | uint16(reg)<<8 | uint16(slot)&0xFF) // str r, [sp, #slot]
		return
	}
	s.Half(0xF8CD) // str.w r, [sp, #slot*4]
	s.Half(uint16(reg)<<12 | uint16(slot*4)&0xFFF)
}

func (e thumb2Encoder) arith(s *Sink, op ir.Op, dst, lhs, rhs int) {
	switch op {
	case ir.Add:
		s.Half(0xEB00 | uint16(lhs)) // add.w
		s.Half(uint16(dst)<<8 | uint16(rhs))
	case ir.Sub:
		s.Half(0xEBA0 | uint16(lhs)) // sub.w
		s.Half(uint16(dst)<<8 | uint16(rhs))
	case ir.Mul:
		s.Half(0xFB00 | uint16(lhs)) // mul
		s.Half(0xF000 | uint16(dst)<<8 | uint16(rhs))
	case ir.Div:
		s.Half(0xFB90 | uint16(lhs)) // sdiv
		s.Half(0xF0F0 | uint16(dst)<<8 | uint16(rhs))
	}
}

func (thumb2Encoder) compare(s *Sink, lhs, rhs int) {
	s.Half(0xEB10 | uint16(lhs)) // cmp.w
	s.Half(0x0F00 | uint16(rhs))
}

func (thumb2Encoder) jump(s *Sink) int {
	s.Half(0xF000) // b.w, displacement word patched later
	at := s.Len()
	s.Word(0)
	return at
}

func (thumb2Encoder) jumpCond(s *Sink, cond ir.Cond) int {
	cc := uint16(0x0) // eq
	if cond == ir.CondLt {
		cc = 0xB // lt
	}
	s.Half(0xF040 | cc)
	at := s.Len()
	s.Word(0)
	return at
}

func (thumb2Encoder) patch(s *Sink, fixupAt, target int) {
	s.PatchWord(fixupAt, uint32(target-(fixupAt+4)))
}
