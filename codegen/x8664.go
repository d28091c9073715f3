package codegen

import "github.com/deepnoodle-ai/methodc/ir"

// x8664Encoder emits x86-64: the IA-32 forms with a REX.W prefix and the
// extended register file. Abstract registers 0..9 map onto
// rax/rcx/rdx/rbx/rsi/rdi/r8..r11; r12..r14 serve as scratch and r15 as the
// assembler temporary.
type x8664Encoder struct{}

func newX8664Encoder() encoder { return x8664Encoder{} }

var x8664Regs = [...]int{0, 1, 2, 3, 6, 7, 8, 9, 10, 11, 12, 13, 14}

const x8664Temp = 15 // r15

func (x8664Encoder) scratch(i int) int { return 10 + i }

func (x8664Encoder) phys(r int) int {
	if r < len(x8664Regs) {
		return x8664Regs[r]
	}
	return x8664Temp
}

// rex assembles the REX.W prefix with the extension bits for the ModRM reg
// and rm operands.
func rex(reg, rm int) byte {
	b := byte(0x48)
	if reg >= 8 {
		b |= 0x04
	}
	if rm >= 8 {
		b |= 0x01
	}
	return b
}

func (x8664Encoder) prologue(s *Sink, frameSize int, spillMask uint32) {
	s.Byte(0x55) // push rbp
	s.Byte(0x48) // mov rbp, rsp
	s.Byte(0x89)
	s.Byte(modrm(3, 4, 5))
	s.Byte(0x48) // sub rsp, imm32
	s.Byte(0x81)
	s.Byte(modrm(3, 5, 4))
	s.Word(uint32(frameSize))
}

func (x8664Encoder) epilogue(s *Sink, frameSize int, spillMask uint32) {
	s.Byte(0x48) // mov rsp, rbp
	s.Byte(0x89)
	s.Byte(modrm(3, 5, 4))
	s.Byte(0x5D) // pop rbp
}

func (x8664Encoder) ret(s *Sink) { s.Byte(0xC3) }

func (e x8664Encoder) loadImm(s *Sink, reg int, v int64) {
	p := e.phys(reg)
	s.Byte(rex(0, p)) // mov r/m64, imm32 (sign-extended)
	s.Byte(0xC7)
	s.Byte(modrm(3, 0, p&7))
	s.Word(uint32(int32(v)))
}

func (e x8664Encoder) move(s *Sink, dst, src int) {
	ps, pd := e.phys(src), e.phys(dst)
	s.Byte(rex(ps, pd))
	s.Byte(0x89)
	s.Byte(modrm(3, ps&7, pd&7))
}

func (e x8664Encoder) loadSlot(s *Sink, reg, slot int) {
	p := e.phys(reg)
	s.Byte(rex(p, 4))
	s.Byte(0x8B) // mov r64, [rsp+disp32]
	s.Byte(modrm(2, p&7, 4))
	s.Byte(0x24)
	s.Word(uint32(slot * 8))
}

func (e x8664Encoder) storeSlot(s *Sink, reg, slot int) {
	p := e.phys(reg)
	s.Byte(rex(p, 4))
	s.Byte(0x89) // mov [rsp+disp32], r64
	s.Byte(modrm(2, p&7, 4))
	s.Byte(0x24)
	s.Word(uint32(slot * 8))
}

// arith lowers through the temporary, as on IA-32.
func (e x8664Encoder) arith(s *Sink, op ir.Op, dst, lhs, rhs int) {
	pl, pr, pd := e.phys(lhs), e.phys(rhs), e.phys(dst)
	s.Byte(rex(pl, x8664Temp)) // mov temp, lhs
	s.Byte(0x89)
	s.Byte(modrm(3, pl&7, x8664Temp&7))
	switch op {
	case ir.Add:
		s.Byte(rex(pr, x8664Temp))
		s.Byte(0x01)
		s.Byte(modrm(3, pr&7, x8664Temp&7))
	case ir.Sub:
		s.Byte(rex(pr, x8664Temp))
		s.Byte(0x29)
		s.Byte(modrm(3, pr&7, x8664Temp&7))
	case ir.Mul:
		s.Byte(rex(x8664Temp, pr))
		s.Byte(0x0F)
		s.Byte(0xAF) // imul r64, r/m64
		s.Byte(modrm(3, x8664Temp&7, pr&7))
	case ir.Div:
		s.Byte(rex(0, pr))
		s.Byte(0xF7) // idiv r/m64
		s.Byte(modrm(3, 7, pr&7))
	}
	s.Byte(rex(x8664Temp, pd)) // mov dst, temp
	s.Byte(0x89)
	s.Byte(modrm(3, x8664Temp&7, pd&7))
}

func (e x8664Encoder) compare(s *Sink, lhs, rhs int) {
	pl, pr := e.phys(lhs), e.phys(rhs)
	s.Byte(rex(pr, pl))
	s.Byte(0x39) // cmp r/m64, r64
	s.Byte(modrm(3, pr&7, pl&7))
}

func (x8664Encoder) jump(s *Sink) int {
	s.Byte(0xE9)
	at := s.Len()
	s.Word(0)
	return at
}

func (x8664Encoder) jumpCond(s *Sink, cond ir.Cond) int {
	s.Byte(0x0F)
	if cond == ir.CondEq {
		s.Byte(0x84)
	} else {
		s.Byte(0x8C)
	}
	at := s.Len()
	s.Word(0)
	return at
}

func (x8664Encoder) patch(s *Sink, fixupAt, target int) {
	s.PatchWord(fixupAt, uint32(int32(target-(fixupAt+4))))
}
