package codegen

import "github.com/deepnoodle-ai/methodc/ir"

// x86Encoder emits IA-32. The tiny register file leaves only eax and ecx
// allocatable; edx, ebx and esi serve as scratch and edi as the assembler
// temporary for three-operand arithmetic lowered onto two-operand forms.
type x86Encoder struct{}

func newX86Encoder() encoder { return x86Encoder{} }

// physical encoding numbers for abstract register indices
var x86Regs = [...]int{0 /* eax */, 1 /* ecx */, 2 /* edx */, 3 /* ebx */, 6 /* esi */}

const x86Temp = 7 // edi

func (x86Encoder) scratch(i int) int { return 2 + i }

func (x86Encoder) phys(r int) int {
	if r < len(x86Regs) {
		return x86Regs[r]
	}
	return x86Temp
}

func modrm(mod, reg, rm int) byte {
	return byte(mod<<6 | reg<<3 | rm)
}

func (x86Encoder) prologue(s *Sink, frameSize int, spillMask uint32) {
	s.Byte(0x55)             // push ebp
	s.Byte(0x89)             // mov ebp, esp
	s.Byte(modrm(3, 4, 5))
	s.Byte(0x81)             // sub esp, imm32
	s.Byte(modrm(3, 5, 4))
	s.Word(uint32(frameSize))
}

func (x86Encoder) epilogue(s *Sink, frameSize int, spillMask uint32) {
	s.Byte(0x89) // mov esp, ebp
	s.Byte(modrm(3, 5, 4))
	s.Byte(0x5D) // pop ebp
}

func (x86Encoder) ret(s *Sink) { s.Byte(0xC3) }

func (e x86Encoder) loadImm(s *Sink, reg int, v int64) {
	s.Byte(byte(0xB8 + e.phys(reg))) // mov r32, imm32
	s.Word(uint32(int32(v)))
}

func (e x86Encoder) move(s *Sink, dst, src int) {
	s.Byte(0x89) // mov r/m32, r32
	s.Byte(modrm(3, e.phys(src), e.phys(dst)))
}

func (e x86Encoder) loadSlot(s *Sink, reg, slot int) {
	s.Byte(0x8B) // mov r32, [esp+disp32]
	s.Byte(modrm(2, e.phys(reg), 4))
	s.Byte(0x24)
	s.Word(uint32(slot * 4))
}

func (e x86Encoder) storeSlot(s *Sink, reg, slot int) {
	s.Byte(0x89) // mov [esp+disp32], r32
	s.Byte(modrm(2, e.phys(reg), 4))
	s.Byte(0x24)
	s.Word(uint32(slot * 4))
}

// arith lowers three-operand arithmetic through the temporary so operand
// aliasing can never clobber a live input.
func (e x86Encoder) arith(s *Sink, op ir.Op, dst, lhs, rhs int) {
	s.Byte(0x89) // mov temp, lhs
	s.Byte(modrm(3, e.phys(lhs), x86Temp))
	switch op {
	case ir.Add:
		s.Byte(0x01)
		s.Byte(modrm(3, e.phys(rhs), x86Temp))
	case ir.Sub:
		s.Byte(0x29)
		s.Byte(modrm(3, e.phys(rhs), x86Temp))
	case ir.Mul:
		s.Byte(0x0F)
		s.Byte(0xAF) // imul r32, r/m32
		s.Byte(modrm(3, x86Temp, e.phys(rhs)))
	case ir.Div:
		s.Byte(0xF7) // idiv r/m32
		s.Byte(modrm(3, 7, e.phys(rhs)))
	}
	s.Byte(0x89) // mov dst, temp
	s.Byte(modrm(3, x86Temp, e.phys(dst)))
}

func (e x86Encoder) compare(s *Sink, lhs, rhs int) {
	s.Byte(0x39) // cmp r/m32, r32
	s.Byte(modrm(3, e.phys(rhs), e.phys(lhs)))
}

func (x86Encoder) jump(s *Sink) int {
	s.Byte(0xE9) // jmp rel32
	at := s.Len()
	s.Word(0)
	return at
}

func (x86Encoder) jumpCond(s *Sink, cond ir.Cond) int {
	s.Byte(0x0F)
	if cond == ir.CondEq {
		s.Byte(0x84) // je rel32
	} else {
		s.Byte(0x8C) // jl rel32
	}
	at := s.Len()
	s.Word(0)
	return at
}

func (x86Encoder) patch(s *Sink, fixupAt, target int) {
	s.PatchWord(fixupAt, uint32(int32(target-(fixupAt+4))))
}
