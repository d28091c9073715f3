package bytecode

// Opcode identifies a method bytecode instruction. The encoding is register
// based: each instruction occupies a fixed number of 16-bit code units, with
// the opcode in the low byte of the first unit and the first register operand
// in the high byte.
type Opcode uint8

const (
	Nop Opcode = iota
	Const
	Move
	Add
	Sub
	Mul
	Div
	Goto
	IfEq
	IfLt
	Return
	ReturnVoid
)

// IsBranch reports whether the opcode ends straight-line execution, either by
// transferring control or by returning.
func (op Opcode) IsBranch() bool {
	switch op {
	case Goto, IfEq, IfLt, Return, ReturnVoid:
		return true
	default:
		return false
	}
}

// Info describes the static shape of an opcode.
type Info struct {
	Opcode Opcode
	Name   string
	Units  int // code units occupied, including the opcode unit
}

var infos = [...]Info{
	Nop:        {Nop, "nop", 1},
	Const:      {Const, "const", 2},
	Move:       {Move, "move", 2},
	Add:        {Add, "add", 2},
	Sub:        {Sub, "sub", 2},
	Mul:        {Mul, "mul", 2},
	Div:        {Div, "div", 2},
	Goto:       {Goto, "goto", 2},
	IfEq:       {IfEq, "if-eq", 3},
	IfLt:       {IfLt, "if-lt", 3},
	Return:     {Return, "return", 1},
	ReturnVoid: {ReturnVoid, "return-void", 1},
}

// GetInfo returns the shape of the given opcode. The second return value is
// false for code units that do not decode to a known opcode.
func GetInfo(op Opcode) (Info, bool) {
	if int(op) >= len(infos) {
		return Info{}, false
	}
	in := infos[op]
	if in.Units == 0 {
		return Info{}, false
	}
	return in, true
}

// Unit assembles the first code unit of an instruction from an opcode and its
// A register operand.
func Unit(op Opcode, va uint8) uint16 {
	return uint16(op) | uint16(va)<<8
}

// Decode splits a first code unit into its opcode and A register operand.
func Decode(unit uint16) (Opcode, uint8) {
	return Opcode(unit & 0xff), uint8(unit >> 8)
}
