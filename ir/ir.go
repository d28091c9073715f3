// Package ir defines the method intermediate representation: a control-flow
// graph of typed operations built from one method's bytecode.
//
// All blocks and instructions live in slices owned by the Graph, and all
// cross-references are integer ids into those slices. One compilation owns one
// graph; dropping the graph releases every node at once, so there is no
// per-node deallocation anywhere in the compiler.
//
// The graph starts in non-SSA form, with LoadLocal/StoreLocal instructions
// modeling the method's virtual registers. SSA construction replaces those
// with direct value flow and phi nodes and sets InSSA.
package ir

// ValueID identifies an instruction (and the value it defines) within a Graph.
type ValueID int32

// BlockID identifies a basic block within a Graph.
type BlockID int32

// NoValue is the absent ValueID.
const NoValue ValueID = -1

// NoBlock is the absent BlockID.
const NoBlock BlockID = -1

// Op is an IR operation.
type Op uint8

const (
	Nop Op = iota
	Param
	Const
	Add
	Sub
	Mul
	Div
	LoadLocal
	StoreLocal
	Goto
	If
	Return
	ReturnVoid
	Phi
)

// String returns the lowercase operation name.
func (op Op) String() string {
	switch op {
	case Nop:
		return "nop"
	case Param:
		return "param"
	case Const:
		return "const"
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Mul:
		return "mul"
	case Div:
		return "div"
	case LoadLocal:
		return "load_local"
	case StoreLocal:
		return "store_local"
	case Goto:
		return "goto"
	case If:
		return "if"
	case Return:
		return "return"
	case ReturnVoid:
		return "return_void"
	case Phi:
		return "phi"
	default:
		return "invalid"
	}
}

// Cond is the comparison kind of an If instruction.
type Cond uint8

const (
	CondEq Cond = iota
	CondLt
)

// IsTerminator reports whether the operation ends a basic block.
func (op Op) IsTerminator() bool {
	switch op {
	case Goto, If, Return, ReturnVoid:
		return true
	default:
		return false
	}
}

// HasValue reports whether the operation defines a value usable as an operand.
func (op Op) HasValue() bool {
	switch op {
	case Param, Const, Add, Sub, Mul, Div, LoadLocal, Phi:
		return true
	default:
		return false
	}
}

// IsPure reports whether the operation has no side effects and may be removed
// when its value is unused, or deduplicated by value numbering.
func (op Op) IsPure() bool {
	switch op {
	case Const, Add, Sub, Mul, Phi:
		return true
	default:
		// Div can trap on a zero divisor, so it is not freely removable.
		return false
	}
}

// Instruction is one IR operation. Instances live in the owning Graph's
// backing slice and are addressed by ValueID.
type Instruction struct {
	Op    Op
	Cond  Cond      // If only
	Args  []ValueID // value operands
	Value int64     // Const payload
	Local int       // LoadLocal/StoreLocal/Phi register index
	Block BlockID   // owning block
	// Offset is the originating bytecode code-unit offset, carried through to
	// the mapping table.
	Offset int

	removed bool
}

// Removed reports whether the instruction has been detached from the graph.
func (in *Instruction) Removed() bool { return in.removed }

// Block is a basic block. Phis (SSA only) precede Instrs; the last entry of
// Instrs is the block terminator.
type Block struct {
	ID         BlockID
	Preds      []BlockID
	Succs      []BlockID
	Phis       []ValueID
	Instrs     []ValueID
	Offset     int // starting bytecode code-unit offset
	LoopHeader bool
}

// Terminator returns the block's terminating instruction id, or NoValue for
// an empty block.
func (b *Block) Terminator() ValueID {
	if len(b.Instrs) == 0 {
		return NoValue
	}
	return b.Instrs[len(b.Instrs)-1]
}
