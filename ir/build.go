package ir

import (
	"fmt"
	"sort"

	"github.com/deepnoodle-ai/methodc/bytecode"
)

// Build constructs a control-flow graph from the method's code units. A nil
// graph with an error covers both unsupported bytecode shapes and malformed
// input; callers treat every build failure as ineligibility.
//
// The resulting graph is in non-SSA form: virtual registers are modeled with
// LoadLocal/StoreLocal, and incoming arguments are Param definitions stored
// into the trailing registers of the frame, in a dedicated entry block.
func Build(m *bytecode.Method) (*Graph, error) {
	if m.CodeUnits() == 0 {
		return nil, fmt.Errorf("build: empty method body")
	}
	if int(m.InsSize()) > int(m.RegistersSize()) {
		return nil, fmt.Errorf("build: ins size %d exceeds register frame %d", m.InsSize(), m.RegistersSize())
	}

	starts, targets, err := scan(m)
	if err != nil {
		return nil, err
	}

	// Block leaders: the method start, every branch target, and every
	// instruction following a terminator.
	leaders := map[int]bool{0: true}
	for t := range targets {
		if !starts[t] {
			return nil, fmt.Errorf("build: branch target %d is not an instruction boundary", t)
		}
		leaders[t] = true
	}
	for off := range starts {
		op, _ := bytecode.Decode(m.Insn(off))
		info, _ := bytecode.GetInfo(op)
		next := off + info.Units
		if op.IsBranch() && next < m.CodeUnits() {
			leaders[next] = true
		}
	}

	g := NewGraph(int(m.RegistersSize()))
	entry := g.NewBlock(0)
	g.Entry = entry

	offsets := make([]int, 0, len(leaders))
	for off := range leaders {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	blockAt := make(map[int]BlockID, len(offsets))
	for _, off := range offsets {
		blockAt[off] = g.NewBlock(off)
	}

	// Incoming arguments occupy the trailing registers of the frame.
	firstIn := int(m.RegistersSize()) - int(m.InsSize())
	for i := 0; i < int(m.InsSize()); i++ {
		p := g.NewInstr(entry, Instruction{Op: Param, Local: i})
		g.NewInstr(entry, Instruction{Op: StoreLocal, Local: firstIn + i, Args: []ValueID{p}})
	}
	g.NewInstr(entry, Instruction{Op: Goto})
	g.AddEdge(entry, blockAt[0])

	if err := emit(g, m, blockAt); err != nil {
		return nil, err
	}

	for _, off := range offsets {
		if b := g.Block(blockAt[off]); len(b.Preds) == 0 {
			return nil, fmt.Errorf("build: unreachable code at offset %d", off)
		}
	}
	return g, nil
}

// scan validates the instruction stream and returns the set of instruction
// boundaries and the set of branch targets.
func scan(m *bytecode.Method) (starts, targets map[int]bool, err error) {
	starts = make(map[int]bool)
	targets = make(map[int]bool)
	off := 0
	for off < m.CodeUnits() {
		op, va := bytecode.Decode(m.Insn(off))
		info, ok := bytecode.GetInfo(op)
		if !ok {
			return nil, nil, fmt.Errorf("build: unknown opcode %#x at offset %d", uint8(op), off)
		}
		if off+info.Units > m.CodeUnits() {
			return nil, nil, fmt.Errorf("build: truncated %s at offset %d", info.Name, off)
		}
		starts[off] = true
		if err := checkRegs(m, op, va, off); err != nil {
			return nil, nil, err
		}
		switch op {
		case bytecode.Goto:
			targets[int(m.Insn(off+1))] = true
		case bytecode.IfEq, bytecode.IfLt:
			targets[int(m.Insn(off+2))] = true
		}
		off += info.Units
	}
	for t := range targets {
		if t >= m.CodeUnits() {
			return nil, nil, fmt.Errorf("build: branch target %d past end of method", t)
		}
	}
	return starts, targets, nil
}

func checkRegs(m *bytecode.Method, op bytecode.Opcode, va uint8, off int) error {
	limit := int(m.RegistersSize())
	bad := func(r uint8) bool { return int(r) >= limit }
	switch op {
	case bytecode.Const, bytecode.Return:
		if bad(va) {
			return fmt.Errorf("build: register v%d out of range at offset %d", va, off)
		}
	case bytecode.Move:
		if bad(va) || bad(uint8(m.Insn(off+1))) {
			return fmt.Errorf("build: register out of range at offset %d", off)
		}
	case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div:
		operands := m.Insn(off + 1)
		if bad(va) || bad(uint8(operands&0xff)) || bad(uint8(operands>>8)) {
			return fmt.Errorf("build: register out of range at offset %d", off)
		}
	case bytecode.IfEq, bytecode.IfLt:
		if bad(va) || bad(uint8(m.Insn(off+1))) {
			return fmt.Errorf("build: register out of range at offset %d", off)
		}
	}
	return nil
}

// emit translates each instruction into IR in its containing block and wires
// the control-flow edges.
func emit(g *Graph, m *bytecode.Method, blockAt map[int]BlockID) error {
	cur := blockAt[0]
	off := 0
	for off < m.CodeUnits() {
		if b, ok := blockAt[off]; ok {
			// Falling into a new block: close the previous one if its
			// terminator is still missing.
			if b != cur {
				prev := g.Block(cur)
				if t := prev.Terminator(); t == NoValue || !g.Instr(t).Op.IsTerminator() {
					g.NewInstr(cur, Instruction{Op: Goto, Offset: off})
					g.AddEdge(cur, b)
				}
				cur = b
			}
		}
		op, va := bytecode.Decode(m.Insn(off))
		info, _ := bytecode.GetInfo(op)
		load := func(r uint8) ValueID {
			return g.NewInstr(cur, Instruction{Op: LoadLocal, Local: int(r), Offset: off})
		}
		store := func(r uint8, v ValueID) {
			g.NewInstr(cur, Instruction{Op: StoreLocal, Local: int(r), Args: []ValueID{v}, Offset: off})
		}
		switch op {
		case bytecode.Nop:
		case bytecode.Const:
			c := g.NewInstr(cur, Instruction{Op: Const, Value: int64(int16(m.Insn(off + 1))), Offset: off})
			store(va, c)
		case bytecode.Move:
			store(va, load(uint8(m.Insn(off+1))))
		case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div:
			operands := m.Insn(off + 1)
			lhs := load(uint8(operands & 0xff))
			rhs := load(uint8(operands >> 8))
			r := g.NewInstr(cur, Instruction{Op: arithOp(op), Args: []ValueID{lhs, rhs}, Offset: off})
			store(va, r)
		case bytecode.Goto:
			g.NewInstr(cur, Instruction{Op: Goto, Offset: off})
			g.AddEdge(cur, blockAt[int(m.Insn(off+1))])
		case bytecode.IfEq, bytecode.IfLt:
			lhs := load(va)
			rhs := load(uint8(m.Insn(off + 1)))
			cond := CondEq
			if op == bytecode.IfLt {
				cond = CondLt
			}
			g.NewInstr(cur, Instruction{Op: If, Cond: cond, Args: []ValueID{lhs, rhs}, Offset: off})
			next := off + info.Units
			if next >= m.CodeUnits() {
				return fmt.Errorf("build: conditional branch at offset %d falls off the method end", off)
			}
			g.AddEdge(cur, blockAt[int(m.Insn(off+2))])
			g.AddEdge(cur, blockAt[next])
		case bytecode.Return:
			g.NewInstr(cur, Instruction{Op: Return, Args: []ValueID{load(va)}, Offset: off})
		case bytecode.ReturnVoid:
			g.NewInstr(cur, Instruction{Op: ReturnVoid, Offset: off})
		}
		off += info.Units
	}
	// The stream must not fall off the end of the method.
	last := g.Block(cur)
	if t := last.Terminator(); t == NoValue || !g.Instr(t).Op.IsTerminator() {
		return fmt.Errorf("build: control falls off the method end")
	}
	return nil
}

func arithOp(op bytecode.Opcode) Op {
	switch op {
	case bytecode.Add:
		return Add
	case bytecode.Sub:
		return Sub
	case bytecode.Mul:
		return Mul
	default:
		return Div
	}
}
