package optimize

import "github.com/deepnoodle-ai/methodc/ir"

// InstructionSimplifier applies local algebraic rewrites: additive and
// multiplicative identities, multiplication by zero, and self-subtraction.
// It runs twice in the pipeline because value numbering exposes operand
// sharing the first run could not see.
type InstructionSimplifier struct {
	name string
}

// Name implements Pass.
func (p InstructionSimplifier) Name() string {
	if p.name == "" {
		return "instruction_simplifier"
	}
	return p.name
}

// Run implements Pass.
func (p InstructionSimplifier) Run(g *ir.Graph) {
	for changed := true; changed; {
		changed = false
		for i := 0; i < g.NumValues(); i++ {
			id := ir.ValueID(i)
			in := g.Instr(id)
			if in.Removed() || len(in.Args) != 2 {
				continue
			}
			lhs, rhs := in.Args[0], in.Args[1]
			if v, ok := p.identity(g, in.Op, lhs, rhs); ok {
				g.ReplaceUses(id, v)
				g.Remove(id)
				changed = true
				continue
			}
			if p.annihilates(g, in, lhs, rhs) {
				in.Op = ir.Const
				in.Value = 0
				in.Args = nil
				changed = true
			}
		}
	}
}

// identity returns the operand the instruction reduces to, if any:
// x+0, 0+x, x-0, x*1, 1*x, x/1.
func (p InstructionSimplifier) identity(g *ir.Graph, op ir.Op, lhs, rhs ir.ValueID) (ir.ValueID, bool) {
	switch op {
	case ir.Add:
		if isConst(g, rhs, 0) {
			return lhs, true
		}
		if isConst(g, lhs, 0) {
			return rhs, true
		}
	case ir.Sub:
		if isConst(g, rhs, 0) {
			return lhs, true
		}
	case ir.Mul:
		if isConst(g, rhs, 1) {
			return lhs, true
		}
		if isConst(g, lhs, 1) {
			return rhs, true
		}
	case ir.Div:
		if isConst(g, rhs, 1) {
			return lhs, true
		}
	}
	return ir.NoValue, false
}

// annihilates reports whether the instruction always produces zero:
// x*0, 0*x, x-x.
func (p InstructionSimplifier) annihilates(g *ir.Graph, in *ir.Instruction, lhs, rhs ir.ValueID) bool {
	switch in.Op {
	case ir.Mul:
		return isConst(g, lhs, 0) || isConst(g, rhs, 0)
	case ir.Sub:
		return lhs == rhs
	default:
		return false
	}
}

func isConst(g *ir.Graph, id ir.ValueID, v int64) bool {
	in := g.Instr(id)
	return in.Op == ir.Const && in.Value == v
}
