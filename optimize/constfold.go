package optimize

import "github.com/deepnoodle-ai/methodc/ir"

// ConstantFolding rewrites arithmetic on constant operands into the constant
// result. The instruction is converted in place, keeping its id, so no use
// rewriting is needed.
type ConstantFolding struct{}

// Name implements Pass.
func (ConstantFolding) Name() string { return "constant_folding" }

// Run implements Pass.
func (ConstantFolding) Run(g *ir.Graph) {
	for changed := true; changed; {
		changed = false
		for i := 0; i < g.NumValues(); i++ {
			in := g.Instr(ir.ValueID(i))
			if in.Removed() || len(in.Args) != 2 {
				continue
			}
			lhs, rhs := g.Instr(in.Args[0]), g.Instr(in.Args[1])
			if lhs.Op != ir.Const || rhs.Op != ir.Const {
				continue
			}
			var v int64
			switch in.Op {
			case ir.Add:
				v = lhs.Value + rhs.Value
			case ir.Sub:
				v = lhs.Value - rhs.Value
			case ir.Mul:
				v = lhs.Value * rhs.Value
			case ir.Div:
				if rhs.Value == 0 {
					// Folding away a trapping division would change behavior.
					continue
				}
				v = lhs.Value / rhs.Value
			default:
				continue
			}
			in.Op = ir.Const
			in.Value = v
			in.Args = nil
			changed = true
		}
	}
}
