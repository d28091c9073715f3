package optimize

import "github.com/deepnoodle-ai/methodc/ir"

// DeadCodeElimination removes pure instructions whose values have no
// remaining uses. Phi nodes are left to the dedicated phi passes.
type DeadCodeElimination struct{}

// Name implements Pass.
func (DeadCodeElimination) Name() string { return "dead_code_elimination" }

// Run implements Pass. Removal can strand further instructions, so it loops
// to a fixpoint.
func (DeadCodeElimination) Run(g *ir.Graph) {
	for changed := true; changed; {
		changed = false
		for i := 0; i < g.NumValues(); i++ {
			id := ir.ValueID(i)
			in := g.Instr(id)
			if in.Removed() || in.Op == ir.Phi || !in.Op.IsPure() || !in.Op.HasValue() {
				continue
			}
			if !g.HasUses(id) {
				g.Remove(id)
				changed = true
			}
		}
	}
}
