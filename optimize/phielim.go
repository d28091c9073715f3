package optimize

import "github.com/deepnoodle-ai/methodc/ir"

// RedundantPhiElimination removes phis whose inputs all carry the same value
// (counting the phi itself), rewriting uses to that value. Eliminating one
// phi can make another redundant, so it loops to a fixpoint.
type RedundantPhiElimination struct{}

// Name implements Pass.
func (RedundantPhiElimination) Name() string { return "redundant_phi_elimination" }

// Run implements Pass.
func (RedundantPhiElimination) Run(g *ir.Graph) {
	for changed := true; changed; {
		changed = false
		for i := 0; i < g.NumBlocks(); i++ {
			b := g.Block(ir.BlockID(i))
			for _, id := range append([]ir.ValueID(nil), b.Phis...) {
				phi := g.Instr(id)
				if phi.Removed() {
					continue
				}
				same := ir.NoValue
				redundant := true
				for _, a := range phi.Args {
					if a == id || a == same {
						continue
					}
					if same == ir.NoValue {
						same = a
						continue
					}
					redundant = false
					break
				}
				if !redundant || same == ir.NoValue {
					continue
				}
				g.ReplaceUses(id, same)
				g.Remove(id)
				changed = true
			}
		}
	}
}

// DeadPhiElimination removes phis with no remaining uses. Phis used only by
// other dead phis fall in later iterations of the fixpoint loop.
type DeadPhiElimination struct{}

// Name implements Pass.
func (DeadPhiElimination) Name() string { return "dead_phi_elimination" }

// Run implements Pass.
func (DeadPhiElimination) Run(g *ir.Graph) {
	for changed := true; changed; {
		changed = false
		for i := 0; i < g.NumBlocks(); i++ {
			b := g.Block(ir.BlockID(i))
			for _, id := range append([]ir.ValueID(nil), b.Phis...) {
				if g.Instr(id).Removed() {
					continue
				}
				if !g.HasUses(id) {
					g.Remove(id)
					changed = true
				}
			}
		}
	}
}
