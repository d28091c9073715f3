package codegen

import (
	"github.com/deepnoodle-ai/methodc/ir"
	"github.com/deepnoodle-ai/methodc/isa"
)

// Capability bundles what a compiler instance knows about one instruction
// set: how to create a generator for it and whether register allocation is
// available on it.
type Capability struct {
	New         func(g *ir.Graph) Generator
	Allocatable bool
}

// Registry maps instruction sets to capabilities. It is resolved once per
// compiler instance and read-only afterwards, so it is safe for concurrent
// use.
type Registry struct {
	caps map[isa.Set]Capability
}

// NewRegistry returns a registry with every built-in backend registered.
func NewRegistry() *Registry {
	r := &Registry{caps: map[isa.Set]Capability{}}
	r.Register(isa.Thumb2, Capability{New: newFor(isa.Thumb2, newThumb2Encoder), Allocatable: true})
	r.Register(isa.ARM64, Capability{New: newFor(isa.ARM64, newARM64Encoder), Allocatable: true})
	r.Register(isa.X86, Capability{New: newFor(isa.X86, newX86Encoder), Allocatable: true})
	r.Register(isa.X86_64, Capability{New: newFor(isa.X86_64, newX8664Encoder), Allocatable: true})
	return r
}

func newFor(set isa.Set, enc func() encoder) func(g *ir.Graph) Generator {
	return func(g *ir.Graph) Generator {
		return &generator{g: g, set: set, enc: enc()}
	}
}

// Register installs or replaces the capability for a set.
func (r *Registry) Register(set isa.Set, c Capability) {
	r.caps[set] = c
}

// Create returns a generator for the graph on the given set, or nil when no
// backend is registered for it.
func (r *Registry) Create(g *ir.Graph, set isa.Set) Generator {
	c, ok := r.caps[set]
	if !ok {
		return nil
	}
	return c.New(g)
}

// Allocatable reports whether register allocation is available on the set.
func (r *Registry) Allocatable(set isa.Set) bool {
	c, ok := r.caps[set]
	return ok && c.Allocatable
}
