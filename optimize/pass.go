// Package optimize holds the graph-rewriting passes and the fixed pipeline
// that drives them.
//
// The pipeline order is deliberate and order-sensitive: later passes rely on
// properties earlier ones establish, and several passes are not idempotent.
// Every pass must leave the graph structurally well-formed; the pipeline
// checks that after each run and treats a violation as an internal compiler
// error, never a per-method outcome.
package optimize

import (
	"fmt"

	"github.com/deepnoodle-ai/methodc/ir"
)

// Pass is one graph transformation. Passes are stateless between runs and are
// invoked by the pipeline without inspection of their internals.
type Pass interface {
	Name() string
	Run(g *ir.Graph)
}

// DumpSink receives a graph snapshot after each pass, keyed by pass name. It
// is a pure side effect with no influence on later passes.
type DumpSink interface {
	DumpGraph(passName string)
}

// Passes returns the full optimization sequence in its fixed order.
func Passes() []Pass {
	return []Pass{
		DeadCodeElimination{},
		ConstantFolding{},
		RedundantPhiElimination{},
		DeadPhiElimination{},
		InstructionSimplifier{name: "instruction_simplifier"},
		GlobalValueNumbering{},
		// GVN exposes rewrites the first simplifier run could not see.
		InstructionSimplifier{name: "instruction_simplifier_after_gvn"},
	}
}

// Pipeline runs the full pass sequence on an SSA graph, validating
// well-formedness after every pass and dumping each intermediate state to the
// sink.
func Pipeline(g *ir.Graph, sink DumpSink) {
	for _, pass := range Passes() {
		pass.Run(g)
		if err := ir.Check(g); err != nil {
			panic(fmt.Sprintf("optimize: graph malformed after %s: %v", pass.Name(), err))
		}
		sink.DumpGraph(pass.Name())
	}
}

// CoveragePasses runs the reduced subset exercised on the baseline path. The
// results are discarded by the caller; the point is to run pass code on every
// structurally eligible method, not just marker-gated ones.
func CoveragePasses(g *ir.Graph) {
	for _, pass := range []Pass{
		RedundantPhiElimination{},
		DeadPhiElimination{},
		GlobalValueNumbering{},
	} {
		pass.Run(g)
		if err := ir.Check(g); err != nil {
			panic(fmt.Sprintf("optimize: graph malformed after %s: %v", pass.Name(), err))
		}
	}
}
