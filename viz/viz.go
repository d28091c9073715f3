// Package viz renders IR graph snapshots between compiler phases for
// offline inspection. The output format is owned by this package; nothing in
// the pipeline depends on it.
package viz

import (
	"fmt"
	"io"
	"strings"

	"github.com/deepnoodle-ai/methodc/ir"
)

// Sink receives a graph snapshot keyed by the pass that just ran.
type Sink interface {
	DumpGraph(passName string)
}

type discard struct{}

func (discard) DumpGraph(string) {}

// Discard is a Sink that drops every dump.
var Discard Sink = discard{}

// Writer dumps a method's graph as text, one section per pass. A writer is
// bound to one graph for the duration of its compilation.
type Writer struct {
	w      io.Writer
	g      *ir.Graph
	method string
}

// NewWriter creates a Writer for one method's compilation. It returns Discard
// when out is nil or the method name does not contain the filter, so callers
// can dump unconditionally.
func NewWriter(out io.Writer, g *ir.Graph, method, filter string) Sink {
	if out == nil || !strings.Contains(method, filter) {
		return Discard
	}
	return &Writer{w: out, g: g, method: method}
}

// DumpGraph implements Sink. The whole section is rendered first and emitted
// as a single write, so dumps from concurrent compilations sharing a
// serialized writer never interleave mid-record.
func (v *Writer) DumpGraph(passName string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "begin_cfg\n  method %q\n  pass %q\n", v.method, passName)
	for i := 0; i < v.g.NumBlocks(); i++ {
		b := v.g.Block(ir.BlockID(i))
		fmt.Fprintf(&sb, "  block B%d preds %s succs %s\n", b.ID, blockList(b.Preds), blockList(b.Succs))
		for _, id := range b.Phis {
			v.dumpInstr(&sb, id)
		}
		for _, id := range b.Instrs {
			v.dumpInstr(&sb, id)
		}
	}
	sb.WriteString("end_cfg\n")
	io.WriteString(v.w, sb.String())
}

func (v *Writer) dumpInstr(sb *strings.Builder, id ir.ValueID) {
	in := v.g.Instr(id)
	fmt.Fprintf(sb, "    v%d %s", id, in.Op)
	for _, a := range in.Args {
		fmt.Fprintf(sb, " v%d", a)
	}
	switch in.Op {
	case ir.Const:
		fmt.Fprintf(sb, " #%d", in.Value)
	case ir.LoadLocal, ir.StoreLocal, ir.Phi, ir.Param:
		fmt.Fprintf(sb, " l%d", in.Local)
	}
	sb.WriteByte('\n')
}

func blockList(ids []ir.BlockID) string {
	if len(ids) == 0 {
		return "[]"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("B%d", id)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
