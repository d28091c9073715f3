// Package compiler orchestrates per-method compilation: it gates each method
// on the target instruction set and shape, drives the optimized pipeline when
// the method is eligible, and falls back to baseline code generation when it
// is not.
//
// A single Compiler is shared by concurrent per-method compilations. Compile
// has exactly two externally visible outcomes: a finished artifact, or nil
// when this compiler declines the method and the driver should try the next
// tier. Internal invariant violations are not a third outcome; in strict mode
// they abort through the configured Fatalf, in production mode they are
// logged and the method is declined.
package compiler

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/methodc/bytecode"
	"github.com/deepnoodle-ai/methodc/codegen"
	"github.com/deepnoodle-ai/methodc/ir"
	"github.com/deepnoodle-ai/methodc/isa"
	"github.com/deepnoodle-ai/methodc/optimize"
	"github.com/deepnoodle-ai/methodc/regalloc"
	"github.com/deepnoodle-ai/methodc/ssa"
	"github.com/deepnoodle-ai/methodc/viz"
)

// Pathological method shapes are rejected before any graph is built: the
// worst observed real inputs stay well below these, and everything above is
// machine-generated stress input not worth compiling.
const (
	maxCodeUnits = 65535 * 4
	maxRegisters = 255
)

// Config contains compiler-wide settings. One Config is resolved at creation
// and never consulted again, so a Compiler is immutable after New.
type Config struct {
	// ISA is the target instruction set. ARM is normalized to Thumb2.
	ISA isa.Set

	// Optimizations enables the optimized compilation path for eligible
	// methods. When false every method takes the baseline path.
	Optimizations bool

	// IncludeDebugSymbols requests a source map alongside the mapping table.
	IncludeDebugSymbols bool

	// VisualizerOutput receives graph dumps between passes. Nil disables
	// dumping entirely.
	VisualizerOutput io.Writer

	// VisualizerFilter restricts dumping to methods whose name contains this
	// substring. The empty string matches every method.
	VisualizerFilter string

	// StrictMode aborts through Fatalf on internal invariant violations
	// instead of declining the method. Meant for test and bring-up drivers.
	StrictMode bool

	// Fatalf is invoked on strict-mode invariant violations. Defaults to a
	// zerolog fatal, which exits the process; tests install a recorder.
	Fatalf func(format string, args ...any)

	// Logger receives structured per-method events and the shutdown summary.
	Logger zerolog.Logger

	// Verified looks up post-verification metadata for a method; it feeds the
	// native GC map on the baseline path. Nil means no metadata.
	Verified func(m *bytecode.Method) *bytecode.VerifiedMethod
}

// DefaultConfig returns the configuration used when New is given nil:
// optimizations on, no visualizer, production (non-strict) error handling.
func DefaultConfig() *Config {
	return &Config{
		ISA:           isa.ARM64,
		Optimizations: true,
		Logger:        zerolog.Nop(),
	}
}

// Compiler compiles methods one at a time, concurrently if the caller wants.
type Compiler struct {
	cfg       Config
	set       isa.Set
	registry  *codegen.Registry
	allocator regalloc.Allocator
	fatalf    func(format string, args ...any)

	vizMu sync.Mutex

	total       atomic.Int64
	optimized   atomic.Int64
	unoptimized atomic.Int64
	closeOnce   sync.Once
}

// Stats is a point-in-time snapshot of the compilation counters.
type Stats struct {
	Total       int64
	Optimized   int64
	Unoptimized int64
}

// New creates a Compiler. A nil cfg means DefaultConfig. The instruction set
// is normalized once here; Compile never sees the raw configured value.
func New(cfg *Config) (*Compiler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &Compiler{
		cfg:       *cfg,
		set:       isa.Normalize(cfg.ISA),
		registry:  codegen.NewRegistry(),
		allocator: regalloc.LinearScan{},
		fatalf:    cfg.Fatalf,
	}
	if c.fatalf == nil {
		logger := cfg.Logger
		c.fatalf = func(format string, args ...any) {
			logger.Fatal().Msgf(format, args...)
		}
	}
	return c, nil
}

// Compile compiles one method and returns its artifact, or nil when this
// compiler declines the method. Safe for concurrent use.
func (c *Compiler) Compile(m *bytecode.Method) *codegen.Artifact {
	c.total.Add(1)

	logger := c.cfg.Logger.With().
		Str("method", m.Name()).
		Str("attempt_id", uuid.Must(uuid.NewV4()).String()).
		Stringer("isa", c.set).
		Logger()

	if !isa.Supported(c.set) {
		logger.Debug().Msg("instruction set not supported, declining")
		return nil
	}

	if m.CodeUnits() > maxCodeUnits || int(m.RegistersSize()) > maxRegisters {
		logger.Warn().
			Int("code_units", m.CodeUnits()).
			Uint16("registers", m.RegistersSize()).
			Msg("pathological method shape, declining")
		return nil
	}

	g, err := ir.Build(m)
	if err != nil {
		if m.MustCompile() {
			c.internalError(logger, "could not build graph for %s: %v", m.Name(), err)
			return nil
		}
		logger.Debug().Err(err).Msg("graph construction declined the method")
		return nil
	}

	gen := c.registry.Create(g, c.set)
	if gen == nil {
		if m.MustCompile() {
			c.internalError(logger, "no code generator for %s on %s", m.Name(), c.set)
			return nil
		}
		logger.Debug().Msg("no code generator for instruction set")
		return nil
	}

	dumper := c.visualizer(g, m)
	dumper.DumpGraph("builder")

	canOptimizeShape := !m.HasTries()

	if c.cfg.Optimizations && canOptimizeShape && regalloc.CanAllocateFor(g, c.set) {
		return c.compileOptimized(logger, m, g, gen, dumper)
	}

	// A must-optimize method reaching this point on a backend with allocator
	// support means register allocation regressed for it. With optimizations
	// globally disabled the marker is inert and the method goes baseline.
	if c.cfg.Optimizations && m.MustOptimize() && c.registry.Allocatable(c.set) {
		c.internalError(logger, "could not allocate registers for %s on %s", m.Name(), c.set)
		return nil
	}

	return c.compileBaseline(logger, m, g, gen, dumper, canOptimizeShape)
}

func (c *Compiler) compileOptimized(logger zerolog.Logger, m *bytecode.Method, g *ir.Graph, gen codegen.Generator, dumper viz.Sink) *codegen.Artifact {
	ssa.Transform(g)
	dumper.DumpGraph("ssa")
	ssa.FindNaturalLoops(g)

	optimize.Pipeline(g, dumper)

	live := ssa.Analyze(g)
	dumper.DumpGraph("liveness")

	asg, err := c.allocator.Allocate(g, live, c.set)
	if err != nil {
		c.internalError(logger, "register allocation failed for %s: %v", m.Name(), err)
		return nil
	}
	dumper.DumpGraph("register_allocator")

	sink := &codegen.Sink{}
	if err := gen.CompileOptimized(sink, asg); err != nil {
		c.internalError(logger, "optimized code generation failed for %s: %v", m.Name(), err)
		return nil
	}

	mapping, srcMap := gen.BuildMappingTable(c.cfg.IncludeDebugSymbols)
	c.optimized.Add(1)
	logger.Info().
		Int("code_size", sink.Len()).
		Int("frame_size", gen.FrameSize()).
		Msg("compiled optimized")

	return codegen.NewArtifact(codegen.ArtifactParams{
		Code:          sink.Bytes(),
		FrameSize:     gen.FrameSize(),
		CoreSpillMask: gen.CoreSpillMask(),
		ISA:           c.set,
		MappingTable:  mapping,
		SrcMap:        srcMap,
		StackMaps:     gen.BuildStackMaps(),
		Optimized:     true,
	})
}

func (c *Compiler) compileBaseline(logger zerolog.Logger, m *bytecode.Method, g *ir.Graph, gen codegen.Generator, dumper viz.Sink, canOptimizeShape bool) *codegen.Artifact {
	sink := &codegen.Sink{}
	if err := gen.CompileBaseline(sink); err != nil {
		c.internalError(logger, "baseline code generation failed for %s: %v", m.Name(), err)
		return nil
	}

	// Run the SSA and pass machinery on the structurally eligible methods the
	// optimized path skipped, discarding the results. This keeps the pass
	// code exercised on the whole input corpus rather than a marker-gated
	// sliver of it; a malformed-graph panic here is a real bug surfacing.
	if canOptimizeShape {
		ssa.Transform(g)
		dumper.DumpGraph("ssa")
		ssa.FindNaturalLoops(g)
		optimize.CoveragePasses(g)
		_ = ssa.Analyze(g)
		dumper.DumpGraph("liveness")
	}

	var vm *bytecode.VerifiedMethod
	if c.cfg.Verified != nil {
		vm = c.cfg.Verified(m)
	}
	mapping, srcMap := gen.BuildMappingTable(c.cfg.IncludeDebugSymbols)
	c.unoptimized.Add(1)
	logger.Info().
		Int("code_size", sink.Len()).
		Int("frame_size", gen.FrameSize()).
		Msg("compiled baseline")

	return codegen.NewArtifact(codegen.ArtifactParams{
		Code:          sink.Bytes(),
		FrameSize:     gen.FrameSize(),
		CoreSpillMask: gen.CoreSpillMask(),
		ISA:           c.set,
		MappingTable:  mapping,
		SrcMap:        srcMap,
		VMapTable:     gen.BuildVMapTable(),
		GCMap:         gen.BuildNativeGCMap(vm),
	})
}

// visualizer returns the dump sink for one method's compilation, honoring the
// output writer and name filter. Dumps from concurrent compilations are
// serialized onto the shared writer.
func (c *Compiler) visualizer(g *ir.Graph, m *bytecode.Method) viz.Sink {
	if c.cfg.VisualizerOutput == nil {
		return viz.Discard
	}
	out := &lockedWriter{mu: &c.vizMu, w: c.cfg.VisualizerOutput}
	return viz.NewWriter(out, g, m.Name(), c.cfg.VisualizerFilter)
}

// internalError handles an invariant violation: fatal in strict mode, logged
// in production mode. Either way the current method is declined.
func (c *Compiler) internalError(logger zerolog.Logger, format string, args ...any) {
	if c.cfg.StrictMode {
		c.fatalf(format, args...)
		return
	}
	logger.Error().Msg(fmt.Sprintf(format, args...))
}

// Stats returns a snapshot of the compilation counters.
func (c *Compiler) Stats() Stats {
	return Stats{
		Total:       c.total.Load(),
		Optimized:   c.optimized.Load(),
		Unoptimized: c.unoptimized.Load(),
	}
}

// Close logs the shutdown summary once. The Compiler remains usable; Close
// only marks the end of a compilation session for reporting.
func (c *Compiler) Close() error {
	c.closeOnce.Do(func() {
		s := c.Stats()
		attempted := s.Optimized + s.Unoptimized
		event := c.cfg.Logger.Info().
			Int64("total", s.Total).
			Int64("optimized", s.Optimized).
			Int64("unoptimized", s.Unoptimized)
		if attempted > 0 {
			event = event.
				Str("optimized_pct", percent(s.Optimized, attempted)).
				Str("unoptimized_pct", percent(s.Unoptimized, attempted))
		}
		event.Msg("compilation session summary")
	})
	return nil
}

func percent(n, of int64) string {
	return fmt.Sprintf("%.2f%%", float64(n)*100/float64(of))
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
