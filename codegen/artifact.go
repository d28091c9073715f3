package codegen

import "github.com/deepnoodle-ai/methodc/isa"

// Artifact is the compiled result for one method. It is immutable after
// creation; ownership transfers to the invoking driver.
//
// The metadata differs by path: baseline artifacts carry a value-location map
// table and a native GC map, optimized artifacts carry a stack-map table
// instead, folding GC and deoptimization data into it. Both carry the
// bytecode-to-native mapping table.
type Artifact struct {
	code          []byte
	frameSize     int
	coreSpillMask uint32
	fpSpillMask   uint32
	set           isa.Set
	mappingTable  []byte
	srcMap        []byte
	vmapTable     []byte
	gcMap         []byte
	stackMaps     []byte
	optimized     bool
}

// ArtifactParams contains the inputs for creating an Artifact.
type ArtifactParams struct {
	Code          []byte
	FrameSize     int
	CoreSpillMask uint32
	FPSpillMask   uint32
	ISA           isa.Set
	MappingTable  []byte
	SrcMap        []byte
	VMapTable     []byte
	GCMap         []byte
	StackMaps     []byte
	Optimized     bool
}

// NewArtifact creates an immutable Artifact. All byte slices are copied.
func NewArtifact(p ArtifactParams) *Artifact {
	return &Artifact{
		code:          copyBytes(p.Code),
		frameSize:     p.FrameSize,
		coreSpillMask: p.CoreSpillMask,
		fpSpillMask:   p.FPSpillMask,
		set:           p.ISA,
		mappingTable:  copyBytes(p.MappingTable),
		srcMap:        copyBytes(p.SrcMap),
		vmapTable:     copyBytes(p.VMapTable),
		gcMap:         copyBytes(p.GCMap),
		stackMaps:     copyBytes(p.StackMaps),
		optimized:     p.Optimized,
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Code returns a copy of the machine code bytes.
func (a *Artifact) Code() []byte { return copyBytes(a.code) }

// CodeSize returns the machine code size in bytes.
func (a *Artifact) CodeSize() int { return len(a.code) }

// FrameSize returns the stack frame size in bytes.
func (a *Artifact) FrameSize() int { return a.frameSize }

// CoreSpillMask returns the callee-saved core-register mask.
func (a *Artifact) CoreSpillMask() uint32 { return a.coreSpillMask }

// FPSpillMask returns the floating-point spill mask. Currently always zero.
func (a *Artifact) FPSpillMask() uint32 { return a.fpSpillMask }

// ISA returns the instruction set the code was generated for.
func (a *Artifact) ISA() isa.Set { return a.set }

// MappingTable returns the bytecode-to-native mapping table.
func (a *Artifact) MappingTable() []byte { return copyBytes(a.mappingTable) }

// SrcMap returns the source map, present only when debug symbols were
// requested.
func (a *Artifact) SrcMap() []byte { return copyBytes(a.srcMap) }

// VMapTable returns the value-location map table. Baseline artifacts only.
func (a *Artifact) VMapTable() []byte { return copyBytes(a.vmapTable) }

// GCMap returns the native GC map. Baseline artifacts only.
func (a *Artifact) GCMap() []byte { return copyBytes(a.gcMap) }

// StackMaps returns the stack-map table. Optimized artifacts only.
func (a *Artifact) StackMaps() []byte { return copyBytes(a.stackMaps) }

// Optimized reports whether the artifact came from the optimized path and
// therefore carries stack maps rather than a vmap/GC-map pair.
func (a *Artifact) Optimized() bool { return a.optimized }
