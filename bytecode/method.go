// Package bytecode defines the immutable per-method compilation request the
// compiler consumes: the method's code units, register shape, try regions, and
// the identity fields the runtime attaches to it. It also carries the verified
// method metadata the baseline path needs for GC-map assembly.
package bytecode

import "strings"

// Test markers embedded in method symbols. Verification builds name methods
// with these substrings to assert compilation behavior; production builds
// never generate them.
const (
	// MustCompileMarker marks a method that this compiler is required to
	// compile. A build or backend-selection failure on such a method signals
	// a compiler regression.
	MustCompileMarker = "$opt$"

	// MustOptimizeMarker marks a method that is required to go through the
	// optimized path, register allocation included.
	MustOptimizeMarker = "$reg$"
)

// InvokeType describes how the method is dispatched.
type InvokeType uint8

const (
	InvokeStatic InvokeType = iota
	InvokeDirect
	InvokeVirtual
	InvokeInterface
	InvokeSuper
)

// TryRange is one exception-handler region, in code-unit offsets.
// End is exclusive.
type TryRange struct {
	Start   uint16
	End     uint16
	Handler uint16
}

// Method is one method's compilation request. It is immutable after creation
// and safe to share across concurrent compilations.
type Method struct {
	name          string
	insns         []uint16
	registersSize uint16
	insSize       uint16
	outsSize      uint16
	tries         []TryRange
	accessFlags   uint32
	invokeType    InvokeType
	classDefIndex uint16
	methodIndex   uint32
	classLoader   string
	file          string
}

// MethodParams contains the inputs for creating a Method.
type MethodParams struct {
	Name          string
	Insns         []uint16
	RegistersSize uint16
	InsSize       uint16
	OutsSize      uint16
	Tries         []TryRange
	AccessFlags   uint32
	InvokeType    InvokeType
	ClassDefIndex uint16
	MethodIndex   uint32
	ClassLoader   string
	File          string
}

// NewMethod creates an immutable Method. Input slices are copied so later
// caller mutation cannot leak in.
func NewMethod(p MethodParams) *Method {
	m := &Method{
		name:          p.Name,
		registersSize: p.RegistersSize,
		insSize:       p.InsSize,
		outsSize:      p.OutsSize,
		accessFlags:   p.AccessFlags,
		invokeType:    p.InvokeType,
		classDefIndex: p.ClassDefIndex,
		methodIndex:   p.MethodIndex,
		classLoader:   p.ClassLoader,
		file:          p.File,
	}
	m.insns = make([]uint16, len(p.Insns))
	copy(m.insns, p.Insns)
	if len(p.Tries) > 0 {
		m.tries = make([]TryRange, len(p.Tries))
		copy(m.tries, p.Tries)
	}
	return m
}

// Name returns the method symbol.
func (m *Method) Name() string { return m.name }

// Insn returns the code unit at the given offset.
func (m *Method) Insn(i int) uint16 { return m.insns[i] }

// CodeUnits returns the number of 16-bit code units in the method body.
func (m *Method) CodeUnits() int { return len(m.insns) }

// RegistersSize returns the size of the method's virtual register file.
func (m *Method) RegistersSize() uint16 { return m.registersSize }

// InsSize returns the number of incoming argument registers.
func (m *Method) InsSize() uint16 { return m.insSize }

// OutsSize returns the outgoing argument register count.
func (m *Method) OutsSize() uint16 { return m.outsSize }

// Tries returns a copy of the method's exception-handler regions.
func (m *Method) Tries() []TryRange {
	if len(m.tries) == 0 {
		return nil
	}
	out := make([]TryRange, len(m.tries))
	copy(out, m.tries)
	return out
}

// HasTries reports whether the method declares any exception-handler region.
func (m *Method) HasTries() bool { return len(m.tries) > 0 }

// AccessFlags returns the method's access flags.
func (m *Method) AccessFlags() uint32 { return m.accessFlags }

// InvokeType returns how the method is dispatched.
func (m *Method) InvokeType() InvokeType { return m.invokeType }

// ClassDefIndex returns the owning class definition index.
func (m *Method) ClassDefIndex() uint16 { return m.classDefIndex }

// MethodIndex returns the method index within the owning file.
func (m *Method) MethodIndex() uint32 { return m.methodIndex }

// ClassLoader identifies the class loader the method was resolved through.
func (m *Method) ClassLoader() string { return m.classLoader }

// File returns the owning file identity.
func (m *Method) File() string { return m.file }

// MustCompile reports whether the method carries the must-compile test marker.
func (m *Method) MustCompile() bool { return strings.Contains(m.name, MustCompileMarker) }

// MustOptimize reports whether the method carries the must-optimize test
// marker.
func (m *Method) MustOptimize() bool { return strings.Contains(m.name, MustOptimizeMarker) }
