// Package isa defines the instruction-set identifiers the compiler targets and
// the support policy applied before any per-method work begins.
package isa

import "fmt"

// Set identifies a target instruction set.
type Set uint8

const (
	None Set = iota
	ARM
	Thumb2
	ARM64
	X86
	X86_64
	MIPS
)

// String returns the canonical lowercase name for the instruction set.
func (s Set) String() string {
	switch s {
	case ARM:
		return "arm"
	case Thumb2:
		return "thumb2"
	case ARM64:
		return "arm64"
	case X86:
		return "x86"
	case X86_64:
		return "x86_64"
	case MIPS:
		return "mips"
	default:
		return "none"
	}
}

// FromString parses an instruction set name as it appears in configuration.
func FromString(name string) (Set, error) {
	switch name {
	case "arm":
		return ARM, nil
	case "thumb2":
		return Thumb2, nil
	case "arm64":
		return ARM64, nil
	case "x86":
		return X86, nil
	case "x86_64", "x86-64", "amd64":
		return X86_64, nil
	case "mips":
		return MIPS, nil
	default:
		return None, fmt.Errorf("unknown instruction set %q", name)
	}
}

// Normalize maps legacy aliases to their canonical successor. Generic 32-bit
// ARM always compiles as Thumb2: the runtime's implicit stack overflow checks
// assume the Thumb2 encoding.
func Normalize(s Set) Set {
	if s == ARM {
		return Thumb2
	}
	return s
}

// Supported reports whether the compiler can target the given set. Callers
// should Normalize first.
func Supported(s Set) bool {
	switch s {
	case Thumb2, ARM64, X86, X86_64:
		return true
	default:
		return false
	}
}

// CoreRegisters returns the number of allocatable core registers for the set:
// the register file minus the stack/frame registers and the scratch registers
// the backends reserve for spill traffic.
func CoreRegisters(s Set) int {
	switch s {
	case Thumb2:
		return 8
	case ARM64:
		return 16
	case X86:
		return 2
	case X86_64:
		return 10
	default:
		return 0
	}
}
