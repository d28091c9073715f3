package bytecode

// VerifiedMethod carries the verifier's per-offset reference information for
// one method. The baseline path consumes it when assembling the native GC map;
// the optimized path folds the same information into its stack maps instead.
type VerifiedMethod struct {
	refBitmaps map[uint16]uint32
}

// NewVerifiedMethod creates verified metadata from a map of code-unit offset
// to reference-register bitmap. The map is copied.
func NewVerifiedMethod(refBitmaps map[uint16]uint32) *VerifiedMethod {
	vm := &VerifiedMethod{refBitmaps: make(map[uint16]uint32, len(refBitmaps))}
	for k, v := range refBitmaps {
		vm.refBitmaps[k] = v
	}
	return vm
}

// RefBitmap returns the reference-register bitmap recorded at the given
// code-unit offset, or zero if none was recorded.
func (vm *VerifiedMethod) RefBitmap(offset uint16) uint32 {
	if vm == nil {
		return 0
	}
	return vm.refBitmaps[offset]
}

// Offsets returns the number of offsets carrying reference information.
func (vm *VerifiedMethod) Offsets() int {
	if vm == nil {
		return 0
	}
	return len(vm.refBitmaps)
}
