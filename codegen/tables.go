package codegen

import (
	"encoding/binary"
	"sort"

	"github.com/deepnoodle-ai/methodc/bytecode"
)

// Table wire formats. All tables open with a little-endian uint32 entry
// count. The runtime consumes these verbatim; assembly performs no
// validation beyond what codegen already guaranteed.

// BuildMappingTable implements Generator. Entries are (native offset,
// bytecode offset) pairs in emission order. The source map, produced only
// when debug symbols are requested, repeats the pairs with the bytecode
// offset standing in for the source line.
func (gen *generator) BuildMappingTable(withSrcMap bool) (mapping, srcMap []byte) {
	mapping = binary.LittleEndian.AppendUint32(nil, uint32(len(gen.mappings)))
	for _, e := range gen.mappings {
		mapping = binary.LittleEndian.AppendUint32(mapping, e.native)
		mapping = binary.LittleEndian.AppendUint32(mapping, e.dex)
	}
	if !withSrcMap {
		return mapping, nil
	}
	srcMap = binary.LittleEndian.AppendUint32(nil, uint32(len(gen.mappings)))
	for _, e := range gen.mappings {
		srcMap = binary.LittleEndian.AppendUint32(srcMap, e.native)
		srcMap = binary.LittleEndian.AppendUint32(srcMap, e.dex)
	}
	return mapping, srcMap
}

// BuildVMapTable implements Generator. Baseline code keeps each virtual
// register in its own frame slot, so the table is the identity mapping over
// the register file.
func (gen *generator) BuildVMapTable() []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(gen.g.NumRegisters))
	for i := 0; i < gen.g.NumRegisters; i++ {
		out = binary.LittleEndian.AppendUint16(out, uint16(i))
	}
	return out
}

// BuildNativeGCMap implements Generator. Entries are (bytecode offset,
// reference-register bitmap) pairs from the verifier, in offset order. A nil
// VerifiedMethod yields an empty map.
func (gen *generator) BuildNativeGCMap(vm *bytecode.VerifiedMethod) []byte {
	offsets := make([]int, 0, vm.Offsets())
	seen := map[uint16]bool{}
	for _, e := range gen.mappings {
		off := uint16(e.dex)
		if seen[off] {
			continue
		}
		seen[off] = true
		if vm.RefBitmap(off) != 0 {
			offsets = append(offsets, int(off))
		}
	}
	sort.Ints(offsets)
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(offsets)))
	for _, off := range offsets {
		out = binary.LittleEndian.AppendUint16(out, uint16(off))
		out = binary.LittleEndian.AppendUint32(out, vm.RefBitmap(uint16(off)))
	}
	return out
}

// BuildStackMaps implements Generator. One entry per safepoint recorded
// during optimized emission: (native offset, bytecode offset, live register
// mask, stack mask).
func (gen *generator) BuildStackMaps() []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(gen.safepoints)))
	for _, e := range gen.safepoints {
		out = binary.LittleEndian.AppendUint32(out, e.native)
		out = binary.LittleEndian.AppendUint32(out, e.dex)
		out = binary.LittleEndian.AppendUint32(out, e.regMask)
		out = binary.LittleEndian.AppendUint32(out, e.stackMask)
	}
	return out
}
