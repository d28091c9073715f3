// Package codegen turns a method's IR into native code and assembles the
// artifact metadata the runtime consumes: mapping tables, value-location and
// GC maps on the baseline path, stack maps on the optimized path.
//
// Backends are selected through a per-instruction-set registry resolved once
// per compiler instance. Each backend has two entry points: baseline codegen
// straight off the built graph, and optimized codegen driven by a register
// assignment.
package codegen

import "encoding/binary"

// Sink is the growable byte buffer a generator emits machine code into.
type Sink struct {
	buf []byte
}

// Len returns the current number of emitted bytes.
func (s *Sink) Len() int { return len(s.buf) }

// Bytes returns a copy of the emitted code.
func (s *Sink) Bytes() []byte {
	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	return out
}

// Byte emits a single byte.
func (s *Sink) Byte(b byte) { s.buf = append(s.buf, b) }

// Half emits a 16-bit little-endian value.
func (s *Sink) Half(v uint16) {
	s.buf = binary.LittleEndian.AppendUint16(s.buf, v)
}

// Word emits a 32-bit little-endian value.
func (s *Sink) Word(v uint32) {
	s.buf = binary.LittleEndian.AppendUint32(s.buf, v)
}

// PatchWord overwrites the 32-bit value at a previously emitted offset.
// Backends use it to resolve forward branches.
func (s *Sink) PatchWord(off int, v uint32) {
	binary.LittleEndian.PutUint32(s.buf[off:], v)
}

// WordAt reads back the 32-bit value at the given offset.
func (s *Sink) WordAt(off int) uint32 {
	return binary.LittleEndian.Uint32(s.buf[off:])
}
