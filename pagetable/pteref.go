package pagetable

import (
	"encoding/binary"

	"github.com/lmatarodo/xv6-pa4/mem"
)

// PTERef addresses a single 64-bit PTE word inside the RAM arena.
// Unlike biscuit's unsafe.Pointer casts, reads and writes go through
// encoding/binary, a pack-grounded choice (see DESIGN.md) that keeps the
// walker free of unsafe while paying no real cost for a single word.
type PTERef struct {
	ram *mem.RAM
	off mem.Pa_t
}

// Get decodes the current value of the referenced word.
func (r PTERef) Get() PTE {
	b := r.ram.Bytes()
	return PTE(binary.LittleEndian.Uint64(b[r.off : r.off+8]))
}

// Set encodes v into the referenced word.
func (r PTERef) Set(v PTE) {
	b := r.ram.Bytes()
	binary.LittleEndian.PutUint64(b[r.off:r.off+8], uint64(v))
}
