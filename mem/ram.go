// Package mem implements the physical-frame side of the paging core: a
// simulated RAM arena, the per-frame metadata table, and the free-list
// frame allocator.
package mem

import "golang.org/x/sys/unix"

// Pa_t is a physical address: a byte offset into the simulated RAM arena.
type Pa_t uintptr

const (
	PGSHIFT = 12
	PGSIZE  = 1 << PGSHIFT
	PGMASK  = PGSIZE - 1
)

// RAM is a flat byte arena standing in for physical memory, reserved with
// an anonymous mmap the way a real kernel reserves physical pages at boot
// (biscuit's Phys_init sweeps pages handed to it by a patched runtime;
// we have no such runtime, so we ask the OS for anonymous pages instead).
type RAM struct {
	bytes []byte
}

// NewRAM reserves an arena of size bytes, which must be a multiple of
// PGSIZE. The arena is zeroed by the kernel on return from mmap.
func NewRAM(size int) (*RAM, error) {
	if size <= 0 || size%PGSIZE != 0 {
		panic("mem: RAM size must be a positive multiple of PGSIZE")
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &RAM{bytes: b}, nil
}

// Size returns the arena length in bytes.
func (r *RAM) Size() int { return len(r.bytes) }

// Page returns the PGSIZE-byte slice backing the frame at pa.
func (r *RAM) Page(pa Pa_t) []byte {
	if int(pa)+PGSIZE > len(r.bytes) || int(pa) < 0 {
		panic("mem: frame address out of range")
	}
	return r.bytes[pa : pa+PGSIZE]
}

// Bytes returns the raw backing slice, for code that needs to interpret
// a sub-page region (e.g. reading/writing a PTE word at an arbitrary
// offset inside a page-table frame).
func (r *RAM) Bytes() []byte { return r.bytes }

// Close releases the arena back to the OS.
func (r *RAM) Close() error {
	if r.bytes == nil {
		return nil
	}
	err := unix.Munmap(r.bytes)
	r.bytes = nil
	return err
}
