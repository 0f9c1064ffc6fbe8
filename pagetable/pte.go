// Package pagetable implements the three-level Sv39-shaped radix tree
// described in spec.md §4.3: walk, map/unmap, address-space clone, and
// the user/kernel copy primitives that transparently swap pages in.
package pagetable

import "github.com/lmatarodo/xv6-pa4/mem"

// PTE is a 64-bit page-table entry. The low bits carry flags; bits
// starting at pteShift carry the PPN field, which holds either a
// physical frame number (resident page) or a swap slot index (swapped
// page), per spec.md §3.
type PTE uint64

const (
	PTE_V    PTE = 1 << 0
	PTE_R    PTE = 1 << 1
	PTE_W    PTE = 1 << 2
	PTE_X    PTE = 1 << 3
	PTE_U    PTE = 1 << 4
	PTE_A    PTE = 1 << 5
	PTE_SWAP PTE = 1 << 6

	pteFlagsMask = PTE_V | PTE_R | PTE_W | PTE_X | PTE_U | PTE_A | PTE_SWAP
	pteRWXU      = PTE_R | PTE_W | PTE_X | PTE_U
	pteShift     = 10
)

// MAXVA is one bit short of the full 39-bit Sv39 address space, the same
// restriction xv6 imposes to keep the top VA from looking sign-extended.
const MAXVA = 1 << (9 + 9 + 9 + 12 - 1)

func mkPTE(ppn uint64, flags PTE) PTE {
	return PTE(ppn<<pteShift) | (flags & pteFlagsMask)
}

// Valid reports whether the V bit is set.
func (p PTE) Valid() bool { return p&PTE_V != 0 }

// SwapBit reports whether the software SWAP bit is set.
func (p PTE) SwapBit() bool { return p&PTE_SWAP != 0 }

// Accessed reports whether the hardware A (accessed) bit is set.
func (p PTE) Accessed() bool { return p&PTE_A != 0 }

func (p PTE) ppn() uint64 { return uint64(p) >> pteShift }

// PA returns the physical frame address encoded in a resident PTE.
func (p PTE) PA() mem.Pa_t {
	pa := mem.Pa_t(p.ppn() << mem.PGSHIFT)
	mem.CheckAligned(pa)
	return pa
}

// Slot returns the swap slot index encoded in a swapped PTE.
func (p PTE) Slot() int { return int(p.ppn()) }

// Perm returns the R/W/X/U permission bits only.
func (p PTE) Perm() PTE { return p & pteRWXU }

// Kind classifies a leaf PTE as one of the three states from spec.md
// §9's "polymorphism of PTE contents" design note.
type Kind int

const (
	KindUnmapped Kind = iota
	KindResident
	KindSwapped
)

// View decodes a leaf PTE into its tagged-union form. Anything other
// than an all-zero word, V without SWAP, or SWAP without V (including a
// word with neither bit set but other bits nonzero) is undefined state
// and panics, per spec.md §3.
func (p PTE) View() (kind Kind, frame mem.Pa_t, slot int, perm PTE) {
	switch {
	case p == 0:
		return KindUnmapped, 0, 0, 0
	case p.Valid() && !p.SwapBit():
		return KindResident, p.PA(), 0, p.Perm()
	case !p.Valid() && p.SwapBit():
		return KindSwapped, 0, p.Slot(), p.Perm()
	default:
		panic("pagetable: undefined PTE state (V and SWAP both set, or neither with nonzero bits)")
	}
}

// mkResident builds a resident leaf PTE for frame pa with permission perm.
func mkResident(pa mem.Pa_t, perm PTE) PTE {
	return mkPTE(uint64(pa)>>mem.PGSHIFT, PTE_V|(perm&pteRWXU))
}

// mkSwapped builds a swapped leaf PTE for slot, preserving perm.
func mkSwapped(slot int, perm PTE) PTE {
	return mkPTE(uint64(slot), PTE_SWAP|(perm&pteRWXU))
}

// mkInterior builds an interior (non-leaf) PTE pointing at a page-table
// page.
func mkInterior(pa mem.Pa_t) PTE {
	return mkPTE(uint64(pa)>>mem.PGSHIFT, PTE_V)
}

// MakeResident and MakeSwapped expose the leaf-PTE constructors to the
// replacer, which must rewrite a victim's PTE to its swapped encoding
// (and, on swap-in, back to resident) without reaching into this
// package's otherwise-private bit layout.
func MakeResident(pa mem.Pa_t, perm PTE) PTE { return mkResident(pa, perm) }
func MakeSwapped(slot int, perm PTE) PTE     { return mkSwapped(slot, perm) }
