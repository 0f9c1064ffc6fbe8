// Package swap implements the backing-store half of the paging core: a
// dense bitmap of swap slots and the block devices that hold their
// contents.
package swap

import (
	"fmt"
	"sync"

	"github.com/lmatarodo/xv6-pa4/caller"
	"github.com/lmatarodo/xv6-pa4/defs"
	"github.com/lmatarodo/xv6-pa4/mem"
)

// BlockDevice is the block layer's consumed interface (spec.md §6):
// swapread/swapwrite, one PGSIZE page at a time, addressed by slot.
type BlockDevice interface {
	ReadPage(slot int, dst []byte) error
	WritePage(slot int, src []byte) error
}

// SwapStore is the fixed-capacity bitmap allocator of spec.md §4.2.
type SwapStore struct {
	Mu     sync.Mutex // "swap_bitmap" lock
	bitmap []byte
	nfree  int
	dev    BlockDevice
}

// NewSwapStore builds a store over maxSlots slots backed by dev.
func NewSwapStore(maxSlots int, dev BlockDevice) *SwapStore {
	return &SwapStore{
		bitmap: make([]byte, maxSlots),
		nfree:  maxSlots,
		dev:    dev,
	}
}

// Capacity returns MAX_SWAP_PAGES.
func (s *SwapStore) Capacity() int { return len(s.bitmap) }

// AllocSlot performs a linear scan for the first free slot, marks it
// allocated, and returns its index. Per the Open Question resolved in
// SPEC_FULL.md §6, exhaustion is a recoverable ESWAPFULL rather than the
// reference's panic (spec.md §7's "resource exhaustion" category).
func (s *SwapStore) AllocSlot() (int, defs.Err_t) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	for i, b := range s.bitmap {
		if b == 0 {
			s.bitmap[i] = 1
			s.nfree--
			return i, 0
		}
	}
	return 0, defs.ESWAPFULL
}

// FreeSlot clears bitmap[i]. An out-of-range index is an invariant
// violation; a double-free is undefined per spec.md §4.2 and is not
// checked here, matching the reference.
func (s *SwapStore) FreeSlot(i int) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if i < 0 || i >= len(s.bitmap) {
		panic(fmt.Sprintf("swap: slot %d out of range\n%s", i, caller.Dump(2)))
	}
	s.bitmap[i] = 0
	s.nfree++
}

// NumFree returns the count of unallocated slots.
func (s *SwapStore) NumFree() int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.nfree
}

// Read materializes slot into dst, which must be exactly PGSIZE bytes.
// Per spec.md §5, this never runs while Mu (or any other core lock) is
// held by the caller.
func (s *SwapStore) Read(dst []byte, slot int) error {
	if len(dst) != mem.PGSIZE {
		panic("swap: read buffer must be PGSIZE bytes")
	}
	return s.dev.ReadPage(slot, dst)
}

// Write persists src (exactly PGSIZE bytes) to slot.
func (s *SwapStore) Write(src []byte, slot int) error {
	if len(src) != mem.PGSIZE {
		panic("swap: write buffer must be PGSIZE bytes")
	}
	return s.dev.WritePage(slot, src)
}
