package mem

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/lmatarodo/xv6-pa4/caller"
	"github.com/lmatarodo/xv6-pa4/defs"
)

// poison values mirror kalloc.c: kfree fills a freed frame with 1 so
// stale pointers into it are obviously wrong, kalloc fills a fresh frame
// with 5 so reads of uninitialized memory are obviously wrong too.
const (
	poisonFree  = 0x01
	poisonAlloc = 0x05
)

// Evictor is the Replacer's contract toward the allocator: evict exactly
// one frame and report whether one was found and written back. A zero
// Err_t means a victim was written back and freed.
type Evictor interface {
	EvictOne() defs.Err_t
}

// FrameAllocator is the LIFO free-list allocator of spec.md §4.1. The
// free list is threaded through the first 4 bytes of each free frame,
// storing the next free frame's index (NoFrame-valued sentinel at the
// tail), exactly as kalloc.c threads a struct run pointer through freed
// pages.
type FrameAllocator struct {
	Mu      sync.Mutex // "kmem" lock
	ram     *RAM
	table   *FrameTable
	freeTop int32 // index of the top of the free list, NoFrame if empty
	nfree   int

	Evictor Evictor // set after construction by memsys.Boot
}

// NewFrameAllocator builds an allocator over the frames described by
// table, sweeping them all onto the free list (freerange in kalloc.c).
func NewFrameAllocator(ram *RAM, table *FrameTable) *FrameAllocator {
	fa := &FrameAllocator{
		ram:     ram,
		table:   table,
		freeTop: NoFrame,
	}
	for i := len(table.Frames) - 1; i >= 0; i-- {
		fa.pushLocked(int32(i))
	}
	return fa
}

func (fa *FrameAllocator) pushLocked(idx int32) {
	pa := fa.table.PA(int(idx))
	page := fa.ram.Page(pa)
	for i := range page {
		page[i] = poisonFree
	}
	binary.LittleEndian.PutUint32(page[:4], uint32(fa.freeTop))
	fa.freeTop = idx
	fa.nfree++
}

func (fa *FrameAllocator) popLocked() (int32, bool) {
	if fa.freeTop == NoFrame {
		return NoFrame, false
	}
	idx := fa.freeTop
	pa := fa.table.PA(int(idx))
	page := fa.ram.Page(pa)
	fa.freeTop = int32(binary.LittleEndian.Uint32(page[:4]))
	fa.nfree--
	for i := range page {
		page[i] = poisonAlloc
	}
	return idx, true
}

// Alloc returns a fresh, poisoned frame. If the free list is empty it
// asks the Evictor for exactly one eviction and retries once; on a
// second failure it reports ENOHEAP rather than recursing further
// (spec.md §4.1's one-level-deep rule; §7's "resource exhaustion"
// category).
func (fa *FrameAllocator) Alloc() (Pa_t, defs.Err_t) {
	fa.Mu.Lock()
	idx, ok := fa.popLocked()
	fa.Mu.Unlock()
	if ok {
		return fa.table.PA(int(idx)), 0
	}
	if fa.Evictor == nil {
		return 0, defs.ENOHEAP
	}
	if err := fa.Evictor.EvictOne(); err != 0 {
		return 0, defs.ENOHEAP
	}
	fa.Mu.Lock()
	idx, ok = fa.popLocked()
	fa.Mu.Unlock()
	if !ok {
		return 0, defs.ENOHEAP
	}
	return fa.table.PA(int(idx)), 0
}

// Free returns pa to the free list. Misaligned or out-of-range addresses
// are an invariant violation, matching kfree's panics.
func (fa *FrameAllocator) Free(pa Pa_t) {
	idx := fa.table.Index(pa) // panics on misalignment/out-of-range
	fa.Mu.Lock()
	defer fa.Mu.Unlock()
	fa.pushLocked(int32(idx))
}

// NumFree returns the current free-list length, for tests asserting
// the frame-count bookkeeping invariant in spec.md §8.
func (fa *FrameAllocator) NumFree() int {
	fa.Mu.Lock()
	defer fa.Mu.Unlock()
	return fa.nfree
}

// Table exposes the backing FrameTable, for callers that need to read or
// update frame metadata directly (pagetable, replacer).
func (fa *FrameAllocator) Table() *FrameTable { return fa.table }

// RAM exposes the backing RAM arena.
func (fa *FrameAllocator) RAM() *RAM { return fa.ram }

// CheckAligned is a defensive helper used by callers constructing a
// Pa_t from an arbitrary integer (e.g. decoded out of a PTE's PPN
// field) before treating it as a frame address.
func CheckAligned(pa Pa_t) {
	if pa&PGMASK != 0 {
		panic(fmt.Sprintf("mem: unaligned physical address %#x\n%s", pa, caller.Dump(2)))
	}
}
