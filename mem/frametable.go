package mem

import (
	"fmt"
	"sync"

	"github.com/lmatarodo/xv6-pa4/caller"
	"github.com/lmatarodo/xv6-pa4/util"
)

// NoFrame is the sentinel ring index meaning "no neighbor".
const NoFrame int32 = -1

// FrameRecord is the per-frame metadata entry described in spec.md §3:
// owning page table, mapped virtual address, LRU membership and ring
// links, and whether the frame holds an interior page-table page (which
// is never eligible for eviction).
type FrameRecord struct {
	OwnerRoot    Pa_t // physical address of the owning page table's root frame; 0 if none
	VAddr        uintptr
	InLRU        bool
	IsPageTable  bool
	Prev, Next   int32 // ring neighbor frame indices, NoFrame if absent
}

// FrameTable is one FrameRecord per eligible physical frame index,
// indexed by (pa-Base)/PGSIZE. It corresponds to the "page" lock's
// protected state in spec.md §5: every write to a record happens with
// Mu held.
type FrameTable struct {
	Mu     sync.Mutex
	Base   Pa_t
	Frames []FrameRecord
}

// NewFrameTable allocates a table covering n frames starting at base.
func NewFrameTable(base Pa_t, n int) *FrameTable {
	return &FrameTable{
		Base:   base,
		Frames: make([]FrameRecord, n),
	}
}

// Index converts a frame's physical address to its table index. Panics
// if pa is not frame-aligned or out of range — callers only ever pass
// addresses handed back by the allocator or found in a valid PTE.
func (ft *FrameTable) Index(pa Pa_t) int {
	rel := pa - ft.Base
	if pa < ft.Base || rel != util.Rounddown(rel, Pa_t(PGSIZE)) {
		panic(fmt.Sprintf("mem: misaligned frame address %#x\n%s", pa, caller.Dump(2)))
	}
	idx := int((pa - ft.Base) / PGSIZE)
	if idx < 0 || idx >= len(ft.Frames) {
		panic(fmt.Sprintf("mem: frame address %#x out of range\n%s", pa, caller.Dump(2)))
	}
	return idx
}

// PA returns the physical address of the frame at table index idx.
func (ft *FrameTable) PA(idx int) Pa_t {
	return ft.Base + Pa_t(idx)*PGSIZE
}

// Record returns a pointer to the metadata for pa. Callers must hold Mu
// (or be certain of exclusive access, as during single-threaded setup).
func (ft *FrameTable) Record(pa Pa_t) *FrameRecord {
	return &ft.Frames[ft.Index(pa)]
}

// RecordAt returns a pointer to the metadata at ring index idx.
func (ft *FrameTable) RecordAt(idx int32) *FrameRecord {
	return &ft.Frames[idx]
}
