package pagetable

import (
	"sync"

	"github.com/lmatarodo/xv6-pa4/mem"
	"github.com/lmatarodo/xv6-pa4/stats"
	"github.com/lmatarodo/xv6-pa4/swap"
	"github.com/lmatarodo/xv6-pa4/util"
)

const (
	entriesPerPage = 512
	levelBits      = 9
)

func pxShift(level int) uint { return uint(mem.PGSHIFT) + uint(level)*levelBits }

func px(level int, va uintptr) uint64 {
	return (uint64(va) >> pxShift(level)) & (entriesPerPage - 1)
}

// LRU is the Replacer's contract toward the page table: every user leaf
// mapping is inserted on creation and removed on teardown, per spec.md
// §3's frame lifecycle.
type LRU interface {
	Insert(root, pa mem.Pa_t, vaddr uintptr)
	Remove(pa mem.Pa_t) bool
}

// PageTable is one address space's three-level radix tree.
type PageTable struct {
	Mu sync.Mutex // "pte" lock: serializes PTE mutation + the matching SfenceVMA

	Root mem.Pa_t

	alloc *mem.FrameAllocator
	table *mem.FrameTable
	store *swap.SwapStore
	lru   LRU

	// SwapIn counts pages materialized by WalkAddr's transparent
	// swap-in path (spec.md §4.5's "walkaddr-triggered swap-in").
	SwapIn *stats.Counter_t
}

func zeroPage(ram *mem.RAM, pa mem.Pa_t) {
	p := ram.Page(pa)
	for i := range p {
		p[i] = 0
	}
}

// New allocates a fresh, empty page table (a single zeroed root frame).
func New(alloc *mem.FrameAllocator, table *mem.FrameTable, store *swap.SwapStore, lru LRU, swapIn *stats.Counter_t) (*PageTable, bool) {
	root, err := alloc.Alloc()
	if err != 0 {
		return nil, false
	}
	zeroPage(alloc.RAM(), root)
	table.Mu.Lock()
	rec := table.Record(root)
	rec.IsPageTable = true
	table.Mu.Unlock()
	return &PageTable{
		Root:   root,
		alloc:  alloc,
		table:  table,
		store:  store,
		lru:    lru,
		SwapIn: swapIn,
	}, true
}

// Walk descends the two interior levels for va, returning a reference to
// the level-0 leaf PTE. If an interior PTE is missing and allocate is
// false, or a required frame allocation fails, ok is false. va >= MAXVA
// is an invariant violation and panics, per spec.md §4.3.
func (pt *PageTable) Walk(va uintptr, allocate bool) (ref PTERef, ok bool) {
	if va >= MAXVA {
		panic("pagetable: walk past MAXVA")
	}
	root := pt.Root
	for level := 2; level > 0; level-- {
		idx := px(level, va)
		entry := PTERef{ram: pt.alloc.RAM(), off: root + mem.Pa_t(idx*8)}
		pte := entry.Get()
		if pte.Valid() {
			root = pte.PA()
			continue
		}
		if !allocate {
			return PTERef{}, false
		}
		newRoot, err := pt.alloc.Alloc()
		if err != 0 {
			return PTERef{}, false
		}
		zeroPage(pt.alloc.RAM(), newRoot)
		pt.table.Mu.Lock()
		pt.table.Record(newRoot).IsPageTable = true
		pt.table.Mu.Unlock()
		entry.Set(mkInterior(newRoot))
		root = newRoot
	}
	idx := px(0, va)
	return PTERef{ram: pt.alloc.RAM(), off: root + mem.Pa_t(idx*8)}, true
}

// MapRange installs a mapping from va to pa over size bytes (both
// page-aligned, size > 0), panicking on remap of a live PTE. If perm
// grants user access, each mapped frame is added to the LRU.
func (pt *PageTable) MapRange(va uintptr, size int, pa mem.Pa_t, perm PTE) bool {
	if size <= 0 ||
		va != util.Rounddown(va, uintptr(mem.PGSIZE)) ||
		pa != util.Rounddown(pa, mem.Pa_t(mem.PGSIZE)) ||
		size != util.Roundup(size, mem.PGSIZE) {
		panic("pagetable: map_range requires page-aligned va/pa/size and size > 0")
	}
	npages := util.Rounddown(size, mem.PGSIZE) / mem.PGSIZE
	a, p := va, pa
	for i := 0; i < npages; i++ {
		ref, ok := pt.Walk(a, true)
		if !ok {
			return false
		}

		pt.Mu.Lock()
		if ref.Get().Valid() {
			pt.Mu.Unlock()
			panic("pagetable: remap of a live PTE")
		}
		ref.Set(mkResident(p, perm))
		SfenceVMA(a)
		pt.Mu.Unlock()

		if perm&PTE_U != 0 {
			pt.lru.Insert(pt.Root, p, a)
		}
		a += mem.PGSIZE
		p += mem.PGSIZE
	}
	return true
}

// UnmapRange walks npages leaf PTEs starting at va, panicking if any is
// missing or not a valid leaf. If freePhys, each frame is detached from
// the LRU and freed; otherwise a swapped PTE's slot is released. Every
// PTE is zeroed and its TLB entry invalidated.
func (pt *PageTable) UnmapRange(va uintptr, npages int, freePhys bool) {
	a := va
	for i := 0; i < npages; i++ {
		ref, ok := pt.Walk(a, false)
		if !ok {
			panic("pagetable: unmap of unmapped page")
		}

		pt.Mu.Lock()
		pte := ref.Get()
		kind, frame, slot, _ := pte.View()
		switch kind {
		case KindUnmapped:
			pt.Mu.Unlock()
			panic("pagetable: unmap of unmapped page")
		case KindResident:
			if freePhys {
				pt.lru.Remove(frame)
			}
		case KindSwapped:
			if !freePhys {
				pt.store.FreeSlot(slot)
			}
		}
		ref.Set(0)
		SfenceVMA(a)
		pt.Mu.Unlock()

		if kind == KindResident && freePhys {
			pt.alloc.Free(frame)
		}
		a += mem.PGSIZE
	}
}

// StripUser clears the U bit of the single leaf PTE at va, used to make
// a stack guard page inaccessible from user mode.
func (pt *PageTable) StripUser(va uintptr) {
	ref, ok := pt.Walk(va, false)
	if !ok {
		panic("pagetable: strip_user on unmapped page")
	}
	pt.Mu.Lock()
	defer pt.Mu.Unlock()
	ref.Set(ref.Get() &^ PTE_U)
	SfenceVMA(va)
}

// Free unmaps [0, size) freeing physical frames, then recursively frees
// every interior page-table page, asserting each leaf was already
// cleared.
func (pt *PageTable) Free(size int) {
	if size > 0 {
		pt.UnmapRange(0, util.Rounddown(size, mem.PGSIZE)/mem.PGSIZE, true)
	}
	pt.freeWalk(pt.Root, 2)
	pt.alloc.Free(pt.Root)
	pt.table.Mu.Lock()
	pt.table.Record(pt.Root).IsPageTable = false
	pt.table.Mu.Unlock()
}

// freeWalk recursively frees interior page-table pages below root at
// the given level, asserting every leaf entry was already zeroed by
// UnmapRange.
func (pt *PageTable) freeWalk(root mem.Pa_t, level int) {
	ram := pt.alloc.RAM()
	for i := 0; i < entriesPerPage; i++ {
		off := root + mem.Pa_t(i*8)
		ref := PTERef{ram: ram, off: off}
		pte := ref.Get()
		if !pte.Valid() {
			continue
		}
		if level == 0 {
			panic("pagetable: free_space found a live leaf PTE")
		}
		child := pte.PA()
		pt.freeWalk(child, level-1)
		pt.alloc.Free(child)
		pt.table.Mu.Lock()
		pt.table.Record(child).IsPageTable = false
		pt.table.Mu.Unlock()
		ref.Set(0)
	}
}
