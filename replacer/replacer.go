// Package replacer implements the Clock-over-LRU victim selection and
// eviction engine of spec.md §4.4.
package replacer

import (
	"sync"

	"github.com/lmatarodo/xv6-pa4/mem"
	"github.com/lmatarodo/xv6-pa4/pagetable"
	"github.com/lmatarodo/xv6-pa4/stats"
	"github.com/lmatarodo/xv6-pa4/swap"
)

// Replacer owns the LRU ring threaded through the FrameTable and the
// Clock hand that sweeps it.
type Replacer struct {
	Mu sync.Mutex // "lru" lock: ring links, count, clock hand

	table *mem.FrameTable
	alloc *mem.FrameAllocator
	store *swap.SwapStore

	head, tail int32
	numLRU     int
	clockHand  int32

	roots map[mem.Pa_t]*pagetable.PageTable

	// SwapOut counts evictions, mirroring vm.c's swap_out_count.
	SwapOut *stats.Counter_t
}

// New builds a Replacer over table/alloc/store. swapOut may be nil.
func New(table *mem.FrameTable, alloc *mem.FrameAllocator, store *swap.SwapStore, swapOut *stats.Counter_t) *Replacer {
	return &Replacer{
		table:     table,
		alloc:     alloc,
		store:     store,
		head:      mem.NoFrame,
		tail:      mem.NoFrame,
		clockHand: mem.NoFrame,
		roots:     make(map[mem.Pa_t]*pagetable.PageTable),
		SwapOut:   swapOut,
	}
}

// Register makes pt's frames eligible for victim-PTE lookup during a
// Clock sweep; every address space must register before any of its
// pages are inserted into the LRU.
func (r *Replacer) Register(pt *pagetable.PageTable) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.roots[pt.Root] = pt
}

// Unregister removes pt once its address space has been torn down.
func (r *Replacer) Unregister(pt *pagetable.PageTable) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	delete(r.roots, pt.Root)
}

func (r *Replacer) lookupPT(root mem.Pa_t) *pagetable.PageTable {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.roots[root]
}

// NumLRU returns the current ring size.
func (r *Replacer) NumLRU() int {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.numLRU
}

// Insert implements pagetable.LRU: link pa into the ring tail as owned
// by root at vaddr, per spec.md §3's "added to the LRU at the moment
// of receiving a valid user PTE" rule.
func (r *Replacer) Insert(root, pa mem.Pa_t, vaddr uintptr) {
	r.insert(root, pa, vaddr, false)
}

// Remove implements pagetable.LRU: detach pa from the ring if present.
func (r *Replacer) Remove(pa mem.Pa_t) bool {
	return r.remove(pa, false)
}

func (r *Replacer) insert(root, pa mem.Pa_t, vaddr uintptr, alreadyLocked bool) {
	idx := int32(r.table.Index(pa))
	if !alreadyLocked {
		r.table.Mu.Lock()
		r.Mu.Lock()
	}
	rec := r.table.RecordAt(idx)
	if rec.InLRU {
		r.unlinkLocked(idx)
	}
	rec.OwnerRoot = root
	rec.VAddr = vaddr
	rec.InLRU = true
	r.linkTailLocked(idx)
	if !alreadyLocked {
		r.Mu.Unlock()
		r.table.Mu.Unlock()
	}
}

func (r *Replacer) remove(pa mem.Pa_t, alreadyLocked bool) bool {
	idx := int32(r.table.Index(pa))
	if !alreadyLocked {
		r.table.Mu.Lock()
		r.Mu.Lock()
	}
	rec := r.table.RecordAt(idx)
	wasIn := rec.InLRU
	if wasIn {
		r.unlinkLocked(idx)
		rec.InLRU = false
		rec.OwnerRoot = 0
		rec.VAddr = 0
	}
	if !alreadyLocked {
		r.Mu.Unlock()
		r.table.Mu.Unlock()
	}
	return wasIn
}

// linkTailLocked and unlinkLocked assume Mu is held; they manipulate
// the index-based intrusive ring per spec.md §9's design note.
func (r *Replacer) linkTailLocked(idx int32) {
	rec := r.table.RecordAt(idx)
	rec.Prev = r.tail
	rec.Next = mem.NoFrame
	if r.tail != mem.NoFrame {
		r.table.RecordAt(r.tail).Next = idx
	} else {
		r.head = idx
	}
	r.tail = idx
	if r.clockHand == mem.NoFrame {
		r.clockHand = r.head
	}
	r.numLRU++
}

func (r *Replacer) unlinkLocked(idx int32) {
	rec := r.table.RecordAt(idx)
	if rec.Prev != mem.NoFrame {
		r.table.RecordAt(rec.Prev).Next = rec.Next
	} else {
		r.head = rec.Next
	}
	if rec.Next != mem.NoFrame {
		r.table.RecordAt(rec.Next).Prev = rec.Prev
	} else {
		r.tail = rec.Prev
	}
	if r.clockHand == idx {
		next := rec.Next
		if next == mem.NoFrame {
			next = r.head
		}
		r.clockHand = next
	}
	rec.Prev = mem.NoFrame
	rec.Next = mem.NoFrame
	r.numLRU--
}

// CheckConsistency walks the ring forward and backward, asserting
// acyclicity and that prev is the exact reverse of next — the Go
// analogue of vm.c's check_lru_consistency, made an explicit callable
// check rather than a hook fired on every mutation (see SPEC_FULL.md §4.7).
func (r *Replacer) CheckConsistency() bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	n := 0
	seen := make(map[int32]bool, r.numLRU)
	order := make([]int32, 0, r.numLRU)
	for idx := r.head; idx != mem.NoFrame; idx = r.table.RecordAt(idx).Next {
		if seen[idx] {
			return false
		}
		seen[idx] = true
		order = append(order, idx)
		n++
		if n > r.numLRU {
			return false
		}
	}
	if n != r.numLRU {
		return false
	}

	m := 0
	for idx := r.tail; idx != mem.NoFrame; idx = r.table.RecordAt(idx).Prev {
		if m >= n || order[n-1-m] != idx {
			return false
		}
		m++
	}
	return m == r.numLRU
}
