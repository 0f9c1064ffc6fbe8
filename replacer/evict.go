package replacer

import (
	"github.com/lmatarodo/xv6-pa4/defs"
	"github.com/lmatarodo/xv6-pa4/mem"
	"github.com/lmatarodo/xv6-pa4/pagetable"
)

// SelectVictim sweeps the ring from clockHand (initialized to head if
// unset), clearing the A bit and giving a second chance to any record
// whose PTE is still accessed, per spec.md §4.4. If the hand wraps back
// to its starting record without a selection, that record is taken as
// the victim. An empty ring reports failure.
func (r *Replacer) SelectVictim() (int32, bool) {
	r.table.Mu.Lock()
	defer r.table.Mu.Unlock()
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.head == mem.NoFrame {
		return mem.NoFrame, false
	}
	if r.clockHand == mem.NoFrame {
		r.clockHand = r.head
	}
	start := r.clockHand

	for first := true; first || r.clockHand != start; first = false {
		idx := r.clockHand
		rec := r.table.RecordAt(idx)
		pt := r.roots[rec.OwnerRoot]

		advance := func() {
			next := rec.Next
			if next == mem.NoFrame {
				next = r.head
			}
			r.clockHand = next
		}

		if pt == nil || rec.VAddr >= pagetable.MAXVA {
			advance()
			continue
		}

		ref, ok := pt.Walk(rec.VAddr, false)
		if !ok {
			advance()
			continue
		}

		pt.Mu.Lock()
		pte := ref.Get()
		if !pte.Valid() {
			pt.Mu.Unlock()
			advance()
			continue
		}
		if pte.Accessed() {
			ref.Set(pte &^ pagetable.PTE_A)
			pt.Mu.Unlock()
			advance()
			r.unlinkLocked(idx)
			r.linkTailLocked(idx)
			continue
		}
		pt.Mu.Unlock()

		advance()
		return idx, true
	}

	return start, true
}

// EvictOne selects a victim, writes it to a fresh swap slot, and
// rewrites its PTE to the swapped encoding, per spec.md §4.4's
// evict_one. It reports ENOHEAP (a "transient race", per spec.md §7)
// if no victim is found or the victim's PTE is no longer valid, and
// ESWAPFULL if the backing store is exhausted — the caller
// (FrameAllocator.Alloc) does not retry within this call.
func (r *Replacer) EvictOne() defs.Err_t {
	idx, ok := r.SelectVictim()
	if !ok {
		return defs.ENOHEAP
	}

	r.table.Mu.Lock()
	rec := r.table.RecordAt(idx)
	root, vaddr := rec.OwnerRoot, rec.VAddr
	r.table.Mu.Unlock()

	pt := r.lookupPT(root)
	if pt == nil {
		return defs.ENOHEAP
	}

	ref, ok := pt.Walk(vaddr, false)
	if !ok {
		return defs.ENOHEAP
	}

	pt.Mu.Lock()
	pte := ref.Get()
	if !pte.Valid() {
		pt.Mu.Unlock()
		return defs.ENOHEAP
	}
	frame := pte.PA()
	perm := pte.Perm()
	pt.Mu.Unlock()

	slot, serr := r.store.AllocSlot()
	if serr != 0 {
		return serr
	}
	if err := r.store.Write(r.alloc.RAM().Page(frame), slot); err != nil {
		r.store.FreeSlot(slot)
		return defs.EFAULT
	}

	r.remove(frame, false)

	pt.Mu.Lock()
	ref.Set(pagetable.MakeSwapped(slot, perm))
	pagetable.SfenceVMA(vaddr)
	pt.Mu.Unlock()

	r.table.Mu.Lock()
	clear := r.table.RecordAt(idx)
	clear.OwnerRoot = 0
	clear.VAddr = 0
	r.table.Mu.Unlock()

	r.alloc.Free(frame)

	if r.SwapOut != nil {
		r.SwapOut.Inc()
	}
	return 0
}
