package pagetable

import (
	"github.com/lmatarodo/xv6-pa4/mem"
	"github.com/lmatarodo/xv6-pa4/util"
)

// translate resolves va to a resident frame, transparently swapping the
// page in if it was swapped out (spec.md §4.5's "walkaddr-triggered
// swap-in"). Used by WalkAddr and by CopyOut/CopyIn/CopyInStr.
func (pt *PageTable) translate(va uintptr) (frame mem.Pa_t, perm PTE, ok bool) {
	ref, found := pt.Walk(va, false)
	if !found {
		return 0, 0, false
	}

	pt.Mu.Lock()
	pte := ref.Get()
	kind, f, slot, p := pte.View()
	pt.Mu.Unlock()

	switch kind {
	case KindResident:
		return f, p, true
	case KindUnmapped:
		return 0, 0, false
	}

	// KindSwapped: swap in.
	newFrame, err := pt.alloc.Alloc()
	if err != 0 {
		return 0, 0, false
	}
	if err := pt.store.Read(pt.alloc.RAM().Page(newFrame), slot); err != nil {
		pt.alloc.Free(newFrame)
		return 0, 0, false
	}
	pt.store.FreeSlot(slot)

	pt.Mu.Lock()
	ref.Set(mkResident(newFrame, p))
	SfenceVMA(va)
	pt.Mu.Unlock()

	pt.lru.Insert(pt.Root, newFrame, va)
	if pt.SwapIn != nil {
		pt.SwapIn.Inc()
	}
	return newFrame, p, true
}

// WalkAddr translates va to its resident physical frame, swapping the
// page in on demand. It returns false if va is entirely unmapped.
func (pt *PageTable) WalkAddr(va uintptr) (mem.Pa_t, bool) {
	frame, _, ok := pt.translate(va)
	return frame, ok
}

// CopySpace clones [0, size) of pt into dst (the fork path). Resident
// source pages are copied byte-for-byte into a fresh frame; swapped
// source pages are read from their slot into a fresh frame and the
// parent's slot is left allocated (spec.md §4.3's Copy/fork rule — see
// SPEC_FULL.md §6 Open Question 1). Any failure unwinds dst's partial
// mappings and returns false.
func (pt *PageTable) CopySpace(dst *PageTable, size int) bool {
	npages := size / mem.PGSIZE
	for i := 0; i < npages; i++ {
		va := uintptr(i) * mem.PGSIZE
		ref, found := pt.Walk(va, false)
		if !found {
			panic("pagetable: copy_space: pte should exist")
		}

		pt.Mu.Lock()
		pte := ref.Get()
		pt.Mu.Unlock()
		kind, frame, slot, perm := pte.View()
		if kind == KindUnmapped {
			panic("pagetable: copy_space: page not present")
		}

		newFrame, err := pt.alloc.Alloc()
		if err != 0 {
			dst.UnmapRange(0, i, true)
			return false
		}

		if kind == KindResident {
			copy(pt.alloc.RAM().Page(newFrame), pt.alloc.RAM().Page(frame))
		} else { // KindSwapped
			if err := pt.store.Read(pt.alloc.RAM().Page(newFrame), slot); err != nil {
				pt.alloc.Free(newFrame)
				dst.UnmapRange(0, i, true)
				return false
			}
			// parent's slot stays allocated.
		}

		dref, dok := dst.Walk(va, true)
		if !dok {
			pt.alloc.Free(newFrame)
			dst.UnmapRange(0, i, true)
			return false
		}
		dst.Mu.Lock()
		dref.Set(mkResident(newFrame, perm))
		SfenceVMA(va)
		dst.Mu.Unlock()
		if perm&PTE_U != 0 {
			dst.lru.Insert(dst.Root, newFrame, va)
		}
	}
	return true
}

// copyLoop walks va in page-sized chunks, invoking fn with the frame
// bytes spanning the in-page region for each chunk. fn returns the
// number of bytes consumed and whether to stop; copyLoop stops early
// when fn reports stop (used by CopyInStr to stop at NUL).
func (pt *PageTable) copyLoop(va uintptr, n int, write bool, fn func(pageBytes []byte, pageOff int) (consumed int, stop bool)) (int, bool) {
	done := 0
	for done < n {
		cur := va + uintptr(done)
		frame, perm, ok := pt.translate(cur)
		if !ok || perm&PTE_U == 0 || (write && perm&PTE_W == 0) {
			return done, false
		}
		pageOff := int(cur) & mem.PGMASK
		page := pt.alloc.RAM().Page(frame)
		want := util.Min(mem.PGSIZE-pageOff, n-done)
		consumed, stop := fn(page[pageOff:pageOff+want], pageOff)
		done += consumed
		if stop {
			break
		}
	}
	return done, true
}

// CopyOut copies src into the user address space at va.
func (pt *PageTable) CopyOut(va uintptr, src []byte) bool {
	i := 0
	_, ok := pt.copyLoop(va, len(src), true, func(pageBytes []byte, _ int) (int, bool) {
		n := copy(pageBytes, src[i:i+len(pageBytes)])
		i += n
		return n, false
	})
	return ok
}

// CopyIn copies len(dst) bytes from the user address space at va into dst.
func (pt *PageTable) CopyIn(dst []byte, va uintptr) bool {
	i := 0
	_, ok := pt.copyLoop(va, len(dst), false, func(pageBytes []byte, _ int) (int, bool) {
		n := copy(dst[i:], pageBytes)
		i += n
		return n, false
	})
	return ok
}

// CopyInStr copies a NUL-terminated string from va into dst (at most
// len(dst) bytes, including the terminator). Returns the byte count
// written (excluding the NUL) and whether a NUL was found within bounds.
func (pt *PageTable) CopyInStr(dst []byte, va uintptr) (int, bool) {
	total := 0
	foundNUL := false
	_, ok := pt.copyLoop(va, len(dst), false, func(pageBytes []byte, _ int) (int, bool) {
		for _, b := range pageBytes {
			if total >= len(dst) {
				return total, true
			}
			if b == 0 {
				foundNUL = true
				return len(pageBytes), true // consume the rest of this chunk and stop
			}
			dst[total] = b
			total++
		}
		return len(pageBytes), false
	})
	return total, ok && foundNUL
}
