package pagetable

import (
	"bytes"
	"testing"

	"github.com/lmatarodo/xv6-pa4/mem"
	"github.com/lmatarodo/xv6-pa4/stats"
	"github.com/lmatarodo/xv6-pa4/swap"
)

// fakeLRU records Insert/Remove calls without any eviction policy, enough
// to exercise the page table in isolation from the replacer.
type fakeLRU struct {
	present map[mem.Pa_t]bool
}

func newFakeLRU() *fakeLRU { return &fakeLRU{present: map[mem.Pa_t]bool{}} }

func (l *fakeLRU) Insert(root, pa mem.Pa_t, vaddr uintptr) { l.present[pa] = true }
func (l *fakeLRU) Remove(pa mem.Pa_t) bool {
	was := l.present[pa]
	delete(l.present, pa)
	return was
}

type harness struct {
	alloc *mem.FrameAllocator
	table *mem.FrameTable
	store *swap.SwapStore
	lru   *fakeLRU
	swin  stats.Counter_t
}

func newHarness(t *testing.T, nframes, nslots int) *harness {
	t.Helper()
	ram, err := mem.NewRAM(nframes * mem.PGSIZE)
	if err != nil {
		t.Fatalf("NewRAM: %v", err)
	}
	t.Cleanup(func() { ram.Close() })
	table := mem.NewFrameTable(0, nframes)
	alloc := mem.NewFrameAllocator(ram, table)
	store := swap.NewSwapStore(nslots, swap.NewMemDevice(nslots))
	return &harness{alloc: alloc, table: table, store: store, lru: newFakeLRU()}
}

func (h *harness) newPT(t *testing.T) *PageTable {
	t.Helper()
	pt, ok := New(h.alloc, h.table, h.store, h.lru, &h.swin)
	if !ok {
		t.Fatalf("New() failed")
	}
	return pt
}

func TestMapRangeThenWalkAddr(t *testing.T) {
	h := newHarness(t, 8, 4)
	pt := h.newPT(t)

	pa, err := h.alloc.Alloc()
	if err != 0 {
		t.Fatalf("Alloc() failed: %v", err)
	}
	if !pt.MapRange(0x1000, mem.PGSIZE, pa, PTE_R|PTE_W|PTE_U) {
		t.Fatalf("MapRange() failed")
	}
	if !h.lru.present[pa] {
		t.Fatalf("user mapping was not inserted into the LRU")
	}

	got, ok := pt.WalkAddr(0x1000)
	if !ok || got != pa {
		t.Fatalf("WalkAddr() = (%v, %v), want (%v, true)", got, ok, pa)
	}
}

func TestMapRangeRemapPanics(t *testing.T) {
	h := newHarness(t, 8, 4)
	pt := h.newPT(t)
	pa, _ := h.alloc.Alloc()
	pt.MapRange(0x2000, mem.PGSIZE, pa, PTE_R|PTE_U)

	defer func() {
		if recover() == nil {
			t.Fatalf("MapRange() over a live PTE did not panic")
		}
	}()
	other, _ := h.alloc.Alloc()
	pt.MapRange(0x2000, mem.PGSIZE, other, PTE_R|PTE_U)
}

func TestWalkPastMaxVAPanics(t *testing.T) {
	h := newHarness(t, 4, 2)
	pt := h.newPT(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("Walk() past MAXVA did not panic")
		}
	}()
	pt.Walk(MAXVA, false)
}

func TestWalkJustBelowMaxVASucceeds(t *testing.T) {
	h := newHarness(t, 4, 2)
	pt := h.newPT(t)
	if _, ok := pt.Walk(MAXVA-mem.PGSIZE, true); !ok {
		t.Fatalf("Walk(MAXVA-PGSIZE) failed")
	}
}

func TestUnmapRangeFreesAndRemovesFromLRU(t *testing.T) {
	h := newHarness(t, 8, 4)
	pt := h.newPT(t)
	pa, _ := h.alloc.Alloc()
	pt.MapRange(0x3000, mem.PGSIZE, pa, PTE_R|PTE_U)
	free := h.alloc.NumFree()

	pt.UnmapRange(0x3000, 1, true)
	if h.lru.present[pa] {
		t.Fatalf("unmapped frame is still tracked by the LRU")
	}
	if got := h.alloc.NumFree(); got != free+1 {
		t.Fatalf("NumFree() = %d, want %d after unmap", got, free+1)
	}
}

func TestUnmapRangeOfUnmappedPanics(t *testing.T) {
	h := newHarness(t, 4, 2)
	pt := h.newPT(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("UnmapRange() of an unmapped page did not panic")
		}
	}()
	pt.UnmapRange(0x4000, 1, true)
}

func TestCopyOutCopyInRoundTrip(t *testing.T) {
	h := newHarness(t, 8, 4)
	pt := h.newPT(t)
	pa, _ := h.alloc.Alloc()
	pt.MapRange(0x5000, mem.PGSIZE, pa, PTE_R|PTE_W|PTE_U)

	want := []byte("hello, address space")
	if !pt.CopyOut(0x5000+8, want) {
		t.Fatalf("CopyOut() failed")
	}
	got := make([]byte, len(want))
	if !pt.CopyIn(got, 0x5000+8) {
		t.Fatalf("CopyIn() failed")
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("CopyIn() = %q, want %q", got, want)
	}
}

func TestCopyInStrStopsAtNUL(t *testing.T) {
	h := newHarness(t, 8, 4)
	pt := h.newPT(t)
	pa, _ := h.alloc.Alloc()
	pt.MapRange(0x6000, mem.PGSIZE, pa, PTE_R|PTE_W|PTE_U)

	pt.CopyOut(0x6000, []byte("abc\x00junk"))
	buf := make([]byte, 16)
	n, ok := pt.CopyInStr(buf, 0x6000)
	if !ok {
		t.Fatalf("CopyInStr() reported no NUL found")
	}
	if n != 3 || string(buf[:n]) != "abc" {
		t.Fatalf("CopyInStr() = (%q, _), want (\"abc\", _)", buf[:n])
	}
}

func TestStripUserClearsUBit(t *testing.T) {
	h := newHarness(t, 8, 4)
	pt := h.newPT(t)
	pa, _ := h.alloc.Alloc()
	pt.MapRange(0x7000, mem.PGSIZE, pa, PTE_R|PTE_W|PTE_U)

	pt.StripUser(0x7000)
	ref, ok := pt.Walk(0x7000, false)
	if !ok {
		t.Fatalf("Walk() after StripUser failed")
	}
	if ref.Get()&PTE_U != 0 {
		t.Fatalf("U bit still set after StripUser")
	}
}

func TestWalkAddrSwapsInTransparently(t *testing.T) {
	h := newHarness(t, 8, 4)
	pt := h.newPT(t)
	pa, _ := h.alloc.Alloc()
	pt.MapRange(0x8000, mem.PGSIZE, pa, PTE_R|PTE_W|PTE_U)
	pt.CopyOut(0x8000, []byte("payload"))

	slot, err := h.store.AllocSlot()
	if err != 0 {
		t.Fatalf("AllocSlot() failed: %v", err)
	}
	if err := h.store.Write(h.alloc.RAM().Page(pa), slot); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	h.lru.Remove(pa)
	ref, _ := pt.Walk(0x8000, false)
	perm := ref.Get().Perm()
	h.alloc.Free(pa)

	ref.Set(MakeSwapped(slot, perm))

	got, ok := pt.WalkAddr(0x8000)
	if !ok {
		t.Fatalf("WalkAddr() failed to swap the page back in")
	}
	if !h.lru.present[got] {
		t.Fatalf("swapped-in frame was not reinserted into the LRU")
	}
	buf := make([]byte, 7)
	if !pt.CopyIn(buf, 0x8000) || string(buf) != "payload" {
		t.Fatalf("CopyIn() after swap-in = %q, want %q", buf, "payload")
	}
	if h.swin.Get() != 1 {
		t.Fatalf("SwapIn counter = %d, want 1", h.swin.Get())
	}
}

func TestCopySpaceClonesResidentPages(t *testing.T) {
	h := newHarness(t, 8, 4)
	src := h.newPT(t)
	dst := h.newPT(t)

	pa, _ := h.alloc.Alloc()
	src.MapRange(0, mem.PGSIZE, pa, PTE_R|PTE_W|PTE_U)
	src.CopyOut(0, []byte("forked"))

	if !src.CopySpace(dst, mem.PGSIZE) {
		t.Fatalf("CopySpace() failed")
	}

	buf := make([]byte, 6)
	if !dst.CopyIn(buf, 0) || string(buf) != "forked" {
		t.Fatalf("child CopyIn() = %q, want %q", buf, "forked")
	}

	// independence: writing through the child must not affect the parent.
	dst.CopyOut(0, []byte("CHANGE"))
	parentBuf := make([]byte, 6)
	src.CopyIn(parentBuf, 0)
	if string(parentBuf) != "forked" {
		t.Fatalf("parent page was mutated by a write through the child: %q", parentBuf)
	}
}

func TestCopySpaceLeavesSwappedSourceSlotAllocated(t *testing.T) {
	h := newHarness(t, 8, 4)
	src := h.newPT(t)
	dst := h.newPT(t)

	pa, _ := h.alloc.Alloc()
	src.MapRange(0, mem.PGSIZE, pa, PTE_R|PTE_W|PTE_U)
	src.CopyOut(0, []byte("swapped"))

	slot, _ := h.store.AllocSlot()
	h.store.Write(h.alloc.RAM().Page(pa), slot)
	ref, _ := src.Walk(0, false)
	perm := ref.Get().Perm()
	h.lru.Remove(pa)
	h.alloc.Free(pa)
	ref.Set(MakeSwapped(slot, perm))
	freeBeforeFork := h.store.NumFree()

	if !src.CopySpace(dst, mem.PGSIZE) {
		t.Fatalf("CopySpace() failed")
	}
	if got := h.store.NumFree(); got != freeBeforeFork {
		t.Fatalf("NumFree() = %d, want %d: parent's slot must stay allocated after fork", got, freeBeforeFork)
	}

	buf := make([]byte, 7)
	if !dst.CopyIn(buf, 0) || string(buf) != "swapped" {
		t.Fatalf("child CopyIn() after fork-of-swapped = %q, want %q", buf, "swapped")
	}
}

func TestFreeTeardownReturnsAllFrames(t *testing.T) {
	h := newHarness(t, 8, 4)
	before := h.alloc.NumFree()
	pt := h.newPT(t)

	pa, _ := h.alloc.Alloc()
	pt.MapRange(0, mem.PGSIZE, pa, PTE_R|PTE_W|PTE_U)
	pt.Free(mem.PGSIZE)

	if got := h.alloc.NumFree(); got != before {
		t.Fatalf("NumFree() = %d, want %d after Free() teardown", got, before)
	}
}
