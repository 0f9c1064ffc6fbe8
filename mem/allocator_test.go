package mem

import (
	"encoding/binary"
	"testing"

	"github.com/lmatarodo/xv6-pa4/defs"
)

func newTestArena(t *testing.T, nframes int) (*RAM, *FrameTable) {
	t.Helper()
	ram, err := NewRAM(nframes * PGSIZE)
	if err != nil {
		t.Fatalf("NewRAM: %v", err)
	}
	t.Cleanup(func() { ram.Close() })
	return ram, NewFrameTable(0, nframes)
}

func TestFrameAllocatorAllocFreeRoundTrip(t *testing.T) {
	ram, table := newTestArena(t, 4)
	fa := NewFrameAllocator(ram, table)

	if got := fa.NumFree(); got != 4 {
		t.Fatalf("NumFree() = %d, want 4", got)
	}

	var got []Pa_t
	for i := 0; i < 4; i++ {
		pa, err := fa.Alloc()
		if err != 0 {
			t.Fatalf("Alloc() failed on iteration %d: %v", i, err)
		}
		got = append(got, pa)
	}
	if fa.NumFree() != 0 {
		t.Fatalf("NumFree() = %d, want 0 after draining", fa.NumFree())
	}
	if _, err := fa.Alloc(); err == 0 {
		t.Fatalf("Alloc() succeeded with no evictor and an empty free list")
	}

	for _, pa := range got {
		fa.Free(pa)
	}
	if fa.NumFree() != 4 {
		t.Fatalf("NumFree() = %d, want 4 after freeing all", fa.NumFree())
	}
}

func TestFrameAllocatorPoisonsFreshAndFreedFrames(t *testing.T) {
	ram, table := newTestArena(t, 1)
	fa := NewFrameAllocator(ram, table)

	pa, err := fa.Alloc()
	if err != 0 {
		t.Fatalf("Alloc() failed: %v", err)
	}
	page := ram.Page(pa)
	for i, b := range page {
		if b != poisonAlloc {
			t.Fatalf("page[%d] = %#x, want poisonAlloc", i, b)
		}
	}

	fa.Free(pa)
	// The first 4 bytes of a freed frame hold the free-list link (NoFrame
	// here, since the list was empty before this push); the rest is poison.
	if next := int32(binary.LittleEndian.Uint32(page[:4])); next != NoFrame {
		t.Fatalf("free-list link = %d, want NoFrame", next)
	}
	for i, b := range page[4:] {
		if b != poisonFree {
			t.Fatalf("page[%d] = %#x, want poisonFree", i+4, b)
		}
	}
}

// stubEvictor simulates a Replacer: when told to, it frees the one
// outstanding frame before reporting success, standing in for a real
// eviction's write-back-then-free.
type stubEvictor struct {
	called bool
	free   func()
	result defs.Err_t
}

func (s *stubEvictor) EvictOne() defs.Err_t {
	s.called = true
	if s.result == 0 && s.free != nil {
		s.free()
	}
	return s.result
}

func TestFrameAllocatorRetriesOnceAfterEviction(t *testing.T) {
	ram, table := newTestArena(t, 1)
	fa := NewFrameAllocator(ram, table)
	pa, _ := fa.Alloc()

	noVictim := &stubEvictor{result: defs.ENOHEAP}
	fa.Evictor = noVictim
	if _, err := fa.Alloc(); err == 0 {
		t.Fatalf("Alloc() succeeded when evictor reported no victim")
	}
	if !noVictim.called {
		t.Fatalf("Alloc() never consulted the evictor")
	}

	withVictim := &stubEvictor{result: 0, free: func() { fa.Free(pa) }}
	fa.Evictor = withVictim
	if got, err := fa.Alloc(); err != 0 || got != pa {
		t.Fatalf("Alloc() = (%v, %v), want (%v, 0)", got, err, pa)
	}
}

func TestFrameAllocatorFreeOutOfRangePanics(t *testing.T) {
	ram, table := newTestArena(t, 1)
	fa := NewFrameAllocator(ram, table)

	defer func() {
		if recover() == nil {
			t.Fatalf("Free() of an out-of-range address did not panic")
		}
	}()
	fa.Free(Pa_t(99 * PGSIZE))
}
