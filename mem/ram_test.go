package mem

import "testing"

func TestRAMPageReadWrite(t *testing.T) {
	ram, err := NewRAM(2 * PGSIZE)
	if err != nil {
		t.Fatalf("NewRAM: %v", err)
	}
	defer ram.Close()

	page := ram.Page(PGSIZE)
	page[0] = 0xAB
	if got := ram.Bytes()[PGSIZE]; got != 0xAB {
		t.Fatalf("Bytes()[PGSIZE] = %#x, want 0xab", got)
	}
}

func TestRAMPageOutOfRangePanics(t *testing.T) {
	ram, err := NewRAM(PGSIZE)
	if err != nil {
		t.Fatalf("NewRAM: %v", err)
	}
	defer ram.Close()

	defer func() {
		if recover() == nil {
			t.Fatalf("Page() out of range did not panic")
		}
	}()
	ram.Page(PGSIZE)
}

func TestFrameTableIndexMisalignedPanics(t *testing.T) {
	ft := NewFrameTable(0, 4)
	defer func() {
		if recover() == nil {
			t.Fatalf("Index() of a misaligned address did not panic")
		}
	}()
	ft.Index(Pa_t(PGSIZE / 2))
}

func TestFrameTableRecordRoundTrip(t *testing.T) {
	ft := NewFrameTable(Pa_t(PGSIZE), 4)
	pa := ft.PA(2)
	ft.Record(pa).VAddr = 0x1234
	if got := ft.RecordAt(2).VAddr; got != 0x1234 {
		t.Fatalf("RecordAt(2).VAddr = %#x, want 0x1234", got)
	}
}
