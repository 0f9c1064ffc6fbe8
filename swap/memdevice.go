package swap

import "github.com/lmatarodo/xv6-pa4/mem"

// MemDevice is an in-process fake backing store for fast unit tests,
// grounded on the interface-injection style gopher-os uses to stand in
// for real hardware in its allocator tests.
type MemDevice struct {
	slots [][mem.PGSIZE]byte
}

// NewMemDevice builds a fake store with maxSlots slots.
func NewMemDevice(maxSlots int) *MemDevice {
	return &MemDevice{slots: make([][mem.PGSIZE]byte, maxSlots)}
}

func (d *MemDevice) ReadPage(slot int, dst []byte) error {
	copy(dst, d.slots[slot][:])
	return nil
}

func (d *MemDevice) WritePage(slot int, src []byte) error {
	copy(d.slots[slot][:], src)
	return nil
}
