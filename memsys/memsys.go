// Package memsys wires the paging core's components into the single
// owned "memory subsystem" value spec.md §9's Design Notes call for,
// and exposes the operations named in spec.md §6.
package memsys

import (
	"github.com/lmatarodo/xv6-pa4/defs"
	"github.com/lmatarodo/xv6-pa4/fault"
	"github.com/lmatarodo/xv6-pa4/mem"
	"github.com/lmatarodo/xv6-pa4/pagetable"
	"github.com/lmatarodo/xv6-pa4/proc"
	"github.com/lmatarodo/xv6-pa4/replacer"
	"github.com/lmatarodo/xv6-pa4/swap"
)

// Config holds the paging core's only tunables: compile-time constants
// in the reference design, here fields on a value passed to Boot
// (spec.md §6: "no CLI or environment variables; no configuration
// file").
type Config struct {
	PhysTop int // bytes of simulated physical RAM
	SwapMax int // bytes of backing-store capacity
}

// System owns every piece of shared mutable state the core needs:
// RAM, frame table, allocator, swap store, and replacer.
type System struct {
	RAM   *mem.RAM
	Table *mem.FrameTable
	Alloc *mem.FrameAllocator
	Store *swap.SwapStore
	Repl  *replacer.Replacer
	Fault *fault.Handler

	cfg Config
}

// Boot constructs a System over dev as the backing store. It is the
// single wiring function, the analogue of biscuit's Phys_init /
// xv6's kinit.
func Boot(cfg Config, dev swap.BlockDevice) (*System, error) {
	if cfg.PhysTop <= 0 || cfg.PhysTop%mem.PGSIZE != 0 {
		panic("memsys: PhysTop must be a positive multiple of PGSIZE")
	}
	ram, err := mem.NewRAM(cfg.PhysTop)
	if err != nil {
		return nil, err
	}

	table := mem.NewFrameTable(0, cfg.PhysTop/mem.PGSIZE)
	alloc := mem.NewFrameAllocator(ram, table)

	maxSlots := cfg.SwapMax / mem.PGSIZE
	store := swap.NewSwapStore(maxSlots, dev)

	st := &fault.Stats{}
	repl := replacer.New(table, alloc, store, &st.SwapOut)
	alloc.Evictor = repl

	handler := fault.New(alloc, repl, store, st)

	return &System{
		RAM:   ram,
		Table: table,
		Alloc: alloc,
		Store: store,
		Repl:  repl,
		Fault: handler,
		cfg:   cfg,
	}, nil
}

// Close releases the RAM arena.
func (s *System) Close() error { return s.RAM.Close() }

// Stats returns the lifetime swap-out and swap-in counts (the Go
// analogue of vm.c's print_swap_stats).
func (s *System) Stats() (swapOut, swapIn int64) {
	return s.Fault.Stats.SwapOut.Get(), s.Fault.Stats.SwapIn.Get()
}

// NewAddressSpace allocates a fresh, empty page table and registers it
// with the replacer (pt_new in spec.md §6).
func (s *System) NewAddressSpace() (*pagetable.PageTable, bool) {
	pt, ok := pagetable.New(s.Alloc, s.Table, s.Store, s.Repl, &s.Fault.Stats.SwapIn)
	if !ok {
		return nil, false
	}
	s.Repl.Register(pt)
	return pt, true
}

// FreeAddressSpace tears down pt (pt_free).
func (s *System) FreeAddressSpace(pt *pagetable.PageTable, size int) {
	pt.Free(size)
	s.Repl.Unregister(pt)
}

// FrameAlloc and FrameFree expose the allocator directly.
func (s *System) FrameAlloc() (mem.Pa_t, bool) {
	pa, err := s.Alloc.Alloc()
	return pa, err == 0
}
func (s *System) FrameFree(pa mem.Pa_t) { s.Alloc.Free(pa) }

// Map installs pt_map(pt, va, size, pa, perm).
func (s *System) Map(pt *pagetable.PageTable, va uintptr, size int, pa mem.Pa_t, perm pagetable.PTE) bool {
	return pt.MapRange(va, size, pa, perm)
}

// Unmap performs pt_unmap(pt, va, npages, free_phys).
func (s *System) Unmap(pt *pagetable.PageTable, va uintptr, npages int, freePhys bool) {
	pt.UnmapRange(va, npages, freePhys)
}

// WalkAddr performs pt_walkaddr(pt, va), swapping in on demand.
func (s *System) WalkAddr(pt *pagetable.PageTable, va uintptr) (mem.Pa_t, bool) {
	return pt.WalkAddr(va)
}

// Fork performs pt_copy_space(src, dst, size).
func (s *System) Fork(src, dst *pagetable.PageTable, size int) bool {
	return src.CopySpace(dst, size)
}

// StripUser performs pt_strip_user(pt, va).
func (s *System) StripUser(pt *pagetable.PageTable, va uintptr) {
	pt.StripUser(va)
}

// CopyOut, CopyIn, CopyInStr expose the user/kernel copy primitives.
func (s *System) CopyOut(pt *pagetable.PageTable, va uintptr, src []byte) bool {
	return pt.CopyOut(va, src)
}
func (s *System) CopyIn(pt *pagetable.PageTable, dst []byte, va uintptr) bool {
	return pt.CopyIn(dst, va)
}
func (s *System) CopyInStr(pt *pagetable.PageTable, dst []byte, va uintptr) (int, bool) {
	return pt.CopyInStr(dst, va)
}

// HandleFault dispatches fault_handle() from the trap vector.
func (s *System) HandleFault(p *proc.Process, stval uintptr, scause int) bool {
	return s.Fault.Handle(p, stval, scause)
}

// NewProcess creates a process with a fresh address space.
func (s *System) NewProcess(tid defs.Tid_t) (*proc.Process, bool) {
	pt, ok := s.NewAddressSpace()
	if !ok {
		return nil, false
	}
	return proc.New(tid, pt), true
}
