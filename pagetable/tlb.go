package pagetable

// SfenceVMA stands in for the RISC-V sfence.vma instruction: a per-hart
// TLB invalidation for a single virtual address. It is a package
// variable, not a direct call, so tests can substitute a counting stub
// and assert that every PTE mutation is followed by a shoot-down —
// the same reassignable-hook trick gopher-os uses to exercise code that
// would otherwise need real hardware.
var SfenceVMA = func(va uintptr) {}
