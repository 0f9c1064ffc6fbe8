// Package proc models the minimal process-table collaborator the
// paging core needs (spec.md §6): a page table root and a killed flag.
// The scheduler and process table themselves are out of scope.
package proc

import (
	"sync"

	"github.com/lmatarodo/xv6-pa4/defs"
	"github.com/lmatarodo/xv6-pa4/pagetable"
)

// Process is cut down from biscuit's Tnote_t to exactly the fields the
// fault handler's contract needs. Unlike Tnote_t, the "current process"
// is not read from goroutine-local storage (that relies on a patched Go
// runtime we don't have); callers pass *Process explicitly, matching
// Go's usual explicit-context idiom over implicit thread-locals.
type Process struct {
	Tid defs.Tid_t

	mu     sync.Mutex
	pt     *pagetable.PageTable
	killed bool
}

// New creates a process bound to the given address space.
func New(tid defs.Tid_t, pt *pagetable.PageTable) *Process {
	return &Process{Tid: tid, pt: pt}
}

// PageTable returns the process's root page table.
func (p *Process) PageTable() *pagetable.PageTable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pt
}

// SetPageTable updates the process's root page table (e.g. after fork
// installs the child's cloned address space).
func (p *Process) SetPageTable(pt *pagetable.PageTable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pt = pt
}

// Kill marks the process for termination on its next return to user
// mode, per spec.md §7's "user fault" taxonomy.
func (p *Process) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
}

// Killed reports whether Kill has been called.
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}
