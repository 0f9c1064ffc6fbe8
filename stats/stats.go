// Package stats provides atomic counters for the paging core's
// observability surface: swap-in/swap-out counts that tests and
// diagnostics read back.
package stats

import "sync/atomic"

// Counter_t is a statistical counter, always on: unlike a profiling
// counter this one backs testable properties (§8's swap_in_count /
// swap_out_count), so it cannot be compiled out.
type Counter_t int64

// Inc increments the counter by one.
func (c *Counter_t) Inc() {
	atomic.AddInt64((*int64)(c), 1)
}

// Get returns the current value.
func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}
