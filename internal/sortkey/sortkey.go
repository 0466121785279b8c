// Package sortkey computes integer ordering keys for tasks dropped between
// two neighbors in a board column. Keys are plain integer midpoints; repeated
// inserts at one boundary can exhaust the keyspace between two neighbors, in
// which case the allocator returns a key equal to one of them and relies on
// the caller's reconciliation to keep ordering stable. There is deliberately
// no renormalization pass.
package sortkey

import (
	"sync"
	"time"
)

// Allocator hands out ordering keys. Time-derived keys are strictly
// increasing for the lifetime of the allocator, even when the clock does not
// advance between calls.
type Allocator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int
}

// New returns an Allocator using the wall clock.
func New() *Allocator {
	return NewAt(time.Now)
}

// NewAt returns an Allocator reading time from now. Used by tests to pin the
// clock.
func NewAt(now func() time.Time) *Allocator {
	return &Allocator{now: now}
}

// Allocate computes a key for a position bounded by prev and next, either of
// which may be nil:
//
//   - both nil: a time-derived key (empty column).
//   - only prev: midpoint between prev and "now" as the implicit upper bound
//     (appending to the end of a column).
//   - only next: floor(next/2) (inserting at the head).
//   - both: floor((prev+next)/2).
//
// When the midpoint collapses onto prev or next the collapsed value is
// returned as-is; callers treat an unchanged key as a no-op.
func (a *Allocator) Allocate(prev, next *int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case prev == nil && next == nil:
		return a.timeKey()
	case next == nil:
		upper := int(a.now().UnixMilli())
		if upper < *prev {
			upper = *prev
		}
		return midpoint(*prev, upper)
	case prev == nil:
		return *next / 2
	default:
		return midpoint(*prev, *next)
	}
}

// timeKey returns the current time in milliseconds, bumped past the last
// issued time key so successive calls strictly increase.
func (a *Allocator) timeKey() int {
	k := int(a.now().UnixMilli())
	if k <= a.last {
		k = a.last + 1
	}
	a.last = k
	return k
}

// midpoint returns floor((a+b)/2) for a <= b without overflowing.
func midpoint(a, b int) int {
	return a + (b-a)/2
}
