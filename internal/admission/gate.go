// Package admission bounds how many builds may run at the same time.
package admission

import "sync/atomic"

// Gate is a bounded counter that admits at most Capacity concurrent builds.
//
// It is the only shared mutable state between requests, so it is updated
// with compare-and-swap rather than a plain read-then-write: two requests
// racing through TryReserve must never both be admitted past capacity.
type Gate struct {
	inFlight atomic.Int64
	capacity int64
}

// NewGate creates a gate admitting up to capacity concurrent builds.
// Capacity must be at least 1; the configuration layer enforces that.
func NewGate(capacity int) *Gate {
	return &Gate{capacity: int64(capacity)}
}

// TryReserve attempts to claim one build slot.
//
// Returns true if the slot was claimed. Returns false when the gate is at
// capacity, in which case the counter is left untouched and the caller must
// NOT call Release for this attempt.
func (g *Gate) TryReserve() bool {
	for {
		cur := g.inFlight.Load()
		if cur >= g.capacity {
			return false
		}
		if g.inFlight.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release returns a previously reserved slot.
//
// Every successful TryReserve must be paired with exactly one Release, on
// every exit path of the build it guards. Typically used with defer.
// Release never drives the counter below zero.
func (g *Gate) Release() {
	for {
		cur := g.inFlight.Load()
		if cur <= 0 {
			return
		}
		if g.inFlight.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// InFlight reports how many slots are currently reserved.
func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}

// Capacity reports the maximum number of concurrent builds.
func (g *Gate) Capacity() int64 {
	return g.capacity
}
