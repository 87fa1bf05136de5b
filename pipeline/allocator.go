// Package pipeline implements the unified access path that composes
// virtual-address translation and cache-hierarchy dispatch into a
// single per-access operation, per §4.F.
package pipeline

import (
	"errors"

	"github.com/archsim/memhier/allocator/buddy"
	"github.com/archsim/memhier/allocator/contiguous"
)

// AllocatorKind distinguishes which allocator implementation an
// ActiveAllocator wraps.
type AllocatorKind int

const (
	ContiguousKind AllocatorKind = iota
	BuddyKind
)

// ErrNoActiveAllocator is returned when an allocate/deallocate command
// arrives before any allocator has been selected.
var ErrNoActiveAllocator = errors.New("pipeline: no active allocator")

// ActiveAllocator is a tagged variant over the two mutually exclusive
// allocator implementations — modelled as a closed sum type rather
// than a runtime-dispatched interface, per §9's Design Notes, since
// exactly one allocator is ever live at a time.
type ActiveAllocator struct {
	set        bool
	kind       AllocatorKind
	contiguous *contiguous.Allocator
	buddyAlloc *buddy.Allocator
}

// NewContiguousAllocator wraps a contiguous allocator as the active
// variant.
func NewContiguousAllocator(a *contiguous.Allocator) ActiveAllocator {
	return ActiveAllocator{set: true, kind: ContiguousKind, contiguous: a}
}

// NewBuddyAllocator wraps a buddy allocator as the active variant.
func NewBuddyAllocator(a *buddy.Allocator) ActiveAllocator {
	return ActiveAllocator{set: true, kind: BuddyKind, buddyAlloc: a}
}

// Kind reports which allocator implementation is active.
func (v ActiveAllocator) Kind() AllocatorKind { return v.kind }

// Allocate dispatches to whichever allocator is active.
func (v ActiveAllocator) Allocate(size uint64) (int, error) {
	if !v.set {
		return 0, ErrNoActiveAllocator
	}
	if v.kind == BuddyKind {
		return v.buddyAlloc.Allocate(size)
	}
	return v.contiguous.Allocate(size)
}

// Deallocate dispatches to whichever allocator is active.
func (v ActiveAllocator) Deallocate(blockID int) bool {
	if !v.set {
		return false
	}
	if v.kind == BuddyKind {
		return v.buddyAlloc.Deallocate(blockID)
	}
	return v.contiguous.Deallocate(blockID)
}

// Contiguous returns the wrapped contiguous allocator, if active.
func (v ActiveAllocator) Contiguous() (*contiguous.Allocator, bool) {
	return v.contiguous, v.set && v.kind == ContiguousKind
}

// Buddy returns the wrapped buddy allocator, if active.
func (v ActiveAllocator) Buddy() (*buddy.Allocator, bool) {
	return v.buddyAlloc, v.set && v.kind == BuddyKind
}

// nextPow2 rounds size up to the nearest power of two, never returning
// less than min. Used when switching into buddy mode, which forces a
// power-of-two arena per §4.F.
func nextPow2(size, min uint64) uint64 {
	result := min
	for result < size {
		result <<= 1
	}
	return result
}
