// Package buddy implements the power-of-two buddy allocator described in
// §4.B of the simulator specification: order-indexed free lists over a
// power-of-two arena, with recursive splitting on allocation and
// recursive merging on deallocation.
package buddy

import (
	"errors"

	"github.com/archsim/memhier/hooking"
	"github.com/rs/xid"
)

// DefaultTotalMemory and DefaultMinBlockSize are substituted whenever
// the constructor is given a non-power-of-two argument.
const (
	DefaultTotalMemory  uint64 = 1024
	DefaultMinBlockSize uint64 = 16
)

// ErrZeroSize is returned when Allocate is asked for zero bytes.
var ErrZeroSize = errors.New("buddy: cannot allocate 0 bytes")

// ErrTooLarge is returned when the request exceeds the whole arena.
var ErrTooLarge = errors.New("buddy: requested size exceeds total memory")

// ErrOutOfMemory is returned when no order has a free block, even after
// attempting every possible split.
var ErrOutOfMemory = errors.New("buddy: out of memory")

var (
	hookSplit      = hooking.HookPos{Name: "buddy.split"}
	hookAllocate   = hooking.HookPos{Name: "buddy.allocate"}
	hookDeallocate = hooking.HookPos{Name: "buddy.deallocate"}
	hookMerge      = hooking.HookPos{Name: "buddy.merge"}
)

// record is the bookkeeping kept for one live allocation, keyed by
// block id so Deallocate is O(1) in lookup.
type record struct {
	address       uint64
	requestedSize uint64
	actualSize    uint64
	order         int
}

// Allocation is a read-only snapshot of one live allocation, for
// reporting.
type Allocation struct {
	BlockID       int
	Address       uint64
	RequestedSize uint64
	ActualSize    uint64
	Order         int
}

// Allocator is a buddy allocator over a power-of-two arena.
type Allocator struct {
	hooking.HookableBase

	totalMemory  uint64
	minBlockSize uint64
	maxOrder     int

	// freeLists[k] is a LIFO stack of addresses free at order k. Using a
	// plain stack instead of a linked structure preserves the
	// observable LIFO allocation order without pointer traversal.
	freeLists [][]uint64

	records     map[int]record
	nextBlockID int

	totalAllocations      int
	totalDeallocations    int
	successfulAllocations int
	failedAllocations     int
	splits                int
	merges                int
	internalFragmentation int64
}

// New creates a buddy allocator over totalMemory bytes with blocks no
// smaller than minBlockSize. Both must be powers of two; if either is
// not, it is silently replaced by its documented default.
func New(totalMemory, minBlockSize uint64) *Allocator {
	if !isPowerOfTwo(totalMemory) {
		totalMemory = DefaultTotalMemory
	}
	if !isPowerOfTwo(minBlockSize) {
		minBlockSize = DefaultMinBlockSize
	}
	if minBlockSize > totalMemory {
		minBlockSize = totalMemory
	}

	maxOrder := log2(totalMemory / minBlockSize)

	a := &Allocator{
		totalMemory:  totalMemory,
		minBlockSize: minBlockSize,
		maxOrder:     maxOrder,
		freeLists:    make([][]uint64, maxOrder+1),
		records:      make(map[int]record),
		nextBlockID:  1,
	}
	a.freeLists[maxOrder] = []uint64{0}

	return a
}

func isPowerOfTwo(n uint64) bool {
	return n > 0 && n&(n-1) == 0
}

// log2 returns log base 2 of n, assuming n is an exact power of two.
func log2(n uint64) int {
	order := 0
	for n > 1 {
		n >>= 1
		order++
	}
	return order
}

// nextPow2 rounds size up to the nearest power of two, never returning
// less than minBlockSize.
func nextPow2(size, minBlockSize uint64) uint64 {
	result := minBlockSize
	for result < size {
		result <<= 1
	}
	return result
}

// TotalMemory returns the arena size.
func (a *Allocator) TotalMemory() uint64 { return a.totalMemory }

// MinBlockSize returns the smallest block size the allocator hands out.
func (a *Allocator) MinBlockSize() uint64 { return a.minBlockSize }

// MaxOrder returns the highest valid order.
func (a *Allocator) MaxOrder() int { return a.maxOrder }

// Allocate rounds requestedSize up to actual = max(minBlockSize,
// nextPow2(requestedSize)), recursively splitting a larger free block if
// necessary, and returns the freshly assigned block id.
func (a *Allocator) Allocate(requestedSize uint64) (int, error) {
	corrID := hooking.NewID()
	a.totalAllocations++

	if requestedSize == 0 {
		a.failedAllocations++
		return 0, ErrZeroSize
	}
	if requestedSize > a.totalMemory {
		a.failedAllocations++
		return 0, ErrTooLarge
	}

	actualSize := nextPow2(requestedSize, a.minBlockSize)
	order := log2(actualSize / a.minBlockSize)

	if len(a.freeLists[order]) == 0 {
		if !a.split(order, corrID) {
			a.failedAllocations++
			return 0, ErrOutOfMemory
		}
	}

	address := a.pop(order)

	id := a.nextBlockID
	a.nextBlockID++

	a.records[id] = record{
		address:       address,
		requestedSize: requestedSize,
		actualSize:    actualSize,
		order:         order,
	}

	a.successfulAllocations++
	a.internalFragmentation += int64(actualSize - requestedSize)

	a.InvokeHook(hooking.HookCtx{
		Domain: a,
		Pos:    hookAllocate,
		Item: Allocation{
			BlockID: id, Address: address,
			RequestedSize: requestedSize, ActualSize: actualSize, Order: order,
		},
		CorrelationID: corrID,
	})

	return id, nil
}

// split finds the smallest order k > target with a free block, then
// recursively halves blocks down to target, pushing both buddies
// produced at each step onto the next-lower free list. It reports
// whether a block became available at target.
func (a *Allocator) split(target int, corrID xid.ID) bool {
	k := target + 1
	for k <= a.maxOrder && len(a.freeLists[k]) == 0 {
		k++
	}
	if k > a.maxOrder {
		return false
	}

	for ; k > target; k-- {
		addr := a.pop(k)
		size := a.minBlockSize << uint(k-1)

		low := addr
		high := addr + size

		// LIFO: whichever buddy is pushed last is the next one popped.
		// Pushing the high half first means further splitting always
		// drills into the low half, so a single allocate that must
		// split all the way down lands on the lowest address.
		a.push(k-1, high)
		a.push(k-1, low)

		a.splits++

		a.InvokeHook(hooking.HookCtx{
			Domain:        a,
			Pos:           hookSplit,
			Item:          []uint64{low, high},
			CorrelationID: corrID,
		})
	}

	return true
}

func (a *Allocator) push(order int, address uint64) {
	a.freeLists[order] = append(a.freeLists[order], address)
}

// pop removes and returns the head (most recently pushed) address at
// order.
func (a *Allocator) pop(order int) uint64 {
	list := a.freeLists[order]
	address := list[len(list)-1]
	a.freeLists[order] = list[:len(list)-1]
	return address
}

// Deallocate frees the block with the given id, then recursively merges
// it with its buddy for as long as the buddy is free.
func (a *Allocator) Deallocate(blockID int) bool {
	corrID := hooking.NewID()

	rec, ok := a.records[blockID]
	if !ok {
		return false
	}

	a.push(rec.order, rec.address)
	a.totalDeallocations++
	a.internalFragmentation -= int64(rec.actualSize - rec.requestedSize)
	delete(a.records, blockID)

	a.InvokeHook(hooking.HookCtx{
		Domain: a,
		Pos:    hookDeallocate,
		Item: Allocation{
			BlockID: blockID, Address: rec.address,
			RequestedSize: rec.requestedSize, ActualSize: rec.actualSize, Order: rec.order,
		},
		CorrelationID: corrID,
	})

	a.merge(rec.address, rec.order, corrID)

	return true
}

// merge recursively coalesces the block at (address, order) with its
// buddy for as long as the buddy is free, terminating at maxOrder or the
// first non-free buddy.
func (a *Allocator) merge(address uint64, order int, corrID xid.ID) {
	if order >= a.maxOrder {
		return
	}

	size := a.minBlockSize << uint(order)
	buddyAddr := address ^ size

	idx, found := a.findInFreeList(order, buddyAddr)
	if !found {
		return
	}

	a.removeAt(order, idx)
	a.removeValue(order, address)

	mergedAddr := address
	if buddyAddr < address {
		mergedAddr = buddyAddr
	}

	a.push(order+1, mergedAddr)
	a.merges++

	a.InvokeHook(hooking.HookCtx{
		Domain:        a,
		Pos:           hookMerge,
		Item:          mergedAddr,
		CorrelationID: corrID,
	})

	a.merge(mergedAddr, order+1, corrID)
}

func (a *Allocator) findInFreeList(order int, address uint64) (int, bool) {
	for i, addr := range a.freeLists[order] {
		if addr == address {
			return i, true
		}
	}
	return 0, false
}

func (a *Allocator) removeAt(order, idx int) {
	list := a.freeLists[order]
	a.freeLists[order] = append(list[:idx], list[idx+1:]...)
}

func (a *Allocator) removeValue(order int, address uint64) {
	if idx, found := a.findInFreeList(order, address); found {
		a.removeAt(order, idx)
	}
}

// Attempts, Successes, Failures, Splits and Merges expose the
// monotonically increasing operation counters.
func (a *Allocator) Attempts() int  { return a.totalAllocations }
func (a *Allocator) Successes() int { return a.successfulAllocations }
func (a *Allocator) Failures() int  { return a.failedAllocations }
func (a *Allocator) Splits() int    { return a.splits }
func (a *Allocator) Merges() int    { return a.merges }

// InternalFragmentation is the running total of actual-minus-requested
// bytes across every live allocation.
func (a *Allocator) InternalFragmentation() int64 { return a.internalFragmentation }

// FreeListLen reports how many blocks are currently free at order,
// useful for asserting the LIFO free-list invariant in tests.
func (a *Allocator) FreeListLen(order int) int {
	return len(a.freeLists[order])
}

// FreeListAddresses returns a copy of the free addresses at order, head
// (next to be allocated) first.
func (a *Allocator) FreeListAddresses(order int) []uint64 {
	list := a.freeLists[order]
	out := make([]uint64, len(list))
	for i := range list {
		out[i] = list[len(list)-1-i]
	}
	return out
}

// Allocation looks up the record for a live block id.
func (a *Allocator) Allocation(blockID int) (Allocation, bool) {
	rec, ok := a.records[blockID]
	if !ok {
		return Allocation{}, false
	}
	return Allocation{
		BlockID: blockID, Address: rec.address,
		RequestedSize: rec.requestedSize, ActualSize: rec.actualSize, Order: rec.order,
	}, true
}
