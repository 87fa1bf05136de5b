// Package contiguous implements the first-fit / best-fit / worst-fit
// contiguous free-list allocator described in §4.A of the simulator
// specification: a doubly-linked list of blocks covering a fixed byte
// arena, with strategy-driven placement, splitting on allocation, and
// left-to-right coalescing on deallocation.
package contiguous

import (
	"errors"
	"fmt"

	"github.com/archsim/memhier/hooking"
	"github.com/rs/xid"
)

// ErrZeroSize is returned when Allocate is asked for zero bytes.
var ErrZeroSize = errors.New("contiguous: cannot allocate 0 bytes")

// ErrOutOfMemory is returned when no free block is large enough.
var ErrOutOfMemory = errors.New("contiguous: no free block large enough")

var (
	hookAllocate   = hooking.HookPos{Name: "contiguous.allocate"}
	hookSplit      = hooking.HookPos{Name: "contiguous.split"}
	hookDeallocate = hooking.HookPos{Name: "contiguous.deallocate"}
	hookCoalesce   = hooking.HookPos{Name: "contiguous.coalesce"}
)

// Block is a read-only snapshot of one node, for reporting.
type Block struct {
	StartAddress uint64
	Size         uint64
	Allocated    bool
	BlockID      int // valid only when Allocated
}

// Allocator is a contiguous free-list allocator over [0, totalMemory).
type Allocator struct {
	hooking.HookableBase

	totalMemory uint64
	strategy    Strategy
	arena       *arena
	nextBlockID int

	attempts  int
	successes int
	failures  int
}

// New creates an allocator covering [0, totalMemory) as a single free
// block, using FirstFit until SetStrategy says otherwise.
func New(totalMemory uint64) *Allocator {
	return &Allocator{
		totalMemory: totalMemory,
		strategy:    FirstFit,
		arena:       newArena(totalMemory),
		nextBlockID: 1,
	}
}

// SetStrategy changes the placement policy for subsequent allocations.
func (a *Allocator) SetStrategy(s Strategy) {
	a.strategy = s
}

// Strategy returns the active placement policy.
func (a *Allocator) Strategy() Strategy {
	return a.strategy
}

// TotalMemory returns the arena size.
func (a *Allocator) TotalMemory() uint64 {
	return a.totalMemory
}

// Allocate places a new block of size bytes according to the active
// strategy, splitting the chosen free block if it is larger than
// needed. It returns the freshly assigned block id.
func (a *Allocator) Allocate(size uint64) (int, error) {
	corrID := hooking.NewID()
	a.attempts++

	if size == 0 {
		a.failures++
		return 0, ErrZeroSize
	}

	idx, ok := a.findFit(size)
	if !ok {
		a.failures++
		return 0, ErrOutOfMemory
	}

	n := a.arena.at(idx)
	if n.size > size {
		a.arena.insertAfter(idx, n.start+size, n.size-size, false)
		n = a.arena.at(idx) // insertAfter may have reallocated the backing slice
		n.size = size

		a.InvokeHook(hooking.HookCtx{
			Domain:        a,
			Pos:           hookSplit,
			Item:          Block{StartAddress: n.start, Size: size},
			CorrelationID: corrID,
		})
	}

	id := a.nextBlockID
	a.nextBlockID++
	n.allocated = true
	n.blockID = id

	a.successes++

	a.InvokeHook(hooking.HookCtx{
		Domain:        a,
		Pos:           hookAllocate,
		Item:          Block{StartAddress: n.start, Size: n.size, Allocated: true, BlockID: id},
		CorrelationID: corrID,
	})

	return id, nil
}

// findFit scans the list for a free block large enough per the active
// strategy, returning its arena index.
func (a *Allocator) findFit(size uint64) (int, bool) {
	switch a.strategy {
	case BestFit:
		return a.findBestFit(size)
	case WorstFit:
		return a.findWorstFit(size)
	default:
		return a.findFirstFit(size)
	}
}

func (a *Allocator) findFirstFit(size uint64) (int, bool) {
	for idx := a.arena.head; idx != noIndex; idx = a.arena.at(idx).next {
		n := a.arena.at(idx)
		if !n.allocated && n.size >= size {
			return idx, true
		}
	}
	return 0, false
}

func (a *Allocator) findBestFit(size uint64) (int, bool) {
	best := noIndex
	var bestLeftover uint64
	for idx := a.arena.head; idx != noIndex; idx = a.arena.at(idx).next {
		n := a.arena.at(idx)
		if n.allocated || n.size < size {
			continue
		}
		leftover := n.size - size
		if best == noIndex || leftover < bestLeftover {
			best = idx
			bestLeftover = leftover
		}
	}
	return best, best != noIndex
}

func (a *Allocator) findWorstFit(size uint64) (int, bool) {
	worst := noIndex
	var worstSize uint64
	for idx := a.arena.head; idx != noIndex; idx = a.arena.at(idx).next {
		n := a.arena.at(idx)
		if n.allocated || n.size < size {
			continue
		}
		if worst == noIndex || n.size > worstSize {
			worst = idx
			worstSize = n.size
		}
	}
	return worst, worst != noIndex
}

// Deallocate frees the block with the given id and coalesces it with any
// adjacent free blocks. It returns false, leaving state unchanged, if no
// allocated block holds that id.
func (a *Allocator) Deallocate(blockID int) bool {
	corrID := hooking.NewID()

	idx, ok := a.findAllocated(blockID)
	if !ok {
		return false
	}

	n := a.arena.at(idx)
	n.allocated = false
	n.blockID = noIndex

	a.InvokeHook(hooking.HookCtx{
		Domain:        a,
		Pos:           hookDeallocate,
		Item:          Block{StartAddress: n.start, Size: n.size, BlockID: blockID},
		CorrelationID: corrID,
	})

	a.coalesce(corrID)

	return true
}

func (a *Allocator) findAllocated(blockID int) (int, bool) {
	for idx := a.arena.head; idx != noIndex; idx = a.arena.at(idx).next {
		n := a.arena.at(idx)
		if n.allocated && n.blockID == blockID {
			return idx, true
		}
	}
	return 0, false
}

// coalesce makes a single left-to-right pass fusing every free block
// with its free successor(s), restoring the no-two-adjacent-free-blocks
// invariant.
func (a *Allocator) coalesce(corrID xid.ID) {
	merged := 0
	idx := a.arena.head
	for idx != noIndex {
		cur := a.arena.at(idx)
		if cur.allocated {
			idx = cur.next
			continue
		}

		for cur.next != noIndex && !a.arena.at(cur.next).allocated {
			next := a.arena.at(cur.next)
			cur.size += next.size
			a.arena.remove(cur.next)
			merged++
			cur = a.arena.at(idx)
		}

		idx = cur.next
	}

	if merged > 0 {
		a.InvokeHook(hooking.HookCtx{
			Domain:        a,
			Pos:           hookCoalesce,
			Item:          merged,
			CorrelationID: corrID,
		})
	}
}

// Blocks returns a snapshot of every block in address order, for
// reporting (dump-style) purposes.
func (a *Allocator) Blocks() []Block {
	var blocks []Block
	for idx := a.arena.head; idx != noIndex; idx = a.arena.at(idx).next {
		n := a.arena.at(idx)
		blocks = append(blocks, Block{
			StartAddress: n.start,
			Size:         n.size,
			Allocated:    n.allocated,
			BlockID:      n.blockID,
		})
	}
	return blocks
}

// Attempts, Successes and Failures report the monotonically increasing
// allocation counters.
func (a *Allocator) Attempts() int  { return a.attempts }
func (a *Allocator) Successes() int { return a.successes }
func (a *Allocator) Failures() int  { return a.failures }

// UsedMemory sums every allocated block's size.
func (a *Allocator) UsedMemory() uint64 {
	var used uint64
	for idx := a.arena.head; idx != noIndex; idx = a.arena.at(idx).next {
		n := a.arena.at(idx)
		if n.allocated {
			used += n.size
		}
	}
	return used
}

// FreeMemory is TotalMemory minus UsedMemory.
func (a *Allocator) FreeMemory() uint64 {
	return a.totalMemory - a.UsedMemory()
}

// CountFreeBlocks returns the number of free (non-allocated) blocks,
// i.e. the external fragmentation count.
func (a *Allocator) CountFreeBlocks() int {
	count := 0
	for idx := a.arena.head; idx != noIndex; idx = a.arena.at(idx).next {
		if !a.arena.at(idx).allocated {
			count++
		}
	}
	return count
}

// String renders a one-line summary, useful in test failure messages.
func (a *Allocator) String() string {
	return fmt.Sprintf("contiguous.Allocator{total=%d used=%d strategy=%s}",
		a.totalMemory, a.UsedMemory(), a.strategy)
}
