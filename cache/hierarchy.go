package cache

import (
	"errors"

	"github.com/archsim/memhier/hooking"
	"github.com/rs/xid"
)

// Fixed miss-penalty constants, per §4.D — never configurable.
const (
	L1Penalty     = 1
	L2Penalty     = 10
	L3Penalty     = 50
	MemoryPenalty = 100
)

// ErrL1Required is returned by HierarchyBuilder.Build when no L1 level
// was configured.
var ErrL1Required = errors.New("cache: L1 is mandatory")

// ErrL3NeedsL2 is returned by HierarchyBuilder.Build when L3 was
// configured without L2.
var ErrL3NeedsL2 = errors.New("cache: L3 requires L2")

var hookAccess = hooking.HookPos{Name: "cache.access"}

// Hierarchy composes one to three cache levels with the fixed
// miss-penalty schedule and write-policy propagation of §4.D.
type Hierarchy struct {
	hooking.HookableBase

	l1, l2, l3 *Level

	totalAccesses int
	totalReads    int
	totalWrites   int

	l1Hits int
	l2Hits int
	l3Hits int

	memoryAccesses     int
	memoryWrites       int
	totalPenaltyCycles int64
}

// AccessOutcome reports whether a read or write reached main memory,
// for callers (the unified pipeline) that want to distinguish a
// resolved-in-cache access from one that touched memory.
type AccessOutcome struct {
	ReachedMemory bool
	PenaltyCycles int64
}

// L1Policy is the write policy L1 is configured with; per §4.D, it
// governs memory-write visibility on a cache hit for the whole
// hierarchy.
func (h *Hierarchy) L1Policy() WritePolicy { return h.l1.writePolicy }

// Read performs a hierarchy-wide read per §4.D's read path.
func (h *Hierarchy) Read(address uint64) AccessOutcome {
	return h.ReadCorrelated(address, hooking.NewID())
}

// ReadCorrelated behaves like Read but threads an existing correlation
// id through every hook fired while servicing the access, instead of
// minting a new one. The unified pipeline uses this so a translation
// followed by a cache dispatch shares one id.
func (h *Hierarchy) ReadCorrelated(address uint64, corrID xid.ID) AccessOutcome {
	h.totalAccesses++
	h.totalReads++
	var penalty int64

	if h.l1.Read(address) == Hit {
		h.l1Hits++
		penalty = L1Penalty
		h.totalPenaltyCycles += penalty
		h.invokeAccess(address, false, false, penalty, corrID)
		return AccessOutcome{PenaltyCycles: penalty}
	}
	penalty += L1Penalty

	if h.l2 != nil {
		if h.l2.Read(address) == Hit {
			h.l2Hits++
			penalty += L2Penalty
			h.l1.InsertCorrelated(address, false, corrID)
			h.totalPenaltyCycles += penalty
			h.invokeAccess(address, false, false, penalty, corrID)
			return AccessOutcome{PenaltyCycles: penalty}
		}
		penalty += L2Penalty
	}

	if h.l3 != nil {
		if h.l3.Read(address) == Hit {
			h.l3Hits++
			penalty += L3Penalty
			if h.l2 != nil {
				h.l2.InsertCorrelated(address, false, corrID)
			}
			h.l1.InsertCorrelated(address, false, corrID)
			h.totalPenaltyCycles += penalty
			h.invokeAccess(address, false, false, penalty, corrID)
			return AccessOutcome{PenaltyCycles: penalty}
		}
		penalty += L3Penalty
	}

	h.memoryAccesses++
	penalty += MemoryPenalty
	h.refillAll(address, false, corrID)
	h.totalPenaltyCycles += penalty
	h.invokeAccess(address, false, true, penalty, corrID)

	return AccessOutcome{ReachedMemory: true, PenaltyCycles: penalty}
}

// Write performs a hierarchy-wide write per §4.D's write path.
func (h *Hierarchy) Write(address uint64) AccessOutcome {
	return h.WriteCorrelated(address, hooking.NewID())
}

// WriteCorrelated behaves like Write but threads an existing
// correlation id through the refill inserts and the access hook,
// instead of minting a new one. Each level probe goes through
// Level.Write, which mints its own id, so the insert hook a level fires
// when it write-allocates on a miss does not carry corrID.
func (h *Hierarchy) WriteCorrelated(address uint64, corrID xid.ID) AccessOutcome {
	h.totalAccesses++
	h.totalWrites++
	var penalty int64
	l1IsWT := h.l1.writePolicy == WriteThrough

	if h.l1.Write(address) == Hit {
		h.l1Hits++
		penalty = L1Penalty
		if l1IsWT {
			h.memoryWrites++
		}
		h.totalPenaltyCycles += penalty
		h.invokeAccess(address, true, false, penalty, corrID)
		return AccessOutcome{PenaltyCycles: penalty}
	}
	penalty += L1Penalty

	if h.l2 != nil {
		if h.l2.Write(address) == Hit {
			h.l2Hits++
			penalty += L2Penalty
			h.l1.InsertCorrelated(address, !l1IsWT, corrID)
			if l1IsWT {
				h.memoryWrites++
			}
			h.totalPenaltyCycles += penalty
			h.invokeAccess(address, true, false, penalty, corrID)
			return AccessOutcome{PenaltyCycles: penalty}
		}
		penalty += L2Penalty
	}

	if h.l3 != nil {
		if h.l3.Write(address) == Hit {
			h.l3Hits++
			penalty += L3Penalty
			if h.l2 != nil {
				h.l2.InsertCorrelated(address, !l1IsWT, corrID)
			}
			h.l1.InsertCorrelated(address, !l1IsWT, corrID)
			if l1IsWT {
				h.memoryWrites++
			}
			h.totalPenaltyCycles += penalty
			h.invokeAccess(address, true, false, penalty, corrID)
			return AccessOutcome{PenaltyCycles: penalty}
		}
		penalty += L3Penalty
	}

	h.memoryAccesses++
	penalty += MemoryPenalty
	if l1IsWT {
		h.memoryWrites++
	}
	h.refillAll(address, !l1IsWT, corrID)
	h.totalPenaltyCycles += penalty
	h.invokeAccess(address, true, true, penalty, corrID)

	return AccessOutcome{ReachedMemory: true, PenaltyCycles: penalty}
}

// refillAll installs address into every present level, top-down
// (L3, L2, L1), per §4.D step 5.
func (h *Hierarchy) refillAll(address uint64, dirty bool, corrID xid.ID) {
	if h.l3 != nil {
		h.l3.InsertCorrelated(address, dirty, corrID)
	}
	if h.l2 != nil {
		h.l2.InsertCorrelated(address, dirty, corrID)
	}
	h.l1.InsertCorrelated(address, dirty, corrID)
}

func (h *Hierarchy) invokeAccess(address uint64, isWrite, reachedMemory bool, penalty int64, corrID xid.ID) {
	h.InvokeHook(hooking.HookCtx{
		Domain: h,
		Pos:    hookAccess,
		Item: AccessOutcome{
			ReachedMemory: reachedMemory,
			PenaltyCycles: penalty,
		},
		CorrelationID: corrID,
	})
	_ = address
	_ = isWrite
}

// ClearAll resets every configured level and zeros all hierarchy
// counters.
func (h *Hierarchy) ClearAll() {
	h.l1.Clear()
	if h.l2 != nil {
		h.l2.Clear()
	}
	if h.l3 != nil {
		h.l3.Clear()
	}
	h.totalAccesses = 0
	h.totalReads = 0
	h.totalWrites = 0
	h.l1Hits = 0
	h.l2Hits = 0
	h.l3Hits = 0
	h.memoryAccesses = 0
	h.memoryWrites = 0
	h.totalPenaltyCycles = 0
}

func (h *Hierarchy) L1() *Level { return h.l1 }
func (h *Hierarchy) L2() *Level { return h.l2 }
func (h *Hierarchy) L3() *Level { return h.l3 }

func (h *Hierarchy) TotalAccesses() int        { return h.totalAccesses }
func (h *Hierarchy) TotalReads() int           { return h.totalReads }
func (h *Hierarchy) TotalWrites() int          { return h.totalWrites }
func (h *Hierarchy) L1Hits() int               { return h.l1Hits }
func (h *Hierarchy) L2Hits() int               { return h.l2Hits }
func (h *Hierarchy) L3Hits() int               { return h.l3Hits }
func (h *Hierarchy) MemoryAccesses() int       { return h.memoryAccesses }
func (h *Hierarchy) MemoryWrites() int         { return h.memoryWrites }
func (h *Hierarchy) TotalPenaltyCycles() int64 { return h.totalPenaltyCycles }

// Writebacks sums the per-level writeback counters.
func (h *Hierarchy) Writebacks() int {
	total := h.l1.Writebacks()
	if h.l2 != nil {
		total += h.l2.Writebacks()
	}
	if h.l3 != nil {
		total += h.l3.Writebacks()
	}
	return total
}
