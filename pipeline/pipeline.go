package pipeline

import (
	"github.com/archsim/memhier/allocator/buddy"
	"github.com/archsim/memhier/allocator/contiguous"
	"github.com/archsim/memhier/cache"
	"github.com/archsim/memhier/hooking"
	"github.com/archsim/memhier/vm"
)

var hookAccess = hooking.HookPos{Name: "pipeline.access"}

// DefaultBuddyMinBlockSize is substituted whenever switching into
// buddy mode, per §4.F.
const DefaultBuddyMinBlockSize uint64 = 16

// Outcome reports what a single AccessMemory call did.
type Outcome struct {
	PhysicalAddress uint64
	ReachedMemory   bool
	PenaltyCycles   int64
}

// Pipeline orchestrates virtual-address translation and cache-hierarchy
// dispatch for a single simulated memory access, per §4.F. Allocator
// commands (allocate/deallocate) operate directly on the active
// allocator and never flow through AccessMemory.
type Pipeline struct {
	hooking.HookableBase

	allocator ActiveAllocator
	space     *vm.VirtualMemory
	hierarchy *cache.Hierarchy
}

// New returns a Pipeline with no allocator, VM, or cache configured.
func New() *Pipeline {
	return &Pipeline{}
}

// SetAllocator installs the active allocator, replacing whichever one
// (if any) was active before. Switching allocators resets whatever
// state the caller already discarded; the pipeline itself holds no
// allocator state of its own.
func (p *Pipeline) SetAllocator(a ActiveAllocator) { p.allocator = a }

// SetContiguousAllocator is a convenience wrapper for SetAllocator.
func (p *Pipeline) SetContiguousAllocator(a *contiguous.Allocator) {
	p.SetAllocator(NewContiguousAllocator(a))
}

// SetBuddyAllocator is a convenience wrapper for SetAllocator that
// rounds totalMemory up to a power of two first, as §4.F requires.
func (p *Pipeline) SetBuddyAllocator(totalMemory uint64) {
	arena := nextPow2(totalMemory, DefaultBuddyMinBlockSize)
	p.SetAllocator(NewBuddyAllocator(buddy.New(arena, DefaultBuddyMinBlockSize)))
}

// Allocator returns the active allocator variant.
func (p *Pipeline) Allocator() ActiveAllocator { return p.allocator }

// SetVirtualMemory enables paging. A nil argument disables it.
func (p *Pipeline) SetVirtualMemory(space *vm.VirtualMemory) { p.space = space }

// VirtualMemory returns the configured address space, or nil if paging
// is disabled.
func (p *Pipeline) VirtualMemory() *vm.VirtualMemory { return p.space }

// SetCacheHierarchy enables cached access. A nil argument disables it.
func (p *Pipeline) SetCacheHierarchy(h *cache.Hierarchy) { p.hierarchy = h }

// CacheHierarchy returns the configured hierarchy, or nil if caching is
// disabled.
func (p *Pipeline) CacheHierarchy() *cache.Hierarchy { return p.hierarchy }

// AccessMemory performs one read or write through the pipeline: VM
// translation (if enabled) strictly precedes cache dispatch (if
// enabled), per §4.F and §5's ordering guarantee. One correlation id is
// minted per call and threaded through translation, cache dispatch,
// and the pipeline's own hook, so the hooks fired while serving this
// access share it. The one exception is the insert hook a cache level
// fires when Level.Write write-allocates on a miss: Level.Write mints
// its own id, so that hook carries a different one.
func (p *Pipeline) AccessMemory(address uint64, isWrite bool) (Outcome, error) {
	corrID := hooking.NewID()
	pa := address

	if p.space != nil {
		translated, err := p.space.TranslateAddressCorrelated(address, corrID)
		if err != nil {
			return Outcome{}, err
		}
		pa = translated
		if isWrite {
			p.space.MarkDirty(address)
		}
	}

	var out Outcome
	if p.hierarchy != nil {
		var result cache.AccessOutcome
		if isWrite {
			result = p.hierarchy.WriteCorrelated(pa, corrID)
		} else {
			result = p.hierarchy.ReadCorrelated(pa, corrID)
		}
		out = Outcome{PhysicalAddress: pa, ReachedMemory: result.ReachedMemory, PenaltyCycles: result.PenaltyCycles}
	} else {
		out = Outcome{PhysicalAddress: pa, ReachedMemory: true}
	}

	p.InvokeHook(hooking.HookCtx{Domain: p, Pos: hookAccess, Item: out, CorrelationID: corrID})

	return out, nil
}
