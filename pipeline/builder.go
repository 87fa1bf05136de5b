package pipeline

import (
	"github.com/archsim/memhier/allocator/contiguous"
	"github.com/archsim/memhier/cache"
	"github.com/archsim/memhier/vm"
)

// Builder assembles a Pipeline with the fluent With*/Build convention
// used throughout this module. Every component is optional.
type Builder struct {
	contiguousAllocator *contiguous.Allocator
	buddyTotalMemory    uint64
	useBuddy            bool
	space               *vm.VirtualMemory
	hierarchy           *cache.Hierarchy
}

// MakeBuilder returns an empty Builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithContiguousAllocator selects the contiguous allocator as active.
func (b Builder) WithContiguousAllocator(a *contiguous.Allocator) Builder {
	b.contiguousAllocator = a
	b.useBuddy = false
	return b
}

// WithBuddyAllocator selects the buddy allocator as active, built over
// an arena rounded up from totalMemory.
func (b Builder) WithBuddyAllocator(totalMemory uint64) Builder {
	b.buddyTotalMemory = totalMemory
	b.useBuddy = true
	return b
}

// WithVirtualMemory enables paging.
func (b Builder) WithVirtualMemory(space *vm.VirtualMemory) Builder {
	b.space = space
	return b
}

// WithCacheHierarchy enables cached access.
func (b Builder) WithCacheHierarchy(h *cache.Hierarchy) Builder {
	b.hierarchy = h
	return b
}

// Build constructs the Pipeline.
func (b Builder) Build() *Pipeline {
	p := New()
	if b.useBuddy {
		p.SetBuddyAllocator(b.buddyTotalMemory)
	} else if b.contiguousAllocator != nil {
		p.SetContiguousAllocator(b.contiguousAllocator)
	}
	p.SetVirtualMemory(b.space)
	p.SetCacheHierarchy(b.hierarchy)
	return p
}
