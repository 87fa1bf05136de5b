// Package hooking provides a side-channel observation mechanism used by
// the allocator, cache, and virtual memory engines to report verbose
// trace events without influencing their simulated state.
package hooking

import "github.com/rs/xid"

// A HookPos names a site inside a component where a hook may fire, e.g.
// "buddy.split" or "cache.insert".
type HookPos struct {
	Name string
}

// HookCtx carries everything a Hook needs to describe one firing.
type HookCtx struct {
	Domain Hookable
	Pos    HookPos
	Item   interface{}

	// CorrelationID ties together every hook fired while serving a
	// single externally issued operation.
	CorrelationID xid.ID
}

// Hookable is implemented by any component that accepts hooks.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
}

// Hook is a short piece of program invoked by a Hookable at a HookPos.
type Hook interface {
	Func(ctx HookCtx)
}

// HookableBase implements the bookkeeping shared by every Hookable.
type HookableBase struct {
	hookList []Hook
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// Hooks returns all the hooks registered.
func (h *HookableBase) Hooks() []Hook {
	return h.hookList
}

// AcceptHook registers a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.mustNotHaveDuplicatedHook(hook)
	h.hookList = append(h.hookList, hook)
}

func (h *HookableBase) mustNotHaveDuplicatedHook(hook Hook) {
	for _, existing := range h.hookList {
		if existing == hook {
			panic("duplicated hook")
		}
	}
}

// InvokeHook triggers every registered hook with ctx. It never mutates
// the caller's state — hooks are a read-only side channel.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}

// NewID returns a new correlation id for one externally issued
// operation. Every hook fired while serving that operation should carry
// the same id.
func NewID() xid.ID {
	return xid.New()
}
