// Package vm implements demand-paged virtual memory: a page table, a
// frame table, and FIFO/LRU replacement on a fault, per §4.E.
package vm

import (
	"errors"

	"github.com/archsim/memhier/hooking"
	"github.com/rs/xid"
)

// ReplacementPolicy selects which resident page a fault evicts when no
// frame is free.
type ReplacementPolicy int

const (
	FIFO ReplacementPolicy = iota
	LRU
)

// ParsePolicy maps a CLI token to a ReplacementPolicy, defaulting to
// FIFO on an unrecognised token.
func ParsePolicy(token string) ReplacementPolicy {
	if token == "lru" {
		return LRU
	}
	return FIFO
}

// ErrAddressOutOfRange is returned when a virtual address is at or
// beyond vm_size.
var ErrAddressOutOfRange = errors.New("vm: virtual address out of range")

var (
	hookFault = hooking.HookPos{Name: "vm.fault"}
	hookEvict = hooking.HookPos{Name: "vm.evict"}
	hookLoad  = hooking.HookPos{Name: "vm.load"}
)

// pageTableEntry is one page's residency state.
type pageTableEntry struct {
	valid          bool
	frameNumber    int
	dirty          bool
	loadTime       uint64
	lastAccessTime uint64
	accessCount    uint64
}

// VirtualMemory is a demand-paged address space over num_physical_frames
// of backing storage, with page/frame bijection enforced while a page
// is resident.
type VirtualMemory struct {
	hooking.HookableBase

	vmSize      uint64
	pageSize    uint64
	numPages    int
	numFrames   int
	replacement ReplacementPolicy

	pageTable   []pageTableEntry
	frameToPage []int

	currentTime uint64

	totalAccesses int
	pageHits      int
	pageFaults    int
	diskReads     int
	diskWrites    int
}

// New constructs a VirtualMemory. If pmSize implies more frames than
// vmSize implies pages, the frame count is clamped down to the page
// count, since physical memory cannot exceed virtual memory.
func New(vmSize, pmSize, pageSize uint64, replacement ReplacementPolicy) *VirtualMemory {
	numPages := int(vmSize / pageSize)
	numFrames := int(pmSize / pageSize)
	if numFrames > numPages {
		numFrames = numPages
	}

	frameToPage := make([]int, numFrames)
	for i := range frameToPage {
		frameToPage[i] = -1
	}

	return &VirtualMemory{
		vmSize:      vmSize,
		pageSize:    pageSize,
		numPages:    numPages,
		numFrames:   numFrames,
		replacement: replacement,
		pageTable:   make([]pageTableEntry, numPages),
		frameToPage: frameToPage,
	}
}

// TranslateAddress resolves a virtual address to a physical address,
// servicing a page fault if necessary.
func (vm *VirtualMemory) TranslateAddress(va uint64) (uint64, error) {
	return vm.TranslateAddressCorrelated(va, hooking.NewID())
}

// TranslateAddressCorrelated behaves like TranslateAddress but threads
// an existing correlation id through every hook fired while servicing
// the translation, instead of minting a new one. The unified pipeline
// uses this so one external access produces one correlation id across
// both translation and any subsequent cache dispatch.
func (vm *VirtualMemory) TranslateAddressCorrelated(va uint64, corrID xid.ID) (uint64, error) {
	vm.totalAccesses++
	vm.currentTime++

	if va >= vm.vmSize {
		return 0, ErrAddressOutOfRange
	}

	page := va / vm.pageSize
	offset := va % vm.pageSize

	pte := &vm.pageTable[page]
	if pte.valid {
		vm.pageHits++
		pte.lastAccessTime = vm.currentTime
		pte.accessCount++
		return uint64(pte.frameNumber)*vm.pageSize + offset, nil
	}

	vm.pageFaults++
	vm.handleFault(int(page), corrID)

	pte = &vm.pageTable[page]
	return uint64(pte.frameNumber)*vm.pageSize + offset, nil
}

// handleFault finds or frees a frame for page, then loads page into it.
func (vm *VirtualMemory) handleFault(page int, corrID xid.ID) {
	vm.InvokeHook(hooking.HookCtx{Domain: vm, Pos: hookFault, Item: page, CorrelationID: corrID})

	frame := vm.findFreeFrame()
	if frame == -1 {
		victim := vm.selectVictim()
		frame = vm.evict(victim, corrID)
	}
	vm.load(page, frame, corrID)
}

func (vm *VirtualMemory) findFreeFrame() int {
	for f, p := range vm.frameToPage {
		if p == -1 {
			return f
		}
	}
	return -1
}

// selectVictim picks the resident page the configured policy evicts,
// breaking ties toward the lowest page number by frame-scan order.
func (vm *VirtualMemory) selectVictim() int {
	victim := -1
	var victimKey uint64

	for _, page := range vm.frameToPage {
		if page == -1 {
			continue
		}
		pte := &vm.pageTable[page]

		var key uint64
		if vm.replacement == FIFO {
			key = pte.loadTime
		} else {
			key = pte.lastAccessTime
		}

		if victim == -1 || key < victimKey || (key == victimKey && page < victim) {
			victim = page
			victimKey = key
		}
	}

	return victim
}

// evict invalidates victim's PTE, frees its frame, and returns the
// freed frame index.
func (vm *VirtualMemory) evict(victim int, corrID xid.ID) int {
	pte := &vm.pageTable[victim]
	frame := pte.frameNumber

	if pte.dirty {
		vm.diskWrites++
	}

	vm.InvokeHook(hooking.HookCtx{Domain: vm, Pos: hookEvict, Item: victim, CorrelationID: corrID})

	*pte = pageTableEntry{frameNumber: -1}
	vm.frameToPage[frame] = -1

	return frame
}

// load brings page into frame, counting one disk read.
func (vm *VirtualMemory) load(page, frame int, corrID xid.ID) {
	vm.diskReads++

	vm.pageTable[page] = pageTableEntry{
		valid:          true,
		frameNumber:    frame,
		dirty:          false,
		loadTime:       vm.currentTime,
		lastAccessTime: vm.currentTime,
		accessCount:    1,
	}
	vm.frameToPage[frame] = page

	vm.InvokeHook(hooking.HookCtx{Domain: vm, Pos: hookLoad, Item: page, CorrelationID: corrID})
}

// MarkDirty records that the page currently mapping va was written to.
// The unified pipeline calls this after a write that reaches a
// resident page, so a later eviction charges exactly one disk write.
func (vm *VirtualMemory) MarkDirty(va uint64) {
	page := va / vm.pageSize
	if page < uint64(vm.numPages) && vm.pageTable[page].valid {
		vm.pageTable[page].dirty = true
	}
}

// SetReplacementPolicy changes the policy later page faults use to pick
// a victim.
func (vm *VirtualMemory) SetReplacementPolicy(policy ReplacementPolicy) {
	vm.replacement = policy
}

func (vm *VirtualMemory) NumVirtualPages() int   { return vm.numPages }
func (vm *VirtualMemory) NumPhysicalFrames() int { return vm.numFrames }

func (vm *VirtualMemory) TotalAccesses() int { return vm.totalAccesses }
func (vm *VirtualMemory) PageHits() int      { return vm.pageHits }
func (vm *VirtualMemory) PageFaults() int    { return vm.pageFaults }
func (vm *VirtualMemory) DiskReads() int     { return vm.diskReads }
func (vm *VirtualMemory) DiskWrites() int    { return vm.diskWrites }

// PageResident reports whether page is currently mapped to a frame.
func (vm *VirtualMemory) PageResident(page int) bool {
	return vm.pageTable[page].valid
}

// FrameOf returns the frame holding page, if resident.
func (vm *VirtualMemory) FrameOf(page int) (int, bool) {
	pte := &vm.pageTable[page]
	return pte.frameNumber, pte.valid
}
