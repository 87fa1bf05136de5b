// Package cache implements the set-associative cache level and the
// multi-level hierarchy composing up to three of them, per §4.C/§4.D.
package cache

import (
	"github.com/archsim/memhier/cache/tagging"
	"github.com/archsim/memhier/hooking"
	"github.com/rs/xid"
)

var (
	hookInsert = hooking.HookPos{Name: "cache.insert"}
	hookEvict  = hooking.HookPos{Name: "cache.evict"}
)

// Level is one set-associative cache table.
type Level struct {
	hooking.HookableBase

	Name        string
	numSets     int
	ways        int
	blockSize   uint64
	replacement ReplacementPolicy
	writePolicy WritePolicy

	sets []tagging.Set

	nextInsertionOrder uint64
	accessCounter      uint64

	hits        int
	misses      int
	writes      int
	writeHits   int
	writeMisses int
	writebacks  int
}

// NewLevel builds a level with numSets*ways lines of blockSize bytes
// each.
func NewLevel(name string, numSets, ways int, blockSize uint64, replacement ReplacementPolicy, writePolicy WritePolicy) *Level {
	sets := make([]tagging.Set, numSets)
	for i := range sets {
		sets[i] = tagging.NewSet(ways)
	}
	return &Level{
		Name:        name,
		numSets:     numSets,
		ways:        ways,
		blockSize:   blockSize,
		replacement: replacement,
		writePolicy: writePolicy,
		sets:        sets,
	}
}

func (l *Level) decompose(address uint64) (blockNumber uint64, setIndex int, tag uint64) {
	blockNumber = address / l.blockSize
	setIndex = int(blockNumber % uint64(l.numSets))
	tag = blockNumber / uint64(l.numSets)
	return
}

// Read probes the level for address without inserting on a miss;
// insertion is the hierarchy's responsibility.
func (l *Level) Read(address uint64) Result {
	_, setIndex, tag := l.decompose(address)
	set := &l.sets[setIndex]

	if way, ok := set.Lookup(tag); ok {
		l.hits++
		if l.replacement == LRU {
			l.accessCounter++
			set.Lines[way].LastAccessTime = l.accessCounter
		}
		return Hit
	}

	l.misses++
	return Miss
}

// Write probes the level for address, marking the line dirty on a
// write-back hit, or write-allocating on a miss.
func (l *Level) Write(address uint64) Result {
	corrID := hooking.NewID()
	l.writes++
	_, setIndex, tag := l.decompose(address)
	set := &l.sets[setIndex]

	if way, ok := set.Lookup(tag); ok {
		l.writeHits++
		l.hits++
		if l.replacement == LRU {
			l.accessCounter++
			set.Lines[way].LastAccessTime = l.accessCounter
		}
		if l.writePolicy == WriteBack {
			set.Lines[way].Dirty = true
		}
		return Hit
	}

	l.writeMisses++
	l.misses++

	way := l.findVictim(setIndex)
	l.installLine(setIndex, way, tag, l.writePolicy == WriteBack, corrID)

	return Miss
}

// Insert is the refill/upgrade hook used by the hierarchy: it installs
// or LRU-touches the line for address, marking it dirty iff isDirty
// and this level is write-back. It generates its own correlation id;
// InsertCorrelated lets a caller (the hierarchy) supply one instead so
// every hook fired while serving one access shares it.
func (l *Level) Insert(address uint64, isDirty bool) {
	l.InsertCorrelated(address, isDirty, hooking.NewID())
}

// InsertCorrelated behaves like Insert but threads an existing
// correlation id through the fired hook instead of minting a new one.
func (l *Level) InsertCorrelated(address uint64, isDirty bool, corrID xid.ID) {
	_, setIndex, tag := l.decompose(address)
	set := &l.sets[setIndex]

	if way, ok := set.Lookup(tag); ok {
		if l.replacement == LRU {
			l.accessCounter++
			set.Lines[way].LastAccessTime = l.accessCounter
		}
		if isDirty && l.writePolicy == WriteBack {
			set.Lines[way].Dirty = true
		}
		return
	}

	way := l.findVictim(setIndex)
	l.installLine(setIndex, way, tag, isDirty && l.writePolicy == WriteBack, corrID)
}

// installLine writes over the victim way in setIndex, counting a
// writeback first if the outgoing line was dirty and this level is
// write-back.
func (l *Level) installLine(setIndex, way int, tag uint64, dirty bool, corrID xid.ID) {
	line := &l.sets[setIndex].Lines[way]
	if line.Valid && line.Dirty && l.writePolicy == WriteBack {
		l.writebacks++
	}

	l.nextInsertionOrder++
	l.accessCounter++

	*line = tagging.Line{
		Valid:          true,
		Tag:            tag,
		Dirty:          dirty,
		InsertionOrder: l.nextInsertionOrder,
		LastAccessTime: l.accessCounter,
	}

	l.InvokeHook(hooking.HookCtx{Domain: l, Pos: hookInsert, Item: *line, CorrelationID: corrID})
}

// findVictim prefers the lowest-index invalid way; otherwise it
// applies the level's replacement policy, breaking ties toward the
// lowest index.
func (l *Level) findVictim(setIndex int) int {
	lines := l.sets[setIndex].Lines

	for way := range lines {
		if !lines[way].Valid {
			return way
		}
	}

	victim := 0
	for way := 1; way < len(lines); way++ {
		if l.replacement == FIFO {
			if lines[way].InsertionOrder < lines[victim].InsertionOrder {
				victim = way
			}
		} else {
			if lines[way].LastAccessTime < lines[victim].LastAccessTime {
				victim = way
			}
		}
	}
	return victim
}

// Evict invalidates the line for address if present, reporting whether
// it was dirty.
func (l *Level) Evict(address uint64) (wasDirty bool, found bool) {
	_, setIndex, tag := l.decompose(address)
	set := &l.sets[setIndex]

	way, ok := set.Lookup(tag)
	if !ok {
		return false, false
	}

	wasDirty = set.Lines[way].Dirty
	if wasDirty && l.writePolicy == WriteBack {
		l.writebacks++
	}
	set.Lines[way] = tagging.Line{}

	l.InvokeHook(hooking.HookCtx{Domain: l, Pos: hookEvict, Item: address, CorrelationID: hooking.NewID()})

	return wasDirty, true
}

// Clear invalidates every line and zeros all counters.
func (l *Level) Clear() {
	for i := range l.sets {
		l.sets[i] = tagging.NewSet(l.ways)
	}
	l.nextInsertionOrder = 0
	l.accessCounter = 0
	l.hits = 0
	l.misses = 0
	l.writes = 0
	l.writeHits = 0
	l.writeMisses = 0
	l.writebacks = 0
}

func (l *Level) Hits() int                { return l.hits }
func (l *Level) Misses() int              { return l.misses }
func (l *Level) Writes() int              { return l.writes }
func (l *Level) WriteHits() int           { return l.writeHits }
func (l *Level) WriteMisses() int         { return l.writeMisses }
func (l *Level) Writebacks() int          { return l.writebacks }
func (l *Level) NumSets() int             { return l.numSets }
func (l *Level) Ways() int                { return l.ways }
func (l *Level) WritePolicy() WritePolicy { return l.writePolicy }
