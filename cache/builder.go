package cache

// LevelBuilder constructs a Level with the fluent With*/Build
// convention used throughout this module.
type LevelBuilder struct {
	name          string
	capacityLines int
	blockSize     uint64
	assoc         Associativity
	replacement   ReplacementPolicy
	writePolicy   WritePolicy
}

// MakeLevelBuilder returns a LevelBuilder defaulted to fully-associative
// / FIFO / write-through, matching §6's default token resolution.
func MakeLevelBuilder(name string) LevelBuilder {
	return LevelBuilder{
		name:          name,
		capacityLines: 1,
		blockSize:     64,
		assoc:         FullyAssociative,
		replacement:   FIFO,
		writePolicy:   WriteThrough,
	}
}

func (b LevelBuilder) WithCapacityLines(lines int) LevelBuilder {
	b.capacityLines = lines
	return b
}

func (b LevelBuilder) WithBlockSize(blockSize uint64) LevelBuilder {
	b.blockSize = blockSize
	return b
}

func (b LevelBuilder) WithAssociativity(assoc Associativity) LevelBuilder {
	b.assoc = assoc
	return b
}

func (b LevelBuilder) WithReplacement(policy ReplacementPolicy) LevelBuilder {
	b.replacement = policy
	return b
}

func (b LevelBuilder) WithWritePolicy(policy WritePolicy) LevelBuilder {
	b.writePolicy = policy
	return b
}

// Build derives (num_sets, ways) from capacityLines and the configured
// associativity, then constructs the Level.
func (b LevelBuilder) Build() *Level {
	numSets, ways := b.assoc.SetsAndWays(b.capacityLines)
	return NewLevel(b.name, numSets, ways, b.blockSize, b.replacement, b.writePolicy)
}

// HierarchyBuilder assembles a Hierarchy out of up to three optional
// level builders. L1 is mandatory; L3 requires L2.
type HierarchyBuilder struct {
	l1, l2, l3 *LevelBuilder
}

// MakeHierarchyBuilder returns an empty HierarchyBuilder.
func MakeHierarchyBuilder() HierarchyBuilder {
	return HierarchyBuilder{}
}

func (b HierarchyBuilder) WithL1(l LevelBuilder) HierarchyBuilder {
	b.l1 = &l
	return b
}

func (b HierarchyBuilder) WithL2(l LevelBuilder) HierarchyBuilder {
	b.l2 = &l
	return b
}

func (b HierarchyBuilder) WithL3(l LevelBuilder) HierarchyBuilder {
	b.l3 = &l
	return b
}

// Build constructs the Hierarchy, or returns ErrL1Required /
// ErrL3NeedsL2 if the configuration violates §4.D's prerequisites.
func (b HierarchyBuilder) Build() (*Hierarchy, error) {
	if b.l1 == nil {
		return nil, ErrL1Required
	}
	if b.l3 != nil && b.l2 == nil {
		return nil, ErrL3NeedsL2
	}

	h := &Hierarchy{l1: b.l1.Build()}
	if b.l2 != nil {
		h.l2 = b.l2.Build()
	}
	if b.l3 != nil {
		h.l3 = b.l3.Build()
	}
	return h, nil
}
