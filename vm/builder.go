package vm

// Builder constructs a VirtualMemory with the fluent With*/Build
// convention used throughout this module.
type Builder struct {
	vmSize      uint64
	pmSize      uint64
	pageSize    uint64
	replacement ReplacementPolicy
}

// MakeBuilder returns a Builder with a 4-byte page size and FIFO
// replacement.
func MakeBuilder() Builder {
	return Builder{pageSize: 4, replacement: FIFO}
}

func (b Builder) WithVMSize(size uint64) Builder {
	b.vmSize = size
	return b
}

func (b Builder) WithPMSize(size uint64) Builder {
	b.pmSize = size
	return b
}

func (b Builder) WithPageSize(size uint64) Builder {
	b.pageSize = size
	return b
}

func (b Builder) WithReplacement(policy ReplacementPolicy) Builder {
	b.replacement = policy
	return b
}

// Build constructs the VirtualMemory.
func (b Builder) Build() *VirtualMemory {
	return New(b.vmSize, b.pmSize, b.pageSize, b.replacement)
}
