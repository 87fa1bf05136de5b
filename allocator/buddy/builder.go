package buddy

// Builder constructs an Allocator with the fluent With*/Build convention
// used throughout this module.
type Builder struct {
	totalMemory  uint64
	minBlockSize uint64
}

// MakeBuilder returns a Builder defaulted to DefaultTotalMemory and
// DefaultMinBlockSize.
func MakeBuilder() Builder {
	return Builder{
		totalMemory:  DefaultTotalMemory,
		minBlockSize: DefaultMinBlockSize,
	}
}

// WithTotalMemory sets the arena size in bytes.
func (b Builder) WithTotalMemory(totalMemory uint64) Builder {
	b.totalMemory = totalMemory
	return b
}

// WithMinBlockSize sets the smallest block size handed out.
func (b Builder) WithMinBlockSize(minBlockSize uint64) Builder {
	b.minBlockSize = minBlockSize
	return b
}

// Build constructs the Allocator.
func (b Builder) Build() *Allocator {
	return New(b.totalMemory, b.minBlockSize)
}
