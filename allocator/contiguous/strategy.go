package contiguous

// Strategy selects how Allocate picks among candidate free blocks.
type Strategy int

const (
	// FirstFit returns the lowest-address block that is large enough.
	FirstFit Strategy = iota
	// BestFit returns the block minimizing leftover space.
	BestFit
	// WorstFit returns the block maximizing leftover space.
	WorstFit
)

// String renders the strategy using the token vocabulary CLI reports use.
func (s Strategy) String() string {
	switch s {
	case FirstFit:
		return "first_fit"
	case BestFit:
		return "best_fit"
	case WorstFit:
		return "worst_fit"
	default:
		return "unknown"
	}
}

// ParseStrategy maps the CLI token vocabulary onto a Strategy. Unknown
// tokens are reported so callers can decide on a default; this package
// never silently substitutes one.
func ParseStrategy(token string) (Strategy, bool) {
	switch token {
	case "first_fit":
		return FirstFit, true
	case "best_fit":
		return BestFit, true
	case "worst_fit":
		return WorstFit, true
	default:
		return FirstFit, false
	}
}
