package chain

// Smoothing selects the denominator used for add-one smoothing of a
// transition probability. The numerator is always count(next) + 1.
type Smoothing int

const (
	// SmoothDistinct uses total + distinct + 1. This is the default.
	SmoothDistinct Smoothing = iota
	// SmoothTotal uses total + 1.
	SmoothTotal
)

func (s Smoothing) String() string {
	switch s {
	case SmoothDistinct:
		return "distinct"
	case SmoothTotal:
		return "total"
	default:
		return "unknown"
	}
}

func (s Smoothing) denominator(total int64, distinct int) float64 {
	if s == SmoothTotal {
		return float64(total) + 1
	}
	return float64(total) + float64(distinct) + 1
}

// Option configures a Model.
type Option func(*options)

type options struct {
	smoothing Smoothing
}

// WithSmoothing sets the smoothing denominator.
// Default: SmoothDistinct
func WithSmoothing(s Smoothing) Option {
	return func(o *options) {
		o.smoothing = s
	}
}
