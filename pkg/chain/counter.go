package chain

import "iter"

// Counter is a multiset over symbols. The zero value is ready to use, and a
// nil *Counter reads as an empty one.
type Counter[S comparable] struct {
	counts map[S]int64
	total  int64
}

// NewCounter returns an empty Counter.
func NewCounter[S comparable]() *Counter[S] {
	return &Counter[S]{counts: make(map[S]int64)}
}

// Add increments the count for s by n. Non-positive amounts are ignored.
func (c *Counter[S]) Add(s S, n int64) {
	if n <= 0 {
		return
	}
	if c.counts == nil {
		c.counts = make(map[S]int64)
	}
	c.counts[s] += n
	c.total += n
}

// Count returns the count for s, or 0 if s was never added.
func (c *Counter[S]) Count(s S) int64 {
	if c == nil {
		return 0
	}
	return c.counts[s]
}

// Total returns the sum of all counts.
func (c *Counter[S]) Total() int64 {
	if c == nil {
		return 0
	}
	return c.total
}

// Distinct returns the number of distinct symbols with a non-zero count.
func (c *Counter[S]) Distinct() int {
	if c == nil {
		return 0
	}
	return len(c.counts)
}

// All iterates over every symbol and its count in unspecified order.
func (c *Counter[S]) All() iter.Seq2[S, int64] {
	return func(yield func(S, int64) bool) {
		if c == nil {
			return
		}
		for s, n := range c.counts {
			if !yield(s, n) {
				return
			}
		}
	}
}
