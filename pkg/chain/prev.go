package chain

import "fmt"

// Prev is the conditioning context of a transition: either the start of a
// sequence or a concrete preceding symbol. The zero value is the start
// sentinel, which never compares equal to After(s) for any s.
type Prev[S comparable] struct {
	sym S
	ok  bool
}

// Start returns the start-of-sequence sentinel.
func Start[S comparable]() Prev[S] {
	return Prev[S]{}
}

// After returns the context "previous symbol was s".
func After[S comparable](s S) Prev[S] {
	return Prev[S]{sym: s, ok: true}
}

// IsStart reports whether p is the start sentinel.
func (p Prev[S]) IsStart() bool {
	return !p.ok
}

// Symbol returns the preceding symbol, and false for the start sentinel.
func (p Prev[S]) Symbol() (S, bool) {
	return p.sym, p.ok
}

func (p Prev[S]) String() string {
	if !p.ok {
		return "<start>"
	}
	return fmt.Sprint(p.sym)
}
