package tokenize

import (
	"bufio"
	"io"
	"strings"
	"unicode"
)

// RunesTokenizer emits one token per rune. Each line of input is one
// sequence.
type RunesTokenizer struct {
	lowercase bool
	skipSpace bool
}

// RuneOption configures a RunesTokenizer.
type RuneOption func(*RunesTokenizer)

// WithRuneLowercase folds every rune to lower case.
// Default: false
func WithRuneLowercase(lower bool) RuneOption {
	return func(t *RunesTokenizer) {
		t.lowercase = lower
	}
}

// WithSkipSpace drops whitespace runes instead of emitting them.
// Default: false
func WithSkipSpace(skip bool) RuneOption {
	return func(t *RunesTokenizer) {
		t.skipSpace = skip
	}
}

// NewRunes creates a rune tokenizer.
func NewRunes(opts ...RuneOption) *RunesTokenizer {
	t := &RunesTokenizer{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewStream returns the stream processor.
func (t *RunesTokenizer) NewStream(r io.Reader) Stream {
	return &runeStream{
		tok:     t,
		scanner: bufio.NewScanner(r),
	}
}

type runeStream struct {
	tok     *RunesTokenizer
	scanner *bufio.Scanner
	buffer  []rune
	pending bool // an EOS token is owed for the current line
}

func (s *runeStream) Next() (*Token, error) {
	for len(s.buffer) == 0 {
		if s.pending {
			s.pending = false
			return &Token{EOS: true}, nil
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		line := s.scanner.Text()
		if s.tok.lowercase {
			line = strings.ToLower(line)
		}
		s.buffer = s.buffer[:0]
		for _, r := range line {
			if s.tok.skipSpace && unicode.IsSpace(r) {
				continue
			}
			s.buffer = append(s.buffer, r)
		}
		s.pending = true
	}

	r := s.buffer[0]
	s.buffer = s.buffer[1:]
	return &Token{Text: string(r)}, nil
}
