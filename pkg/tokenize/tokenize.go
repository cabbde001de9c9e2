package tokenize

import (
	"errors"
	"fmt"
	"io"
)

// Token is a single symbol read from a stream. EOS marks the end of a
// sequence; an EOS token may or may not carry text of its own.
type Token struct {
	Text string
	EOS  bool
}

// Tokenizer creates streams that split an io.Reader into tokens.
type Tokenizer interface {
	// NewStream returns a stateful Stream reading from r.
	NewStream(r io.Reader) Stream
}

// Stream returns one token at a time.
type Stream interface {
	// Next returns the next token. It returns io.EOF as the error once the
	// underlying reader is exhausted.
	Next() (*Token, error)
}

// Kinds accepted by New.
const (
	KindRunes = "runes"
	KindWords = "words"
)

// New returns the tokenizer registered under kind. Only the lowercase option
// is applied, since it is the one setting both tokenizers share.
func New(kind string, lowercase bool) (Tokenizer, error) {
	switch kind {
	case KindRunes, "":
		return NewRunes(WithRuneLowercase(lowercase)), nil
	case KindWords:
		return NewWords(WithLowercase(lowercase)), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", kind)
	}
}

// Sequences reads r to the end and returns the symbol sequences it contains.
// Empty sequences are dropped. A text-carrying EOS token is kept as the last
// symbol of its sequence.
func Sequences(tok Tokenizer, r io.Reader) ([][]string, error) {
	stream := tok.NewStream(r)
	var out [][]string
	var current []string
	for {
		token, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("tokenizer error: %w", err)
		}
		if token.Text != "" {
			current = append(current, token.Text)
		}
		if token.EOS && len(current) > 0 {
			out = append(out, current)
			current = nil
		}
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out, nil
}

// Symbols reads r to the end and returns every symbol as one flat sequence,
// ignoring sequence boundaries. It is meant for classifying a whole input.
func Symbols(tok Tokenizer, r io.Reader) ([]string, error) {
	seqs, err := Sequences(tok, r)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, seq := range seqs {
		out = append(out, seq...)
	}
	return out, nil
}
