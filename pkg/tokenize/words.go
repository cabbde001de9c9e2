package tokenize

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// WordsTokenizer splits text into words and punctuation with regular
// expressions, and ends a sequence at sentence-ending punctuation.
type WordsTokenizer struct {
	wordRegex *regexp.Regexp
	eosRegex  *regexp.Regexp
	lowercase bool
}

// Option configures a WordsTokenizer.
type Option func(*WordsTokenizer)

// WithWordRegex sets the regex used to find tokens in a line.
// Default: `[\w']+|[.,!?;]`
func WithWordRegex(wordRegex string) Option {
	return func(t *WordsTokenizer) {
		t.wordRegex = regexp.MustCompile(wordRegex)
	}
}

// WithEOSRegex sets the regex deciding whether a token ends a sequence.
// Default: `^[.!?]$`
func WithEOSRegex(eosRegex string) Option {
	return func(t *WordsTokenizer) {
		t.eosRegex = regexp.MustCompile(eosRegex)
	}
}

// WithLowercase folds every token to lower case.
// Default: false
func WithLowercase(lower bool) Option {
	return func(t *WordsTokenizer) {
		t.lowercase = lower
	}
}

// NewWords creates a word tokenizer with default settings, which can be
// overridden with Option functions.
func NewWords(opts ...Option) *WordsTokenizer {
	t := &WordsTokenizer{
		// Runs of word characters, or single punctuation marks.
		wordRegex: regexp.MustCompile(`[\w']+|[.,!?;]`),
		eosRegex:  regexp.MustCompile(`^[.!?]$`),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewStream returns the stream processor.
func (t *WordsTokenizer) NewStream(r io.Reader) Stream {
	return &wordStream{
		tok:     t,
		scanner: bufio.NewScanner(r),
	}
}

type wordStream struct {
	tok     *WordsTokenizer
	scanner *bufio.Scanner
	buffer  []string
}

// Next returns the next word. Sentence punctuation is returned as an EOS
// token that keeps its text.
func (s *wordStream) Next() (*Token, error) {
	for len(s.buffer) == 0 {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		s.buffer = s.tok.wordRegex.FindAllString(s.scanner.Text(), -1)
	}

	word := s.buffer[0]
	s.buffer = s.buffer[1:]
	if s.tok.lowercase {
		word = strings.ToLower(word)
	}
	return &Token{Text: word, EOS: s.tok.eosRegex.MatchString(word)}, nil
}
