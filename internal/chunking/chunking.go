// Package chunking splits company content into token-bounded chunks.
package chunking

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the tiktoken encoding used for chunk sizing. It matches the
// OpenAI embedding models.
const Encoding = "cl100k_base"

// ErrInvalidWindow is returned when the overlap does not fit inside a chunk.
var ErrInvalidWindow = errors.New("chunk overlap must be smaller than max tokens")

// Tokenizer converts between text and token IDs.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenTokenizer returns a Tokenizer backed by the cl100k_base encoding.
func NewTiktokenTokenizer() (Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("get tiktoken encoding: %w", err)
	}
	return &tiktokenTokenizer{encoding: enc}, nil
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return t.encoding.Decode(tokens)
}

// Splitter cuts text into windows of at most maxTokens tokens. Consecutive
// windows share overlap tokens.
type Splitter struct {
	tokenizer Tokenizer
	maxTokens int
	overlap   int
}

// NewSplitter creates a Splitter. maxTokens must be positive and overlap must
// be in [0, maxTokens).
func NewSplitter(tokenizer Tokenizer, maxTokens, overlap int) (*Splitter, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("%w: overlap=%d max_tokens=%d", ErrInvalidWindow, overlap, maxTokens)
	}
	return &Splitter{tokenizer: tokenizer, maxTokens: maxTokens, overlap: overlap}, nil
}

// Split returns the chunks of text in order. Whitespace-only input and
// windows that decode to whitespace are dropped. Windows end on rune
// boundaries, so a multi-token rune is never cut in two.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := s.tokenizer.Encode(text)
	var chunks []string
	for start := 0; start < len(tokens); {
		end := s.runeEnd(tokens, start, min(start+s.maxTokens, len(tokens)))
		chunk := s.tokenizer.Decode(tokens[start:end])
		if !utf8.ValidString(chunk) {
			chunk = strings.ToValidUTF8(chunk, "")
		}
		if chunk = strings.TrimSpace(chunk); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(tokens) {
			break
		}
		start = s.runeStart(tokens, max(end-s.overlap, start+1), end)
	}
	return chunks
}

// runeEnd moves end back until tokens[start:end] decodes to valid UTF-8.
// When no shorter window is valid, end is returned unchanged.
func (s *Splitter) runeEnd(tokens []int, start, end int) int {
	for e := end; e > start; e-- {
		if utf8.ValidString(s.tokenizer.Decode(tokens[start:e])) {
			return e
		}
	}
	return end
}

// runeStart moves start forward until tokens[start:end] decodes to valid
// UTF-8, so the overlap does not begin inside a rune.
func (s *Splitter) runeStart(tokens []int, start, end int) int {
	for b := start; b < end; b++ {
		if utf8.ValidString(s.tokenizer.Decode(tokens[b:end])) {
			return b
		}
	}
	return end
}
