package tokenizer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// Tiktoken counts BPE tokens with a tiktoken encoding.
type Tiktoken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTiktoken loads the named encoding. Loading may require fetching the BPE
// ranks, so callers should treat an error as "tokenizer unavailable".
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %s: %w", encoding, err)
	}
	return &Tiktoken{encoding: enc, name: encoding}, nil
}

func (t *Tiktoken) Name() string { return TypeTiktoken + ":" + t.name }

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// Tail decodes the last n tokens and maps them back onto a suffix of text,
// moving forward to the next rune boundary when a token splits a character.
func (t *Tiktoken) Tail(text string, n int) string {
	if n <= 0 || text == "" {
		return ""
	}
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= n {
		return strings.TrimLeftFunc(text, unicode.IsSpace)
	}
	size := len(t.encoding.Decode(tokens[len(tokens)-n:]))
	start := len(text) - size
	if start < 0 {
		start = 0
	}
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	return fromWordStart(text, start)
}
