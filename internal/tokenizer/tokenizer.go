// Package tokenizer provides the token counters used for chunk budgets.
// A single Tokenizer is resolved once and used for every count and overlap
// tail within a chunking run.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"semrag/internal/domain"
)

const (
	TypeTiktoken = "tiktoken"
	TypeApprox   = "approx"
	TypeWords    = "words"

	// CharsPerToken is the ratio used by the character approximation.
	CharsPerToken = 4
)

// New resolves a tokenizer by type. Unknown types and an unavailable tiktoken
// encoding degrade to the character approximation.
func New(kind, encoding string, logger *zap.Logger) domain.Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch kind {
	case TypeApprox:
		return Approx{}
	case TypeWords:
		return Words{}
	case TypeTiktoken, "":
		t, err := NewTiktoken(encoding)
		if err != nil {
			logger.Warn("tiktoken unavailable, using character approximation",
				zap.String("encoding", encoding),
				zap.Error(err),
			)
			return Approx{}
		}
		return t
	default:
		logger.Warn("unknown tokenizer, using character approximation", zap.String("type", kind))
		return Approx{}
	}
}

// Approx counts one token per CharsPerToken runes.
type Approx struct{}

func (Approx) Name() string { return TypeApprox }

func (Approx) Count(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

func (Approx) Tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	want := n * CharsPerToken
	if utf8.RuneCountInString(text) <= want {
		return strings.TrimLeftFunc(text, unicode.IsSpace)
	}
	i := len(text)
	for r := 0; r < want; r++ {
		_, size := utf8.DecodeLastRuneInString(text[:i])
		i -= size
	}
	return fromWordStart(text, i)
}

// fromWordStart returns text[i:] moved forward past a partial leading word.
// It is empty when no whole word starts at or after i.
func fromWordStart(text string, i int) string {
	if i > 0 {
		if prev, _ := utf8.DecodeLastRuneInString(text[:i]); !unicode.IsSpace(prev) {
			j := strings.IndexFunc(text[i:], unicode.IsSpace)
			if j < 0 {
				return ""
			}
			i += j
		}
	}
	return strings.TrimLeftFunc(text[i:], unicode.IsSpace)
}

// Words counts whitespace-separated words.
type Words struct{}

func (Words) Name() string { return TypeWords }

func (Words) Count(text string) int {
	return len(strings.Fields(text))
}

func (Words) Tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	end := len(text)
	seen := 0
	inWord := false
	for i := len(text); i > 0; {
		r, size := utf8.DecodeLastRuneInString(text[:i])
		if unicode.IsSpace(r) {
			if inWord {
				seen++
				if seen == n {
					return strings.TrimRightFunc(text[i:end], unicode.IsSpace)
				}
				inWord = false
			}
		} else {
			inWord = true
		}
		i -= size
	}
	return strings.TrimSpace(text)
}
