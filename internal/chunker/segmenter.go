package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"go.uber.org/zap"

	"semrag/internal/domain"
)

// boundaryPattern ends a sentence at terminal punctuation, optional closing
// quotes or brackets, and the whitespace that follows.
var boundaryPattern = regexp.MustCompile(`[.!?]+["'”’)\]]*\s+`)

// Segmenter splits text into sentences whose spans tile the whole input.
// It prefers the Punkt English model and falls back to punctuation rules.
type Segmenter struct {
	punkt  *sentences.DefaultSentenceTokenizer
	logger *zap.Logger
}

// NewSegmenter loads the Punkt model. A load failure is logged and leaves
// the segmenter on the regex fallback.
func NewSegmenter(logger *zap.Logger) *Segmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Segmenter{logger: logger}
	punkt, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		logger.Warn("punkt sentence model unavailable, using regex splitter", zap.Error(err))
		return s
	}
	s.punkt = punkt
	return s
}

// NewRegexSegmenter returns a segmenter that only uses punctuation rules.
func NewRegexSegmenter() *Segmenter {
	return &Segmenter{logger: zap.NewNop()}
}

// Split returns the sentences of text in order. Whitespace-only text has no
// sentences; text without boundaries is a single sentence.
func (s *Segmenter) Split(text string) []domain.Sentence {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.punkt != nil {
		spans, err := s.punktSpans(text)
		if err == nil {
			return buildSentences(text, spans)
		}
		s.logger.Warn("punkt segmentation failed, using regex splitter", zap.Error(err))
	}
	return buildSentences(text, regexSpans(text))
}

// punktSpans aligns the Punkt output with the source. The model may drop
// or normalize whitespace, so each sentence is located by searching forward.
func (s *Segmenter) punktSpans(text string) (ends []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("punkt tokenizer panic: %v", r)
		}
	}()
	cursor := 0
	for _, sent := range s.punkt.Tokenize(text) {
		trimmed := strings.TrimSpace(sent.Text)
		if trimmed == "" {
			continue
		}
		idx := strings.Index(text[cursor:], trimmed)
		if idx < 0 {
			return nil, fmt.Errorf("sentence %q not found after offset %d", truncate(trimmed, 40), cursor)
		}
		cursor += idx + len(trimmed)
		ends = append(ends, cursor)
	}
	if len(ends) == 0 {
		return nil, fmt.Errorf("no sentences produced")
	}
	return ends, nil
}

// regexSpans returns the end offset of each sentence.
func regexSpans(text string) []int {
	var ends []int
	for _, loc := range boundaryPattern.FindAllStringIndex(text, -1) {
		if loc[1] == len(text) {
			break
		}
		ends = append(ends, loc[1])
	}
	return ends
}

// buildSentences turns sentence end offsets into tiling spans: the first span
// starts at 0, each span ends where the next begins and the last one ends at
// len(text). Whitespace-only pieces are merged into their predecessor.
func buildSentences(text string, ends []int) []domain.Sentence {
	var out []domain.Sentence
	start := 0
	for _, end := range append(ends, len(text)) {
		if end <= start {
			continue
		}
		piece := strings.TrimSpace(text[start:end])
		if piece == "" {
			if len(out) > 0 {
				out[len(out)-1].EndChar = end
				start = end
			}
			continue
		}
		out = append(out, domain.Sentence{Text: piece, StartChar: start, EndChar: end})
		start = end
	}
	if len(out) > 0 {
		out[len(out)-1].EndChar = len(text)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
