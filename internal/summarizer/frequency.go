// Package summarizer picks the key sentences of a document for ingest previews.
package summarizer

import (
	"math"
	"regexp"
	"slices"
	"strings"

	"semrag/internal/domain"
)

// DefaultMaxSentences is used when a caller asks for zero sentences.
const DefaultMaxSentences = 2

// Splitter yields the sentence spans of a document.
type Splitter interface {
	Split(text string) []domain.Sentence
}

// FrequencySummarizer ranks sentences by the document frequency of their
// content words, normalized by sentence length.
type FrequencySummarizer struct {
	splitter     Splitter
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewFrequencySummarizer(splitter Splitter) *FrequencySummarizer {
	return &FrequencySummarizer{
		splitter:     splitter,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    stopwords(),
	}
}

// Summarize joins the key sentences of text in document order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) string {
	picked := s.KeySentences(s.splitter.Split(text), maxSentences)
	parts := make([]string, len(picked))
	for i, sent := range picked {
		parts[i] = sent.Text
	}
	return strings.Join(parts, " ")
}

// KeySentences returns at most n of sents, highest scoring first on ties by
// position, then restored to document order.
func (s *FrequencySummarizer) KeySentences(sents []domain.Sentence, n int) []domain.Sentence {
	if n <= 0 {
		n = DefaultMaxSentences
	}
	if len(sents) <= n {
		return slices.Clone(sents)
	}

	terms := make([][]string, len(sents))
	freq := map[string]float64{}
	maxF := 0.0
	for i, sent := range sents {
		terms[i] = s.terms(sent.Text)
		for _, t := range terms[i] {
			freq[t]++
			maxF = max(maxF, freq[t])
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(sents))
	for i, ts := range terms {
		score := 0.0
		for _, t := range ts {
			score += freq[t] / maxF
		}
		if len(ts) > 0 {
			score /= math.Sqrt(float64(len(ts)))
		}
		ranked[i] = scored{idx: i, score: score}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	idx := make([]int, n)
	for i := range idx {
		idx[i] = ranked[i].idx
	}
	slices.Sort(idx)
	out := make([]domain.Sentence, n)
	for i, j := range idx {
		out[i] = sents[j]
	}
	return out
}

func (s *FrequencySummarizer) terms(text string) []string {
	raw := s.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, skip := s.stopwords[t]; !skip {
			out = append(out, t)
		}
	}
	return out
}

func stopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "for", "to", "of", "in", "on", "at", "by", "with", "as",
		"is", "are", "was", "were", "be", "been", "it", "this", "that", "these", "those", "from", "into", "about",
		"so", "such", "than", "can", "will", "just", "also", "its", "their", "which", "while",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
