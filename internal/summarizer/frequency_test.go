package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"semrag/internal/chunker"
)

const lecture = "Triangles have three sides. " +
	"The weather was pleasant. " +
	"Right triangles satisfy the Pythagorean theorem about sides. " +
	"Lunch was served at noon."

func TestSummarizeKeepsDocumentOrder(t *testing.T) {
	s := NewFrequencySummarizer(chunker.NewRegexSegmenter())

	got := s.Summarize(lecture, 2)
	assert.Equal(t, "Triangles have three sides. Right triangles satisfy the Pythagorean theorem about sides.", got)
}

func TestKeySentencesShortInput(t *testing.T) {
	seg := chunker.NewRegexSegmenter()
	s := NewFrequencySummarizer(seg)

	sents := seg.Split("Only one sentence here.")
	assert.Equal(t, sents, s.KeySentences(sents, 0))
	assert.Empty(t, s.KeySentences(nil, 3))
	assert.Equal(t, "", s.Summarize("   ", 2))
}

func TestKeySentencesTiesFavorEarlierSentences(t *testing.T) {
	seg := chunker.NewRegexSegmenter()
	s := NewFrequencySummarizer(seg)

	sents := seg.Split("Alpha beta. Gamma delta. Epsilon zeta.")
	picked := s.KeySentences(sents, 1)
	if assert.Len(t, picked, 1) {
		assert.Equal(t, "Alpha beta.", picked[0].Text)
	}
}
