package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semrag/internal/domain"
)

const pythagoras = "The Pythagorean theorem states that a² + b² = c². This theorem applies to right triangles. Meanwhile, calculus introduces derivatives."

func assertTiles(t *testing.T, text string, sents []domain.Sentence) {
	t.Helper()
	require.NotEmpty(t, sents)
	assert.Equal(t, 0, sents[0].StartChar)
	assert.Equal(t, len(text), sents[len(sents)-1].EndChar)
	for i, s := range sents {
		assert.Less(t, s.StartChar, s.EndChar)
		assert.Equal(t, strings.TrimSpace(text[s.StartChar:s.EndChar]), s.Text)
		if i > 0 {
			assert.Equal(t, sents[i-1].EndChar, s.StartChar)
		}
	}
}

func TestRegexSegmenterSplitsOnTerminalPunctuation(t *testing.T) {
	sents := NewRegexSegmenter().Split(pythagoras)

	require.Len(t, sents, 3)
	assert.Equal(t, "The Pythagorean theorem states that a² + b² = c².", sents[0].Text)
	assert.Equal(t, "This theorem applies to right triangles.", sents[1].Text)
	assert.Equal(t, "Meanwhile, calculus introduces derivatives.", sents[2].Text)
	assertTiles(t, pythagoras, sents)
}

func TestRegexSegmenterKeepsSurroundingWhitespaceInSpans(t *testing.T) {
	text := "  First one!  Second one?\n\n\"Quoted.\" Last  "
	sents := NewRegexSegmenter().Split(text)

	require.Len(t, sents, 4)
	assert.Equal(t, "First one!", sents[0].Text)
	assert.Equal(t, "Second one?", sents[1].Text)
	assert.Equal(t, "\"Quoted.\"", sents[2].Text)
	assert.Equal(t, "Last", sents[3].Text)
	assertTiles(t, text, sents)
}

func TestSegmenterWithoutBoundariesReturnsWholeText(t *testing.T) {
	text := "no terminal punctuation here"
	sents := NewRegexSegmenter().Split(text)

	require.Len(t, sents, 1)
	assert.Equal(t, domain.Sentence{Text: text, StartChar: 0, EndChar: len(text)}, sents[0])
}

func TestSegmenterWhitespaceOnly(t *testing.T) {
	assert.Empty(t, NewRegexSegmenter().Split(" \n\t "))
	assert.Empty(t, NewRegexSegmenter().Split(""))
}

func TestPunktSegmenterTilesText(t *testing.T) {
	s := NewSegmenter(nil)
	sents := s.Split(pythagoras)

	assertTiles(t, pythagoras, sents)
	assert.True(t, strings.HasPrefix(sents[0].Text, "The Pythagorean theorem"))
	assert.True(t, strings.HasSuffix(sents[len(sents)-1].Text, "derivatives."))
}

func TestBuildSentencesMergesWhitespacePieces(t *testing.T) {
	text := "One. \n Two."
	sents := buildSentences(text, []int{4, 6})

	require.Len(t, sents, 2)
	assert.Equal(t, "One.", sents[0].Text)
	assert.Equal(t, 6, sents[0].EndChar)
	assert.Equal(t, "Two.", sents[1].Text)
	assertTiles(t, text, sents)
}

func TestTruncateIsRuneSafe(t *testing.T) {
	assert.Equal(t, "a²+...", truncate("a²+b²", 3))
	assert.Equal(t, "short", truncate("short", 10))
}
