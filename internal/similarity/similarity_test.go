package similarity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type slowEmbedder struct{ delay time.Duration }

func (e slowEmbedder) Name() string   { return "slow" }
func (e slowEmbedder) Dimension() int { return 2 }
func (e slowEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	select {
	case <-time.After(e.delay):
		return []float64{1, 0}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Name() string   { return "failing" }
func (failingEmbedder) Dimension() int { return 2 }
func (failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("model offline")
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "identical", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 1},
		{name: "opposite", a: []float64{1, 0}, b: []float64{-1, 0}, want: -1},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "zero magnitude", a: []float64{0, 0}, b: []float64{1, 1}, want: 0},
		{name: "length mismatch", a: []float64{1, 0, 0}, b: []float64{1, 0}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestScorerSimilarityMismatchReturnsZero(t *testing.T) {
	s := NewScorer(failingEmbedder{}, WithLogger(zaptest.NewLogger(t)))
	assert.Equal(t, 0.0, s.Similarity([]float64{1, 2}, []float64{1, 2, 3}))
}

func TestScorerEmbedTimeout(t *testing.T) {
	s := NewScorer(slowEmbedder{delay: time.Second}, WithTimeout(10*time.Millisecond))
	_, err := s.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScorerEmbedWrapsErrors(t *testing.T) {
	s := NewScorer(failingEmbedder{})
	_, err := s.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
}

func TestScorerEmbedSuccess(t *testing.T) {
	s := NewScorer(slowEmbedder{delay: 0})
	v, err := s.Embed(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, v)
}

func TestIsZero(t *testing.T) {
	assert.True(t, IsZero(nil))
	assert.True(t, IsZero([]float64{0, 0}))
	assert.False(t, IsZero([]float64{0, 0.1}))
}
