// Package similarity turns text into vectors through a configured embedder
// and compares vectors with cosine similarity.
package similarity

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"semrag/internal/domain"
)

// DefaultEmbedTimeout bounds a single embedding call.
const DefaultEmbedTimeout = 10 * time.Second

// Scorer embeds text with a per-call timeout and scores vector pairs.
type Scorer struct {
	embedder domain.Embedder
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithTimeout overrides the per-call embedding timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *Scorer) { s.timeout = d }
}

// WithLogger sets the logger used for degraded comparisons.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScorer creates a scorer over the given embedder.
func NewScorer(embedder domain.Embedder, opts ...Option) *Scorer {
	s := &Scorer{
		embedder: embedder,
		timeout:  DefaultEmbedTimeout,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EmbedderName reports the underlying embedder.
func (s *Scorer) EmbedderName() string {
	if s.embedder == nil {
		return "none"
	}
	return s.embedder.Name()
}

// Embed returns the vector for text. The call is abandoned when the timeout
// elapses or ctx is done.
func (s *Scorer) Embed(ctx context.Context, text string) ([]float64, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbedderUnavailable
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	type result struct {
		vec []float64
		err error
	}
	done := make(chan result, 1)
	go func() {
		vec, err := s.embedder.Embed(ctx, text)
		done <- result{vec: vec, err: err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("embed with %s: %w", s.EmbedderName(), r.err)
		}
		return r.vec, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("embed with %s: %w", s.EmbedderName(), ctx.Err())
	}
}

// Similarity is Cosine with a warning when the vectors cannot be compared
// because their lengths differ.
func (s *Scorer) Similarity(a, b []float64) float64 {
	if len(a) != len(b) && len(a) > 0 && len(b) > 0 {
		s.logger.Warn("similarity on vectors of different length",
			zap.Int("len_a", len(a)),
			zap.Int("len_b", len(b)),
		)
		return 0
	}
	return Cosine(a, b)
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. It returns 0
// for empty, zero-magnitude or differently sized vectors.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0
	}
	return math.Max(-1, math.Min(1, sim))
}

// IsZero reports whether v carries no direction.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
