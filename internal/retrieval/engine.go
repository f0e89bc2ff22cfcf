// Package retrieval ranks stored chunks against a free-text query.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"semrag/internal/domain"
	"semrag/internal/similarity"
)

// Engine scores every stored chunk against the query vector.
type Engine struct {
	store       domain.ChunkStore
	scorer      *similarity.Scorer
	defaultTopK int
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultTopK sets the result size used when a caller passes topK <= 0.
func WithDefaultTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.defaultTopK = k
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(store domain.ChunkStore, scorer *similarity.Scorer, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		scorer:      scorer,
		defaultTopK: domain.DefaultTopK,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve returns the topK chunks most similar to query, best first, with
// their texts assembled into a labelled context. Ties keep store order.
// When the query vector is unusable the ranking falls back to lexical overlap.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) (domain.RetrievalResult, error) {
	chunks, err := e.store.All(ctx)
	if err != nil {
		return emptyResult(0), fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if len(chunks) == 0 {
		return emptyResult(0), nil
	}
	if strings.TrimSpace(query) == "" {
		return emptyResult(len(chunks)), nil
	}
	if topK <= 0 {
		topK = e.defaultTopK
	}

	var scores []float64
	qvec, err := e.scorer.Embed(ctx, query)
	switch {
	case err != nil:
		e.logger.Warn("query embedding failed, ranking lexically", zap.Error(err))
		scores = lexicalScores(query, chunks)
	case similarity.IsZero(qvec):
		e.logger.Debug("query has no embedding features, ranking lexically", zap.String("query", query))
		scores = lexicalScores(query, chunks)
	default:
		scores = make([]float64, len(chunks))
		for i, c := range chunks {
			if len(c.Embedding) == 0 {
				continue
			}
			scores[i] = e.scorer.Similarity(qvec, c.Embedding)
		}
	}

	ranked := make([]domain.SearchResult, len(chunks))
	for i, c := range chunks {
		ranked[i] = domain.SearchResult{Chunk: c, Score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if topK > len(ranked) {
		topK = len(ranked)
	}
	ranked = ranked[:topK]

	return domain.RetrievalResult{
		Chunks:      ranked,
		Context:     BuildContext(ranked),
		TotalChunks: len(chunks),
	}, nil
}

// BuildContext labels each chunk text with its 1-based rank and separates
// them with a blank line.
func BuildContext(results []domain.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Chunk %d]\n%s", i+1, r.Chunk.Text)
	}
	return strings.Join(parts, "\n\n")
}

func emptyResult(total int) domain.RetrievalResult {
	return domain.RetrievalResult{Chunks: []domain.SearchResult{}, TotalChunks: total}
}
