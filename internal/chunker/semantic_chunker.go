// Package chunker splits documents into semantically coherent, token-bounded
// chunks: sentences are segmented, grouped into topic units by embedding
// similarity and packed into chunks with overlap.
package chunker

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"semrag/internal/domain"
	"semrag/internal/similarity"
)

// SemanticChunker implements domain.Chunker.
type SemanticChunker struct {
	segmenter *Segmenter
	detector  *TopicShiftDetector
	assembler *Assembler
	tok       domain.Tokenizer
	scorer    *similarity.Scorer
	workers   int
	logger    *zap.Logger
}

// Option configures a SemanticChunker.
type Option func(*SemanticChunker)

// WithLogger sets the chunker logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *SemanticChunker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithWorkers bounds concurrent sentence embeddings.
func WithWorkers(n int) Option {
	return func(c *SemanticChunker) { c.workers = n }
}

// WithSegmenter replaces the default Punkt segmenter.
func WithSegmenter(s *Segmenter) Option {
	return func(c *SemanticChunker) { c.segmenter = s }
}

// NewSemanticChunker creates a chunker that measures similarity with scorer
// and budgets with tok.
func NewSemanticChunker(scorer *similarity.Scorer, tok domain.Tokenizer, opts ...Option) *SemanticChunker {
	c := &SemanticChunker{
		tok:    tok,
		scorer: scorer,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.segmenter == nil {
		c.segmenter = NewSegmenter(c.logger)
	}
	c.detector = NewTopicShiftDetector(scorer, c.workers, c.logger)
	c.assembler = NewAssembler(tok, c.logger)
	return c
}

// TokenizerName reports the tokenizer used for budgets.
func (c *SemanticChunker) TokenizerName() string { return c.tok.Name() }

// Chunk splits text into chunks. Empty text yields no chunks; invalid options
// fail with domain.ErrInvalidConfig.
func (c *SemanticChunker) Chunk(ctx context.Context, text string, opts domain.ChunkOptions) ([]domain.Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sents := c.segmenter.Split(text)
	boundaries := c.detector.Detect(ctx, sents, opts.SimilarityThreshold)
	units := GroupUnits(sents, boundaries)
	chunks := c.assembler.Assemble(text, units, opts)

	c.logger.Debug("document chunked",
		zap.String("document_id", opts.DocumentID),
		zap.Int("sentences", len(sents)),
		zap.Int("units", len(units)),
		zap.Int("chunks", len(chunks)),
		zap.String("tokenizer", c.tok.Name()),
	)
	return chunks, nil
}
