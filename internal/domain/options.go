package domain

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultOverlapTokens       = 150
	DefaultMaxChunkTokens      = 512
	DefaultMinChunkTokens      = 50
	DefaultSimilarityThreshold = 0.7
	DefaultTopK                = 3
	DefaultDocumentID          = "doc"
)

var (
	// ErrInvalidConfig marks malformed chunking or application configuration.
	// It is the only error class that aborts processing.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidInput marks calls the store or service cannot act on.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmbedderUnavailable marks a missing or unreachable embedding backend.
	ErrEmbedderUnavailable = errors.New("embedder unavailable")
	// ErrStoreUnavailable marks a chunk store backend that could not be read or written.
	ErrStoreUnavailable = errors.New("chunk store unavailable")
	// ErrDimensionMismatch is returned when a vector does not match the store dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrMissingEmbedding is returned by backends that cannot store chunks without vectors.
	ErrMissingEmbedding = errors.New("chunk has no embedding")
)

// ChunkOptions configures one chunking call.
type ChunkOptions struct {
	DocumentID          string  `json:"document_id" yaml:"-"`
	OverlapTokens       int     `json:"overlap_tokens" yaml:"overlap_tokens"`
	MaxChunkTokens      int     `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`
	MinChunkTokens      int     `json:"min_chunk_tokens" yaml:"min_chunk_tokens"`
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
}

// DefaultChunkOptions returns the reference budgets.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		DocumentID:          DefaultDocumentID,
		OverlapTokens:       DefaultOverlapTokens,
		MaxChunkTokens:      DefaultMaxChunkTokens,
		MinChunkTokens:      DefaultMinChunkTokens,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// Validate rejects budgets that cannot produce well-formed chunks.
func (o ChunkOptions) Validate() error {
	if o.MaxChunkTokens <= 0 {
		return fmt.Errorf("%w: max_chunk_tokens must be > 0, got %d", ErrInvalidConfig, o.MaxChunkTokens)
	}
	if o.MinChunkTokens < 0 {
		return fmt.Errorf("%w: min_chunk_tokens must be >= 0, got %d", ErrInvalidConfig, o.MinChunkTokens)
	}
	if o.MinChunkTokens > o.MaxChunkTokens {
		return fmt.Errorf("%w: min_chunk_tokens (%d) exceeds max_chunk_tokens (%d)", ErrInvalidConfig, o.MinChunkTokens, o.MaxChunkTokens)
	}
	if o.OverlapTokens < 0 {
		return fmt.Errorf("%w: overlap_tokens must be >= 0, got %d", ErrInvalidConfig, o.OverlapTokens)
	}
	if math.IsNaN(o.SimilarityThreshold) || o.SimilarityThreshold < -1 || o.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be within [-1, 1], got %v", ErrInvalidConfig, o.SimilarityThreshold)
	}
	return nil
}
