package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"semrag/internal/domain"
	"semrag/internal/similarity"
)

// Retriever ranks stored chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) (domain.RetrievalResult, error)
}

// Summarizer condenses a document into its key sentences.
type Summarizer interface {
	Summarize(text string, maxSentences int) string
}

var _ domain.RAGService = (*RAGServiceImpl)(nil)

type RAGServiceImpl struct {
	chunker          domain.Chunker
	scorer           *similarity.Scorer
	store            domain.ChunkStore
	engine           Retriever
	defaults         domain.ChunkOptions
	summarizer       Summarizer
	summarySentences int
	logger           *zap.Logger
	now              func() time.Time
}

// Option configures a RAGServiceImpl.
type Option func(*RAGServiceImpl)

// WithSummarizer attaches a summary of at most maxSentences sentences to
// every ingested document.
func WithSummarizer(sum Summarizer, maxSentences int) Option {
	return func(s *RAGServiceImpl) {
		s.summarizer = sum
		s.summarySentences = maxSentences
	}
}

func NewRAGService(chunker domain.Chunker, scorer *similarity.Scorer, store domain.ChunkStore, engine Retriever, defaults domain.ChunkOptions, logger *zap.Logger, opts ...Option) *RAGServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RAGServiceImpl{
		chunker:  chunker,
		scorer:   scorer,
		store:    store,
		engine:   engine,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChunkDocument splits text into chunks. Empty text yields zero chunks.
func (s *RAGServiceImpl) ChunkDocument(ctx context.Context, text string, opts domain.ChunkOptions) (domain.ChunkResult, error) {
	if opts.DocumentID == "" {
		opts.DocumentID = domain.DefaultDocumentID
	}
	chunks, err := s.chunker.Chunk(ctx, text, opts)
	if err != nil {
		return domain.ChunkResult{}, err
	}
	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	return domain.ChunkResult{DocumentID: opts.DocumentID, Chunks: chunks}, nil
}

// StoreChunks embeds chunks that carry no embedding yet and appends them under
// documentName. A chunk that fails to embed is stored without a vector.
func (s *RAGServiceImpl) StoreChunks(ctx context.Context, chunks []domain.Chunk, documentName string) error {
	if documentName == "" {
		return fmt.Errorf("%w: document name is required", domain.ErrInvalidInput)
	}
	uploaded := s.now().UTC()
	prepared := make([]domain.Chunk, len(chunks))
	failed := 0
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			vec, err := s.scorer.Embed(ctx, c.Text)
			if err != nil {
				failed++
				s.logger.Warn("chunk embedding failed, storing without vector",
					zap.String("chunk_id", c.ChunkID),
					zap.Error(err),
				)
			} else {
				c.Embedding = vec
			}
		}
		c.DocumentName = documentName
		c.UploadedAt = uploaded
		prepared[i] = c
	}
	if err := s.store.Append(ctx, documentName, prepared); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrDimensionMismatch) || errors.Is(err, domain.ErrMissingEmbedding) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	s.logger.Info("chunks stored",
		zap.String("document", documentName),
		zap.Int("chunks", len(prepared)),
		zap.Int("embedding_failures", failed),
	)
	return nil
}

func (s *RAGServiceImpl) RetrieveChunks(ctx context.Context, query string, topK int) (domain.RetrievalResult, error) {
	return s.engine.Retrieve(ctx, query, topK)
}

func (s *RAGServiceImpl) GetStats(ctx context.Context) (domain.StoreStats, error) {
	return s.store.Stats(ctx)
}

func (s *RAGServiceImpl) ClearStore(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("chunk store cleared")
	return nil
}

func (s *RAGServiceImpl) RemoveDocument(ctx context.Context, documentName string) error {
	if documentName == "" {
		return fmt.Errorf("%w: document name is required", domain.ErrInvalidInput)
	}
	return s.store.Remove(ctx, documentName)
}

// IngestFiles chunks and stores every .txt file matched by paths. Patterns
// are expanded with filepath.Glob; a path that matches nothing is used as is.
func (s *RAGServiceImpl) IngestFiles(ctx context.Context, paths []string) ([]domain.IngestedDocument, error) {
	documents, err := loadDocuments(paths)
	if err != nil {
		return nil, err
	}
	if len(documents) == 0 {
		return nil, fmt.Errorf("%w: no .txt documents found", domain.ErrInvalidInput)
	}

	out := make([]domain.IngestedDocument, 0, len(documents))
	for _, d := range documents {
		opts := s.defaults
		opts.DocumentID = d.ID
		res, err := s.ChunkDocument(ctx, d.Content, opts)
		if err != nil {
			return out, fmt.Errorf("chunk %s: %w", d.Path, err)
		}
		if err := s.StoreChunks(ctx, res.Chunks, d.Name); err != nil {
			return out, fmt.Errorf("store %s: %w", d.Path, err)
		}
		doc := domain.IngestedDocument{Name: d.Name, Path: d.Path, Chunks: len(res.Chunks)}
		if s.summarizer != nil {
			doc.Summary = s.summarizer.Summarize(d.Content, s.summarySentences)
		}
		out = append(out, doc)
	}
	return out, nil
}

func loadDocuments(paths []string) ([]domain.Document, error) {
	var documents []domain.Document
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !strings.HasSuffix(strings.ToLower(m), ".txt") {
				continue
			}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, err
			}
			documents = append(documents, domain.Document{
				ID:      hashString(m),
				Name:    filepath.Base(m),
				Path:    m,
				Content: string(data),
			})
		}
	}
	return documents, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
