package domain

import (
	"context"
	"time"
)

// Document represents a single text file loaded into the system.
type Document struct {
	ID      string
	Name    string
	Path    string
	Content string
}

// Sentence is a span of the source document. StartChar and EndChar are byte
// offsets; consecutive sentences tile the document without gaps. Text is the
// trimmed content of the span.
type Sentence struct {
	Text      string
	StartChar int
	EndChar   int
}

// SemanticUnit is a maximal run of sentences with no topic shift between them.
type SemanticUnit struct {
	Sentences []Sentence
	UnitIndex int
	HasMath   bool
}

// ChunkMetadata is the fixed-shape metadata attached to every chunk.
type ChunkMetadata struct {
	HasMath   bool              `json:"has_math"`
	UnitIndex int               `json:"unit_index"`
	SubIndex  *int              `json:"sub_index"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Chunk is a token-bounded passage of a document, the unit of retrieval.
// StartChar and EndChar describe the chunk's own content only; Text may also
// carry an overlap prefix copied from the previous chunk.
type Chunk struct {
	ChunkID      string        `json:"chunk_id"`
	DocumentID   string        `json:"document_id"`
	Text         string        `json:"text"`
	TokenLength  int           `json:"token_length"`
	StartChar    int           `json:"start_char"`
	EndChar      int           `json:"end_char"`
	Metadata     ChunkMetadata `json:"metadata"`
	Embedding    []float64     `json:"embedding,omitempty"`
	DocumentName string        `json:"document_name,omitempty"`
	UploadedAt   time.Time     `json:"uploaded_at"`
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult is the ranked answer to a query. TotalChunks is the size of
// the store at query time, not the number of returned chunks.
type RetrievalResult struct {
	Chunks      []SearchResult `json:"chunks"`
	Context     string         `json:"context"`
	TotalChunks int            `json:"total_chunks"`
}

// StoreStats summarizes the chunk store contents.
type StoreStats struct {
	TotalChunks int      `json:"total_chunks"`
	Documents   []string `json:"documents"`
}

// Embedder converts free text into a fixed-length numeric vector.
// Implementations must be deterministic for a given configuration.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Tokenizer counts tokens and extracts token-bounded suffixes of text.
type Tokenizer interface {
	Name() string
	Count(text string) int
	// Tail returns the suffix of text holding at most n tokens.
	Tail(text string, n int) string
}

// Chunker splits document text into chunks.
type Chunker interface {
	Chunk(ctx context.Context, text string, opts ChunkOptions) ([]Chunk, error)
}

// ChunkStore keeps chunks grouped by document. Chunks are immutable once
// appended; a document's chunks become visible to readers all at once.
type ChunkStore interface {
	Append(ctx context.Context, documentName string, chunks []Chunk) error
	All(ctx context.Context) ([]Chunk, error)
	Remove(ctx context.Context, documentName string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (StoreStats, error)
}

// ChunkResult is the answer to a chunking request.
type ChunkResult struct {
	DocumentID string  `json:"document_id"`
	Chunks     []Chunk `json:"chunks"`
}

// IngestedDocument reports the outcome of ingesting one file.
type IngestedDocument struct {
	Name    string
	Path    string
	Chunks  int
	Summary string
}

// RAGService defines the operations exposed by the application core.
type RAGService interface {
	ChunkDocument(ctx context.Context, text string, opts ChunkOptions) (ChunkResult, error)
	StoreChunks(ctx context.Context, chunks []Chunk, documentName string) error
	RetrieveChunks(ctx context.Context, query string, topK int) (RetrievalResult, error)
	GetStats(ctx context.Context) (StoreStats, error)
	ClearStore(ctx context.Context) error
	RemoveDocument(ctx context.Context, documentName string) error
	IngestFiles(ctx context.Context, paths []string) ([]IngestedDocument, error)
}
