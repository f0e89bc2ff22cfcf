// Package memory is the volatile reference chunk store.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"semrag/internal/domain"
)

// Storage keeps chunks in insertion order. Writers build a new snapshot and
// swap it in under the lock, so a reader always sees whole documents.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	chunks    []domain.Chunk
}

func NewStorage() *Storage { return &Storage{} }

// Append adds the chunks of one document. Every non-empty embedding must
// match the dimension of the first one stored.
func (s *Storage) Append(_ context.Context, documentName string, chunks []domain.Chunk) error {
	if documentName == "" {
		return fmt.Errorf("%w: document name is required", domain.ErrInvalidInput)
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dimension := s.dimension
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		if dimension == 0 {
			dimension = len(c.Embedding)
		}
		if len(c.Embedding) != dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, store has %d",
				domain.ErrDimensionMismatch, c.ChunkID, len(c.Embedding), dimension)
		}
	}

	next := make([]domain.Chunk, 0, len(s.chunks)+len(chunks))
	next = append(next, s.chunks...)
	for _, c := range chunks {
		c.DocumentName = documentName
		c.Embedding = slices.Clone(c.Embedding)
		next = append(next, c)
	}
	s.chunks = next
	s.dimension = dimension
	return nil
}

// All returns the current snapshot. It must not be modified.
func (s *Storage) All(context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks[:len(s.chunks):len(s.chunks)], nil
}

// Remove drops every chunk of the named document.
func (s *Storage) Remove(_ context.Context, documentName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]domain.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if c.DocumentName != documentName {
			next = append(next, c)
		}
	}
	s.chunks = next
	if len(next) == 0 {
		s.dimension = 0
	}
	return nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.dimension = 0
	return nil
}

// Stats lists document names in the order they were first stored.
func (s *Storage) Stats(context.Context) (domain.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.StoreStats{TotalChunks: len(s.chunks), Documents: []string{}}
	seen := make(map[string]struct{})
	for _, c := range s.chunks {
		if _, ok := seen[c.DocumentName]; ok {
			continue
		}
		seen[c.DocumentName] = struct{}{}
		stats.Documents = append(stats.Documents, c.DocumentName)
	}
	return stats, nil
}
