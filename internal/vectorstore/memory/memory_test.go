package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semrag/internal/domain"
)

func chunk(id string, vec ...float64) domain.Chunk {
	return domain.Chunk{ChunkID: id, Text: "text of " + id, Embedding: vec}
}

func TestAppendKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	require.NoError(t, s.Append(ctx, "a.txt", []domain.Chunk{chunk("a0", 1, 0), chunk("a1", 0, 1)}))
	require.NoError(t, s.Append(ctx, "b.txt", []domain.Chunk{chunk("b0", 1, 1)}))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a0", "a1", "b0"}, []string{all[0].ChunkID, all[1].ChunkID, all[2].ChunkID})
	assert.Equal(t, "b.txt", all[2].DocumentName)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStats{TotalChunks: 3, Documents: []string{"a.txt", "b.txt"}}, stats)
}

func TestAppendRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Append(ctx, "a.txt", []domain.Chunk{chunk("a0", 1, 0)}))

	err := s.Append(ctx, "b.txt", []domain.Chunk{chunk("b0", 1, 0, 0)})
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)

	stats, _ := s.Stats(ctx)
	assert.Equal(t, 1, stats.TotalChunks)
}

func TestAppendAcceptsMissingEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	require.NoError(t, s.Append(ctx, "a.txt", []domain.Chunk{chunk("a0"), chunk("a1", 1, 0)}))
	all, _ := s.All(ctx)
	assert.Nil(t, all[0].Embedding)
}

func TestAppendValidatesInput(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	require.ErrorIs(t, s.Append(ctx, "", []domain.Chunk{chunk("x")}), domain.ErrInvalidInput)
	require.NoError(t, s.Append(ctx, "empty.txt", nil))

	stats, _ := s.Stats(ctx)
	assert.Equal(t, 0, stats.TotalChunks)
	assert.Empty(t, stats.Documents)
}

func TestAppendCopiesEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	vec := []float64{1, 2}
	require.NoError(t, s.Append(ctx, "a.txt", []domain.Chunk{{ChunkID: "a0", Embedding: vec}}))

	vec[0] = 99
	all, _ := s.All(ctx)
	assert.Equal(t, []float64{1, 2}, all[0].Embedding)
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Append(ctx, "a.txt", []domain.Chunk{chunk("a0")}))

	snapshot, _ := s.All(ctx)
	require.NoError(t, s.Append(ctx, "b.txt", []domain.Chunk{chunk("b0")}))
	require.NoError(t, s.Clear(ctx))

	assert.Len(t, snapshot, 1)
	assert.Equal(t, "a0", snapshot[0].ChunkID)
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Append(ctx, "a.txt", []domain.Chunk{chunk("a0", 1, 0)}))
	require.NoError(t, s.Append(ctx, "b.txt", []domain.Chunk{chunk("b0", 0, 1)}))

	require.NoError(t, s.Remove(ctx, "a.txt"))
	stats, _ := s.Stats(ctx)
	assert.Equal(t, domain.StoreStats{TotalChunks: 1, Documents: []string{"b.txt"}}, stats)

	require.NoError(t, s.Clear(ctx))
	all, _ := s.All(ctx)
	assert.Empty(t, all)

	// dimension resets with the store
	require.NoError(t, s.Append(ctx, "c.txt", []domain.Chunk{chunk("c0", 1, 0, 0)}))
}

func TestConcurrentAppendsAreAtomicPerDocument(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunks := make([]domain.Chunk, 10)
			for i := range chunks {
				chunks[i] = chunk(name)
			}
			assert.NoError(t, s.Append(ctx, name, chunks))
		}()
	}
	wg.Wait()

	all, _ := s.All(ctx)
	require.Len(t, all, 40)
	for i := 0; i < len(all); i += 10 {
		for j := i; j < i+10; j++ {
			assert.Equal(t, all[i].DocumentName, all[j].DocumentName)
		}
	}
}
