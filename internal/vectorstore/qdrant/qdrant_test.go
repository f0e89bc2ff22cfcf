package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semrag/internal/domain"
)

// fakeQdrant serves the subset of the Qdrant REST API the store uses. Scroll
// pages are small and ordered by point id, not by insertion.
type fakeQdrant struct {
	t      *testing.T
	mu     sync.Mutex
	exists bool
	size   int
	points map[string]point
	// afterPage runs once the first scroll page has been served.
	afterPage func(f *fakeQdrant)
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *Storage) {
	t.Helper()
	f := &fakeQdrant{t: t, points: make(map[string]point)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "test"})
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(f.t, "secret", r.Header.Get("api-key"))

	switch r.Method + " " + r.URL.Path {
	case "GET /collections/test":
		if !f.exists {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"result": map[string]any{
			"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size}}},
		}})
	case "PUT /collections/test":
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(f.t, "Cosine", body.Vectors.Distance)
		f.exists, f.size = true, body.Vectors.Size
		writeJSON(w, map[string]any{"result": true})
	case "DELETE /collections/test":
		if !f.exists {
			http.NotFound(w, r)
			return
		}
		f.exists = false
		f.points = make(map[string]point)
		writeJSON(w, map[string]any{"result": true})
	case "PUT /collections/test/points":
		if !f.exists {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Points []point `json:"points"`
		}
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		for _, p := range body.Points {
			if len(p.Vector) != f.size {
				http.Error(w, "bad vector", http.StatusBadRequest)
				return
			}
			f.points[p.ID] = p
		}
		writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}})
	case "POST /collections/test/points/scroll":
		if !f.exists {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Offset     *int `json:"offset"`
			WithVector bool `json:"with_vector"`
			Filter     struct {
				Must []struct {
					Key   string `json:"key"`
					Range struct {
						Lte int64 `json:"lte"`
					} `json:"range"`
				} `json:"must"`
			} `json:"filter"`
		}
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		if !assert.Len(f.t, body.Filter.Must, 1) {
			return
		}
		assert.Equal(f.t, "seq", body.Filter.Must[0].Key)
		ids := make([]string, 0, len(f.points))
		for id, p := range f.points {
			if p.Payload.Seq <= body.Filter.Must[0].Range.Lte {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		start := 0
		if body.Offset != nil {
			start = *body.Offset
		}
		end := min(start+2, len(ids))
		page := make([]point, 0, end-start)
		for _, id := range ids[start:end] {
			p := f.points[id]
			if !body.WithVector {
				p.Vector = nil
			}
			page = append(page, p)
		}
		var next any
		if end < len(ids) {
			next = end
		}
		writeJSON(w, map[string]any{"result": map[string]any{"points": page, "next_page_offset": next}})
		if start == 0 && f.afterPage != nil {
			f.afterPage(f)
		}
	case "POST /collections/test/points/delete":
		if !f.exists {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Filter struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value string `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
		}
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		if !assert.Len(f.t, body.Filter.Must, 1) {
			return
		}
		assert.Equal(f.t, "document_name", body.Filter.Must[0].Key)
		for id, p := range f.points {
			if p.Payload.DocumentName == body.Filter.Must[0].Match.Value {
				delete(f.points, id)
			}
		}
		writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func docChunks(doc string, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		sub := i
		chunks[i] = domain.Chunk{
			ChunkID:     doc + "_chunk_" + strconv.Itoa(i),
			DocumentID:  doc,
			Text:        "chunk " + strconv.Itoa(i) + " of " + doc,
			TokenLength: 4,
			StartChar:   i * 10,
			EndChar:     i*10 + 10,
			Metadata:    domain.ChunkMetadata{HasMath: i%2 == 0, UnitIndex: i, SubIndex: &sub},
			Embedding:   []float64{float64(i), 1, 0},
		}
	}
	return chunks
}

func TestAppendCreatesCollectionAndRestoresOrder(t *testing.T) {
	ctx := context.Background()
	f, s := newFakeQdrant(t)

	require.NoError(t, s.Append(ctx, "a.txt", docChunks("a", 3)))
	require.NoError(t, s.Append(ctx, "b.txt", docChunks("b", 2)))
	assert.Equal(t, 3, f.size)

	all, err := s.All(ctx)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, c := range all {
		ids[i] = c.ChunkID
	}
	assert.Equal(t, []string{"a_chunk_0", "a_chunk_1", "a_chunk_2", "b_chunk_0", "b_chunk_1"}, ids)

	got := all[1]
	assert.Equal(t, "a.txt", got.DocumentName)
	assert.Equal(t, "chunk 1 of a", got.Text)
	assert.Equal(t, 10, got.StartChar)
	assert.Equal(t, []float64{1, 1, 0}, got.Embedding)
	require.NotNil(t, got.Metadata.SubIndex)
	assert.Equal(t, 1, *got.Metadata.SubIndex)
	assert.False(t, got.Metadata.HasMath)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStats{TotalChunks: 5, Documents: []string{"a.txt", "b.txt"}}, stats)
}

func TestAppendSameChunkUpserts(t *testing.T) {
	ctx := context.Background()
	_, s := newFakeQdrant(t)

	require.NoError(t, s.Append(ctx, "a.txt", docChunks("a", 2)))
	require.NoError(t, s.Append(ctx, "a.txt", docChunks("a", 2)))

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	_, s := newFakeQdrant(t)

	missing := docChunks("a", 1)
	missing[0].Embedding = nil
	require.ErrorIs(t, s.Append(ctx, "a.txt", missing), domain.ErrMissingEmbedding, "no size for a new collection")
	require.ErrorIs(t, s.Append(ctx, "", docChunks("a", 1)), domain.ErrInvalidInput)

	require.NoError(t, s.Append(ctx, "a.txt", docChunks("a", 1)))
	wide := docChunks("b", 1)
	wide[0].Embedding = []float64{1, 2, 3, 4}
	require.ErrorIs(t, s.Append(ctx, "b.txt", wide), domain.ErrDimensionMismatch)
}

func TestAppendStoresChunksWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	f, s := newFakeQdrant(t)

	chunks := docChunks("d", 3)
	chunks[0].Embedding = nil
	chunks[2].Embedding = nil
	require.NoError(t, s.Append(ctx, "d.txt", chunks))
	assert.Equal(t, 3, f.size)
	assert.Equal(t, []float64{0, 0, 0}, f.points[PointID("d.txt", "d_chunk_0")].Vector)

	later := docChunks("e", 1)
	later[0].Embedding = nil
	require.NoError(t, s.Append(ctx, "e.txt", later), "uses the collection size")

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Nil(t, all[0].Embedding)
	assert.Equal(t, []float64{1, 1, 0}, all[1].Embedding)
	assert.Nil(t, all[2].Embedding)
	assert.Equal(t, "e_chunk_0", all[3].ChunkID)
	assert.Nil(t, all[3].Embedding)
}

func TestAllIgnoresAppendsAfterReadStarted(t *testing.T) {
	ctx := context.Background()
	f, s := newFakeQdrant(t)
	require.NoError(t, s.Append(ctx, "a.txt", docChunks("a", 3)))

	f.afterPage = func(f *fakeQdrant) {
		f.afterPage = nil
		late := f.points[PointID("a.txt", "a_chunk_0")]
		late.ID = "~late"
		late.Payload.ChunkID = "late_chunk_0"
		late.Payload.Seq = time.Now().UnixNano()
		f.points[late.ID] = late
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, c := range all {
		assert.NotEqual(t, "late_chunk_0", c.ChunkID)
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalChunks)
}

func TestSnapshotSeqExcludesInflightAppends(t *testing.T) {
	s := NewStorage(Config{URL: "http://localhost:6333"})

	seq := s.nextSeq()
	assert.Less(t, s.snapshotSeq(), seq)
	s.finish(seq)
	assert.GreaterOrEqual(t, s.snapshotSeq(), seq)
}

func TestAppendUsesExistingCollectionSize(t *testing.T) {
	ctx := context.Background()
	f, s := newFakeQdrant(t)
	f.exists, f.size = true, 2

	require.ErrorIs(t, s.Append(ctx, "a.txt", docChunks("a", 1)), domain.ErrDimensionMismatch)
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	_, s := newFakeQdrant(t)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	require.NoError(t, s.Remove(ctx, "a.txt"))
	require.NoError(t, s.Clear(ctx))

	require.NoError(t, s.Append(ctx, "a.txt", docChunks("a", 2)))
	require.NoError(t, s.Append(ctx, "b.txt", docChunks("b", 1)))
	require.NoError(t, s.Remove(ctx, "a.txt"))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStats{TotalChunks: 1, Documents: []string{"b.txt"}}, stats)

	require.NoError(t, s.Clear(ctx))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks)

	require.NoError(t, s.Append(ctx, "c.txt", docChunks("c", 1)))
}

func TestPointIDIsStable(t *testing.T) {
	assert.Equal(t, PointID("a.txt", "a_chunk_0"), PointID("a.txt", "a_chunk_0"))
	assert.NotEqual(t, PointID("a.txt", "doc_chunk_0"), PointID("b.txt", "doc_chunk_0"))
}
