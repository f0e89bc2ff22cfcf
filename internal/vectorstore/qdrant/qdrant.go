// Package qdrant stores chunks as points in a Qdrant collection over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"semrag/internal/domain"
)

const (
	DefaultCollection = "semrag_chunks"
	scrollPageSize    = 256
)

// errNotFound is returned by do for 404 responses.
var errNotFound = errors.New("qdrant: not found")

// Storage is a minimal REST client to Qdrant implementing domain.ChunkStore.
// It assumes cosine distance and creates the collection on first append.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.Mutex
	dimension int
	lastSeq   int64
	inflight  map[int64]struct{}
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
		inflight:   make(map[int64]struct{}),
	}
}

// payload is the chunk as stored alongside its vector. Seq and Position
// restore insertion order when scrolling.
type payload struct {
	ChunkID      string            `json:"chunk_id"`
	DocumentID   string            `json:"document_id"`
	DocumentName string            `json:"document_name"`
	Text         string            `json:"text"`
	TokenLength  int               `json:"token_length"`
	StartChar    int               `json:"start_char"`
	EndChar      int               `json:"end_char"`
	HasMath      bool              `json:"has_math"`
	UnitIndex    int               `json:"unit_index"`
	SubIndex     *int              `json:"sub_index"`
	Extra        map[string]string `json:"extra,omitempty"`
	UploadedAt   time.Time         `json:"uploaded_at"`
	Seq          int64             `json:"seq"`
	Position     int               `json:"position"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float64 `json:"vector,omitempty"`
	Payload payload   `json:"payload"`
}

// PointID derives a stable point id from the owning document and chunk id.
func PointID(documentName, chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("semrag:"+documentName+"/"+chunkID)).String()
}

// Append upserts the chunks of one document. Qdrant points need a vector, so
// a chunk without an embedding is stored with a zero vector, which scores 0
// and reads back as no embedding.
func (s *Storage) Append(ctx context.Context, documentName string, chunks []domain.Chunk) error {
	if documentName == "" {
		return fmt.Errorf("%w: document name is required", domain.ErrInvalidInput)
	}
	if len(chunks) == 0 {
		return nil
	}
	dimension := 0
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		if dimension == 0 {
			dimension = len(c.Embedding)
		}
		if len(c.Embedding) != dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
				domain.ErrDimensionMismatch, c.ChunkID, len(c.Embedding), dimension)
		}
	}
	dimension, err := s.ensureCollection(ctx, dimension)
	if err != nil {
		return err
	}

	seq := s.nextSeq()
	defer s.finish(seq)
	points := make([]point, len(chunks))
	for i, c := range chunks {
		vector := c.Embedding
		if len(vector) == 0 {
			vector = make([]float64, dimension)
		}
		points[i] = point{
			ID:     PointID(documentName, c.ChunkID),
			Vector: vector,
			Payload: payload{
				ChunkID:      c.ChunkID,
				DocumentID:   c.DocumentID,
				DocumentName: documentName,
				Text:         c.Text,
				TokenLength:  c.TokenLength,
				StartChar:    c.StartChar,
				EndChar:      c.EndChar,
				HasMath:      c.Metadata.HasMath,
				UnitIndex:    c.Metadata.UnitIndex,
				SubIndex:     c.Metadata.SubIndex,
				Extra:        c.Metadata.Extra,
				UploadedAt:   c.UploadedAt,
				Seq:          seq,
				Position:     i,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil)
}

// All scrolls the collection and returns chunks in insertion order. Only
// appends finished before the call started are included.
func (s *Storage) All(ctx context.Context) ([]domain.Chunk, error) {
	points, err := s.scroll(ctx, true, s.snapshotSeq())
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(points))
	for i, p := range points {
		chunks[i] = p.chunk()
	}
	return chunks, nil
}

// Remove deletes every point of the named document.
func (s *Storage) Remove(ctx context.Context, documentName string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_name", "match": map[string]any{"value": documentName}},
			},
		},
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

// Clear drops the collection. It is recreated by the next append.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	s.mu.Lock()
	s.dimension = 0
	s.mu.Unlock()
	return nil
}

// Stats lists document names in the order they were first stored.
func (s *Storage) Stats(ctx context.Context) (domain.StoreStats, error) {
	points, err := s.scroll(ctx, false, s.snapshotSeq())
	if err != nil {
		return domain.StoreStats{}, err
	}
	stats := domain.StoreStats{TotalChunks: len(points), Documents: []string{}}
	seen := make(map[string]struct{})
	for _, p := range points {
		name := p.Payload.DocumentName
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		stats.Documents = append(stats.Documents, name)
	}
	return stats, nil
}

func (p point) chunk() domain.Chunk {
	return domain.Chunk{
		ChunkID:     p.Payload.ChunkID,
		DocumentID:  p.Payload.DocumentID,
		Text:        p.Payload.Text,
		TokenLength: p.Payload.TokenLength,
		StartChar:   p.Payload.StartChar,
		EndChar:     p.Payload.EndChar,
		Metadata: domain.ChunkMetadata{
			HasMath:   p.Payload.HasMath,
			UnitIndex: p.Payload.UnitIndex,
			SubIndex:  p.Payload.SubIndex,
			Extra:     p.Payload.Extra,
		},
		Embedding:    embedding(p.Vector),
		DocumentName: p.Payload.DocumentName,
		UploadedAt:   p.Payload.UploadedAt,
	}
}

// embedding maps the zero vector written for unembedded chunks back to nil.
func embedding(v []float64) []float64 {
	for _, x := range v {
		if x != 0 {
			return v
		}
	}
	return nil
}

// ensureCollection creates the collection when it does not exist and checks
// the vector size when it does. A zero dimension accepts the existing size.
func (s *Storage) ensureCollection(ctx context.Context, dimension int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		var info struct {
			Result struct {
				Config struct {
					Params struct {
						Vectors struct {
							Size int `json:"size"`
						} `json:"vectors"`
					} `json:"params"`
				} `json:"config"`
			} `json:"result"`
		}
		err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info)
		switch {
		case err == nil:
			s.dimension = info.Result.Config.Params.Vectors.Size
		case errors.Is(err, errNotFound):
			if dimension == 0 {
				return 0, fmt.Errorf("%w: collection %s needs a vector size", domain.ErrMissingEmbedding, s.collection)
			}
			body := map[string]any{
				"vectors": map[string]any{
					"size":     dimension,
					"distance": "Cosine",
				},
			}
			if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
				return 0, err
			}
			s.dimension = dimension
		default:
			return 0, err
		}
	}
	if dimension != 0 && s.dimension != dimension {
		return 0, fmt.Errorf("%w: collection %s has %d dimensions, got %d",
			domain.ErrDimensionMismatch, s.collection, s.dimension, dimension)
	}
	return s.dimension, nil
}

// nextSeq returns a strictly increasing append sequence based on wall time
// and marks it in flight until finish is called.
func (s *Storage) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeq = max(time.Now().UnixNano(), s.lastSeq+1)
	s.inflight[s.lastSeq] = struct{}{}
	return s.lastSeq
}

func (s *Storage) finish(seq int64) {
	s.mu.Lock()
	delete(s.inflight, seq)
	s.mu.Unlock()
}

// snapshotSeq bounds a read to appends that started before now and are no
// longer in flight, so an append is seen whole or not at all.
func (s *Storage) snapshotSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	bound := max(time.Now().UnixNano(), s.lastSeq)
	for seq := range s.inflight {
		bound = min(bound, seq-1)
	}
	return bound
}

func (s *Storage) scroll(ctx context.Context, withVector bool, maxSeq int64) ([]point, error) {
	var points []point
	var offset any
	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  withVector,
			"filter": map[string]any{
				"must": []map[string]any{
					{"key": "seq", "range": map[string]any{"lte": maxSeq}},
				},
			},
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp)
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		points = append(points, resp.Result.Points...)
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i].Payload, points[j].Payload
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.Position < b.Position
	})
	return points, nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("qdrant: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}
