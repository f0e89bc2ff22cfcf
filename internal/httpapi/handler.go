// Package httpapi exposes the chunking and retrieval service over HTTP JSON.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"semrag/internal/domain"
)

const maxBodyBytes = 10 << 20

// Handler serves the HTTP routes over a RAGService.
type Handler struct {
	svc      domain.RAGService
	defaults domain.ChunkOptions
	topK     int
}

func NewHandler(svc domain.RAGService, defaults domain.ChunkOptions, topK int) *Handler {
	return &Handler{svc: svc, defaults: defaults, topK: topK}
}

// NewRouter creates the chi router with the middleware stack and all routes.
func NewRouter(h *Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(cors)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", h.health)
	r.Post("/chunk", h.chunk)
	r.Post("/store", h.store)
	r.Delete("/store", h.clear)
	r.Post("/retrieve", h.retrieve)
	r.Get("/stats", h.stats)
	r.Delete("/documents/{name}", h.removeDocument)
	return r
}

type chunkRequest struct {
	Text                string   `json:"text"`
	DocumentID          *string  `json:"document_id"`
	OverlapTokens       *int     `json:"overlap_tokens"`
	MaxChunkTokens      *int     `json:"max_chunk_tokens"`
	MinChunkTokens      *int     `json:"min_chunk_tokens"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
}

type chunkResponse struct {
	Success     bool           `json:"success"`
	Chunks      []domain.Chunk `json:"chunks"`
	TotalChunks int            `json:"total_chunks"`
	DocumentID  string         `json:"document_id"`
}

type storeRequest struct {
	DocumentName string         `json:"document_name"`
	Chunks       []domain.Chunk `json:"chunks"`
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type retrieveResponse struct {
	Success bool `json:"success"`
	domain.RetrievalResult
}

type statsResponse struct {
	Success bool `json:"success"`
	domain.StoreStats
}

type okResponse struct {
	Success bool `json:"success"`
	Stored  int  `json:"stored,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"chunking_available": true,
	})
}

func (h *Handler) chunk(w http.ResponseWriter, r *http.Request) {
	var req chunkRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: text")
		return
	}

	opts := h.defaults
	if req.DocumentID != nil {
		opts.DocumentID = *req.DocumentID
	}
	if req.OverlapTokens != nil {
		opts.OverlapTokens = *req.OverlapTokens
	}
	if req.MaxChunkTokens != nil {
		opts.MaxChunkTokens = *req.MaxChunkTokens
	}
	if req.MinChunkTokens != nil {
		opts.MinChunkTokens = *req.MinChunkTokens
	}
	if req.SimilarityThreshold != nil {
		opts.SimilarityThreshold = *req.SimilarityThreshold
	}

	res, err := h.svc.ChunkDocument(r.Context(), req.Text, opts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chunkResponse{
		Success:     true,
		Chunks:      res.Chunks,
		TotalChunks: len(res.Chunks),
		DocumentID:  res.DocumentID,
	})
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.DocumentName == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: document_name")
		return
	}
	if err := h.svc.StoreChunks(r.Context(), req.Chunks, req.DocumentName); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true, Stored: len(req.Chunks)})
}

func (h *Handler) retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if !decode(w, r, &req) {
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = h.topK
	}
	res, err := h.svc.RetrieveChunks(r.Context(), req.Query, topK)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Success: true, RetrievalResult: res})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetStats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Success: true, StoreStats: stats})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearStore(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (h *Handler) removeDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.svc.RemoveDocument(r.Context(), name); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Missing request body")
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidConfig), errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDimensionMismatch), errors.Is(err, domain.ErrMissingEmbedding):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrEmbedderUnavailable):
		status = http.StatusServiceUnavailable
	}
	logger := ctxzap.Extract(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	} else {
		logger.Warn("request rejected", zap.Error(err))
	}
	writeError(w, status, err.Error())
}
