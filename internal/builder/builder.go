// Package builder wires configuration into the running components shared by
// the CLI and the HTTP server.
package builder

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"semrag/internal/chunker"
	"semrag/internal/config"
	"semrag/internal/domain"
	"semrag/internal/embedding/cache"
	"semrag/internal/embedding/hashing"
	"semrag/internal/embedding/openai"
	"semrag/internal/httpapi"
	"semrag/internal/logger"
	"semrag/internal/retrieval"
	"semrag/internal/service"
	"semrag/internal/similarity"
	"semrag/internal/summarizer"
	"semrag/internal/tokenizer"
	"semrag/internal/vectorstore/memory"
	"semrag/internal/vectorstore/qdrant"
)

// Build loads configuration from cfgPath and assembles the HTTP server.
func Build(cfgPath string) (*App, error) {
	cfg, used, err := config.Resolve(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	log.Info("Building application",
		zap.String("config", used),
		zap.String("server_addr", cfg.Server.Addr),
	)

	svc, err := BuildService(cfg, log)
	if err != nil {
		return nil, err
	}

	defaults := ChunkDefaults(cfg)
	handler := httpapi.NewHandler(svc, defaults, cfg.Retrieval.TopK)
	router := httpapi.NewRouter(handler, log)
	log.Info("HTTP router configured")

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("Application built successfully")
	return &App{server: server, logger: log}, nil
}

// BuildService assembles the embedder, tokenizer, chunker, store and
// retrieval engine described by cfg.
func BuildService(cfg *config.AppConfig, log *zap.Logger) (*service.RAGServiceImpl, error) {
	if log == nil {
		log = zap.NewNop()
	}

	emb := buildEmbedder(cfg.Embedder, log)
	scorer := similarity.NewScorer(emb,
		similarity.WithTimeout(cfg.Chunker.EmbedTimeout),
		similarity.WithLogger(log),
	)
	log.Info("Embedder initialized", zap.String("embedder", scorer.EmbedderName()))

	tok := tokenizer.New(cfg.Tokenizer.Type, cfg.Tokenizer.Encoding, log)
	seg := chunker.NewSegmenter(log)
	ch := chunker.NewSemanticChunker(scorer, tok,
		chunker.WithLogger(log),
		chunker.WithWorkers(cfg.Chunker.Workers),
		chunker.WithSegmenter(seg),
	)
	log.Info("Chunker initialized", zap.String("tokenizer", ch.TokenizerName()))

	store, err := buildStore(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	log.Info("Chunk store initialized", zap.String("type", cfg.VectorStore.Type))

	engine := retrieval.NewEngine(store, scorer,
		retrieval.WithDefaultTopK(cfg.Retrieval.TopK),
		retrieval.WithLogger(log),
	)
	var opts []service.Option
	if cfg.Summarizer.Enabled {
		opts = append(opts, service.WithSummarizer(summarizer.NewFrequencySummarizer(seg), cfg.Summarizer.MaxSentences))
	}
	return service.NewRAGService(ch, scorer, store, engine, ChunkDefaults(cfg), log, opts...), nil
}

// ChunkDefaults returns the configured chunk options with the default document ID.
func ChunkDefaults(cfg *config.AppConfig) domain.ChunkOptions {
	opts := cfg.Chunker.ChunkOptions
	if opts.DocumentID == "" {
		opts.DocumentID = domain.DefaultDocumentID
	}
	return opts
}

// buildEmbedder never fails: an OpenAI client that cannot be created falls
// back to the hashing embedder so chunking stays available.
func buildEmbedder(cfg config.EmbedderConfig, log *zap.Logger) domain.Embedder {
	var emb domain.Embedder = hashing.NewEmbedder(cfg.Dimension)
	if cfg.Type == config.EmbedderOpenAI && cfg.OpenAI != nil {
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Dimension: cfg.OpenAI.Dimension,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			Attempts:  cfg.OpenAI.Attempts,
		})
		if err != nil {
			log.Warn("openai embedder unavailable, using hashing embedder", zap.Error(err))
		} else {
			emb = client
		}
	}
	if cfg.Cache.Enabled {
		emb = cache.NewEmbedder(emb, cfg.Cache.TTL, 0)
	}
	return emb
}

func buildStore(cfg config.VectorStoreConfig) (domain.ChunkStore, error) {
	switch cfg.Type {
	case config.StoreMemory, "":
		return memory.NewStorage(), nil
	case config.StoreQdrant:
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("%w: qdrant config missing", domain.ErrInvalidConfig)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store type %q", domain.ErrInvalidConfig, cfg.Type)
	}
}
