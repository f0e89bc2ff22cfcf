package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 30 * time.Second

	defaultAttempts = 5
	defaultDelay    = 200 * time.Millisecond
	defaultMaxDelay = 5 * time.Second
)

// ErrNoEmbedding is returned when the endpoint answers without a vector.
var ErrNoEmbedding = errors.New("no embedding returned")

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	client    openai.Client
	model     string
	dimension atomic.Int64
	requested int
	timeout   time.Duration
	retryOpts []retry.Option
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
	Attempts  uint
	Delay     time.Duration
	MaxDelay  time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
// The key is taken from Config.APIKey, else from the APIKeyEnv variable.
func NewClient(cfg Config) (*Client, error) {
	key := cfg.APIKey
	if key == "" && cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.Delay == 0 {
		cfg.Delay = defaultDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = defaultMaxDelay
	}

	c := &Client{
		client: openai.NewClient(
			option.WithAPIKey(key),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
		),
		model:     cfg.Model,
		requested: cfg.Dimension,
		timeout:   cfg.Timeout,
		retryOpts: []retry.Option{
			retry.Attempts(cfg.Attempts),
			retry.Delay(cfg.Delay),
			retry.MaxDelay(cfg.MaxDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(isRetryable),
		},
	}
	c.dimension.Store(int64(cfg.Dimension))
	return c, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the configured dimension, or the one learned from the
// first response when none was configured.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an embedding vector for the given text. Rate limiting and
// server errors are retried with exponential backoff.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	if c.requested > 0 {
		params.Dimensions = openai.Int(int64(c.requested))
	}

	opts := append([]retry.Option{retry.Context(ctx)}, c.retryOpts...)
	vec, err := retry.DoWithData(func() ([]float64, error) {
		resp, err := c.client.Embeddings.New(ctx, params, option.WithRequestTimeout(c.timeout))
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, ErrNoEmbedding
		}
		return resp.Data[0].Embedding, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}
	c.dimension.CompareAndSwap(0, int64(len(vec)))
	return vec, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNoEmbedding) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
