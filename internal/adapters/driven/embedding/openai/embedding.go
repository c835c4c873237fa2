// Package openai provides an embedding service adapter using the OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel     = "text-embedding-3-small"
	DefaultTimeout   = 60 * time.Second
	DefaultMaxTokens = 8191
	encodingName     = "cl100k_base"
	maxBatchSize     = 2048
)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL overrides the API base URL for compatible servers.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the default dimension for the model.
	// Only applicable to text-embedding-3-* models.
	Dimensions int

	// MaxTokens truncates longer inputs (default: 8191).
	MaxTokens int

	// RequestsPerSecond throttles API calls. Zero disables throttling.
	RequestsPerSecond float64
}

// EmbeddingService generates embeddings using the OpenAI API.
type EmbeddingService struct {
	client           openai.Client
	model            string
	dimensions       int
	customDimensions bool
	maxTokens        int
	limiter          *rate.Limiter

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	dimensions := cfg.Dimensions
	custom := dimensions > 0 && dimensions != modelDimensions[cfg.Model]
	if dimensions == 0 {
		dimensions = modelDimensions[cfg.Model]
	}
	if dimensions == 0 {
		return nil, fmt.Errorf("openai: unknown dimensions for model %q", cfg.Model)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		// The index queue retries unavailable errors itself.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	s := &EmbeddingService{
		client:           openai.NewClient(opts...),
		model:            cfg.Model,
		dimensions:       dimensions,
		customDimensions: custom,
		maxTokens:        cfg.MaxTokens,
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return s, nil
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single request.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > maxBatchSize {
		return nil, fmt.Errorf("openai: batch size %d exceeds maximum of %d", len(texts), maxBatchSize)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("openai: rate limit wait: %w", err)
		}
	}

	inputs := make([]string, len(texts))
	for i, text := range texts {
		inputs[i] = s.truncate(text)
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(s.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: inputs,
		},
	}
	if s.customDimensions {
		params.Dimensions = openai.Int(int64(s.dimensions))
	}

	resp, err := s.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	slices.SortFunc(data, func(a, b openai.Embedding) int { return int(a.Index - b.Index) })

	embeddings := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) != s.dimensions {
			return nil, fmt.Errorf("%w: %s returned %d values for input %d, want %d",
				domain.ErrDimensionMismatch, s.model, len(d.Embedding), i, s.dimensions)
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// classify marks failures worth retrying as domain.ErrEmbeddingUnavailable:
// transport errors, rate limiting and server errors. Other API errors
// (bad key, unknown model) are returned as is.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: openai: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError {
		return errors.Join(domain.ErrEmbeddingUnavailable, fmt.Errorf("openai: %w", err))
	}
	return fmt.Errorf("openai: generate embeddings: %w", err)
}

// truncate shortens text to the model token limit. Without a tokenizer the
// limit is approximated at four characters per token.
func (s *EmbeddingService) truncate(text string) string {
	// Every token covers at least one byte.
	if len(text) <= s.maxTokens {
		return text
	}

	s.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			logger.Warn("tiktoken encoding unavailable, estimating tokens", "error", err)
			return
		}
		s.enc = enc
	})

	if s.enc == nil {
		runes := []rune(text)
		if limit := s.maxTokens * 4; len(runes) > limit {
			return string(runes[:limit])
		}
		return text
	}

	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) <= s.maxTokens {
		return text
	}
	logger.Debug("embedding input truncated", "tokens", len(tokens), "max_tokens", s.maxTokens)
	return s.enc.Decode(tokens[:s.maxTokens])
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping validates the API key and model by retrieving the model.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.client.Models.Get(ctx, s.model); err != nil {
		return fmt.Errorf("openai: ping failed: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources of its own.
func (s *EmbeddingService) Close() error {
	return nil
}
