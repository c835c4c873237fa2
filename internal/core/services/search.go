package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService answers semantic queries against the vector index.
type SearchService struct {
	index     driven.VectorIndex
	generator *EmbeddingGenerator
	chunks    driven.ChunkStore
	settings  domain.SearchSettings
}

// NewSearchService creates a search service.
// chunks is optional and only used when the index holds no content.
func NewSearchService(
	index driven.VectorIndex,
	generator *EmbeddingGenerator,
	chunks driven.ChunkStore,
	settings domain.SearchSettings,
) *SearchService {
	if settings.OverfetchFactor < 1 {
		settings.OverfetchFactor = 1
	}
	return &SearchService{
		index:     index,
		generator: generator,
		chunks:    chunks,
		settings:  settings,
	}
}

// Search embeds the query and returns the closest chunks that pass the filters.
func (s *SearchService) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	started := time.Now()

	limit, err := validateSearch(&req)
	if err != nil {
		return nil, err
	}

	if s.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
	}

	query, err := s.generator.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	k := limit
	filtered := !req.Filters.IsEmpty()
	if filtered {
		k = limit * s.settings.OverfetchFactor
	}

	hits, err := s.index.Search(ctx, query, k, req.Threshold)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
	}

	match := newFilterMatcher(req.Filters)
	seen := make(map[string]struct{}, len(hits))
	results := make([]domain.SearchResult, 0, limit)
	for _, hit := range hits {
		if len(results) >= limit {
			break
		}
		if _, dup := seen[hit.ChunkID]; dup {
			continue
		}
		seen[hit.ChunkID] = struct{}{}

		documentID := domain.DocumentIDFromChunkID(hit.ChunkID)
		if filtered && !match(documentID, hit.Metadata) {
			continue
		}

		results = append(results, domain.SearchResult{
			ChunkID:    hit.ChunkID,
			DocumentID: documentID,
			Score:      roundScore(hit.Similarity),
			Content:    s.content(ctx, hit),
			Metadata:   hit.Metadata,
		})
	}

	elapsed := time.Since(started).Milliseconds()
	logger.Debug("search complete", "query_length", len(req.Query), "candidates", len(hits),
		"results", len(results), "duration_ms", elapsed)

	return &domain.SearchResponse{
		Query:           req.Query,
		Results:         results,
		TotalResults:    len(results),
		ExecutionTimeMs: elapsed,
		FiltersApplied:  req.Filters,
	}, nil
}

// Stats returns index, model and search configuration details.
func (s *SearchService) Stats(ctx context.Context) (*domain.SearchStats, error) {
	return &domain.SearchStats{
		VectorStore:    s.index.Stats(),
		EmbeddingModel: s.generator.Info(ctx),
		SearchConfig: domain.SearchConfig{
			MaxResults:          s.settings.MaxResults,
			SimilarityThreshold: s.settings.SimilarityThreshold,
			SearchTimeout:       s.settings.Timeout.Seconds(),
		},
	}, nil
}

// content returns the chunk text held by the index, or reads it from the store.
func (s *SearchService) content(ctx context.Context, hit driven.VectorHit) string {
	if text, ok := hit.Metadata["content"].(string); ok && text != "" {
		return text
	}
	if s.chunks == nil {
		return ""
	}
	chunk, err := s.chunks.GetChunk(ctx, hit.ChunkID)
	if err != nil {
		logger.Debug("chunk content lookup failed", "chunk_id", hit.ChunkID, "error", err)
		return ""
	}
	return chunk.Content
}

// validateSearch trims the query and checks bounds. It returns the effective limit.
func validateSearch(req *domain.SearchRequest) (int, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return 0, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidInput)
	}

	limit := req.Limit
	if limit == 0 {
		limit = domain.DefaultSearchLimit
	}
	if limit < 1 || limit > domain.MaxSearchLimit {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidInput, domain.MaxSearchLimit)
	}
	req.Limit = limit

	if req.Threshold < 0 || req.Threshold > 1 || math.IsNaN(req.Threshold) {
		return 0, fmt.Errorf("%w: threshold must be between 0 and 1", domain.ErrInvalidInput)
	}

	f := req.Filters
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return 0, fmt.Errorf("%w: date_from is after date_to", domain.ErrInvalidInput)
	}
	return limit, nil
}

// roundScore clamps a similarity to [0, 1] and rounds it to 4 decimals.
func roundScore(similarity float64) float64 {
	clamped := math.Max(0, math.Min(1, similarity))
	return math.Round(clamped*10000) / 10000
}

// newFilterMatcher returns a predicate over candidate metadata.
func newFilterMatcher(f domain.SearchFilters) func(documentID string, metadata map[string]any) bool {
	var docs map[string]struct{}
	if len(f.DocumentIDs) > 0 {
		docs = make(map[string]struct{}, len(f.DocumentIDs))
		for _, id := range f.DocumentIDs {
			docs[id] = struct{}{}
		}
	}

	return func(documentID string, metadata map[string]any) bool {
		if f.DocumentType != "" && metadataString(metadata, "document_type") != f.DocumentType {
			return false
		}
		if f.PatientID != "" && metadataString(metadata, "patient_id") != f.PatientID {
			return false
		}
		if docs != nil {
			if _, ok := docs[documentID]; !ok {
				return false
			}
		}
		if f.DateFrom == nil && f.DateTo == nil {
			return true
		}

		date, ok := metadataDate(metadata)
		if !ok {
			return false
		}
		if f.DateFrom != nil && date.Before(*f.DateFrom) {
			return false
		}
		if f.DateTo != nil && date.After(endOfDay(*f.DateTo)) {
			return false
		}
		return true
	}
}

// metadataString renders a metadata value as a string for equality filters.
func metadataString(metadata map[string]any, key string) string {
	switch v := metadata[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// metadataDate reads document_date, then created_at.
func metadataDate(metadata map[string]any) (time.Time, bool) {
	for _, key := range []string{"document_date", "created_at"} {
		switch v := metadata[key].(type) {
		case time.Time:
			return v, true
		case string:
			if t, err := domain.ParseDate(v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// endOfDay widens a date-only bound to cover the whole day.
func endOfDay(t time.Time) time.Time {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Add(24*time.Hour - time.Nanosecond)
	}
	return t
}
