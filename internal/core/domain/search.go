package domain

import (
	"fmt"
	"strings"
	"time"
)

// Search limits.
const (
	// DefaultSearchLimit is used when a request does not set a limit.
	DefaultSearchLimit = 20

	// MaxSearchLimit is the largest accepted limit.
	MaxSearchLimit = 100
)

// SearchFilters restricts search results by chunk metadata.
// All set fields must match.
type SearchFilters struct {
	// DocumentType matches metadata "document_type".
	DocumentType string `json:"document_type,omitempty"`

	// PatientID matches metadata "patient_id".
	PatientID string `json:"patient_id,omitempty"`

	// DocumentIDs restricts results to these documents.
	DocumentIDs []string `json:"document_ids,omitempty"`

	// DateFrom excludes chunks dated before this day.
	DateFrom *time.Time `json:"date_from,omitempty"`

	// DateTo excludes chunks dated after this day.
	DateTo *time.Time `json:"date_to,omitempty"`
}

// IsEmpty returns true when no filter is set.
func (f SearchFilters) IsEmpty() bool {
	return f.DocumentType == "" && f.PatientID == "" && len(f.DocumentIDs) == 0 &&
		f.DateFrom == nil && f.DateTo == nil
}

// SearchRequest is a semantic search query.
type SearchRequest struct {
	// Query is the natural language query.
	Query string

	// Limit is the maximum number of results (1..100, 0 means default).
	Limit int

	// Threshold is the minimum similarity score (0..1, 0 disables).
	Threshold float64

	// Filters restricts results by metadata.
	Filters SearchFilters
}

// SearchResult represents a single search hit.
type SearchResult struct {
	// ChunkID is the matched chunk.
	ChunkID string `json:"chunk_id"`

	// DocumentID is parsed from ChunkID.
	DocumentID string `json:"document_id"`

	// Score is the similarity in [0, 1], rounded to 4 decimals.
	Score float64 `json:"score"`

	// Content is the chunk text.
	Content string `json:"content"`

	// Metadata is the chunk metadata held by the index.
	Metadata map[string]any `json:"metadata"`
}

// SearchResponse is the outcome of a search.
type SearchResponse struct {
	Query           string         `json:"query"`
	Results         []SearchResult `json:"results"`
	TotalResults    int            `json:"total_results"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	FiltersApplied  SearchFilters  `json:"filters_applied"`
}

// SearchConfig reports the search settings in effect.
type SearchConfig struct {
	MaxResults          int     `json:"max_results"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	SearchTimeout       float64 `json:"search_timeout"`
}

// SearchStats combines index, model and search configuration details.
type SearchStats struct {
	VectorStore    IndexStats    `json:"vector_store"`
	EmbeddingModel EmbeddingInfo `json:"embedding_model"`
	SearchConfig   SearchConfig  `json:"search_config"`
}

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD or RFC 3339", ErrInvalidInput, s)
}
