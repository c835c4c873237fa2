package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query        string   `json:"query" jsonschema:"natural language query"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of results, 1 to 100 (default 20)"`
	Threshold    float64  `json:"threshold,omitempty" jsonschema:"minimum similarity between 0 and 1"`
	DocumentType string   `json:"document_type,omitempty" jsonschema:"only return chunks of this document type"`
	PatientID    string   `json:"patient_id,omitempty" jsonschema:"only return chunks for this patient"`
	DocumentIDs  []string `json:"document_ids,omitempty" jsonschema:"only return chunks from these documents"`
	DateFrom     string   `json:"date_from,omitempty" jsonschema:"earliest document date, YYYY-MM-DD"`
	DateTo       string   `json:"date_to,omitempty" jsonschema:"latest document date, YYYY-MM-DD"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Score      float64        `json:"score"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StatusInput is the input schema for the index_status tool.
type StatusInput struct {
	DocumentID string `json:"document_id" jsonschema:"document to look up"`
}

// StatusOutput is the output schema for the index_status tool.
type StatusOutput struct {
	DocumentID      string `json:"document_id"`
	Status          string `json:"status"`
	ChunksTotal     int    `json:"chunks_total"`
	ChunksProcessed int    `json:"chunks_processed"`
	VectorsAdded    int    `json:"vectors_added"`
	ErrorMessage    string `json:"error_message,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// ReconcileInput is the input schema for the reconcile tool.
type ReconcileInput struct {
	Force bool `json:"force,omitempty" jsonschema:"rebuild even when the index looks consistent"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over indexed document chunks",
	}, s.handleSearch)

	if s.ports.Index != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "index_status",
			Description: "Report the indexing state of a document",
		}, s.handleStatus)
	}

	if s.ports.Reconciler != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "reconcile",
			Description: "Check the vector index against the chunk store and rebuild it if they differ",
		}, s.handleReconcile)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	req := domain.SearchRequest{
		Query:     input.Query,
		Limit:     input.Limit,
		Threshold: input.Threshold,
		Filters: domain.SearchFilters{
			DocumentType: input.DocumentType,
			PatientID:    input.PatientID,
			DocumentIDs:  input.DocumentIDs,
		},
	}
	var err error
	if req.Filters.DateFrom, err = optionalDate(input.DateFrom); err != nil {
		return nil, SearchOutput{}, err
	}
	if req.Filters.DateTo, err = optionalDate(input.DateTo); err != nil {
		return nil, SearchOutput{}, err
	}

	resp, err := s.ports.Search.Search(ctx, req)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(resp.Results)),
		Count:   len(resp.Results),
	}
	for i, r := range resp.Results {
		output.Results[i] = SearchResultOutput{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Score:      r.Score,
			Content:    r.Content,
			Metadata:   r.Metadata,
		}
	}

	return nil, output, nil
}

// handleStatus handles the index_status tool invocation.
func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	status, err := s.ports.Index.Status(ctx, input.DocumentID)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	output := StatusOutput{
		DocumentID:      status.DocumentID,
		Status:          status.Status,
		ChunksTotal:     status.ChunksTotal,
		ChunksProcessed: status.ChunksProcessed,
		VectorsAdded:    status.VectorsAdded,
		ErrorMessage:    status.ErrorMessage,
	}
	if status.UpdatedAt != nil {
		output.UpdatedAt = status.UpdatedAt.Format(time.RFC3339)
	}
	return nil, output, nil
}

// handleReconcile handles the reconcile tool invocation.
func (s *Server) handleReconcile(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ReconcileInput,
) (*mcp.CallToolResult, domain.ReconcileReport, error) {
	report, err := s.ports.Reconciler.Reconcile(ctx, input.Force)
	if err != nil {
		return nil, domain.ReconcileReport{}, err
	}
	return nil, *report, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
