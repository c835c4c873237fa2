package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	response *domain.SearchResponse
	stats    *domain.SearchStats
	lastReq  domain.SearchRequest
	err      error
}

func (m *mockSearchService) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.response == nil {
		return &domain.SearchResponse{Query: req.Query, Results: []domain.SearchResult{}}, nil
	}
	return m.response, nil
}

func (m *mockSearchService) Stats(_ context.Context) (*domain.SearchStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.stats == nil {
		return &domain.SearchStats{}, nil
	}
	return m.stats, nil
}

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	status *domain.IndexStatus
	err    error
}

func (m *mockIndexService) IndexChunks(_ context.Context, _ domain.IndexRequest) (*domain.IndexResponse, error) {
	return nil, m.err
}

func (m *mockIndexService) SubmitDocument(_ context.Context, _ *domain.Document) error {
	return m.err
}

func (m *mockIndexService) Status(_ context.Context, id string) (*domain.IndexStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.status == nil {
		return &domain.IndexStatus{DocumentID: id, Status: domain.IndexStateNotFound}, nil
	}
	return m.status, nil
}

func (m *mockIndexService) Delete(_ context.Context, _ string) (*domain.DeleteResponse, error) {
	return nil, m.err
}

func (m *mockIndexService) Flush(_ context.Context) error {
	return m.err
}

// mockReconciler is a mock implementation of driving.Reconciler.
type mockReconciler struct {
	forced bool
	report *domain.ReconcileReport
	err    error
}

func (m *mockReconciler) Reconcile(_ context.Context, force bool) (*domain.ReconcileReport, error) {
	m.forced = force
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}
