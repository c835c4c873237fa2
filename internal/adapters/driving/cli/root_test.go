package cli

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

type mockSearchService struct {
	lastReq domain.SearchRequest
	results []domain.SearchResult
	err     error
}

func (m *mockSearchService) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &domain.SearchResponse{Query: req.Query, Results: m.results, TotalResults: len(m.results)}, nil
}

func (m *mockSearchService) Stats(context.Context) (*domain.SearchStats, error) {
	return &domain.SearchStats{
		VectorStore:    domain.IndexStats{TotalVectors: 5, TotalChunks: 4, StaleVectors: 1, Dimension: 384, IndexType: domain.IndexTypeFlatIP},
		EmbeddingModel: domain.EmbeddingInfo{Name: "all-MiniLM-L6-v2", Dimension: 384, BatchSize: 32, Status: "loaded"},
		SearchConfig:   domain.SearchConfig{MaxResults: 20, SimilarityThreshold: 0.7, SearchTimeout: 30},
	}, nil
}

type mockIndexService struct {
	submitted []*domain.Document
	deleted   []string
	flushed   int
}

func (m *mockIndexService) IndexChunks(context.Context, domain.IndexRequest) (*domain.IndexResponse, error) {
	return nil, domain.ErrNotImplemented
}

func (m *mockIndexService) SubmitDocument(_ context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		doc.ID = "generated-id"
	}
	doc.Status = domain.StatusPending
	m.submitted = append(m.submitted, doc)
	return nil
}

func (m *mockIndexService) Status(_ context.Context, id string) (*domain.IndexStatus, error) {
	updated := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	return &domain.IndexStatus{
		DocumentID: id, Status: domain.IndexStateCompleted,
		ChunksTotal: 3, ChunksProcessed: 3, VectorsAdded: 3, UpdatedAt: &updated,
	}, nil
}

func (m *mockIndexService) Delete(_ context.Context, id string) (*domain.DeleteResponse, error) {
	if id == "missing" {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	m.deleted = append(m.deleted, id)
	return &domain.DeleteResponse{DocumentID: id, ChunksDeleted: 3, VectorsDeleted: 3, Status: "deleted"}, nil
}

func (m *mockIndexService) Flush(context.Context) error {
	m.flushed++
	return nil
}

type mockReconciler struct{ force bool }

func (m *mockReconciler) Reconcile(_ context.Context, force bool) (*domain.ReconcileReport, error) {
	m.force = force
	if force {
		return &domain.ReconcileReport{
			Status: domain.ReconcileRebuilt, Rebuilt: true, Reason: "forced",
			ChunkStoreCount: 4, IndexCount: 4, Documents: 2, ReusedEmbeddings: 4,
		}, nil
	}
	return &domain.ReconcileReport{Status: domain.ReconcileInSync, ChunkStoreCount: 4, IndexCount: 4}, nil
}

type mockHealthService struct{}

func (mockHealthService) Health(context.Context) domain.HealthReport {
	return domain.HealthReport{Status: domain.HealthDegraded, Checks: map[string]domain.HealthCheck{
		"embedding":    {Status: domain.HealthUnhealthy, Message: "connection refused"},
		"vector_store": {Status: domain.HealthHealthy},
		"chunk_store":  {Status: domain.HealthHealthy},
	}}
}

type mockSettingsService struct {
	settings domain.Settings
	set      map[string]string
}

func (m *mockSettingsService) Get() (*domain.Settings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if key == "bad.key" {
		return fmt.Errorf("%w: unknown key %q", domain.ErrInvalidInput, key)
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) ConfigPath() string { return "/tmp/sercha-indexer/config.toml" }

type testServices struct {
	search   *mockSearchService
	index    *mockIndexService
	recon    *mockReconciler
	settings *mockSettingsService
}

// setupTestServices installs mocks and returns a cleanup function.
func setupTestServices() (*testServices, func()) {
	defaults := domain.DefaultSettings()
	defaults.Storage.DataDir = "/tmp/sercha-indexer/data"

	ts := &testServices{
		search:   &mockSearchService{},
		index:    &mockIndexService{},
		recon:    &mockReconciler{},
		settings: &mockSettingsService{settings: defaults, set: map[string]string{}},
	}
	searchService = ts.search
	indexService = ts.index
	reconciler = ts.recon
	healthService = mockHealthService{}
	settingsService = ts.settings

	return ts, func() {
		searchService, indexService, reconciler, healthService, settingsService = nil, nil, nil, nil, nil
		resetFlags()
	}
}

func resetFlags() {
	searchLimit, searchThreshold = domain.DefaultSearchLimit, 0
	searchType, searchPatient, searchFrom, searchTo = "", "", "", ""
	searchDocs = nil
	searchJSON, documentJSON, reconcileJSON, statsJSON = false, false, false, false
	submitID, submitMetadata, submitType = "", "", ""
	reconcileForce = false
	serveAddr, serveNoMCP = "", false
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	want := []string{"serve", "search", "submit", "status", "delete", "reconcile", "stats", "health", "mcp", "version", "config"}
	var got []string
	for _, cmd := range rootCmd.Commands() {
		got = append(got, cmd.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	verboseFlag := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
}

func TestIsBuiltin(t *testing.T) {
	help, _, err := rootCmd.Find([]string{"help"})
	require.NoError(t, err)
	assert.True(t, isBuiltin(help))
	assert.False(t, isBuiltin(searchCmd))
}

func TestServeCmd_RequiresApplication(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configured application")
}
