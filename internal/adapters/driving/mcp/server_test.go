package mcp

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// connect starts an in-memory session between a client and s.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func toolNames(t *testing.T, session *mcp.ClientSession) []string {
	t.Helper()
	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestNewServer_RequiresSearch(t *testing.T) {
	server, err := NewServer(&Ports{})
	assert.ErrorIs(t, err, ErrMissingSearchService)
	assert.Nil(t, server)
}

func TestPorts_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Ports{}).Validate(), ErrMissingSearchService)
	assert.NoError(t, (&Ports{Search: &mockSearchService{}}).Validate())
	assert.NoError(t, (&Ports{
		Search:     &mockSearchService{},
		Index:      &mockIndexService{},
		Reconciler: &mockReconciler{},
	}).Validate())
}

func TestServer_ToolsFollowPorts(t *testing.T) {
	searchOnly, err := NewServer(&Ports{Search: &mockSearchService{}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"search"}, toolNames(t, connect(t, searchOnly)))

	full, err := NewServer(&Ports{
		Search:     &mockSearchService{},
		Index:      &mockIndexService{},
		Reconciler: &mockReconciler{},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"search", "index_status", "reconcile"}, toolNames(t, connect(t, full)))
}

func TestServer_CallSearchOverSession(t *testing.T) {
	search := &mockSearchService{response: &domain.SearchResponse{
		Results:      []domain.SearchResult{{ChunkID: "doc-1_chunk_0", DocumentID: "doc-1", Score: 0.8}},
		TotalResults: 1,
	}}
	server, err := NewServer(&Ports{Search: search})
	require.NoError(t, err)
	session := connect(t, server)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"query": "insulin", "limit": 5, "patient_id": "p1"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	assert.Equal(t, "insulin", search.lastReq.Query)
	assert.Equal(t, 5, search.lastReq.Limit)
	assert.Equal(t, "p1", search.lastReq.Filters.PatientID)

	out, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok, "structured content is %T", res.StructuredContent)
	assert.EqualValues(t, 1, out["count"])
}

func TestServer_UnregisteredToolFails(t *testing.T) {
	server, err := NewServer(&Ports{Search: &mockSearchService{}})
	require.NoError(t, err)

	_, err = connect(t, server).CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "reconcile",
		Arguments: map[string]any{},
	})
	assert.Error(t, err)
}

func TestServer_ReadStatsResource(t *testing.T) {
	search := &mockSearchService{stats: &domain.SearchStats{
		VectorStore: domain.IndexStats{TotalChunks: 7, IndexType: domain.IndexTypeFlatIP},
	}}
	server, err := NewServer(&Ports{Search: search})
	require.NoError(t, err)

	res, err := connect(t, server).ReadResource(context.Background(), &mcp.ReadResourceParams{
		URI: uriScheme + "stats",
	})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)
	assert.Contains(t, res.Contents[0].Text, `"total_chunks": 7`)
}

func TestServer_Handler(t *testing.T) {
	server, err := NewServer(&Ports{Search: &mockSearchService{}})
	require.NoError(t, err)
	assert.NotNil(t, server.Handler())
}
