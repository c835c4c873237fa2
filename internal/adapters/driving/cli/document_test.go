package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

func TestSubmitCmd_ReadsFile(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	path := filepath.Join(t.TempDir(), "Visit-Note.TXT")
	require.NoError(t, os.WriteFile(path, []byte("blood pressure stable"), 0o600))

	out, err := execute(t, "submit", "--id", "doc-7", "--type", "visit_note",
		"--metadata", `{"patient_id":"p1"}`, path)
	require.NoError(t, err)

	require.Len(t, ts.index.submitted, 1)
	doc := ts.index.submitted[0]
	assert.Equal(t, "doc-7", doc.ID)
	assert.Equal(t, "blood pressure stable", doc.Content)
	assert.Equal(t, "Visit-Note.TXT", doc.Filename)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, "visit_note", doc.Metadata["document_type"])
	assert.Equal(t, "p1", doc.Metadata["patient_id"])
	assert.Contains(t, out, "Queued doc-7 (21 characters)")
}

func TestSubmitCmd_ReadsStdin(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	rootCmd.SetIn(strings.NewReader("from stdin"))
	defer rootCmd.SetIn(nil)

	out, err := execute(t, "submit", "--json", "-")
	require.NoError(t, err)

	require.Len(t, ts.index.submitted, 1)
	assert.Equal(t, "from stdin", ts.index.submitted[0].Content)
	assert.Empty(t, ts.index.submitted[0].Filename)

	var resp map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "generated-id", resp["document_id"])
	assert.Equal(t, "pending", resp["status"])
}

func TestSubmitCmd_RejectsBadMetadata(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := execute(t, "submit", "--metadata", "[1,2]", path)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, ts.index.submitted)
}

func TestSubmitCmd_MissingFile(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "submit", filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStatusCmd_PrintsFields(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "status", "doc-1")
	require.NoError(t, err)

	assert.Contains(t, out, "doc-1")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "3/3")
	assert.Contains(t, out, "Updated:")
}

func TestDeleteCmd_FlushesIndex(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "delete", "doc-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"doc-1"}, ts.index.deleted)
	assert.Equal(t, 1, ts.index.flushed)
	assert.Contains(t, out, "Deleted doc-1: 3 chunks, 3 vectors")
}

func TestDeleteCmd_NotFound(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "delete", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, ts.index.flushed)
}
