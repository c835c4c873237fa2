package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

func TestNew(t *testing.T) {
	normaliser := New()
	require.NotNil(t, normaliser)
	assert.IsType(t, &Normaliser{}, normaliser)
}

func TestSupportedFileTypes(t *testing.T) {
	types := New().SupportedFileTypes()
	assert.Contains(t, types, "txt")
	assert.NotContains(t, types, "md")
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 5, New().Priority())
}

func TestNormalise_Success(t *testing.T) {
	doc := &domain.Document{
		Filename: "visit_note-2024.txt",
		Content:  "\ufeff  Line one\r\nLine two\rLine three\n\n",
	}

	require.NoError(t, New().Normalise(context.Background(), doc))

	assert.Equal(t, "Line one\nLine two\nLine three", doc.Content)
	assert.Equal(t, "visit note 2024", doc.Metadata["title"])
}

func TestNormalise_KeepsExistingTitle(t *testing.T) {
	doc := &domain.Document{
		Filename: "scan.txt",
		Content:  "text",
		Metadata: map[string]any{"title": "Discharge summary"},
	}

	require.NoError(t, New().Normalise(context.Background(), doc))
	assert.Equal(t, "Discharge summary", doc.Metadata["title"])
}

func TestNormalise_NoFilename(t *testing.T) {
	doc := &domain.Document{Content: "text"}

	require.NoError(t, New().Normalise(context.Background(), doc))
	assert.Nil(t, doc.Metadata)
}

func TestNormalise_NilDocument(t *testing.T) {
	err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTitleFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"simple", "notes.txt", "notes"},
		{"underscores and dashes", "lab_results-march.txt", "lab results march"},
		{"path", "inbox/2024/report.md", "report"},
		{"windows path", `C:\docs\report.md`, "report"},
		{"hidden file keeps name", ".profile", ".profile"},
		{"no extension", "README", "README"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromFilename(tt.filename))
		})
	}
}
