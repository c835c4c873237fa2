package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

var (
	submitID       string
	submitMetadata string
	submitType     string
	documentJSON   bool
)

var submitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Queue a text file for indexing",
	Long: `Stores the file content as a pending document and queues it for the
ingestion consumer. Use "-" to read from stdin. Chunking and embedding happen
when "sercha-indexer serve" picks the document up.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Show the indexing state of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Remove a document from the index",
	Long: `Deletes the document's chunks from the chunk store and soft-deletes its
vectors. The index is compacted on the next reconcile.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	submitCmd.Flags().StringVar(&submitID, "id", "", "document id (default: generated)")
	submitCmd.Flags().StringVar(&submitType, "type", "", "document_type metadata value")
	submitCmd.Flags().StringVar(&submitMetadata, "metadata", "", `extra metadata as a JSON object, e.g. '{"patient_id":"p1"}'`)
	for _, c := range []*cobra.Command{submitCmd, statusCmd, deleteCmd} {
		c.Flags().BoolVar(&documentJSON, "json", false, "output as JSON")
		rootCmd.AddCommand(c)
	}
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	var (
		content []byte
		err     error
	)
	path := args[0]
	if path == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	metadata := map[string]any{}
	if submitMetadata != "" {
		if err := json.Unmarshal([]byte(submitMetadata), &metadata); err != nil {
			return fmt.Errorf("%w: --metadata must be a JSON object: %v", domain.ErrInvalidInput, err)
		}
	}
	if submitType != "" {
		metadata["document_type"] = submitType
	}

	doc := &domain.Document{
		ID:       submitID,
		Content:  string(content),
		Metadata: metadata,
	}
	if path != "-" {
		doc.Filename = filepath.Base(path)
		doc.FileType = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	if err := indexService.SubmitDocument(cmd.Context(), doc); err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	if documentJSON {
		return printJSON(cmd, map[string]string{"document_id": doc.ID, "status": doc.Status.String()})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (%d characters)\n", doc.ID, len([]rune(doc.Content)))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	status, err := indexService.Status(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}
	if documentJSON {
		return printJSON(cmd, status)
	}

	fields := [][2]string{
		{"Document", status.DocumentID},
		{"Status", status.Status},
		{"Chunks", fmt.Sprintf("%d/%d", status.ChunksProcessed, status.ChunksTotal)},
		{"Vectors", strconv.Itoa(status.VectorsAdded)},
	}
	if status.ErrorMessage != "" {
		fields = append(fields, [2]string{"Error", status.ErrorMessage})
	}
	if status.UpdatedAt != nil {
		fields = append(fields, [2]string{"Updated", status.UpdatedAt.Local().Format(time.DateTime)})
	}
	printFields(cmd, fields)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	resp, err := indexService.Delete(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	if err := indexService.Flush(cmd.Context()); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}

	if documentJSON {
		return printJSON(cmd, resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s: %d chunks, %d vectors\n",
		resp.DocumentID, resp.ChunksDeleted, resp.VectorsDeleted)
	return nil
}
