package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	reconcileForce bool
	reconcileJSON  bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check the vector index against the chunk store",
	Long: `Compares the chunk store with the vector index and rebuilds the index
when they differ. Stored embeddings are reused when they match the current
model; the rest are regenerated. --force rebuilds unconditionally, which also
compacts soft-deleted vectors.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVarP(&reconcileForce, "force", "f", false, "rebuild even when consistent")
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	if reconciler == nil {
		return errors.New("reconciler not configured")
	}

	report, err := reconciler.Reconcile(cmd.Context(), reconcileForce)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	if reconcileJSON {
		return printJSON(cmd, report)
	}

	fields := [][2]string{
		{"Status", report.Status},
		{"Chunk store", strconv.Itoa(report.ChunkStoreCount)},
		{"Index", strconv.Itoa(report.IndexCount)},
	}
	if report.Rebuilt {
		fields = append(fields,
			[2]string{"Reason", report.Reason},
			[2]string{"Documents", strconv.Itoa(report.Documents)},
			[2]string{"Reused", strconv.Itoa(report.ReusedEmbeddings)},
			[2]string{"Regenerated", strconv.Itoa(report.RegeneratedEmbeddings)},
		)
	}
	fields = append(fields, [2]string{"Duration", fmt.Sprintf("%dms", report.DurationMs)})
	printFields(cmd, fields)
	return nil
}
