package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index, model and search configuration",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the embedding provider, vector index and chunk store",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	healthCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	stats, err := searchService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	if statsJSON {
		return printJSON(cmd, stats)
	}

	vs, em, sc := stats.VectorStore, stats.EmbeddingModel, stats.SearchConfig
	printFields(cmd, [][2]string{
		{"Index type", vs.IndexType},
		{"Dimension", strconv.Itoa(vs.Dimension)},
		{"Chunks", strconv.Itoa(vs.TotalChunks)},
		{"Vectors", fmt.Sprintf("%d (%d stale)", vs.TotalVectors, vs.StaleVectors)},
		{"Rebuild pending", strconv.FormatBool(vs.RebuildPending)},
		{"Model", fmt.Sprintf("%s (%s)", em.Name, em.Status)},
		{"Batch size", strconv.Itoa(em.BatchSize)},
		{"Max results", strconv.Itoa(sc.MaxResults)},
		{"Threshold", strconv.FormatFloat(sc.SimilarityThreshold, 'f', -1, 64)},
		{"Timeout", fmt.Sprintf("%gs", sc.SearchTimeout)},
	})
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	if healthService == nil {
		return errors.New("health service not configured")
	}

	report := healthService.Health(cmd.Context())
	if statsJSON {
		return printJSON(cmd, report)
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, len(names))
	for i, name := range names {
		check := report.Checks[name]
		rows[i] = []string{name, check.Status, check.Message}
	}
	printTable(cmd, []string{"Check", "Status", "Message"}, rows)
	fmt.Fprintf(cmd.OutOrStdout(), "Overall: %s\n", report.Status)
	return nil
}
