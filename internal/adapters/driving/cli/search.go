package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

var (
	searchLimit     int
	searchThreshold float64
	searchType      string
	searchPatient   string
	searchDocs      []string
	searchFrom      string
	searchTo        string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Embeds the query and returns the most similar chunks from the vector index.
Results can be narrowed by document type, patient, document ids and date range.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", domain.DefaultSearchLimit, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity score (0-1)")
	searchCmd.Flags().StringVar(&searchType, "type", "", "only return chunks of this document type")
	searchCmd.Flags().StringVar(&searchPatient, "patient", "", "only return chunks for this patient id")
	searchCmd.Flags().StringSliceVar(&searchDocs, "document", nil, "only return chunks from these document ids")
	searchCmd.Flags().StringVar(&searchFrom, "from", "", "earliest document date (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchTo, "to", "", "latest document date (YYYY-MM-DD)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	req := domain.SearchRequest{
		Query:     args[0],
		Limit:     searchLimit,
		Threshold: searchThreshold,
		Filters: domain.SearchFilters{
			DocumentType: searchType,
			PatientID:    searchPatient,
			DocumentIDs:  searchDocs,
		},
	}
	var err error
	if req.Filters.DateFrom, err = parseDateFlag(searchFrom); err != nil {
		return err
	}
	if req.Filters.DateTo, err = parseDateFlag(searchTo); err != nil {
		return err
	}

	resp, err := searchService.Search(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, resp)
	}
	return outputSearchTable(cmd, resp)
}

func outputSearchTable(cmd *cobra.Command, resp *domain.SearchResponse) error {
	if len(resp.Results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
		return nil
	}

	rows := make([][]string, len(resp.Results))
	for i, r := range resp.Results {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(r.Score, 'f', 4, 64),
			r.ChunkID,
			truncate(strings.Join(strings.Fields(r.Content), " "), 72),
		}
	}
	printTable(cmd, []string{"#", "Score", "Chunk", "Content"}, rows)
	fmt.Fprintf(cmd.OutOrStdout(), "%d results in %dms\n", resp.TotalResults, resp.ExecutionTimeMs)
	return nil
}

func parseDateFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
