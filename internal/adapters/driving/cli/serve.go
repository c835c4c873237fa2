package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-indexer/internal/app"
)

var (
	serveAddr  string
	serveNoMCP bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and ingestion consumer",
	Long: `Reconciles the vector index with the chunk store, then serves the HTTP
API, consumes queued documents and, when enabled, watches the inbox directory.
The MCP server is mounted at /mcp unless --no-mcp is set.

Stop with Ctrl-C: intake stops first, the document being ingested is
finished, then the index snapshot is written.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from [server] host and port)")
	serveCmd.Flags().BoolVar(&serveNoMCP, "no-mcp", false, "do not mount the MCP endpoint")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if application == nil {
		return errors.New("serve requires a configured application")
	}
	return application.Serve(cmd.Context(), app.ServeOptions{
		Version: version,
		Addr:    serveAddr,
		MCP:     !serveNoMCP,
	})
}
