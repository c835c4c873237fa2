// Package cli implements the sercha-indexer command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-indexer/internal/app"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driving"
)

// Command annotations controlling what setupServices wires.
const (
	annotationNoServices   = "no-services"
	annotationSettingsOnly = "settings-only"
)

var version = "dev"

var (
	cfgPath string
	verbose bool
)

// Services used by commands. setupServices wires them from the App unless
// they are already set.
var (
	searchService   driving.SearchService
	indexService    driving.IndexService
	reconciler      driving.Reconciler
	healthService   driving.HealthService
	settingsService driving.SettingsService

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "sercha-indexer",
	Short: "Semantic indexing and retrieval service",
	Long: `sercha-indexer chunks documents, embeds the chunks and answers
semantic search queries over them.

Run "sercha-indexer serve" for the HTTP API and ingestion consumer. The
other commands work directly on the local data directory.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setupServices,
	PersistentPostRunE: teardownServices,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.sercha-indexer/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetVersion sets the version reported by the version command and the API.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command. The App is closed even when the command fails.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if closeErr := teardownServices(rootCmd, nil); err == nil {
		err = closeErr
	}
	return err
}

func setupServices(cmd *cobra.Command, _ []string) error {
	switch {
	case cmd.Annotations[annotationNoServices] == "true", isBuiltin(cmd):
		return nil

	case cmd.Annotations[annotationSettingsOnly] == "true":
		if settingsService != nil {
			return nil
		}
		svc, err := app.OpenSettings(cfgPath)
		if err != nil {
			return err
		}
		settingsService = svc
		return nil
	}

	if searchService != nil {
		return nil
	}

	a, err := app.New(cmd.Context(), app.Options{ConfigPath: cfgPath, Verbose: verbose})
	if err != nil {
		return err
	}
	application = a
	searchService = a.Search
	indexService = a.Indexer
	reconciler = a.Reconciler
	healthService = a.Health
	settingsService = a.SettingsService
	return nil
}

// isBuiltin reports whether cmd is one of cobra's help or completion commands.
func isBuiltin(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "help" || c.Name() == "completion" {
			return true
		}
	}
	return false
}

func teardownServices(_ *cobra.Command, _ []string) error {
	if application == nil {
		return nil
	}
	err := application.Close()
	application = nil
	searchService, indexService, reconciler, healthService, settingsService = nil, nil, nil, nil, nil
	return err
}
