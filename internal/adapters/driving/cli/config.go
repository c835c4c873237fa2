package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/services"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Show or change configuration",
	Long:        `View the effective configuration or set individual keys in the config file.`,
	Annotations: map[string]string{annotationSettingsOnly: "true"},
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show effective settings",
	Annotations: map[string]string{annotationSettingsOnly: "true"},
	RunE:        runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration key",
	Long: `Writes a single key to the config file, for example:

  sercha-indexer config set embedding.provider ollama
  sercha-indexer config set search.timeout 10s

Run "sercha-indexer config keys" for the list of keys.`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{annotationSettingsOnly: "true"},
	RunE:        runConfigSet,
}

var configKeysCmd = &cobra.Command{
	Use:         "keys",
	Short:       "List configuration keys",
	Annotations: map[string]string{annotationNoServices: "true"},
	Run: func(cmd *cobra.Command, _ []string) {
		for _, key := range services.SettingKeys() {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	s, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config file: %s\n\n", settingsService.ConfigPath())

	section := func(name string, fields [][2]string) {
		fmt.Fprintf(out, "[%s]\n", name)
		printFields(cmd, fields)
		fmt.Fprintln(out)
	}

	section("Server", [][2]string{
		{"Address", s.Server.Addr()},
		{"Shutdown timeout", s.Server.ShutdownTimeout.String()},
	})
	storage := [][2]string{
		{"Backend", string(s.Storage.Backend)},
		{"Data dir", s.Storage.DataDir},
		{"Snapshot", s.SnapshotPath()},
	}
	if s.Storage.Backend == domain.StoragePostgres {
		storage = append(storage, [2]string{"Postgres DSN", maskDSN(s.Storage.PostgresDSN)})
	}
	section("Storage", storage)

	embedding := [][2]string{
		{"Provider", string(s.Embedding.Provider)},
		{"Model", s.Embedding.Model},
		{"Dimensions", strconv.Itoa(s.Embedding.Dimensions)},
		{"Batch size", strconv.Itoa(s.Embedding.BatchSize)},
		{"Batch timeout", s.Embedding.BatchTimeout.String()},
	}
	if s.Embedding.BaseURL != "" {
		embedding = append(embedding, [2]string{"Base URL", s.Embedding.BaseURL})
	}
	if s.Embedding.Provider == domain.EmbeddingProviderOpenAI {
		key := "(not set)"
		if s.Embedding.APIKey != "" {
			key = maskAPIKey(s.Embedding.APIKey)
		}
		embedding = append(embedding, [2]string{"API key", key})
	}
	section("Embedding", embedding)

	section("Chunker", [][2]string{
		{"Chunk size", strconv.Itoa(s.Chunker.ChunkSize)},
		{"Overlap", strconv.Itoa(s.Chunker.ChunkOverlap)},
		{"Min length", strconv.Itoa(s.Chunker.MinChunkLength)},
	})
	section("Search", [][2]string{
		{"Max results", strconv.Itoa(s.Search.MaxResults)},
		{"Threshold", strconv.FormatFloat(s.Search.SimilarityThreshold, 'f', -1, 64)},
		{"Timeout", s.Search.Timeout.String()},
	})
	section("Consumer", [][2]string{
		{"Enabled", strconv.FormatBool(s.Consumer.Enabled)},
		{"Max attempts", strconv.Itoa(s.Consumer.MaxAttempts)},
	})
	inbox := [][2]string{{"Enabled", strconv.FormatBool(s.Inbox.Enabled)}}
	if s.Inbox.Dir != "" {
		inbox = append(inbox, [2]string{"Dir", s.Inbox.Dir})
	}
	section("Inbox", inbox)

	if err := s.Validate(); err != nil {
		fmt.Fprintf(out, "Problems: %v\n", err)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	if err := settingsService.Set(args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], settingsService.ConfigPath())
	return nil
}

// maskAPIKey masks an API key for display.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password in a postgres URL.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	user, _, hasPassword := strings.Cut(creds, ":")
	if !hasPassword {
		return dsn
	}
	return dsn[:scheme+3] + user + ":****" + dsn[at:]
}
