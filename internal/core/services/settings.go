package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	KeyServerHost            = "server.host"
	KeyServerPort            = "server.port"
	KeyServerShutdownTimeout = "server.shutdown_timeout"

	KeyStorageBackend     = "storage.backend"
	KeyStorageDataDir     = "storage.data_dir"
	KeyStoragePostgresDSN = "storage.postgres_dsn"

	KeyIndexSnapshotPath = "index.snapshot_path"

	KeyEmbedProvider     = "embedding.provider"
	KeyEmbedModel        = "embedding.model"
	KeyEmbedBaseURL      = "embedding.base_url"
	KeyEmbedAPIKey       = "embedding.api_key"
	KeyEmbedDimensions   = "embedding.dimensions"
	KeyEmbedBatchSize    = "embedding.batch_size"
	KeyEmbedBatchTimeout = "embedding.batch_timeout"
	KeyEmbedRPS          = "embedding.requests_per_second"
	KeyEmbedMaxTokens    = "embedding.max_tokens"

	KeyChunkSize      = "chunker.chunk_size"
	KeyChunkOverlap   = "chunker.chunk_overlap"
	KeyMinChunkLength = "chunker.min_chunk_length"

	KeySearchMaxResults      = "search.max_results"
	KeySearchThreshold       = "search.similarity_threshold"
	KeySearchTimeout         = "search.timeout"
	KeySearchOverfetchFactor = "search.overfetch_factor"

	KeyConsumerEnabled      = "consumer.enabled"
	KeyConsumerMaxAttempts  = "consumer.max_attempts"
	KeyConsumerLeaseTimeout = "consumer.lease_timeout"
	KeyConsumerRetryDelay   = "consumer.retry_delay"
	KeyConsumerPollInterval = "consumer.poll_interval"

	KeyInboxEnabled = "inbox.enabled"
	KeyInboxDir     = "inbox.dir"

	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindBool
	kindDuration
)

// settingKinds lists every recognised key and how its value is parsed.
var settingKinds = map[string]valueKind{
	KeyServerHost:            kindString,
	KeyServerPort:            kindInt,
	KeyServerShutdownTimeout: kindDuration,
	KeyStorageBackend:        kindString,
	KeyStorageDataDir:        kindString,
	KeyStoragePostgresDSN:    kindString,
	KeyIndexSnapshotPath:     kindString,
	KeyEmbedProvider:         kindString,
	KeyEmbedModel:            kindString,
	KeyEmbedBaseURL:          kindString,
	KeyEmbedAPIKey:           kindString,
	KeyEmbedDimensions:       kindInt,
	KeyEmbedBatchSize:        kindInt,
	KeyEmbedBatchTimeout:     kindDuration,
	KeyEmbedRPS:              kindFloat,
	KeyEmbedMaxTokens:        kindInt,
	KeyChunkSize:             kindInt,
	KeyChunkOverlap:          kindInt,
	KeyMinChunkLength:        kindInt,
	KeySearchMaxResults:      kindInt,
	KeySearchThreshold:       kindFloat,
	KeySearchTimeout:         kindDuration,
	KeySearchOverfetchFactor: kindInt,
	KeyConsumerEnabled:       kindBool,
	KeyConsumerMaxAttempts:   kindInt,
	KeyConsumerLeaseTimeout:  kindDuration,
	KeyConsumerRetryDelay:    kindDuration,
	KeyConsumerPollInterval:  kindDuration,
	KeyInboxEnabled:          kindBool,
	KeyInboxDir:              kindString,
	KeyLogLevel:              kindString,
	KeyLogFormat:             kindString,
}

// SettingKeys returns every recognised configuration key, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKinds))
	for k := range settingKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingsService resolves service settings from the config store.
// Missing keys fall back to domain.DefaultSettings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current settings. The result is not validated.
func (s *SettingsService) Get() (*domain.Settings, error) {
	d := domain.DefaultSettings()

	dataDir := s.getString(KeyStorageDataDir, "")
	if dataDir == "" {
		var err error
		if dataDir, err = defaultDataDir(); err != nil {
			return nil, err
		}
	}

	settings := &domain.Settings{
		Server: domain.ServerSettings{
			Host:            s.getString(KeyServerHost, d.Server.Host),
			Port:            s.getInt(KeyServerPort, d.Server.Port),
			ShutdownTimeout: s.getDuration(KeyServerShutdownTimeout, d.Server.ShutdownTimeout),
		},
		Storage: domain.StorageSettings{
			Backend:     domain.StorageBackend(s.getString(KeyStorageBackend, string(d.Storage.Backend))),
			DataDir:     dataDir,
			PostgresDSN: s.configStore.GetString(KeyStoragePostgresDSN),
		},
		Index: domain.IndexSettings{
			SnapshotPath: s.configStore.GetString(KeyIndexSnapshotPath),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:          domain.EmbeddingProvider(s.getString(KeyEmbedProvider, string(d.Embedding.Provider))),
			Model:             s.getString(KeyEmbedModel, d.Embedding.Model),
			BaseURL:           s.configStore.GetString(KeyEmbedBaseURL), // empty means the provider default
			APIKey:            s.configStore.GetString(KeyEmbedAPIKey),
			Dimensions:        s.getInt(KeyEmbedDimensions, d.Embedding.Dimensions),
			BatchSize:         s.getInt(KeyEmbedBatchSize, d.Embedding.BatchSize),
			BatchTimeout:      s.getDuration(KeyEmbedBatchTimeout, d.Embedding.BatchTimeout),
			RequestsPerSecond: s.getFloat(KeyEmbedRPS, d.Embedding.RequestsPerSecond),
			MaxTokens:         s.getInt(KeyEmbedMaxTokens, d.Embedding.MaxTokens),
		},
		Chunker: domain.ChunkerSettings{
			ChunkSize:      s.getInt(KeyChunkSize, d.Chunker.ChunkSize),
			ChunkOverlap:   s.getInt(KeyChunkOverlap, d.Chunker.ChunkOverlap),
			MinChunkLength: s.getInt(KeyMinChunkLength, d.Chunker.MinChunkLength),
		},
		Search: domain.SearchSettings{
			MaxResults:          s.getInt(KeySearchMaxResults, d.Search.MaxResults),
			SimilarityThreshold: s.getFloat(KeySearchThreshold, d.Search.SimilarityThreshold),
			Timeout:             s.getDuration(KeySearchTimeout, d.Search.Timeout),
			OverfetchFactor:     s.getInt(KeySearchOverfetchFactor, d.Search.OverfetchFactor),
		},
		Consumer: domain.ConsumerSettings{
			Enabled:      s.getBool(KeyConsumerEnabled, d.Consumer.Enabled),
			MaxAttempts:  s.getInt(KeyConsumerMaxAttempts, d.Consumer.MaxAttempts),
			LeaseTimeout: s.getDuration(KeyConsumerLeaseTimeout, d.Consumer.LeaseTimeout),
			RetryDelay:   s.getDuration(KeyConsumerRetryDelay, d.Consumer.RetryDelay),
			PollInterval: s.getDuration(KeyConsumerPollInterval, d.Consumer.PollInterval),
		},
		Inbox: domain.InboxSettings{
			Enabled: s.getBool(KeyInboxEnabled, d.Inbox.Enabled),
			Dir:     s.configStore.GetString(KeyInboxDir),
		},
		Log: domain.LogSettings{
			Level:  s.getString(KeyLogLevel, d.Log.Level),
			Format: s.getString(KeyLogFormat, d.Log.Format),
		},
	}

	return settings, nil
}

// Set parses value according to the key's type and stores it.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKinds[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	value = strings.TrimSpace(value)
	var typed any
	switch kind {
	case kindString:
		typed = value
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s expects an integer: %q", domain.ErrInvalidInput, key, value)
		}
		typed = n
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s expects a number: %q", domain.ErrInvalidInput, key, value)
		}
		typed = f
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s expects true or false: %q", domain.ErrInvalidInput, key, value)
		}
		typed = b
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %s expects a duration like 30s: %q", domain.ErrInvalidInput, key, value)
		}
		typed = d.String()
	}

	if err := s.configStore.Set(key, typed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// ConfigPath returns where settings are persisted.
func (s *SettingsService) ConfigPath() string {
	return s.configStore.Path()
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".sercha-indexer", "data"), nil
}

// Helper methods for reading config with defaults.
// A key that is present always wins, even when it holds a zero value.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	if d := s.configStore.GetDuration(key); d > 0 {
		return d
	}
	return defaultVal
}
