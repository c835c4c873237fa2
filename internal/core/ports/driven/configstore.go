package driven

import "time"

// ConfigStore is a flat key/value view over the settings file, with
// environment overrides applied. Keys are dotted ("embedding.provider").
//
// Typed getters return the zero value when a key is missing or holds a
// value of the wrong kind.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	GetInt(key string) int
	GetFloat(key string) float64
	GetBool(key string) bool

	// GetDuration accepts "30s"-style strings or a number of seconds.
	GetDuration(key string) time.Duration

	// Set updates one key and writes the file.
	Set(key string, value any) error

	// Keys lists every key, sorted.
	Keys() []string

	// Load re-reads the file from disk.
	Load() error

	Path() string
}
