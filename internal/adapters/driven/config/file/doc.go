// Package file provides the file-based configuration store.
//
// Configuration lives in a TOML file (~/.sercha-indexer/config.toml by
// default). Nested tables are exposed as dot-notation keys. Environment
// variables named SERCHA_INDEXER_<KEY> override file values, with dots
// replaced by underscores and upper-cased; a .env file next to the config
// or in the working directory is loaded first.
package file
