// Package sqlite provides the default persistent storage for the indexer.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. A single database file backs three driven ports:
//
//   - ChunkStore: chunk persistence, the source of truth for index rebuilds
//   - DocumentStore: submitted documents and their indexing status
//   - IndexQueue: a durable, lease-based queue of index events
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-indexer/data/indexer.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. SQLite runs in WAL mode so
// readers are not blocked by the single writer.
package sqlite
