// Package services holds the indexer's use cases: ingestion, the
// indexing API, search, reconciliation and health.
//
// Index mutations serialise on a shared WriteLock; searches run
// concurrently with each other and only read the index.
package services
