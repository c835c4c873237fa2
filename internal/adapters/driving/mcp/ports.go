package mcp

import (
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driving"
)

// Ports aggregates the driving ports used by the MCP server.
type Ports struct {
	// Search provides semantic search and index statistics.
	Search driving.SearchService

	// Index reports per-document indexing state. Optional.
	Index driving.IndexService

	// Reconciler repairs drift between the chunk store and the index. Optional.
	Reconciler driving.Reconciler
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
