package flat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/vec/search"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Index is an in-memory exact inner-product index.
//
// writeMu serialises Add, Delete, Rebuild and Persist. mu guards the data:
// searches take it shared, writers take it exclusively only while applying
// an already validated change.
type Index struct {
	dim  int
	path string

	writeMu sync.Mutex
	mu      sync.RWMutex
	data    *state
}

// state is one complete index structure. Rebuild swaps in a new state.
type state struct {
	vectors        []float32
	slots          []string // slot -> chunk ID, "" when the mapping is missing
	stale          []bool   // soft-deleted slots
	chunkSlot      map[string]int64
	metadata       map[string]map[string]any
	rebuildPending bool
}

func newState(dim, capacity int) *state {
	return &state{
		vectors:   make([]float32, 0, dim*capacity),
		slots:     make([]string, 0, capacity),
		stale:     make([]bool, 0, capacity),
		chunkSlot: make(map[string]int64, capacity),
		metadata:  make(map[string]map[string]any, capacity),
	}
}

// New creates an empty index for vectors of dim dimensions.
// Snapshots are read from and written to path; an empty path keeps the
// index in memory only.
func New(dim int, path string) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("flat: %w: dimension must be positive, got %d", domain.ErrInvalidInput, dim)
	}
	return &Index{
		dim:  dim,
		path: path,
		data: newState(dim, 0),
	}, nil
}

// Dimension returns the vector size.
func (x *Index) Dimension() int {
	return x.dim
}

// Path returns the snapshot file path.
func (x *Index) Path() string {
	return x.path
}

// Add appends one vector per entry. Re-adding a chunk ID marks its previous
// slot stale. Nothing is applied when validation fails.
func (x *Index) Add(ctx context.Context, entries []domain.IndexEntry) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := x.validate(entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	x.mu.Lock()
	defer x.mu.Unlock()

	slots := make([]int64, len(entries))
	for i, e := range entries {
		slots[i] = x.data.append(e)
	}

	logger.Debug("vectors added", "count", len(entries), "total_vectors", len(x.data.slots))
	return slots, nil
}

// append adds one validated entry. Caller must hold mu.
func (s *state) append(e domain.IndexEntry) int64 {
	if old, ok := s.chunkSlot[e.ChunkID]; ok {
		s.stale[old] = true
		s.rebuildPending = true
	}

	slot := int64(len(s.slots))
	s.vectors = append(s.vectors, e.Vector...)
	s.slots = append(s.slots, e.ChunkID)
	s.stale = append(s.stale, false)
	s.chunkSlot[e.ChunkID] = slot
	s.metadata[e.ChunkID] = copyMetadata(e.Metadata)
	return slot
}

func (x *Index) validate(entries []domain.IndexEntry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.ChunkID == "" {
			return fmt.Errorf("flat: %w: entry %d has no chunk id", domain.ErrInvalidInput, i)
		}
		if _, dup := seen[e.ChunkID]; dup {
			return fmt.Errorf("flat: %w: duplicate chunk id %q", domain.ErrInvalidInput, e.ChunkID)
		}
		seen[e.ChunkID] = struct{}{}
		if len(e.Vector) != x.dim {
			return fmt.Errorf("flat: %w: chunk %q has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, e.ChunkID, len(e.Vector), x.dim)
		}
	}
	return nil
}

// Search returns up to k live hits ordered by descending inner product.
func (x *Index) Search(ctx context.Context, query []float32, k int, threshold float64) ([]driven.VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("flat: %w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), x.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	s := x.data
	hits := make([]driven.VectorHit, 0, min(k*2, len(s.slots)))
	for slot := range s.slots {
		if s.stale[slot] {
			continue
		}
		chunkID := s.slots[slot]
		if chunkID == "" {
			logger.Warn("index slot without chunk mapping", "slot", slot)
			continue
		}
		score := similarity(query, s.vectors[slot*x.dim:(slot+1)*x.dim])
		if threshold > 0 && score < threshold {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:    chunkID,
			Slot:       int64(slot),
			Similarity: score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Metadata = copyMetadata(s.metadata[hits[i].ChunkID])
	}
	return hits, nil
}

// Delete soft-deletes chunks. The vectors stay until Rebuild.
func (x *Index) Delete(ctx context.Context, chunkIDs []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	x.mu.Lock()
	defer x.mu.Unlock()

	s := x.data
	deleted := 0
	for _, id := range chunkIDs {
		slot, ok := s.chunkSlot[id]
		if !ok {
			continue
		}
		s.stale[slot] = true
		delete(s.chunkSlot, id)
		delete(s.metadata, id)
		deleted++
	}
	if deleted > 0 {
		s.rebuildPending = true
	}
	return deleted, nil
}

// ChunkIDs returns the live chunk IDs in sorted order.
func (x *Index) ChunkIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := make([]string, 0, len(x.data.chunkSlot))
	for id := range x.data.chunkSlot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Rebuild builds a fresh structure from entries and swaps it in.
// On error the current index is left untouched.
func (x *Index) Rebuild(ctx context.Context, entries []domain.IndexEntry) error {
	if err := x.validate(entries); err != nil {
		return err
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	next := newState(x.dim, len(entries))
	for i, e := range entries {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("flat: rebuild: %w", err)
			}
		}
		next.append(e)
	}

	x.mu.Lock()
	x.data = next
	x.mu.Unlock()

	logger.Info("vector index rebuilt", "total_vectors", len(entries))
	return nil
}

// Stats describes the index.
func (x *Index) Stats() domain.IndexStats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	stale := 0
	for _, st := range x.data.stale {
		if st {
			stale++
		}
	}
	return domain.IndexStats{
		TotalVectors:   len(x.data.slots),
		TotalChunks:    len(x.data.chunkSlot),
		StaleVectors:   stale,
		Dimension:      x.dim,
		IndexType:      domain.IndexTypeFlatIP,
		IsTrained:      true,
		RebuildPending: x.data.rebuildPending,
	}
}

// Close releases resources. The index holds no external handles.
func (x *Index) Close() error {
	return nil
}

// similarity is the cosine similarity of a and b.
// For the unit vectors the index stores it equals the inner product.
func similarity(a, b []float32) float64 {
	return 1 - float64(search.Float32s(a).CosineDistance(b))
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
