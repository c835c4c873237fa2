package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/sercha-indexer/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
)

// DatabaseFile is the name of the database inside the data directory.
const DatabaseFile = "indexer.db"

// Store is a unified SQLite-based storage that provides access to
// the chunk, document and queue ports through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.sercha-indexer/data/indexer.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".sercha-indexer", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// WAL lets search reads proceed while the consumer writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(context.Background(), migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection. Safe to call more than once.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ChunkStore returns a ChunkStore interface backed by this store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{store: s}
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// ==================== Chunk Store ====================

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

const chunkColumns = `c.id, c.document_id, c.chunk_index, c.content, c.sentences,
	c.overlap_sentences, c.metadata, c.embedding, c.embedding_model`

const upsertChunkSQL = `
	INSERT INTO chunks (id, document_id, chunk_index, content, sentences,
		overlap_sentences, metadata, embedding, embedding_model, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		content = excluded.content,
		sentences = excluded.sentences,
		overlap_sentences = excluded.overlap_sentences,
		metadata = excluded.metadata,
		embedding = excluded.embedding,
		embedding_model = excluded.embedding_model
`

// UpsertChunks inserts or replaces chunks.
func (s *chunkStore) UpsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ReplaceChunks deletes the chunks of a document and inserts the new set in one transaction.
func (s *chunkStore) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	for i := range chunks {
		if chunks[i].DocumentID != documentID {
			return fmt.Errorf("%w: chunk %s does not belong to document %s",
				domain.ErrInvalidInput, chunks[i].ID, documentID)
		}
	}

	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, upsertChunkSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range chunks {
		c := &chunks[i]
		sentencesJSON, err := json.Marshal(nonNilStrings(c.Sentences))
		if err != nil {
			return fmt.Errorf("marshalling sentences: %w", err)
		}
		metadataJSON, err := marshalMetadata(c.Metadata)
		if err != nil {
			return err
		}

		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Index, c.Content,
			string(sentencesJSON), c.OverlapSentences, metadataJSON,
			float32SliceToBytes(c.Embedding), c.EmbeddingModel, now); err != nil {
			return fmt.Errorf("saving chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// ListChunks returns the chunks of a document ordered by index.
func (s *chunkStore) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks c WHERE c.document_id = ?
		ORDER BY c.chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *chunkStore) GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks c WHERE c.id = ?
	`, chunkID)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// DeleteChunks removes all chunks of a document.
func (s *chunkStore) DeleteChunks(ctx context.Context, documentID string) (int, error) {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted chunks: %w", err)
	}
	return int(n), nil
}

// SetEmbeddings stores vectors for existing chunks.
func (s *chunkStore) SetEmbeddings(ctx context.Context, model string, embeddings map[string][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "UPDATE chunks SET embedding = ?, embedding_model = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for id, vec := range embeddings {
		if _, err := stmt.ExecContext(ctx, float32SliceToBytes(vec), model, id); err != nil {
			return fmt.Errorf("saving embedding for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CountIndexedChunks counts chunks whose document is indexed.
func (s *chunkStore) CountIndexedChunks(ctx context.Context) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = ?
	`, domain.StatusIndexed).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting indexed chunks: %w", err)
	}
	return n, nil
}

// IndexedChunkIDs returns the IDs of chunks whose document is indexed.
func (s *chunkStore) IndexedChunkIDs(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = ?
		ORDER BY c.id
	`, domain.StatusIndexed)
	if err != nil {
		return nil, fmt.Errorf("querying chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk ids: %w", err)
	}
	return ids, nil
}

// StreamIndexedChunks calls fn for every chunk of an indexed document.
func (s *chunkStore) StreamIndexedChunks(ctx context.Context, fn func(domain.Chunk) error) error {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`, d.filename, d.metadata
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = ?
		ORDER BY c.document_id, c.chunk_index
	`, domain.StatusIndexed)
	if err != nil {
		return fmt.Errorf("querying indexed chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var filename, docMetadataJSON string
		chunk, err := scanChunk(rows, &filename, &docMetadataJSON)
		if err != nil {
			return err
		}

		docMetadata, err := unmarshalMetadata(docMetadataJSON)
		if err != nil {
			return err
		}
		chunk.Metadata = mergeDocumentMetadata(docMetadata, filename, chunk.Metadata)

		if err := fn(*chunk); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating indexed chunks: %w", err)
	}
	return nil
}

// Stats describes the store.
func (s *chunkStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	var stats domain.StoreStats
	err := s.store.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents WHERE status != ?),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM chunks c JOIN documents d ON d.id = c.document_id WHERE d.status = ?)
	`, domain.StatusDeleted, domain.StatusIndexed).Scan(&stats.TotalDocuments, &stats.TotalChunks, &stats.IndexedChunks)
	if err != nil {
		return domain.StoreStats{}, fmt.Errorf("reading store stats: %w", err)
	}
	return stats, nil
}

// Ping checks the database is reachable.
func (s *chunkStore) Ping(ctx context.Context) error {
	if err := s.store.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the underlying store.
func (s *chunkStore) Close() error {
	return s.store.Close()
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, filename, file_type, content, metadata, status,
	chunks_total, vectors_added, error, created_at, updated_at, indexed_at`

// SaveDocument stores or updates a document. CreatedAt is preserved on update.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = domain.StatusPending
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			file_type = excluded.file_type,
			content = excluded.content,
			metadata = excluded.metadata,
			status = excluded.status,
			chunks_total = excluded.chunks_total,
			vectors_added = excluded.vectors_added,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Filename, doc.FileType, doc.Content, metadataJSON, string(doc.Status),
		doc.ChunksTotal, doc.VectorsAdded, doc.Error, doc.CreatedAt, doc.UpdatedAt, nullTime(doc.IndexedAt))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// EnsureDocument creates a bare document row if none exists.
func (s *documentStore) EnsureDocument(ctx context.Context, id string, status domain.DocumentStatus) error {
	now := time.Now().UTC()
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, string(status), now, now)
	if err != nil {
		return fmt.Errorf("ensuring document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)

	var doc domain.Document
	var status, metadataJSON string
	var indexedAt sql.NullTime
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.Content, &metadataJSON, &status,
		&doc.ChunksTotal, &doc.VectorsAdded, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt, &indexedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	if indexedAt.Valid {
		t := indexedAt.Time
		doc.IndexedAt = &t
	}

	metadata, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	doc.Metadata = metadata

	return &doc, nil
}

// UpdateStatus records a status transition. Reaching StatusIndexed stamps indexed_at.
func (s *documentStore) UpdateStatus(ctx context.Context, id string, update domain.StatusUpdate) error {
	now := time.Now().UTC()
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET
			status = ?,
			chunks_total = ?,
			vectors_added = ?,
			error = ?,
			updated_at = ?,
			indexed_at = CASE WHEN ? THEN ? ELSE indexed_at END
		WHERE id = ?
	`, string(update.Status), update.ChunksTotal, update.VectorsAdded, update.Error, now,
		update.Status == domain.StatusIndexed, now, id)
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ==================== Helper Functions ====================

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk scans the chunkColumns followed by any extra destinations.
func scanChunk(row rowScanner, extra ...any) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var sentencesJSON, metadataJSON string
	var embeddingBlob []byte

	dest := []any{&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Content, &sentencesJSON,
		&chunk.OverlapSentences, &metadataJSON, &embeddingBlob, &chunk.EmbeddingModel}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.Embedding = bytesToFloat32Slice(embeddingBlob)

	if sentencesJSON != "" {
		if err := json.Unmarshal([]byte(sentencesJSON), &chunk.Sentences); err != nil {
			return nil, fmt.Errorf("unmarshaling sentences: %w", err)
		}
	}

	metadata, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	chunk.Metadata = metadata

	return &chunk, nil
}

// mergeDocumentMetadata layers chunk metadata over document metadata.
func mergeDocumentMetadata(doc map[string]any, filename string, chunk map[string]any) map[string]any {
	merged := make(map[string]any, len(doc)+len(chunk)+1)
	for k, v := range doc {
		merged[k] = v
	}
	if filename != "" {
		merged["filename"] = filename
	}
	for k, v := range chunk {
		merged[k] = v
	}
	return merged
}

func marshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(s string) (map[string]any, error) {
	m := make(map[string]any)
	if s == "" || s == "null" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return m, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// nullTime converts an optional time to a nullable column value.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
