// Package postgres stores chunks and documents in PostgreSQL.
//
// Stored embeddings use the pgvector "vector" type so they can be inspected
// and queried with SQL, but similarity search is always served by the
// in-process vector index.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
    id            TEXT PRIMARY KEY,
    filename      TEXT NOT NULL DEFAULT '',
    file_type     TEXT NOT NULL DEFAULT '',
    content       TEXT NOT NULL DEFAULT '',
    metadata      JSONB NOT NULL DEFAULT '{}',
    status        TEXT NOT NULL DEFAULT 'pending',
    chunks_total  INTEGER NOT NULL DEFAULT 0,
    vectors_added INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    indexed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS chunks (
    id                TEXT PRIMARY KEY,
    document_id       TEXT NOT NULL,
    chunk_index       INTEGER NOT NULL,
    content           TEXT NOT NULL,
    sentences         JSONB NOT NULL DEFAULT '[]',
    overlap_sentences INTEGER NOT NULL DEFAULT 0,
    metadata          JSONB NOT NULL DEFAULT '{}',
    embedding         vector,
    embedding_model   TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (document_id, chunk_index)
);
`

// Store is a PostgreSQL-backed chunk and document store.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ driven.ChunkStore    = (*Store)(nil)
	_ driven.DocumentStore = (*Store)(nil)
)

// NewStore connects to dsn and ensures the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", domain.ErrInvalidInput)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to postgres: %w", domain.ErrStoreUnavailable, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: pinging postgres: %w", domain.ErrStoreUnavailable, err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// transact runs fn inside a transaction.
func (s *Store) transact(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// === Chunks ===

const chunkColumns = `c.id, c.document_id, c.chunk_index, c.content, c.sentences,
	c.overlap_sentences, c.metadata, c.embedding, c.embedding_model`

const upsertChunkSQL = `
	INSERT INTO chunks (id, document_id, chunk_index, content, sentences,
		overlap_sentences, metadata, embedding, embedding_model)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		content = EXCLUDED.content,
		sentences = EXCLUDED.sentences,
		overlap_sentences = EXCLUDED.overlap_sentences,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding,
		embedding_model = EXCLUDED.embedding_model`

// UpsertChunks inserts or replaces chunks.
func (s *Store) UpsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	return s.transact(ctx, func(tx pgx.Tx) error {
		return insertChunks(ctx, tx, chunks)
	})
}

// ReplaceChunks swaps the chunks of a document in one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	for i := range chunks {
		if chunks[i].DocumentID != documentID {
			return fmt.Errorf("%w: chunk %s does not belong to document %s",
				domain.ErrInvalidInput, chunks[i].ID, documentID)
		}
	}

	return s.transact(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE document_id = $1", documentID); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		return insertChunks(ctx, tx, chunks)
	})
}

func insertChunks(ctx context.Context, tx pgx.Tx, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range chunks {
		c := &chunks[i]
		sentences := c.Sentences
		if sentences == nil {
			sentences = []string{}
		}
		sentencesJSON, err := json.Marshal(sentences)
		if err != nil {
			return fmt.Errorf("failed to marshal sentences: %w", err)
		}
		metadataJSON, err := marshalMetadata(c.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(upsertChunkSQL, c.ID, c.DocumentID, c.Index, c.Content, sentencesJSON,
			c.OverlapSentences, metadataJSON, vectorParam(c.Embedding), c.EmbeddingModel)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert chunk at index %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}
	return nil
}

// ListChunks returns the chunks of a document ordered by index.
func (s *Store) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+chunkColumns+`
		FROM chunks c WHERE c.document_id = $1 ORDER BY c.chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return chunks, nil
}

// GetChunk retrieves a chunk by ID.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chunkColumns+` FROM chunks c WHERE c.id = $1`, chunkID)
	c, err := scanChunk(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return c, err
}

// DeleteChunks removes all chunks of a document.
func (s *Store) DeleteChunks(ctx context.Context, documentID string) (int, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM chunks WHERE document_id = $1", documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SetEmbeddings stores vectors for existing chunks.
func (s *Store) SetEmbeddings(ctx context.Context, model string, embeddings map[string][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}

	return s.transact(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for id, vec := range embeddings {
			batch.Queue("UPDATE chunks SET embedding = $1, embedding_model = $2 WHERE id = $3",
				vectorParam(vec), model, id)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to store embeddings: %w", err)
		}
		return nil
	})
}

// CountIndexedChunks counts chunks whose document is indexed.
func (s *Store) CountIndexedChunks(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.status = $1`, string(domain.StatusIndexed)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count indexed chunks: %w", err)
	}
	return n, nil
}

// IndexedChunkIDs returns the IDs of chunks whose document is indexed.
func (s *Store) IndexedChunkIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.status = $1 ORDER BY c.id`, string(domain.StatusIndexed))
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect chunk ids: %w", err)
	}
	return ids, nil
}

// StreamIndexedChunks calls fn for every chunk of an indexed document.
func (s *Store) StreamIndexedChunks(ctx context.Context, fn func(domain.Chunk) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkColumns+`, d.filename, d.metadata
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.status = $1
		ORDER BY c.document_id, c.chunk_index`, string(domain.StatusIndexed))
	if err != nil {
		return fmt.Errorf("failed to query indexed chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var filename string
		var docMetadataJSON []byte
		c, err := scanChunk(rows, &filename, &docMetadataJSON)
		if err != nil {
			return err
		}
		docMetadata, err := unmarshalMetadata(docMetadataJSON)
		if err != nil {
			return err
		}

		merged := make(map[string]any, len(docMetadata)+len(c.Metadata)+1)
		for k, v := range docMetadata {
			merged[k] = v
		}
		if filename != "" {
			merged["filename"] = filename
		}
		for k, v := range c.Metadata {
			merged[k] = v
		}
		c.Metadata = merged

		if err := fn(*c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate indexed chunks: %w", err)
	}
	return nil
}

// Stats describes the store.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	var stats domain.StoreStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents WHERE status != $1),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM chunks c JOIN documents d ON d.id = c.document_id WHERE d.status = $2)`,
		string(domain.StatusDeleted), string(domain.StatusIndexed),
	).Scan(&stats.TotalDocuments, &stats.TotalChunks, &stats.IndexedChunks)
	if err != nil {
		return domain.StoreStats{}, fmt.Errorf("failed to read store stats: %w", err)
	}
	return stats, nil
}

// === Documents ===

// SaveDocument stores or updates a document. CreatedAt is preserved on update.
func (s *Store) SaveDocument(ctx context.Context, doc *domain.Document) error {
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (id, filename, file_type, content, metadata, status,
			chunks_total, vectors_added, error, created_at, updated_at, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			file_type = EXCLUDED.file_type,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			status = EXCLUDED.status,
			chunks_total = EXCLUDED.chunks_total,
			vectors_added = EXCLUDED.vectors_added,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`,
		doc.ID, doc.Filename, doc.FileType, doc.Content, metadataJSON, string(doc.Status),
		doc.ChunksTotal, doc.VectorsAdded, doc.Error, doc.CreatedAt, doc.UpdatedAt, doc.IndexedAt)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// EnsureDocument creates a bare document row if none exists.
func (s *Store) EnsureDocument(ctx context.Context, id string, status domain.DocumentStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, status) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to ensure document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var metadataJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, filename, file_type, content, metadata, status,
			chunks_total, vectors_added, error, created_at, updated_at, indexed_at
		FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.Content, &metadataJSON, &status,
		&doc.ChunksTotal, &doc.VectorsAdded, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt, &doc.IndexedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	if doc.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateStatus records a status transition. Reaching StatusIndexed stamps indexed_at.
func (s *Store) UpdateStatus(ctx context.Context, id string, update domain.StatusUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET
			status = $1,
			chunks_total = $2,
			vectors_added = $3,
			error = $4,
			updated_at = now(),
			indexed_at = CASE WHEN $1 = 'indexed' THEN now() ELSE indexed_at END
		WHERE id = $5`,
		string(update.Status), update.ChunksTotal, update.VectorsAdded, update.Error, id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// === Helpers ===

func scanChunk(row pgx.Row, extra ...any) (*domain.Chunk, error) {
	var c domain.Chunk
	var sentencesJSON, metadataJSON []byte
	var embedding *pgvector.Vector

	dest := []any{&c.ID, &c.DocumentID, &c.Index, &c.Content, &sentencesJSON,
		&c.OverlapSentences, &metadataJSON, &embedding, &c.EmbeddingModel}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}

	if embedding != nil {
		c.Embedding = embedding.Slice()
	}
	if len(sentencesJSON) > 0 {
		if err := json.Unmarshal(sentencesJSON, &c.Sentences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sentences: %w", err)
		}
	}
	var err error
	if c.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
		return nil, err
	}
	return &c, nil
}

// vectorParam maps an empty embedding to NULL.
func vectorParam(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(data []byte) (map[string]any, error) {
	m := make(map[string]any)
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}
