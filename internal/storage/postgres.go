package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperjump/kotae/internal/models"
)

// PostgresStorage implements Storage on a pgx connection pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to dsn and creates the schema if needed.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	technical_level INTEGER NOT NULL DEFAULT 0,
	confidential BOOLEAN NOT NULL DEFAULT FALSE,
	content_type TEXT NOT NULL DEFAULT '',
	topics JSONB,
	extra JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	chunk_type TEXT NOT NULL,
	text TEXT NOT NULL,
	embedding BYTEA,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document_chunk ON chunks(document_id, chunk_index);

CREATE TABLE IF NOT EXISTS corpus_terms (
	term TEXT PRIMARY KEY,
	tf INTEGER NOT NULL,
	df INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS corpus_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	total_docs INTEGER NOT NULL,
	total_terms BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

// SaveDocument upserts doc and replaces its chunks in one transaction.
func (s *PostgresStorage) SaveDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	topics, err := marshalJSON(doc.Topics)
	if err != nil {
		return err
	}
	extra, err := marshalJSON(doc.Extra)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx save document: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11, $12)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title, source = EXCLUDED.source, content = EXCLUDED.content,
  category = EXCLUDED.category, technical_level = EXCLUDED.technical_level,
  confidential = EXCLUDED.confidential, content_type = EXCLUDED.content_type,
  topics = EXCLUDED.topics, extra = EXCLUDED.extra, updated_at = EXCLUDED.updated_at`,
		doc.ID, doc.Title, doc.Source, doc.Content, doc.Category, doc.TechnicalLevel, doc.Confidential,
		doc.ContentType, topics, extra, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("clear chunks %s: %w", doc.ID, err)
	}

	batch := &pgx.Batch{}
	for _, ch := range chunks {
		meta, err := marshalJSON(ch.Metadata)
		if err != nil {
			return err
		}
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = now
		}
		batch.Queue(`INSERT INTO chunks (`+chunkColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
			ch.ID, ch.DocumentID, ch.Index, string(ch.Type), ch.Text, EncodeVector(ch.Embedding), meta, ch.CreatedAt)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunks %s: %w", doc.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save document: %w", err)
	}
	return nil
}

func scanPgDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	var topics, extra []byte
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Source, &doc.Content, &doc.Category, &doc.TechnicalLevel,
		&doc.Confidential, &doc.ContentType, &topics, &extra, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(string(topics), &doc.Topics); err != nil {
		return nil, fmt.Errorf("document %s topics: %w", doc.ID, err)
	}
	if err := unmarshalJSON(string(extra), &doc.Extra); err != nil {
		return nil, fmt.Errorf("document %s extra: %w", doc.ID, err)
	}
	return &doc, nil
}

func scanPgChunk(row pgx.Row) (*models.Chunk, error) {
	var ch models.Chunk
	var typ string
	var blob, meta []byte
	if err := row.Scan(&ch.ID, &ch.DocumentID, &ch.Index, &typ, &ch.Text, &blob, &meta, &ch.CreatedAt); err != nil {
		return nil, err
	}
	ch.Type = models.ChunkType(typ)
	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", ch.ID, err)
	}
	ch.Embedding = vec
	if err := unmarshalJSON(string(meta), &ch.Metadata); err != nil {
		return nil, fmt.Errorf("chunk %s metadata: %w", ch.ID, err)
	}
	return &ch, nil
}

// GetDocument returns a document by ID.
func (s *PostgresStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanPgDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// DeleteDocument removes a document; its chunks cascade.
func (s *PostgresStorage) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return nil
}

// ListDocuments returns documents with offset and limit, newest first.
func (s *PostgresStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var docs []*models.Document
	for rows.Next() {
		doc, err := scanPgDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *PostgresStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = $1 ORDER BY chunk_index ASC`, docID)
}

// ListChunks pages through all chunks ordered by id.
func (s *PostgresStorage) ListChunks(ctx context.Context, afterID string, limit int) ([]*models.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
}

func (s *PostgresStorage) queryChunks(ctx context.Context, query string, args ...any) ([]*models.Chunk, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()
	var chunks []*models.Chunk
	for rows.Next() {
		ch, err := scanPgChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// CountDocuments returns the total number of documents.
func (s *PostgresStorage) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// CountChunks returns the total number of chunks.
func (s *PostgresStorage) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// SaveStatistics replaces the persisted corpus statistics.
func (s *PostgresStorage) SaveStatistics(ctx context.Context, stats *models.CorpusStatistics) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx save statistics: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM corpus_terms`); err != nil {
		return fmt.Errorf("clear corpus terms: %w", err)
	}
	rows := make([][]any, 0, len(stats.DocumentFrequency))
	for term, df := range stats.DocumentFrequency {
		rows = append(rows, []any{term, stats.TermFrequency[term], df})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"corpus_terms"}, []string{"term", "tf", "df"},
		pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy corpus terms: %w", err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO corpus_meta (id, total_docs, total_terms, updated_at) VALUES (1, $1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
  total_docs = EXCLUDED.total_docs, total_terms = EXCLUDED.total_terms, updated_at = EXCLUDED.updated_at`,
		stats.TotalDocs, stats.TotalTerms, stats.UpdatedAt); err != nil {
		return fmt.Errorf("upsert corpus meta: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save statistics: %w", err)
	}
	return nil
}

// LoadStatistics returns the persisted corpus statistics, or nil if none.
func (s *PostgresStorage) LoadStatistics(ctx context.Context) (*models.CorpusStatistics, error) {
	stats := &models.CorpusStatistics{
		TermFrequency:     map[string]int{},
		DocumentFrequency: map[string]int{},
	}
	err := s.pool.QueryRow(ctx,
		`SELECT total_docs, total_terms, updated_at FROM corpus_meta WHERE id = 1`,
	).Scan(&stats.TotalDocs, &stats.TotalTerms, &stats.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load corpus meta: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT term, tf, df FROM corpus_terms`)
	if err != nil {
		return nil, fmt.Errorf("load corpus terms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var term string
		var tf, df int
		if err := rows.Scan(&term, &tf, &df); err != nil {
			return nil, fmt.Errorf("scan corpus term: %w", err)
		}
		stats.TermFrequency[term] = tf
		stats.DocumentFrequency[term] = df
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corpus terms: %w", err)
	}
	return stats, nil
}

// Close closes the pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
