package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a
// private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every new connection would get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		technical_level INTEGER NOT NULL DEFAULT 0,
		confidential INTEGER NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT '',
		topics TEXT,
		extra TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		chunk_type TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
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
		total_terms INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

const documentColumns = `id, title, source, content, category, technical_level, confidential,
	content_type, topics, extra, created_at, updated_at`

const chunkColumns = `id, document_id, chunk_index, chunk_type, text, embedding, metadata, created_at`

// SaveDocument upserts doc and replaces its chunks in one transaction.
func (s *SQLiteStorage) SaveDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, source = excluded.source, content = excluded.content,
			category = excluded.category, technical_level = excluded.technical_level,
			confidential = excluded.confidential, content_type = excluded.content_type,
			topics = excluded.topics, extra = excluded.extra, updated_at = excluded.updated_at`,
		doc.ID, doc.Title, doc.Source, doc.Content, doc.Category, doc.TechnicalLevel, doc.Confidential,
		doc.ContentType, topics, extra, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ch := range chunks {
		meta, err := marshalJSON(ch.Metadata)
		if err != nil {
			return err
		}
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.DocumentID, ch.Index, string(ch.Type), ch.Text,
			EncodeVector(ch.Embedding), meta, ch.CreatedAt); err != nil {
			return fmt.Errorf("failed to store chunk %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var topics, extra sql.NullString
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Source, &doc.Content, &doc.Category, &doc.TechnicalLevel,
		&doc.Confidential, &doc.ContentType, &topics, &extra, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(topics.String, &doc.Topics); err != nil {
		return nil, fmt.Errorf("document %s topics: %w", doc.ID, err)
	}
	if err := unmarshalJSON(extra.String, &doc.Extra); err != nil {
		return nil, fmt.Errorf("document %s extra: %w", doc.ID, err)
	}
	return &doc, nil
}

func scanChunk(row rowScanner) (*models.Chunk, error) {
	var ch models.Chunk
	var typ string
	var blob []byte
	var meta sql.NullString
	if err := row.Scan(&ch.ID, &ch.DocumentID, &ch.Index, &typ, &ch.Text, &blob, &meta, &ch.CreatedAt); err != nil {
		return nil, err
	}
	ch.Type = models.ChunkType(typ)
	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", ch.ID, err)
	}
	ch.Embedding = vec
	if err := unmarshalJSON(meta.String, &ch.Metadata); err != nil {
		return nil, fmt.Errorf("chunk %s metadata: %w", ch.ID, err)
	}
	return &ch, nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return doc, err
}

// DeleteDocument removes a document and its chunks.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return tx.Commit()
}

// ListDocuments returns documents with offset and limit, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
}

// ListChunks pages through all chunks ordered by id.
func (s *SQLiteStorage) ListChunks(ctx context.Context, afterID string, limit int) ([]*models.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
}

func (s *SQLiteStorage) queryChunks(ctx context.Context, query string, args ...any) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// SaveStatistics replaces the persisted corpus statistics.
func (s *SQLiteStorage) SaveStatistics(ctx context.Context, stats *models.CorpusStatistics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM corpus_terms`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO corpus_terms (term, tf, df) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for term, df := range stats.DocumentFrequency {
		if _, err := stmt.ExecContext(ctx, term, stats.TermFrequency[term], df); err != nil {
			return fmt.Errorf("store term %q: %w", term, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO corpus_meta (id, total_docs, total_terms, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET total_docs = excluded.total_docs,
			total_terms = excluded.total_terms, updated_at = excluded.updated_at`,
		stats.TotalDocs, stats.TotalTerms, stats.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadStatistics returns the persisted corpus statistics, or nil if none.
func (s *SQLiteStorage) LoadStatistics(ctx context.Context) (*models.CorpusStatistics, error) {
	stats := &models.CorpusStatistics{
		TermFrequency:     map[string]int{},
		DocumentFrequency: map[string]int{},
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT total_docs, total_terms, updated_at FROM corpus_meta WHERE id = 1`,
	).Scan(&stats.TotalDocs, &stats.TotalTerms, &stats.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT term, tf, df FROM corpus_terms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var term string
		var tf, df int
		if err := rows.Scan(&term, &tf, &df); err != nil {
			return nil, err
		}
		stats.TermFrequency[term] = tf
		stats.DocumentFrequency[term] = df
	}
	return stats, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
