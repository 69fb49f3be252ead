package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteDocumentStore implements DocumentStore over the embedded libsql
// database. Parents and chunks are written in one transaction so a chunk
// can never exist without its parent.
type SQLiteDocumentStore struct {
	db *sql.DB
}

// NewSQLiteDocumentStore creates a document store over db. The schema is
// managed by the goose migrations in the db package.
func NewSQLiteDocumentStore(db *sql.DB) *SQLiteDocumentStore {
	return &SQLiteDocumentStore{db: db}
}

// AddParent stores the parent document and its chunks transactionally.
func (s *SQLiteDocumentStore) AddParent(ctx context.Context, parent ParentDocument, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapWriteErr("begin add parent", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO parent_documents (doc_id, source_file, title, full_text, trust_weight, indexed_at, last_referenced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, parent.DocID, parent.SourceFile, parent.Title, parent.FullText, parent.TrustWeight,
		parent.IndexedAt.UTC(), parent.LastReferencedAt.UTC())
	if err != nil {
		return wrapWriteErr("insert parent", err)
	}

	for _, c := range chunks {
		embedding, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding for chunk %s: %w", c.ChunkID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (chunk_id, doc_id, seq, text, section_label, token_count, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.ChunkID, parent.DocID, c.Seq, c.Text, c.SectionLabel, c.TokenCount, string(embedding))
		if err != nil {
			return wrapWriteErr("insert chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapWriteErr("commit add parent", err)
	}
	return nil
}

// GetParent resolves a chunk to its parent document.
func (s *SQLiteDocumentStore) GetParent(ctx context.Context, chunkID string) (*ParentDocument, error) {
	var docID string
	err := s.db.QueryRowContext(ctx, `SELECT doc_id FROM chunks WHERE chunk_id = ?`, chunkID).Scan(&docID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chunk %s: %w", chunkID, err)
	}
	return s.GetParentByID(ctx, docID)
}

// GetParentByID loads a parent document and its chunk ids.
func (s *SQLiteDocumentStore) GetParentByID(ctx context.Context, docID string) (*ParentDocument, error) {
	var p ParentDocument
	err := s.db.QueryRowContext(ctx, `
		SELECT doc_id, source_file, title, full_text, trust_weight, indexed_at, last_referenced_at
		FROM parent_documents WHERE doc_id = ?
	`, docID).Scan(&p.DocID, &p.SourceFile, &p.Title, &p.FullText, &p.TrustWeight, &p.IndexedAt, &p.LastReferencedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", docID, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunks WHERE doc_id = ? ORDER BY seq`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk ids for %s: %w", docID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		p.ChunkIDs = append(p.ChunkIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetChunk loads a single chunk.
func (s *SQLiteDocumentStore) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	var c Chunk
	var embedding sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT c.chunk_id, c.doc_id, c.seq, c.text, c.section_label, c.token_count, c.embedding, p.source_file
		FROM chunks c JOIN parent_documents p ON c.doc_id = p.doc_id
		WHERE c.chunk_id = ?
	`, chunkID).Scan(&c.ChunkID, &c.ParentID, &c.Seq, &c.Text, &c.SectionLabel, &c.TokenCount, &embedding, &c.SourceFile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk %s: %w", chunkID, err)
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &c.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for chunk %s: %w", chunkID, err)
		}
	}
	return &c, nil
}

// DeleteParent removes the parent row; chunks follow via ON DELETE CASCADE.
func (s *SQLiteDocumentStore) DeleteParent(ctx context.Context, docID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM parent_documents WHERE doc_id = ?`, docID)
	if err != nil {
		return wrapWriteErr("delete parent", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	return nil
}

// Touch records that docID was surfaced in a retrieval result.
func (s *SQLiteDocumentStore) Touch(ctx context.Context, docID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE parent_documents SET last_referenced_at = ? WHERE doc_id = ?`, at.UTC(), docID)
	if err != nil {
		return wrapWriteErr("touch parent", err)
	}
	return nil
}

// ListParents returns every indexed parent document without chunk ids.
func (s *SQLiteDocumentStore) ListParents(ctx context.Context) ([]ParentDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, source_file, title, full_text, trust_weight, indexed_at, last_referenced_at
		FROM parent_documents ORDER BY indexed_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var parents []ParentDocument
	for rows.Next() {
		var p ParentDocument
		if err := rows.Scan(&p.DocID, &p.SourceFile, &p.Title, &p.FullText, &p.TrustWeight, &p.IndexedAt, &p.LastReferencedAt); err != nil {
			return nil, err
		}
		parents = append(parents, p)
	}
	return parents, rows.Err()
}

// Close is a no-op; the shared connection is owned by the caller.
func (s *SQLiteDocumentStore) Close() error { return nil }

// wrapWriteErr maps SQLite busy/locked failures onto ErrIndexWriteConflict
// so callers can retry them with backoff.
func wrapWriteErr(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%s: %w: %v", op, ErrIndexWriteConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
