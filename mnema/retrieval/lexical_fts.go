package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// FTSLexicalIndex implements LexicalIndex using SQLite FTS5 in the embedded
// libsql database. Selected with lexical_index "fts5"; unlike the in-memory
// backend it survives restarts.
type FTSLexicalIndex struct {
	db *sql.DB
}

// NewFTSLexicalIndex creates an FTS5-backed lexical index over db.
func NewFTSLexicalIndex(db *sql.DB) *FTSLexicalIndex {
	return &FTSLexicalIndex{db: db}
}

// Index inserts chunk text into the FTS5 table.
func (l *FTSLexicalIndex) Index(ctx context.Context, chunks []Chunk) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin FTS5 insert: %w", err)
	}
	defer tx.Rollback()

	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks_fts (chunk_id, doc_id, text) VALUES (?, ?, ?)`,
			c.ChunkID, c.ParentID, c.Text,
		); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit FTS5 insert: %w", err)
	}
	return nil
}

// Query performs BM25 search using FTS5.
func (l *FTSLexicalIndex) Query(ctx context.Context, query string, k int) ([]Hit, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	ftsQuery := buildFTS5Query(query)
	if ftsQuery == "" {
		return nil, nil
	}

	// bm25() returns lower-is-better; negate so higher is better
	sqlQuery := `
		SELECT chunk_id, -bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score DESC, chunk_id ASC
		LIMIT ?
	`

	rows, err := l.db.QueryContext(ctx, sqlQuery, ftsQuery, k)
	if err != nil {
		return nil, fmt.Errorf("FTS5 search query failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.Score); err != nil {
			return nil, fmt.Errorf("failed to scan FTS5 result: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating FTS5 results: %w", err)
	}
	return hits, nil
}

// Delete removes every chunk of docID from the FTS5 table.
func (l *FTSLexicalIndex) Delete(ctx context.Context, docID string) error {
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE doc_id = ?`, docID,
	); err != nil {
		return fmt.Errorf("failed to delete doc %s from FTS5: %w", docID, err)
	}
	return nil
}

// Close cleans up resources. The shared connection is owned by the caller.
func (l *FTSLexicalIndex) Close() error {
	return nil
}

// buildFTS5Query turns free text into an OR query of quoted terms so FTS5
// operator syntax in user input cannot break the match expression.
func buildFTS5Query(query string) string {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = fmt.Sprintf("\"%s\"", strings.ReplaceAll(t, "\"", "\"\""))
	}
	return strings.Join(quoted, " OR ")
}
