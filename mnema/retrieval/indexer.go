package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/mnema-labs/mnema/mnema/config"
)

// Indexer chunks attached documents and writes them to the store and both
// indexes. All writes run under one exclusive writer so a document is
// either fully indexed in every backend or absent from all of them.
type Indexer struct {
	config   *config.RetrievalConfig
	embedder Embedder
	dense    DenseIndex
	lexical  LexicalIndex
	store    DocumentStore
	logger   zerolog.Logger
	writeMu  chan struct{} // exclusive writer token
}

// NewIndexer creates a document indexer.
func NewIndexer(cfg *config.RetrievalConfig, embedder Embedder, dense DenseIndex, lexical LexicalIndex, store DocumentStore, logger zerolog.Logger) *Indexer {
	writeMu := make(chan struct{}, 1)
	writeMu <- struct{}{}
	return &Indexer{
		config:   cfg,
		embedder: embedder,
		dense:    dense,
		lexical:  lexical,
		store:    store,
		logger:   logger.With().Str("component", "indexer").Logger(),
		writeMu:  writeMu,
	}
}

// IndexDocument reads a file from disk and indexes it.
func (ix *Indexer) IndexDocument(ctx context.Context, path string, trust float64) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", path, err)
	}
	return ix.IndexText(ctx, string(data), path, trust)
}

// IndexText chunks and indexes raw text under the given source name. It
// returns the new parent document id.
func (ix *Indexer) IndexText(ctx context.Context, text, sourceName string, trust float64) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("document %s is empty", sourceName)
	}
	if trust <= 0 {
		trust = 1.0
	}

	docID := uuid.NewString()
	now := time.Now()
	pieces := chunkText(text, ix.config.ChunkSize, ix.config.ChunkOverlap)

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("failed to embed document %s: %w", sourceName, err)
	}

	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{
			ChunkID:      uuid.NewString(),
			ParentID:     docID,
			Seq:          i,
			Text:         p.text,
			SourceFile:   sourceName,
			SectionLabel: p.section,
			Embedding:    vectors[i],
			TokenCount:   (len(p.text) + 3) / 4,
		}
	}

	parent := ParentDocument{
		DocID:            docID,
		SourceFile:       sourceName,
		Title:            documentTitle(text, sourceName),
		FullText:         text,
		TrustWeight:      trust,
		IndexedAt:        now,
		LastReferencedAt: now,
	}

	if err := ix.withWriteLock(ctx, func() error {
		return ix.writeAll(ctx, parent, chunks)
	}); err != nil {
		return "", err
	}

	ix.logger.Info().Str("doc", docID).Str("source", sourceName).
		Int("chunks", len(chunks)).Msg("document indexed")
	return docID, nil
}

// RemoveDocument deletes a parent and its chunks from the store and both
// indexes under the exclusive writer.
func (ix *Indexer) RemoveDocument(ctx context.Context, docID string) error {
	return ix.withWriteLock(ctx, func() error {
		if err := ix.retryWrite(ctx, func() error { return ix.store.DeleteParent(ctx, docID) }); err != nil {
			return err
		}
		if err := ix.dense.Delete(ctx, docID); err != nil {
			return err
		}
		return ix.lexical.Delete(ctx, docID)
	})
}

// RemoveBySource deletes every document indexed from sourceName.
func (ix *Indexer) RemoveBySource(ctx context.Context, sourceName string) error {
	parents, err := ix.store.ListParents(ctx)
	if err != nil {
		return err
	}
	for _, p := range parents {
		if p.SourceFile != sourceName {
			continue
		}
		if err := ix.RemoveDocument(ctx, p.DocID); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) writeAll(ctx context.Context, parent ParentDocument, chunks []Chunk) error {
	if err := ix.retryWrite(ctx, func() error { return ix.store.AddParent(ctx, parent, chunks) }); err != nil {
		return err
	}
	if err := ix.retryWrite(ctx, func() error { return ix.dense.Index(ctx, chunks) }); err != nil {
		// roll back so no backend holds a half-indexed document
		_ = ix.store.DeleteParent(ctx, parent.DocID)
		return err
	}
	if err := ix.retryWrite(ctx, func() error { return ix.lexical.Index(ctx, chunks) }); err != nil {
		_ = ix.dense.Delete(ctx, parent.DocID)
		_ = ix.store.DeleteParent(ctx, parent.DocID)
		return err
	}
	return nil
}

// retryWrite retries conflicted writes with bounded exponential backoff
// before surfacing the conflict to the caller.
func (ix *Indexer) retryWrite(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(uint64(ix.config.WriteRetries),
		retry.NewExponential(ix.config.WriteRetryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}
		if isWriteConflict(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (ix *Indexer) withWriteLock(ctx context.Context, fn func() error) error {
	select {
	case <-ix.writeMu:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { ix.writeMu <- struct{}{} }()
	return fn()
}

func isWriteConflict(err error) bool {
	return errors.Is(err, ErrIndexWriteConflict)
}

type piece struct {
	text    string
	section string
}

// chunkText splits text on paragraph boundaries into chunks of roughly
// chunkSize characters with overlap carried between neighbors. Markdown
// headings become the section label of everything under them.
func chunkText(text string, chunkSize, overlap int) []piece {
	if chunkSize <= 0 {
		chunkSize = 1200
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	paragraphs := strings.Split(text, "\n\n")
	var pieces []piece
	var current strings.Builder
	section := ""

	flush := func() {
		body := strings.TrimSpace(current.String())
		if body != "" {
			pieces = append(pieces, piece{text: body, section: section})
		}
		current.Reset()
	}

	for _, para := range paragraphs {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			continue
		}
		if heading, ok := headingOf(trimmed); ok {
			flush()
			section = heading
		}
		if current.Len() > 0 && current.Len()+len(trimmed) > chunkSize {
			prev := current.String()
			flush()
			if overlap > 0 && len(prev) > overlap {
				current.WriteString(strings.TrimSpace(prev[len(prev)-overlap:]))
				current.WriteString("\n\n")
			}
		}
		current.WriteString(trimmed)
		current.WriteString("\n\n")
	}
	flush()

	if len(pieces) == 0 {
		pieces = append(pieces, piece{text: strings.TrimSpace(text), section: section})
	}
	return pieces
}

func headingOf(para string) (string, bool) {
	firstLine := para
	if idx := strings.IndexByte(para, '\n'); idx >= 0 {
		firstLine = para[:idx]
	}
	if strings.HasPrefix(firstLine, "#") {
		return strings.TrimSpace(strings.TrimLeft(firstLine, "# ")), true
	}
	return "", false
}

func documentTitle(text, sourceName string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if title, ok := headingOf(line); ok {
			return title
		}
		break
	}
	base := filepath.Base(sourceName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
