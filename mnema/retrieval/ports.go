// Package retrieval implements the hybrid dense + lexical retrieval core:
// capability interfaces for the two indexes, the document store, rank
// fusion, and the fusion engine that runs every user turn.
package retrieval

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRetrievalUnavailable means both indexes failed for a query. The
	// caller continues the conversation without retrieval context.
	ErrRetrievalUnavailable = errors.New("retrieval: all indexes unavailable")

	// ErrIndexWriteConflict means a write raced the exclusive writer. Writes
	// are retried with bounded backoff before this surfaces.
	ErrIndexWriteConflict = errors.New("retrieval: index write conflict")

	// ErrNotFound means the requested document or chunk is not indexed.
	ErrNotFound = errors.New("retrieval: not found")
)

// Chunk is one indexed slice of a parent document. Immutable after indexing.
type Chunk struct {
	ChunkID      string
	ParentID     string
	Seq          int
	Text         string
	SourceFile   string
	SectionLabel string
	Embedding    []float64
	TokenCount   int
}

// ParentDocument is the full attached document a chunk belongs to.
type ParentDocument struct {
	DocID            string
	SourceFile       string
	Title            string
	FullText         string
	TrustWeight      float64
	IndexedAt        time.Time
	LastReferencedAt time.Time
	ChunkIDs         []string
}

// Result is one fused retrieval hit. Ephemeral: built per query, handed to
// the prompt assembler, never stored.
type Result struct {
	ChunkID         string
	ParentID        string
	Text            string
	SourceFile      string
	SectionLabel    string
	SimilarityScore float64
	KeywordScore    float64
	FusedScore      float64
	RecencyWeight   float64
	TrustWeight     float64
	ParentContext   string
}

// ResultSet carries the fused results plus the degraded flag set when one
// index was down and the other answered alone.
type ResultSet struct {
	Results  []Result
	Degraded bool
}

// Hit is a raw per-index match before fusion.
type Hit struct {
	ChunkID string
	Score   float64
}

// Embedder converts text into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Dimension() int
}

// DenseIndex answers nearest-neighbor queries over chunk embeddings.
type DenseIndex interface {
	Index(ctx context.Context, chunks []Chunk) error
	Query(ctx context.Context, vector []float64, k int) ([]Hit, error)
	Delete(ctx context.Context, docID string) error
	Close() error
}

// LexicalIndex answers keyword queries over chunk text.
type LexicalIndex interface {
	Index(ctx context.Context, chunks []Chunk) error
	Query(ctx context.Context, query string, k int) ([]Hit, error)
	Delete(ctx context.Context, docID string) error
	Close() error
}

// DocumentStore resolves chunks back to their parent documents and tracks
// per-parent reference recency.
type DocumentStore interface {
	AddParent(ctx context.Context, parent ParentDocument, chunks []Chunk) error
	GetParent(ctx context.Context, chunkID string) (*ParentDocument, error)
	GetParentByID(ctx context.Context, docID string) (*ParentDocument, error)
	GetChunk(ctx context.Context, chunkID string) (*Chunk, error)
	DeleteParent(ctx context.Context, docID string) error
	Touch(ctx context.Context, docID string, at time.Time) error
	ListParents(ctx context.Context) ([]ParentDocument, error)
	Close() error
}
