package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryDocumentStore implements DocumentStore in memory. Used for tests
// and for running without a persistent database.
type MemoryDocumentStore struct {
	mu      sync.RWMutex
	parents map[string]*ParentDocument
	chunks  map[string]*Chunk
}

// NewMemoryDocumentStore creates an empty in-memory document store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		parents: make(map[string]*ParentDocument),
		chunks:  make(map[string]*Chunk),
	}
}

func (s *MemoryDocumentStore) AddParent(ctx context.Context, parent ParentDocument, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.parents[parent.DocID]; exists {
		return fmt.Errorf("document %s already indexed: %w", parent.DocID, ErrIndexWriteConflict)
	}
	p := parent
	p.ChunkIDs = make([]string, 0, len(chunks))
	for _, c := range chunks {
		cc := c
		cc.ParentID = parent.DocID
		s.chunks[c.ChunkID] = &cc
		p.ChunkIDs = append(p.ChunkIDs, c.ChunkID)
	}
	s.parents[parent.DocID] = &p
	return nil
}

func (s *MemoryDocumentStore) GetParent(ctx context.Context, chunkID string) (*ParentDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[chunkID]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	p, ok := s.parents[c.ParentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", c.ParentID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryDocumentStore) GetParentByID(ctx context.Context, docID string) (*ParentDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parents[docID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryDocumentStore) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[chunkID]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	cc := *c
	return &cc, nil
}

func (s *MemoryDocumentStore) DeleteParent(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parents[docID]
	if !ok {
		return fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	for _, chunkID := range p.ChunkIDs {
		delete(s.chunks, chunkID)
	}
	delete(s.parents, docID)
	return nil
}

func (s *MemoryDocumentStore) Touch(ctx context.Context, docID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parents[docID]
	if !ok {
		return fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	p.LastReferencedAt = at
	return nil
}

func (s *MemoryDocumentStore) ListParents(ctx context.Context) ([]ParentDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parents := make([]ParentDocument, 0, len(s.parents))
	for _, p := range s.parents {
		parents = append(parents, *p)
	}
	sort.Slice(parents, func(i, j int) bool {
		return parents[i].IndexedAt.Before(parents[j].IndexedAt)
	})
	return parents, nil
}

func (s *MemoryDocumentStore) Close() error { return nil }
