package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// BM25 parameters, standard Robertson values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// MemoryLexicalIndex implements LexicalIndex with an in-memory inverted
// index. Postings are roaring bitmaps over internal chunk ids; scoring is
// BM25. It is the default lexical backend and the test fixture.
type MemoryLexicalIndex struct {
	mu sync.RWMutex

	postings map[string]*roaring.Bitmap // term -> internal ids
	chunkIDs []string                   // internal id -> chunk id
	termFreq []map[string]int           // internal id -> term -> count
	lengths  []int                      // internal id -> token count
	alive    *roaring.Bitmap            // ids not tombstoned by deletion
	byDoc    map[string][]uint32        // docID -> internal ids
	closed   bool
}

// NewMemoryLexicalIndex creates an empty in-memory lexical index.
func NewMemoryLexicalIndex() *MemoryLexicalIndex {
	return &MemoryLexicalIndex{
		postings: make(map[string]*roaring.Bitmap),
		alive:    roaring.New(),
		byDoc:    make(map[string][]uint32),
	}
}

// Index adds chunks to the inverted index.
func (m *MemoryLexicalIndex) Index(ctx context.Context, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("lexical index is closed")
	}

	for _, c := range chunks {
		terms := Tokenize(c.Text)
		id := uint32(len(m.chunkIDs))

		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		for t := range freq {
			bm, ok := m.postings[t]
			if !ok {
				bm = roaring.New()
				m.postings[t] = bm
			}
			bm.Add(id)
		}

		m.chunkIDs = append(m.chunkIDs, c.ChunkID)
		m.termFreq = append(m.termFreq, freq)
		m.lengths = append(m.lengths, len(terms))
		m.alive.Add(id)
		m.byDoc[c.ParentID] = append(m.byDoc[c.ParentID], id)
	}
	return nil
}

// Query scores the matching chunks with BM25 and returns the top k.
func (m *MemoryLexicalIndex) Query(ctx context.Context, query string, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(terms))
	unique := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}

	n := float64(m.alive.GetCardinality())
	if n == 0 {
		return nil, nil
	}
	var totalLen float64
	it := m.alive.Iterator()
	for it.HasNext() {
		totalLen += float64(m.lengths[it.Next()])
	}
	avgLen := totalLen / n

	// Union of postings gives the candidate set
	candidates := roaring.New()
	for _, t := range unique {
		if bm, ok := m.postings[t]; ok {
			candidates.Or(bm)
		}
	}
	candidates.And(m.alive)

	scores := make(map[uint32]float64, candidates.GetCardinality())
	for _, t := range unique {
		bm, ok := m.postings[t]
		if !ok {
			continue
		}
		matched := roaring.And(bm, m.alive)
		df := float64(matched.GetCardinality())
		if df == 0 {
			continue
		}
		idf := math.Log(1.0 + (n-df+0.5)/(df+0.5))

		mit := matched.Iterator()
		for mit.HasNext() {
			id := mit.Next()
			tf := float64(m.termFreq[id][t])
			docLen := float64(m.lengths[id])
			norm := tf * (bm25K1 + 1.0) / (tf + bm25K1*(1.0-bm25B+bm25B*docLen/avgLen))
			scores[id] += idf * norm
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, Hit{ChunkID: m.chunkIDs[id], Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete tombstones every chunk of docID.
func (m *MemoryLexicalIndex) Delete(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("lexical index is closed")
	}
	for _, id := range m.byDoc[docID] {
		m.alive.Remove(id)
	}
	delete(m.byDoc, docID)
	return nil
}

// Close releases the index tables.
func (m *MemoryLexicalIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postings = nil
	m.chunkIDs = nil
	m.termFreq = nil
	m.closed = true
	return nil
}
