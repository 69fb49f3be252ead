package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexTestChunks(t *testing.T, idx LexicalIndex) {
	t.Helper()
	err := idx.Index(context.Background(), []Chunk{
		{ChunkID: "c1", ParentID: "d1", Text: "the sync service writes checkpoints to disk"},
		{ChunkID: "c2", ParentID: "d1", Text: "restart the sync service after error 0x8007"},
		{ChunkID: "c3", ParentID: "d2", Text: "gardening notes tulips and crocus in spring"},
	})
	require.NoError(t, err)
}

func TestMemoryLexicalQueryRanksByRelevance(t *testing.T) {
	idx := NewMemoryLexicalIndex()
	indexTestChunks(t, idx)

	hits, err := idx.Query(context.Background(), "sync service error", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	// c2 matches all three terms including the rare one
	assert.Equal(t, "c2", hits[0].ChunkID)
	for _, h := range hits {
		assert.NotEqual(t, "c3", h.ChunkID)
	}
}

func TestMemoryLexicalExactTokenMatch(t *testing.T) {
	idx := NewMemoryLexicalIndex()
	indexTestChunks(t, idx)

	hits, err := idx.Query(context.Background(), "0x8007", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].ChunkID)
}

func TestMemoryLexicalDeleteTombstones(t *testing.T) {
	idx := NewMemoryLexicalIndex()
	indexTestChunks(t, idx)

	require.NoError(t, idx.Delete(context.Background(), "d1"))

	hits, err := idx.Query(context.Background(), "sync service", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Query(context.Background(), "tulips", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c3", hits[0].ChunkID)
}

func TestMemoryLexicalEmptyQuery(t *testing.T) {
	idx := NewMemoryLexicalIndex()
	indexTestChunks(t, idx)

	hits, err := idx.Query(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryLexicalRespectsK(t *testing.T) {
	idx := NewMemoryLexicalIndex()
	indexTestChunks(t, idx)

	hits, err := idx.Query(context.Background(), "the sync service", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestMemoryLexicalClosedIndexErrors(t *testing.T) {
	idx := NewMemoryLexicalIndex()
	require.NoError(t, idx.Close())

	_, err := idx.Query(context.Background(), "anything", 5)
	assert.Error(t, err)
	assert.Error(t, idx.Index(context.Background(), []Chunk{{ChunkID: "c", Text: "x"}}))
}
