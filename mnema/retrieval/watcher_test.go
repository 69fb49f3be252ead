package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T) (*Watcher, DocumentStore, string) {
	t.Helper()
	ix, store, _, _ := newTestIndexer(t)
	dir := t.TempDir()
	w := NewWatcher(dir, ix, zerolog.Nop())
	return w, store, dir
}

func parentsBySource(t *testing.T, store DocumentStore, source string) []ParentDocument {
	t.Helper()
	all, err := store.ListParents(context.Background())
	require.NoError(t, err)
	var out []ParentDocument
	for _, p := range all {
		if p.SourceFile == source {
			out = append(out, p)
		}
	}
	return out
}

func TestWatcherIndexesExistingFiles(t *testing.T) {
	w, store, dir := newTestWatcher(t)
	path := filepath.Join(dir, "preexisting.txt")
	require.NoError(t, os.WriteFile(path, []byte("already here before the watch"), 0o644))

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Len(t, parentsBySource(t, store, path), 1)
}

func TestWatcherIndexesDroppedFile(t *testing.T) {
	w, store, dir := newTestWatcher(t)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "dropped.md")
	require.NoError(t, os.WriteFile(path, []byte("fresh drop into the attach dir"), 0o644))

	require.Eventually(t, func() bool {
		return len(parentsBySource(t, store, path)) == 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcherRemovesDeletedFile(t *testing.T) {
	w, store, dir := newTestWatcher(t)
	path := filepath.Join(dir, "temp.txt")
	require.NoError(t, os.WriteFile(path, []byte("soon to be removed"), 0o644))

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	require.Len(t, parentsBySource(t, store, path), 1)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		return len(parentsBySource(t, store, path)) == 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcherReplacesChangedFile(t *testing.T) {
	w, store, dir := newTestWatcher(t)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("first version"), 0o644))
	require.Eventually(t, func() bool {
		return len(parentsBySource(t, store, path)) == 1
	}, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("second version, rather longer than before"), 0o644))
	require.Eventually(t, func() bool {
		parents := parentsBySource(t, store, path)
		return len(parents) == 1 && parents[0].FullText == "second version, rather longer than before"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcherHonorsIgnoreRules(t *testing.T) {
	w, store, dir := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ignoreFileName), []byte("*.log\n"), 0o644))

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	ignored := filepath.Join(dir, "debug.log")
	kept := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(ignored, []byte("log line noise"), 0o644))
	require.NoError(t, os.WriteFile(kept, []byte("useful notes content"), 0o644))

	require.Eventually(t, func() bool {
		return len(parentsBySource(t, store, kept)) == 1
	}, 3*time.Second, 50*time.Millisecond)
	assert.Empty(t, parentsBySource(t, store, ignored))
}

func TestWatcherStopEndsLoop(t *testing.T) {
	w, _, _ := newTestWatcher(t)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}
