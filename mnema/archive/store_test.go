package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "sessions.jsonl"), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func sampleRecord(id string, started time.Time) SessionRecord {
	return SessionRecord{
		SessionID:   id,
		StartedAt:   started,
		EndedAt:     started.Add(10 * time.Minute),
		ModelsUsed:  []string{"local-gguf"},
		SummaryXML:  "<ContextSummary></ContextSummary>",
		TokenCount:  1234,
		DriftEvents: 1,
		Waypoints:   []WaypointRecord{{Index: 3, CreatedAt: started.Add(time.Minute)}},
		Messages: []ArchivedMessage{
			{Role: "user", Text: "hello", CreatedAt: started},
			{Role: "assistant", Text: "hi there", CreatedAt: started.Add(time.Second)},
		},
	}
}

func TestSaveAndGetSession(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord("s-1", time.Now().UTC().Truncate(time.Second))

	require.NoError(t, s.SaveSession(rec))

	got, ok, err := s.GetSession("s-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.TokenCount, got.TokenCount)
	assert.Equal(t, rec.Waypoints, got.Waypoints)
	assert.Len(t, got.Messages, 2)
}

func TestSaveSessionUpserts(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord("s-1", time.Now().UTC())
	require.NoError(t, s.SaveSession(rec))

	rec.TokenCount = 9999
	require.NoError(t, s.SaveSession(rec))

	got, ok, err := s.GetSession("s-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 9999, got.TokenCount)

	recent, err := s.RecentSessions(0, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestSaveSessionRequiresID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.SaveSession(SessionRecord{}))
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.SaveSession(sampleRecord(id, base.Add(time.Duration(i)*time.Hour))))
	}

	recent, err := s.RecentSessions(2, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].SessionID)
	assert.Equal(t, "mid", recent[1].SessionID)

	page, err := s.RecentSessions(2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "old", page[0].SessionID)
}

func TestSearchSessions(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()
	early := sampleRecord("early", base.Add(-48*time.Hour))
	late := sampleRecord("late", base)
	late.ModelsUsed = []string{"other-model"}
	require.NoError(t, s.SaveSession(early))
	require.NoError(t, s.SaveSession(late))

	byModel, err := s.SearchSessions("local-gguf", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, byModel, 1)
	assert.Equal(t, "early", byModel[0].SessionID)

	byTime, err := s.SearchSessions("", base.Add(-time.Hour), time.Time{})
	require.NoError(t, err)
	require.Len(t, byTime, 1)
	assert.Equal(t, "late", byTime[0].SessionID)
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveSession(sampleRecord("s-1", time.Now())))

	deleted, err := s.DeleteSession("s-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteSession("s-1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, ok, err := s.GetSession("s-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatistics(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()
	require.NoError(t, s.SaveSession(sampleRecord("a", base)))
	require.NoError(t, s.SaveSession(sampleRecord("b", base.Add(time.Hour))))

	stats, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 2468, stats.TotalTokens)
	assert.Equal(t, 2, stats.TotalDriftEvents)
	assert.Equal(t, 2, stats.ModelsUsed["local-gguf"])
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.jsonl")
	s, err := NewStore(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(sampleRecord("good", time.Now())))

	// Corrupt the file with a torn line
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(raw, []byte("{not json\n")...), 0o644))

	recent, err := s.RecentSessions(0, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "good", recent[0].SessionID)
}

func TestArchiveIsOneRecordPerLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.jsonl")
	s, err := NewStore(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(sampleRecord("a", time.Now())))
	require.NoError(t, s.SaveSession(sampleRecord("b", time.Now())))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	assert.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, `{"session_id"`))
	}
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "sessions.jsonl"), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(sampleRecord("a", time.Now())))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
}
