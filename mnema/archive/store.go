// Package archive persists completed conversation sessions. Records live in
// a JSONL file (one session per line) rewritten atomically on every save, so
// a crash never leaves a torn archive.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ArchivedMessage is one turn kept in the durable record. Summarization
// compresses the live window only; the archive keeps everything.
type ArchivedMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// WaypointRecord is a user-marked anchor preserved with the session.
type WaypointRecord struct {
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRecord is one completed session.
type SessionRecord struct {
	SessionID          string            `json:"session_id"`
	StartedAt          time.Time         `json:"started_at"`
	EndedAt            time.Time         `json:"ended_at"`
	ModelsUsed         []string          `json:"models_used"`
	SummaryXML         string            `json:"summary_xml"`
	TokenCount         int               `json:"token_count"`
	DriftEvents        int               `json:"drift_events"`
	Waypoints          []WaypointRecord  `json:"waypoints"`
	ArtifactsGenerated []string          `json:"artifacts_generated"`
	Messages           []ArchivedMessage `json:"messages"`
}

// Stats aggregates the stored sessions.
type Stats struct {
	TotalSessions    int
	TotalTokens      int
	TotalDriftEvents int
	ModelsUsed       map[string]int
}

// Store manages the JSONL session archive. Single-writer: all mutation
// happens under the mutex and goes through an atomic rewrite.
type Store struct {
	mu     sync.Mutex
	path   string
	logger zerolog.Logger
}

// NewStore opens (or creates the directory for) the archive at path.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "archive").Logger(),
	}, nil
}

// SaveSession upserts a session record. An existing record with the same
// SessionID is replaced, otherwise the record is appended.
func (s *Store) SaveSession(record SessionRecord) error {
	if record.SessionID == "" {
		return fmt.Errorf("archive: session id required")
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadLocked()
	if err != nil {
		return err
	}

	replaced := false
	for i := range sessions {
		if sessions[i].SessionID == record.SessionID {
			sessions[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, record)
	}

	if err := s.writeLocked(sessions); err != nil {
		return err
	}
	s.logger.Debug().Str("session_id", record.SessionID).Bool("replaced", replaced).
		Int("tokens", record.TokenCount).Msg("session archived")
	return nil
}

// GetSession returns the record with the given id, or false.
func (s *Store) GetSession(sessionID string) (SessionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadLocked()
	if err != nil {
		return SessionRecord{}, false, err
	}
	for _, rec := range sessions {
		if rec.SessionID == sessionID {
			return rec, true, nil
		}
	}
	return SessionRecord{}, false, nil
}

// RecentSessions lists sessions newest first with pagination.
func (s *Store) RecentSessions(limit, offset int) ([]SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	if offset >= len(sessions) {
		return nil, nil
	}
	sessions = sessions[offset:]
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// SearchSessions filters by model and time bounds. Zero-valued bounds are
// ignored.
func (s *Store) SearchSessions(model string, after, before time.Time) ([]SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	var out []SessionRecord
	for _, rec := range sessions {
		if model != "" && !containsString(rec.ModelsUsed, model) {
			continue
		}
		if !after.IsZero() && rec.StartedAt.Before(after) {
			continue
		}
		if !before.IsZero() && rec.StartedAt.After(before) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteSession removes a record. Returns false when no record matched.
func (s *Store) DeleteSession(sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadLocked()
	if err != nil {
		return false, err
	}

	kept := sessions[:0]
	for _, rec := range sessions {
		if rec.SessionID != sessionID {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(sessions) {
		return false, nil
	}
	if err := s.writeLocked(kept); err != nil {
		return false, err
	}
	return true, nil
}

// Statistics aggregates across all stored sessions.
func (s *Store) Statistics() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadLocked()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ModelsUsed: make(map[string]int)}
	for _, rec := range sessions {
		stats.TotalSessions++
		stats.TotalTokens += rec.TokenCount
		stats.TotalDriftEvents += rec.DriftEvents
		for _, m := range rec.ModelsUsed {
			stats.ModelsUsed[m]++
		}
	}
	return stats, nil
}

func (s *Store) loadLocked() ([]SessionRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var sessions []SessionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec SessionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			// Skip torn lines instead of losing the whole archive
			s.logger.Warn().Int("line", line).Err(err).Msg("skipping malformed archive line")
			continue
		}
		sessions = append(sessions, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return sessions, nil
}

// writeLocked rewrites the whole file through a temp file and rename.
func (s *Store) writeLocked(sessions []SessionRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".archive-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := json.NewEncoder(tmp)
	for _, rec := range sessions {
		if err := enc.Encode(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode session: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace archive: %w", err)
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
