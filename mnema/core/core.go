// Package core assembles the full system: indexes, fusion engine, context
// manager, summarization, prompt assembly, and the session archive, wired
// from one configuration.
package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mnema-labs/mnema/mnema/archive"
	"github.com/mnema-labs/mnema/mnema/config"
	"github.com/mnema-labs/mnema/mnema/conversation"
	"github.com/mnema-labs/mnema/mnema/db"
	"github.com/mnema-labs/mnema/mnema/prompt"
	"github.com/mnema-labs/mnema/mnema/provider"
	"github.com/mnema-labs/mnema/mnema/retrieval"
	"github.com/mnema-labs/mnema/mnema/summarize"
	"github.com/mnema-labs/mnema/mnema/tokens"
)

// Options configures a Core. Config and Provider are required; the rest
// default from configuration and exist as seams for tests and embedders.
type Options struct {
	Config   *config.Config
	Provider provider.Provider
	Logger   zerolog.Logger

	// Optional overrides
	DB            *sql.DB
	Embedder      retrieval.Embedder
	DenseIndex    retrieval.DenseIndex
	LexicalIndex  retrieval.LexicalIndex
	DocumentStore retrieval.DocumentStore
}

// TurnResult is what one user turn produces: the assembled prompt plus the
// retrieval set it was built from.
type TurnResult struct {
	TurnIndex int
	Prompt    string
	Retrieval *retrieval.ResultSet
	Intent    conversation.IntentSignal
}

// Core is the one-session entry point. A Core owns its conversation state
// from construction to Close, which archives the session.
type Core struct {
	cfg    *config.Config
	logger zerolog.Logger

	provider  provider.Provider
	embedder  retrieval.Embedder
	engine    *retrieval.Engine
	indexer   *retrieval.Indexer
	watcher   *retrieval.Watcher
	blacklist *retrieval.Blacklist

	acct    *tokens.Accountant
	intent  *conversation.IntentTracker
	drift   *conversation.DriftDetector
	manager *conversation.ContextManager

	assembler *prompt.Assembler

	archiveStore *archive.Store
	sessionIndex *archive.SessionIndex
	artifacts    *archive.ArtifactGenerator

	sql    *sql.DB
	ownsDB bool

	mu        sync.Mutex
	closed    bool
	sessionID string
	startedAt time.Time
	waypoints []archive.WaypointRecord
}

// New wires a Core from options. The database is opened only when a
// component needs it (sqlite-backed store, FTS5 lexical index, or the
// session index) and none was supplied.
func New(ctx context.Context, opts Options) (*Core, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("core: config is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("core: provider is required")
	}
	cfg := opts.Config
	logger := opts.Logger.With().Str("component", "core").Logger()

	c := &Core{
		cfg:       cfg,
		logger:    logger,
		provider:  opts.Provider,
		sql:       opts.DB,
		sessionID: uuid.NewString(),
		startedAt: time.Now(),
	}

	needsDB := opts.DocumentStore == nil || cfg.Retrieval.LexicalIndex == "fts5"
	if c.sql == nil && needsDB {
		conn, err := db.Connect(cfg.Core.Database.DSN, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("core: %w", err)
		}
		if err := db.Migrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("core: %w", err)
		}
		c.sql = conn
		c.ownsDB = true
	}

	c.embedder = opts.Embedder
	if c.embedder == nil {
		embedder, err := retrieval.NewEmbedder(&cfg.Embedding)
		if err != nil {
			c.closePartial()
			return nil, fmt.Errorf("core: %w", err)
		}
		c.embedder = embedder
	}

	dense := opts.DenseIndex
	if dense == nil {
		var err error
		dense, err = retrieval.NewDenseIndex(&cfg.Retrieval, c.embedder.Dimension())
		if err != nil {
			c.closePartial()
			return nil, fmt.Errorf("core: %w", err)
		}
	}

	lexical := opts.LexicalIndex
	if lexical == nil {
		var err error
		lexical, err = retrieval.NewLexicalIndexBackend(&cfg.Retrieval, c.sql)
		if err != nil {
			c.closePartial()
			return nil, fmt.Errorf("core: %w", err)
		}
	}

	store := opts.DocumentStore
	if store == nil {
		store = retrieval.NewSQLiteDocumentStore(c.sql)
	}

	c.blacklist = retrieval.NewBlacklist()
	c.engine = retrieval.NewEngine(&cfg.Retrieval, c.embedder, dense, lexical, store, c.blacklist, opts.Logger)
	c.indexer = retrieval.NewIndexer(&cfg.Retrieval, c.embedder, dense, lexical, store, opts.Logger)

	if cfg.Core.WatchAttach {
		c.watcher = retrieval.NewWatcher(cfg.Core.AttachDir, c.indexer, opts.Logger)
		if err := c.watcher.Start(ctx); err != nil {
			c.closePartial()
			return nil, fmt.Errorf("core: %w", err)
		}
	}

	registry, err := tokens.NewRegistry(cfg.Models)
	if err != nil {
		c.closePartial()
		return nil, fmt.Errorf("core: %w", err)
	}
	c.acct, err = registry.ProfileFor(cfg.Core.DefaultModel)
	if err != nil {
		c.closePartial()
		return nil, fmt.Errorf("core: %w", err)
	}

	c.intent = conversation.NewIntentTracker(cfg.Context.IntentDecay)
	c.drift = conversation.NewDriftDetector(&cfg.Context, c.embedder, opts.Logger)
	pipeline := summarize.NewPipeline(opts.Provider, opts.Logger)
	c.manager = conversation.NewContextManager(&cfg.Context, c.acct,
		conversation.NewWaypointLedger(), c.drift, pipeline, opts.Logger)

	c.assembler = prompt.NewAssembler()

	c.archiveStore, err = archive.NewStore(filepath.Join(cfg.Archive.Dir, "sessions.jsonl"), opts.Logger)
	if err != nil {
		c.closePartial()
		return nil, fmt.Errorf("core: %w", err)
	}
	if c.sql != nil {
		c.sessionIndex = archive.NewSessionIndex(c.sql)
	}
	if cfg.Archive.GenerateArtifacts {
		c.artifacts = archive.NewArtifactGenerator(opts.Provider, cfg.Archive.ArtifactDir, opts.Logger)
	}

	logger.Info().Str("session_id", c.sessionID).Str("model", cfg.Core.DefaultModel).Msg("session started")
	return c, nil
}

// SessionID identifies this conversation in the archive.
func (c *Core) SessionID() string { return c.sessionID }

// HandleTurn runs one user turn: intent and drift observation, hybrid
// retrieval, and prompt assembly. Compression, when triggered, happens in
// the background and never blocks the returned prompt.
func (c *Core) HandleTurn(ctx context.Context, userText string) (TurnResult, error) {
	signal := c.intent.ObserveTurn(userText)

	index, err := c.manager.AppendTurn(ctx, "user", userText)
	if err != nil {
		return TurnResult{}, err
	}

	results, err := c.engine.Query(ctx, userText)
	if err != nil {
		// The turn proceeds without retrieval context
		c.logger.Warn().Err(err).Msg("retrieval unavailable for turn")
		results = &retrieval.ResultSet{}
	}

	snap := c.manager.Snapshot()
	live := snap.LiveTurns
	if n := len(live); n > 0 && live[n-1].Role == "user" && live[n-1].Text == userText {
		live = live[:n-1]
	}

	rendered := c.assembler.Assemble(prompt.Input{
		System:         c.cfg.Core.SystemPrompt,
		Summary:        snap.Summary,
		Retrieval:      results.Results,
		Degraded:       results.Degraded,
		Intent:         &signal,
		LiveTurns:      live,
		CurrentMessage: userText,
	})

	return TurnResult{TurnIndex: index, Prompt: rendered, Retrieval: results, Intent: signal}, nil
}

// CompleteTurn records the assistant's reply.
func (c *Core) CompleteTurn(ctx context.Context, assistantText string) (int, error) {
	return c.manager.AppendTurn(ctx, "assistant", assistantText)
}

// MarkWaypoint anchors a compression boundary at turnIndex.
func (c *Core) MarkWaypoint(turnIndex int) (conversation.Waypoint, error) {
	wp, err := c.manager.MarkWaypoint(turnIndex)
	if err != nil {
		return conversation.Waypoint{}, err
	}
	c.mu.Lock()
	c.waypoints = append(c.waypoints, archive.WaypointRecord{Index: wp.TurnIndex, CreatedAt: wp.CreatedAt})
	c.mu.Unlock()
	return wp, nil
}

// TruncateAfter drops every turn after turnIndex so the conversation can
// be regenerated from that point. Waypoints past the cut are discarded.
func (c *Core) TruncateAfter(turnIndex int) error {
	if err := c.manager.TruncateAfter(turnIndex); err != nil {
		return err
	}
	c.mu.Lock()
	kept := c.waypoints[:0]
	for _, wp := range c.waypoints {
		if wp.Index <= turnIndex {
			kept = append(kept, wp)
		}
	}
	c.waypoints = kept
	c.mu.Unlock()
	return nil
}

// AttachDocument indexes a file into both indexes and returns its doc id.
func (c *Core) AttachDocument(ctx context.Context, path string) (string, error) {
	return c.indexer.IndexDocument(ctx, path, 1.0)
}

// BlockDocument excludes a document from all future retrieval.
func (c *Core) BlockDocument(docID string) {
	c.blacklist.AddDocument(docID)
}

// BlockTerm excludes documents whose topic text matches term.
func (c *Core) BlockTerm(term string) {
	c.blacklist.AddTerm(term)
}

// Status reports window pressure for the UI.
func (c *Core) Status() conversation.Status {
	return c.manager.Status()
}

// Close ends the session: stops the watcher, waits out any in-flight
// compression, writes the archive record, and generates post-session
// artifacts. Idempotent.
func (c *Core) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	waypoints := append([]archive.WaypointRecord(nil), c.waypoints...)
	c.mu.Unlock()

	if c.watcher != nil {
		c.watcher.Stop()
	}
	c.manager.Close()

	record := c.buildRecord(waypoints)
	if c.artifacts != nil && len(record.Messages) > 0 {
		names, err := c.artifacts.Generate(ctx, record)
		if err != nil {
			c.logger.Warn().Err(err).Msg("artifact generation incomplete")
		}
		record.ArtifactsGenerated = names
	}

	var errs []error
	if err := c.archiveStore.SaveSession(record); err != nil {
		errs = append(errs, err)
	}
	if c.sessionIndex != nil {
		entry := archive.IndexEntry{
			SessionID:   record.SessionID,
			StartedAt:   record.StartedAt,
			EndedAt:     record.EndedAt,
			Title:       c.cfg.Core.SessionTitle,
			TokenCount:  record.TokenCount,
			DriftEvents: record.DriftEvents,
			RecordPath:  filepath.Join(c.cfg.Archive.Dir, "sessions.jsonl"),
		}
		if err := c.sessionIndex.Upsert(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}

	if c.ownsDB && c.sql != nil {
		if err := c.sql.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.Info().Str("session_id", c.sessionID).Int("tokens", record.TokenCount).Msg("session archived")
	return errors.Join(errs...)
}

func (c *Core) buildRecord(waypoints []archive.WaypointRecord) archive.SessionRecord {
	turns := c.manager.Turns()
	messages := make([]archive.ArchivedMessage, 0, len(turns))
	total := 0
	for _, t := range turns {
		messages = append(messages, archive.ArchivedMessage{Role: t.Role, Text: t.Text, CreatedAt: t.CreatedAt})
		total += t.TokenCount
	}

	summaryXML := ""
	if snap := c.manager.Snapshot(); snap.Summary != nil {
		if xml, err := snap.Summary.XML(); err == nil {
			summaryXML = xml
		}
	}

	return archive.SessionRecord{
		SessionID:   c.sessionID,
		StartedAt:   c.startedAt,
		EndedAt:     time.Now(),
		ModelsUsed:  []string{c.cfg.Core.DefaultModel},
		SummaryXML:  summaryXML,
		TokenCount:  total,
		DriftEvents: c.drift.Events(),
		Waypoints:   waypoints,
		Messages:    messages,
	}
}

// closePartial releases what a failed New managed to open.
func (c *Core) closePartial() {
	if c.watcher != nil {
		c.watcher.Stop()
	}
	if c.ownsDB && c.sql != nil {
		c.sql.Close()
	}
}
