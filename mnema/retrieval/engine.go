package retrieval

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/mnema-labs/mnema/mnema/config"
)

// Engine is the retrieval fusion engine. Every user turn runs one Query:
// both indexes are consulted concurrently, candidates are rank-fused,
// blacklisted parents are dropped, chunks are resolved and deduplicated to
// parent documents, and recency/trust weights are attached.
type Engine struct {
	config   *config.RetrievalConfig
	embedder Embedder
	dense    DenseIndex
	lexical  LexicalIndex
	store    DocumentStore
	deny     *Blacklist
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEngine creates a fusion engine over the given indexes and store.
func NewEngine(cfg *config.RetrievalConfig, embedder Embedder, dense DenseIndex, lexical LexicalIndex, store DocumentStore, deny *Blacklist, logger zerolog.Logger) *Engine {
	return &Engine{
		config:   cfg,
		embedder: embedder,
		dense:    dense,
		lexical:  lexical,
		store:    store,
		deny:     deny,
		logger:   logger.With().Str("component", "retrieval_engine").Logger(),
		now:      time.Now,
	}
}

// Query runs the full fusion pipeline for one user message and returns the
// top-k parent-deduplicated results. One index failing degrades the result
// set; both failing returns ErrRetrievalUnavailable and an empty set. The
// conversation continues either way.
func (e *Engine) Query(ctx context.Context, query string) (*ResultSet, error) {
	k := e.config.K
	overfetch := k * e.config.OverfetchMult

	var (
		denseHits   []Hit
		lexicalHits []Hit
		denseErr    error
		lexicalErr  error
	)

	var wg conc.WaitGroup
	wg.Go(func() {
		denseHits, denseErr = e.queryDense(ctx, query, overfetch)
	})
	wg.Go(func() {
		qctx, cancel := context.WithTimeout(ctx, e.config.QueryTimeout)
		defer cancel()
		lexicalHits, lexicalErr = e.lexical.Query(qctx, query, overfetch)
	})
	wg.Wait()

	if denseErr != nil && lexicalErr != nil {
		e.logger.Error().AnErr("dense", denseErr).AnErr("lexical", lexicalErr).
			Msg("both indexes unavailable")
		return &ResultSet{}, ErrRetrievalUnavailable
	}

	degraded := denseErr != nil || lexicalErr != nil
	if denseErr != nil {
		e.logger.Warn().Err(denseErr).Msg("dense index unavailable, keyword-only results")
	}
	if lexicalErr != nil {
		e.logger.Warn().Err(lexicalErr).Msg("lexical index unavailable, dense-only results")
	}

	fused := fuseRRF(denseHits, lexicalHits, e.config.RRFK)

	// Resolve parents, drop blacklisted documents, keep the best chunk per
	// parent so near-duplicate chunks of one document occupy one slot.
	now := e.now()
	type parentBest struct {
		result Result
		parent *ParentDocument
	}
	best := make(map[string]*parentBest)
	for chunkID, f := range fused {
		chunk, err := e.store.GetChunk(ctx, chunkID)
		if err != nil {
			e.logger.Debug().Err(err).Str("chunk", chunkID).Msg("skipping unresolvable chunk")
			continue
		}
		parent, err := e.store.GetParentByID(ctx, chunk.ParentID)
		if err != nil {
			e.logger.Debug().Err(err).Str("doc", chunk.ParentID).Msg("skipping orphaned chunk")
			continue
		}
		if e.deny != nil && e.deny.Blocked(parent) {
			continue
		}

		r := Result{
			ChunkID:         chunk.ChunkID,
			ParentID:        parent.DocID,
			Text:            chunk.Text,
			SourceFile:      parent.SourceFile,
			SectionLabel:    chunk.SectionLabel,
			SimilarityScore: f.DenseScore,
			KeywordScore:    f.LexicalScore,
			FusedScore:      f.Fused,
			RecencyWeight:   recencyWeight(now, parent.LastReferencedAt, e.config.RecencyLambda),
			TrustWeight:     parent.TrustWeight,
			ParentContext:   parent.FullText,
		}

		pb, ok := best[parent.DocID]
		if !ok || r.FusedScore > pb.result.FusedScore {
			best[parent.DocID] = &parentBest{result: r, parent: parent}
		}
	}

	results := make([]Result, 0, len(best))
	parents := make(map[string]*ParentDocument, len(best))
	for docID, pb := range best {
		results = append(results, pb.result)
		parents[docID] = pb.parent
	}

	// Fused score decides order; equal scores fall back to trust weight,
	// then to earlier indexing time so the ordering is total.
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.TrustWeight != b.TrustWeight {
			return a.TrustWeight > b.TrustWeight
		}
		pa, pb := parents[a.ParentID], parents[b.ParentID]
		if !pa.IndexedAt.Equal(pb.IndexedAt) {
			return pa.IndexedAt.Before(pb.IndexedAt)
		}
		return a.ChunkID < b.ChunkID
	})

	if k < len(results) {
		results = results[:k]
	}

	for _, r := range results {
		if err := e.store.Touch(ctx, r.ParentID, now); err != nil {
			e.logger.Debug().Err(err).Str("doc", r.ParentID).Msg("failed to touch parent")
		}
	}

	return &ResultSet{Results: results, Degraded: degraded}, nil
}

func (e *Engine) queryDense(ctx context.Context, query string, k int) ([]Hit, error) {
	qctx, cancel := context.WithTimeout(ctx, e.config.QueryTimeout)
	defer cancel()

	vectors, err := e.embedder.Embed(qctx, []string{query})
	if err != nil {
		return nil, err
	}
	return e.dense.Query(qctx, vectors[0], k)
}

// recencyWeight decays from 1.0 as the parent's last reference ages.
func recencyWeight(now, lastReferenced time.Time, lambda float64) float64 {
	ageDays := now.Sub(lastReferenced).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-lambda * ageDays)
}
