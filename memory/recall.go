package memory

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/habiliai/chronicle/config"
	"github.com/samber/lo"
)

type (
	SearchOptions struct {
		// Tags keeps only records carrying every listed tag
		Tags []string
		// Since/Until bound record timestamps to [Since, Until)
		Since *time.Time
		Until *time.Time
		// Limit caps the result count; defaults to DefaultSearchLimit
		Limit int
	}

	// RecallEngine is the query facade. It fans a query out to the lexical
	// scan and, when available, the vector index, then merges both candidate
	// sets into a single ranking. It never writes.
	RecallEngine struct {
		store    Store
		embedder Embedder
		indexer  *Indexer
		conf     *config.IndexConfig
		logger   *slog.Logger
	}
)

const DefaultSearchLimit = 10

func NewRecallEngine(store Store, embedder Embedder, indexer *Indexer, conf *config.IndexConfig, logger *slog.Logger) *RecallEngine {
	return &RecallEngine{
		store:    store,
		embedder: embedder,
		indexer:  indexer,
		conf:     conf,
		logger:   logger,
	}
}

// Search returns records relevant to the query, best first. An empty query
// is a pure filter over tags and time bounds. When no embedder is configured
// or embedding the query fails, the engine silently degrades to lexical
// substring search.
func (e *RecallEngine) Search(ctx context.Context, query string, opts *SearchOptions) ([]ScoredRecord, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	filter := Filter{
		Tags:  opts.Tags,
		Since: opts.Since,
		Until: opts.Until,
	}

	query = strings.TrimSpace(query)
	if query == "" {
		records, err := e.store.Scan(ctx, filter)
		if err != nil {
			return nil, err
		}
		if len(records) > limit {
			records = records[:limit]
		}
		return lo.Map(records, func(r *Record, _ int) ScoredRecord {
			return ScoredRecord{Record: r}
		}), nil
	}

	lexicalFilter := filter
	lexicalFilter.Contains = query
	lexical, err := e.store.Scan(ctx, lexicalFilter)
	if err != nil {
		return nil, err
	}

	semantic := e.semanticCandidates(ctx, query, filter, limit)

	// Union by id; a record found by both paths keeps its semantic score,
	// lexical-only hits get a fixed lower-priority score so they are never
	// silently dropped.
	merged := make(map[uint]ScoredRecord, len(semantic)+len(lexical))
	for _, candidate := range semantic {
		merged[candidate.Record.ID] = candidate
	}
	for _, record := range lexical {
		if _, seen := merged[record.ID]; seen {
			continue
		}
		merged[record.ID] = ScoredRecord{Record: record, Score: e.conf.LexicalScore}
	}

	results := lo.Values(merged)
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Record.CreatedAt.Equal(results[j].Record.CreatedAt) {
			return results[i].Record.CreatedAt.After(results[j].Record.CreatedAt)
		}
		return results[i].Record.ID > results[j].Record.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *RecallEngine) semanticCandidates(ctx context.Context, query string, filter Filter, limit int) []ScoredRecord {
	if !e.conf.VectorEnabled || e.embedder == nil {
		return nil
	}

	// On-demand mode: make sure everything is embedded before ranking
	if !e.conf.AutoIndex && e.indexer != nil {
		if _, err := e.indexer.Run(ctx); err != nil {
			e.logger.Warn("on-demand indexing failed, searching existing index", "error", err)
		}
	}

	vectors, err := e.embedder.Embed(ctx, query)
	if err != nil || len(vectors) == 0 {
		e.logger.Warn("query embedding unavailable, degrading to lexical search", "error", err)
		return nil
	}

	nearest, err := e.store.Nearest(ctx, vectors[0], limit*e.conf.OverfetchFactor)
	if err != nil {
		e.logger.Warn("vector search failed, degrading to lexical search", "error", err)
		return nil
	}

	candidates := make([]ScoredRecord, 0, len(nearest))
	for _, candidate := range nearest {
		// Raw cosine similarity in [-1, 1] maps onto [0, 1]
		score := (candidate.Score + 1.0) * 0.5
		if score < e.conf.MinScore {
			continue
		}
		if !filter.Matches(candidate.Record) {
			continue
		}
		candidates = append(candidates, ScoredRecord{Record: candidate.Record, Score: score})
	}
	return candidates
}
