package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/habiliai/chronicle/config"
	chronicleerrors "github.com/habiliai/chronicle/errors"
	"github.com/pkg/errors"
)

type (
	// Service is the single entry point all producers and readers go
	// through. Remember is the only write path, so write serialization is
	// enforced in one place.
	Service interface {
		Remember(ctx context.Context, content string, tags []string, source string, metadata map[string]any) (uint, error)
		Search(ctx context.Context, query string, opts *SearchOptions) ([]ScoredRecord, error)
		Get(ctx context.Context, id uint) (*Record, error)
		Recent(ctx context.Context, limit int) ([]*Record, error)
		Count(ctx context.Context) (int64, error)
		Stats(ctx context.Context) (*Stats, error)

		// Index runs one incremental embedding pass and returns the number
		// of records embedded.
		Index(ctx context.Context) (int, error)
		// RebuildIndex drops and recomputes the whole vector sidecar.
		RebuildIndex(ctx context.Context) error
		// StartIndexing launches the background incremental indexer; it
		// stops when ctx is cancelled.
		StartIndexing(ctx context.Context)

		Close() error
	}

	service struct {
		store   Store
		indexer *Indexer
		recall  *RecallEngine
		conf    *config.IndexConfig
		logger  *slog.Logger
	}
)

var (
	_ Service = (*service)(nil)
)

func NewService(store Store, embedder Embedder, conf *config.IndexConfig, logger *slog.Logger) Service {
	indexer := NewIndexer(store, embedder, conf, logger)
	return &service{
		store:   store,
		indexer: indexer,
		recall:  NewRecallEngine(store, embedder, indexer, conf, logger),
		conf:    conf,
		logger:  logger,
	}
}

// Remember validates and durably commits a new record, then nudges the
// incremental indexer when auto-indexing is on. The returned id is
// retrievable through Get as soon as Remember returns.
func (s *service) Remember(ctx context.Context, content string, tags []string, source string, metadata map[string]any) (uint, error) {
	if strings.TrimSpace(content) == "" {
		return 0, errors.Wrapf(chronicleerrors.ErrValidation, "content must not be empty")
	}
	if source == "" {
		source = SourceUnknown
	}

	record := &Record{
		Content:  content,
		Tags:     tags,
		Source:   source,
		Metadata: metadata,
	}
	if err := s.store.Append(ctx, record); err != nil {
		return 0, err
	}

	s.logger.Debug("remembered",
		"id", record.ID,
		"source", source,
		"tags", tags)

	if s.conf.AutoIndex {
		s.indexer.Nudge()
	}

	return record.ID, nil
}

func (s *service) Search(ctx context.Context, query string, opts *SearchOptions) ([]ScoredRecord, error) {
	return s.recall.Search(ctx, query, opts)
}

func (s *service) Get(ctx context.Context, id uint) (*Record, error) {
	return s.store.Get(ctx, id)
}

// Recent returns the latest records regardless of content, newest first.
func (s *service) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	records, err := s.store.Scan(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

func (s *service) Index(ctx context.Context) (int, error) {
	return s.indexer.Run(ctx)
}

func (s *service) RebuildIndex(ctx context.Context) error {
	return s.indexer.RebuildAll(ctx)
}

func (s *service) StartIndexing(ctx context.Context) {
	s.indexer.Start(ctx)
}

func (s *service) Close() error {
	return s.store.Close()
}
