// Package chronicle is a personal memory store: durable free-text records
// with tags and metadata, recalled later by keyword, tag, time range or
// semantic similarity.
package chronicle

import (
	"context"
	"log/slog"
	"os"

	"github.com/habiliai/chronicle/config"
	"github.com/habiliai/chronicle/errors"
	"github.com/habiliai/chronicle/internal/mylog"
	"github.com/habiliai/chronicle/memory"
)

type (
	// Chronicle is an explicit handle on one store instance. Instances are
	// fully independent; sharing one database file across processes for
	// writes is a configuration error the caller must avoid.
	Chronicle struct {
		service  memory.Service
		store    memory.Store
		embedder memory.Embedder
		logger   *slog.Logger

		storeConfig *config.StoreConfig
		indexConfig *config.IndexConfig
		logConfig   *config.LogConfig
	}
	Option func(*Chronicle)
)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chronicle) {
		c.logger = logger
	}
}

func WithStore(store memory.Store) Option {
	return func(c *Chronicle) {
		c.store = store
	}
}

// WithEmbedder injects the embedding model capability. Without one (and
// without an API key in the environment) search degrades to lexical-only.
func WithEmbedder(embedder memory.Embedder) Option {
	return func(c *Chronicle) {
		c.embedder = embedder
	}
}

func WithStoreConfig(conf *config.StoreConfig) Option {
	return func(c *Chronicle) {
		c.storeConfig = conf
	}
}

func WithIndexConfig(conf *config.IndexConfig) Option {
	return func(c *Chronicle) {
		c.indexConfig = conf
	}
}

func WithLogConfig(conf *config.LogConfig) Option {
	return func(c *Chronicle) {
		c.logConfig = conf
	}
}

// New opens a Chronicle. The embedding capability is resolved in order:
// injected embedder, OPENAI_API_KEY, NOMIC_API_KEY, none. Keep
// IndexConfig.Dimension in sync with the chosen model (1536 for OpenAI
// text-embedding-3-small, 768 for Nomic).
func New(ctx context.Context, optionFuncs ...Option) (*Chronicle, error) {
	c := &Chronicle{
		storeConfig: config.NewStoreConfig(),
		indexConfig: config.NewIndexConfig(),
		logConfig:   config.NewLogConfig(),
	}
	for _, f := range optionFuncs {
		f(c)
	}

	if c.logger == nil {
		c.logger = mylog.NewLogger(c.logConfig.LogLevel, c.logConfig.LogHandler)
	}

	if c.store == nil {
		if c.storeConfig.SqliteEnabled {
			if c.storeConfig.SqlitePath == "" {
				return nil, errors.Wrapf(errors.ErrInvalidConfig, "sqlite path is not configured")
			}
			store, err := memory.NewSqliteStore(c.storeConfig.SqlitePath, c.indexConfig.Dimension)
			if err != nil {
				return nil, err
			}
			c.store = store
		} else {
			c.store = memory.NewInMemoryStore()
		}
	}

	if c.embedder == nil && c.indexConfig.VectorEnabled {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.embedder = memory.NewOpenAIEmbedder(key, c.indexConfig.EmbeddingModel)
		} else if key := os.Getenv("NOMIC_API_KEY"); key != "" {
			c.embedder = memory.NewNomicEmbedder(key)
		}
	}
	if c.embedder == nil {
		c.logger.Debug("no embedding model configured; recall is lexical-only")
	}

	c.service = memory.NewService(c.store, c.embedder, c.indexConfig, c.logger)
	return c, nil
}

// Remember appends a new memory record and returns its id.
func (c *Chronicle) Remember(ctx context.Context, content string, tags []string, source string, metadata map[string]any) (uint, error) {
	return c.service.Remember(ctx, content, tags, source, metadata)
}

// Search returns records relevant to the query, best first.
func (c *Chronicle) Search(ctx context.Context, query string, opts *memory.SearchOptions) ([]memory.ScoredRecord, error) {
	return c.service.Search(ctx, query, opts)
}

// Recall is Search without scores, for callers that only want the records.
func (c *Chronicle) Recall(ctx context.Context, query string, limit int) ([]*memory.Record, error) {
	scored, err := c.service.Search(ctx, query, &memory.SearchOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	records := make([]*memory.Record, len(scored))
	for i, s := range scored {
		records[i] = s.Record
	}
	return records, nil
}

func (c *Chronicle) Get(ctx context.Context, id uint) (*memory.Record, error) {
	return c.service.Get(ctx, id)
}

func (c *Chronicle) Recent(ctx context.Context, limit int) ([]*memory.Record, error) {
	return c.service.Recent(ctx, limit)
}

func (c *Chronicle) Count(ctx context.Context) (int64, error) {
	return c.service.Count(ctx)
}

func (c *Chronicle) Stats(ctx context.Context) (*memory.Stats, error) {
	return c.service.Stats(ctx)
}

// Index runs one incremental embedding pass.
func (c *Chronicle) Index(ctx context.Context) (int, error) {
	return c.service.Index(ctx)
}

// RebuildIndex drops and recomputes the embedding index from the record
// table, the recovery path for a corrupt index or a model change.
func (c *Chronicle) RebuildIndex(ctx context.Context) error {
	return c.service.RebuildIndex(ctx)
}

// StartIndexing launches the background incremental indexer.
func (c *Chronicle) StartIndexing(ctx context.Context) {
	c.service.StartIndexing(ctx)
}

// Service exposes the ingestion gateway, e.g. for wiring watchers.
func (c *Chronicle) Service() memory.Service {
	return c.service
}

func (c *Chronicle) Close() error {
	return c.service.Close()
}
