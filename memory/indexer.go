package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/habiliai/chronicle/config"
	chronicleerrors "github.com/habiliai/chronicle/errors"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Indexer keeps the vector sidecar consistent with the record table. A pass
// embeds every record above the persisted high-water mark that has no vector
// yet; the mark only advances past records that were durably embedded, so a
// partially failed pass is retried exactly where it left off.
type Indexer struct {
	store    Store
	embedder Embedder
	conf     *config.IndexConfig
	logger   *slog.Logger

	// passMu ensures one indexing pass at a time
	passMu sync.Mutex
	nudge  chan struct{}
}

const (
	indexBatchSize      = 16
	defaultPassInterval = time.Minute
)

func NewIndexer(store Store, embedder Embedder, conf *config.IndexConfig, logger *slog.Logger) *Indexer {
	return &Indexer{
		store:    store,
		embedder: embedder,
		conf:     conf,
		logger:   logger,
		nudge:    make(chan struct{}, 1),
	}
}

// Nudge schedules an incremental pass without blocking the caller. Used by
// the ingestion gateway after each append.
func (ix *Indexer) Nudge() {
	select {
	case ix.nudge <- struct{}{}:
	default:
	}
}

// Start launches the background indexing loop. It runs until ctx is
// cancelled, waking on Nudge and on a slow periodic tick.
func (ix *Indexer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(defaultPassInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ix.nudge:
			case <-ticker.C:
			}

			if _, err := ix.Run(ctx); err != nil && !errors.Is(err, chronicleerrors.ErrEmbeddingUnavailable) {
				ix.logger.Warn("incremental index pass failed", "error", err)
			}
		}
	}()
}

// Run executes one incremental pass and returns the number of records
// embedded. Safe to call concurrently with reads and writes; concurrent
// calls serialize against each other.
func (ix *Indexer) Run(ctx context.Context) (int, error) {
	if ix.embedder == nil {
		return 0, errors.Wrapf(chronicleerrors.ErrEmbeddingUnavailable, "no embedder configured")
	}

	ix.passMu.Lock()
	defer ix.passMu.Unlock()

	return ix.pass(ctx)
}

// RebuildAll drops every vector and recomputes the index from the record
// table. Reads may run concurrently; they see old or new entries, never a
// broken mix.
func (ix *Indexer) RebuildAll(ctx context.Context) error {
	if ix.embedder == nil {
		return errors.Wrapf(chronicleerrors.ErrEmbeddingUnavailable, "no embedder configured")
	}

	ix.passMu.Lock()
	defer ix.passMu.Unlock()

	if err := ix.store.DropVectors(ctx); err != nil {
		return err
	}
	if err := ix.store.SetHighWaterMark(ctx, 0); err != nil {
		return err
	}

	n, err := ix.pass(ctx)
	if err != nil {
		return err
	}

	ix.logger.Info("rebuilt embedding index", "records", n)
	return nil
}

// Verify checks the sidecar against the record table.
func (ix *Indexer) Verify(ctx context.Context) error {
	return ix.store.Verify(ctx)
}

func (ix *Indexer) pass(ctx context.Context) (int, error) {
	mark, err := ix.store.HighWaterMark(ctx)
	if err != nil {
		return 0, err
	}

	pending, err := ix.store.MissingVectors(ctx, mark)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	indexed := 0
	newMark := mark
	contiguous := true

	for _, batch := range lo.Chunk(pending, indexBatchSize) {
		if err := ctx.Err(); err != nil {
			break
		}

		texts := lo.Map(batch, func(r *Record, _ int) string { return r.Content })
		vectors, err := ix.embedder.Embed(ctx, texts...)
		if err != nil {
			// The whole batch stays below the mark and is retried next pass
			ix.logger.Warn("embedding batch failed, will retry",
				"count", len(batch),
				"error", err)
			contiguous = false
			continue
		}

		for i, record := range batch {
			entry := &VectorEntry{
				RecordID:    record.ID,
				Model:       ix.conf.EmbeddingModel,
				ContentHash: contentHash(record.Content),
				Vector:      vectors[i],
			}
			if err := ix.store.UpsertVector(ctx, entry); err != nil {
				ix.logger.Warn("failed to store vector, will retry",
					"record", record.ID,
					"error", err)
				contiguous = false
				continue
			}
			indexed++
			if contiguous {
				newMark = record.ID
			}
		}
	}

	if newMark != mark {
		if err := ix.store.SetHighWaterMark(ctx, newMark); err != nil {
			return indexed, err
		}
	}

	return indexed, nil
}
