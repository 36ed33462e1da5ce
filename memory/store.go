package memory

import (
	"context"
)

// Store is the durable record table plus its derived vector sidecar. The
// record side is the source of truth; the vector side may be dropped and
// rebuilt at any time.
type Store interface {
	// Append durably commits a new record and assigns its id and timestamp.
	// Empty content fails with errors.ErrValidation. Writes are serialized;
	// backend-level contention surfaces as errors.ErrStoreBusy.
	Append(ctx context.Context, record *Record) error

	// Get returns the record with the given id, or errors.ErrNotFound.
	Get(ctx context.Context, id uint) (*Record, error)

	// Scan returns records matching the filter, newest first. An empty
	// filter returns all records.
	Scan(ctx context.Context, filter Filter) ([]*Record, error)

	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*Stats, error)

	// UpsertVector stores or replaces the embedding entry for a record.
	UpsertVector(ctx context.Context, entry *VectorEntry) error
	RemoveVector(ctx context.Context, id uint) error
	// DropVectors removes every embedding entry, used for full rebuilds.
	DropVectors(ctx context.Context) error

	// Nearest returns up to k records by similarity to the query vector,
	// most similar first, ties broken by recency. Scores are raw cosine
	// similarity in [-1, 1].
	Nearest(ctx context.Context, query []float32, k int) ([]ScoredRecord, error)

	// MissingVectors returns records with id > afterID that have no
	// embedding entry, in id order.
	MissingVectors(ctx context.Context, afterID uint) ([]*Record, error)
	VectorEntries(ctx context.Context) ([]*VectorEntry, error)

	// HighWaterMark is the indexer cursor: the highest record id below
	// which every record has been embedded (or deliberately skipped).
	HighWaterMark(ctx context.Context) (uint, error)
	SetHighWaterMark(ctx context.Context, id uint) error

	// Verify checks the vector sidecar against the record table and returns
	// errors.ErrCorruptIndex on any inconsistency.
	Verify(ctx context.Context) error

	// Close closes the store and releases resources
	Close() error
}
