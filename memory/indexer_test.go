package memory_test

import (
	"fmt"
	"testing"

	"github.com/habiliai/chronicle/config"
	"github.com/habiliai/chronicle/errors"
	"github.com/habiliai/chronicle/internal/mylog"
	"github.com/habiliai/chronicle/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndexConfig() *config.IndexConfig {
	conf := config.NewIndexConfig()
	conf.Dimension = stubVectorDim
	conf.EmbeddingModel = "stub"
	return conf
}

func TestIndexer_IncrementalPass(t *testing.T) {
	store := memory.NewInMemoryStore()
	embedder := &stubEmbedder{}
	indexer := memory.NewIndexer(store, embedder, newIndexConfig(), mylog.NewDiscardLogger())
	ctx := t.Context()

	var last *memory.Record
	for i := 0; i < 3; i++ {
		last = &memory.Record{Content: fmt.Sprintf("memory %d", i)}
		require.NoError(t, store.Append(ctx, last))
	}

	indexed, err := indexer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, indexed)

	mark, err := store.HighWaterMark(ctx)
	require.NoError(t, err)
	assert.Equal(t, last.ID, mark, "mark advances past every embedded record")

	// Idempotent: nothing new means nothing embedded
	indexed, err = indexer.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, indexed)

	// New records extend the index without touching existing entries
	next := &memory.Record{Content: "memory 3"}
	require.NoError(t, store.Append(ctx, next))
	indexed, err = indexer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)

	entries, err := store.VectorEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestIndexer_FailedBatchRetried(t *testing.T) {
	store := memory.NewInMemoryStore()
	embedder := &stubEmbedder{}
	indexer := memory.NewIndexer(store, embedder, newIndexConfig(), mylog.NewDiscardLogger())
	ctx := t.Context()

	record := &memory.Record{Content: "transient failure"}
	require.NoError(t, store.Append(ctx, record))

	// An unavailable embedder skips the batch without failing the pass
	embedder.setFail(true)
	indexed, err := indexer.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, indexed)

	mark, err := store.HighWaterMark(ctx)
	require.NoError(t, err)
	assert.Zero(t, mark, "mark must not advance past unembedded records")

	embedder.setFail(false)
	indexed, err = indexer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)

	mark, err = store.HighWaterMark(ctx)
	require.NoError(t, err)
	assert.Equal(t, record.ID, mark)
}

func TestIndexer_NoEmbedder(t *testing.T) {
	store := memory.NewInMemoryStore()
	indexer := memory.NewIndexer(store, nil, newIndexConfig(), mylog.NewDiscardLogger())

	_, err := indexer.Run(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEmbeddingUnavailable)

	err = indexer.RebuildAll(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEmbeddingUnavailable)
}

func TestIndexer_RebuildAll(t *testing.T) {
	store := memory.NewInMemoryStore()
	embedder := &stubEmbedder{}
	indexer := memory.NewIndexer(store, embedder, newIndexConfig(), mylog.NewDiscardLogger())
	ctx := t.Context()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, &memory.Record{Content: fmt.Sprintf("memory %d", i)}))
	}

	_, err := indexer.Run(ctx)
	require.NoError(t, err)
	before, err := store.VectorEntries(ctx)
	require.NoError(t, err)
	require.Len(t, before, 5)

	// Rebuilding from a deterministic embedder reproduces the same index
	require.NoError(t, indexer.RebuildAll(ctx))
	after, err := store.VectorEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.NoError(t, indexer.Verify(ctx))
}
