package memory_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/habiliai/chronicle/errors"
	"github.com/habiliai/chronicle/internal/mylog"
	"github.com/habiliai/chronicle/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, embedder memory.Embedder) memory.Service {
	t.Helper()
	svc := memory.NewService(memory.NewInMemoryStore(), embedder, newIndexConfig(), mylog.NewDiscardLogger())
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestService_RememberAndGet(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := t.Context()

	id, err := svc.Remember(ctx, "Built two tools today", []string{"dev"}, "cli", map[string]any{"mood": "good"})
	require.NoError(t, err)
	require.NotZero(t, id)

	record, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Built two tools today", record.Content)
	assert.Equal(t, []string{"dev"}, record.Tags)
	assert.Equal(t, "cli", record.Source)
	assert.Equal(t, "good", record.Metadata["mood"])
	assert.False(t, record.CreatedAt.IsZero())
}

func TestService_RememberValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := t.Context()

	_, err := svc.Remember(ctx, "   ", nil, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "rejected writes leave no trace")
}

func TestService_RememberDefaultsSource(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := t.Context()

	id, err := svc.Remember(ctx, "no source given", nil, "", nil)
	require.NoError(t, err)

	record, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, memory.SourceUnknown, record.Source)
}

func TestService_ConcurrentRemembers(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := t.Context()

	const writers = 16
	ids := make([]uint, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := svc.Remember(ctx, fmt.Sprintf("concurrent memory %d", i), nil, "test", nil)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	// Every write succeeded with a distinct id and intact content
	seen := map[uint]bool{}
	for i, id := range ids {
		require.NotZero(t, id)
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true

		record, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("concurrent memory %d", i), record.Content)
	}

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, writers, count)
}

func TestService_Recent(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := t.Context()

	for i := 0; i < 5; i++ {
		_, err := svc.Remember(ctx, fmt.Sprintf("memory %d", i), nil, "test", nil)
		require.NoError(t, err)
	}

	records, err := svc.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "memory 4", records[0].Content)
	assert.Equal(t, "memory 2", records[2].Content)
}

func TestService_IndexAndSearch(t *testing.T) {
	svc := newTestService(t, &stubEmbedder{})
	ctx := t.Context()

	_, err := svc.Remember(ctx, "Built two tools today", []string{"dev"}, "cli", nil)
	require.NoError(t, err)
	_, err = svc.Remember(ctx, "lunch with the team", []string{"social"}, "cli", nil)
	require.NoError(t, err)

	indexed, err := svc.Index(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)

	results, err := svc.Search(ctx, "tools", nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Built two tools today", results[0].Record.Content)
	for _, result := range results[1:] {
		assert.Less(t, result.Score, results[0].Score, "unrelated memories must not outrank the match")
	}

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 2, stats.Indexed)

	require.NoError(t, svc.RebuildIndex(ctx))
	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Indexed)
}
