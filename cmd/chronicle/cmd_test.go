package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/habiliai/chronicle"
	"github.com/habiliai/chronicle/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 100))
	assert.Equal(t, "abc", truncate("abcdef", 3))

	// Truncation counts runes, never splitting a multi-byte character
	assert.Equal(t, "héllo wörl", truncate("héllo wörld", 10))
	assert.Equal(t, "日本語", truncate("日本語のメモ", 3))
}

func TestAddWithoutEmbedder(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("NOMIC_API_KEY", "")
	dbPath := filepath.Join(t.TempDir(), "memory.db")

	// The inline index pass after a one-shot add must tolerate a missing
	// embedding capability
	cmd := newCmd()
	cmd.SetArgs([]string{"add", "remembered from the cli", "--db", dbPath, "--tags", "dev"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	storeConf := config.NewStoreConfig()
	storeConf.SqlitePath = dbPath
	c, err := chronicle.New(context.Background(), chronicle.WithStoreConfig(storeConf))
	require.NoError(t, err)
	defer c.Close()

	count, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
