package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/habiliai/chronicle/config"
	"github.com/habiliai/chronicle/internal/mylog"
	"github.com/habiliai/chronicle/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedEvent struct {
	Content  string
	Tags     []string
	Source   string
	Metadata map[string]any
}

// fakeGateway records everything watchers push through it.
type fakeGateway struct {
	mu     sync.Mutex
	nextID uint
	events []capturedEvent
}

func (g *fakeGateway) Remember(ctx context.Context, content string, tags []string, source string, metadata map[string]any) (uint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	g.events = append(g.events, capturedEvent{
		Content:  content,
		Tags:     tags,
		Source:   source,
		Metadata: metadata,
	})
	return g.nextID, nil
}

func (g *fakeGateway) captured() []capturedEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]capturedEvent(nil), g.events...)
}

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		cmd  string
		want []string
	}{
		{"git push origin main", []string{"shell", "git"}},
		{"gh pr create", []string{"shell", "git"}},
		{"docker compose up", []string{"shell", "devops"}},
		{"kubectl get pods", []string{"shell", "devops"}},
		{"python manage.py migrate", []string{"shell", "python"}},
		{"npm install", []string{"shell", "nodejs"}},
		{"cd /tmp", []string{"shell", "navigation"}},
		{"go test ./...", []string{"shell", "testing"}},
		{"make build", []string{"shell", "build"}},
		{"whoami", []string{"shell"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, watcher.ClassifyCommand(tt.cmd), "cmd %q", tt.cmd)
	}
}

func TestStreamWatcher(t *testing.T) {
	gateway := &fakeGateway{}
	input := "first event\n\n  second event  \nskip me\n"
	w := watcher.NewStreamWatcher(gateway, mylog.NewDiscardLogger(), strings.NewReader(input), nil)
	w.Filter = func(line string) bool { return !strings.HasPrefix(line, "skip") }

	require.NoError(t, w.Run(t.Context()))

	events := gateway.captured()
	require.Len(t, events, 2)
	assert.Equal(t, "first event", events[0].Content)
	assert.Equal(t, "second event", events[1].Content)
	for _, event := range events {
		assert.Equal(t, watcher.SourceStream, event.Source)
		assert.Equal(t, []string{"stream"}, event.Tags)
	}
}

func TestStreamWatcher_Cancellation(t *testing.T) {
	gateway := &fakeGateway{}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	w := watcher.NewStreamWatcher(gateway, mylog.NewDiscardLogger(), strings.NewReader("line\n"), nil)
	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShellWatcher_Backfill(t *testing.T) {
	history := filepath.Join(t.TempDir(), ".bash_history")
	require.NoError(t, os.WriteFile(history, []byte("git status\n#1693000000\nls -la\n\nmake build\n"), 0o644))

	gateway := &fakeGateway{}
	w := watcher.NewShellWatcher(gateway, mylog.NewDiscardLogger(), &config.ShellWatcherConfig{HistoryFile: history}, time.Second)

	captured, err := w.Backfill(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, captured, "blank lines and timestamp comments are skipped")

	events := gateway.captured()
	require.Len(t, events, 3)
	assert.Equal(t, "git status", events[0].Content)
	assert.Equal(t, []string{"shell", "git"}, events[0].Tags)
	for _, event := range events {
		assert.Equal(t, watcher.SourceShellHistory, event.Source)
	}
}

func TestShellWatcher_PollTailsNewCommands(t *testing.T) {
	history := filepath.Join(t.TempDir(), ".bash_history")
	require.NoError(t, os.WriteFile(history, []byte("old command\n"), 0o644))

	gateway := &fakeGateway{}
	w := watcher.NewShellWatcher(gateway, mylog.NewDiscardLogger(), &config.ShellWatcherConfig{HistoryFile: history}, time.Second)
	ctx := t.Context()

	// Backfill moves the cursor to the end; the old command is not re-read
	_, err := w.Backfill(ctx)
	require.NoError(t, err)
	require.Len(t, gateway.captured(), 1)

	require.NoError(t, w.Poll(ctx))
	assert.Len(t, gateway.captured(), 1, "no new lines, no new events")

	f, err := os.OpenFile(history, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("docker ps\nnpm test\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, w.Poll(ctx))
	events := gateway.captured()
	require.Len(t, events, 3)
	assert.Equal(t, "docker ps", events[1].Content)
	assert.Equal(t, "npm test", events[2].Content)
	assert.Equal(t, watcher.SourceShellLive, events[1].Source)

	// Polling again from the advanced cursor captures nothing
	require.NoError(t, w.Poll(ctx))
	assert.Len(t, gateway.captured(), 3)
}

func TestShellWatcher_TruncatedHistoryResetsCursor(t *testing.T) {
	history := filepath.Join(t.TempDir(), ".bash_history")
	require.NoError(t, os.WriteFile(history, []byte("a very long command line here\n"), 0o644))

	gateway := &fakeGateway{}
	w := watcher.NewShellWatcher(gateway, mylog.NewDiscardLogger(), &config.ShellWatcherConfig{HistoryFile: history}, time.Second)
	ctx := t.Context()

	_, err := w.Backfill(ctx)
	require.NoError(t, err)

	// The shell rewrote its history shorter than our cursor
	require.NoError(t, os.WriteFile(history, []byte("fresh start\n"), 0o644))
	require.NoError(t, w.Poll(ctx))

	events := gateway.captured()
	require.Len(t, events, 2)
	assert.Equal(t, "fresh start", events[1].Content)
}

func TestFileWatcher_Poll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes\nline two\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.bin"), []byte("binary"), 0o644))

	gateway := &fakeGateway{}
	w := watcher.NewFileWatcher(gateway, mylog.NewDiscardLogger(), &config.DirWatcherConfig{
		Path:       dir,
		Extensions: []string{".md"},
	}, time.Second)
	w.Metadata = map[string]any{"project": "chronicle"}
	ctx := t.Context()

	// First poll reports every matching file as created
	require.NoError(t, w.Poll(ctx))
	events := gateway.captured()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Content, "CREATED: notes.md")
	assert.Equal(t, []string{"file", "created", "md"}, events[0].Tags)
	assert.Equal(t, "chronicle", events[0].Metadata["project"])
	assert.Equal(t, filepath.Join(dir, "notes.md"), events[0].Metadata["path"])

	// Unchanged files are not re-reported
	require.NoError(t, w.Poll(ctx))
	assert.Len(t, gateway.captured(), 1)

	// A rewritten file shows up as modified
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# notes\nline two\nline three\n"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	require.NoError(t, w.Poll(ctx))
	events = gateway.captured()
	require.Len(t, events, 2)
	assert.Contains(t, events[1].Content, "MODIFIED: notes.md")
	assert.Equal(t, []string{"file", "modified", "md"}, events[1].Tags)
}
