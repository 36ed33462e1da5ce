package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/habiliai/chronicle/config"
	"github.com/mokiat/gog"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// FileWatcher polls a directory tree and captures file creations and
// modifications as memory records. Its cursor is the last seen mtime per
// path.
type FileWatcher struct {
	gateway    Gateway
	logger     *slog.Logger
	dir        string
	extensions []string
	interval   time.Duration

	// Metadata is attached to every captured record, merged under the
	// per-event path/size fields.
	Metadata map[string]any

	seen map[string]time.Time
}

func NewFileWatcher(gateway Gateway, logger *slog.Logger, conf *config.DirWatcherConfig, interval time.Duration) *FileWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &FileWatcher{
		gateway:    gateway,
		logger:     logger,
		dir:        conf.Path,
		extensions: conf.Extensions,
		interval:   interval,
		seen:       make(map[string]time.Time),
	}
}

func (w *FileWatcher) Name() string {
	return "dir:" + w.dir
}

// Run polls until ctx is cancelled.
func (w *FileWatcher) Run(ctx context.Context) error {
	if _, err := os.Stat(w.dir); err != nil {
		return errors.Wrapf(err, "watch directory %s", w.dir)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil {
				w.logger.Warn("directory poll failed", "dir", w.dir, "error", err)
			}
		}
	}
}

// Poll walks the tree once and captures anything new or changed since the
// previous snapshot. The first poll reports every existing file as created.
func (w *FileWatcher) Poll(ctx context.Context) error {
	return filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if len(w.extensions) > 0 && !lo.Contains(w.extensions, ext) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		last, known := w.seen[path]
		switch {
		case !known:
			w.captureChange(ctx, path, info, "created")
		case info.ModTime().After(last):
			w.captureChange(ctx, path, info, "modified")
		default:
			return nil
		}
		w.seen[path] = info.ModTime()
		return nil
	})
}

func (w *FileWatcher) captureChange(ctx context.Context, path string, info fs.FileInfo, changeType string) {
	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read changed file", "path", path, "error", err)
		return
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return
	}

	lines := strings.Count(string(content), "\n") + 1
	summary := fmt.Sprintf("%s: %s (%d lines)", strings.ToUpper(changeType), filepath.Base(path), lines)

	tags := []string{"file", changeType}
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		tags = append(tags, ext)
	}

	metadata := gog.Merge(w.Metadata, map[string]any{
		"path": path,
		"size": info.Size(),
	})

	if _, err := w.gateway.Remember(ctx, summary, tags, path, metadata); err != nil {
		// One bad event never stops the loop
		w.logger.Warn("failed to capture file change", "path", path, "error", err)
		return
	}

	w.logger.Debug("captured", "change", summary)
}

var (
	_ Watcher = (*FileWatcher)(nil)
)
