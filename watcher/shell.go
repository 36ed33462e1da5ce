package watcher

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/habiliai/chronicle/config"
	"github.com/pkg/errors"
)

// ShellWatcher captures shell commands from a history file: a one-shot
// backfill of existing history, then a polling tail that follows new lines
// from its byte-offset cursor.
type ShellWatcher struct {
	gateway  Gateway
	logger   *slog.Logger
	history  string
	interval time.Duration

	// Filter keeps a command when it returns true; nil keeps everything.
	Filter func(string) bool

	offset int64
}

func NewShellWatcher(gateway Gateway, logger *slog.Logger, conf *config.ShellWatcherConfig, interval time.Duration) *ShellWatcher {
	history := conf.HistoryFile
	if history == "" {
		history = config.DefaultHistoryFile()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ShellWatcher{
		gateway:  gateway,
		logger:   logger,
		history:  history,
		interval: interval,
	}
}

func (w *ShellWatcher) Name() string {
	return "shell:" + w.history
}

// Backfill imports the whole existing history once and moves the cursor to
// the end of the file.
func (w *ShellWatcher) Backfill(ctx context.Context) (int, error) {
	f, err := os.Open(w.history)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open history file %s", w.history)
	}
	defer f.Close()

	captured := w.capture(ctx, f, SourceShellHistory)

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return captured, errors.Wrapf(err, "failed to locate end of history file")
	}
	w.offset = end

	w.logger.Info("backfilled shell history", "file", w.history, "commands", captured)
	return captured, nil
}

// Run tails the history file until ctx is cancelled. Without a prior
// Backfill only commands appended after Run starts are captured.
func (w *ShellWatcher) Run(ctx context.Context) error {
	if w.offset == 0 {
		if info, err := os.Stat(w.history); err == nil {
			w.offset = info.Size()
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil {
				w.logger.Warn("shell poll failed", "file", w.history, "error", err)
			}
		}
	}
}

// Poll drains any lines appended since the last poll. A truncated history
// file (e.g. rewritten by the shell) resets the cursor.
func (w *ShellWatcher) Poll(ctx context.Context) error {
	info, err := os.Stat(w.history)
	if err != nil {
		return errors.Wrapf(err, "failed to stat history file")
	}
	if info.Size() < w.offset {
		w.offset = 0
	}
	if info.Size() == w.offset {
		return nil
	}

	f, err := os.Open(w.history)
	if err != nil {
		return errors.Wrapf(err, "failed to open history file")
	}
	defer f.Close()

	if _, err := f.Seek(w.offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "failed to seek history file")
	}

	w.capture(ctx, f, SourceShellLive)

	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrapf(err, "failed to locate history cursor")
	}
	w.offset = pos
	return nil
}

func (w *ShellWatcher) capture(ctx context.Context, r io.Reader, source string) int {
	captured := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if w.Filter != nil && !w.Filter(line) {
			continue
		}

		if _, err := w.gateway.Remember(ctx, line, ClassifyCommand(line), source, nil); err != nil {
			// One bad event never stops the loop
			w.logger.Warn("failed to capture command", "error", err)
			continue
		}
		captured++
	}
	return captured
}

// ClassifyCommand derives tags from the shape of a shell command.
func ClassifyCommand(cmd string) []string {
	tags := []string{"shell"}

	switch {
	case strings.HasPrefix(cmd, "git ") || strings.HasPrefix(cmd, "gh "):
		tags = append(tags, "git")
	case strings.HasPrefix(cmd, "docker ") || strings.HasPrefix(cmd, "kubectl "):
		tags = append(tags, "devops")
	case strings.HasPrefix(cmd, "python ") || strings.HasPrefix(cmd, "pip ") || strings.HasPrefix(cmd, "poetry "):
		tags = append(tags, "python")
	case strings.HasPrefix(cmd, "npm ") || strings.HasPrefix(cmd, "yarn ") || strings.HasPrefix(cmd, "node "):
		tags = append(tags, "nodejs")
	case strings.HasPrefix(cmd, "cd ") || strings.HasPrefix(cmd, "ls ") || strings.HasPrefix(cmd, "cat ") || strings.HasPrefix(cmd, "grep "):
		tags = append(tags, "navigation")
	case strings.Contains(strings.ToLower(cmd), "test"):
		tags = append(tags, "testing")
	case strings.Contains(cmd, "build") || strings.Contains(cmd, "deploy") || strings.Contains(cmd, "release"):
		tags = append(tags, "build")
	}

	return tags
}

var (
	_ Watcher = (*ShellWatcher)(nil)
)
