package watcher

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
)

// StreamWatcher captures lines from any text stream (a log pipe, stdin, a
// network reader). It blocks on its reader, checking for cancellation
// between lines.
type StreamWatcher struct {
	gateway Gateway
	logger  *slog.Logger
	r       io.Reader
	tags    []string

	// Filter keeps a line when it returns true; nil keeps everything.
	Filter func(string) bool
}

func NewStreamWatcher(gateway Gateway, logger *slog.Logger, r io.Reader, tags []string) *StreamWatcher {
	if len(tags) == 0 {
		tags = []string{"stream"}
	}
	return &StreamWatcher{
		gateway: gateway,
		logger:  logger,
		r:       r,
		tags:    tags,
	}
}

func (w *StreamWatcher) Name() string {
	return "stream"
}

// Run consumes the stream until EOF or cancellation.
func (w *StreamWatcher) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(w.r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if w.Filter != nil && !w.Filter(line) {
			continue
		}

		if _, err := w.gateway.Remember(ctx, line, w.tags, SourceStream, nil); err != nil {
			// One bad event never stops the loop
			w.logger.Warn("failed to capture stream line", "error", err)
		}
	}
	return scanner.Err()
}

var (
	_ Watcher = (*StreamWatcher)(nil)
)
