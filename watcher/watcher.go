// Package watcher provides producer loops that observe an activity source
// (shell history, a directory, a generic stream) and append what they see
// through the ingestion gateway. Each watcher owns its cursor, polls
// cooperatively and skips bad events instead of terminating.
package watcher

import (
	"context"
)

// Gateway is the single ingestion entry point watchers write through.
// memory.Service satisfies it.
type Gateway interface {
	Remember(ctx context.Context, content string, tags []string, source string, metadata map[string]any) (uint, error)
}

// Watcher is a producer loop. Run blocks until ctx is cancelled; stopping a
// watcher never corrupts an in-flight write, since every append either
// commits fully or fails atomically.
type Watcher interface {
	Name() string
	Run(ctx context.Context) error
}

const (
	SourceShellHistory = "shell_history"
	SourceShellLive    = "shell_live"
	SourceStream       = "stream"
)
