package config

import (
	"os"
	"path/filepath"
	"time"
)

type (
	// WatcherConfig describes the producer loops started by `chronicle watch`.
	// It is usually loaded from a YAML profile.
	WatcherConfig struct {
		// PollInterval is the delay between poll iterations for all
		// polling-based watchers.
		// Default: 5s
		PollInterval time.Duration `yaml:"pollInterval,omitempty" json:"pollInterval,omitempty"`

		Shell *ShellWatcherConfig `yaml:"shell,omitempty" json:"shell,omitempty"`
		Dirs  []DirWatcherConfig  `yaml:"dirs,omitempty" json:"dirs,omitempty"`
	}

	ShellWatcherConfig struct {
		// HistoryFile is the shell history file to tail.
		// Default: ~/.bash_history
		HistoryFile string `yaml:"historyFile,omitempty" json:"historyFile,omitempty"`

		// Backfill imports the existing history once before tailing.
		Backfill bool `yaml:"backfill,omitempty" json:"backfill,omitempty"`
	}

	DirWatcherConfig struct {
		Path string `yaml:"path" json:"path"`

		// Extensions restricts capture to the given file suffixes
		// (e.g. ".go", ".md"); empty means all files.
		Extensions []string `yaml:"extensions,omitempty" json:"extensions,omitempty"`
	}
)

func NewWatcherConfig() *WatcherConfig {
	return &WatcherConfig{
		PollInterval: 5 * time.Second,
	}
}

func DefaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bash_history"
	}
	return filepath.Join(home, ".bash_history")
}
