package config

import (
	"os"
	"path/filepath"
)

type StoreConfig struct {
	// SqliteEnabled controls whether the durable SQLite store is used.
	// When false an in-memory store is used and nothing survives Close.
	// Default: true
	SqliteEnabled bool `json:"sqliteEnabled,omitempty"`

	// SqlitePath specifies the file path for the SQLite database.
	// Default: ~/.chronicle/memory.db
	SqlitePath string `json:"sqlitePath,omitempty"`
}

// NewStoreConfig creates a StoreConfig with defaults. The path can be
// overridden with CHRONICLE_DB_PATH.
func NewStoreConfig() *StoreConfig {
	conf := &StoreConfig{
		SqliteEnabled: true,
		SqlitePath:    defaultDBPath(),
	}
	if v := os.Getenv("CHRONICLE_DB_PATH"); v != "" {
		conf.SqlitePath = v
	}
	return conf
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "memory.db"
	}
	return filepath.Join(home, ".chronicle", "memory.db")
}
