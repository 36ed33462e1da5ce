package config

import "os"

type LogConfig struct {
	// LogLevel is one of "debug", "info", "warn", "error"
	LogLevel string `json:"logLevel,omitempty"`

	// LogHandler selects the slog handler: "json" or "default" (tinted text)
	LogHandler string `json:"logHandler,omitempty"`
}

func NewLogConfig() *LogConfig {
	conf := &LogConfig{
		LogLevel:   "info",
		LogHandler: "default",
	}
	if v := os.Getenv("CHRONICLE_LOG_LEVEL"); v != "" {
		conf.LogLevel = v
	}
	if v := os.Getenv("CHRONICLE_LOG_HANDLER"); v != "" {
		conf.LogHandler = v
	}
	return conf
}
