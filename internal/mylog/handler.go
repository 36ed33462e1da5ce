package mylog

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

func newHandler(level slog.Level, w io.Writer) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})
}
