package middleware

import (
	"io"
	"log/slog"
)

// discardLogger returns a logger tests can pass wherever a *slog.Logger is
// required without polluting test output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
