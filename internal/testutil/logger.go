package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output.
// Identical to log.NewNop; kept here so test-only packages need not import
// internal/log.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
