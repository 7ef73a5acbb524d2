// Package logging configures structured slog output for taxctx.
//
// Logs are JSON lines written to a size-rotated file under ~/.taxctx/logs/
// and, unless disabled, mirrored to stderr. Library packages never call
// Setup; they accept a *slog.Logger and fall back to slog.Default().
package logging
