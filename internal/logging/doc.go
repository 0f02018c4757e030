// Package logging assembles structured slog loggers and formatting helpers used
// across musicsync.
//
// It owns the console, tinted-terminal, and JSON handlers, rotates file output,
// and exposes context-aware helpers so session code can tag log lines with the
// run identifier and phase. The package also provides a no-op logger for tests
// and wiring code that cannot fail.
//
// Loggers are always passed explicitly; nothing here installs a process-wide
// default.
package logging
