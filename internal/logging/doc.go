// Package logging assembles the structured slog loggers used by fifocopy.
//
// It owns the console and JSON handlers, output routing (stdout, stderr or a
// log file), and the standard attribute keys so the listener, the copier and
// the lifecycle code all emit lines with the same shape. NewNop returns a
// logger that discards everything for tests and optional wiring.
package logging
