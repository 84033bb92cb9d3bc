// Command fifocopy copies files whose names arrive on a named pipe into a
// destination directory.
//
// Usage:
//
//	fifocopy [flags] PIPE DEST
//
// Each line written to PIPE names one file. A single listener goroutine
// queues the names and a single copier goroutine copies them, in order, to
// DEST. Typing the exit command (default "exit") on standard input, or
// sending SIGINT or SIGTERM, stops accepting names; files already queued are
// still copied before fifocopy prints a summary and exits.
package main
