// Package listener provides task sources that frame one file name per line:
// FIFO serves a named pipe, ReaderSource wraps any io.Reader.
package listener
