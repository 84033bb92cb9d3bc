package listener

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// DefaultMaxLineLength bounds a single task name when no limit is configured
const DefaultMaxLineLength = 4096

// ErrLineTooLong reports a task line longer than the configured maximum. The
// rest of the line is discarded, so the next read starts at the following line.
var ErrLineTooLong = errors.New("task line exceeds maximum length")

// LineReader frames newline-terminated task names from a byte stream. Lines
// may span any number of underlying reads. Blank lines are skipped and a
// trailing carriage return is dropped.
type LineReader struct {
	r   *bufio.Reader
	max int
}

// NewLineReader reads lines of at most maxLen bytes from r. A non-positive
// maxLen selects DefaultMaxLineLength.
func NewLineReader(r io.Reader, maxLen int) *LineReader {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	// Room for the line, "\r\n" and bufio's minimum size.
	size := maxLen + 2
	if size < 16 {
		size = 16
	}
	return &LineReader{r: bufio.NewReaderSize(r, size), max: maxLen}
}

// ReadLine returns the next non-blank line without its terminator. A final
// line without a newline is returned before io.EOF.
func (l *LineReader) ReadLine() (string, error) {
	for {
		raw, err := l.r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			n := len(raw)
			for errors.Is(err, bufio.ErrBufferFull) {
				raw, err = l.r.ReadSlice('\n')
				n += len(raw)
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
			return "", fmt.Errorf("%w: %d bytes, limit %d", ErrLineTooLong, n, l.max)
		}
		if err != nil && (!errors.Is(err, io.EOF) || len(raw) == 0) {
			return "", err
		}

		line := strings.TrimSuffix(string(raw), "\n")
		line = strings.TrimSuffix(line, "\r")
		if len(line) > l.max {
			return "", fmt.Errorf("%w: %d bytes, limit %d", ErrLineTooLong, len(line), l.max)
		}
		if strings.TrimSpace(line) == "" {
			if err != nil {
				return "", err
			}
			continue
		}
		return line, nil
	}
}

// ReaderSource is a task source over any io.Reader, one task per line. It
// returns io.EOF when the reader is exhausted or the source is closed.
type ReaderSource struct {
	lines  *LineReader
	closer io.Closer

	mu     sync.Mutex
	closed bool
}

// NewReaderSource frames tasks from r. If r implements io.Closer, Close
// closes it.
func NewReaderSource(r io.Reader, maxLen int) *ReaderSource {
	s := &ReaderSource{lines: NewLineReader(r, maxLen)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Next returns the next task. The context is checked before each read; a
// read already in progress is not interrupted.
func (s *ReaderSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.isClosed() {
		return "", io.EOF
	}

	line, err := s.lines.ReadLine()
	if err != nil && s.isClosed() {
		return "", io.EOF
	}
	return line, err
}

// Close marks the source closed and closes the underlying reader if it can be
func (s *ReaderSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *ReaderSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
