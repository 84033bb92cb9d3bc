package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/jzx17/fifocopy/internal/logging"
)

const (
	// DefaultPipeMode is the permission used when the pipe is created
	DefaultPipeMode fs.FileMode = 0o666

	wakeAttempts = 100
	wakeInterval = 10 * time.Millisecond
)

var (
	// ErrNotFIFO reports that the pipe path exists but is not a named pipe
	ErrNotFIFO = errors.New("path exists and is not a named pipe")

	// ErrPipeInUse reports that another listener holds the pipe's lock file
	ErrPipeInUse = errors.New("pipe is already served by another listener")
)

// Options configures a FIFO listener
type Options struct {
	// Path of the named pipe. It is created if missing.
	Path string

	// MaxLineLength bounds one task name
	MaxLineLength int

	// Lock takes an exclusive lock on Path + ".lock" for the listener's lifetime
	Lock bool

	// Mode is the permission of a newly created pipe. Zero selects DefaultPipeMode.
	Mode fs.FileMode

	Logger *slog.Logger
}

// FIFO reads newline-framed task names from a named pipe. It waits for a
// writer, reads until that writer disconnects and then waits for the next
// one, so any number of clients can submit tasks one after another.
type FIFO struct {
	path    string
	maxLine int
	lock    *flock.Flock
	logger  *slog.Logger

	mu      sync.Mutex
	file    *os.File
	reader  *LineReader
	opening bool
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

// Open prepares the named pipe and returns a listener for it. It does not
// block waiting for a writer; the first call to Next does.
func Open(opts Options) (*FIFO, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("listener: pipe path is required")
	}
	mode := opts.Mode
	if mode == 0 {
		mode = DefaultPipeMode
	}

	f := &FIFO{
		path:    opts.Path,
		maxLine: opts.MaxLineLength,
		logger:  logging.NewComponentLogger(opts.Logger, "listener"),
	}

	if opts.Lock {
		f.lock = flock.New(opts.Path + ".lock")
		ok, err := f.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire pipe lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPipeInUse, opts.Path)
		}
	}

	created, err := ensureFIFO(opts.Path, mode)
	if err != nil {
		f.unlock()
		return nil, err
	}

	f.logger.Info("listening",
		logging.String("pipe", opts.Path),
		logging.Bool("created", created),
		logging.Bool("locked", opts.Lock),
	)
	return f, nil
}

// ensureFIFO creates path as a named pipe unless a pipe already exists there
func ensureFIFO(path string, mode fs.FileMode) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Mode()&fs.ModeNamedPipe == 0 {
			return false, fmt.Errorf("%w: %s", ErrNotFIFO, path)
		}
		return false, nil
	case errors.Is(err, fs.ErrNotExist):
		if err := unix.Mkfifo(path, uint32(mode.Perm())); err != nil {
			return false, fmt.Errorf("create pipe %s: %w", path, err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("stat pipe %s: %w", path, err)
	}
}

// Path returns the pipe path
func (f *FIFO) Path() string {
	return f.path
}

// Next blocks until a writer delivers the next task name. It returns io.EOF
// once the listener is closed and ctx.Err() once ctx is cancelled; both
// interrupt a pending wait. An over-long line yields an error wrapping
// ErrLineTooLong and leaves the listener usable.
func (f *FIFO) Next(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, f.interrupt)
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		reader, err := f.connect()
		if err != nil {
			if f.isClosed() {
				return "", f.stopErr(ctx)
			}
			return "", err
		}

		line, err := reader.ReadLine()
		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, ErrLineTooLong):
			return "", err
		case f.isClosed():
			f.disconnect()
			return "", f.stopErr(ctx)
		case errors.Is(err, io.EOF):
			f.disconnect()
			f.logger.Debug("writer disconnected", logging.String("pipe", f.path))
		default:
			f.disconnect()
			return "", fmt.Errorf("read pipe %s: %w", f.path, err)
		}
	}
}

func (f *FIFO) stopErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return io.EOF
}

// connect returns the current reader, opening the pipe if needed. Opening
// blocks until a writer connects.
func (f *FIFO) connect() (*LineReader, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, io.EOF
	}
	if f.reader != nil {
		r := f.reader
		f.mu.Unlock()
		return r, nil
	}
	f.opening = true
	f.mu.Unlock()

	f.logger.Debug("waiting for writer", logging.String("pipe", f.path))
	file, err := os.OpenFile(f.path, os.O_RDONLY, 0)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.opening = false

	if err != nil {
		return nil, fmt.Errorf("open pipe %s: %w", f.path, err)
	}
	if f.closed {
		_ = file.Close()
		return nil, io.EOF
	}

	f.file = file
	f.reader = NewLineReader(file, f.maxLine)
	f.logger.Debug("writer connected", logging.String("pipe", f.path))
	return f.reader, nil
}

func (f *FIFO) disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file != nil {
		_ = f.file.Close()
	}
	f.file = nil
	f.reader = nil
}

func (f *FIFO) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FIFO) isOpening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opening
}

// interrupt marks the listener closed and wakes a reader blocked in open or read
func (f *FIFO) interrupt() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	file := f.file
	f.mu.Unlock()

	if file != nil {
		_ = file.Close()
	}

	// A reader blocked in open(2) only returns once a writer appears. Opening
	// the write side without blocking succeeds exactly when a reader is
	// waiting, so retry until the reader has left open.
	for i := 0; i < wakeAttempts && f.isOpening(); i++ {
		if f.wakeOpen() {
			return
		}
		time.Sleep(wakeInterval)
	}
}

func (f *FIFO) wakeOpen() bool {
	fd, err := unix.Open(f.path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return false
	}
	_ = unix.Close(fd)
	return true
}

// Close stops the listener, wakes a blocked Next, removes the pipe and
// releases the lock. It is safe to call more than once.
func (f *FIFO) Close() error {
	f.closeOnce.Do(func() {
		f.interrupt()
		f.disconnect()

		var errs []error
		if err := removeFIFO(f.path); err != nil {
			errs = append(errs, err)
		}
		if err := f.unlock(); err != nil {
			errs = append(errs, err)
		}
		f.closeErr = errors.Join(errs...)
		f.logger.Info("listener closed", logging.String("pipe", f.path))
	})
	return f.closeErr
}

func removeFIFO(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat pipe %s: %w", path, err)
	}
	if info.Mode()&fs.ModeNamedPipe == 0 {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pipe %s: %w", path, err)
	}
	return nil
}

func (f *FIFO) unlock() error {
	if f.lock == nil {
		return nil
	}
	if err := f.lock.Unlock(); err != nil {
		return fmt.Errorf("release pipe lock: %w", err)
	}
	_ = os.Remove(f.lock.Path())
	return nil
}
