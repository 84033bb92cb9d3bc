// Package copier implements the consumer's sink: it copies each task's file
// into a destination directory.
package copier

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/jzx17/fifocopy/internal/logging"
	"github.com/jzx17/fifocopy/pkg/types"
)

// DefaultFileMode is the permission of newly created destination files
const DefaultFileMode fs.FileMode = 0o644

var (
	// ErrDestinationExists reports an existing destination file when overwriting is off
	ErrDestinationExists = errors.New("destination already exists and force is off")

	// ErrSameFile reports a source and destination that are the same file
	ErrSameFile = errors.New("source and destination are the same file")

	// ErrNotRegular reports a source that is not a regular file
	ErrNotRegular = errors.New("source is not a regular file")
)

// Options configures a Copier
type Options struct {
	// Destination directory. It must exist.
	Destination string

	// Force overwrites existing destination files
	Force bool

	// Verify compares SHA-256 digests and sizes after each copy
	Verify bool

	// FileMode of created files. Zero selects DefaultFileMode.
	FileMode fs.FileMode

	Logger *slog.Logger
}

// Copier copies files named by tasks into one destination directory. It is
// safe for use by one consumer at a time; statistics may be read concurrently.
type Copier struct {
	dest   string
	force  bool
	verify bool
	mode   fs.FileMode
	logger *slog.Logger

	openSource func(path string) (io.ReadCloser, error)

	files int64
	bytes int64
}

// New validates the destination directory and returns a Copier
func New(opts Options) (*Copier, error) {
	if opts.Destination == "" {
		return nil, fmt.Errorf("copier: destination is required")
	}
	info, err := os.Stat(opts.Destination)
	if err != nil {
		return nil, fmt.Errorf("copier: destination: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("copier: destination %s is not a directory", opts.Destination)
	}

	mode := opts.FileMode
	if mode == 0 {
		mode = DefaultFileMode
	}

	return &Copier{
		dest:   opts.Destination,
		force:  opts.Force,
		verify: opts.Verify,
		mode:   mode,
		logger: logging.NewComponentLogger(opts.Logger, "copier"),
		openSource: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// DestinationFor returns where task is copied to: the destination directory
// joined with the task's base name.
func (c *Copier) DestinationFor(task string) string {
	return filepath.Join(c.dest, filepath.Base(task))
}

// Process copies the file named by task. Transient I/O failures are returned
// as retryable errors.
func (c *Copier) Process(ctx context.Context, task string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcInfo, err := os.Stat(task)
	if err != nil {
		return classify(fmt.Errorf("stat source: %w", err))
	}
	if !srcInfo.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegular, task)
	}

	dst := c.DestinationFor(task)
	if dstInfo, err := os.Stat(dst); err == nil {
		if os.SameFile(srcInfo, dstInfo) {
			return fmt.Errorf("%w: %s", ErrSameFile, dst)
		}
		if !c.force {
			return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return classify(fmt.Errorf("stat destination: %w", err))
	}

	written, err := c.copyFile(ctx, task, dst, srcInfo.Size())
	if err != nil {
		return classify(err)
	}

	atomic.AddInt64(&c.files, 1)
	atomic.AddInt64(&c.bytes, written)

	c.logger.Info("copied",
		logging.Task(task),
		logging.String("destination", dst),
		logging.String("size", humanize.Bytes(uint64(written))),
		logging.Bool("verified", c.verify),
	)
	return nil
}

// Files returns the number of files copied
func (c *Copier) Files() int64 {
	return atomic.LoadInt64(&c.files)
}

// Bytes returns the number of bytes copied
func (c *Copier) Bytes() int64 {
	return atomic.LoadInt64(&c.bytes)
}

// copyFile writes src into a temporary file next to dst and renames it into
// place once complete, so a failed or cancelled copy never leaves a partial
// dst behind. With verify on, the staged file is re-read and compared with
// the source digest before the rename.
func (c *Copier) copyFile(ctx context.Context, src, dst string, srcSize int64) (int64, error) {
	in, err := c.openSource(src)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create destination: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(c.mode); err != nil {
		return 0, fmt.Errorf("set destination mode: %w", err)
	}

	srcHasher := sha256.New()
	var r io.Reader = &contextReader{ctx: ctx, r: in}
	if c.verify {
		r = io.TeeReader(r, srcHasher)
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		return written, fmt.Errorf("copy %s: %w", src, err)
	}
	if c.verify {
		if err := tmp.Sync(); err != nil {
			return written, fmt.Errorf("sync destination: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("close destination: %w", err)
	}

	if c.verify {
		if written != srcSize {
			return written, fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
		}
		dstSum, err := fileDigest(ctx, tmpPath)
		if err != nil {
			return written, err
		}
		if !bytes.Equal(srcHasher.Sum(nil), dstSum) {
			return written, fmt.Errorf("copy hash mismatch: file corrupted during copy")
		}
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return written, fmt.Errorf("move into place: %w", err)
	}
	committed = true
	return written, nil
}

func fileDigest(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open for verification: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, &contextReader{ctx: ctx, r: f}); err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}
	return hasher.Sum(nil), nil
}

// contextReader stops a copy once its context is cancelled
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// classify marks errors worth retrying
func classify(err error) error {
	if IsTransient(err) {
		return types.NewRetryableError(err)
	}
	return err
}

// IsTransient reports whether err is an interrupted, would-block or busy
// system call that may succeed when repeated
func IsTransient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EBUSY)
}
