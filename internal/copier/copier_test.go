package copier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/jzx17/fifocopy/internal/logging"
	"github.com/jzx17/fifocopy/internal/testutils"
	"github.com/jzx17/fifocopy/pkg/retry"
	"github.com/jzx17/fifocopy/pkg/types"
)

func newCopier(t *testing.T, opts Options) *Copier {
	t.Helper()
	if opts.Destination == "" {
		opts.Destination = t.TempDir()
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	tc := testutils.NewTestContext(t, nil)
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Destination: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, fs.ErrNotExist)

	file := tc.WriteFile(t.TempDir(), "plain", "x")
	_, err = New(Options{Destination: file})
	assert.Error(t, err)
}

func TestProcess_CopiesIntoDestination(t *testing.T) {
	tc := testutils.NewTestContext(t, nil)
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Writer: &buf})
	require.NoError(t, err)

	src := tc.WriteFile(t.TempDir(), "report.txt", "hello world")
	c := newCopier(t, Options{Logger: logger})

	require.NoError(t, c.Process(context.Background(), src))

	dst := c.DestinationFor(src)
	assert.Equal(t, "report.txt", filepath.Base(dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	assert.Equal(t, int64(1), c.Files())
	assert.Equal(t, int64(11), c.Bytes())
	assert.Contains(t, buf.String(), "copier: copied")
	assert.Contains(t, buf.String(), "size=\"11 B\"")
}

func TestProcess_DestinationExists(t *testing.T) {
	tc := testutils.NewTestContext(t, nil)
	src := tc.WriteFile(t.TempDir(), "a.txt", "new")
	dest := t.TempDir()
	existing := tc.WriteFile(dest, "a.txt", "old")

	c := newCopier(t, Options{Destination: dest})
	err := c.Process(context.Background(), src)

	assert.ErrorIs(t, err, ErrDestinationExists)
	assert.False(t, types.IsRetryable(err))
	got, _ := os.ReadFile(existing)
	assert.Equal(t, "old", string(got), "existing file untouched")
	assert.Zero(t, c.Files())
}

func TestProcess_ForceOverwrites(t *testing.T) {
	tc := testutils.NewTestContext(t, nil)
	src := tc.WriteFile(t.TempDir(), "a.txt", "new")
	dest := t.TempDir()
	existing := tc.WriteFile(dest, "a.txt", "older and longer")

	c := newCopier(t, Options{Destination: dest, Force: true})
	require.NoError(t, c.Process(context.Background(), src))

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestProcess_SameFile(t *testing.T) {
	tc := testutils.NewTestContext(t, nil)
	dest := t.TempDir()
	src := tc.WriteFile(dest, "a.txt", "content")

	c := newCopier(t, Options{Destination: dest, Force: true})
	err := c.Process(context.Background(), src)

	assert.ErrorIs(t, err, ErrSameFile)
	got, _ := os.ReadFile(src)
	assert.Equal(t, "content", string(got))
}

func TestProcess_SourceErrors(t *testing.T) {
	c := newCopier(t, Options{})

	err := c.Process(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, types.IsRetryable(err))

	err = c.Process(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNotRegular)
}

func TestProcess_Verify(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 10000)
	dir := t.TempDir()
	src := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(src, payload, 0o600))

	c := newCopier(t, Options{Verify: true})
	require.NoError(t, c.Process(context.Background(), src))

	got, err := os.ReadFile(c.DestinationFor(src))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), c.Bytes())
}

func TestProcess_FileMode(t *testing.T) {
	tc := testutils.NewTestContext(t, nil)
	src := tc.WriteFile(t.TempDir(), "run.sh", "#!/bin/sh\n")
	c := newCopier(t, Options{FileMode: 0o755})

	require.NoError(t, c.Process(context.Background(), src))

	info, err := os.Stat(c.DestinationFor(src))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o111, "executable bits set")
}

func TestProcess_Cancelled(t *testing.T) {
	tc := testutils.NewTestContext(t, nil)
	src := tc.WriteFile(t.TempDir(), "a.txt", "x")
	c := newCopier(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Process(ctx, src), context.Canceled)
	_, err := os.Stat(c.DestinationFor(src))
	assert.True(t, os.IsNotExist(err))
}

// interruptedReader returns part of its data and then fails with EINTR
type interruptedReader struct {
	data []byte
	done bool
}

func (r *interruptedReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, unix.EINTR
	}
	r.done = true
	return copy(p, r.data), nil
}

func (r *interruptedReader) Close() error { return nil }

func TestProcess_InterruptedCopyLeavesNothingAndRetries(t *testing.T) {
	tc := testutils.NewTestContext(t, nil)
	src := tc.WriteFile(t.TempDir(), "a.txt", "complete content")
	dest := t.TempDir()
	c := newCopier(t, Options{Destination: dest})

	opens := 0
	c.openSource = func(path string) (io.ReadCloser, error) {
		opens++
		if opens == 1 {
			return &interruptedReader{data: []byte("comp")}, nil
		}
		return os.Open(path)
	}

	err := c.Process(context.Background(), src)
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial or temporary file left behind")

	executor := retry.NewRetryExecutor(retry.NewFixedDelayRetry(3, 0))
	opens = 0
	_, err = retry.Execute(executor, context.Background(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Process(ctx, src)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, opens)

	got, err := os.ReadFile(c.DestinationFor(src))
	require.NoError(t, err)
	assert.Equal(t, "complete content", string(got))

	entries, err = os.ReadDir(dest)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcess_CancelledMidCopyLeavesNothing(t *testing.T) {
	tc := testutils.NewTestContext(t, nil)
	src := tc.WriteFile(t.TempDir(), "a.txt", "content")
	dest := t.TempDir()
	c := newCopier(t, Options{Destination: dest, Verify: true})

	ctx, cancel := context.WithCancel(context.Background())
	c.openSource = func(path string) (io.ReadCloser, error) {
		cancel()
		return os.Open(path)
	}

	assert.ErrorIs(t, c.Process(ctx, src), context.Canceled)
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{unix.EINTR, true},
		{fmt.Errorf("copy: %w", unix.EAGAIN), true},
		{&fs.PathError{Op: "open", Path: "/x", Err: unix.EBUSY}, true},
		{fs.ErrNotExist, false},
		{errors.New("other"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransient(tt.err), tt.err.Error())
		assert.Equal(t, tt.want, types.IsRetryable(classify(tt.err)), tt.err.Error())
	}
}
