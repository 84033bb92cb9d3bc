// Package testutils provides shared helpers for fifocopy tests
package testutils

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig test configuration
type TestConfig struct {
	Timeout  time.Duration
	Capacity int
}

// TestContext simplified test context
type TestContext struct {
	t       *testing.T
	config  *TestConfig
	cleanup []func()
	mu      sync.Mutex
}

// NewTestContext creates new test context
func NewTestContext(t *testing.T, config *TestConfig) *TestContext {
	if config == nil {
		config = &TestConfig{
			Timeout:  5 * time.Second,
			Capacity: 10,
		}
	}

	tc := &TestContext{
		t:      t,
		config: config,
	}
	t.Cleanup(tc.Cleanup)
	return tc
}

// T returns testing.T instance
func (tc *TestContext) T() *testing.T {
	return tc.t
}

// Config returns the test configuration
func (tc *TestContext) Config() *TestConfig {
	return tc.config
}

// Context returns context with timeout
func (tc *TestContext) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), tc.config.Timeout)
	tc.AddCleanup(cancel)
	return ctx
}

// AddCleanup adds cleanup function
func (tc *TestContext) AddCleanup(fn func()) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.cleanup = append(tc.cleanup, fn)
}

// Cleanup executes cleanup functions in reverse order
func (tc *TestContext) Cleanup() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	for i := len(tc.cleanup) - 1; i >= 0; i-- {
		tc.cleanup[i]()
	}
	tc.cleanup = nil
}

// WriteFile creates dir/name with content and returns its path
func (tc *TestContext) WriteFile(dir, name, content string) string {
	tc.t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(tc.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tc.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// WaitClosed fails the test if ch is not closed within the configured timeout
func (tc *TestContext) WaitClosed(ch <-chan struct{}, msgAndArgs ...interface{}) {
	tc.t.Helper()
	select {
	case <-ch:
	case <-time.After(tc.config.Timeout):
		require.FailNow(tc.t, "timed out waiting for channel close", msgAndArgs...)
	}
}

// AssertEventually waits for condition to be true
func (tc *TestContext) AssertEventually(condition func() bool, msgAndArgs ...interface{}) {
	assert.Eventually(tc.t, condition, tc.config.Timeout, time.Millisecond, msgAndArgs...)
}
