package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/fifocopy/internal/logging"
)

func TestConsoleLoggerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Writer: &buf})
	require.NoError(t, err)

	logger = logging.NewComponentLogger(logger, "copier")
	logger.Info("copy failed",
		logging.Task("/tmp/my file.txt"),
		logging.Error(errors.New("exists")),
	)

	line := buf.String()
	assert.Contains(t, line, " INFO copier: copy failed")
	assert.Contains(t, line, `task="/tmp/my file.txt"`)
	assert.Contains(t, line, "error=exists")
	assert.NotContains(t, line, "component=")
	assert.NotContains(t, line, ".go:", "info lines carry no source location")
}

func TestConsoleLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN shown")
}

func TestConsoleLoggerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Writer: &buf})
	require.NoError(t, err)

	logger.WithGroup("queue").Info("stats", logging.Int("len", 3))

	assert.Contains(t, buf.String(), "queue.len=3")
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Writer: &buf})
	require.NoError(t, err)

	logger.Info("started", logging.String(logging.FieldRunID, "abc"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "info", record["level"])
	assert.Equal(t, "started", record["msg"])
	assert.Equal(t, "abc", record[logging.FieldRunID])
	assert.Contains(t, record, "ts")
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml", Writer: &bytes.Buffer{}})
	assert.Error(t, err)
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fifocopy.log")

	logger, err := logging.New(logging.Options{OutputPaths: []string{path}})
	require.NoError(t, err)
	logger.Info("to file")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "to file"))
}

func TestValidLevelAndFormat(t *testing.T) {
	for _, level := range []string{"", "debug", "INFO", "warn", "error"} {
		assert.True(t, logging.ValidLevel(level), level)
	}
	assert.False(t, logging.ValidLevel("verbose"))

	for _, format := range []string{"", "console", "JSON"} {
		assert.True(t, logging.ValidFormat(format), format)
	}
	assert.False(t, logging.ValidFormat("xml"))
}

func TestNopLogger(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("ignored")
	assert.NotNil(t, logging.OrNop(nil))
	assert.Same(t, logger, logging.OrNop(logger))
}
