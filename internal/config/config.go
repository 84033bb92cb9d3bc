package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Queue configures the bounded task queue.
type Queue struct {
	Capacity int `toml:"capacity"`
}

// Listener configures the named pipe the producer reads from.
type Listener struct {
	Pipe          string `toml:"pipe"`
	MaxLineLength int    `toml:"max_line_length"`
	Lock          bool   `toml:"lock"`
}

// Copier configures the file-copy sink.
type Copier struct {
	Destination string `toml:"destination"`
	Force       bool   `toml:"force"`
	Verify      bool   `toml:"verify"`
	FileMode    string `toml:"file_mode"`
}

// Retry configures retries of transient copy failures. MaxAttempts counts the
// first attempt; zero or one disables retries. Jitter is the fraction by which
// each delay may vary; zero keeps delays exact.
type Retry struct {
	MaxAttempts    int     `toml:"max_attempts"`
	InitialDelayMS int     `toml:"initial_delay_ms"`
	MaxDelayMS     int     `toml:"max_delay_ms"`
	Jitter         float64 `toml:"jitter"`
}

// Errors configures how source failures are handled.
type Errors struct {
	SourcePolicy string `toml:"source_policy"`
}

// Control configures the interactive shutdown trigger.
type Control struct {
	ExitCommand        string `toml:"exit_command"`
	JoinTimeoutSeconds int    `toml:"join_timeout_seconds"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for fifocopy.
type Config struct {
	Queue    Queue    `toml:"queue"`
	Listener Listener `toml:"listener"`
	Copier   Copier   `toml:"copier"`
	Retry    Retry    `toml:"retry"`
	Errors   Errors   `toml:"errors"`
	Control  Control  `toml:"control"`
	Logging  Logging  `toml:"logging"`
}

// Overrides carries command-line values that take precedence over the file.
// Nil pointers and empty strings leave the file value in place.
type Overrides struct {
	Pipe        string
	Destination string
	Capacity    *int
	Force       *bool
	Verify      *bool
	LogLevel    string
	LogFormat   string
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses and normalizes a configuration file, and validates
// every setting that does not depend on command-line arguments. A missing
// file yields the defaults. It returns the resolved path and whether the
// file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.validateSettings(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(defaultProjectConfig)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// Apply merges command-line overrides into the configuration and normalizes
// the result.
func (c *Config) Apply(o Overrides) error {
	if o.Pipe != "" {
		c.Listener.Pipe = o.Pipe
	}
	if o.Destination != "" {
		c.Copier.Destination = o.Destination
	}
	if o.Capacity != nil {
		c.Queue.Capacity = *o.Capacity
	}
	if o.Force != nil {
		c.Copier.Force = *o.Force
	}
	if o.Verify != nil {
		c.Copier.Verify = *o.Verify
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Logging.Format = o.LogFormat
	}
	return c.normalize()
}

// FileMode returns the parsed copier.file_mode.
func (c *Config) FileMode() (fs.FileMode, error) {
	value, err := strconv.ParseUint(strings.TrimPrefix(c.Copier.FileMode, "0o"), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("copier.file_mode %q: not an octal permission", c.Copier.FileMode)
	}
	if value > 0o777 {
		return 0, fmt.Errorf("copier.file_mode %q: only permission bits are allowed", c.Copier.FileMode)
	}
	return fs.FileMode(value), nil
}

// JoinTimeout returns control.join_timeout_seconds as a duration; zero means wait indefinitely.
func (c *Config) JoinTimeout() time.Duration {
	return time.Duration(c.Control.JoinTimeoutSeconds) * time.Second
}

// RetryInitialDelay returns retry.initial_delay_ms as a duration.
func (c *Config) RetryInitialDelay() time.Duration {
	return time.Duration(c.Retry.InitialDelayMS) * time.Millisecond
}

// RetryMaxDelay returns retry.max_delay_ms as a duration.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
}

// LogOutputs returns the log destinations: the configured file, or stderr.
func (c *Config) LogOutputs() []string {
	if c.Logging.File == "" {
		return []string{"stderr"}
	}
	return []string{c.Logging.File}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
