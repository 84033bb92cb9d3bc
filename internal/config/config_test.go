package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/jzx17/fifocopy/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "fifocopy", "config.toml"); resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}
	if cfg.Queue.Capacity != 10 {
		t.Fatalf("expected default capacity 10, got %d", cfg.Queue.Capacity)
	}
	if cfg.Listener.MaxLineLength != 4096 {
		t.Fatalf("unexpected max line length: %d", cfg.Listener.MaxLineLength)
	}
	if !cfg.Listener.Lock {
		t.Fatal("expected pipe locking enabled by default")
	}
	if cfg.Errors.SourcePolicy != "skip" {
		t.Fatalf("unexpected source policy: %q", cfg.Errors.SourcePolicy)
	}
	if cfg.Control.ExitCommand != "exit" {
		t.Fatalf("unexpected exit command: %q", cfg.Control.ExitCommand)
	}
	if cfg.JoinTimeout() != 0 {
		t.Fatalf("expected unbounded join, got %s", cfg.JoinTimeout())
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to require pipe and destination")
	}
}

func TestLoadFileAndExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(t.TempDir(), "fifocopy.toml")
	content := `
[queue]
capacity = 3

[listener]
pipe = "~/fifocopy.pipe"

[copier]
destination = "~/backup"
force = true
file_mode = "0600"

[retry]
max_attempts = 4
initial_delay_ms = 50
max_delay_ms = 400
jitter = 0.2

[errors]
source_policy = " STOP "

[control]
exit_command = "quit"
join_timeout_seconds = 5

[logging]
level = "DEBUG"
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %q to be loaded, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Queue.Capacity != 3 {
		t.Fatalf("unexpected capacity: %d", cfg.Queue.Capacity)
	}
	if cfg.Listener.Pipe != filepath.Join(tempHome, "fifocopy.pipe") {
		t.Fatalf("unexpected pipe: %q", cfg.Listener.Pipe)
	}
	if cfg.Copier.Destination != filepath.Join(tempHome, "backup") {
		t.Fatalf("unexpected destination: %q", cfg.Copier.Destination)
	}
	if !cfg.Copier.Force {
		t.Fatal("expected force to be set")
	}
	mode, err := cfg.FileMode()
	if err != nil || mode != 0o600 {
		t.Fatalf("unexpected file mode %v (err=%v)", mode, err)
	}
	if cfg.Errors.SourcePolicy != "stop" {
		t.Fatalf("expected normalized policy, got %q", cfg.Errors.SourcePolicy)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized level, got %q", cfg.Logging.Level)
	}
	if cfg.RetryInitialDelay() != 50*time.Millisecond || cfg.RetryMaxDelay() != 400*time.Millisecond {
		t.Fatalf("unexpected retry delays: %s %s", cfg.RetryInitialDelay(), cfg.RetryMaxDelay())
	}
	if cfg.Retry.Jitter != 0.2 {
		t.Fatalf("unexpected retry jitter: %v", cfg.Retry.Jitter)
	}
	if cfg.JoinTimeout() != 5*time.Second {
		t.Fatalf("unexpected join timeout: %s", cfg.JoinTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fifocopy.toml")
	if err := os.WriteFile(path, []byte("[queue]\nsize = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"capacity", "[queue]\ncapacity = 0\n", "queue.capacity"},
		{"line length", "[listener]\nmax_line_length = -1\n", "listener.max_line_length"},
		{"file mode", "[copier]\nfile_mode = \"rw-r--r--\"\n", "copier.file_mode"},
		{"file mode bits", "[copier]\nfile_mode = \"4755\"\n", "copier.file_mode"},
		{"retry delays", "[retry]\ninitial_delay_ms = 500\nmax_delay_ms = 100\n", "retry.max_delay_ms"},
		{"retry jitter", "[retry]\njitter = 1.5\n", "retry.jitter"},
		{"policy", "[errors]\nsource_policy = \"ignore\"\n", "expected one of: skip, stop"},
		{"join timeout", "[control]\njoin_timeout_seconds = -1\n", "control.join_timeout_seconds"},
		{"level", "[logging]\nlevel = \"verbose\"\n", "logging.level"},
		{"format", "[logging]\nformat = \"xml\"\n", "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fifocopy.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()

	capacity := 2
	verify := true
	err := cfg.Apply(config.Overrides{
		Pipe:        filepath.Join(dir, "in.pipe"),
		Destination: filepath.Join(dir, "out"),
		Capacity:    &capacity,
		Verify:      &verify,
		LogFormat:   "JSON",
	})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if cfg.Queue.Capacity != 2 {
		t.Fatalf("expected capacity override, got %d", cfg.Queue.Capacity)
	}
	if !cfg.Copier.Verify {
		t.Fatal("expected verify override")
	}
	if cfg.Copier.Force {
		t.Fatal("expected force to keep its default")
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized format, got %q", cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestValidateRejectsSamePipeAndDestination(t *testing.T) {
	cfg := config.Default()
	same := filepath.Join(t.TempDir(), "x")
	if err := cfg.Apply(config.Overrides{Pipe: same, Destination: same}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected identical pipe and destination to be rejected")
	}
}

func TestLogOutputs(t *testing.T) {
	cfg := config.Default()
	if got := cfg.LogOutputs(); len(got) != 1 || got[0] != "stderr" {
		t.Fatalf("unexpected default outputs: %v", got)
	}
	cfg.Logging.File = "/var/log/fifocopy.log"
	if got := cfg.LogOutputs(); len(got) != 1 || got[0] != "/var/log/fifocopy.log" {
		t.Fatalf("unexpected file outputs: %v", got)
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	for _, section := range []string{"queue", "listener", "copier", "retry", "errors", "control", "logging"} {
		if _, ok := raw[section]; !ok {
			t.Fatalf("sample missing [%s] section", section)
		}
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Queue.Capacity != config.Default().Queue.Capacity {
		t.Fatalf("sample capacity differs from default: %d", cfg.Queue.Capacity)
	}
}
