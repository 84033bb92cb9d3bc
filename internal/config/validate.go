package config

import (
	"errors"
	"fmt"
	"strings"

	errhandler "github.com/jzx17/fifocopy/internal/errors"
	"github.com/jzx17/fifocopy/internal/logging"
)

// Validate ensures the configuration is usable for a run, including the
// pipe and destination that usually come from the command line.
func (c *Config) Validate() error {
	if err := c.validateSettings(); err != nil {
		return err
	}
	if c.Listener.Pipe == "" {
		return errors.New("listener.pipe must be set")
	}
	if c.Copier.Destination == "" {
		return errors.New("copier.destination must be set")
	}
	if c.Listener.Pipe == c.Copier.Destination {
		return errors.New("listener.pipe and copier.destination must differ")
	}
	return nil
}

func (c *Config) validateSettings() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateListener(); err != nil {
		return err
	}
	if _, err := c.FileMode(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if !errhandler.ValidPolicy(c.Errors.SourcePolicy) {
		return fmt.Errorf("errors.source_policy %q: expected one of: %s", c.Errors.SourcePolicy, strings.Join(errhandler.PolicyNames(), ", "))
	}
	if c.Control.JoinTimeoutSeconds < 0 {
		return errors.New("control.join_timeout_seconds must be zero or positive")
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q: expected debug, info, warn or error", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("logging.format %q: expected console or json", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be positive, got %d", c.Queue.Capacity)
	}
	return nil
}

func (c *Config) validateListener() error {
	if c.Listener.MaxLineLength <= 0 {
		return errors.New("listener.max_line_length must be positive")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 0 {
		return errors.New("retry.max_attempts must be zero or positive")
	}
	if c.Retry.InitialDelayMS < 0 {
		return errors.New("retry.initial_delay_ms must be zero or positive")
	}
	if c.Retry.MaxDelayMS < 0 {
		return errors.New("retry.max_delay_ms must be zero or positive")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return errors.New("retry.jitter must be between 0 and 1")
	}
	if c.Retry.MaxDelayMS > 0 && c.Retry.MaxDelayMS < c.Retry.InitialDelayMS {
		return errors.New("retry.max_delay_ms must not be below retry.initial_delay_ms")
	}
	return nil
}
