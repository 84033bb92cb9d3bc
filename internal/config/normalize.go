package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Listener.Pipe, err = expandPath(strings.TrimSpace(c.Listener.Pipe)); err != nil {
		return fmt.Errorf("listener.pipe: %w", err)
	}
	if c.Copier.Destination, err = expandPath(strings.TrimSpace(c.Copier.Destination)); err != nil {
		return fmt.Errorf("copier.destination: %w", err)
	}
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}

	c.Copier.FileMode = strings.TrimSpace(c.Copier.FileMode)
	if c.Copier.FileMode == "" {
		c.Copier.FileMode = defaultFileMode
	}

	c.Errors.SourcePolicy = strings.ToLower(strings.TrimSpace(c.Errors.SourcePolicy))
	if c.Errors.SourcePolicy == "" {
		c.Errors.SourcePolicy = defaultSourcePolicy
	}

	c.Control.ExitCommand = strings.TrimSpace(c.Control.ExitCommand)
	if c.Control.ExitCommand == "" {
		c.Control.ExitCommand = defaultExitCommand
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	return nil
}
