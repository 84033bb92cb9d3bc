// Package config loads, normalizes and validates fifocopy configuration.
//
// Settings come from built-in defaults, then an optional TOML file, then
// command-line overrides. Paths are expanded (including a leading ~) and made
// absolute before validation, so downstream packages receive clean values.
package config
