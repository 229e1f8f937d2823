package config

import (
	"fmt"
	"io/fs"
	"strings"
)

// PermissionError reports a config file that cannot be read or written.
// It matches fs.ErrPermission.
type PermissionError struct {
	Path    string
	Op      string // "read" or "write"
	Fix     string
	Details string
}

func (e *PermissionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "permission denied (cannot %s config): %s\n", e.Op, e.Path)
	if e.Details != "" {
		b.WriteString(e.Details + "\n")
	}
	b.WriteString("💡 Fix: " + e.Fix)
	return b.String()
}

func (e *PermissionError) Unwrap() error { return fs.ErrPermission }

// ConfigNotFoundError reports a missing config file. It matches
// fs.ErrNotExist so callers can fall back to defaults.
type ConfigNotFoundError struct {
	Path string
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found: %s\n\n💡 %s", e.Path, e.Hint)
}

func (e *ConfigNotFoundError) Unwrap() error { return fs.ErrNotExist }

// InvalidConfigError reports a config that fails to parse or validate.
// Err is the parse or validation failure.
type InvalidConfigError struct {
	Path string
	Err  error
	Hint string
}

func (e *InvalidConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid config: %s\n", e.Path)
	if e.Err != nil {
		b.WriteString(e.Err.Error() + "\n")
	}
	if e.Hint != "" {
		b.WriteString("💡 " + e.Hint)
	}
	return b.String()
}

func (e *InvalidConfigError) Unwrap() error { return e.Err }
