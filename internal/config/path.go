// Package config provides configuration utilities for the application.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Default locations for local state. Everything lives under the user's
// data directory so the headless invocation and the foreground listener
// resolve the same files.
const (
	DefaultDatabasePath = "$HOME/.local/share/kosha/kosha.db"
	DefaultSpoolDir     = "$HOME/.local/share/kosha/spool"
	DefaultTokenPath    = "$HOME/.local/share/kosha/token.json"
	DefaultNotifyPath   = "$HOME/.local/share/kosha/notifications.jsonl"
)

// ExpandPath expands ~ and environment variables in a file path.
// It handles both ~ for home directory and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
