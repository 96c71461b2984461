// Package env captures details about the vault node's runtime environment,
// such as where to keep on-disk state absent an explicit configuration
// value.
package env

import (
	"os"
	"path/filepath"
)

// DefaultDataDir is the root directory used when Config.DataDir is empty.
// It honors $VAULT_DATA_DIR first, then falls back to a per-user cache
// directory.
var DefaultDataDir = findDefaultDataDir()

func findDefaultDataDir() string {
	if dir := os.Getenv("VAULT_DATA_DIR"); dir != "" {
		return dir
	}
	ucd, err := os.UserCacheDir()
	if err != nil {
		return os.ExpandEnv("$HOME/.vault")
	}
	return filepath.Join(ucd, "vault")
}
