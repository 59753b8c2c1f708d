// Package datadir resolves the directory holding the client's durable state.
package datadir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default data directory name under $HOME.
	DefaultDirName = ".tether"

	// EnvVar is the environment variable that overrides the data directory.
	EnvVar = "TETHER_DATA_DIR"
)

// Resolve returns the data directory path, creating it with 0700 permissions
// if it doesn't already exist.
//
// Resolution priority:
//  1. TETHER_DATA_DIR environment variable
//  2. configValue argument (from the config file's data_dir field)
//  3. ~/.tether/
func Resolve(configValue string) (string, error) {
	dir := os.Getenv(EnvVar)
	if dir == "" {
		dir = configValue
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDirName)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return dir, nil
}

// FilePath returns the full path to a file inside the data directory,
// ensuring the directory exists.
func FilePath(configValue, filename string) (string, error) {
	dir, err := Resolve(configValue)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}
