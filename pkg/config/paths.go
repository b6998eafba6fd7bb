package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveRelativePath resolves a path relative to the config file's directory
// Handles relative paths, absolute paths, and tilde expansion
func ResolveRelativePath(configDir, path string) (string, error) {
	path, err := expandHome(path)
	if err != nil {
		return "", err
	}

	// If already absolute, return as-is
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}

	// Resolve relative to config directory
	return filepath.Clean(filepath.Join(configDir, path)), nil
}

// NormalizePath expands ~/ and makes path absolute against the working directory
func NormalizePath(path string) (string, error) {
	path, err := expandHome(path)
	if err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
