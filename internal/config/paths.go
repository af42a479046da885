package config

import (
	"os"
	"path/filepath"
)

// GetUserConfigDir returns ~/.mplexd, creating nothing — callers that need
// it to exist call EnsureConfigDirs.
func GetUserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".mplexd"), nil
}

// GetProjectDir walks up from the working directory looking for a
// .mplexd or .git directory to treat as the project root.
func GetProjectDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, ".mplexd")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return wd, nil
		}
		dir = parent
	}
}

// EnsureConfigDirs creates the user config dir and the project-local
// override dir.
func EnsureConfigDirs(userConfigDir, projectDir string) error {
	if err := os.MkdirAll(userConfigDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(projectDir, ".mplexd"), 0755)
}
