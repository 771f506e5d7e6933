package config

import (
	"os"
	"path/filepath"

	"w2wcli/internal/errors"
)

const (
	appDirName     = "w2w"
	configFileName = "config.yaml"
	tokenFileName  = ".withings_tokens.json"

	// ConfigDirEnv overrides the config directory root, mainly for tests.
	ConfigDirEnv = "W2W_CONFIG_DIR"
)

// ConfigDir returns the configuration directory without creating it.
func ConfigDir() string {
	if override := os.Getenv(ConfigDirEnv); override != "" {
		return override
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Last resort: keep files next to the working directory.
		return appDirName
	}
	return filepath.Join(home, ".config", appDirName)
}

// EnsureConfigDir creates the configuration directory if needed.
func EnsureConfigDir() (string, error) {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", errors.NewStorageError("failed to create config directory", err).
			WithContext("path", dir)
	}
	return dir, nil
}

// ConfigFilePath returns the YAML config file path inside the config dir.
func ConfigFilePath() string {
	return filepath.Join(ConfigDir(), configFileName)
}

// TokenPath returns the OAuth token file path inside the config dir.
func TokenPath() string {
	return filepath.Join(ConfigDir(), tokenFileName)
}

// LogPath returns the path for a named log file inside the config dir.
func LogPath(name string) string {
	return filepath.Join(ConfigDir(), "logs", name)
}
