package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the project-level config file name, searched for
	// upward from the working directory.
	ProjectConfigFile = "lnaes.yaml"

	// UserConfigDir is the user-level config directory under $HOME.
	UserConfigDir = ".config/lnaes"

	// UserConfigFile is the user-level config file name.
	UserConfigFile = "config.yaml"
)

// Loader loads configuration with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load resolves configuration in order: defaults, user config
// (~/.config/lnaes/config.yaml), then project config (lnaes.yaml in the
// current or a parent directory). Later layers win.
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userPath := l.userConfigPath()
	if userConfig, err := LoadFromFile(userPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userPath))
		config.Merge(userConfig)
	} else if !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("Failed to load user config",
			slog.String("path", userPath), slog.String("error", err.Error()))
	}

	if projectPath := l.findProjectConfig(); projectPath != "" {
		if projectConfig, err := LoadFromFile(projectPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config",
				slog.String("path", projectPath), slog.String("error", err.Error()))
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig walks from the working directory to the filesystem root
// looking for the project config file.
func (l *Loader) findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
