package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/toolgate/assets"
	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/pkg/filesystem"
	"github.com/doeshing/toolgate/internal/ports"
)

// FileLoader loads YAML configuration from ~/.toolgate/config.yaml
// (overridable via TOOLGATE_CONFIG). The file is re-read on every Load so
// edits take effect on the next query without a restart.
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader. path overrides all other resolution
// when non-empty.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

var _ ports.ConfigProvider = (*FileLoader)(nil)

// Load implements ports.ConfigProvider.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.Path()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if err := os.WriteFile(path, assets.DefaultConfigYAML, domain.SecureFilePermissions); err != nil {
				return domain.Config{}, err
			}
			data = assets.DefaultConfigYAML
		} else {
			return domain.Config{}, err
		}
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, err
	}

	return hydrateDefaults(cfg), nil
}

// Path reports the config file location this loader reads.
func (l *FileLoader) Path() string {
	if l.overridePath != "" {
		return expandPath(l.overridePath)
	}
	if custom := os.Getenv("TOOLGATE_CONFIG"); custom != "" {
		return expandPath(custom)
	}
	return filepath.Join(filesystem.ToolgateDir(), "config.yaml")
}

func ensureConfigDir(path string) error {
	return filesystem.EnsureDir(filepath.Dir(path), domain.DirectoryPermissions)
}

func hydrateDefaults(cfg domain.Config) domain.Config {
	if cfg.ConfigFormatVersion == "" {
		cfg.ConfigFormatVersion = "1.0"
	}
	if cfg.Provider.SystemPrompt == "" {
		cfg.Provider.SystemPrompt = assets.DefaultSystemPrompt
	}
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = filepath.Join(filesystem.ToolgateDir(), "sessions")
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(filesystem.ToolgateDir(), "audit.db")
	}
	return cfg
}

func expandPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if len(path) > 1 && path[:2] == "~/" {
		return filepath.Join(filesystem.UserHomeDir(), path[2:])
	}
	return filepath.Clean(path)
}
