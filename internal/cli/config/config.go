// Package config loads the assetvault configuration from
// assetvault.yml with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the assetvault configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Watch   WatchConfig   `mapstructure:"watch"`
}

// StorageConfig locates the storage root and the library database.
type StorageConfig struct {
	// Root is the directory holding the library, archive, reviews,
	// cold, and retired trees.
	Root string `mapstructure:"root"`
	// DatabasePath overrides the default {root}/.meta/database.db.
	DatabasePath string `mapstructure:"database_path"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// WatchConfig controls the library tree watcher.
type WatchConfig struct {
	Patterns []string `mapstructure:"patterns"`
}

// Load reads assetvault.yml (or .yaml) from the working directory,
// applying defaults and environment overrides.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("storage.root", ".")
	v.SetDefault("log.level", "info")
	v.SetDefault("watch.patterns", []string{"*.blend", "*.json"})

	v.SetConfigName("assetvault")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ASSETVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DatabasePath resolves the database file location: an explicit
// override wins, else {root}/.meta/database.db.
func (c *Config) DatabasePath() string {
	if c.Storage.DatabasePath != "" {
		return c.Storage.DatabasePath
	}
	return filepath.Join(c.Storage.Root, ".meta", "database.db")
}

// FindStorageRoot walks up from the working directory looking for an
// assetvault.yml or a .meta/database.db marker.
func FindStorageRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, marker := range []string{"assetvault.yml", "assetvault.yaml", filepath.Join(".meta", "database.db")} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not inside an asset library (no assetvault.yml found)")
		}
		dir = parent
	}
}

func validate(cfg *Config) error {
	if cfg.Storage.Root == "" {
		return fmt.Errorf("storage.root must not be empty")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got: %s", cfg.Log.Level)
	}
	return nil
}
