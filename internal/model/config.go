package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// APIConfig holds the remote service connection settings.
type APIConfig struct {
	// BaseURL is the root URL of the remote API (e.g., https://uptask.example.com/api).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds every HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// RequestsPerSecond limits outbound calls. Zero disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// LogConfig holds logging settings. Logs go to a file because the TUI
// owns the terminal.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	File   string `mapstructure:"file" yaml:"file"`
	Format string `mapstructure:"format" yaml:"format"`
}

// CacheConfig holds the offline project cache settings.
type CacheConfig struct {
	// Path is the SQLite database file. Empty disables the cache.
	Path string `mapstructure:"path" yaml:"path"`
}

// KeyringConfig holds token storage settings.
type KeyringConfig struct {
	// FileDir is used by the encrypted-file fallback backend.
	FileDir string `mapstructure:"file_dir" yaml:"file_dir"`
}

// SyncConfig controls background refreshing of loaded projects.
type SyncConfig struct {
	// IntervalSec is how often projects are reloaded. Zero disables it.
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Keyring KeyringConfig `mapstructure:"keyring" yaml:"keyring"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
}

// ConfigDir returns ~/.config/uptask, falling back to the working directory.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "uptask")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/uptask/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func defaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		API: APIConfig{
			BaseURL:           "http://localhost:4000/api",
			TimeoutSec:        30,
			RequestsPerSecond: 10,
		},
		Log: LogConfig{
			Level:  "info",
			File:   filepath.Join(dir, "uptask.log"),
			Format: "text",
		},
		Cache: CacheConfig{
			Path: filepath.Join(dir, "cache.db"),
		},
		Keyring: KeyringConfig{
			FileDir: filepath.Join(dir, "credentials"),
		},
		Sync: SyncConfig{
			IntervalSec: 60,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values may be overridden by UPTASK_* environment variables, which are
// also read from a .env file in the working directory when present.
// If the config file does not exist, defaults are used.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("uptask")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout_sec", def.API.TimeoutSec)
	v.SetDefault("api.requests_per_second", def.API.RequestsPerSecond)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("cache.path", def.Cache.Path)
	v.SetDefault("keyring.file_dir", def.Keyring.FileDir)
	v.SetDefault("sync.interval_sec", def.Sync.IntervalSec)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := def
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.API.TimeoutSec <= 0 {
		cfg.API.TimeoutSec = 30
	}
	if cfg.Sync.IntervalSec < 0 {
		cfg.Sync.IntervalSec = 0
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("log", cfg.Log)
	v.Set("cache", cfg.Cache)
	v.Set("keyring", cfg.Keyring)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
