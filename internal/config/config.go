package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/matheus3301/clinic/internal/paths"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvDBFile        = "DB_FILE"
	EnvMigrationsDir = "CLINIC_MIGRATIONS_DIR"
	EnvLogLevel      = "CLINIC_LOG_LEVEL"
	EnvHTTPAddr      = "CLINIC_HTTP_ADDR"
	EnvMaxRetries    = "CLINIC_DB_MAX_RETRIES"
)

// Config represents $CLINIC_HOME/config.toml.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Retry    RetryConfig    `toml:"retry"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig locates and tunes the SQLite file.
type DatabaseConfig struct {
	Path          string   `toml:"path"`
	LegacyPath    string   `toml:"legacy_path"`
	MigrationsDir string   `toml:"migrations_dir"` // empty = embedded schema
	BusyTimeout   Duration `toml:"busy_timeout"`
	MaxOpenConns  int      `toml:"max_open_conns"`
}

// RetryConfig holds the busy-retry defaults.
type RetryConfig struct {
	MaxRetries        int      `toml:"max_retries"`
	BaseDelay         Duration `toml:"base_delay"`
	ConnectDelay      Duration `toml:"connect_delay"`
	ConnectMaxRetries int      `toml:"connect_max_retries"` // negative = unlimited
}

// ServerConfig configures the daemon's control socket and ops HTTP listener.
type ServerConfig struct {
	Socket          string   `toml:"socket"`
	HTTPAddr        string   `toml:"http_addr"` // empty disables the ops listener
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// LogConfig configures the daemon logger.
type LogConfig struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			LegacyPath:   paths.LegacyDBPath,
			BusyTimeout:  Duration(60 * time.Second),
			MaxOpenConns: 1,
		},
		Retry: RetryConfig{
			MaxRetries:        3,
			BaseDelay:         Duration(500 * time.Millisecond),
			ConnectDelay:      Duration(time.Second),
			ConnectMaxRetries: 30,
		},
		Server: ServerConfig{
			HTTPAddr:        "127.0.0.1:9464",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads config from the given path on top of Default. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Resolve builds the process configuration: .env files, then the TOML file
// at path (optional), then environment overrides. The result is validated.
// An empty path means paths.ConfigPath.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = paths.ConfigPath()
	}
	if err := LoadEnvFiles(".env", paths.EnvPath()); err != nil {
		return nil, err
	}
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadEnvFiles loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped; variables already set win.
func LoadEnvFiles(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables on cfg.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvDBFile); v != "" {
		c.Database.Path = v
	}
	if v, ok := os.LookupEnv(EnvMigrationsDir); ok {
		c.Database.MigrationsDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvHTTPAddr); ok {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxRetries, err)
		}
		c.Retry.MaxRetries = n
	}
	return nil
}

// Validate rejects values the database core cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Retry.MaxRetries < 0:
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	case c.Retry.BaseDelay < 0 || c.Retry.ConnectDelay < 0:
		return errors.New("retry delays must not be negative")
	case c.Database.BusyTimeout < 0:
		return errors.New("database.busy_timeout must not be negative")
	case c.Database.MaxOpenConns < 1:
		return fmt.Errorf("database.max_open_conns must be >= 1, got %d", c.Database.MaxOpenConns)
	}
	return nil
}

// DBPath resolves the database file location.
func (c *Config) DBPath() string {
	return paths.ResolveDBPath(c.Database.Path, c.Database.LegacyPath)
}

// SocketPath returns the configured control socket, or the default one.
func (c *Config) SocketPath() string {
	if c.Server.Socket != "" {
		return c.Server.Socket
	}
	return paths.SocketPath()
}

// LogPath returns the configured log file, or the default one.
func (c *Config) LogPath() string {
	if c.Log.Path != "" {
		return c.Log.Path
	}
	return paths.LogPath()
}
