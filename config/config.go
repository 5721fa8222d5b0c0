// Package config loads gateway settings from the environment, overlaid by
// an optional TOML file. The file may be edited while the gateway runs;
// Store applies the hot-reloadable subset.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	toml "github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config is the full gateway configuration. Defaults are loaded via
// envdecode struct tags.
type Config struct {
	// ListenAddr is the gRPC address cores connect to. ENV: KRITOR_LISTEN_ADDR
	ListenAddr string `env:"KRITOR_LISTEN_ADDR,default=:7890" json:"listen_addr"`
	// AdminAddr serves /sessions, /metrics and /healthz. Empty disables it.
	AdminAddr string `env:"KRITOR_ADMIN_ADDR,default=:7891" json:"admin_addr"`
	// File is an optional TOML overlay. ENV: KRITOR_CONFIG
	File string `env:"KRITOR_CONFIG" json:"file,omitempty"`

	Storage     string `env:"KRITOR_STORAGE,default=memory" json:"storage" jsonschema:"enum=memory,enum=redis"`
	MemoryItems int    `env:"KRITOR_MEMORY_ITEMS,default=10000" json:"memory_items"`
	RedisAddr   string `env:"REDIS_ADDR,default=localhost:6379" json:"redis_addr"`
	RedisPrefix string `env:"KRITOR_REDIS_PREFIX,default=kritor:storage:" json:"redis_prefix"`
	RedisDB     int    `env:"KRITOR_REDIS_DB,default=0" json:"redis_db"`

	LogLevel  string `env:"KRITOR_LOG_LEVEL,default=info" json:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	LogFormat string `env:"KRITOR_LOG_FORMAT,default=text" json:"log_format" jsonschema:"enum=text,enum=json"`

	// TransactionTimeout applies when a handler starts a transaction without
	// its own timeout.
	TransactionTimeout time.Duration `env:"KRITOR_TRANSACTION_TIMEOUT,default=30s" json:"transaction_timeout"`
	// Owners are uids or decimal uins allowed to run owner-only commands.
	// ENV: KRITOR_OWNERS, semicolon separated.
	Owners []string `env:"KRITOR_OWNERS" json:"owners,omitempty"`
	// Warmup fetches the account and rosters when a core connects.
	Warmup bool `env:"KRITOR_WARMUP,default=true" json:"warmup"`
}

// File is the TOML overlay. Absent keys leave the environment value alone.
type File struct {
	ListenAddr         string   `toml:"listen_addr" json:"listen_addr,omitempty"`
	AdminAddr          string   `toml:"admin_addr" json:"admin_addr,omitempty"`
	Storage            string   `toml:"storage" json:"storage,omitempty"`
	RedisAddr          string   `toml:"redis_addr" json:"redis_addr,omitempty"`
	Owners             []string `toml:"owner" json:"owner,omitempty"`
	LogLevel           string   `toml:"log_level" json:"log_level,omitempty"`
	TransactionTimeout string   `toml:"transaction_timeout" json:"transaction_timeout,omitempty"`
}

// Load reads the environment and, when KRITOR_CONFIG names a file, applies
// it on top.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}
	if cfg.File == "" {
		return cfg, cfg.Validate()
	}
	f, err := ReadFile(cfg.File)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Apply(f); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ReadFile decodes the TOML overlay at path.
func ReadFile(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := toml.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}

// Apply overlays the non-empty fields of f.
func (c *Config) Apply(f File) error {
	if f.ListenAddr != "" {
		c.ListenAddr = f.ListenAddr
	}
	if f.AdminAddr != "" {
		c.AdminAddr = f.AdminAddr
	}
	if f.Storage != "" {
		c.Storage = f.Storage
	}
	if f.RedisAddr != "" {
		c.RedisAddr = f.RedisAddr
	}
	if f.Owners != nil {
		c.Owners = f.Owners
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.TransactionTimeout != "" {
		d, err := time.ParseDuration(f.TransactionTimeout)
		if err != nil {
			return fmt.Errorf("config: transaction_timeout: %w", err)
		}
		c.TransactionTimeout = d
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StorageMemory, StorageRedis:
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage backend %q", c.Storage))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.TransactionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: transaction timeout must be positive, got %s", c.TransactionTimeout))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("config: listen address is required"))
	}
	return errors.Join(errs...)
}

// ParseLevel accepts the slog level names, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", s, err)
	}
	return l, nil
}
