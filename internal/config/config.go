// Package config loads service configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML file, the
// process environment (after .env is loaded), command-line flags. Flags are
// applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment keys.
const (
	EnvDB                   = "CANTEEN_DB"
	EnvAddr                 = "CANTEEN_ADDR"
	EnvJWTSecret            = "CANTEEN_JWT_SECRET"
	EnvRedisAddr            = "CANTEEN_REDIS_ADDR"
	EnvMenuCacheTTL         = "CANTEEN_MENU_CACHE_TTL"
	EnvCompensationAttempts = "CANTEEN_COMPENSATION_ATTEMPTS"
	EnvCompensationBackoff  = "CANTEEN_COMPENSATION_BACKOFF"
)

// Config is the service configuration.
type Config struct {
	DB        string `yaml:"db"`
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`

	// RedisAddr enables the menu display cache. Empty disables it.
	RedisAddr    string   `yaml:"redis_addr"`
	MenuCacheTTL Duration `yaml:"menu_cache_ttl"`

	Compensation Compensation `yaml:"compensation"`
}

// Compensation tunes retries of stock releases, refunds and topup credits.
type Compensation struct {
	Attempts int      `yaml:"attempts"`
	Backoff  Duration `yaml:"backoff"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DB:           "canteen.db",
		Addr:         ":8080",
		MenuCacheTTL: Duration(30 * time.Second),
		Compensation: Compensation{
			Attempts: 5,
			Backoff:  Duration(20 * time.Millisecond),
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment. A missing .env file is not an error; a missing
// config file is, when path is non-empty.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDB); ok {
		cfg.DB = v
	}
	if v, ok := lookup(EnvAddr); ok {
		cfg.Addr = v
	}
	if v, ok := lookup(EnvJWTSecret); ok {
		cfg.JWTSecret = v
	}
	if v, ok := lookup(EnvRedisAddr); ok {
		cfg.RedisAddr = v
	}
	if v, ok := lookup(EnvMenuCacheTTL); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMenuCacheTTL, err)
		}
		cfg.MenuCacheTTL = Duration(d)
	}
	if v, ok := lookup(EnvCompensationAttempts); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCompensationAttempts, err)
		}
		cfg.Compensation.Attempts = n
	}
	if v, ok := lookup(EnvCompensationBackoff); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCompensationBackoff, err)
		}
		cfg.Compensation.Backoff = Duration(d)
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.DB == "" {
		return errors.New("config: db path is required")
	}
	if c.Compensation.Attempts < 1 {
		return fmt.Errorf("config: compensation.attempts must be at least 1, got %d", c.Compensation.Attempts)
	}
	if c.Compensation.Backoff < 0 {
		return errors.New("config: compensation.backoff cannot be negative")
	}
	if c.MenuCacheTTL < 0 {
		return errors.New("config: menu_cache_ttl cannot be negative")
	}
	return nil
}
