// Package config loads process settings from the environment.
//
// Precedence is flags > environment > defaults: FromEnv overlays the
// environment on Default, and the CLI binds its flags with the result as
// flag defaults.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Environment variable names
const (
	EnvDatabaseURL = "DYNTABLE_DATABASE_URL"
	EnvSchema      = "DYNTABLE_SCHEMA"
	EnvPoolSize    = "DYNTABLE_POOL_SIZE"
	EnvMaxOverflow = "DYNTABLE_MAX_OVERFLOW"
	EnvPoolTimeout = "DYNTABLE_POOL_TIMEOUT"
	EnvPoolRecycle = "DYNTABLE_POOL_RECYCLE"
	EnvAllowRawSQL = "DYNTABLE_ALLOW_RAW_SQL"
	EnvLogLevel    = "DYNTABLE_LOG_LEVEL"
	EnvLogFormat   = "DYNTABLE_LOG_FORMAT"

	// Connection parts, used when no URL is given
	EnvDBUser     = "DB_USER"
	EnvDBPassword = "DB_PASSWORD"
	EnvDBHost     = "DB_HOST"
	EnvDBPort     = "DB_PORT"
	EnvDBName     = "DB_NAME"
)

// Config holds every process setting
type Config struct {
	DatabaseURL string
	Schema      string

	PoolSize    int
	MaxOverflow int
	PoolTimeout time.Duration
	PoolRecycle time.Duration

	AllowRawSQL bool

	LogLevel  string
	LogFormat string
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Schema:      "public",
		PoolSize:    5,
		MaxOverflow: 10,
		PoolTimeout: 30 * time.Second,
		PoolRecycle: 30 * time.Minute,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// FromEnv overlays environment variables on Default. getenv is usually os.Getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	cfg.DatabaseURL = getenv(EnvDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = DatabaseURLFromParts(
			getenv(EnvDBUser), getenv(EnvDBPassword), getenv(EnvDBHost), getenv(EnvDBPort), getenv(EnvDBName))
	}

	if v := getenv(EnvSchema); v != "" {
		cfg.Schema = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		cfg.LogFormat = v
	}

	var err error
	if cfg.PoolSize, err = envInt(getenv, EnvPoolSize, cfg.PoolSize); err != nil {
		return cfg, err
	}
	if cfg.MaxOverflow, err = envInt(getenv, EnvMaxOverflow, cfg.MaxOverflow); err != nil {
		return cfg, err
	}
	if cfg.PoolTimeout, err = envDuration(getenv, EnvPoolTimeout, cfg.PoolTimeout); err != nil {
		return cfg, err
	}
	if cfg.PoolRecycle, err = envDuration(getenv, EnvPoolRecycle, cfg.PoolRecycle); err != nil {
		return cfg, err
	}
	if v := getenv(EnvAllowRawSQL); v != "" {
		if cfg.AllowRawSQL, err = strconv.ParseBool(v); err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", EnvAllowRawSQL, err)
		}
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside the pool
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required (--database-url, %s or %s/%s/%s/%s/%s)",
			EnvDatabaseURL, EnvDBUser, EnvDBPassword, EnvDBHost, EnvDBPort, EnvDBName)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", c.PoolSize)
	}
	if c.MaxOverflow < 0 {
		return fmt.Errorf("max overflow must not be negative, got %d", c.MaxOverflow)
	}
	if c.PoolTimeout <= 0 {
		return fmt.Errorf("pool timeout must be positive, got %s", c.PoolTimeout)
	}
	if c.PoolRecycle <= 0 {
		return fmt.Errorf("pool recycle must be positive, got %s", c.PoolRecycle)
	}
	return nil
}

// DatabaseURLFromParts assembles a PostgreSQL URL. It returns "" when host or
// database name is missing.
func DatabaseURLFromParts(user, password, host, port, name string) string {
	if host == "" || name == "" {
		return ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	}

	u := &url.URL{Scheme: "postgresql", Host: host, Path: "/" + name}
	switch {
	case user != "" && password != "":
		u.User = url.UserPassword(user, password)
	case user != "":
		u.User = url.User(user)
	}
	return u.String()
}

func envInt(getenv func(string) string, key string, def int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// envDuration accepts Go durations ("45s") or plain seconds ("45")
func envDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
