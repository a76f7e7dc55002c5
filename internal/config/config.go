package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Storage  StorageConfig  `koanf:"storage"`
	Log      LogConfig      `koanf:"log"`
	API      APIConfig      `koanf:"api"`
	Realtime RealtimeConfig `koanf:"realtime"`
	List     ListConfig     `koanf:"list"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string     `koanf:"host"`
	Port            int        `koanf:"port"`
	Mode            string     `koanf:"mode"`
	ShutdownTimeout string     `koanf:"shutdown_timeout"`
	CORS            CORSConfig `koanf:"cors"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// StorageConfig holds the settings of the database that backs the durable
// page state store.
type StorageConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// APIConfig points at the remote inventory API.
type APIConfig struct {
	BaseURL   string          `koanf:"base_url"`
	Timeout   string          `koanf:"timeout"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Breaker   BreakerConfig   `koanf:"breaker"`
}

// RateLimitConfig throttles outgoing API requests.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

// BreakerConfig configures the circuit breaker around the API client.
type BreakerConfig struct {
	Enabled          bool    `koanf:"enabled"`
	MaxRequests      uint32  `koanf:"max_requests"`
	Interval         string  `koanf:"interval"`
	Timeout          string  `koanf:"timeout"`
	FailureThreshold float64 `koanf:"failure_threshold"`
	MinRequests      uint32  `koanf:"min_requests"`
}

// RealtimeConfig configures the push channel.
type RealtimeConfig struct {
	Enabled          bool   `koanf:"enabled"`
	URL              string `koanf:"url"`
	ReconnectDelay   string `koanf:"reconnect_delay"`
	HandshakeTimeout string `koanf:"handshake_timeout"`
}

// ListConfig tunes the mounted list views.
type ListConfig struct {
	SearchDebounce string `koanf:"search_debounce"`
}

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__API__RATE_LIMIT__RPS=5 overrides api.rate_limit.rps.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	// APP__STORAGE__POOL__MAX_IDLE_CONNS -> storage.pool.max_idle_conns
	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and supported values.
func (c *Config) Validate() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateRealtime(); err != nil {
		return err
	}

	// Optional durations: whitespace-only means unset.
	durations := []struct {
		name  string
		value *string
	}{
		{"server.shutdown_timeout", &c.Server.ShutdownTimeout},
		{"server.cors.max_age", &c.Server.CORS.MaxAge},
		{"storage.pool.conn_max_lifetime", &c.Storage.Pool.ConnMaxLifetime},
		{"list.search_debounce", &c.List.SearchDebounce},
	}
	for _, f := range durations {
		if err := normalizeDuration(f.name, f.value); err != nil {
			return err
		}
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}

	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid storage.driver %q: must be one of %q, %q", c.Storage.Driver, "sqlite", "postgres")
	}

	if c.Storage.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(c.Storage.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("storage.sqlite.path is required when driver is sqlite")
		}
		c.Storage.SQLite.Path = sqlitePath
		return nil
	}

	pg := &c.Storage.Postgres
	host := strings.TrimSpace(pg.Host)
	if host == "" {
		return fmt.Errorf("storage.postgres.host is required when driver is postgres")
	}
	if pg.Port < 1 || pg.Port > 65535 {
		return fmt.Errorf("invalid storage.postgres.port %d: must be between 1 and 65535", pg.Port)
	}
	user := strings.TrimSpace(pg.User)
	if user == "" {
		return fmt.Errorf("storage.postgres.user is required when driver is postgres")
	}
	dbName := strings.TrimSpace(pg.DBName)
	if dbName == "" {
		return fmt.Errorf("storage.postgres.dbname is required when driver is postgres")
	}
	sslMode := strings.TrimSpace(pg.SSLMode)
	switch sslMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid storage.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
	}
	if c.Server.Mode == gin.ReleaseMode {
		switch sslMode {
		case "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid storage.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", pg.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
		}
	}

	pg.Host = host
	pg.User = user
	pg.DBName = dbName
	pg.SSLMode = sslMode
	return nil
}

func (c *Config) validateAPI() error {
	base := strings.TrimSpace(c.API.BaseURL)
	if base == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q: must be an absolute http(s) URL", c.API.BaseURL)
	}
	c.API.BaseURL = base

	if err := normalizeDuration("api.timeout", &c.API.Timeout); err != nil {
		return err
	}

	if c.API.RateLimit.Enabled {
		if c.API.RateLimit.RPS <= 0 {
			return fmt.Errorf("invalid api.rate_limit.rps %v: must be positive when rate limiting is enabled", c.API.RateLimit.RPS)
		}
		if c.API.RateLimit.Burst <= 0 {
			return fmt.Errorf("invalid api.rate_limit.burst %d: must be positive when rate limiting is enabled", c.API.RateLimit.Burst)
		}
	}

	b := &c.API.Breaker
	if err := normalizeDuration("api.breaker.interval", &b.Interval); err != nil {
		return err
	}
	if err := normalizeDuration("api.breaker.timeout", &b.Timeout); err != nil {
		return err
	}
	if b.Enabled && (b.FailureThreshold <= 0 || b.FailureThreshold > 1) {
		return fmt.Errorf("invalid api.breaker.failure_threshold %v: must be in (0, 1] when the breaker is enabled", b.FailureThreshold)
	}
	return nil
}

func (c *Config) validateRealtime() error {
	if err := normalizeDuration("realtime.reconnect_delay", &c.Realtime.ReconnectDelay); err != nil {
		return err
	}
	if err := normalizeDuration("realtime.handshake_timeout", &c.Realtime.HandshakeTimeout); err != nil {
		return err
	}
	if !c.Realtime.Enabled {
		return nil
	}
	raw := strings.TrimSpace(c.Realtime.URL)
	if raw == "" {
		return fmt.Errorf("realtime.url is required when realtime is enabled")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("invalid realtime.url %q: must be an absolute ws(s) URL", c.Realtime.URL)
	}
	c.Realtime.URL = raw
	return nil
}

// normalizeDuration trims an optional duration field and checks that a set
// value parses to a positive duration.
func normalizeDuration(name string, value *string) error {
	v := strings.TrimSpace(*value)
	*value = v
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be greater than 0", name, v)
	}
	return nil
}

// Duration parses a validated duration field, returning def when it is unset.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
