package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultMaxIdleConns    = 10
	defaultMaxOpenConns    = 100
	defaultConnMaxLifetime = time.Hour

	storagePingTimeout = 5 * time.Second
	slowQueryThreshold = 200 * time.Millisecond

	// sqliteBusyTimeout lets a page-state write wait for a concurrent one
	// instead of failing with SQLITE_BUSY.
	sqliteBusyTimeout = 5 * time.Second
)

// SetupStorage opens the database behind the view state store and checks
// that it answers. SQLite files are opened in WAL mode with a busy timeout;
// the parent directory is created if needed. SQL statements go to logger
// at debug level, slow statements and errors at warn. The kv_entries table
// is created by store.Migrate, not here.
func SetupStorage(cfg *StorageConfig, logger *slog.Logger) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.New("storage config is nil")
	}
	if logger == nil {
		return nil, errors.New("logger is nil")
	}

	pool, err := resolvePool(&cfg.Pool)
	if err != nil {
		return nil, err
	}
	dialector, target, err := storageDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(pool.maxIdle)
	sqlDB.SetMaxOpenConns(pool.maxOpen)
	sqlDB.SetConnMaxLifetime(pool.lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), storagePingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("storage unreachable: %w", err)
	}

	logger.Info("storage opened",
		slog.String("driver", cfg.Driver),
		slog.String("target", target),
		slog.Int("max_idle_conns", pool.maxIdle),
		slog.Int("max_open_conns", pool.maxOpen),
		slog.Duration("conn_max_lifetime", pool.lifetime),
	)
	return db, nil
}

// storageDialector returns the dialector for cfg.Driver and a description
// of what it connects to that is safe to log.
func storageDialector(cfg *StorageConfig) (gorm.Dialector, string, error) {
	switch cfg.Driver {
	case "sqlite":
		path := cfg.SQLite.Path
		if !isSQLiteMemory(path) {
			if dir := filepath.Dir(path); dir != "" && dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, "", fmt.Errorf("failed to create sqlite directory %q: %w", dir, err)
				}
			}
		}
		return sqlite.Open(sqliteDSN(path)), path, nil
	case "postgres":
		pg := &cfg.Postgres
		target := net.JoinHostPort(pg.Host, strconv.Itoa(pg.Port)) + "/" + pg.DBName
		return postgres.Open(buildPostgresDSN(pg)), target, nil
	default:
		return nil, "", fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func isSQLiteMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// sqliteDSN adds the busy timeout and WAL journal pragmas to a file path.
// In-memory databases are returned unchanged.
func sqliteDSN(path string) string {
	if isSQLiteMemory(path) {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		path, sep, sqliteBusyTimeout.Milliseconds())
}

type poolSettings struct {
	maxIdle  int
	maxOpen  int
	lifetime time.Duration
}

// resolvePool applies defaults to zero values and rejects a lifetime that
// does not parse or is not positive.
func resolvePool(pool *PoolConfig) (poolSettings, error) {
	s := poolSettings{
		maxIdle:  effectiveMaxIdleConns(pool.MaxIdleConns),
		maxOpen:  effectiveMaxOpenConns(pool.MaxOpenConns),
		lifetime: defaultConnMaxLifetime,
	}
	if raw := strings.TrimSpace(pool.ConnMaxLifetime); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return s, fmt.Errorf("invalid pool.conn_max_lifetime %q: %w", pool.ConnMaxLifetime, err)
		}
		if d <= 0 {
			return s, fmt.Errorf("invalid pool.conn_max_lifetime %q: must be positive", pool.ConnMaxLifetime)
		}
		s.lifetime = d
	}
	return s, nil
}

func effectiveMaxIdleConns(v int) int {
	if v <= 0 {
		return defaultMaxIdleConns
	}
	return v
}

func effectiveMaxOpenConns(v int) int {
	if v <= 0 {
		return defaultMaxOpenConns
	}
	return v
}

func buildPostgresDSN(cfg *PostgresConfig) string {
	if cfg == nil {
		return ""
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   cfg.DBName,
	}
	if cfg.User != "" || cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

// gormWriter sends GORM's formatted log lines to slog at one level.
type gormWriter struct {
	logger *slog.Logger
	level  slog.Level
}

func (w gormWriter) Printf(format string, args ...any) {
	w.logger.Log(context.Background(), w.level, "sql", slog.String("trace", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

// newGormLogger traces every statement when logger has debug enabled and
// otherwise reports only slow statements and errors. Missing page-state
// rows are expected and never logged.
func newGormLogger(logger *slog.Logger) gormlogger.Interface {
	mode, level := gormlogger.Warn, slog.LevelWarn
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		mode, level = gormlogger.Info, slog.LevelDebug
	}
	return gormlogger.New(gormWriter{logger: logger, level: level}, gormlogger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  mode,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
