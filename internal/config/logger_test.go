package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/simp-lee/logger"
)

func boolPtr(b bool) *bool { return &b }

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"Error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]logger.OutputFormat{
		"text":  logger.FormatText,
		"JSON":  logger.FormatJSON,
		"other": logger.FormatCustom,
		"":      logger.FormatCustom,
	}
	for in, want := range tests {
		if got := parseFormat(in); got != want {
			t.Errorf("parseFormat(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestBuildLoggerOpts_Count(t *testing.T) {
	// Level, context middleware, console format and console color.
	const console = 4
	// File path and file format.
	const file = console + 2

	tests := []struct {
		name string
		cfg  *LogConfig
		want int
	}{
		{"console", &LogConfig{Level: "info", Format: "text"}, console},
		{"console without color", &LogConfig{Level: "info", Format: "text", Color: boolPtr(false)}, console},
		{"file", &LogConfig{Level: "info", Format: "json", FilePath: "logs/stockroom.log"}, file},
		{"zero rotation adds nothing", &LogConfig{FilePath: "logs/stockroom.log"}, file},
		{"compress false still set", &LogConfig{FilePath: "logs/stockroom.log", CompressRotated: boolPtr(false)}, file + 1},
		{"rotation ignored without file", &LogConfig{MaxSizeMB: 10, MaxBackups: 3}, console},
		{
			"full rotation",
			&LogConfig{FilePath: "logs/stockroom.log", MaxSizeMB: 50, RetentionDays: 30, MaxBackups: 5, CompressRotated: boolPtr(true)},
			file + 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(BuildLoggerOpts(tt.cfg)); got != tt.want {
				t.Errorf("len(BuildLoggerOpts) = %d; want %d", got, tt.want)
			}
		})
	}

	if BuildLoggerOpts(nil) != nil {
		t.Error("BuildLoggerOpts(nil) should be nil")
	}
}

func TestSetupLogger_NilConfig(t *testing.T) {
	if _, err := SetupLogger(nil); err == nil {
		t.Fatal("expected error for nil log config")
	}
}

func TestSetupLogger_SetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	log, err := SetupLogger(&LogConfig{Level: "warn", Format: "text"})
	if err != nil {
		t.Fatalf("SetupLogger error: %v", err)
	}
	defer log.Close()

	if slog.Default().Handler() != log.Handler() {
		t.Error("SetupLogger did not set slog.Default()")
	}
}

// The shipped config logs at info, so access records show up and debug
// output from the cache does not.
func TestSetupLogger_ShippedConfig(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg, err := Load("../../configs/config.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	log, err := SetupLogger(&cfg.Log)
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	defer log.Close()

	if !log.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be enabled")
	}
	if log.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled")
	}
}

func TestSetupLogger_EnvLevelOverride(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("APP__LOG__LEVEL", "error")

	cfg, err := Load(writeTestConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	log, err := SetupLogger(&cfg.Log)
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	defer log.Close()

	if log.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be disabled by APP__LOG__LEVEL=error")
	}
	if !log.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled")
	}
}

// Records written with a request context carry the request id into the log
// file, which is how a failed list fetch is traced back to its request.
func TestSetupLogger_FileCarriesRequestID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "stockroom.log")
	log, err := SetupLogger(&LogConfig{
		Level:      "info",
		Format:     "json",
		Color:      boolPtr(false),
		FilePath:   path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	})
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}

	ctx := logger.WithContextAttrs(context.Background(), slog.String("request_id", "req-6a1f"))
	log.Logger.WarnContext(ctx, "list fetch failed", slog.String("resource", "inventory/items"))
	log.Logger.DebugContext(ctx, "cache lookup")
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	for _, want := range []string{"list fetch failed", "req-6a1f", "inventory/items"} {
		if !strings.Contains(out, want) {
			t.Errorf("log file missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "cache lookup") {
		t.Errorf("debug record written at info level:\n%s", out)
	}
}
