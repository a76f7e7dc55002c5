package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/stockroom/internal/config"
	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/listctl"
)

type fakeHTTPServer struct {
	listenErr      error
	listenStarted  chan struct{}
	shutdownCalled bool
	stopCh         chan struct{}
	mu             sync.Mutex
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenStarted != nil {
		close(f.listenStarted)
	}
	if f.listenErr != nil {
		return f.listenErr
	}
	if f.stopCh != nil {
		<-f.stopCh
		return http.ErrServerClosed
	}
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.mu.Lock()
	f.shutdownCalled = true
	f.mu.Unlock()
	if f.stopCh != nil {
		close(f.stopCh)
	}
	return nil
}

func (f *fakeHTTPServer) wasShutdownCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdownCalled
}

// newInventoryAPI serves a one-row list for every list request.
func newInventoryAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/inventory/items":
			io.WriteString(w, `{"data":[{"id":1,"sku":"BOLT-M8","name":"M8 bolt","category":"COMPONENT","quantity":4,"unit":"PCS"}],"total":1}`)
		case "/inventory/suppliers":
			io.WriteString(w, `{"data":[{"id":1,"name":"Acme","contacts":[]}],"total":1}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Mode: gin.TestMode,
		},
		Storage: config.StorageConfig{
			Driver: "sqlite",
			SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "state.db")},
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
		},
		API: config.APIConfig{BaseURL: apiURL, Timeout: "2s"},
	}
}

func cleanupTestApp(t *testing.T, a *App) {
	t.Helper()
	if a == nil {
		return
	}
	a.close(a.log())
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

func TestResolveCORSConfig(t *testing.T) {
	tests := []struct {
		name            string
		mode            string
		corsCfg         *config.CORSConfig
		wantOrigins     []string
		wantMethods     int
		wantCredentials bool
		wantMaxAge      time.Duration
	}{
		{
			name:        "debug mode uses permissive default when not configured",
			mode:        gin.DebugMode,
			corsCfg:     &config.CORSConfig{},
			wantOrigins: []string{"*"},
			wantMethods: 6,
			wantMaxAge:  24 * time.Hour,
		},
		{
			name:        "release mode denies cross-origin when not configured",
			mode:        gin.ReleaseMode,
			corsCfg:     &config.CORSConfig{},
			wantOrigins: []string{},
			wantMethods: 6,
			wantMaxAge:  24 * time.Hour,
		},
		{
			name: "release mode uses explicit allowlist",
			mode: gin.ReleaseMode,
			corsCfg: &config.CORSConfig{
				AllowOrigins:     []string{"https://admin.example.com"},
				AllowMethods:     []string{"GET", "PUT"},
				AllowCredentials: true,
				MaxAge:           "12h",
			},
			wantOrigins:     []string{"https://admin.example.com"},
			wantMethods:     2,
			wantCredentials: true,
			wantMaxAge:      12 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := resolveCORSConfig(tt.mode, tt.corsCfg)

			if len(cfg.AllowOrigins) != len(tt.wantOrigins) {
				t.Fatalf("AllowOrigins = %v, want %v", cfg.AllowOrigins, tt.wantOrigins)
			}
			for i := range tt.wantOrigins {
				if cfg.AllowOrigins[i] != tt.wantOrigins[i] {
					t.Fatalf("AllowOrigins[%d] = %q, want %q", i, cfg.AllowOrigins[i], tt.wantOrigins[i])
				}
			}
			if len(cfg.AllowMethods) != tt.wantMethods {
				t.Errorf("AllowMethods = %v, want %d entries", cfg.AllowMethods, tt.wantMethods)
			}
			if cfg.AllowCredentials != tt.wantCredentials {
				t.Errorf("AllowCredentials = %v, want %v", cfg.AllowCredentials, tt.wantCredentials)
			}
			if cfg.MaxAge != tt.wantMaxAge {
				t.Errorf("MaxAge = %v, want %v", cfg.MaxAge, tt.wantMaxAge)
			}
		})
	}
}

func TestValidateGinMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		wantErr bool
	}{
		{name: "debug mode", mode: gin.DebugMode, wantErr: false},
		{name: "release mode", mode: gin.ReleaseMode, wantErr: false},
		{name: "test mode", mode: gin.TestMode, wantErr: false},
		{name: "invalid mode", mode: "staging", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateGinMode(tt.mode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateGinMode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIClientConfig(t *testing.T) {
	got := apiClientConfig(&config.APIConfig{
		BaseURL: "http://api",
		Timeout: "3s",
		RateLimit: config.RateLimitConfig{
			Enabled: true, RPS: 2, Burst: 4,
		},
		Breaker: config.BreakerConfig{
			Enabled: true, MaxRequests: 1, Interval: "1m", Timeout: "15s", FailureThreshold: 0.5, MinRequests: 3,
		},
	})
	if got.Timeout != 3*time.Second || got.RateLimit.Burst != 4 {
		t.Errorf("unexpected client config %+v", got)
	}
	if got.Breaker.Interval != time.Minute || got.Breaker.Timeout != 15*time.Second || got.Breaker.MinRequests != 3 {
		t.Errorf("unexpected breaker config %+v", got.Breaker)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) error = nil, want error")
	}
}

func TestNew_ReturnsError_WhenStorageSetupFails(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Storage.Driver = "unsupported"

	app, err := New(cfg)
	if err == nil {
		t.Fatalf("New() error = nil, want error")
	}
	if app != nil {
		t.Fatalf("New() app = %#v, want nil", app)
	}
	if !strings.Contains(err.Error(), "setup storage") {
		t.Fatalf("New() error = %q, want contains %q", err.Error(), "setup storage")
	}
}

func TestNew_ReturnsError_WhenAPIURLInvalid(t *testing.T) {
	cfg := testConfig(t, "ftp://inventory")

	_, err := New(cfg)
	if err == nil || !strings.Contains(err.Error(), "setup api client") {
		t.Fatalf("New() error = %v, want api client error", err)
	}
}

func TestNew_ServesMountedLists(t *testing.T) {
	api := newInventoryAPI(t)
	a, err := New(testConfig(t, api.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cleanupTestApp(t, a)

	if a.channel != nil || a.invalidator != nil {
		t.Error("push channel should not be built when realtime is disabled")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		w := httptest.NewRecorder()
		a.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/items/view", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("view: expected 200, got %d", w.Code)
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Error("expected request id header")
		}
		var resp struct {
			Data listctl.View[domain.Item] `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal view: %v", err)
		}
		if resp.Data.Total == 1 {
			if resp.Data.Data[0].SKU != "BOLT-M8" {
				t.Errorf("unexpected row %+v", resp.Data.Data[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("list never loaded: %+v", resp.Data)
		}
		time.Sleep(5 * time.Millisecond)
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/suppliers/filters", nil))
	if w.Code != http.StatusOK {
		t.Errorf("supplier filters: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	a.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"api":"disabled"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestNew_RealtimeEnabled_ReportsChannel(t *testing.T) {
	api := newInventoryAPI(t)
	cfg := testConfig(t, api.URL)
	cfg.Realtime = config.RealtimeConfig{Enabled: true, URL: "ws://127.0.0.1:1/socket"}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cleanupTestApp(t, a)

	if a.channel == nil || a.invalidator == nil {
		t.Fatal("expected push channel and invalidator")
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !strings.Contains(w.Body.String(), `"realtime":"disconnected"`) {
		t.Errorf("health = %s", w.Body.String())
	}
	if w.Code != http.StatusOK {
		t.Errorf("a disconnected channel should not degrade health, got %d", w.Code)
	}
}

func TestRun_ReturnsError_WhenListenFails(t *testing.T) {
	originalNewHTTPServer := newHTTPServer
	originalNotifyContext := notifyContext
	defer func() {
		newHTTPServer = originalNewHTTPServer
		notifyContext = originalNotifyContext
	}()

	listenErr := errors.New("listen failed")
	server := &fakeHTTPServer{listenErr: listenErr}
	newHTTPServer = func(string, http.Handler) httpServer {
		return server
	}
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(context.Background())
	}

	m := &mockModule{}
	a := &App{
		engine:  gin.New(),
		logger:  logger.Default(),
		cfg:     &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080}},
		modules: []Module{m},
	}

	err := a.Run()
	if err == nil {
		t.Fatalf("Run() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "server error") {
		t.Fatalf("Run() error = %q, want contains %q", err.Error(), "server error")
	}
	if !errors.Is(err, listenErr) {
		t.Fatalf("Run() error = %v, want wraps %v", err, listenErr)
	}
	if !m.closed {
		t.Error("modules should be closed after a failed run")
	}
}

func TestRun_ShutdownSignal_ClosesEverything(t *testing.T) {
	originalNewHTTPServer := newHTTPServer
	originalNotifyContext := notifyContext
	defer func() {
		newHTTPServer = originalNewHTTPServer
		notifyContext = originalNotifyContext
	}()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}

	server := &fakeHTTPServer{listenStarted: make(chan struct{}), stopCh: make(chan struct{})}
	newHTTPServer = func(string, http.Handler) httpServer {
		return server
	}

	ctx, cancel := context.WithCancel(context.Background())
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return ctx, cancel
	}

	m := &mockModule{}
	listCtx, listCancel := context.WithCancel(context.Background())
	a := &App{
		engine:  gin.New(),
		db:      db,
		logger:  logger.Default(),
		cfg:     &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080}},
		modules: []Module{m},
		cancel:  listCancel,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run()
	}()

	select {
	case <-server.listenStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start listening in time")
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return in time after shutdown signal")
	}

	if !server.wasShutdownCalled() {
		t.Fatal("expected server Shutdown() to be called")
	}
	if !m.closed {
		t.Error("expected modules to be closed")
	}
	if listCtx.Err() == nil {
		t.Error("expected the list context to be cancelled")
	}
	if pingErr := sqlDB.Ping(); pingErr == nil {
		t.Fatal("expected database connection to be closed, but Ping() succeeded")
	}
}
