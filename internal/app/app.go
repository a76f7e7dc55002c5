package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/simp-lee/stockroom/internal/apiclient"
	"github.com/simp-lee/stockroom/internal/config"
	"github.com/simp-lee/stockroom/internal/filter"
	"github.com/simp-lee/stockroom/internal/middleware"
	"github.com/simp-lee/stockroom/internal/module/item"
	"github.com/simp-lee/stockroom/internal/module/supplier"
	"github.com/simp-lee/stockroom/internal/pagestate"
	"github.com/simp-lee/stockroom/internal/querycache"
	"github.com/simp-lee/stockroom/internal/realtime"
	"github.com/simp-lee/stockroom/internal/store"
)

const defaultShutdownTimeout = 5 * time.Second

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine  *gin.Engine
	db      *gorm.DB
	logger  *logger.Logger
	cfg     *config.Config
	modules []Module

	// Push channel; both nil when realtime is disabled.
	channel     *realtime.Channel
	invalidator *realtime.Invalidator

	// cancel ends the context the mounted lists fetch under.
	cancel context.CancelFunc
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// The write timeout is left unset so /view/stream can stay open.
var newHTTPServer = func(addr string, handler http.Handler) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, the page state store, the API client, the list
// modules, the push channel, middleware and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	// 2. Page state storage.
	db, err := config.SetupStorage(&cfg.Storage, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}
	defer func() {
		if success {
			return
		}
		closeDB(db, log.Logger)
	}()
	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate storage: %w", err)
	}
	pages := pagestate.New(store.NewKV(db), log.Logger)
	cache := querycache.New()

	// 3. Remote API client.
	client, err := apiclient.New(apiClientConfig(&cfg.API), log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup api client: %w", err)
	}

	// 4. Modules. Each mounts its list and restores the persisted page.
	ctx, cancel := context.WithCancel(context.Background())
	var modules []Module
	defer func() {
		if success {
			return
		}
		for _, m := range modules {
			m.Close()
		}
		cancel()
	}()

	search := []filter.SearchOption{
		filter.WithDelay(config.Duration(cfg.List.SearchDebounce, filter.DefaultDebounce)),
	}
	items, err := item.NewModule(ctx, item.Deps{
		Service: item.NewAPI(client),
		Pages:   pages,
		Cache:   cache,
		Logger:  log.Logger,
		Search:  search,
	})
	if err != nil {
		return nil, fmt.Errorf("setup item module: %w", err)
	}
	modules = append(modules, items)

	suppliers, err := supplier.NewModule(ctx, supplier.Deps{
		Service: supplier.NewAPI(client),
		Pages:   pages,
		Cache:   cache,
		Logger:  log.Logger,
		Search:  search,
	})
	if err != nil {
		return nil, fmt.Errorf("setup supplier module: %w", err)
	}
	modules = append(modules, suppliers)

	// 5. Push channel. It is dialed once the invalidator subscribes in Run.
	checks := []HealthCheck{apiHealthCheck(client)}
	var channel *realtime.Channel
	var invalidator *realtime.Invalidator
	if cfg.Realtime.Enabled {
		channel = realtime.NewChannel(cfg.Realtime.URL, log.Logger,
			realtime.WithReconnectDelay(config.Duration(cfg.Realtime.ReconnectDelay, realtime.DefaultReconnectDelay)),
			realtime.WithHandshakeTimeout(config.Duration(cfg.Realtime.HandshakeTimeout, realtime.DefaultHandshakeTimeout)),
		)
		topics := append(item.Topics(), supplier.Topics()...)
		invalidator = realtime.NewInvalidator(channel, cache, log.Logger, topics...)
		checks = append(checks, channelHealthCheck(channel))
	} else {
		log.Warn("realtime disabled: lists refresh only on local mutations and explicit refetch")
	}

	// 6. Gin engine with custom middleware (not gin.Default()).
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	engine.Use(
		middleware.Recovery(log.Logger),
		middleware.RequestID(),
		middleware.LoggerWithConfig(log.Logger, middleware.LoggerConfig{
			SkipPaths: []string{"/health", "/metrics"},
		}),
		middleware.CORSWithConfig(resolveCORSConfig(cfg.Server.Mode, &cfg.Server.CORS)),
		middleware.Metrics(),
	)

	// 7. Routes.
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules: modules,
		DB:      db,
		Checks:  checks,
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine:      engine,
		db:          db,
		logger:      log,
		cfg:         cfg,
		modules:     modules,
		channel:     channel,
		invalidator: invalidator,
		cancel:      cancel,
	}, nil
}

func apiClientConfig(cfg *config.APIConfig) apiclient.Config {
	return apiclient.Config{
		BaseURL: cfg.BaseURL,
		Timeout: config.Duration(cfg.Timeout, 0),
		RateLimit: apiclient.RateLimitConfig{
			Enabled: cfg.RateLimit.Enabled,
			RPS:     cfg.RateLimit.RPS,
			Burst:   cfg.RateLimit.Burst,
		},
		Breaker: apiclient.BreakerConfig{
			Enabled:          cfg.Breaker.Enabled,
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         config.Duration(cfg.Breaker.Interval, 0),
			Timeout:          config.Duration(cfg.Breaker.Timeout, 0),
			FailureThreshold: cfg.Breaker.FailureThreshold,
			MinRequests:      cfg.Breaker.MinRequests,
		},
	}
}

// apiHealthCheck reports the API circuit breaker; an open breaker degrades.
func apiHealthCheck(client *apiclient.Client) HealthCheck {
	return HealthCheck{
		Name: "api",
		Check: func(context.Context) (string, bool) {
			state := client.BreakerState()
			return state, state != "open"
		},
	}
}

// channelHealthCheck reports the push channel. A disconnected channel is
// reported but does not degrade, since lists still load without it.
func channelHealthCheck(ch *realtime.Channel) HealthCheck {
	return HealthCheck{
		Name: "realtime",
		Check: func(context.Context) (string, bool) {
			return ch.State().String(), true
		},
	}
}

// resolveCORSConfig builds the CORS middleware config. In release mode,
// when no allowlist is configured, cross-origin requests are denied.
func resolveCORSConfig(mode string, cfg *config.CORSConfig) middleware.CORSConfig {
	corsConfig := middleware.DefaultCORSConfig()

	if len(cfg.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowOrigins
	} else if mode == gin.ReleaseMode {
		corsConfig.AllowOrigins = []string{}
	}
	if len(cfg.AllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.AllowMethods
	}
	if len(cfg.AllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.AllowHeaders
	}
	corsConfig.AllowCredentials = cfg.AllowCredentials
	if d := config.Duration(cfg.MaxAge, 0); d > 0 {
		corsConfig.MaxAge = d
	}

	return corsConfig
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

// Run starts the push channel and the HTTP server and blocks until a
// shutdown signal is received or the server fails. It then shuts the server
// down gracefully and releases the modules, the channel, the database and
// the logger.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := a.log()
	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine)

	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.invalidator != nil {
		a.invalidator.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			log.Info("shutdown signal received")
		}
		timeout := config.Duration(a.cfg.Server.ShutdownTimeout, defaultShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.Any("error", err))
		}
		return nil
	})
	runErr := g.Wait()

	a.close(log)

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}

// close releases everything but the logger, in reverse order of New.
func (a *App) close(log *slog.Logger) {
	if a.invalidator != nil {
		a.invalidator.Stop()
	}
	if a.channel != nil {
		if err := a.channel.Close(); err != nil {
			log.Error("push channel close error", slog.Any("error", err))
		}
	}
	for _, m := range a.modules {
		m.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.db != nil {
		closeDB(a.db, log)
		log.Info("database connection closed")
	}
}

func (a *App) log() *slog.Logger {
	if a.logger != nil {
		return a.logger.Logger
	}
	return slog.Default()
}

func closeDB(db *gorm.DB, log *slog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error("database close error", slog.Any("error", err))
	}
}
