package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cmm/internal/alerts"
	"cmm/internal/config"
	"cmm/internal/handlers"
	"cmm/internal/manager"
	"cmm/internal/middleware"
	"cmm/internal/store"
	"cmm/internal/telemetry"
	"cmm/internal/version"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return runServe(cmd.Context(), cfg, log)
	},
}

type App struct {
	cfg         *config.Config
	db          *store.DB
	manager     *manager.Manager
	authService *middleware.AuthService
	rateLimiter *middleware.RateLimiter
	log         *zap.Logger
}

// newApp opens and migrates the database and wires the services on top of it.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	authService := middleware.NewAuthService(db.Repository(), middleware.AuthOptions{
		Secret:           cfg.JWTSecret,
		TTL:              cfg.JWTExpire,
		LockoutThreshold: cfg.AuthLockoutThreshold,
		Logger:           log.Named("auth"),
	})
	engine := alerts.NewEngine(alerts.DefaultRules(alerts.Thresholds{
		CPU:  cfg.AlertCPUThreshold,
		RAM:  cfg.AlertRAMThreshold,
		Disk: cfg.AlertDiskThreshold,
	}))
	mgr := manager.New(db, manager.Options{
		Engine: engine,
		Hasher: authService,
		Logger: log.Named("manager"),
	})

	return &App{
		cfg:         cfg,
		db:          db,
		manager:     mgr,
		authService: authService,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		log:         log,
	}, nil
}

func (a *App) Close() {
	a.rateLimiter.Stop()
	a.authService.Stop()
	if err := a.db.Close(); err != nil {
		a.log.Warn("close database", zap.Error(err))
	}
}

func (a *App) setupRouter() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(a.cfg.TrustedProxies); err != nil {
		a.log.Warn("invalid trusted proxies", zap.Error(err))
	}

	r.Use(middleware.Recovery(a.log))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(a.log.Named("http")))
	r.Use(otelgin.Middleware(telemetry.ServiceName))
	r.Use(telemetry.GinMiddleware())

	// Security middleware
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(a.cfg.AllowedOrigins))
	if a.cfg.RateLimitPerMinute > 0 {
		r.Use(a.rateLimiter.Middleware())
	}

	handlers.RegisterRoutes(r, handlers.Dependencies{
		Auth:      a.authService,
		Manager:   a.manager,
		Logger:    a.log.Named("api"),
		IngestKey: a.cfg.IngestKey,
	})
	return r
}

func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	gin.SetMode(cfg.GinMode)

	if cfg.GeneratedSecret {
		log.Warn("JWT_SECRET is not set; using a random secret, tokens will not survive a restart")
	}
	if cfg.IngestKey == "" {
		log.Warn("INGEST_KEY is not set; POST /metrics accepts unauthenticated samples")
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracingOptions{
		Exporter:       cfg.TracesExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		OTLPInsecure:   cfg.OTLPInsecure,
		ServiceVersion: version.String(),
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        app.setupRouter(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("version", version.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}
	log.Info("shutting down server")

	// Give in-flight requests 5 seconds to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("tracer shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}
