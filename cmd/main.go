package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/duynhne/profile-service/config"
	database "github.com/duynhne/profile-service/internal/core"
	"github.com/duynhne/profile-service/internal/core/domain"
	"github.com/duynhne/profile-service/internal/core/repository/memory"
	"github.com/duynhne/profile-service/internal/core/repository/psql"
	logicv1 "github.com/duynhne/profile-service/internal/logic/v1"
	"github.com/duynhne/profile-service/internal/upload"
	v1 "github.com/duynhne/profile-service/internal/web/v1"
	"github.com/duynhne/profile-service/middleware"
)

func main() {
	// Load configuration from environment variables (with .env file support for local dev)
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	logger, err := middleware.NewLogger(cfg.Logging)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	logger.Info("Service starting",
		zap.String("service", cfg.Service.Name),
		zap.String("version", cfg.Service.Version),
		zap.String("env", cfg.Service.Env),
		zap.String("port", cfg.Service.Port),
	)

	if cfg.Tracing.Enabled {
		if _, err := middleware.InitTracing(cfg); err != nil {
			logger.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			logger.Info("Tracing initialized",
				zap.String("endpoint", cfg.Tracing.Endpoint),
				zap.Float64("sample_rate", cfg.Tracing.SampleRate),
			)
		}
	} else {
		logger.Info("Tracing disabled (TRACING_ENABLED=false)")
	}

	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg); err != nil {
			logger.Warn("Failed to initialize profiling", zap.Error(err))
		} else {
			logger.Info("Profiling initialized", zap.String("endpoint", cfg.Profiling.Endpoint))
			defer middleware.StopProfiling()
		}
	} else {
		logger.Info("Profiling disabled (PROFILING_ENABLED=false)")
	}

	// Document store: PostgreSQL when DB_HOST is set, in-memory otherwise
	var (
		repo      domain.UserRepository
		closeRepo = func() {}
	)
	if cfg.Database.Enabled() {
		startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		pool, err := database.Connect(startupCtx, cfg.Database)
		if err != nil {
			cancel()
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		err = database.EnsureSchema(startupCtx, pool)
		cancel()
		if err != nil {
			pool.Close()
			logger.Fatal("Failed to prepare user collection", zap.Error(err))
		}
		repo = psql.NewUserRepository(pool)
		closeRepo = pool.Close
		logger.Info("Database connection pool established", zap.String("host", cfg.Database.Host))
	} else {
		repo = memory.NewUserRepository()
		logger.Warn("DB_HOST not set, using in-memory user store (records are lost on restart)")
	}
	defer func() { closeRepo() }()

	uploads, err := upload.NewStore(cfg.Upload, upload.WithLogger(logger.Named("upload")))
	if err != nil {
		logger.Fatal("Failed to prepare upload directory", zap.Error(err))
	}
	logger.Info("Upload directory ready",
		zap.String("dir", uploads.Dir()),
		zap.Bool("verify_content", cfg.Upload.VerifyContent),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.Upload.MaxMemory

	var isShuttingDown atomic.Bool

	// Tracing middleware (must be first for context propagation)
	r.Use(middleware.TracingMiddleware())
	r.Use(middleware.LoggingMiddleware(logger))
	if cfg.Metrics.Enabled {
		r.Use(middleware.PrometheusMiddleware())
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Returns 503 once shutdown has started, to drain traffic before HTTP shutdown.
	r.GET("/ready", func(c *gin.Context) {
		if isShuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := v1.NewUserHandler(logicv1.NewUserService(repo), uploads)
	v1.RegisterRoutes(r, handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting profile service", zap.String("port", cfg.Service.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	// Fail readiness first and wait for propagation
	isShuttingDown.Store(true)
	if drainDelay := cfg.GetReadinessDrainDelayDuration(); drainDelay > 0 {
		logger.Info("Readiness drain delay started", zap.Duration("delay", drainDelay))
		time.Sleep(drainDelay)
	}

	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("Shutting down server...", zap.Duration("timeout", shutdownTimeout))

	// Cleanup order: HTTP Server → Document store → Tracer

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		logger.Info("HTTP server shutdown complete")
	}

	closeRepo()
	closeRepo = func() {}
	logger.Info("Document store closed")

	if err := middleware.Shutdown(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown error", zap.Error(err))
	} else {
		logger.Info("Tracer shutdown complete")
	}

	logger.Info("Graceful shutdown complete")
}
