package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tailorly/internal/config"
	"github.com/kailas-cloud/tailorly/internal/db"
	dbGoRedis "github.com/kailas-cloud/tailorly/internal/db/goredis"
	dbMemory "github.com/kailas-cloud/tailorly/internal/db/memory"
	dbPostgres "github.com/kailas-cloud/tailorly/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/tailorly/internal/db/redis"
	"github.com/kailas-cloud/tailorly/internal/domain"
	"github.com/kailas-cloud/tailorly/internal/domain/policy"
	logpkg "github.com/kailas-cloud/tailorly/internal/logger"
	"github.com/kailas-cloud/tailorly/internal/metrics"
	policyrepo "github.com/kailas-cloud/tailorly/internal/repository/policy"
	profilerepo "github.com/kailas-cloud/tailorly/internal/repository/profile"
	chiTransport "github.com/kailas-cloud/tailorly/internal/transport/chi"
	openaiGen "github.com/kailas-cloud/tailorly/internal/transport/openai"
	generationuc "github.com/kailas-cloud/tailorly/internal/usecase/generation"
	healthuc "github.com/kailas-cloud/tailorly/internal/usecase/health"
	ledgeruc "github.com/kailas-cloud/tailorly/internal/usecase/ledger"
	policyuc "github.com/kailas-cloud/tailorly/internal/usecase/policy"
	"github.com/kailas-cloud/tailorly/internal/version"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting tailorly API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	ctx := context.Background()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register domain metrics explicitly (no init())
	metrics.RegisterLedgerMetrics()
	metrics.RegisterGenerationMetrics()

	policySvc := policyuc.New(policyrepo.New(store, cfg.Storage.KeyPrefix), logger).
		WithTTL(time.Duration(cfg.Ledger.PolicyCacheTTLSec) * time.Second).
		WithFallback(policy.Access{
			DefaultQuota:       cfg.Ledger.DefaultQuota,
			HoldTimeoutMinutes: cfg.Ledger.HoldTimeoutMinutes,
		})

	ledgerSvc := ledgeruc.New(profilerepo.New(store, cfg.Storage.KeyPrefix), policySvc, logger).
		WithAdmin(cfg.Ledger.AdminEmail, cfg.Ledger.AdminQuota)

	// Pass nil interfaces (not typed nil pointers) when generation is off.
	var (
		generator domain.Generator
		genHealth healthuc.GeneratorChecker
	)
	if cfg.Generation.APIKey != "" {
		chat := openaiGen.NewChatGenerator(&openaiGen.Config{
			APIKey:      cfg.Generation.APIKey,
			BaseURL:     cfg.Generation.BaseURL,
			Model:       cfg.Generation.Model,
			Temperature: cfg.Generation.Temperature,
			MaxTokens:   cfg.Generation.MaxTokens,
			Timeout:     time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		})
		generator = generationuc.NewInstrumentedGenerator(chat, cfg.Generation.Model, logger)
		genHealth = chat
		logger.Info("Generator created", zap.String("model", cfg.Generation.Model))
	} else {
		logger.Warn("generation.api_key is empty, generation endpoint disabled")
	}

	orchestrator := generationuc.New(ledgerSvc, generator, logger).WithCost(cfg.Generation.HoldCost)
	healthSvc := healthuc.New(store, genHealth)

	server := chiTransport.NewServer(ledgerSvc, policySvc, orchestrator, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys, cfg.Auth.AdminAPIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}
	// Generation runs block on the provider; give them room.
	if gen := time.Duration(cfg.Generation.TimeoutSec) * time.Second; generator != nil && gen >= srv.WriteTimeout {
		srv.WriteTimeout = gen + 5*time.Second
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openStore creates the profile store for the configured driver.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverValkey, config.DriverRedis:
		return dbRedis.NewStore(dbRedis.Config{
			Addrs:         cfg.Addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			MaxTxAttempts: cfg.MaxTxAttempts,
		})
	case config.DriverGoRedis:
		return dbGoRedis.NewStore(dbGoRedis.Config{
			Addrs:         cfg.Addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			MaxTxAttempts: cfg.MaxTxAttempts,
		})
	case config.DriverPostgres:
		s, err := dbPostgres.Connect(ctx, cfg.DSN, dbPostgres.WithMaxAttempts(cfg.MaxTxAttempts))
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.DriverMemory:
		return dbMemory.NewStore(dbMemory.WithMaxAttempts(cfg.MaxTxAttempts)), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// jsonRecoverer turns panics into a JSON 500 instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logger.Error("panic recovered",
					zap.Any("panic", rvr),
					zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
					zap.Stack("stacktrace"),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
					Code:    chiTransport.ErrorResponseCodeInternalError,
					Message: "internal error",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits one canonical log line per request and
// propagates X-Request-ID. Server errors are logged at WARN.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}

			level := zap.InfoLevel
			if ww.Status() >= http.StatusInternalServerError {
				level = zap.WarnLevel
			}
			reqLogger.Log(level, "http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
