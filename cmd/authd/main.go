// Command authd runs the authentication service: the engine behind an HTTP
// API, backed by Postgres and Redis.
package main

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

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/leadforge/authcore"
	"github.com/leadforge/authcore/httpapi"
	otelexport "github.com/leadforge/authcore/metrics/export/otel"
	"github.com/leadforge/authcore/postgres"
	"github.com/leadforge/authcore/realip"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("authd exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := os.Getenv("AUTHD_CONFIG")
	if configPath == "" {
		configPath = "configs/authd.yaml"
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = logger.With("service", cfg.ServiceID)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return err
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return err
	}

	engine, err := authcore.NewBuilder().
		WithConfig(cfg.engineConfig()).
		WithRedis(redisClient).
		WithUserProvider(postgres.NewUserRepository(db)).
		WithSessionRepository(postgres.NewSessionRepository(db)).
		WithAuditSink(authcore.NewJSONWriterSink(os.Stdout)).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	// Counters surface through whatever meter provider the deployment
	// installs globally; without one the registration is inert.
	meter := otel.GetMeterProvider().Meter("github.com/leadforge/authcore")
	exporter, err := otelexport.New(meter, engine)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	defer exporter.Close()

	resolver, err := realip.New(realip.Config{TrustedProxies: cfg.TrustedProxies})
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	handler := httpapi.NewHandler(engine).
		WithSessionDirectory(postgres.NewSessionDirectory(db, engine.Tenants()))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpapi.NewRouter(handler, resolver),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
