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

	"github.com/MrEthical07/carebook"
	"github.com/MrEthical07/carebook/internal/config"
	"github.com/MrEthical07/carebook/internal/httpapi"
	"github.com/MrEthical07/carebook/internal/logging"
	"github.com/MrEthical07/carebook/internal/sweeper"
	"github.com/MrEthical07/carebook/mail"
	"github.com/MrEthical07/carebook/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineCfg := cfg.Engine()

	rdb, closeRedis, err := openRedis(ctx, cfg.RedisURL, engineCfg.IsDevelopment(), logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	gateway, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}

	builder := carebook.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithEmailGateway(gateway).
		WithLogger(logger)
	if cfg.AuditToLog {
		builder.WithAuditSink(carebook.NewZapAuditSink(logger))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	sw, err := sweeper.New(engine, cfg.SweepSchedule, 30*time.Second, logger)
	if err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	sw.Start()

	server := httpapi.NewServer(engine, logger, prometheus.Handler(prometheus.NewCollector(engine)))
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("carebook listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Environment))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sw.Stop(shutdownCtx)
	return nil
}

func openRedis(ctx context.Context, url string, dev bool, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if url == "" {
		if !dev {
			return nil, nil, errors.New("REDIS_URL is required outside development")
		}
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		logger.Warn("REDIS_URL not set; using in-memory redis, data is lost on exit", zap.String("addr", mr.Addr()))
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func newMailer(cfg config.Config, logger *zap.Logger) (*mail.Gateway, error) {
	renderer, err := mail.NewRenderer()
	if err != nil {
		return nil, err
	}

	if err := cfg.CheckMail(); err != nil {
		return nil, err
	}

	var transport mail.Transport
	if httpCfg, ok := cfg.Mail(); ok {
		transport, err = mail.NewHTTPTransport(httpCfg)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("MAIL_ENDPOINT not set; development emails are written to the log")
		transport = mail.NewLogTransport(logger)
	}
	return mail.NewGateway(renderer, transport)
}
