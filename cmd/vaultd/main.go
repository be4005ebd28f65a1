package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"vaultchain/app"
	"vaultchain/config"
	"vaultchain/indexer"
	"vaultchain/observability/logging"
	"vaultchain/observability/metrics"
	telemetry "vaultchain/observability/otel"
	"vaultchain/rpc"
	"vaultchain/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./vaultd.toml", "path to vaultd configuration")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "vaultd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.Setup("vaultd", cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	tel, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "vaultd",
		Environment: cfg.Environment,
		BaseToken:   cfg.BaseToken,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var archive *indexer.Archive
	if cfg.Archive.Enabled() {
		archive, err = indexer.Open(cfg.Archive.Driver, cfg.Archive.DSN)
		if err != nil {
			return fmt.Errorf("open event archive: %w", err)
		}
		defer archive.Close()
	}

	node, err := app.New(cfg, db, app.Options{
		Logger:  logger,
		Metrics: metrics.Vaults(),
		Archive: archive,
	})
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := rpc.NewServer(node, rpc.Config{
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
		Nonces: db,
		Admin: rpc.AdminAuth{
			Secret:   adminSecret(cfg.AdminAuth.Secret),
			Issuer:   cfg.AdminAuth.Issuer,
			Audience: cfg.AdminAuth.Audience,
			Scope:    cfg.AdminAuth.Scope,
		},
	})

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.ListenAndServe(ctx, cfg.RPCAddress)
	})
	if cfg.MetricsAddress != "" {
		group.Go(func() error {
			return serveMetrics(ctx, logger, cfg.MetricsAddress)
		})
	}

	logger.Info("vaultd started",
		slog.String("rpc", cfg.RPCAddress),
		slog.String("metrics", cfg.MetricsAddress),
		slog.String("data_dir", cfg.DataDir))

	err = group.Wait()
	logger.Info("vaultd stopped")
	return err
}

// adminSecret prefers VAULTD_ADMIN_JWT_SECRET over the file value.
func adminSecret(fromFile string) string {
	if env := strings.TrimSpace(os.Getenv("VAULTD_ADMIN_JWT_SECRET")); env != "" {
		return env
	}
	return fromFile
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
