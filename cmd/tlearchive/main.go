package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/tlearchive/internal/api"
	"github.com/star/tlearchive/internal/archive"
	"github.com/star/tlearchive/internal/config"
	"github.com/star/tlearchive/internal/scheduler"
	"github.com/star/tlearchive/internal/tle"
	"github.com/star/tlearchive/internal/tracker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	logger.Info("tlearchive config",
		"source_url", cfg.SourceURL,
		"target_identifier", cfg.TargetID,
		"archive_path", cfg.ArchivePath,
		"http_timeout_seconds", cfg.HTTPTimeout.Seconds(),
		"interval", cfg.Interval.String(),
	)

	fetcher := tle.NewFetcher(cfg.SourceURL, cfg.TargetID, logger, tle.WithTimeout(cfg.HTTPTimeout))
	store := archive.NewStore(cfg.ArchivePath, logger)
	tr := tracker.New(fetcher, store, logger, cfg.MetricsFile)

	if !cfg.Scheduled() {
		outcome, err := tr.Run(ctx)
		if err != nil {
			logger.Error("run failed", "outcome", outcome, "error", err)
			os.Exit(1)
		}
		logger.Info("run complete", "outcome", outcome)
		return
	}

	if err := runScheduled(ctx, cfg, logger, store, tr); err != nil {
		logger.Error("scheduled mode failed", "error", err)
		os.Exit(1)
	}
}

// runScheduled keeps running the tracker until SIGINT/SIGTERM.
func runScheduled(ctx context.Context, cfg *config.Config, logger *slog.Logger, store *archive.Store, tr *tracker.Tracker) error {
	sched := scheduler.New(tr, cfg.Interval, logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	var srv *api.Server
	if cfg.Addr != "" {
		srv = api.NewServer(cfg.Addr, logger, store, sched.Ready)
		go func() {
			logger.Info("starting server", "addr", cfg.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server listen error", "error", err)
				os.Exit(1)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	logger.Info("stopped")
	return nil
}
