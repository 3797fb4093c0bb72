// CLAUDE:SUMMARY CLI entry point for authwatch: capture a logged-in session, replay it headless and report new list items.
// Command authwatch captures an authenticated browser session once, replays
// it into a headless browser and reports newly listed items to subscribers.
//
// Usage:
//
//	authwatch                            # capture interactively, then monitor
//	authwatch -config authwatch.yaml     # same, with a config file
//	authwatch -reuse                     # replay the last stored session if any
//	authwatch -capture-only              # capture, store and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/authwatch/authwatch"
	"github.com/hazyhaar/authwatch/internal/admin"
	"github.com/hazyhaar/authwatch/internal/config"
	"github.com/hazyhaar/authwatch/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to authwatch.yaml (defaults built in)")
	envFile := flag.String("env", ".env", "dotenv file loaded before AUTHWATCH_* variables")
	reuse := flag.Bool("reuse", false, "replay the latest stored session instead of capturing")
	captureOnly := flag.Bool("capture-only", false, "capture and store a session, then exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *envFile, *reuse, *captureOnly); err != nil {
		logger.Error("authwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, envFile string, reuse, captureOnly bool) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.LoadEnv(envFile); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var st *store.Store
	if cfg.Storage.SnapshotDB != "" {
		var err error
		if st, err = store.Open(cfg.Storage.SnapshotDB); err != nil {
			return err
		}
		defer st.Close()
	} else if captureOnly {
		return errors.New("-capture-only needs storage.snapshot_db")
	}

	w, err := authwatch.New(authwatch.Options{Config: cfg, Store: st, Logger: logger})
	if err != nil {
		return err
	}

	if captureOnly {
		snap, err := w.Capture(ctx)
		if err != nil {
			return err
		}
		if err := w.Persist(ctx, snap); err != nil {
			return err
		}
		logger.Info("authwatch: session stored", "snapshot", snap.ID, "db", cfg.Storage.SnapshotDB)
		return nil
	}

	if cfg.Admin.Listen != "" {
		srv := admin.NewServer(w, w.Metrics().Handler(), logger)
		go func() {
			if err := srv.Serve(ctx, cfg.Admin.Listen); err != nil {
				logger.Error("authwatch: admin server", "error", err)
			}
		}()
	}

	return w.Run(ctx, reuse)
}
