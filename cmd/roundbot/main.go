package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/roundbot/config"
	"github.com/alejandrodnm/roundbot/internal/adapters/notify"
	"github.com/alejandrodnm/roundbot/internal/adapters/storage"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the settled bets of every round")
	demo := flag.Bool("demo", false, "place random bets during each betting window")
	settleBet := flag.String("settle-bet", "", "settle one bet manually by id and exit")
	result := flag.String("result", "", "result for -settle-bet: win|lose|draw")
	report := flag.Bool("report", false, "print recent rounds, today's target and deferred payouts, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	console := notify.NewConsole(*table)

	if *report {
		if err := runReport(ctx, store, console); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	app, err := build(ctx, cfg, store, console)
	if err != nil {
		slog.Error("failed to wire components", "err", err)
		os.Exit(1)
	}
	defer app.queue.Close()

	if *settleBet != "" {
		if err := runSettleBet(ctx, app.settler, *settleBet, *result); err != nil {
			slog.Error("manual settlement failed", "err", err, "bet", *settleBet)
			os.Exit(1)
		}
		return
	}

	slog.Info("roundbot starting",
		"config", *configPath,
		"round", cfg.RoundDuration(),
		"lock_before", cfg.LockBefore(),
		"on_chain", cfg.OnChain(),
		"drift", cfg.Drift.Enabled,
		"feed", cfg.Feed.Enabled,
		"demo", *demo,
	)

	if err := app.scheduler.Recover(ctx); err != nil {
		slog.Error("startup recovery failed", "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.scheduler.Run(gctx) })
	if app.drift != nil {
		g.Go(func() error { return app.drift.Run(gctx) })
	}
	if *demo {
		bettor, err := newDemoBettor(cfg, store, app.oracle, app.sim)
		if err != nil {
			slog.Error("failed to create demo bettor", "err", err)
			os.Exit(1)
		}
		g.Go(func() error { return bettor.Run(gctx) })
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("roundbot exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("roundbot stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
