package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/botsim/internal/bot"
	"github.com/udisondev/botsim/internal/config"
	"github.com/udisondev/botsim/internal/journal"
	"github.com/udisondev/botsim/internal/observer"
	"github.com/udisondev/botsim/internal/sim"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	path := config.Path()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
	bot.EnableDebugLogging(logLevel == slog.LevelDebug)

	slog.Info("botsim starting",
		"config", path,
		"log_level", cfg.LogLevel,
		"maps", cfg.Maps,
		"bots_per_map", cfg.Bots.Count,
		"brain", cfg.Bots.Brain)

	var (
		sinks []sim.OutcomeSink
		jrnl  *journal.Journal
		obs   *observer.Server
	)

	if cfg.Journal.Enabled {
		dsn := cfg.Journal.Database.DSN()
		if err := journal.RunMigrations(ctx, dsn); err != nil {
			return fmt.Errorf("running journal migrations: %w", err)
		}
		slog.Info("journal migrations applied")

		store, err := journal.NewPGStore(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connecting journal database: %w", err)
		}
		defer store.Close()

		jrnl = journal.New(store, journal.Options{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			Buffer:        cfg.Journal.Buffer,
			SkipApplied:   cfg.Journal.SkipApplied,
		})
		sinks = append(sinks, jrnl)
	}

	if cfg.Observer.Enabled {
		obs = observer.NewServer(observer.Options{
			Addr:       cfg.Observer.Addr,
			SendBuffer: cfg.Observer.SendBuffer,
			Sample:     cfg.Observer.Sample,
		})
		sinks = append(sinks, obs)
	}

	a, err := newApp(cfg, sinks...)
	if err != nil {
		return fmt.Errorf("building simulation: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	a.start(gctx, g)

	if jrnl != nil {
		g.Go(func() error {
			if err := jrnl.Run(gctx); err != nil {
				return fmt.Errorf("journal: %w", err)
			}
			return nil
		})
	}
	if obs != nil {
		g.Go(func() error {
			if err := obs.Run(gctx); err != nil {
				return fmt.Errorf("observer: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	a.close()
	return err
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
