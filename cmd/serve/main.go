package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bikeshrana/pmbacktest/internal/api"
	"github.com/bikeshrana/pmbacktest/internal/auth"
	"github.com/bikeshrana/pmbacktest/internal/broker"
	"github.com/bikeshrana/pmbacktest/internal/config"
	"github.com/bikeshrana/pmbacktest/internal/ingest"
	"github.com/bikeshrana/pmbacktest/internal/metrics"
	"github.com/bikeshrana/pmbacktest/internal/portfolio"
	"github.com/bikeshrana/pmbacktest/internal/replay"
	"github.com/bikeshrana/pmbacktest/internal/report"
	"github.com/bikeshrana/pmbacktest/internal/store"
)

// liveReport holds the report.Result behind a mutex so the HTTP surface can
// read it while a replay run is still going. The result is computed once,
// when the run returns; until then /report serves a zero-valued Result.
type liveReport struct {
	mu     sync.RWMutex
	result report.Result
}

func (l *liveReport) set(r report.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.result = r
}

func (l *liveReport) get() report.Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.result
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	eventLogPath := flag.String("events", "", "Path to NDJSON event log (overrides replay.event_log_path)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	logger := log.With().Str("component", "serve").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	eventPath := cfg.Replay.EventLogPath
	if *eventLogPath != "" {
		eventPath = *eventLogPath
	}
	if eventPath == "" {
		logger.Fatal().Msg("no event log path given (set replay.event_log_path or -events)")
	}

	live := &liveReport{}
	apiDeps := api.Deps{
		Metrics: metrics.New("pmbacktest"),
		Report:  live.get,
	}
	if cfg.Auth.JWTSecret != "" {
		apiDeps.Auth = auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	}

	var sinks []replay.Sink
	if cfg.Replay.Persist {
		ctx := context.Background()
		dsn := cfg.Database.ConnectionString()

		migrationDB, err := store.OpenForMigration(dsn)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open migration connection")
		}
		if err := store.RunMigrations(migrationDB, store.MigrationConfig{
			MigrationsPath: cfg.Database.MigrationsPath,
			DatabaseName:   cfg.Database.Database,
		}); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		migrationDB.Close()

		pool, err := store.Connect(ctx, dsn)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to results store")
		}
		runID := uuid.New().String()
		sinks = append(sinks, store.New(pool, runID, logger, apiDeps.Metrics))
		apiDeps.HealthPing = func(ctx context.Context) error { return pool.Ping(ctx) }
		logger.Info().Str("run_id", runID).Str("event_log", eventPath).Msg("persisting replay output to results store")
	}

	server := api.NewServer(cfg.Server, apiDeps, logger)
	sinks = append(sinks, server.Hub())

	b := broker.New(broker.Config{
		CommissionRate: cfg.Broker.CommissionRate,
		BaseSlippage:   cfg.Broker.BaseSlippage,
		LiquidityCap:   cfg.Broker.LiquidityCap,
		EMADecay:       cfg.Broker.EMADecay,
	}, logger, apiDeps.Metrics)
	p := portfolio.New(cfg.Replay.InitialCash, logger)
	engine := replay.New(b, p, replay.Tee(sinks...), replay.Config{SnapshotEvery: cfg.Replay.SnapshotEvery}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		f, err := os.Open(eventPath)
		if err != nil {
			return err
		}
		defer f.Close()

		events, errCh := ingest.Decode(f)
		result, runErr := engine.Run(gctx, events)
		if decodeErr := <-errCh; decodeErr != nil {
			logger.Error().Err(decodeErr).Msg("event log decode error")
		}
		if result != nil {
			calc := report.NewCalculator(result.ClosedTrades, result.Snapshots, cfg.Replay.InitialCash)
			live.set(calc.Compute())
		}
		if errors.Is(runErr, context.Canceled) {
			return nil
		}
		return runErr
	})

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-gctx.Done():
		logger.Info().Msg("replay run or HTTP server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down HTTP server")
	}
	cancel()

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("service exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}
