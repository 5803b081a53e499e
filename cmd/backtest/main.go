package main

import (
	"context"
	"fmt"
	"os"

	"flag"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bikeshrana/pmbacktest/internal/broker"
	"github.com/bikeshrana/pmbacktest/internal/config"
	"github.com/bikeshrana/pmbacktest/internal/ingest"
	"github.com/bikeshrana/pmbacktest/internal/metrics"
	"github.com/bikeshrana/pmbacktest/internal/portfolio"
	"github.com/bikeshrana/pmbacktest/internal/replay"
	"github.com/bikeshrana/pmbacktest/internal/report"
	"github.com/bikeshrana/pmbacktest/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	eventLogPath := flag.String("events", "", "Path to NDJSON event log (overrides replay.event_log_path)")
	marketID := flag.String("market", "", "Market id label for the report header")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	logger := log.With().Str("component", "backtest").Logger()

	logger.Info().Msg("starting backtest run")

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

	f, err := os.Open(eventPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", eventPath).Msg("failed to open event log")
	}
	defer f.Close()

	m := metrics.New("pmbacktest")
	b := broker.New(broker.Config{
		CommissionRate: cfg.Broker.CommissionRate,
		BaseSlippage:   cfg.Broker.BaseSlippage,
		LiquidityCap:   cfg.Broker.LiquidityCap,
		EMADecay:       cfg.Broker.EMADecay,
	}, logger, m)
	p := portfolio.New(cfg.Replay.InitialCash, logger)

	var sink replay.Sink
	if cfg.Replay.Persist {
		ctx := context.Background()
		dsn := cfg.Database.ConnectionString()

		migrationDB, err := store.OpenForMigration(dsn)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open migration connection")
		}
		migrationCfg := store.MigrationConfig{
			MigrationsPath: cfg.Database.MigrationsPath,
			DatabaseName:   cfg.Database.Database,
		}
		if err := store.RunMigrations(migrationDB, migrationCfg); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		migrationDB.Close()

		pool, err := store.Connect(ctx, dsn)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to results store")
		}
		defer pool.Close()

		runID := uuid.New().String()
		sink = store.New(pool, runID, logger, m)
		logger.Info().Str("run_id", runID).Str("event_log", eventPath).Msg("persisting replay output to results store")
	}

	engine := replay.New(b, p, sink, replay.Config{SnapshotEvery: cfg.Replay.SnapshotEvery}, logger)

	events, errCh := ingest.Decode(f)

	ctx := context.Background()
	result, runErr := engine.Run(ctx, events)
	if decodeErr := <-errCh; decodeErr != nil {
		logger.Fatal().Err(decodeErr).Msg("failed to decode event log")
	}
	if runErr != nil {
		logger.Fatal().Err(runErr).Msg("replay run failed")
	}

	calc := report.NewCalculator(result.ClosedTrades, result.Snapshots, cfg.Replay.InitialCash)
	label := *marketID
	if label == "" {
		label = eventPath
	}
	printer := report.NewPrinter(calc.Compute(), label, cfg.Replay.InitialCash)

	fmt.Println(printer.Console())

	if path, err := printer.SaveToFile(cfg.Replay.OutputDir); err != nil {
		logger.Error().Err(err).Msg("failed to save report")
	} else {
		logger.Info().Str("path", path).Msg("report saved")
	}

	logger.Info().
		Int("fills", len(result.Fills)).
		Int("snapshots", len(result.Snapshots)).
		Int("closed_trades", len(result.ClosedTrades)).
		Msg("backtest completed")
}
