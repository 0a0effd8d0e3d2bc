package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pumpwatch-trading/pumpwatch/internal/config"
	"github.com/pumpwatch-trading/pumpwatch/internal/engine"
	"github.com/pumpwatch-trading/pumpwatch/internal/feed"
	"github.com/pumpwatch-trading/pumpwatch/internal/journal"
	"github.com/pumpwatch-trading/pumpwatch/internal/pipeline"
	"github.com/pumpwatch-trading/pumpwatch/internal/position"
	"github.com/pumpwatch-trading/pumpwatch/internal/pricing"
	"github.com/pumpwatch-trading/pumpwatch/internal/status"
	"github.com/pumpwatch-trading/pumpwatch/internal/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use synthetic feed (no real WebSocket connection)")
	flag.Parse()

	// .env is optional; real config comes from the YAML file with env expansion.
	_ = godotenv.Load()

	// 2. Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("pumpwatch - Paper Trading Engine - Starting")
	log.Info().Msg("TRACK -> FILTER -> SIGNAL -> SCORE -> TRADE")
	log.Info().Msg("=============================================")

	// 3b. Validate configuration.
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	useStub := *stubMode || cfg.Feed.UseStub
	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Bool("stub_mode", useStub).
		Str("endpoint", cfg.Feed.Endpoint).
		Float64("min_entry_score", cfg.Scoring.MinEntryScore).
		Float64("nominal_size", cfg.Entry.NominalSize).
		Float64("partial_trigger_pct", cfg.Exit.PartialTriggerPct).
		Float64("full_profit_pct", cfg.Exit.FullProfitPct).
		Float64("whale_ceiling", cfg.Kill.WhaleCeiling).
		Msg("Configuration loaded")

	// 4. Create the feed source.
	var source feed.Source
	if useStub {
		source = feed.NewStubSource(cfg.Feed.StubSeed, 3, 500*time.Millisecond)
		log.Info().Msg("Feed: STUB mode")
	} else {
		source = feed.NewWSSource(feed.WSConfig{
			Endpoint:         cfg.Feed.Endpoint,
			ReconnectDelayMs: cfg.Feed.ReconnectDelayMs,
			PingIntervalS:    cfg.Feed.PingIntervalS,
			MaxReconnects:    cfg.Feed.MaxReconnects,
		})
		log.Info().Str("endpoint", cfg.Feed.Endpoint).Msg("Feed: LIVE WebSocket")
	}

	// 5. Create the token registry.
	registry := token.NewRegistry(token.TrackerConfig{
		Retention:       5 * time.Minute,
		MaxAge:          time.Duration(cfg.Tracker.MaxAgeMin) * time.Minute,
		InactivityAge:   time.Duration(cfg.Tracker.InactivityAgeMin) * time.Minute,
		MinUniqueBuyers: cfg.Tracker.MinUniqueBuyers,
	})

	// 6. Create the decision pipeline stages.
	filters := pipeline.NewFilterStage(pipeline.FilterConfig{
		MaxSingleBuy:     cfg.Filters.MaxSingleBuy,
		MaxAvgBuy:        cfg.Filters.MaxAvgBuy,
		MinAvgBuy:        cfg.Filters.MinAvgBuy,
		MaxBuySizeStd:    cfg.Filters.MaxBuySizeStd,
		MaxDevBuys:       cfg.Filters.MaxDevBuys,
		MaxMetadataEdits: cfg.Filters.MaxMetadataEdits,
	})
	signals := pipeline.NewSignalStage(pipeline.SignalConfig{
		MinUniqueBuyers: cfg.Signals.MinUniqueBuyers,
		MaxMeanInterval: cfg.Signals.MaxMeanInterval,
		MinAvgBuy:       cfg.Signals.MinAvgBuy,
		MaxAvgBuy:       cfg.Signals.MaxAvgBuy,
		LowVarianceStd:  cfg.Signals.LowVarianceStd,
		MaxLargestBuy:   cfg.Signals.MaxLargestBuy,
		MinTx60s:        cfg.Signals.MinTx60s,
	})
	scoring := pipeline.NewScoringStage(pipeline.ScoreConfig{
		WeightBuyers:       cfg.Scoring.WeightBuyers,
		WeightAcceleration: cfg.Scoring.WeightAcceleration,
		WeightRepeatBuyers: cfg.Scoring.WeightRepeatBuyers,
		LargeBuyCutoff:     cfg.Scoring.LargeBuyCutoff,
		PenaltyLargeBuy:    cfg.Scoring.PenaltyLargeBuy,
		PenaltyNoActivity:  cfg.Scoring.PenaltyNoActivity,
		MinEntryScore:      cfg.Scoring.MinEntryScore,
	})

	// 7. Create the position manager.
	manager := position.NewManager(position.Config{
		NominalSize:  cfg.Entry.NominalSize,
		MinEntryAge:  time.Duration(cfg.Entry.MinEntryAgeMin) * time.Minute,
		MaxEntryAge:  time.Duration(cfg.Entry.MaxEntryAgeMin) * time.Minute,
		MinValuation: cfg.Entry.MinValuation,
		MaxValuation: cfg.Entry.MaxValuation,
		Exit: position.ExitConfig{
			PartialTriggerPct: cfg.Exit.PartialTriggerPct,
			PartialFraction:   cfg.Exit.PartialFraction,
			FullProfitPct:     cfg.Exit.FullProfitPct,
			InactivityTimeout: time.Duration(cfg.Exit.InactivityTimeoutS) * time.Second,
			DecreaseLimit:     cfg.Exit.DecreaseLimit,
			SpikeRatio:        cfg.Exit.SpikeRatio,
		},
		Kill: position.KillConfig{
			InactivityTimeout: time.Duration(cfg.Kill.InactivityTimeoutS) * time.Second,
			WhaleCeiling:      cfg.Kill.WhaleCeiling,
		},
	}, pricing.AvgBuyPrice{}, pricing.NewBuyerFlowValuer(cfg.Entry.ValuationMultiplier))

	// 8. Create the journal.
	jrnl, err := journal.New(cfg.Journal.Path, cfg.Journal.MaxBuffer)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Journal.Path).Msg("Failed to open journal")
	}
	defer jrnl.Close()

	// 9. Create the engine.
	eng := engine.New(engine.Config{
		EvalInterval:  time.Duration(cfg.Engine.EvalIntervalS) * time.Second,
		SweepInterval: time.Duration(cfg.Engine.SweepIntervalS) * time.Second,
	}, source, registry, filters, signals, scoring, manager, jrnl)

	// 10. Setup context and signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 11. Start services.
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.Run(ctx, eng.OnTransaction); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Feed terminated")
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()

	var statusServer *status.Server
	if cfg.Status.Enabled {
		statusServer = status.NewServer(status.Config{Addr: cfg.Status.Addr}, func() any {
			return eng.Snapshot()
		})
		statusServer.Start()
	}

	// Periodic stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := eng.Snapshot()
				log.Info().
					Bool("feed_connected", snap.FeedConnected).
					Uint64("processed", snap.Processed).
					Int("active_tokens", snap.ActiveTokens).
					Int("open_positions", snap.OpenPositions).
					Int("closed_positions", snap.ClosedPositions).
					Str("realized_pnl", snap.RealizedPnL.String()).
					Msg("[STATS]")
			}
		}
	}()

	log.Info().Msg("pumpwatch - Running")
	log.Info().Msg("Pipeline: Feed -> Tracker -> Filters -> Signals -> Scoring -> Positions -> Journal")

	// 12. Block until shutdown.
	<-ctx.Done()
	wg.Wait()

	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		statusServer.Stop(shutdownCtx)
		shutdownCancel()
	}

	// Final stats.
	snap := eng.Snapshot()
	log.Info().
		Uint64("processed", snap.Processed).
		Int("open_positions", snap.OpenPositions).
		Int("closed_positions", snap.ClosedPositions).
		Str("realized_pnl", snap.RealizedPnL.String()).
		Msg("pumpwatch - Final Statistics")

	log.Info().Msg("pumpwatch - Shutdown complete")
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "pumpwatch").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "pumpwatch").
			Str("instance", general.InstanceID).Logger()
	}
}
