package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	app "github.com/Hermit005-io/lob-simulator/internal/app/engine"
	hawkesv1 "github.com/Hermit005-io/lob-simulator/internal/domain/hawkes/v1"
	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
	"github.com/Hermit005-io/lob-simulator/internal/infra/kraken"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/flow"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/recorder"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/snapshot"
	tradepublisher "github.com/Hermit005-io/lob-simulator/internal/usecase/trade-publisher"
	"github.com/Hermit005-io/lob-simulator/pkg/config"
	"github.com/Hermit005-io/lob-simulator/pkg/logger"
)

var cfg *config.Config
var log *logger.Logger

func init() {
	cfg = &config.Config{}
	config.MustLoad(cfg)

	l, err := logger.NewLogger(logger.WithLoggingLevel(logger.Level(cfg.LogLevel)))
	if err != nil {
		panic(err)
	}
	log = l
}

func main() {
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	params, err := loadHawkesParams()
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "load_hawkes_params"})
		os.Exit(1)
	}

	eng, err := app.New(
		cfg.Pair,
		params,
		flowConfig(),
		cfg.Simulation.MetricsWindow,
		cfg.Simulation.VolWindow,
		cfg.Seed,
		log,
		&app.Options{
			MaxEvents:        cfg.Simulation.MaxEvents,
			MaxDuration:      cfg.Simulation.MaxDuration,
			WallClockBudget:  cfg.Simulation.WallClockBudget,
			UserOrdersExcite: cfg.Simulation.UserOrdersExcite,
		},
	)
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "build_engine"})
		os.Exit(1)
	}

	snap, err := loadSnapshot(ctx)
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "load_snapshot"})
		os.Exit(1)
	}
	if err := eng.Seed(snap); err != nil {
		os.Exit(1)
	}

	report, err := runSimulation(ctx, eng)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error(err, logger.Field{Key: "action", Value: "run_simulation"})
	}

	logReport(report)

	// sinks run outside the hot loop, after the run completed
	drainCtx := context.Background()
	if cfg.Kafka.Enabled {
		publishTrades(drainCtx, eng)
	}
	if cfg.Recorder.Enabled {
		recordRun(drainCtx, eng, report)
	}
	if cfg.Redis.Enabled {
		storeSnapshot(drainCtx, eng)
	}
}

// runSimulation dispatches on mode: synthetic Hawkes flow, or a replay of
// the recorded real trades through the seeded book.
func runSimulation(ctx context.Context, eng *app.Engine) (*app.RunReport, error) {
	if cfg.Mode != "replay" {
		return eng.Run(ctx)
	}

	trades, err := kraken.ReadTrades(cfg.DataDir, cfg.Pair)
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "load_trades"})
		os.Exit(1)
	}
	return eng.ReplayTrades(ctx, trades)
}

func loadHawkesParams() (*hawkesv1.Params, error) {
	if cfg.HawkesParamsFile == "" {
		return hawkesv1.DefaultParams(), nil
	}
	return hawkesv1.LoadParams(cfg.HawkesParamsFile)
}

func flowConfig() flow.Config {
	return flow.Config{
		PriceOffsetMax:   decimal.RequireFromString(cfg.Simulation.PriceOffsetMax),
		Tick:             decimal.RequireFromString(cfg.Simulation.Tick),
		QuantityLogMean:  cfg.Simulation.QuantityLogMean,
		QuantityLogSigma: cfg.Simulation.QuantityLogSigma,
		MinQuantity:      decimal.RequireFromString(cfg.Simulation.MinQuantity),
		ReferencePrice:   decimal.RequireFromString(cfg.Simulation.ReferencePrice),
	}
}

// loadSnapshot prefers a local CSV snapshot and falls back to a live fetch.
func loadSnapshot(ctx context.Context) (*orderbookv1.Snapshot, error) {
	if snap, err := kraken.ReadSnapshot(cfg.DataDir, cfg.Pair); err == nil {
		log.Info("Loaded snapshot from CSV",
			logger.Field{Key: "dataDir", Value: cfg.DataDir},
			logger.Field{Key: "pair", Value: cfg.Pair},
		)
		return snap, nil
	}

	log.Info("No local snapshot, fetching live data",
		logger.Field{Key: "pair", Value: cfg.Pair},
	)
	return kraken.NewClient(log).FetchOrderBook(ctx, cfg.Pair, 50)
}

func logReport(report *app.RunReport) {
	m := report.Metrics
	log.Info("Run report",
		logger.Field{Key: "events", Value: report.Events},
		logger.Field{Key: "trades", Value: report.TradeCount},
		logger.Field{Key: "volume", Value: report.Volume.String()},
		logger.Field{Key: "simSeconds", Value: report.SimDuration},
		logger.Field{Key: "firstMid", Value: m.FirstMid},
		logger.Field{Key: "lastMid", Value: m.LastMid},
		logger.Field{Key: "meanSpread", Value: m.MeanSpread},
		logger.Field{Key: "realizedVol", Value: m.RealizedVol},
		logger.Field{Key: "imbalance", Value: m.Imbalance},
		logger.Field{Key: "buyVolume", Value: m.BuyVolume},
		logger.Field{Key: "sellVolume", Value: m.SellVolume},
	)
}

func publishTrades(ctx context.Context, eng *app.Engine) {
	publisher := tradepublisher.NewPublisher(tradepublisher.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	}, log)
	defer publisher.Close()

	trades := eng.RecentTrades(0) // all of them
	if err := publisher.PublishTrades(ctx, trades); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "publish_trades"})
	}
}

func recordRun(ctx context.Context, eng *app.Engine, report *app.RunReport) {
	rec, err := recorder.NewRecorder(cfg.Recorder.Path)
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "open_recorder"})
		return
	}
	defer rec.Close()

	if err := rec.SaveTrades(ctx, cfg.Pair, eng.RecentTrades(0)); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "record_trades"})
	}

	runID := cfg.Pair + "-" + report.Elapsed.String()
	if err := rec.SaveSeries(ctx, runID, eng.MetricsSeries()); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "record_series"})
	}
}

func storeSnapshot(ctx context.Context, eng *app.Engine) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	store := snapshot.NewStore(client, cfg.Pair, log)
	if err := store.Store(ctx, eng.Book().CreateSnapshot()); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "store_snapshot"})
	}
}
