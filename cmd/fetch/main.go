package main

import (
	"context"
	"os"
	"time"

	"github.com/Hermit005-io/lob-simulator/internal/infra/kraken"
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := kraken.NewClient(log)

	snap, err := client.FetchOrderBook(ctx, cfg.Pair, 50)
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "fetch_order_book"})
		os.Exit(1)
	}

	if err := kraken.WriteSnapshot(cfg.DataDir, snap); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "write_snapshot"})
		os.Exit(1)
	}

	trades, err := client.FetchRecentTrades(ctx, cfg.Pair, 500)
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "fetch_recent_trades"})
		os.Exit(1)
	}
	if err := kraken.WriteTrades(cfg.DataDir, cfg.Pair, trades); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "write_trades"})
		os.Exit(1)
	}

	stats, err := client.FetchTicker(ctx, cfg.Pair)
	if err != nil {
		log.Warn("Ticker fetch failed, snapshot saved without stats",
			logger.Field{Key: "error", Value: err.Error()},
		)
		return
	}

	log.Info("Snapshot saved",
		logger.Field{Key: "pair", Value: cfg.Pair},
		logger.Field{Key: "dataDir", Value: cfg.DataDir},
		logger.Field{Key: "bidLevels", Value: len(snap.Bids)},
		logger.Field{Key: "askLevels", Value: len(snap.Asks)},
		logger.Field{Key: "trades", Value: len(trades)},
		logger.Field{Key: "spread", Value: stats.Ask.Sub(stats.Bid).String()},
		logger.Field{Key: "last", Value: stats.Last.String()},
	)
}
