package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hawkesv1 "github.com/Hermit005-io/lob-simulator/internal/domain/hawkes/v1"
	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/flow"
	"github.com/Hermit005-io/lob-simulator/pkg/logger"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testFlowConfig() flow.Config {
	return flow.Config{
		PriceOffsetMax:   d("5"),
		Tick:             d("0.1"),
		QuantityLogMean:  -2,
		QuantityLogSigma: 1,
		MinQuantity:      d("0.001"),
		ReferencePrice:   d("100"),
	}
}

func testSnapshot() *orderbookv1.Snapshot {
	return &orderbookv1.Snapshot{
		Pair: "XBTUSD",
		Bids: []orderbookv1.SnapshotLevel{
			{Price: d("100.0"), Quantity: d("10")},
			{Price: d("99.9"), Quantity: d("8")},
			{Price: d("99.8"), Quantity: d("12")},
		},
		Asks: []orderbookv1.SnapshotLevel{
			{Price: d("100.1"), Quantity: d("5")},
			{Price: d("100.2"), Quantity: d("7")},
			{Price: d("100.3"), Quantity: d("9")},
		},
		Timestamp: 1700000000_000000000,
	}
}

func newTestEngine(t *testing.T, seed int64, params *hawkesv1.Params, opts *Options) *Engine {
	t.Helper()

	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.ErrorLevel))
	require.NoError(t, err)

	eng, err := New("XBTUSD", params, testFlowConfig(), 100, 50, seed, log, opts)
	require.NoError(t, err)
	return eng
}

func TestEngine_Run_MaxEvents(t *testing.T) {
	eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), &Options{MaxEvents: 50})
	require.NoError(t, eng.Seed(testSnapshot()))

	report, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 50, report.Events)
	assert.Equal(t, int64(50), report.Metrics.Events)
	assert.Positive(t, report.SimDuration)
}

func TestEngine_Run_MaxDuration(t *testing.T) {
	eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), &Options{MaxDuration: 5})
	require.NoError(t, eng.Seed(testSnapshot()))

	report, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, report.SimDuration, 5.0)
	assert.Positive(t, report.Events)
}

func TestEngine_Run_ContextCancelled(t *testing.T) {
	eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), &Options{MaxEvents: 100000})
	require.NoError(t, eng.Seed(testSnapshot()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := eng.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Events)

	// the book is intact, no event was half-applied
	bid, ok := eng.BestBid()
	require.True(t, ok)
	assert.Equal(t, "100", bid.String())
}

func TestEngine_Run_DeadProcess(t *testing.T) {
	eng := newTestEngine(t, 42, &hawkesv1.Params{}, &Options{MaxEvents: 100})
	require.NoError(t, eng.Seed(testSnapshot()))

	report, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Events)
}

func TestEngine_Run_Deterministic(t *testing.T) {
	run := func() ([]orderbookv1.Trade, *RunReport) {
		eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), &Options{MaxEvents: 200})
		require.NoError(t, eng.Seed(testSnapshot()))
		report, err := eng.Run(context.Background())
		require.NoError(t, err)
		return eng.RecentTrades(0), report
	}

	tradesA, reportA := run()
	tradesB, reportB := run()

	assert.Equal(t, reportA.Events, reportB.Events)
	assert.Equal(t, reportA.SimDuration, reportB.SimDuration)
	assert.Equal(t, reportA.TradeCount, reportB.TradeCount)
	assert.True(t, reportA.Volume.Equal(reportB.Volume))
	assert.Equal(t, reportA.Metrics, reportB.Metrics)

	require.Len(t, tradesB, len(tradesA))
	for i := range tradesA {
		assert.Equal(t, tradesA[i].ID, tradesB[i].ID, "trade %d", i)
		assert.Equal(t, tradesA[i].Timestamp, tradesB[i].Timestamp, "trade %d", i)
		assert.True(t, tradesA[i].Price.Equal(tradesB[i].Price), "trade %d", i)
		assert.True(t, tradesA[i].Quantity.Equal(tradesB[i].Quantity), "trade %d", i)
	}
}

func TestEngine_Run_SeedsDiverge(t *testing.T) {
	run := func(seed int64) *RunReport {
		eng := newTestEngine(t, seed, hawkesv1.DefaultParams(), &Options{MaxEvents: 200})
		require.NoError(t, eng.Seed(testSnapshot()))
		report, err := eng.Run(context.Background())
		require.NoError(t, err)
		return report
	}

	assert.NotEqual(t, run(1).SimDuration, run(2).SimDuration)
}

func TestEngine_Seed(t *testing.T) {
	t.Run("Crossed snapshot rejected", func(t *testing.T) {
		eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), nil)

		snap := testSnapshot()
		snap.Asks[0].Price = d("99.5") // below best bid

		err := eng.Seed(snap)
		assert.ErrorIs(t, err, orderbookv1.ErrInvalidSnapshot)

		_, ok := eng.BestBid()
		assert.False(t, ok)
	})

	t.Run("Quotes come up after seeding", func(t *testing.T) {
		eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), nil)
		require.NoError(t, eng.Seed(testSnapshot()))

		spread, ok := eng.Spread()
		require.True(t, ok)
		assert.Equal(t, "0.1", spread.String())

		bids := eng.Depth(orderbookv1.SideBuy, 0)
		require.Len(t, bids, 3)
		assert.Equal(t, "100", bids[0].Price.String())
	})
}

func TestEngine_SubmitUserOrder(t *testing.T) {
	eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), &Options{UserOrdersExcite: true})
	require.NoError(t, eng.Seed(testSnapshot()))

	t.Run("Crossing limit order trades", func(t *testing.T) {
		result, err := eng.SubmitUserOrder(
			orderbookv1.SideBuy, orderbookv1.OrderKindLimit, d("100.1"), d("2"))
		require.NoError(t, err)

		require.Len(t, result.Trades, 1)
		assert.Equal(t, "100.1", result.Trades[0].Price.String())
		assert.True(t, result.Remaining.IsZero())
		assert.False(t, result.Resting)
	})

	t.Run("Resting order can be cancelled", func(t *testing.T) {
		result, err := eng.SubmitUserOrder(
			orderbookv1.SideBuy, orderbookv1.OrderKindLimit, d("99.5"), d("1"))
		require.NoError(t, err)
		require.True(t, result.Resting)

		assert.True(t, eng.CancelUserOrder(result.Order.ID))
		assert.False(t, eng.CancelUserOrder(result.Order.ID))
	})

	t.Run("Invalid order rejected", func(t *testing.T) {
		_, err := eng.SubmitUserOrder(
			orderbookv1.SideBuy, orderbookv1.OrderKindLimit, d("100"), decimal.Zero)
		assert.ErrorIs(t, err, orderbookv1.ErrInvalidOrder)
	})

	t.Run("Observed by the metrics tracker", func(t *testing.T) {
		before := eng.MetricsSnapshot().Events
		_, err := eng.SubmitUserOrder(
			orderbookv1.SideSell, orderbookv1.OrderKindMarket, decimal.Zero, d("0.5"))
		require.NoError(t, err)
		assert.Equal(t, before+1, eng.MetricsSnapshot().Events)
	})
}

func TestEngine_ReplayTrades(t *testing.T) {
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	history := []orderbookv1.MarketTrade{
		{Time: base, Price: d("100.1"), Quantity: d("2"), Side: orderbookv1.SideBuy},
		{Time: base.Add(500 * time.Millisecond), Price: d("100"), Quantity: d("3"), Side: orderbookv1.SideSell},
		{Time: base.Add(2 * time.Second), Price: d("100.1"), Quantity: d("1"), Side: orderbookv1.SideBuy},
	}

	t.Run("Consumes liquidity as market orders", func(t *testing.T) {
		eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), nil)
		require.NoError(t, eng.Seed(testSnapshot()))

		report, err := eng.ReplayTrades(context.Background(), history)
		require.NoError(t, err)

		assert.Equal(t, 3, report.Events)
		assert.Equal(t, 2.0, report.SimDuration)
		assert.Equal(t, int64(3), report.TradeCount)
		assert.True(t, report.Volume.Equal(d("6")))
		assert.InDelta(t, 3, report.Metrics.BuyVolume, 1e-12)
		assert.InDelta(t, 3, report.Metrics.SellVolume, 1e-12)

		// buys ate the 100.1 ask level (5 - 2 - 1), sells ate the 100.0 bid
		ask, ok := eng.BestAsk()
		require.True(t, ok)
		assert.Equal(t, "100.1", ask.String())
		assert.True(t, eng.Depth(orderbookv1.SideSell, 1)[0].Quantity.Equal(d("2")))

		bid, ok := eng.BestBid()
		require.True(t, ok)
		assert.Equal(t, "100", bid.String())
		assert.True(t, eng.Depth(orderbookv1.SideBuy, 1)[0].Quantity.Equal(d("7")))
	})

	t.Run("Skips non-positive quantities", func(t *testing.T) {
		eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), nil)
		require.NoError(t, eng.Seed(testSnapshot()))

		report, err := eng.ReplayTrades(context.Background(), []orderbookv1.MarketTrade{
			{Time: base, Price: d("100.1"), Quantity: decimal.Zero, Side: orderbookv1.SideBuy},
		})
		require.NoError(t, err)
		assert.Zero(t, report.Events)
	})

	t.Run("Cancelled context stops the replay", func(t *testing.T) {
		eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), nil)
		require.NoError(t, eng.Seed(testSnapshot()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := eng.ReplayTrades(ctx, history)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, report.Events)
	})
}

func TestEngine_CancelMissStillExcites(t *testing.T) {
	run := func(excite bool, missBeforeRun bool) *RunReport {
		eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), &Options{
			MaxEvents:        20,
			UserOrdersExcite: excite,
		})
		require.NoError(t, eng.Seed(testSnapshot()))

		if missBeforeRun {
			assert.False(t, eng.CancelUserOrder(999999))
		}

		report, err := eng.Run(context.Background())
		require.NoError(t, err)
		return report
	}

	// a missed cancel is still order flow: with excitation on it must change
	// the arrival history, with excitation off it must not
	assert.NotEqual(t, run(true, false).SimDuration, run(true, true).SimDuration)
	assert.Equal(t, run(false, false).SimDuration, run(false, true).SimDuration)
}

func TestEngine_UserOrdersMixWithSyntheticFlow(t *testing.T) {
	eng := newTestEngine(t, 42, hawkesv1.DefaultParams(), &Options{MaxEvents: 100})
	require.NoError(t, eng.Seed(testSnapshot()))

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	// user orders trade against whatever the synthetic flow left behind
	result, err := eng.SubmitUserOrder(
		orderbookv1.SideSell, orderbookv1.OrderKindMarket, decimal.Zero, d("0.1"))
	require.NoError(t, err)
	assert.True(t, result.Remaining.Add(result.FilledQuantity()).Equal(d("0.1")))
}
