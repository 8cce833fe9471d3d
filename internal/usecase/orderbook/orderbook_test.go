package orderbook

import (
	"math/rand"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestBook builds a book with a deterministic clock and seeded entropy so
// assertions on ids and history are stable.
func newTestBook() *Book {
	var tick int64
	clock := func() int64 {
		tick++
		return 1700000000_000000000 + tick
	}
	entropy := ulid.Monotonic(rand.New(rand.NewSource(1)), 0)
	return NewBook("XBTUSD", clock, entropy)
}

func limit(side orderbookv1.Side, price, quantity string) PlaceOrderRequest {
	return PlaceOrderRequest{
		Side:     side,
		Kind:     orderbookv1.OrderKindLimit,
		Price:    d(price),
		Quantity: d(quantity),
	}
}

func market(side orderbookv1.Side, quantity string) PlaceOrderRequest {
	return PlaceOrderRequest{
		Side:     side,
		Kind:     orderbookv1.OrderKindMarket,
		Quantity: d(quantity),
	}
}

func seedLevels(prices ...[2]string) []orderbookv1.SnapshotLevel {
	levels := make([]orderbookv1.SnapshotLevel, 0, len(prices))
	for _, p := range prices {
		levels = append(levels, orderbookv1.SnapshotLevel{Price: d(p[0]), Quantity: d(p[1])})
	}
	return levels
}

func TestBook_Seed(t *testing.T) {
	t.Run("Valid snapshot", func(t *testing.T) {
		book := newTestBook()
		err := book.Seed(&orderbookv1.Snapshot{
			Bids: seedLevels([2]string{"100.00", "10"}, [2]string{"99.90", "8"}),
			Asks: seedLevels([2]string{"100.10", "10"}, [2]string{"100.20", "5"}),
		})
		require.NoError(t, err)

		bid, ok := book.BestBid()
		require.True(t, ok)
		assert.Equal(t, "100", bid.String())

		ask, ok := book.BestAsk()
		require.True(t, ok)
		assert.Equal(t, "100.1", ask.String())

		spread, ok := book.Spread()
		require.True(t, ok)
		assert.Equal(t, "0.1", spread.String())
	})

	t.Run("Non-positive price", func(t *testing.T) {
		book := newTestBook()
		err := book.Seed(&orderbookv1.Snapshot{
			Bids: seedLevels([2]string{"0", "10"}),
		})
		assert.ErrorIs(t, err, orderbookv1.ErrInvalidSnapshot)
		assert.Equal(t, 0, book.RestingOrderCount())
	})

	t.Run("Bids not descending", func(t *testing.T) {
		book := newTestBook()
		err := book.Seed(&orderbookv1.Snapshot{
			Bids: seedLevels([2]string{"99.90", "10"}, [2]string{"100.00", "8"}),
		})
		assert.ErrorIs(t, err, orderbookv1.ErrInvalidSnapshot)
		assert.Equal(t, 0, book.RestingOrderCount())
	})

	t.Run("Asks not ascending", func(t *testing.T) {
		book := newTestBook()
		err := book.Seed(&orderbookv1.Snapshot{
			Asks: seedLevels([2]string{"100.20", "10"}, [2]string{"100.10", "8"}),
		})
		assert.ErrorIs(t, err, orderbookv1.ErrInvalidSnapshot)
	})

	t.Run("Crossed snapshot", func(t *testing.T) {
		book := newTestBook()
		err := book.Seed(&orderbookv1.Snapshot{
			Bids: seedLevels([2]string{"100.10", "10"}),
			Asks: seedLevels([2]string{"100.00", "10"}),
		})
		assert.ErrorIs(t, err, orderbookv1.ErrInvalidSnapshot)
	})

	t.Run("Nil snapshot", func(t *testing.T) {
		book := newTestBook()
		assert.ErrorIs(t, book.Seed(nil), orderbookv1.ErrInvalidSnapshot)
	})
}

func TestBook_Submit_Validation(t *testing.T) {
	book := newTestBook()

	t.Run("Zero quantity", func(t *testing.T) {
		_, err := book.Submit(limit(orderbookv1.SideBuy, "100", "0"))
		assert.ErrorIs(t, err, orderbookv1.ErrInvalidOrder)
	})

	t.Run("Limit without price", func(t *testing.T) {
		_, err := book.Submit(PlaceOrderRequest{
			Side:     orderbookv1.SideBuy,
			Kind:     orderbookv1.OrderKindLimit,
			Quantity: d("1"),
		})
		assert.ErrorIs(t, err, orderbookv1.ErrInvalidOrder)
	})

	t.Run("Rejected submit leaves book unchanged", func(t *testing.T) {
		before := book.RestingOrderCount()
		_, err := book.Submit(limit(orderbookv1.SideBuy, "100", "-5"))
		assert.Error(t, err)
		assert.Equal(t, before, book.RestingOrderCount())
	})
}

func TestBook_Submit_LimitCross(t *testing.T) {
	// seed bid [(100.00, 10)], ask [(100.10, 10)]; LIMIT BUY 100.10 x 5
	// must produce one trade at 100.10 for 5, leave 5 on the ask level,
	// rest nothing new on the bid side and keep the spread at 0.10.
	book := newTestBook()
	require.NoError(t, book.Seed(&orderbookv1.Snapshot{
		Bids: seedLevels([2]string{"100.00", "10"}),
		Asks: seedLevels([2]string{"100.10", "10"}),
	}))

	result, err := book.Submit(limit(orderbookv1.SideBuy, "100.10", "5"))
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, "100.1", result.Trades[0].Price.String())
	assert.Equal(t, "5", result.Trades[0].Quantity.String())
	assert.True(t, result.Remaining.IsZero())
	assert.False(t, result.Resting)

	askDepth := book.Depth(orderbookv1.SideSell, 1)
	require.Len(t, askDepth, 1)
	assert.Equal(t, "5", askDepth[0].Quantity.String())

	spread, ok := book.Spread()
	require.True(t, ok)
	assert.Equal(t, "0.1", spread.String())
}

func TestBook_Submit_MarketAcrossLevels(t *testing.T) {
	// MARKET SELL 15 against bids [(100.00,10),(99.90,8)] must produce
	// trades (100.00,10) then (99.90,5) and leave 3 at 99.90.
	book := newTestBook()
	require.NoError(t, book.Seed(&orderbookv1.Snapshot{
		Bids: seedLevels([2]string{"100.00", "10"}, [2]string{"99.90", "8"}),
	}))

	result, err := book.Submit(market(orderbookv1.SideSell, "15"))
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, "100", result.Trades[0].Price.String())
	assert.Equal(t, "10", result.Trades[0].Quantity.String())
	assert.Equal(t, "99.9", result.Trades[1].Price.String())
	assert.Equal(t, "5", result.Trades[1].Quantity.String())

	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, "99.9", bid.String())

	depth := book.Depth(orderbookv1.SideBuy, 1)
	require.Len(t, depth, 1)
	assert.Equal(t, "3", depth[0].Quantity.String())
}

func TestBook_Submit_MarketRemainderDiscarded(t *testing.T) {
	book := newTestBook()
	require.NoError(t, book.Seed(&orderbookv1.Snapshot{
		Asks: seedLevels([2]string{"100.10", "4"}),
	}))

	result, err := book.Submit(market(orderbookv1.SideBuy, "10"))
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, "6", result.Remaining.String())
	assert.False(t, result.Resting)

	// the unfilled remainder never rests
	_, ok := book.BestBid()
	assert.False(t, ok)
	_, ok = book.BestAsk()
	assert.False(t, ok)
	assert.Equal(t, 0, book.RestingOrderCount())
}

func TestBook_PriceTimePriority(t *testing.T) {
	book := newTestBook()

	first, err := book.Submit(limit(orderbookv1.SideSell, "100.10", "5"))
	require.NoError(t, err)
	second, err := book.Submit(limit(orderbookv1.SideSell, "100.10", "5"))
	require.NoError(t, err)
	require.Less(t, first.Order.ID, second.Order.ID)

	result, err := book.Submit(limit(orderbookv1.SideBuy, "100.10", "7"))
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, first.Order.ID, result.Trades[0].MakerID)
	assert.Equal(t, "5", result.Trades[0].Quantity.String())
	assert.Equal(t, second.Order.ID, result.Trades[1].MakerID)
	assert.Equal(t, "2", result.Trades[1].Quantity.String())
}

func TestBook_PartialFillKeepsPosition(t *testing.T) {
	book := newTestBook()

	first, err := book.Submit(limit(orderbookv1.SideSell, "100.10", "10"))
	require.NoError(t, err)
	second, err := book.Submit(limit(orderbookv1.SideSell, "100.10", "10"))
	require.NoError(t, err)

	// partially fill the first order
	partial, err := book.Submit(limit(orderbookv1.SideBuy, "100.10", "4"))
	require.NoError(t, err)
	require.Len(t, partial.Trades, 1)
	require.Equal(t, first.Order.ID, partial.Trades[0].MakerID)

	// the remainder of the first order must still fill before the second
	aggressive, err := book.Submit(limit(orderbookv1.SideBuy, "100.10", "8"))
	require.NoError(t, err)

	require.Len(t, aggressive.Trades, 2)
	assert.Equal(t, first.Order.ID, aggressive.Trades[0].MakerID)
	assert.Equal(t, "6", aggressive.Trades[0].Quantity.String())
	assert.Equal(t, second.Order.ID, aggressive.Trades[1].MakerID)
	assert.Equal(t, "2", aggressive.Trades[1].Quantity.String())
}

func TestBook_NoSelfCross(t *testing.T) {
	book := newTestBook()
	require.NoError(t, book.Seed(&orderbookv1.Snapshot{
		Bids: seedLevels([2]string{"100.00", "10"}),
		Asks: seedLevels([2]string{"100.10", "10"}),
	}))

	// a limit buy through several ask prices must never leave a crossed book
	_, err := book.Submit(limit(orderbookv1.SideBuy, "100.50", "25"))
	require.NoError(t, err)

	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if okBid && okAsk {
		assert.True(t, bid.LessThan(ask), "book crossed: bid %s >= ask %s", bid, ask)
	}
}

func TestBook_Conservation(t *testing.T) {
	book := newTestBook()
	require.NoError(t, book.Seed(&orderbookv1.Snapshot{
		Bids: seedLevels([2]string{"100.00", "10"}, [2]string{"99.90", "8"}),
		Asks: seedLevels([2]string{"100.10", "10"}, [2]string{"100.20", "5"}),
	}))

	restingBefore := book.BidVolume().Add(book.AskVolume())

	result, err := book.Submit(market(orderbookv1.SideSell, "12"))
	require.NoError(t, err)

	filled := result.FilledQuantity()
	restingAfter := book.BidVolume().Add(book.AskVolume())

	// quantity removed from resting orders equals quantity filled
	assert.True(t, restingBefore.Sub(restingAfter).Equal(filled),
		"removed %s, filled %s", restingBefore.Sub(restingAfter), filled)

	// resting + filled + discarded remainder = submitted + original resting
	total := restingAfter.Add(filled).Add(result.Remaining)
	assert.True(t, total.Equal(restingBefore.Add(d("12"))))
}

func TestBook_Cancel(t *testing.T) {
	book := newTestBook()

	result, err := book.Submit(limit(orderbookv1.SideBuy, "100.00", "10"))
	require.NoError(t, err)

	t.Run("Cancel resting order", func(t *testing.T) {
		assert.True(t, book.Cancel(result.Order.ID))
		_, ok := book.BestBid()
		assert.False(t, ok, "cancelling the last order must remove the level")
	})

	t.Run("Cancel unknown id", func(t *testing.T) {
		assert.False(t, book.Cancel(9999))
	})

	t.Run("Cancel twice", func(t *testing.T) {
		assert.False(t, book.Cancel(result.Order.ID))
	})
}

func TestBook_Depth(t *testing.T) {
	book := newTestBook()
	require.NoError(t, book.Seed(&orderbookv1.Snapshot{
		Bids: seedLevels([2]string{"100.00", "10"}, [2]string{"99.90", "8"}, [2]string{"99.80", "2"}),
		Asks: seedLevels([2]string{"100.10", "5"}),
	}))

	depth := book.Depth(orderbookv1.SideBuy, 2)
	require.Len(t, depth, 2)
	assert.Equal(t, "100", depth[0].Price.String())
	assert.Equal(t, "99.9", depth[1].Price.String())

	all := book.Depth(orderbookv1.SideBuy, 0)
	assert.Len(t, all, 3)
}

func TestBook_RecentTrades(t *testing.T) {
	book := newTestBook()
	require.NoError(t, book.Seed(&orderbookv1.Snapshot{
		Asks: seedLevels([2]string{"100.10", "10"}),
	}))

	for i := 0; i < 3; i++ {
		_, err := book.Submit(market(orderbookv1.SideBuy, "1"))
		require.NoError(t, err)
	}

	trades := book.RecentTrades(2)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Timestamp <= trades[1].Timestamp)
	assert.Equal(t, int64(3), book.TotalTrades())
	assert.Equal(t, "3", book.TotalVolume().String())
}

func TestBook_SnapshotRoundTrip(t *testing.T) {
	book := newTestBook()
	require.NoError(t, book.Seed(&orderbookv1.Snapshot{
		Bids: seedLevels([2]string{"100.00", "10"}, [2]string{"99.90", "8"}),
		Asks: seedLevels([2]string{"100.10", "5"}),
	}))

	snap := book.CreateSnapshot()
	require.Len(t, snap.Orders, 3)

	restored := newTestBook()
	require.NoError(t, restored.Restore(snap))

	assert.Equal(t, book.RestingOrderCount(), restored.RestingOrderCount())

	bid, ok := restored.BestBid()
	require.True(t, ok)
	assert.Equal(t, "100", bid.String())

	// ids continue after the snapshot's last claimed id
	result, err := restored.Submit(limit(orderbookv1.SideBuy, "99.80", "1"))
	require.NoError(t, err)
	assert.Greater(t, result.Order.ID, snap.Orders[len(snap.Orders)-1].OrderID)
}

func TestBook_Restore_InvalidSnapshotLeavesBookUntouched(t *testing.T) {
	book := newTestBook()
	require.NoError(t, book.Seed(&orderbookv1.Snapshot{
		Bids: seedLevels([2]string{"100.00", "10"}),
		Asks: seedLevels([2]string{"100.10", "5"}),
	}))

	bad := &orderbookv1.BookSnapshot{
		Pair:   "XBTUSD",
		NextID: 99,
		Orders: []orderbookv1.BookOrder{
			{OrderID: 50, Side: orderbookv1.SideBuy, Price: d("99.00"), Quantity: d("1")},
			{OrderID: 51, Side: orderbookv1.SideSell, Price: d("101.00"), Quantity: d("0")}, // invalid
		},
	}

	err := book.Restore(bad)
	require.ErrorIs(t, err, orderbookv1.ErrInvalidSnapshot)

	// nothing was replaced, not even by the valid leading order
	assert.Equal(t, 2, book.RestingOrderCount())

	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, "100", bid.String())

	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, "100.1", ask.String())
}
