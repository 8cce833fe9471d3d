package orderbookv1

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Match represents one fill between an incoming (taker) order and a resting
// (maker) order. The trade always prints at the maker's price.
type Match struct {
	Maker    *Order          `json:"maker"`
	Taker    *Order          `json:"taker"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// MakerIsFilled checks if the resting order is fully filled.
func (m *Match) MakerIsFilled() bool {
	return m.Maker.IsFilled()
}

// TakerIsFilled checks if the incoming order is fully filled.
func (m *Match) TakerIsFilled() bool {
	return m.Taker.IsFilled()
}

// Trade is the immutable record of one match, kept in append-only history.
type Trade struct {
	ID        ulid.ULID       `json:"id"`
	MakerID   uint64          `json:"makerID"`
	TakerID   uint64          `json:"takerID"`
	TakerSide Side            `json:"takerSide"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp int64           `json:"timestamp"`
}

// MarketTrade is one public trade observed on a live venue. Batches of them
// can be replayed through the book as market orders to reproduce real flow.
type MarketTrade struct {
	Time     time.Time       `json:"time"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Side     Side            `json:"side"`
}

// MatchResult is what Submit returns: the trades generated plus the
// remaining (possibly zero) quantity of the incoming order.
type MatchResult struct {
	Order     *Order          `json:"order"`
	Trades    []Trade         `json:"trades"`
	Remaining decimal.Decimal `json:"remaining"`
	Resting   bool            `json:"resting"` // true when a limit remainder was placed in the book
}

// FilledQuantity sums the fills across all trades in the result.
func (r *MatchResult) FilledQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, t := range r.Trades {
		total = total.Add(t.Quantity)
	}
	return total
}
