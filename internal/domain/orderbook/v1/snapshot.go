package orderbookv1

import (
	"github.com/shopspring/decimal"
)

// SnapshotLevel is one aggregated price level of a market snapshot.
type SnapshotLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Snapshot is the bootstrap market snapshot consumed by Seed: aggregated
// levels per side, ordered best-first (bids descending, asks ascending).
type Snapshot struct {
	Pair      string          `json:"pair"`
	Bids      []SnapshotLevel `json:"bids"`
	Asks      []SnapshotLevel `json:"asks"`
	Timestamp int64           `json:"timestamp"`
}

// BookOrder is one resting order inside a persisted book snapshot.
type BookOrder struct {
	OrderID   uint64          `json:"orderID"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp int64           `json:"timestamp"`
}

// BookSnapshot is a full dump of the book's resting state, used by the
// snapshot store to persist and restore a book between runs.
type BookSnapshot struct {
	Pair       string      `json:"pair"`
	NextID     uint64      `json:"nextID"`
	Orders     []BookOrder `json:"orders"`
	TradeCount int64       `json:"tradeCount"`
	Timestamp  int64       `json:"timestamp"`
}
