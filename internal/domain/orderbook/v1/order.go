package orderbookv1

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNilOrder is returned when a nil order is passed to a book operation.
	ErrNilOrder = errors.New("order cannot be nil")
	// ErrInvalidOrder is returned when an order fails validation (non-positive
	// quantity, or a limit order without a price).
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInvalidSnapshot is returned when seed data is malformed.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrOrderNotFound is returned when an order is missing from a price level.
	ErrOrderNotFound = errors.New("order not found in level")
)

// Side represents the side of an order.
type Side string

const (
	// SideBuy represents a buy (bid) order.
	SideBuy Side = "buy"
	// SideSell represents a sell (ask) order.
	SideSell Side = "sell"
)

// Opposite returns the opposing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind represents the kind of order.
type OrderKind string

const (
	// OrderKindLimit represents a limit order.
	OrderKindLimit OrderKind = "limit"
	// OrderKindMarket represents a market order.
	OrderKindMarket OrderKind = "market"
)

// Order represents a single order in the order book. The ID is assigned by
// the book at submission time and is strictly increasing, so it doubles as
// the sequence number for time priority within a price level.
type Order struct {
	ID        uint64          `json:"id"`
	Side      Side            `json:"side"`
	Kind      OrderKind       `json:"kind"`
	Price     decimal.Decimal `json:"price"`    // zero for market orders
	Quantity  decimal.Decimal `json:"quantity"` // remaining, decreases toward zero on fills
	Timestamp int64           `json:"timestamp"`
}

// IsBid checks if the order is a bid (buy) order.
func (o *Order) IsBid() bool {
	return o.Side == SideBuy
}

// IsAsk checks if the order is an ask (sell) order.
func (o *Order) IsAsk() bool {
	return o.Side == SideSell
}

// IsFilled checks if the order is filled (remaining quantity is zero).
func (o *Order) IsFilled() bool {
	return o.Quantity.Sign() == 0
}

// Validate checks the order against the submission rules: quantity must be
// positive and limit orders must carry a positive price.
func (o *Order) Validate() error {
	if o == nil {
		return ErrNilOrder
	}
	if o.Quantity.Sign() <= 0 {
		return ErrInvalidOrder
	}
	if o.Kind == OrderKindLimit && o.Price.Sign() <= 0 {
		return ErrInvalidOrder
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return ErrInvalidOrder
	}
	return nil
}
