package orderbookv1

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceLevel represents a price level in the order book: all resting orders
// at one price, kept in arrival order. The head of the queue is the earliest
// arrival and always fills first.
type PriceLevel struct {
	Price       decimal.Decimal `json:"price"`
	Orders      []*Order        `json:"orders"`
	TotalVolume decimal.Decimal `json:"totalVolume"`
}

// NewPriceLevel creates a new PriceLevel with the specified price.
func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		Price:       price,
		Orders:      make([]*Order, 0),
		TotalVolume: decimal.Zero,
	}
}

// AddOrder appends an order to the back of the level's queue and updates the
// total volume.
func (l *PriceLevel) AddOrder(order *Order) error {
	if order == nil {
		return ErrNilOrder
	}
	if order.Quantity.Sign() <= 0 {
		return fmt.Errorf("%w: quantity %s", ErrInvalidOrder, order.Quantity)
	}

	l.Orders = append(l.Orders, order)
	l.TotalVolume = l.TotalVolume.Add(order.Quantity)

	return nil
}

// RemoveOrder removes an order from the level and updates the total volume.
func (l *PriceLevel) RemoveOrder(order *Order) error {
	if order == nil {
		return ErrNilOrder
	}

	for i, o := range l.Orders {
		if o == order {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			l.TotalVolume = l.TotalVolume.Sub(order.Quantity)
			return nil
		}
	}

	return ErrOrderNotFound
}

// Fill consumes from the head of the queue until the incoming order is
// exhausted or the level is empty. Partially filled orders keep their place;
// fully filled orders are removed. Returns one Match per resting order hit,
// in fill order.
func (l *PriceLevel) Fill(incoming *Order) []Match {
	if incoming == nil {
		return nil
	}

	var matches []Match

	for len(l.Orders) > 0 && incoming.Quantity.Sign() > 0 {
		resting := l.Orders[0]

		quantity := decimal.Min(incoming.Quantity, resting.Quantity)
		incoming.Quantity = incoming.Quantity.Sub(quantity)
		resting.Quantity = resting.Quantity.Sub(quantity)
		l.TotalVolume = l.TotalVolume.Sub(quantity)

		matches = append(matches, Match{
			Maker:    resting,
			Taker:    incoming,
			Price:    l.Price,
			Quantity: quantity,
		})

		if resting.IsFilled() {
			l.Orders = l.Orders[1:]
		}
	}

	return matches
}

// IsEmpty checks if the level has no orders.
func (l *PriceLevel) IsEmpty() bool {
	return len(l.Orders) == 0
}

// OrderCount returns the number of orders at this level.
func (l *PriceLevel) OrderCount() int {
	return len(l.Orders)
}

// Validate performs basic validation of the level's state.
func (l *PriceLevel) Validate() error {
	if l.Price.Sign() <= 0 {
		return fmt.Errorf("%w: level price %s", ErrInvalidOrder, l.Price)
	}

	calculated := decimal.Zero
	for _, order := range l.Orders {
		if order == nil {
			return fmt.Errorf("nil order found in level %s", l.Price)
		}
		if order.Quantity.Sign() <= 0 {
			return fmt.Errorf("%w: resting order %d has quantity %s", ErrInvalidOrder, order.ID, order.Quantity)
		}
		calculated = calculated.Add(order.Quantity)
	}

	if !calculated.Equal(l.TotalVolume) {
		return fmt.Errorf("volume mismatch at %s: calculated %s, stored %s", l.Price, calculated, l.TotalVolume)
	}

	return nil
}
