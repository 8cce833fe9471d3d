package orderbook

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
)

// PlaceOrderRequest represents a request to place an order in the order book.
type PlaceOrderRequest struct {
	Side     orderbookv1.Side
	Kind     orderbookv1.OrderKind
	Price    decimal.Decimal // ignored for market orders
	Quantity decimal.Decimal
}

// bookSide holds one side of the book: price levels sorted best-first
// (descending for bids, ascending for asks) plus a price lookup.
type bookSide struct {
	bid     bool
	levels  []*orderbookv1.PriceLevel
	byPrice map[string]*orderbookv1.PriceLevel
}

func newBookSide(bid bool) *bookSide {
	return &bookSide{
		bid:     bid,
		byPrice: make(map[string]*orderbookv1.PriceLevel),
	}
}

// best returns the top-of-book level, or nil when the side is empty.
func (s *bookSide) best() *orderbookv1.PriceLevel {
	if len(s.levels) == 0 {
		return nil
	}
	return s.levels[0]
}

// level returns the level at the given price, creating it in sorted position
// when absent.
func (s *bookSide) level(price decimal.Decimal) *orderbookv1.PriceLevel {
	key := price.String()
	if l, ok := s.byPrice[key]; ok {
		return l
	}

	l := orderbookv1.NewPriceLevel(price)
	idx := sort.Search(len(s.levels), func(i int) bool {
		if s.bid {
			return s.levels[i].Price.LessThan(price)
		}
		return s.levels[i].Price.GreaterThan(price)
	})
	s.levels = append(s.levels, nil)
	copy(s.levels[idx+1:], s.levels[idx:])
	s.levels[idx] = l
	s.byPrice[key] = l

	return l
}

// lookup returns the existing level at the given price, if any.
func (s *bookSide) lookup(price decimal.Decimal) (*orderbookv1.PriceLevel, bool) {
	l, ok := s.byPrice[price.String()]
	return l, ok
}

// removeLevel drops an empty level from the side.
func (s *bookSide) removeLevel(price decimal.Decimal) {
	key := price.String()
	if _, ok := s.byPrice[key]; !ok {
		return
	}
	delete(s.byPrice, key)
	for i, l := range s.levels {
		if l.Price.Equal(price) {
			s.levels = append(s.levels[:i], s.levels[i+1:]...)
			return
		}
	}
}

// Book is the matching engine: two sides of price levels, an order-id index
// for O(1) cancellation, and the append-only trade history.
type Book struct {
	mu sync.RWMutex

	pair string
	bids *bookSide
	asks *bookSide

	orders map[uint64]*orderbookv1.Order // orderID -> resting order
	nextID uint64

	trades      []orderbookv1.Trade
	totalVolume decimal.Decimal

	clock   func() int64 // nanosecond timestamps for orders and trades
	entropy io.Reader    // trade id entropy, monotonic when seeded
}

// NewBook creates an empty book for the given pair. The clock supplies order
// and trade timestamps; the entropy reader feeds trade ULIDs. Passing a
// seeded monotonic reader makes trade ids reproducible across runs.
func NewBook(pair string, clock func() int64, entropy io.Reader) *Book {
	if clock == nil {
		clock = func() int64 { return time.Now().UnixNano() }
	}
	if entropy == nil {
		entropy = ulid.DefaultEntropy()
	}
	return &Book{
		pair:        pair,
		bids:        newBookSide(true),
		asks:        newBookSide(false),
		orders:      make(map[uint64]*orderbookv1.Order),
		trades:      make([]orderbookv1.Trade, 0),
		totalVolume: decimal.Zero,
		clock:       clock,
		entropy:     entropy,
	}
}

// Pair returns the instrument this book trades.
func (b *Book) Pair() string {
	return b.pair
}

// Seed bulk-initializes resting liquidity from a bootstrap snapshot. Levels
// must carry positive prices and quantities, be ordered best-first away from
// the touch on each side, and must not cross. A failed seed leaves the book
// empty.
func (b *Book) Seed(snapshot *orderbookv1.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("%w: snapshot is nil", orderbookv1.ErrInvalidSnapshot)
	}

	if err := validateSide(snapshot.Bids, true); err != nil {
		return err
	}
	if err := validateSide(snapshot.Asks, false); err != nil {
		return err
	}
	if len(snapshot.Bids) > 0 && len(snapshot.Asks) > 0 &&
		!snapshot.Bids[0].Price.LessThan(snapshot.Asks[0].Price) {
		return fmt.Errorf("%w: snapshot is crossed (bid %s >= ask %s)",
			orderbookv1.ErrInvalidSnapshot, snapshot.Bids[0].Price, snapshot.Asks[0].Price)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	for _, lvl := range snapshot.Bids {
		b.restLocked(&orderbookv1.Order{
			ID:        b.claimID(),
			Side:      orderbookv1.SideBuy,
			Kind:      orderbookv1.OrderKindLimit,
			Price:     lvl.Price,
			Quantity:  lvl.Quantity,
			Timestamp: now,
		})
	}
	for _, lvl := range snapshot.Asks {
		b.restLocked(&orderbookv1.Order{
			ID:        b.claimID(),
			Side:      orderbookv1.SideSell,
			Kind:      orderbookv1.OrderKindLimit,
			Price:     lvl.Price,
			Quantity:  lvl.Quantity,
			Timestamp: now,
		})
	}

	return nil
}

func validateSide(levels []orderbookv1.SnapshotLevel, bid bool) error {
	var prev decimal.Decimal
	for i, lvl := range levels {
		if lvl.Price.Sign() <= 0 {
			return fmt.Errorf("%w: non-positive price %s", orderbookv1.ErrInvalidSnapshot, lvl.Price)
		}
		if lvl.Quantity.Sign() <= 0 {
			return fmt.Errorf("%w: non-positive quantity %s at %s", orderbookv1.ErrInvalidSnapshot, lvl.Quantity, lvl.Price)
		}
		if i > 0 {
			ordered := lvl.Price.LessThan(prev)
			if !bid {
				ordered = lvl.Price.GreaterThan(prev)
			}
			if !ordered {
				return fmt.Errorf("%w: levels not ordered away from the touch (%s then %s)",
					orderbookv1.ErrInvalidSnapshot, prev, lvl.Price)
			}
		}
		prev = lvl.Price
	}
	return nil
}

// Submit validates and matches an incoming order, returning the trades
// generated and the order's remaining quantity. Limit remainders rest in the
// book; market remainders are discarded. Validation happens before any
// mutation, so a rejected submit leaves the book untouched.
func (b *Book) Submit(req PlaceOrderRequest) (*orderbookv1.MatchResult, error) {
	order := &orderbookv1.Order{
		Side:     req.Side,
		Kind:     req.Kind,
		Price:    req.Price,
		Quantity: req.Quantity,
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	order.ID = b.claimID()
	order.Timestamp = b.clock()

	opposing := b.asks
	if order.IsAsk() {
		opposing = b.bids
	}

	var trades []orderbookv1.Trade
	for order.Quantity.Sign() > 0 {
		best := opposing.best()
		if best == nil {
			break
		}
		if order.Kind == orderbookv1.OrderKindLimit && !crosses(order, best.Price) {
			break
		}

		for _, m := range best.Fill(order) {
			trades = append(trades, b.recordTradeLocked(m, order.Side))
			if m.MakerIsFilled() {
				delete(b.orders, m.Maker.ID)
			}
		}

		if best.IsEmpty() {
			opposing.removeLevel(best.Price)
		}
	}

	resting := false
	if order.Quantity.Sign() > 0 && order.Kind == orderbookv1.OrderKindLimit {
		b.restLocked(order)
		resting = true
	}

	return &orderbookv1.MatchResult{
		Order:     order,
		Trades:    trades,
		Remaining: order.Quantity,
		Resting:   resting,
	}, nil
}

// crosses reports whether a limit order is willing to trade at the opposing
// best price.
func crosses(order *orderbookv1.Order, opposingBest decimal.Decimal) bool {
	if order.IsBid() {
		return opposingBest.LessThanOrEqual(order.Price)
	}
	return opposingBest.GreaterThanOrEqual(order.Price)
}

// Cancel removes a resting order by id. It returns whether the order was
// found; cancelling an unknown or already-filled id is not an error.
func (b *Book) Cancel(orderID uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[orderID]
	if !ok {
		return false
	}

	side := b.bids
	if order.IsAsk() {
		side = b.asks
	}

	if level, ok := side.lookup(order.Price); ok {
		_ = level.RemoveOrder(order)
		if level.IsEmpty() {
			side.removeLevel(level.Price)
		}
	}

	delete(b.orders, orderID)
	return true
}

// RestingOrderIDs returns the ids of all currently resting orders. Used by
// the flow simulator to pick a cancellation target.
func (b *Book) RestingOrderIDs() []uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]uint64, 0, len(b.orders))
	for _, side := range []*bookSide{b.bids, b.asks} {
		for _, level := range side.levels {
			for _, order := range level.Orders {
				ids = append(ids, order.ID)
			}
		}
	}
	return ids
}

// RestingOrderCount returns the number of resting orders.
func (b *Book) RestingOrderCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}

// BestBid returns the highest bid price, if the bid side is non-empty.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestPrice(b.bids)
}

// BestAsk returns the lowest ask price, if the ask side is non-empty.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestPrice(b.asks)
}

func bestPrice(side *bookSide) (decimal.Decimal, bool) {
	best := side.best()
	if best == nil {
		return decimal.Zero, false
	}
	return best.Price, true
}

// Spread returns ask minus bid, defined only when both sides are quoted.
func (b *Book) Spread() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bid, okBid := bestPrice(b.bids)
	ask, okAsk := bestPrice(b.asks)
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

// MidPrice returns (bid+ask)/2, defined only when both sides are quoted.
func (b *Book) MidPrice() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bid, okBid := bestPrice(b.bids)
	ask, okAsk := bestPrice(b.asks)
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// Depth returns up to n aggregated (price, quantity) levels for one side,
// ordered best-first.
func (b *Book) Depth(side orderbookv1.Side, n int) []orderbookv1.SnapshotLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.bids
	if side == orderbookv1.SideSell {
		s = b.asks
	}

	if n <= 0 || n > len(s.levels) {
		n = len(s.levels)
	}

	depth := make([]orderbookv1.SnapshotLevel, 0, n)
	for _, level := range s.levels[:n] {
		depth = append(depth, orderbookv1.SnapshotLevel{
			Price:    level.Price,
			Quantity: level.TotalVolume,
		})
	}
	return depth
}

// RecentTrades returns the last n trades, oldest first.
func (b *Book) RecentTrades(n int) []orderbookv1.Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > len(b.trades) {
		n = len(b.trades)
	}
	out := make([]orderbookv1.Trade, n)
	copy(out, b.trades[len(b.trades)-n:])
	return out
}

// TotalTrades returns the number of trades executed since the book was created.
func (b *Book) TotalTrades() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.trades))
}

// TotalVolume returns the cumulative traded quantity.
func (b *Book) TotalVolume() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalVolume
}

// BidVolume returns the total resting quantity on the bid side.
func (b *Book) BidVolume() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sideVolume(b.bids)
}

// AskVolume returns the total resting quantity on the ask side.
func (b *Book) AskVolume() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sideVolume(b.asks)
}

func sideVolume(side *bookSide) decimal.Decimal {
	total := decimal.Zero
	for _, level := range side.levels {
		total = total.Add(level.TotalVolume)
	}
	return total
}

// CreateSnapshot dumps the book's resting state for persistence.
func (b *Book) CreateSnapshot() *orderbookv1.BookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var orders []orderbookv1.BookOrder
	for _, side := range []*bookSide{b.bids, b.asks} {
		for _, level := range side.levels {
			for _, order := range level.Orders {
				orders = append(orders, orderbookv1.BookOrder{
					OrderID:   order.ID,
					Side:      order.Side,
					Price:     order.Price,
					Quantity:  order.Quantity,
					Timestamp: order.Timestamp,
				})
			}
		}
	}

	return &orderbookv1.BookSnapshot{
		Pair:       b.pair,
		NextID:     b.nextID,
		Orders:     orders,
		TradeCount: int64(len(b.trades)),
		Timestamp:  b.clock(),
	}
}

// Restore replaces the book's resting state with a persisted snapshot.
// Every order is validated before anything is replaced, so a malformed
// snapshot leaves the book exactly as it was.
func (b *Book) Restore(snapshot *orderbookv1.BookSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("%w: book snapshot is nil", orderbookv1.ErrInvalidSnapshot)
	}

	orders := make([]*orderbookv1.Order, 0, len(snapshot.Orders))
	for _, bo := range snapshot.Orders {
		order := &orderbookv1.Order{
			ID:        bo.OrderID,
			Side:      bo.Side,
			Kind:      orderbookv1.OrderKindLimit,
			Price:     bo.Price,
			Quantity:  bo.Quantity,
			Timestamp: bo.Timestamp,
		}
		if err := order.Validate(); err != nil {
			return fmt.Errorf("%w: order %d: %v", orderbookv1.ErrInvalidSnapshot, bo.OrderID, err)
		}
		orders = append(orders, order)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = newBookSide(true)
	b.asks = newBookSide(false)
	b.orders = make(map[uint64]*orderbookv1.Order)

	for _, order := range orders {
		b.restLocked(order)
	}
	b.nextID = snapshot.NextID

	return nil
}

// claimID hands out the next order id. Ids are strictly increasing and
// define time priority.
func (b *Book) claimID() uint64 {
	b.nextID++
	return b.nextID
}

// restLocked places an order at the back of its level's queue and indexes it.
func (b *Book) restLocked(order *orderbookv1.Order) {
	side := b.bids
	if order.IsAsk() {
		side = b.asks
	}
	_ = side.level(order.Price).AddOrder(order)
	b.orders[order.ID] = order
}

// recordTradeLocked converts a match into an immutable trade record and
// appends it to the history.
func (b *Book) recordTradeLocked(m orderbookv1.Match, takerSide orderbookv1.Side) orderbookv1.Trade {
	ts := b.clock()
	trade := orderbookv1.Trade{
		ID:        ulid.MustNew(ulid.Timestamp(time.Unix(0, ts)), b.entropy),
		MakerID:   m.Maker.ID,
		TakerID:   m.Taker.ID,
		TakerSide: takerSide,
		Price:     m.Price,
		Quantity:  m.Quantity,
		Timestamp: ts,
	}
	b.trades = append(b.trades, trade)
	b.totalVolume = b.totalVolume.Add(m.Quantity)
	return trade
}
