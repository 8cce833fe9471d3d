package flow

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/shopspring/decimal"

	hawkesv1 "github.com/Hermit005-io/lob-simulator/internal/domain/hawkes/v1"
	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/hawkes"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/orderbook"
)

// ErrZeroIntensity is returned when the total intensity is zero, which means
// no further event can ever arrive (all baselines zero and excitation fully
// decayed).
var ErrZeroIntensity = errors.New("total intensity is zero, process is dead")

// Config holds the order-construction parameters for synthetic flow.
type Config struct {
	PriceOffsetMax   decimal.Decimal // limit prices land within [touch-offset, touch+offset]
	Tick             decimal.Decimal // price rounding increment
	QuantityLogMean  float64         // lognormal size distribution
	QuantityLogSigma float64
	MinQuantity      decimal.Decimal
	ReferencePrice   decimal.Decimal // fallback mid when a side is empty
}

// Event is one accepted arrival of the simulated point process, after it has
// been applied to the book.
type Event struct {
	Time        float64 // simulated seconds since run start
	Type        hawkesv1.EventType
	Result      *orderbookv1.MatchResult // nil for cancel events
	CancelledID uint64                   // target of a cancel event
	Cancelled   bool                     // whether the cancel found a resting order
}

// Simulator drives synthetic order flow: it samples arrival times from the
// intensity process via Ogata's thinning algorithm, decides the event type,
// constructs an order and applies it to the book. All randomness comes from
// the injected generator, so a fixed seed reproduces the run exactly.
type Simulator struct {
	book    *orderbook.Book
	process *hawkes.IntensityProcess
	rng     *rand.Rand
	cfg     Config

	now float64
}

// NewSimulator creates a simulator starting at simulated time zero.
func NewSimulator(book *orderbook.Book, process *hawkes.IntensityProcess, rng *rand.Rand, cfg Config) (*Simulator, error) {
	if book == nil || process == nil || rng == nil {
		return nil, errors.New("book, process and rng are required")
	}
	if cfg.Tick.Sign() <= 0 {
		return nil, fmt.Errorf("tick must be positive, got %s", cfg.Tick)
	}
	if cfg.MinQuantity.Sign() <= 0 {
		return nil, fmt.Errorf("minimum quantity must be positive, got %s", cfg.MinQuantity)
	}
	return &Simulator{
		book:    book,
		process: process,
		rng:     rng,
		cfg:     cfg,
	}, nil
}

// Now returns the current simulated time in seconds.
func (s *Simulator) Now() float64 {
	return s.now
}

// Step samples the next arrival, applies it to the book and records it in
// the intensity process. It advances simulated time even across rejected
// thinning candidates.
func (s *Simulator) Step() (*Event, error) {
	t, eventType, err := s.nextArrival()
	if err != nil {
		return nil, err
	}

	event := &Event{Time: t, Type: eventType}

	switch eventType {
	case hawkesv1.EventCancel:
		event.CancelledID, event.Cancelled = s.cancelRandomOrder()
	default:
		result, err := s.book.Submit(s.buildOrder(eventType))
		if err != nil {
			return nil, fmt.Errorf("submit synthetic order: %w", err)
		}
		event.Result = result
	}

	if err := s.process.Update(eventType, t); err != nil {
		return nil, err
	}

	return event, nil
}

// nextArrival runs Ogata's thinning loop. Between events the intensity only
// decays, so the total intensity at the current time bounds the intensity on
// the whole candidate interval and the acceptance ratio is always <= 1.
func (s *Simulator) nextArrival() (float64, hawkesv1.EventType, error) {
	for {
		bound := s.process.TotalIntensity(s.now)
		if bound <= 0 {
			return 0, 0, ErrZeroIntensity
		}

		candidate := s.now + s.rng.ExpFloat64()/bound
		lambda := s.process.TotalIntensity(candidate)
		s.now = candidate

		if s.rng.Float64()*bound <= lambda {
			return candidate, s.pickEventType(candidate, lambda), nil
		}
		// rejected: time has advanced, resample with the decayed bound
	}
}

// pickEventType selects the concrete type with probability proportional to
// its intensity at the arrival time.
func (s *Simulator) pickEventType(t, total float64) hawkesv1.EventType {
	u := s.rng.Float64() * total
	acc := 0.0
	for k := 0; k < hawkesv1.NumEventTypes; k++ {
		acc += s.process.Intensity(hawkesv1.EventType(k), t)
		if u <= acc {
			return hawkesv1.EventType(k)
		}
	}
	return hawkesv1.EventType(hawkesv1.NumEventTypes - 1)
}

// buildOrder constructs the order for a submission event. Limit prices land
// a uniform offset away from the reference price on the passive side of the
// touch; sizes are lognormal with a floor.
func (s *Simulator) buildOrder(eventType hawkesv1.EventType) orderbook.PlaceOrderRequest {
	req := orderbook.PlaceOrderRequest{
		Quantity: s.drawQuantity(),
	}

	switch eventType {
	case hawkesv1.EventBuyLimit:
		req.Side = orderbookv1.SideBuy
		req.Kind = orderbookv1.OrderKindLimit
		req.Price = s.drawLimitPrice(orderbookv1.SideBuy)
	case hawkesv1.EventSellLimit:
		req.Side = orderbookv1.SideSell
		req.Kind = orderbookv1.OrderKindLimit
		req.Price = s.drawLimitPrice(orderbookv1.SideSell)
	case hawkesv1.EventBuyMarket:
		req.Side = orderbookv1.SideBuy
		req.Kind = orderbookv1.OrderKindMarket
	case hawkesv1.EventSellMarket:
		req.Side = orderbookv1.SideSell
		req.Kind = orderbookv1.OrderKindMarket
	}

	return req
}

// referencePrice is the mid when both sides are quoted, otherwise the single
// quoted touch, otherwise the configured fallback.
func (s *Simulator) referencePrice() decimal.Decimal {
	if mid, ok := s.book.MidPrice(); ok {
		return mid
	}
	if bid, ok := s.book.BestBid(); ok {
		return bid
	}
	if ask, ok := s.book.BestAsk(); ok {
		return ask
	}
	return s.cfg.ReferencePrice
}

func (s *Simulator) drawLimitPrice(side orderbookv1.Side) decimal.Decimal {
	offset := decimal.NewFromFloat(s.rng.Float64()).Mul(s.cfg.PriceOffsetMax)

	price := s.referencePrice()
	if side == orderbookv1.SideBuy {
		price = price.Sub(offset)
	} else {
		price = price.Add(offset)
	}

	price = price.Div(s.cfg.Tick).Floor().Mul(s.cfg.Tick)
	if price.Sign() <= 0 {
		price = s.cfg.Tick
	}
	return price
}

func (s *Simulator) drawQuantity() decimal.Decimal {
	q := math.Exp(s.cfg.QuantityLogMean + s.cfg.QuantityLogSigma*s.rng.NormFloat64())
	quantity := decimal.NewFromFloat(q).Round(4)
	if quantity.LessThan(s.cfg.MinQuantity) {
		return s.cfg.MinQuantity
	}
	return quantity
}

// cancelRandomOrder picks a uniformly random resting order and cancels it.
// With an empty book the event still counts toward the intensity history but
// touches nothing.
func (s *Simulator) cancelRandomOrder() (uint64, bool) {
	ids := s.book.RestingOrderIDs()
	if len(ids) == 0 {
		return 0, false
	}
	id := ids[s.rng.Intn(len(ids))]
	return id, s.book.Cancel(id)
}
