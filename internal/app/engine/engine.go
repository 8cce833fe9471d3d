package engine

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	hawkesv1 "github.com/Hermit005-io/lob-simulator/internal/domain/hawkes/v1"
	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/flow"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/hawkes"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/metrics"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/orderbook"
	"github.com/Hermit005-io/lob-simulator/pkg/logger"
)

// Engine owns the whole simulation context: the book, the intensity process,
// the flow simulator, the metrics tracker and the RNG. Everything is driven
// from a single event loop; each event is processed to completion before the
// next is sampled, so every operation is atomic at event granularity.
type Engine struct {
	book    *orderbook.Book
	process *hawkes.IntensityProcess
	sim     *flow.Simulator
	tracker *metrics.Tracker
	rng     *rand.Rand

	logger *logger.Logger
	opts   *Options

	baseTime  int64   // wall-clock anchor for simulated timestamps, ns
	replayNow float64 // offset of the last replayed trade, simulated seconds
	events    int
}

// RunReport summarizes one completed (or cancelled) run.
type RunReport struct {
	Events      int             `json:"events"`
	SimDuration float64         `json:"simDuration"` // simulated seconds
	Elapsed     time.Duration   `json:"elapsed"`
	TradeCount  int64           `json:"tradeCount"`
	Volume      decimal.Decimal `json:"volume"`
	Metrics     metrics.Summary `json:"metrics"`
}

// New creates an engine with a freshly seeded RNG. The same pair, parameters,
// flow config, seed and bootstrap snapshot reproduce the run event for event.
func New(
	pair string,
	params *hawkesv1.Params,
	flowCfg flow.Config,
	metricsWindow int,
	volWindow int,
	seed int64,
	log *logger.Logger,
	opts *Options,
) (*Engine, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	e := &Engine{
		logger:   log,
		opts:     opts,
		baseTime: time.Now().UnixNano(),
	}
	e.rng = rand.New(rand.NewSource(seed))

	// Book timestamps follow simulated time so two seeded runs produce
	// identical histories regardless of wall clock.
	e.book = orderbook.NewBook(pair, e.clock, ulid.Monotonic(e.rng, 0))

	process, err := hawkes.NewIntensityProcess(params)
	if err != nil {
		return nil, err
	}
	e.process = process

	sim, err := flow.NewSimulator(e.book, e.process, e.rng, flowCfg)
	if err != nil {
		return nil, err
	}
	e.sim = sim

	e.tracker = metrics.NewTracker(metricsWindow, volWindow)

	if !params.Stable() {
		log.Warn("hawkes parameters violate the stability assumption, event rate may explode",
			logger.Field{Key: "pair", Value: pair},
		)
	}

	return e, nil
}

// clock maps simulated seconds onto nanosecond timestamps anchored at engine
// creation. Before the first event it returns the anchor itself.
func (e *Engine) clock() int64 {
	if e.sim == nil {
		return e.baseTime
	}
	return e.baseTime + int64((e.sim.Now()+e.replayNow)*float64(time.Second))
}

// Seed bulk-loads the bootstrap snapshot into the book. A failed seed leaves
// the book empty.
func (e *Engine) Seed(snapshot *orderbookv1.Snapshot) error {
	// Anchor simulated timestamps at the snapshot time when it carries one.
	// Runs seeded from the same snapshot then produce bit-identical trade
	// histories, ULIDs included.
	if snapshot != nil && snapshot.Timestamp > 0 {
		e.baseTime = snapshot.Timestamp
	}

	if err := e.book.Seed(snapshot); err != nil {
		e.logger.Error(err, logger.Field{Key: "action", Value: "seed_book"})
		return err
	}

	bid, _ := e.book.BestBid()
	ask, _ := e.book.BestAsk()
	e.logger.Info("Book seeded from snapshot",
		logger.Field{Key: "pair", Value: e.book.Pair()},
		logger.Field{Key: "bidLevels", Value: len(snapshot.Bids)},
		logger.Field{Key: "askLevels", Value: len(snapshot.Asks)},
		logger.Field{Key: "bestBid", Value: bid.String()},
		logger.Field{Key: "bestAsk", Value: ask.String()},
	)
	return nil
}

// Run drives the simulation until a stop condition fires or ctx is
// cancelled. Cancellation is cooperative and only takes effect at event
// boundaries, so the book is never left mid-match.
func (e *Engine) Run(ctx context.Context) (*RunReport, error) {
	start := time.Now()

	e.logger.Info("Simulation started",
		logger.Field{Key: "pair", Value: e.book.Pair()},
		logger.Field{Key: "maxEvents", Value: e.opts.MaxEvents},
		logger.Field{Key: "maxDuration", Value: e.opts.MaxDuration},
		logger.Field{Key: "wallClockBudget", Value: e.opts.WallClockBudget},
	)

	var runErr error

loop:
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Simulation cancelled", logger.Field{Key: "events", Value: e.events})
			runErr = ctx.Err()
			break loop
		default:
		}

		if e.opts.MaxEvents > 0 && e.events >= e.opts.MaxEvents {
			break
		}
		if e.opts.MaxDuration > 0 && e.sim.Now() >= e.opts.MaxDuration {
			break
		}
		if e.opts.WallClockBudget > 0 && time.Since(start) >= e.opts.WallClockBudget {
			break
		}

		event, err := e.sim.Step()
		if err != nil {
			if errors.Is(err, flow.ErrZeroIntensity) {
				e.logger.Warn("Point process died, stopping run")
				break
			}
			runErr = err
			break
		}

		e.events++
		e.observe(event)
	}

	report := &RunReport{
		Events:      e.events,
		SimDuration: e.sim.Now(),
		Elapsed:     time.Since(start),
		TradeCount:  e.book.TotalTrades(),
		Volume:      e.book.TotalVolume(),
		Metrics:     e.tracker.Snapshot(),
	}

	e.logger.Info("Simulation finished",
		logger.Field{Key: "events", Value: report.Events},
		logger.Field{Key: "simSeconds", Value: report.SimDuration},
		logger.Field{Key: "elapsed", Value: report.Elapsed.String()},
		logger.Field{Key: "trades", Value: report.TradeCount},
		logger.Field{Key: "volume", Value: report.Volume.String()},
	)

	return report, runErr
}

// ReplayTrades drives real historical trades through the book, each as a
// market order of its recorded side and size, with metrics sampled per trade
// the same way the synthetic loop samples them. Trade times map onto
// simulated seconds relative to the first trade. The intensity process is
// left untouched: replayed flow is ground truth, not a draw from the model.
func (e *Engine) ReplayTrades(ctx context.Context, trades []orderbookv1.MarketTrade) (*RunReport, error) {
	start := time.Now()

	e.logger.Info("Replay started",
		logger.Field{Key: "pair", Value: e.book.Pair()},
		logger.Field{Key: "trades", Value: len(trades)},
	)

	var t0 time.Time
	var runErr error

loop:
	for _, trade := range trades {
		select {
		case <-ctx.Done():
			e.logger.Info("Replay cancelled", logger.Field{Key: "events", Value: e.events})
			runErr = ctx.Err()
			break loop
		default:
		}

		if trade.Quantity.Sign() <= 0 {
			continue
		}
		if t0.IsZero() {
			t0 = trade.Time
		}
		e.replayNow = trade.Time.Sub(t0).Seconds()

		if _, err := e.book.Submit(orderbook.PlaceOrderRequest{
			Side:     trade.Side,
			Kind:     orderbookv1.OrderKindMarket,
			Quantity: trade.Quantity,
		}); err != nil {
			runErr = err
			break
		}

		e.events++
		e.tracker.Observe(metrics.Sample{
			Time:     e.sim.Now() + e.replayNow,
			Side:     trade.Side,
			Quantity: trade.Quantity,
		}, e.book)
	}

	report := &RunReport{
		Events:      e.events,
		SimDuration: e.sim.Now() + e.replayNow,
		Elapsed:     time.Since(start),
		TradeCount:  e.book.TotalTrades(),
		Volume:      e.book.TotalVolume(),
		Metrics:     e.tracker.Snapshot(),
	}

	e.logger.Info("Replay finished",
		logger.Field{Key: "events", Value: report.Events},
		logger.Field{Key: "simSeconds", Value: report.SimDuration},
		logger.Field{Key: "trades", Value: report.TradeCount},
		logger.Field{Key: "volume", Value: report.Volume.String()},
	)

	return report, runErr
}

// observe feeds one applied event into the metrics tracker.
func (e *Engine) observe(event *flow.Event) {
	sample := metrics.Sample{Time: event.Time}
	if event.Result != nil {
		sample.Side = event.Result.Order.Side
		sample.Quantity = event.Result.Order.Quantity.Add(event.Result.FilledQuantity())
	}
	e.tracker.Observe(sample, e.book)
}

// SubmitUserOrder places a user order into the same book the synthetic flow
// trades against. Depending on configuration it also excites the intensity
// process, as if the market had seen the arrival.
func (e *Engine) SubmitUserOrder(
	side orderbookv1.Side,
	kind orderbookv1.OrderKind,
	price decimal.Decimal,
	quantity decimal.Decimal,
) (*orderbookv1.MatchResult, error) {
	result, err := e.book.Submit(orderbook.PlaceOrderRequest{
		Side:     side,
		Kind:     kind,
		Price:    price,
		Quantity: quantity,
	})
	if err != nil {
		return nil, err
	}

	e.tracker.Observe(metrics.Sample{
		Time:     e.sim.Now(),
		Side:     side,
		Quantity: quantity,
	}, e.book)

	if e.opts.UserOrdersExcite {
		if err := e.process.Update(userEventType(side, kind), e.sim.Now()); err != nil {
			return nil, err
		}
	}

	e.logger.Debug("User order submitted",
		logger.Field{Key: "orderID", Value: result.Order.ID},
		logger.Field{Key: "side", Value: string(side)},
		logger.Field{Key: "kind", Value: string(kind)},
		logger.Field{Key: "trades", Value: len(result.Trades)},
		logger.Field{Key: "remaining", Value: result.Remaining.String()},
	)

	return result, nil
}

// CancelUserOrder cancels a resting order by id, reporting whether it was
// found. Cancelling an unknown id is an expected race, not an error.
func (e *Engine) CancelUserOrder(id uint64) bool {
	found := e.book.Cancel(id)

	e.tracker.Observe(metrics.Sample{Time: e.sim.Now()}, e.book)

	if e.opts.UserOrdersExcite {
		// the cancel attempt is order flow whether or not it found a target,
		// same as synthetic cancel events on an empty book; a cancel at
		// current sim time never reverses the clock
		_ = e.process.Update(hawkesv1.EventCancel, e.sim.Now())
	}

	return found
}

func userEventType(side orderbookv1.Side, kind orderbookv1.OrderKind) hawkesv1.EventType {
	switch {
	case side == orderbookv1.SideBuy && kind == orderbookv1.OrderKindLimit:
		return hawkesv1.EventBuyLimit
	case side == orderbookv1.SideSell && kind == orderbookv1.OrderKindLimit:
		return hawkesv1.EventSellLimit
	case side == orderbookv1.SideBuy && kind == orderbookv1.OrderKindMarket:
		return hawkesv1.EventBuyMarket
	default:
		return hawkesv1.EventSellMarket
	}
}

// Book exposes the underlying book for read-only consumers and sinks.
func (e *Engine) Book() *orderbook.Book {
	return e.book
}

// BestBid returns the best bid price, if quoted.
func (e *Engine) BestBid() (decimal.Decimal, bool) { return e.book.BestBid() }

// BestAsk returns the best ask price, if quoted.
func (e *Engine) BestAsk() (decimal.Decimal, bool) { return e.book.BestAsk() }

// Spread returns the current spread, if both sides are quoted.
func (e *Engine) Spread() (decimal.Decimal, bool) { return e.book.Spread() }

// Depth returns up to n aggregated levels for one side, best-first.
func (e *Engine) Depth(side orderbookv1.Side, n int) []orderbookv1.SnapshotLevel {
	return e.book.Depth(side, n)
}

// RecentTrades returns the last n trades, oldest first.
func (e *Engine) RecentTrades(n int) []orderbookv1.Trade {
	return e.book.RecentTrades(n)
}

// MetricsSnapshot returns the current derived statistics.
func (e *Engine) MetricsSnapshot() metrics.Summary {
	return e.tracker.Snapshot()
}

// MetricsSeries returns the recorded per-event metric points.
func (e *Engine) MetricsSeries() []metrics.Point {
	return e.tracker.Series()
}
