package metrics

import (
	"math"

	"github.com/shopspring/decimal"

	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/orderbook"
)

// Sample is one book observation handed to the tracker after an event.
type Sample struct {
	Time     float64
	Side     orderbookv1.Side // side of the submitted order, empty for cancels
	Quantity decimal.Decimal  // submitted quantity, zero for cancels
}

// Point is one recorded (time, mid, spread, imbalance) row of the series.
type Point struct {
	Time      float64 `json:"time"`
	MidPrice  float64 `json:"midPrice"`
	Spread    float64 `json:"spread"`
	Imbalance float64 `json:"imbalance"`
}

// Summary is a read-only snapshot of the derived statistics.
type Summary struct {
	Events        int64   `json:"events"`
	MidSamples    int64   `json:"midSamples"`
	FirstMid      float64 `json:"firstMid"`
	LastMid       float64 `json:"lastMid"`
	MinMid        float64 `json:"minMid"`
	MaxMid        float64 `json:"maxMid"`
	MeanSpread    float64 `json:"meanSpread"`
	MinSpread     float64 `json:"minSpread"`
	MaxSpread     float64 `json:"maxSpread"`
	Imbalance     float64 `json:"imbalance"`     // trailing-window order-flow imbalance
	RealizedVol   float64 `json:"realizedVol"`   // rolling std dev of log mid returns
	BuyVolume     float64 `json:"buyVolume"`     // cumulative submitted buy quantity
	SellVolume    float64 `json:"sellVolume"`    // cumulative submitted sell quantity
	NetImbalance  float64 `json:"netImbalance"`  // buy - sell, whole run
}

// Tracker derives spread, depth-imbalance and volatility series by observing
// book state after each event. It never mutates the book. The order-flow
// imbalance is a sliding-window sum over the last N events, updated in O(1);
// realized volatility is a rolling standard deviation over the last M log
// mid returns, also updated in O(1).
type Tracker struct {
	window    int
	volWindow int

	// sliding signed-volume window
	signed    []float64
	signedPos int
	signedLen int
	signedSum float64

	// rolling log-return window
	returns    []float64
	returnsPos int
	returnsLen int
	returnsSum float64
	returnsSq  float64

	lastMid float64
	hasMid  bool

	events     int64
	midSamples int64
	firstMid   float64
	minMid     float64
	maxMid     float64

	spreadSum float64
	minSpread float64
	maxSpread float64

	buyVolume  float64
	sellVolume float64

	series []Point
}

// NewTracker creates a tracker with the given imbalance window (events) and
// volatility window (mid samples).
func NewTracker(window, volWindow int) *Tracker {
	if window <= 0 {
		window = 1
	}
	if volWindow <= 1 {
		volWindow = 2
	}
	return &Tracker{
		window:    window,
		volWindow: volWindow,
		signed:    make([]float64, window),
		returns:   make([]float64, volWindow),
	}
}

// Observe records one event: the signed volume enters the imbalance window
// and, when both sides are quoted, a (mid, spread) sample is taken.
func (t *Tracker) Observe(sample Sample, book *orderbook.Book) {
	t.events++

	signed := 0.0
	qty, _ := sample.Quantity.Float64()
	switch sample.Side {
	case orderbookv1.SideBuy:
		signed = qty
		t.buyVolume += qty
	case orderbookv1.SideSell:
		signed = -qty
		t.sellVolume += qty
	}
	t.pushSigned(signed)

	mid, okMid := book.MidPrice()
	spread, okSpread := book.Spread()
	if !okMid || !okSpread {
		return
	}

	midF, _ := mid.Float64()
	spreadF, _ := spread.Float64()
	t.observeMid(midF)
	t.observeSpread(spreadF)

	t.series = append(t.series, Point{
		Time:      sample.Time,
		MidPrice:  midF,
		Spread:    spreadF,
		Imbalance: t.signedSum,
	})
}

func (t *Tracker) pushSigned(v float64) {
	if t.signedLen == t.window {
		t.signedSum -= t.signed[t.signedPos]
	} else {
		t.signedLen++
	}
	t.signed[t.signedPos] = v
	t.signedSum += v
	t.signedPos = (t.signedPos + 1) % t.window
}

func (t *Tracker) observeMid(mid float64) {
	if t.hasMid && t.lastMid > 0 && mid > 0 {
		t.pushReturn(math.Log(mid / t.lastMid))
	}

	if t.midSamples == 0 {
		t.firstMid = mid
		t.minMid = mid
		t.maxMid = mid
	} else {
		t.minMid = math.Min(t.minMid, mid)
		t.maxMid = math.Max(t.maxMid, mid)
	}
	t.midSamples++
	t.lastMid = mid
	t.hasMid = true
}

func (t *Tracker) pushReturn(r float64) {
	if t.returnsLen == t.volWindow {
		old := t.returns[t.returnsPos]
		t.returnsSum -= old
		t.returnsSq -= old * old
	} else {
		t.returnsLen++
	}
	t.returns[t.returnsPos] = r
	t.returnsSum += r
	t.returnsSq += r * r
	t.returnsPos = (t.returnsPos + 1) % t.volWindow
}

func (t *Tracker) observeSpread(spread float64) {
	if t.midSamples == 1 {
		t.minSpread = spread
		t.maxSpread = spread
	} else {
		t.minSpread = math.Min(t.minSpread, spread)
		t.maxSpread = math.Max(t.maxSpread, spread)
	}
	t.spreadSum += spread
}

// Imbalance returns the current trailing-window order-flow imbalance.
func (t *Tracker) Imbalance() float64 {
	return t.signedSum
}

// RealizedVol returns the rolling standard deviation of log mid returns.
func (t *Tracker) RealizedVol() float64 {
	n := float64(t.returnsLen)
	if n < 2 {
		return 0
	}
	variance := (t.returnsSq - t.returnsSum*t.returnsSum/n) / (n - 1)
	if variance < 0 {
		// floating point noise around zero
		return 0
	}
	return math.Sqrt(variance)
}

// Series returns the recorded (time, mid, spread, imbalance) points.
func (t *Tracker) Series() []Point {
	out := make([]Point, len(t.series))
	copy(out, t.series)
	return out
}

// Snapshot returns the current summary statistics.
func (t *Tracker) Snapshot() Summary {
	s := Summary{
		Events:       t.events,
		MidSamples:   t.midSamples,
		FirstMid:     t.firstMid,
		LastMid:      t.lastMid,
		MinMid:       t.minMid,
		MaxMid:       t.maxMid,
		MinSpread:    t.minSpread,
		MaxSpread:    t.maxSpread,
		Imbalance:    t.signedSum,
		RealizedVol:  t.RealizedVol(),
		BuyVolume:    t.buyVolume,
		SellVolume:   t.sellVolume,
		NetImbalance: t.buyVolume - t.sellVolume,
	}
	if t.midSamples > 0 {
		s.MeanSpread = t.spreadSum / float64(t.midSamples)
	}
	return s
}
