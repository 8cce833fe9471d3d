package hawkesv1

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// EventType indexes the tracked order-flow event types.
type EventType int

const (
	// EventBuyLimit is an arriving buy limit order.
	EventBuyLimit EventType = iota
	// EventSellLimit is an arriving sell limit order.
	EventSellLimit
	// EventBuyMarket is an arriving buy market order.
	EventBuyMarket
	// EventSellMarket is an arriving sell market order.
	EventSellMarket
	// EventCancel is a cancellation of a resting order.
	EventCancel

	// NumEventTypes is the number of tracked event types.
	NumEventTypes int = iota
)

var eventNames = [NumEventTypes]string{
	"buy_limit", "sell_limit", "buy_market", "sell_market", "cancel",
}

// String returns the wire name of the event type.
func (e EventType) String() string {
	if e < 0 || int(e) >= NumEventTypes {
		return fmt.Sprintf("event_type(%d)", int(e))
	}
	return eventNames[e]
}

// ErrInvalidParams is returned when Hawkes parameters fail validation.
var ErrInvalidParams = errors.New("invalid hawkes parameters")

// Params holds the multivariate Hawkes parameters: baseline rates Mu, the
// excitation matrix Alpha and the decay matrix Beta. Alpha[j][k] is the jump
// added to type k's intensity when an event of type j occurs; Beta[j][k] is
// the exponential decay rate of that contribution.
type Params struct {
	Mu    [NumEventTypes]float64                `json:"mu"`
	Alpha [NumEventTypes][NumEventTypes]float64 `json:"alpha"`
	Beta  [NumEventTypes][NumEventTypes]float64 `json:"beta"`
}

// Validate checks the hard constraints: all parameters non-negative, and
// Beta strictly positive wherever the matching Alpha is non-zero (a non-zero
// excitation that never decays makes the intensity diverge trivially).
func (p *Params) Validate() error {
	for k := 0; k < NumEventTypes; k++ {
		if p.Mu[k] < 0 {
			return fmt.Errorf("%w: mu[%s] is negative", ErrInvalidParams, EventType(k))
		}
	}
	for j := 0; j < NumEventTypes; j++ {
		for k := 0; k < NumEventTypes; k++ {
			if p.Alpha[j][k] < 0 {
				return fmt.Errorf("%w: alpha[%s][%s] is negative", ErrInvalidParams, EventType(j), EventType(k))
			}
			if p.Beta[j][k] < 0 {
				return fmt.Errorf("%w: beta[%s][%s] is negative", ErrInvalidParams, EventType(j), EventType(k))
			}
			if p.Alpha[j][k] > 0 && p.Beta[j][k] == 0 {
				return fmt.Errorf("%w: alpha[%s][%s] > 0 with zero decay", ErrInvalidParams, EventType(j), EventType(k))
			}
		}
	}
	return nil
}

// Stable reports whether the branching-ratio stability condition
// sum_j alpha[j][k]/beta[j][k] < 1 holds for every target type k. This is an
// assumption, not an enforced invariant: unstable parameters are accepted and
// surface as observably exploding event rates.
func (p *Params) Stable() bool {
	for k := 0; k < NumEventTypes; k++ {
		ratio := 0.0
		for j := 0; j < NumEventTypes; j++ {
			if p.Alpha[j][k] == 0 {
				continue
			}
			ratio += p.Alpha[j][k] / p.Beta[j][k]
		}
		if ratio >= 1 {
			return false
		}
	}
	return true
}

// DefaultParams returns a stable parameter set with mild self-excitation on
// each event type and weak cross-excitation from market orders to cancels.
func DefaultParams() *Params {
	p := &Params{}
	for k := 0; k < NumEventTypes; k++ {
		p.Mu[k] = 0.5
		p.Alpha[k][k] = 0.4
		p.Beta[k][k] = 1.0
	}
	// aggressive flow begets cancellations
	p.Alpha[int(EventBuyMarket)][int(EventCancel)] = 0.2
	p.Beta[int(EventBuyMarket)][int(EventCancel)] = 1.0
	p.Alpha[int(EventSellMarket)][int(EventCancel)] = 0.2
	p.Beta[int(EventSellMarket)][int(EventCancel)] = 1.0
	return p
}

// LoadParams reads a JSON parameter file and validates it.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hawkes params: %w", err)
	}

	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse hawkes params: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}
