package hawkes

import (
	"errors"
	"fmt"
	"math"

	hawkesv1 "github.com/Hermit005-io/lob-simulator/internal/domain/hawkes/v1"
)

// ErrTimeReversed is returned when an update is requested for a time earlier
// than the last recorded event.
var ErrTimeReversed = errors.New("hawkes update time precedes last event")

// IntensityProcess maintains the state of a multivariate self-exciting point
// process with exponential kernels:
//
//	lambda_k(t) = mu_k + sum_j S_jk(t)
//
// where each S_jk is the running excitation contributed by past events of
// type j to type k. Thanks to the exponential kernel, S_jk decays
// multiplicatively between events and jumps by alpha_jk on each type-j event,
// so updates are O(K^2) in the number of event types and independent of
// history length.
type IntensityProcess struct {
	params     *hawkesv1.Params
	excitation [hawkesv1.NumEventTypes][hawkesv1.NumEventTypes]float64
	lastUpdate float64 // simulated seconds
	eventCount int64
}

// NewIntensityProcess creates the process at time zero with all excitation
// at rest, so every intensity starts at its baseline.
func NewIntensityProcess(params *hawkesv1.Params) (*IntensityProcess, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: params are nil", hawkesv1.ErrInvalidParams)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &IntensityProcess{params: params}, nil
}

// Params returns the configured parameters.
func (p *IntensityProcess) Params() *hawkesv1.Params {
	return p.params
}

// LastUpdate returns the time of the most recent recorded event.
func (p *IntensityProcess) LastUpdate() float64 {
	return p.lastUpdate
}

// EventCount returns the number of events recorded so far.
func (p *IntensityProcess) EventCount() int64 {
	return p.eventCount
}

// Update records an event of the given type at time t: all excitation values
// decay to t, then every target type receives the event type's alpha jump.
func (p *IntensityProcess) Update(event hawkesv1.EventType, t float64) error {
	if event < 0 || int(event) >= hawkesv1.NumEventTypes {
		return fmt.Errorf("unknown event type %d", int(event))
	}
	if t < p.lastUpdate {
		return fmt.Errorf("%w: %f < %f", ErrTimeReversed, t, p.lastUpdate)
	}

	dt := t - p.lastUpdate
	for j := 0; j < hawkesv1.NumEventTypes; j++ {
		for k := 0; k < hawkesv1.NumEventTypes; k++ {
			p.excitation[j][k] *= math.Exp(-p.params.Beta[j][k] * dt)
		}
	}

	for k := 0; k < hawkesv1.NumEventTypes; k++ {
		p.excitation[event][k] += p.params.Alpha[event][k]
	}

	p.lastUpdate = t
	p.eventCount++
	return nil
}

// Intensity evaluates lambda_k at time t without mutating state. Times
// before the last update are clamped to it; excitation never decays upward.
func (p *IntensityProcess) Intensity(event hawkesv1.EventType, t float64) float64 {
	dt := t - p.lastUpdate
	if dt < 0 {
		dt = 0
	}

	lambda := p.params.Mu[event]
	for j := 0; j < hawkesv1.NumEventTypes; j++ {
		lambda += p.excitation[j][event] * math.Exp(-p.params.Beta[j][event]*dt)
	}
	return lambda
}

// Intensities evaluates every type's intensity at time t.
func (p *IntensityProcess) Intensities(t float64) [hawkesv1.NumEventTypes]float64 {
	var out [hawkesv1.NumEventTypes]float64
	for k := 0; k < hawkesv1.NumEventTypes; k++ {
		out[k] = p.Intensity(hawkesv1.EventType(k), t)
	}
	return out
}

// TotalIntensity sums the per-type intensities at time t. It is the rate used
// to sample the next inter-arrival time.
func (p *IntensityProcess) TotalIntensity(t float64) float64 {
	total := 0.0
	for k := 0; k < hawkesv1.NumEventTypes; k++ {
		total += p.Intensity(hawkesv1.EventType(k), t)
	}
	return total
}
