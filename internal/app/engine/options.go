package engine

import "time"

// Options represents configuration options for the Engine's run loop.
type Options struct {
	// MaxEvents stops the run after this many accepted events. Zero disables.
	MaxEvents int
	// MaxDuration stops the run once simulated time passes this many seconds.
	// Zero disables.
	MaxDuration float64
	// WallClockBudget stops the run after this much real time. Zero disables.
	// A run bounded only by wall clock is not reproducible across machines.
	WallClockBudget time.Duration
	// UserOrdersExcite controls whether user-submitted orders feed back into
	// the intensity process the same way synthetic flow does.
	UserOrdersExcite bool
}

// DefaultOptions returns the default engine options.
func DefaultOptions() *Options {
	return &Options{
		MaxEvents:        500,
		UserOrdersExcite: true,
	}
}
