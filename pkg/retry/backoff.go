package retry

import "time"

// Backoff is an unbounded exponential backoff stepper for loops that retry
// forever, such as a reconnect loop. Unlike Do it never gives up; the caller
// sleeps for Next() after each failure and calls Reset() on success.
type Backoff struct {
	Initial    time.Duration // First delay (default 1s)
	Max        time.Duration // Delay ceiling (default 60s)
	Multiplier float64       // Growth factor (default 2.0)

	current time.Duration
}

// NewBackoff returns a stepper with the given initial delay and ceiling.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{Initial: initial, Max: max, Multiplier: 2.0}
}

// Next returns the delay to sleep before the next attempt and advances the
// stepper. The first call after construction or Reset returns Initial.
func (b *Backoff) Next() time.Duration {
	if b.Initial <= 0 {
		b.Initial = time.Second
	}
	if b.Max <= 0 {
		b.Max = 60 * time.Second
	}
	if b.Multiplier <= 1 {
		b.Multiplier = 2.0
	}

	if b.current == 0 {
		b.current = b.Initial
	}
	d := b.current

	next := time.Duration(float64(b.current) * b.Multiplier)
	if next > b.Max {
		next = b.Max
	}
	b.current = next

	return d
}

// Reset returns the stepper to its initial delay. Called after a success.
func (b *Backoff) Reset() {
	b.current = 0
}
