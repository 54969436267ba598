package streamer

import (
	"math/rand"
	"time"
)

// BackoffConfig holds the exponential backoff parameters for reconnect
// attempts (spec.md §4.4: "1s doubling to a 60s cap, with +/-20% jitter").
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// DefaultBackoffConfig returns the spec's default backoff parameters.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial: 1 * time.Second,
		Max:     60 * time.Second,
		Jitter:  0.2,
	}
}

// backoff tracks the current delay across a run of reconnect attempts.
type backoff struct {
	cfg     BackoffConfig
	current time.Duration
}

func newBackoff(cfg BackoffConfig) *backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultBackoffConfig().Initial
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	return &backoff{cfg: cfg}
}

// next returns the delay to sleep before the next attempt, and advances
// the internal state for the attempt after that.
func (b *backoff) next() time.Duration {
	if b.current == 0 {
		b.current = b.cfg.Initial
	}
	delay := b.current
	if b.cfg.Jitter > 0 {
		spread := float64(delay) * b.cfg.Jitter
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*spread)
		if delay < 0 {
			delay = 0
		}
	}

	b.current *= 2
	if b.current > b.cfg.Max {
		b.current = b.cfg.Max
	}
	return delay
}

// reset returns the backoff to its initial state, called on a successful
// connection.
func (b *backoff) reset() {
	b.current = 0
}
