package pool

import (
	"math/rand"
	"time"
)

// BackoffConfig shapes the delay between worker start retries.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	JitterPct  float64 // fraction of the delay spread around it
}

// DefaultBackoffConfig is tuned for editor start times: editors that crash
// during boot usually need a moment before the next attempt has a chance.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    250 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 1.7,
		JitterPct:  0.4,
	}
}

// Backoff yields jittered exponential delays for one worker slot. Each slot
// gets its own rng so replacement retries across slots never synchronize.
type Backoff struct {
	cfg     BackoffConfig
	attempt int
	rng     *rand.Rand
}

// NewBackoff creates the delay source for one slot.
func NewBackoff(slot int, seed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed + int64(slot)*7919)),
	}
}

// Next returns the delay for the current attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	d := float64(b.cfg.Initial)
	for i := 0; i < b.attempt; i++ {
		d *= b.cfg.Multiplier
		if d >= float64(b.cfg.Max) {
			d = float64(b.cfg.Max)
			break
		}
	}
	b.attempt++

	if b.cfg.JitterPct > 0 {
		spread := d * b.cfg.JitterPct
		d += spread*b.rng.Float64() - spread/2
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Reset clears the attempt counter after a successful start.
func (b *Backoff) Reset() {
	b.attempt = 0
}
