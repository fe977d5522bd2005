package round

import (
	"context"
	"math/rand"
	"time"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RouletteConfig shapes the spinning letter: the first tick fires after
// Start, each following gap is Step longer, and the spin gives up after Max.
type RouletteConfig struct {
	Start time.Duration
	Step  time.Duration
	Max   time.Duration
}

func DefaultRoulette() RouletteConfig {
	return RouletteConfig{
		Start: 10 * time.Millisecond,
		Step:  2 * time.Millisecond,
		Max:   10 * time.Second,
	}
}

// Tick asks the owner to advance the spinning slot. Gen identifies the
// roulette that produced it; ticks from a stopped roulette are stale.
type Tick struct {
	Slot Slot
	Gen  uint64
	// Done marks the last tick of a roulette that ran out of time.
	Done bool
}

// Poster delivers a tick to the goroutine that owns the Controller. It
// returns false once the owner is gone, and must not block forever after that.
type Poster func(Tick) bool

func randomLetter(rng *rand.Rand) string {
	i := rng.Intn(len(alphabet))
	return alphabet[i : i+1]
}

func spin(ctx context.Context, cfg RouletteConfig, slot Slot, gen uint64, post Poster) {
	interval := cfg.Start
	t := time.NewTimer(interval)
	defer t.Stop()

	var bound <-chan time.Time
	if cfg.Max > 0 {
		deadline := time.NewTimer(cfg.Max)
		defer deadline.Stop()
		bound = deadline.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-bound:
			post(Tick{Slot: slot, Gen: gen, Done: true})
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			if !post(Tick{Slot: slot, Gen: gen}) {
				return
			}
			interval += cfg.Step
			t.Reset(interval)
		}
	}
}
