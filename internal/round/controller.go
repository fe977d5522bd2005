package round

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhaseRevealAtama   Phase = "reveal_atama"
	PhaseRevealOshiri  Phase = "reveal_oshiri"
	PhaseAwaitingInput Phase = "awaiting_input"
	PhaseRoundOver     Phase = "round_over"
	PhaseGameOver      Phase = "game_over"
)

// Revealing is true while either letter is still being revealed.
func (p Phase) Revealing() bool {
	return p == PhaseRevealAtama || p == PhaseRevealOshiri
}

type Slot int

const (
	Atama Slot = iota
	Oshiri
)

func (s Slot) String() string {
	if s == Atama {
		return "atama"
	}
	return "oshiri"
}

// Letter is what one reveal slot shows right now.
type Letter struct {
	Value   string
	Pinned  bool
	Rolling bool
}

// Controller runs the per-round phase machine and the letter roulette.
// Every method must be called from the goroutine that owns it; roulette
// ticks come back to that goroutine through the Poster and are applied
// with OnTick.
type Controller struct {
	phase Phase
	slots [2]Letter

	// gen bumps on every roulette start and stop.
	gen     uint64
	active  bool
	rolling Slot
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	cfg    RouletteConfig
	rng    *rand.Rand
	post   Poster
	logger *zap.Logger
}

func NewController(cfg RouletteConfig, rng *rand.Rand, post Poster, logger *zap.Logger) *Controller {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if post == nil {
		post = func(Tick) bool { return false }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		phase:  PhaseLobby,
		cfg:    cfg,
		rng:    rng,
		post:   post,
		logger: logger,
	}
}

func (c *Controller) Phase() Phase { return c.phase }

func (c *Controller) Letters() (atama, oshiri Letter) {
	return c.slots[Atama], c.slots[Oshiri]
}

// Rolling reports whether a roulette is live.
func (c *Controller) Rolling() bool { return c.active }

// BeginRound clears the letters and starts revealing the atama.
func (c *Controller) BeginRound() {
	c.enterReveal()
	c.startRoulette(Atama)
}

func (c *Controller) enterReveal() {
	c.stopRoulette()
	c.slots = [2]Letter{}
	c.phase = PhaseRevealAtama
}

// PinAtama fixes the head letter. Arriving in Lobby or RoundOver it opens
// a new round first; began reports that.
func (c *Controller) PinAtama(l string) (began bool) {
	switch c.phase {
	case PhaseLobby, PhaseRoundOver:
		c.enterReveal()
		began = true
	case PhaseRevealAtama:
		c.stopRoulette()
	default:
		c.logger.Debug("atama outside reveal ignored", zap.String("phase", string(c.phase)), zap.String("letter", l))
		return false
	}

	c.slots[Atama] = Letter{Value: l, Pinned: true}
	if c.slots[Oshiri].Pinned {
		c.phase = PhaseAwaitingInput
		return began
	}
	c.phase = PhaseRevealOshiri
	c.startRoulette(Oshiri)
	return began
}

// PinOshiri fixes the tail letter. During the atama reveal it is held until
// the atama lands.
func (c *Controller) PinOshiri(l string) (began bool) {
	switch c.phase {
	case PhaseRevealOshiri:
		c.stopRoulette()
		c.slots[Oshiri] = Letter{Value: l, Pinned: true}
		c.phase = PhaseAwaitingInput
	case PhaseRevealAtama:
		c.slots[Oshiri] = Letter{Value: l, Pinned: true}
	case PhaseLobby, PhaseRoundOver:
		c.BeginRound()
		c.slots[Oshiri] = Letter{Value: l, Pinned: true}
		began = true
	default:
		c.logger.Debug("oshiri outside reveal ignored", zap.String("phase", string(c.phase)), zap.String("letter", l))
	}
	return began
}

// Resume places the machine mid-round for a client that missed the start.
// Letters the server has already made public are pinned as-is.
func (c *Controller) Resume(atama, oshiri string, public bool) {
	if !public || atama == "" || oshiri == "" {
		c.BeginRound()
		return
	}
	c.stopRoulette()
	c.slots = [2]Letter{{Value: atama, Pinned: true}, {Value: oshiri, Pinned: true}}
	c.phase = PhaseAwaitingInput
}

// FinishRound ends the round from any phase.
func (c *Controller) FinishRound() {
	c.stopRoulette()
	c.phase = PhaseRoundOver
}

// GameOver is terminal until Reset.
func (c *Controller) GameOver() {
	c.stopRoulette()
	c.phase = PhaseGameOver
}

// Reset returns to the lobby with no letters.
func (c *Controller) Reset() {
	c.stopRoulette()
	c.slots = [2]Letter{}
	c.phase = PhaseLobby
}

// InputEnabled is true only for the leader once both letters are down.
func (c *Controller) InputEnabled(leader bool) bool {
	return leader && c.phase == PhaseAwaitingInput
}

// CanRequestNextRound is true only for the leader between rounds.
func (c *Controller) CanRequestNextRound(leader bool) bool {
	return leader && c.phase == PhaseRoundOver
}

// OnTick applies a roulette tick and reports whether anything changed.
func (c *Controller) OnTick(t Tick) bool {
	if !c.active || t.Gen != c.gen || t.Slot != c.rolling {
		return false
	}
	if t.Done {
		c.logger.Debug("roulette hit its bound", zap.Stringer("slot", t.Slot))
		c.stopRoulette()
		return true
	}
	c.slots[t.Slot].Value = randomLetter(c.rng)
	return true
}

// Close stops any roulette and waits for its goroutine.
func (c *Controller) Close() {
	c.stopRoulette()
	c.wg.Wait()
}

func (c *Controller) startRoulette(slot Slot) {
	c.stopRoulette()
	c.gen++
	gen := c.gen

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.active = true
	c.rolling = slot
	c.slots[slot] = Letter{Value: randomLetter(c.rng), Rolling: true}

	cfg, post := c.cfg, c.post
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		spin(ctx, cfg, slot, gen, post)
	}()
}

func (c *Controller) stopRoulette() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.active {
		c.slots[c.rolling].Rolling = false
		c.active = false
	}
	c.gen++
}
