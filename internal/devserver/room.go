package devserver

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/oshiri-client/internal/logging"
	"github.com/DoyleJ11/oshiri-client/pkg/types"
	"go.uber.org/zap"
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrGameStarted     = errors.New("game already started")
)

// Timings are the server-side pauses of a round.
type Timings struct {
	// Reveal separates START_GAME, ROUND_ATAMA and ROUND_OSHIRI.
	Reveal time.Duration
	// Tick is one second of round time.
	Tick time.Duration
	// Grace is how long a dropped player keeps their seat.
	Grace time.Duration
}

func DefaultTimings() Timings {
	return Timings{Reveal: 3 * time.Second, Tick: time.Second, Grace: 10 * time.Second}
}

type Options struct {
	Timings Timings
	Words   *Words
	// Seed drives letter draws; zero means time-seeded.
	Seed   int64
	Logger *zap.Logger
	// OnEmpty is called from the room loop once its last seat is gone.
	OnEmpty func(roomID string)
}

func (o Options) withDefaults() Options {
	if o.Timings == (Timings{}) {
		o.Timings = DefaultTimings()
	}
	if o.Words == nil {
		o.Words = DefaultWords()
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	o.Logger = logging.Or(o.Logger)
	return o
}

type Msg interface{ isRoomMsg() }

// Join seats a player, or reseats a known token. Reply gets nil on success.
type Join struct {
	Token    string
	Username string
	Outbox   chan types.Envelope
	Reply    chan error
}

// Reattach hands a returning socket its old seat. Reply is false when the
// token has no seat here.
type Reattach struct {
	Token  string
	Outbox chan types.Envelope
	Reply  chan bool
}

// Detach marks a socket gone. Only the current outbox of the token counts.
type Detach struct {
	Token  string
	Outbox chan types.Envelope
}

type FromClient struct {
	Token string
	Env   types.Envelope
}

type GetState struct {
	Reply chan Snapshot
}

type Shutdown struct{}

type step int

const (
	stepAtama step = iota
	stepOshiri
	stepTick
)

type timerFired struct {
	gen  uint64
	step step
}

type graceExpired struct {
	token string
	gen   uint64
}

func (Join) isRoomMsg()         {}
func (Reattach) isRoomMsg()     {}
func (Detach) isRoomMsg()       {}
func (FromClient) isRoomMsg()   {}
func (GetState) isRoomMsg()     {}
func (Shutdown) isRoomMsg()     {}
func (timerFired) isRoomMsg()   {}
func (graceExpired) isRoomMsg() {}

// Snapshot is a race-free look at the room for tests.
type Snapshot struct {
	Game      types.GameState
	Connected int
	Running   bool
}

type seat struct {
	token    string
	username string
	score    int
	out      chan types.Envelope
	graceGen uint64
}

// Room is one game room. All state is owned by its loop goroutine.
type Room struct {
	id      string
	inbox   chan Msg
	seats   map[string]*seat
	queue   []*seat
	game    types.GameState
	turns   int
	running bool
	over    bool

	gen   uint64
	timer *time.Timer

	opts   Options
	rng    *rand.Rand
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRoom(parent context.Context, id string, opts Options) *Room {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:     id,
		inbox:  make(chan Msg, 64),
		seats:  make(map[string]*seat),
		game:   lobbyState(),
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		logger: opts.Logger.Named("room").With(zap.String("room", id)),
		ctx:    ctx,
		cancel: cancel,
	}
	go r.loop()
	return r
}

func lobbyState() types.GameState {
	return types.GameState{Round: 1, MaxRounds: 10, RoundTime: 25, WordCombinations: 400}
}

func (r *Room) ID() string { return r.id }

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Post delivers m unless the room has shut down.
func (r *Room) Post(m Msg) bool {
	if r.ctx.Err() != nil {
		return false
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- r.join(msg)

			case Reattach:
				msg.Reply <- r.reattach(msg)

			case Detach:
				r.detach(msg)

			case FromClient:
				r.fromClient(msg)

			case timerFired:
				if msg.gen != r.gen {
					break
				}
				r.advance(msg.step)

			case graceExpired:
				s := r.seats[msg.token]
				if s == nil || s.out != nil || s.graceGen != msg.gen {
					break
				}
				r.remove(s)

			case GetState:
				msg.Reply <- Snapshot{Game: r.state(), Connected: r.connected(), Running: r.running}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) join(m Join) error {
	if utf8.RuneCountInString(m.Username) > types.MaxUsernameLen {
		r.sendTo(m.Outbox, types.TagUsernameTooLong, nil)
		return ErrUsernameTooLong
	}

	s := r.seats[m.Token]
	if s == nil {
		if r.game.Started {
			r.sendTo(m.Outbox, types.TagError, types.ErrorMessage{Message: "Can't join room, game has already started"})
			return ErrGameStarted
		}
		s = &seat{token: m.Token, username: m.Username}
		r.seats[m.Token] = s
		r.queue = append(r.queue, s)
		r.logger.Info("player joined", zap.String("username", m.Username), zap.Int("players", len(r.queue)))
	}
	s.out = m.Outbox
	s.graceGen++

	r.broadcast(types.TagGameState, r.state())
	r.sendPlayer(s)
	return nil
}

func (r *Room) reattach(m Reattach) bool {
	s := r.seats[m.Token]
	if s == nil {
		return false
	}
	s.out = m.Outbox
	s.graceGen++
	r.logger.Info("player reattached", zap.String("username", s.username))
	r.sendTo(s.out, types.TagGameState, r.state())
	r.sendPlayer(s)
	return true
}

func (r *Room) detach(m Detach) {
	s := r.seats[m.Token]
	if s == nil || s.out != m.Outbox {
		return
	}
	s.out = nil
	s.graceGen++
	gen, token := s.graceGen, s.token
	time.AfterFunc(r.opts.Timings.Grace, func() {
		r.Post(graceExpired{token: token, gen: gen})
	})
	r.logger.Info("player detached", zap.String("username", s.username))
}

func (r *Room) remove(s *seat) {
	wasLeader := len(r.queue) > 0 && r.queue[0] == s
	delete(r.seats, s.token)
	for i, q := range r.queue {
		if q == s {
			r.queue = append(r.queue[:i:i], r.queue[i+1:]...)
			break
		}
	}
	r.logger.Info("player removed", zap.String("username", s.username), zap.Int("players", len(r.queue)))
	if len(r.seats) == 0 {
		r.stopTimer()
		if r.opts.OnEmpty != nil {
			r.opts.OnEmpty(r.id)
		}
		return
	}
	if wasLeader && len(r.queue) > 0 {
		r.sendPlayer(r.queue[0])
	}
	r.broadcast(types.TagGameState, r.state())
}

func (r *Room) fromClient(m FromClient) {
	s := r.seats[m.Token]
	if s == nil {
		r.logger.Debug("frame from unseated token", zap.String("type", string(m.Env.Type)))
		return
	}
	leader := len(r.queue) > 0 && r.queue[0] == s
	log := r.logger.With(zap.String("type", string(m.Env.Type)), zap.String("username", s.username))

	switch m.Env.Type {
	case types.TagStartGame:
		if !leader || r.game.Started {
			log.Debug("start refused")
			return
		}
		r.game.Started = true
		r.beginRound()
		r.broadcast(types.TagStartGame, r.state())

	case types.TagRoundStart:
		if !leader || !r.game.Started || r.running || r.over {
			return
		}
		r.beginRound()

	case types.TagNextRound:
		if !leader || !r.game.Started || r.running || r.over {
			log.Debug("next round refused")
			return
		}
		r.broadcast(types.TagNextRound, r.state())
		r.beginRound()

	case types.TagPlayerInput:
		var in types.PlayerInput
		if err := decodeData(m.Env, &in); err != nil {
			log.Warn("bad payload", zap.Error(err))
			return
		}
		if !leader || !r.running {
			return
		}
		r.game.Input = strings.ToLower(in.Input)
		r.broadcast(types.TagGameState, r.state())

	case types.TagResetGame:
		if !leader {
			return
		}
		r.resetToLobby()

	case types.TagUpdateGameOptions:
		var o types.GameOptions
		if err := decodeData(m.Env, &o); err != nil {
			log.Warn("bad payload", zap.Error(err))
			return
		}
		if !leader || r.game.Started {
			return
		}
		r.game.MaxRounds = o.MaxRounds
		r.game.WordCombinations = o.MinWordCombinations
		r.game.RoundTime = o.RoundTime
		r.broadcast(types.TagGameState, r.state())

	default:
		log.Debug("unsupported frame")
	}
}

// beginRound draws the letters and arms the reveal.
func (r *Room) beginRound() {
	r.running = true
	r.game.RoundOver = false
	r.game.Time = r.game.RoundTime
	r.game.Input = ""
	r.game.Atama, r.game.Oshiri = r.drawLetters()
	r.schedule(stepAtama, r.opts.Timings.Reveal)
}

// drawLetters retries until the pair has enough fitting words, settling for
// the best pair seen when the dictionary is too small.
func (r *Room) drawLetters() (atama, oshiri string) {
	best := -1
	for i := 0; i < 200; i++ {
		a, o := randomLetter(r.rng), randomLetter(r.rng)
		n := r.opts.Words.Count(a, o)
		if n >= r.game.WordCombinations {
			return a, o
		}
		if n > best {
			best, atama, oshiri = n, a, o
		}
	}
	return atama, oshiri
}

func randomLetter(rng *rand.Rand) string {
	return string(rune('a' + rng.Intn(26)))
}

func (r *Room) advance(s step) {
	switch s {
	case stepAtama:
		r.broadcast(types.TagRoundAtama, types.Letter{Letter: r.game.Atama})
		r.schedule(stepOshiri, r.opts.Timings.Reveal)

	case stepOshiri:
		r.broadcast(types.TagRoundOshiri, types.Letter{Letter: r.game.Oshiri})
		r.broadcast(types.TagRoundStart, r.state())
		r.schedule(stepTick, r.opts.Timings.Tick)

	case stepTick:
		r.game.Time--
		r.broadcast(types.TagGameState, r.state())
		if r.game.Time > 0 {
			r.schedule(stepTick, r.opts.Timings.Tick)
			return
		}
		r.finishRound()
	}
}

func (r *Room) finishRound() {
	r.stopTimer()
	r.running = false
	if len(r.queue) == 0 {
		return
	}

	word := r.game.Atama + r.game.Input + r.game.Oshiri
	s := r.queue[0]
	s.score += r.opts.Words.Score(word)
	r.queue = append(r.queue[1:], s)

	r.turns++
	lastTurn := r.turns >= len(r.queue)
	if lastTurn {
		r.turns = 0
	}

	r.game.RoundOver = true
	r.broadcast(types.TagRoundFinished, types.RoundResult{
		TopWords:     r.opts.Words.Top(r.game.Atama, r.game.Oshiri),
		GameState:    r.state(),
		Word:         word,
		WordAccepted: r.opts.Words.Valid(word),
	})
	for _, q := range r.queue {
		r.sendPlayer(q)
	}

	switch {
	case lastTurn && r.game.Round >= r.game.MaxRounds:
		r.endGame()
	case lastTurn:
		r.game.Round++
	}
}

func (r *Room) endGame() {
	winners := rankings(r.queue)
	r.over = true
	r.logger.Info("game over", zap.Int("players", len(winners)))
	r.broadcast(types.TagGameOver, types.GameOverResult{Winners: winners})
}

// rankings orders by score with ties sharing a rank (1, 1, 3).
func rankings(seats []*seat) []types.Ranking {
	ranked := append([]*seat(nil), seats...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	winners := make([]types.Ranking, 0, len(ranked))
	rank := 1
	for i, s := range ranked {
		if i > 0 && s.score != ranked[i-1].score {
			rank = i + 1
		}
		winners = append(winners, types.Ranking{Username: s.username, Score: s.score, Rank: rank})
	}
	return winners
}

func (r *Room) resetToLobby() {
	r.stopTimer()
	r.running = false
	r.over = false
	r.turns = 0
	opts := r.game
	r.game = lobbyState()
	r.game.MaxRounds, r.game.RoundTime, r.game.WordCombinations = opts.MaxRounds, opts.RoundTime, opts.WordCombinations
	for _, s := range r.queue {
		s.score = 0
	}
	r.broadcast(types.TagGameState, r.state())
	for _, s := range r.queue {
		r.sendPlayer(s)
	}
}

func (r *Room) schedule(s step, after time.Duration) {
	r.stopTimer()
	gen := r.gen
	r.timer = time.AfterFunc(after, func() {
		r.Post(timerFired{gen: gen, step: s})
	})
}

// stopTimer disarms the pending step. The generation bump drops a fire
// that is already queued.
func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
}

func (r *Room) state() types.GameState {
	g := r.game
	g.PlayerQueue = make([]types.Player, 0, len(r.queue))
	for i, s := range r.queue {
		g.PlayerQueue = append(g.PlayerQueue, r.player(s, i == 0))
	}
	return g
}

func (r *Room) player(s *seat, leader bool) types.Player {
	return types.Player{Username: s.username, Score: s.score, IsLeader: leader}
}

func (r *Room) sendPlayer(s *seat) {
	leader := len(r.queue) > 0 && r.queue[0] == s
	r.send(s, types.TagPlayerState, r.player(s, leader))
}

func (r *Room) connected() int {
	n := 0
	for _, s := range r.seats {
		if s.out != nil {
			n++
		}
	}
	return n
}

func (r *Room) broadcast(tag types.Tag, payload any) {
	for _, s := range r.queue {
		r.send(s, tag, payload)
	}
}

// send drops a slow client: its outbox is closed and the seat waits out
// the grace period like any other dropped socket.
func (r *Room) send(s *seat, tag types.Tag, payload any) {
	if s.out == nil {
		return
	}
	if !r.sendTo(s.out, tag, payload) {
		r.logger.Warn("dropping slow client", zap.String("username", s.username))
		close(s.out)
		r.detach(Detach{Token: s.token, Outbox: s.out})
	}
}

func (r *Room) sendTo(out chan types.Envelope, tag types.Tag, payload any) bool {
	env, err := types.NewEnvelope(tag, payload)
	if err != nil {
		r.logger.Error("encode", zap.String("type", string(tag)), zap.Error(err))
		return true
	}
	select {
	case out <- env:
		return true
	default:
		return false
	}
}

func (r *Room) shutdown() {
	r.cancel()
	r.stopTimer()
	for _, s := range r.seats {
		if s.out != nil {
			close(s.out)
			s.out = nil
		}
	}
}
