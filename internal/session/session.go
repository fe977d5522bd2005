package session

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/oshiri-client/internal/conn"
	"github.com/DoyleJ11/oshiri-client/internal/event"
	"github.com/DoyleJ11/oshiri-client/internal/inputsync"
	"github.com/DoyleJ11/oshiri-client/internal/logging"
	"github.com/DoyleJ11/oshiri-client/internal/round"
	"github.com/DoyleJ11/oshiri-client/internal/state"
	"github.com/DoyleJ11/oshiri-client/internal/store"
	"github.com/DoyleJ11/oshiri-client/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrClosed       = errors.New("session closed")
	ErrRunning      = errors.New("session already running")
	ErrNoRoom       = errors.New("no room id")
	ErrNotLeader    = errors.New("only the leader can do that")
	ErrRoomNotFound = errors.New("room not found")
	ErrDisconnected = errors.New("disconnected from game room")
	ErrServer       = errors.New("server error")
)

type Config struct {
	RoomID string
	// URL is the game socket endpoint, e.g. ws://localhost:8080/ws.
	URL       string
	Reconnect conn.Policy
	Roulette  round.RouletteConfig
}

type Deps struct {
	Dialer conn.Dialer
	Store  store.Store
	Rand   *rand.Rand
	Logger *zap.Logger
}

// Loop messages
type msg interface{ isSessionMsg() }

type inbound struct{ raw []byte }

type opened struct{ reconnect bool }

type closed struct {
	reason conn.CloseReason
	err    error
}

type tick struct{ round.Tick }

type joinIntent struct{ username string }

type draftIntent struct{ text string }

type typeIntent struct{ input string }

type startIntent struct{}

type nextRoundIntent struct{}

type resetIntent struct{}

type optionsIntent struct{ opts types.GameOptions }

type leaveIntent struct{}

type getView struct{ reply chan View }

type watch struct{ out chan<- View }

func (inbound) isSessionMsg()         {}
func (opened) isSessionMsg()          {}
func (closed) isSessionMsg()          {}
func (tick) isSessionMsg()            {}
func (joinIntent) isSessionMsg()      {}
func (draftIntent) isSessionMsg()     {}
func (typeIntent) isSessionMsg()      {}
func (startIntent) isSessionMsg()     {}
func (nextRoundIntent) isSessionMsg() {}
func (resetIntent) isSessionMsg()     {}
func (optionsIntent) isSessionMsg()   {}
func (leaveIntent) isSessionMsg()     {}
func (getView) isSessionMsg()         {}
func (watch) isSessionMsg()           {}

// Session is one visit to one game room. Socket frames, roulette ticks and
// user intents all go through a single inbox and are applied in order by
// the goroutine running Run.
type Session struct {
	cfg     Config
	logger  *zap.Logger
	inbox   chan msg
	stopped chan struct{}
	running atomic.Bool

	conn *conn.Manager
	eng  *engine
}

func New(cfg Config, deps Deps) *Session {
	if cfg.Reconnect == (conn.Policy{}) {
		cfg.Reconnect = conn.DefaultPolicy()
	}
	if cfg.Roulette == (round.RouletteConfig{}) {
		cfg.Roulette = round.DefaultRoulette()
	}
	if deps.Dialer == nil {
		deps.Dialer = conn.CoderDialer{}
	}
	if deps.Store == nil {
		deps.Store = store.NewMemory()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := logging.Or(deps.Logger).Named("session").With(
		zap.String("room", cfg.RoomID),
		zap.String("session_id", uuid.NewString()),
	)

	s := &Session{
		cfg:     cfg,
		logger:  logger,
		inbox:   make(chan msg, 64),
		stopped: make(chan struct{}),
	}

	st := deps.Store
	s.conn = conn.NewManager(conn.Options{
		URL: cfg.URL,
		Token: func(ctx context.Context) string {
			tok, _ := store.Lookup(ctx, st, store.KeyToken)
			return tok
		},
		Dialer: deps.Dialer,
		Policy: cfg.Reconnect,
		Logger: logger,
	}, listener{s})

	e := &engine{
		st:       state.New(cfg.RoomID, state.Identity{}),
		sender:   s.conn,
		store:    deps.Store,
		logger:   logger,
		watchers: make(map[chan<- View]struct{}),
		hangup:   s.conn.Close,
	}
	e.round = round.NewController(cfg.Roulette, deps.Rand, func(t round.Tick) bool {
		return s.post(tick{t})
	}, logger.Named("round"))
	e.input = inputsync.New(s.conn, logger)
	e.router = event.NewRouter(e, logger)
	s.eng = e
	return s
}

// Run connects and processes the inbox until the room visit ends. It returns
// nil after Leave, ctx.Err() on cancellation, and otherwise the reason the
// session ended (ErrRoomNotFound, ErrDisconnected, ErrServer).
func (s *Session) Run(ctx context.Context) error {
	if s.cfg.RoomID == "" {
		return ErrNoRoom
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}

	e := s.eng
	e.load(ctx)

	connCtx, cancelConn := context.WithCancel(ctx)
	connDone := make(chan error, 1)
	go func() { connDone <- s.conn.Run(connCtx) }()

	defer func() {
		close(s.stopped)
		s.conn.Close()
		cancelConn()
		<-connDone
		e.round.Close()
		e.closeWatchers()
	}()

	e.publish()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case m := <-s.inbox:
			if e.handle(m) {
				e.publish()
			}
			if e.ended {
				return e.endErr
			}
		}
	}
}

// Watch subscribes out to View snapshots. The current View is sent right
// away. A watcher that falls behind is closed and dropped; out is also
// closed when the session ends.
func (s *Session) Watch(out chan<- View) { s.post(watch{out: out}) }

// View returns the current snapshot.
func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !s.postCtx(ctx, getView{reply: reply}) {
		if ctx.Err() != nil {
			return View{}, ctx.Err()
		}
		return View{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.stopped:
		return View{}, ErrClosed
	}
}

// Join picks the username for this room visit.
func (s *Session) Join(username string) { s.post(joinIntent{username: username}) }

// Draft records the join form's content so round transitions can clear it.
func (s *Session) Draft(text string) { s.post(draftIntent{text: text}) }

// Type replaces the leader's word middle. Ignored for followers.
func (s *Session) Type(input string) { s.post(typeIntent{input: input}) }

func (s *Session) StartGame() { s.post(startIntent{}) }

func (s *Session) NextRound() { s.post(nextRoundIntent{}) }

// ResetGame sends the room back to the lobby. Leader only.
func (s *Session) ResetGame() { s.post(resetIntent{}) }

func (s *Session) UpdateOptions(opts types.GameOptions) { s.post(optionsIntent{opts: opts}) }

// Leave closes the socket without reconnecting and forgets the identity.
func (s *Session) Leave() { s.post(leaveIntent{}) }

func (s *Session) post(m msg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *Session) postCtx(ctx context.Context, m msg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}

// listener feeds connection callbacks into the inbox.
type listener struct{ s *Session }

func (l listener) OnOpen(reconnect bool) { l.s.post(opened{reconnect: reconnect}) }

func (l listener) OnMessage(raw []byte) { l.s.post(inbound{raw: raw}) }

func (l listener) OnClose(reason conn.CloseReason, err error) {
	l.s.post(closed{reason: reason, err: err})
}
