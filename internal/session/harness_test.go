package session

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/oshiri-client/internal/conn"
	"github.com/DoyleJ11/oshiri-client/internal/round"
	"github.com/DoyleJ11/oshiri-client/internal/store"
	"github.com/DoyleJ11/oshiri-client/pkg/types"
	"github.com/stretchr/testify/require"
)

const within = time.Second

// pipe is the server's end of one fake socket.
type pipe struct {
	toClient chan []byte
	sent     chan []byte
	dropped  chan struct{}
	closed   chan struct{}
	dropOnce sync.Once
	once     sync.Once
}

func newPipe() *pipe {
	return &pipe{
		toClient: make(chan []byte, 64),
		sent:     make(chan []byte, 64),
		dropped:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

func (p *pipe) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-p.toClient:
		return b, nil
	case <-p.dropped:
		return nil, errors.New("connection reset by peer")
	case <-p.closed:
		return nil, errors.New("use of closed connection")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipe) Write(ctx context.Context, data []byte) error {
	select {
	case p.sent <- data:
		return nil
	case <-p.closed:
		return errors.New("use of closed connection")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipe) Close(string) error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipe) drop() { p.dropOnce.Do(func() { close(p.dropped) }) }

// pipeDialer accepts while accept is true and records every dial.
type pipeDialer struct {
	mu     sync.Mutex
	accept bool
	urls   []string
	pipes  chan *pipe
}

func (d *pipeDialer) Dial(_ context.Context, url string) (conn.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if !d.accept {
		return nil, errors.New("connection refused")
	}
	p := newPipe()
	d.pipes <- p
	return p, nil
}

func (d *pipeDialer) setAccept(v bool) {
	d.mu.Lock()
	d.accept = v
	d.mu.Unlock()
}

func (d *pipeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *pipeDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urls[len(d.urls)-1]
}

type harness struct {
	t     *testing.T
	s     *Session
	d     *pipeDialer
	p     *pipe
	store *store.Memory
	views chan View
	done  chan error
}

type harnessOpt func(*Config)

func withRoulette(r round.RouletteConfig) harnessOpt {
	return func(c *Config) { c.Roulette = r }
}

func withPolicy(p conn.Policy) harnessOpt {
	return func(c *Config) { c.Reconnect = p }
}

// newHarness starts a session on room r1 and waits for its first socket.
// The roulette is slowed to a crawl unless a test asks otherwise.
func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	cfg := Config{
		RoomID:    "r1",
		URL:       "ws://game.test/ws",
		Reconnect: conn.Policy{Attempts: 5, Interval: 5 * time.Millisecond},
		Roulette:  round.RouletteConfig{Start: time.Hour, Step: time.Millisecond, Max: 2 * time.Hour},
	}
	for _, o := range opts {
		o(&cfg)
	}
	return startHarness(t, cfg, store.NewMemory())
}

func startHarness(t *testing.T, cfg Config, st *store.Memory) *harness {
	t.Helper()
	d := &pipeDialer{accept: true, pipes: make(chan *pipe, 16)}
	h := &harness{
		t:     t,
		d:     d,
		store: st,
		views: make(chan View, 4096),
		done:  make(chan error, 1),
	}
	h.s = New(cfg, Deps{Dialer: d, Store: st, Rand: rand.New(rand.NewSource(42))})
	h.s.Watch(h.views)
	go func() { h.done <- h.s.Run(context.Background()) }()

	h.p = h.nextPipe()
	h.waitView(func(v View) bool { return v.Connected })
	t.Cleanup(func() {
		h.s.Leave()
		select {
		case <-h.done:
		case <-time.After(within):
		}
	})
	return h
}

func (h *harness) nextPipe() *pipe {
	h.t.Helper()
	select {
	case p := <-h.d.pipes:
		return p
	case <-time.After(within):
		h.t.Fatalf("timed out waiting for a dial")
		return nil // unreachable
	}
}

// push sends one frame from the server.
func (h *harness) push(tag types.Tag, payload any) {
	h.t.Helper()
	env, err := types.NewEnvelope(tag, payload)
	require.NoError(h.t, err)
	b, err := json.Marshal(env)
	require.NoError(h.t, err)
	h.pushRaw(string(b))
}

func (h *harness) pushRaw(raw string) {
	h.t.Helper()
	select {
	case h.p.toClient <- []byte(raw):
	case <-time.After(within):
		h.t.Fatalf("server push blocked")
	}
}

// expectSent waits for the client to send tag, failing on anything else.
func (h *harness) expectSent(tag types.Tag) types.Envelope {
	h.t.Helper()
	select {
	case b := <-h.p.sent:
		var env types.Envelope
		require.NoError(h.t, json.Unmarshal(b, &env))
		if env.Type != tag {
			h.t.Fatalf("want client to send %s, got %s", tag, env.Type)
		}
		return env
	case <-time.After(within):
		h.t.Fatalf("timed out waiting for client to send %s", tag)
		return types.Envelope{} // unreachable
	}
}

func (h *harness) expectNothingSent(wait time.Duration) {
	h.t.Helper()
	select {
	case b := <-h.p.sent:
		h.t.Fatalf("expected nothing sent, got %s", b)
	case <-time.After(wait):
	}
}

// waitView reads views until pred holds.
func (h *harness) waitView(pred func(View) bool) View {
	h.t.Helper()
	deadline := time.After(within)
	for {
		select {
		case v, ok := <-h.views:
			if !ok {
				h.t.Fatalf("view channel closed")
			}
			if pred(v) {
				return v
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for view")
			return View{} // unreachable
		}
	}
}

func (h *harness) expectNoView(wait time.Duration) {
	h.t.Helper()
	select {
	case v, ok := <-h.views:
		if ok {
			h.t.Fatalf("expected no view within %v, got %+v", wait, v)
		}
	case <-time.After(wait):
	}
}

func (h *harness) waitDone() error {
	h.t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * within):
		h.t.Fatalf("session did not end")
		return nil
	}
}

func decode[T any](t *testing.T, env types.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// Fixtures

var (
	alice = types.Player{Token: "tok-a", Username: "alice", IsLeader: true}
	bob   = types.Player{Token: "tok-b", Username: "bob"}
)

func lobbyState(queue ...types.Player) types.GameState {
	return types.GameState{Round: 1, MaxRounds: 10, RoundTime: 25, WordCombinations: 400, PlayerQueue: queue}
}

func runningState(queue ...types.Player) types.GameState {
	g := lobbyState(queue...)
	g.Started = true
	g.Time = g.RoundTime
	g.Atama, g.Oshiri = "k", "e"
	return g
}

// joinAs walks the session through NEW_CLIENT and JOIN_GAME into the lobby.
func (h *harness) joinAs(p types.Player, queue ...types.Player) View {
	h.t.Helper()
	h.push(types.TagNewClient, types.NewClient{Token: p.Token})
	h.s.Join(p.Username)
	h.expectSent(types.TagJoinGame)
	h.push(types.TagPlayerState, p)
	h.push(types.TagGameState, lobbyState(queue...))
	return h.waitView(func(v View) bool { return v.Screen == ScreenLobby })
}

// reachAwaitingInput plays START_GAME and both letters.
func (h *harness) reachAwaitingInput(queue ...types.Player) View {
	h.t.Helper()
	h.push(types.TagStartGame, runningState(queue...))
	h.push(types.TagRoundAtama, types.Letter{Letter: "k"})
	h.push(types.TagRoundOshiri, types.Letter{Letter: "e"})
	return h.waitView(func(v View) bool { return v.Phase == round.PhaseAwaitingInput })
}
