package devserver_test

import (
	"context"
	"math/rand"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/oshiri-client/internal/conn"
	"github.com/DoyleJ11/oshiri-client/internal/devserver"
	"github.com/DoyleJ11/oshiri-client/internal/lobbyapi"
	"github.com/DoyleJ11/oshiri-client/internal/round"
	"github.com/DoyleJ11/oshiri-client/internal/session"
	"github.com/DoyleJ11/oshiri-client/internal/store"
	"github.com/DoyleJ11/oshiri-client/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const within = 5 * time.Second

type player struct {
	t     *testing.T
	s     *session.Session
	views chan session.View
	done  chan error
}

func startPlayer(t *testing.T, wsURL, room string, d conn.Dialer, seed int64) *player {
	t.Helper()
	p := &player{
		t:     t,
		views: make(chan session.View, 4096),
		done:  make(chan error, 1),
	}
	p.s = session.New(session.Config{
		RoomID:    room,
		URL:       wsURL,
		Reconnect: conn.Policy{Attempts: 2, Interval: 20 * time.Millisecond},
		Roulette:  round.RouletteConfig{Start: time.Hour, Step: time.Millisecond, Max: 2 * time.Hour},
	}, session.Deps{Dialer: d, Store: store.NewMemory(), Rand: rand.New(rand.NewSource(seed))})
	p.s.Watch(p.views)
	go func() { p.done <- p.s.Run(context.Background()) }()
	t.Cleanup(func() {
		p.s.Leave()
		select {
		case <-p.done:
		case <-time.After(within):
		}
	})
	return p
}

func (p *player) waitView(what string, pred func(session.View) bool) session.View {
	p.t.Helper()
	deadline := time.After(within)
	for {
		select {
		case v, ok := <-p.views:
			if !ok {
				p.t.Fatalf("views closed waiting for %s", what)
			}
			if pred(v) {
				return v
			}
		case <-deadline:
			p.t.Fatalf("timed out waiting for %s", what)
			return session.View{}
		}
	}
}

func inPhase(ph round.Phase) func(session.View) bool {
	return func(v session.View) bool { return v.Phase == ph }
}

func newServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	hub := devserver.NewHub(context.Background(), devserver.Options{
		Timings: devserver.Timings{Reveal: 10 * time.Millisecond, Tick: 50 * time.Millisecond, Grace: time.Second},
		Seed:    3,
	})
	srv := httptest.NewServer(devserver.Routes(hub, nil))
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
	})
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestEndToEnd(t *testing.T) {
	dialers := []struct {
		name string
		d    conn.Dialer
	}{
		{name: "coder", d: conn.CoderDialer{}},
		{name: "gorilla", d: conn.GorillaDialer{}},
	}
	for _, tc := range dialers {
		t.Run(tc.name, func(t *testing.T) {
			srv, wsURL := newServer(t)

			api := lobbyapi.New(srv.URL, nil)
			require.True(t, api.Healthy(context.Background()))
			room, err := api.CreateGame(context.Background())
			require.NoError(t, err)

			alice := startPlayer(t, wsURL, room, tc.d, 1)
			alice.waitView("alice connected", func(v session.View) bool { return v.Connected })
			alice.s.Join("alice")
			v := alice.waitView("alice lobby", func(v session.View) bool { return v.Screen == session.ScreenLobby })
			assert.True(t, v.CanStart)

			bob := startPlayer(t, wsURL, room, tc.d, 2)
			bob.waitView("bob connected", func(v session.View) bool { return v.Connected })
			bob.s.Join("bob")
			v = bob.waitView("bob lobby", func(v session.View) bool { return v.Screen == session.ScreenLobby })
			assert.False(t, v.CanStart)

			alice.s.UpdateOptions(types.GameOptions{MaxRounds: 1, RoundTime: 5, MinWordCombinations: 0})
			bob.waitView("options", func(v session.View) bool { return v.Game != nil && v.Game.RoundTime == 5 })

			// round one: alice leads
			alice.s.StartGame()
			a := alice.waitView("alice letters", inPhase(round.PhaseAwaitingInput))
			assert.True(t, a.InputEnabled)
			b := bob.waitView("bob letters", inPhase(round.PhaseAwaitingInput))
			assert.False(t, b.InputEnabled)
			assert.Equal(t, a.Atama.Value, b.Atama.Value)
			assert.Equal(t, a.Oshiri.Value, b.Oshiri.Value)

			alice.s.Type("x")
			bob.waitView("mirrored input", func(v session.View) bool { return v.Input == "x" })

			a = alice.waitView("alice round over", inPhase(round.PhaseRoundOver))
			require.NotNil(t, a.Round)
			assert.Equal(t, a.Atama.Value+"X"+a.Oshiri.Value, a.Round.Word)

			// leadership rotates to bob
			b = bob.waitView("bob leads", func(v session.View) bool { return v.CanNextRound })
			assert.True(t, b.IsLeader)
			alice.waitView("alice follows", func(v session.View) bool { return v.Phase == round.PhaseRoundOver && !v.IsLeader })

			bob.s.NextRound()
			alice.waitView("alice second round", inPhase(round.PhaseAwaitingInput))
			bob.waitView("bob second round", inPhase(round.PhaseAwaitingInput))

			a = alice.waitView("alice ranking", func(v session.View) bool { return v.Screen == session.ScreenRanking })
			require.Len(t, a.Winners, 2)
			bob.waitView("bob ranking", func(v session.View) bool { return v.Screen == session.ScreenRanking })
			assert.True(t, a.CanReset, "alice leads again after the full cycle")

			alice.s.ResetGame()
			bob.waitView("bob back in lobby", func(v session.View) bool {
				return v.Screen == session.ScreenLobby && v.Game != nil && !v.Game.Started
			})
			alice.waitView("alice can start again", func(v session.View) bool { return v.CanStart })
		})
	}
}

func TestEndToEnd_UnknownRoom(t *testing.T) {
	_, wsURL := newServer(t)

	p := startPlayer(t, wsURL, "nope42", conn.CoderDialer{}, 1)
	p.waitView("connected", func(v session.View) bool { return v.Connected })
	p.s.Join("alice")
	v := p.waitView("ended", func(v session.View) bool { return v.Ended })
	assert.Equal(t, session.ScreenEntry, v.Screen)

	select {
	case err := <-p.done:
		assert.ErrorIs(t, err, session.ErrRoomNotFound)
	case <-time.After(within):
		t.Fatalf("session did not end")
	}
}

func TestEndToEnd_LongestUsernameIsAccepted(t *testing.T) {
	srv, wsURL := newServer(t)
	room, err := lobbyapi.New(srv.URL, nil).CreateGame(context.Background())
	require.NoError(t, err)

	p := startPlayer(t, wsURL, room, conn.CoderDialer{}, 1)
	p.waitView("connected", func(v session.View) bool { return v.Connected })
	p.s.Join(strings.Repeat("a", types.MaxUsernameLen))
	p.waitView("lobby", func(v session.View) bool { return v.Screen == session.ScreenLobby })
}
