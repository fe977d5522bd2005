package state

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/oshiri-client/pkg/types"
)

var ErrUsernameSet = errors.New("username already chosen")
var ErrLeadership = errors.New("more than one leader in player queue")

// Identity is what the client carries between reconnects.
type Identity struct {
	Token    string
	Username string
}

// State is the client's mirror of the room. Server snapshots are replaced
// wholesale and never edited in place. It is owned by a single goroutine.
type State struct {
	Identity Identity
	RoomID   string

	// Self and Game stay nil until the server first reports them.
	Self *types.Player
	Game *types.GameState

	// Input is the displayed word middle. The leader's own typing lives
	// here; for everyone else it mirrors Game.Input.
	Input string

	// Draft is whatever is sitting in the join form.
	Draft string

	// Joined is set once JOIN_GAME went out for this room visit.
	Joined bool
}

func New(roomID string, id Identity) *State {
	return &State{RoomID: roomID, Identity: id}
}

// SetUsername fixes the username for this room visit.
func (s *State) SetUsername(name string) error {
	if s.Identity.Username != "" && s.Identity.Username != name {
		return ErrUsernameSet
	}
	s.Identity.Username = name
	return nil
}

// ClearUsername forgets the username, after a rejection or on leave.
func (s *State) ClearUsername() {
	s.Identity.Username = ""
	s.Joined = false
}

func (s *State) ApplyPlayer(p types.Player) {
	s.Self = &p
}

// ApplyGame replaces the snapshot. Followers take the server's input as
// their display; the leader keeps the local buffer. A snapshot with more
// than one leader is refused and leaves the state untouched.
func (s *State) ApplyGame(g types.GameState) error {
	if err := CheckLeadership(g); err != nil {
		return err
	}
	g = g.Clone()
	s.Game = &g
	if !s.IsLeader() {
		s.Input = g.Input
	}
	return nil
}

func (s *State) IsLeader() bool {
	return s.Self != nil && s.Self.IsLeader
}

// CanStartGame is true for the leader of a room that has not started.
func (s *State) CanStartGame() bool {
	return s.Game != nil && !s.Game.Started && s.IsLeader()
}

// LettersPublic reports whether the server has revealed this round's letters,
// which is the case once the countdown has left the full round time.
func (s *State) LettersPublic() bool {
	return s.Game != nil && s.Game.Started && s.Game.Time < s.Game.RoundTime
}

// CheckLeadership reports a queue with more than one isLeader flag.
func CheckLeadership(g types.GameState) error {
	if n := g.LeaderCount(); n > 1 {
		return fmt.Errorf("%w: %d leaders", ErrLeadership, n)
	}
	return nil
}
