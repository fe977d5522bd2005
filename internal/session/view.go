package session

import (
	"github.com/DoyleJ11/oshiri-client/internal/gameover"
	"github.com/DoyleJ11/oshiri-client/internal/round"
	"github.com/DoyleJ11/oshiri-client/pkg/types"
)

// Screen is the top-level page a UI should show.
type Screen string

const (
	ScreenEntry   Screen = "entry"
	ScreenJoin    Screen = "join"
	ScreenLoading Screen = "loading"
	ScreenLobby   Screen = "lobby"
	ScreenRound   Screen = "round"
	ScreenRanking Screen = "ranking"
)

type NoticeKind string

const (
	NoticeInfo  NoticeKind = "info"
	NoticeError NoticeKind = "error"
)

// Notice is a one-shot message for the user. It rides on exactly one View.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// RoundSummary is what ROUND_FINISHED reported.
type RoundSummary struct {
	TopWords []string
	Word     string
	Accepted bool
}

// View is an immutable snapshot of everything a UI renders.
type View struct {
	Screen    Screen
	Phase     round.Phase
	RoomID    string
	Username  string
	Draft     string
	Connected bool
	Ended     bool

	Self *types.Player
	Game *types.GameState

	IsLeader       bool
	CanStart       bool
	CanEditOptions bool
	InputEnabled   bool
	CanNextRound   bool
	CanReset       bool

	// Input is the word middle: the leader's own typing, or the mirror of
	// the leader's typing for everyone else.
	Input  string
	Atama  round.Letter
	Oshiri round.Letter

	Round   *RoundSummary
	Winners []types.Ranking
	Podium  gameover.Podium

	Notice *Notice
}

func (e *engine) view() View {
	leader := e.st.IsLeader()
	phase := e.round.Phase()
	atama, oshiri := e.round.Letters()

	v := View{
		Screen:       e.screen(),
		Phase:        phase,
		RoomID:       e.st.RoomID,
		Username:     e.st.Identity.Username,
		Draft:        e.st.Draft,
		Connected:    e.connected,
		Ended:        e.ended,
		IsLeader:     leader,
		CanStart:     !e.ended && e.st.CanStartGame(),
		InputEnabled: !e.ended && e.round.InputEnabled(leader),
		CanNextRound: !e.ended && e.round.CanRequestNextRound(leader),
		CanReset:     !e.ended && e.canReset(),
		Input:        e.st.Input,
		Atama:        atama,
		Oshiri:       oshiri,
		Notice:       e.notice,
	}
	v.CanEditOptions = v.CanStart

	if e.st.Self != nil {
		p := *e.st.Self
		v.Self = &p
	}
	if e.st.Game != nil {
		g := e.st.Game.Clone()
		v.Game = &g
	}
	if e.summary != nil {
		s := *e.summary
		s.TopWords = append([]string(nil), e.summary.TopWords...)
		v.Round = &s
	}
	if e.results.Ready() {
		v.Winners = e.results.Winners()
		v.Podium = e.results.Podium()
	}
	return v
}

func (e *engine) screen() Screen {
	switch {
	case e.ended:
		return ScreenEntry
	case e.st.Identity.Username == "":
		return ScreenJoin
	case e.st.Self == nil || e.st.Game == nil:
		return ScreenLoading
	case e.round.Phase() == round.PhaseGameOver:
		return ScreenRanking
	case e.round.Phase() == round.PhaseLobby:
		return ScreenLobby
	default:
		return ScreenRound
	}
}
