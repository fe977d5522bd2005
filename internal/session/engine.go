package session

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/oshiri-client/internal/conn"
	"github.com/DoyleJ11/oshiri-client/internal/event"
	"github.com/DoyleJ11/oshiri-client/internal/gameover"
	"github.com/DoyleJ11/oshiri-client/internal/inputsync"
	"github.com/DoyleJ11/oshiri-client/internal/round"
	"github.com/DoyleJ11/oshiri-client/internal/state"
	"github.com/DoyleJ11/oshiri-client/internal/store"
	"github.com/DoyleJ11/oshiri-client/pkg/types"
	"go.uber.org/zap"
)

const storeTimeout = 2 * time.Second

// engine owns all session state. Only the session loop touches it.
type engine struct {
	ctx     context.Context
	st      *state.State
	round   *round.Controller
	results gameover.Results
	input   *inputsync.Channel
	router  *event.Router
	sender  inputsync.Sender
	store   store.Store
	logger  *zap.Logger

	watchers map[chan<- View]struct{}

	connected bool
	tokenSeen bool
	// resetPending is set by our own RESET_GAME until the server's lobby
	// snapshot arrives; round traffic already in flight is dropped meanwhile.
	resetPending bool
	summary   *RoundSummary
	notice    *Notice

	ended  bool
	endErr error
	hangup func()
}

// load restores the identity saved by an earlier run.
func (e *engine) load(ctx context.Context) {
	e.ctx = ctx
	tok, err := store.Lookup(ctx, e.store, store.KeyToken)
	if err != nil {
		e.logger.Warn("could not read saved token", zap.Error(err))
	}
	name, err := store.Lookup(ctx, e.store, store.KeyUsername)
	if err != nil {
		e.logger.Warn("could not read saved username", zap.Error(err))
	}
	e.st.Identity = state.Identity{Token: tok, Username: name}
	e.logger.Info("session starting", zap.Bool("resumed_token", tok != ""), zap.Bool("saved_username", name != ""))
}

// handle applies one loop message and reports whether the View changed.
func (e *engine) handle(m msg) bool {
	switch m := m.(type) {
	case inbound:
		return e.router.Route(m.raw) == nil
	case opened:
		e.connected = true
		e.resetPending = false
		if m.reconnect {
			e.logger.Info("reconnected")
		}
		return true
	case closed:
		return e.onClose(m.reason, m.err)
	case tick:
		return e.round.OnTick(m.Tick)
	case joinIntent:
		return e.join(m.username)
	case draftIntent:
		e.st.Draft = m.text
		return true
	case typeIntent:
		return e.typed(m.input)
	case startIntent:
		return e.startGame()
	case nextRoundIntent:
		return e.nextRound()
	case resetIntent:
		return e.resetGame()
	case optionsIntent:
		return e.updateOptions(m.opts)
	case leaveIntent:
		e.logger.Info("leaving room")
		e.end(nil, nil)
		return true
	case getView:
		m.reply <- e.view()
		return false
	case watch:
		e.watchers[m.out] = struct{}{}
		select {
		case m.out <- e.view():
		default:
		}
		return false
	}
	return false
}

// publish sends the current View to every watcher. A watcher that cannot
// keep up is closed and dropped. The notice is consumed.
func (e *engine) publish() {
	v := e.view()
	e.notice = nil
	for ch := range e.watchers {
		select {
		case ch <- v:
		default:
			e.logger.Warn("dropping slow watcher")
			close(ch)
			delete(e.watchers, ch)
		}
	}
}

func (e *engine) closeWatchers() {
	for ch := range e.watchers {
		close(ch)
		delete(e.watchers, ch)
	}
}

// Inbound events

func (e *engine) OnNewClient(ev event.NewClient) {
	e.st.Identity.Token = ev.Token
	e.persist(store.KeyToken, ev.Token)
	first := !e.tokenSeen
	e.tokenSeen = true
	e.logger.Debug("token assigned", zap.Bool("first", first))

	// a reconnect resumes by token alone
	if !e.st.Joined && e.st.Identity.Username != "" {
		e.sendJoin()
	}
}

func (e *engine) OnPlayerState(ev event.PlayerState) {
	e.st.ApplyPlayer(ev.Player)
}

func (e *engine) OnGameState(ev event.GameState) {
	g := ev.State
	if e.resetPending {
		if g.Started {
			e.logger.Debug("snapshot from before reset dropped", zap.Int("time", g.Time))
			return
		}
		e.resetPending = false
	}
	if !e.applyGame(g) {
		return
	}
	phase := e.round.Phase()
	switch {
	case !g.Started && phase != round.PhaseLobby:
		e.logger.Info("room returned to lobby", zap.String("phase", string(phase)))
		e.toLobby()
	case g.Started && phase == round.PhaseLobby:
		e.logger.Info("catching up with running game", zap.Int("round", g.Round))
		if g.RoundOver {
			e.round.FinishRound()
			return
		}
		e.round.Resume(strings.ToUpper(g.Atama), strings.ToUpper(g.Oshiri), e.st.LettersPublic())
	}
}

func (e *engine) OnStartGame(ev event.StartGame) {
	if e.stale(ev) || !e.applyGame(ev.State) {
		return
	}
	switch e.round.Phase() {
	case round.PhaseLobby, round.PhaseRoundOver, round.PhaseGameOver:
		e.results.Clear()
		e.beginRound()
	}
}

// OnRoundStart only opens a reveal between rounds; mid-reveal it just
// refreshes the snapshot.
func (e *engine) OnRoundStart(ev event.RoundStart) {
	if e.stale(ev) || !e.applyGame(ev.State) {
		return
	}
	switch e.round.Phase() {
	case round.PhaseLobby, round.PhaseRoundOver:
		e.beginRound()
	}
}

func (e *engine) OnNextRound(ev event.NextRound) {
	if e.stale(ev) {
		return
	}
	if ev.State != nil && !e.applyGame(*ev.State) {
		return
	}
	if e.round.Phase() == round.PhaseRoundOver {
		e.beginRound()
	}
}

func (e *engine) OnRoundAtama(ev event.RoundAtama) {
	if e.stale(ev) {
		return
	}
	if e.round.PinAtama(ev.Letter) {
		e.clearRound()
	}
}

func (e *engine) OnRoundOshiri(ev event.RoundOshiri) {
	if e.stale(ev) {
		return
	}
	if e.round.PinOshiri(ev.Letter) {
		e.clearRound()
	}
}

func (e *engine) OnRoundFinished(ev event.RoundFinished) {
	if e.stale(ev) || !e.applyGame(ev.Result.GameState) {
		return
	}
	e.round.FinishRound()

	words := make([]string, 0, len(ev.Result.TopWords))
	for _, w := range ev.Result.TopWords {
		if w != "" {
			words = append(words, strings.ToUpper(w))
		}
	}
	e.summary = &RoundSummary{
		TopWords: words,
		Word:     strings.ToUpper(ev.Result.Word),
		Accepted: ev.Result.WordAccepted,
	}
	e.st.Draft = ""
}

func (e *engine) OnGameOver(ev event.GameOver) {
	if e.stale(ev) {
		return
	}
	e.round.GameOver()
	e.results.Store(ev.Result)
}

func (e *engine) OnUsernameTooLong(event.UsernameTooLong) {
	e.st.ClearUsername()
	e.forget(store.KeyUsername)
	e.notice = &Notice{Kind: NoticeError, Message: "Username is too long"}
}

func (e *engine) OnRoomNotFound(event.RoomNotFound) {
	e.end(ErrRoomNotFound, &Notice{Kind: NoticeError, Message: fmt.Sprintf("Room %s not found", e.st.RoomID)})
}

func (e *engine) OnError(ev event.Error) {
	msg := ev.Message
	if msg == "" {
		msg = "Something went wrong"
	}
	e.end(fmt.Errorf("%w: %s", ErrServer, msg), &Notice{Kind: NoticeError, Message: msg})
}

// Connection

func (e *engine) onClose(reason conn.CloseReason, err error) bool {
	e.connected = false
	switch reason {
	case conn.CloseLost:
		// retries are pending; nothing terminal to show yet
		e.tokenSeen = false
	case conn.CloseFatal:
		e.logger.Error("connection gave up", zap.Error(err))
		e.end(ErrDisconnected, &Notice{Kind: NoticeInfo, Message: fmt.Sprintf("Disconnected from gameroom %s", e.st.RoomID)})
	}
	return true
}

// Intents

func (e *engine) join(name string) bool {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		e.notice = &Notice{Kind: NoticeError, Message: "Enter a username"}
		return true
	case utf8.RuneCountInString(name) > types.MaxUsernameLen:
		e.notice = &Notice{Kind: NoticeError, Message: "Username is too long"}
		return true
	}
	if e.st.Joined {
		e.logger.Debug("already joined", zap.String("username", e.st.Identity.Username))
		return false
	}
	if err := e.st.SetUsername(name); err != nil {
		e.logger.Debug("username rejected", zap.Error(err))
		return false
	}
	e.persist(store.KeyUsername, name)
	e.st.Draft = ""
	if e.tokenSeen && e.connected {
		e.sendJoin()
	}
	return true
}

func (e *engine) typed(text string) bool {
	leader := e.st.IsLeader()
	if !e.round.InputEnabled(leader) {
		e.logger.Debug("input ignored", zap.Bool("leader", leader), zap.String("phase", string(e.round.Phase())))
		return false
	}
	text = inputsync.Normalize(text)
	// an unchanged buffer is not a change
	if text == e.st.Input {
		return false
	}
	e.st.Input = text
	if err := e.input.Publish(inputsync.Update{
		Leader: leader,
		Token:  e.st.Identity.Token,
		RoomID: e.st.RoomID,
		Input:  text,
	}); err != nil {
		e.logger.Debug("input not published", zap.Error(err))
	}
	return true
}

func (e *engine) startGame() bool {
	if !e.st.CanStartGame() {
		e.logger.Debug("start refused", zap.Error(ErrNotLeader))
		return false
	}
	e.send(types.TagStartGame, types.StartGame{Token: e.st.Identity.Token, RoomID: e.st.RoomID})
	return false
}

func (e *engine) nextRound() bool {
	if !e.round.CanRequestNextRound(e.st.IsLeader()) {
		e.logger.Debug("next round refused", zap.String("phase", string(e.round.Phase())))
		return false
	}
	e.send(types.TagNextRound, nil)
	e.beginRound()
	return true
}

func (e *engine) canReset() bool {
	if !e.st.IsLeader() || e.st.Game == nil {
		return false
	}
	return e.st.Game.Started || e.round.Phase() == round.PhaseGameOver
}

func (e *engine) resetGame() bool {
	if !e.canReset() {
		e.logger.Debug("reset refused", zap.Error(ErrNotLeader))
		return false
	}
	e.send(types.TagResetGame, nil)
	e.toLobby()
	e.resetPending = true
	return true
}

func (e *engine) updateOptions(opts types.GameOptions) bool {
	if !e.st.CanStartGame() {
		e.logger.Debug("options refused", zap.Error(ErrNotLeader))
		return false
	}
	if err := ValidateOptions(opts); err != nil {
		e.notice = &Notice{Kind: NoticeError, Message: err.Error()}
		return true
	}
	e.send(types.TagUpdateGameOptions, opts)
	return false
}

// ValidateOptions bounds what the lobby form may send.
func ValidateOptions(o types.GameOptions) error {
	switch {
	case o.MaxRounds < 1 || o.MaxRounds > 50:
		return fmt.Errorf("rounds must be between 1 and 50")
	case o.RoundTime < 5 || o.RoundTime > 300:
		return fmt.Errorf("round time must be between 5 and 300 seconds")
	case o.MinWordCombinations < 0 || o.MinWordCombinations > 100000:
		return fmt.Errorf("word combinations must be between 0 and 100000")
	}
	return nil
}

// Helpers

// applyGame reports false when the snapshot was refused. The caller then
// drops the whole event.
func (e *engine) applyGame(g types.GameState) bool {
	if err := e.st.ApplyGame(g); err != nil {
		e.logger.Warn("snapshot refused", zap.Error(err))
		return false
	}
	return true
}

// stale reports round traffic the server sent before it saw our reset.
func (e *engine) stale(ev event.Event) bool {
	if !e.resetPending {
		return false
	}
	e.logger.Debug("dropped while reset is pending", zap.String("type", string(ev.Tag())))
	return true
}

func (e *engine) clearRound() {
	e.summary = nil
	e.st.Input = ""
}

func (e *engine) beginRound() {
	e.clearRound()
	e.round.BeginRound()
}

func (e *engine) toLobby() {
	e.round.Reset()
	e.results.Clear()
	e.clearRound()
}

func (e *engine) sendJoin() {
	e.send(types.TagJoinGame, types.JoinGame{
		Username: e.st.Identity.Username,
		RoomID:   e.st.RoomID,
		Token:    e.st.Identity.Token,
	})
	e.st.Joined = true
}

func (e *engine) send(tag types.Tag, payload any) {
	env, err := types.NewEnvelope(tag, payload)
	if err != nil {
		e.logger.Error("encode outbound", zap.String("type", string(tag)), zap.Error(err))
		return
	}
	if err := e.sender.Send(env); err != nil {
		e.logger.Warn("outbound dropped", zap.String("type", string(tag)), zap.Error(err))
		return
	}
	e.logger.Debug("outbound event", zap.String("type", string(tag)))
}

// end tears the room visit down: identity is forgotten and the socket is
// closed without a reconnect. A nil err is a voluntary leave.
func (e *engine) end(err error, n *Notice) {
	if e.ended {
		return
	}
	e.ended = true
	e.endErr = err
	e.notice = n
	e.round.Reset()
	e.st.ClearUsername()
	e.st.Identity.Token = ""
	e.forget(store.KeyUsername)
	e.forget(store.KeyToken)
	if e.hangup != nil {
		e.hangup()
	}
	e.logger.Info("session ended", zap.Error(err))
}

func (e *engine) persist(key, value string) {
	ctx, cancel := context.WithTimeout(e.ctx, storeTimeout)
	defer cancel()
	if err := e.store.Set(ctx, key, value); err != nil {
		e.logger.Warn("persist failed", zap.String("key", key), zap.Error(err))
	}
}

func (e *engine) forget(key string) {
	ctx, cancel := context.WithTimeout(e.ctx, storeTimeout)
	defer cancel()
	if err := e.store.Delete(ctx, key); err != nil {
		e.logger.Warn("forget failed", zap.String("key", key), zap.Error(err))
	}
}
