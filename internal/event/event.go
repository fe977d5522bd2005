package event

import "github.com/DoyleJ11/oshiri-client/pkg/types"

// Event is a decoded inbound frame. The set is closed: only types in this
// package implement it, and each one routes itself to exactly one Handler
// method, so a new inbound tag cannot compile without a handler.
type Event interface {
	Tag() types.Tag
	dispatch(h Handler)
}

// Handler receives every inbound event kind.
type Handler interface {
	OnNewClient(NewClient)
	OnPlayerState(PlayerState)
	OnGameState(GameState)
	OnStartGame(StartGame)
	OnRoundStart(RoundStart)
	OnNextRound(NextRound)
	OnRoundAtama(RoundAtama)
	OnRoundOshiri(RoundOshiri)
	OnRoundFinished(RoundFinished)
	OnGameOver(GameOver)
	OnUsernameTooLong(UsernameTooLong)
	OnRoomNotFound(RoomNotFound)
	OnError(Error)
}

// Dispatch hands ev to the matching handler method.
func Dispatch(ev Event, h Handler) { ev.dispatch(h) }

type NewClient struct{ Token string }

type PlayerState struct{ Player types.Player }

type GameState struct{ State types.GameState }

type StartGame struct{ State types.GameState }

type RoundStart struct{ State types.GameState }

// NextRound may arrive without a snapshot.
type NextRound struct{ State *types.GameState }

// RoundAtama carries the upper-cased head letter.
type RoundAtama struct{ Letter string }

// RoundOshiri carries the upper-cased tail letter.
type RoundOshiri struct{ Letter string }

type RoundFinished struct{ Result types.RoundResult }

type GameOver struct{ Result types.GameOverResult }

type UsernameTooLong struct{}

type RoomNotFound struct{}

type Error struct{ Message string }

func (NewClient) Tag() types.Tag       { return types.TagNewClient }
func (PlayerState) Tag() types.Tag     { return types.TagPlayerState }
func (GameState) Tag() types.Tag       { return types.TagGameState }
func (StartGame) Tag() types.Tag       { return types.TagStartGame }
func (RoundStart) Tag() types.Tag      { return types.TagRoundStart }
func (NextRound) Tag() types.Tag       { return types.TagNextRound }
func (RoundAtama) Tag() types.Tag      { return types.TagRoundAtama }
func (RoundOshiri) Tag() types.Tag     { return types.TagRoundOshiri }
func (RoundFinished) Tag() types.Tag   { return types.TagRoundFinished }
func (GameOver) Tag() types.Tag        { return types.TagGameOver }
func (UsernameTooLong) Tag() types.Tag { return types.TagUsernameTooLong }
func (RoomNotFound) Tag() types.Tag    { return types.TagRoomNotFound }
func (Error) Tag() types.Tag           { return types.TagError }

func (e NewClient) dispatch(h Handler)       { h.OnNewClient(e) }
func (e PlayerState) dispatch(h Handler)     { h.OnPlayerState(e) }
func (e GameState) dispatch(h Handler)       { h.OnGameState(e) }
func (e StartGame) dispatch(h Handler)       { h.OnStartGame(e) }
func (e RoundStart) dispatch(h Handler)      { h.OnRoundStart(e) }
func (e NextRound) dispatch(h Handler)       { h.OnNextRound(e) }
func (e RoundAtama) dispatch(h Handler)      { h.OnRoundAtama(e) }
func (e RoundOshiri) dispatch(h Handler)     { h.OnRoundOshiri(e) }
func (e RoundFinished) dispatch(h Handler)   { h.OnRoundFinished(e) }
func (e GameOver) dispatch(h Handler)        { h.OnGameOver(e) }
func (e UsernameTooLong) dispatch(h Handler) { h.OnUsernameTooLong(e) }
func (e RoomNotFound) dispatch(h Handler)    { h.OnRoomNotFound(e) }
func (e Error) dispatch(h Handler)           { h.OnError(e) }
