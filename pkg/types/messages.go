package types

import "encoding/json"

// Tag is the "type" field of every frame on the game socket.
type Tag string

const (
	TagJoinGame          Tag = "JOIN_GAME"
	TagPlayerState       Tag = "PLAYER_STATE"
	TagRoomNotFound      Tag = "ROOM_NOT_FOUND"
	TagNextRound         Tag = "NEXT_ROUND"
	TagNewClient         Tag = "NEW_CLIENT"
	TagStartGame         Tag = "START_GAME"
	TagGameState         Tag = "GAME_STATE"
	TagRoundStart        Tag = "ROUND_START"
	TagPlayerInput       Tag = "PLAYER_INPUT"
	TagRoundFinished     Tag = "ROUND_FINISHED"
	TagGameOver          Tag = "GAME_OVER"
	TagResetGame         Tag = "RESET_GAME"
	TagUsernameTooLong   Tag = "USERNAME_TOO_LONG"
	TagRoundAtama        Tag = "ROUND_ATAMA"
	TagRoundOshiri       Tag = "ROUND_OSHIRI"
	TagUpdateGameOptions Tag = "UPDATE_GAME_OPTIONS"
	TagError             Tag = "ERROR"
)

// Tags lists every tag of the protocol, both directions.
var Tags = []Tag{
	TagJoinGame,
	TagPlayerState,
	TagRoomNotFound,
	TagNextRound,
	TagNewClient,
	TagStartGame,
	TagGameState,
	TagRoundStart,
	TagPlayerInput,
	TagRoundFinished,
	TagGameOver,
	TagResetGame,
	TagUsernameTooLong,
	TagRoundAtama,
	TagRoundOshiri,
	TagUpdateGameOptions,
	TagError,
}

// Limits enforced by the server, mirrored on the client.
const (
	MaxUsernameLen = 20
	MaxInputLen    = 45
)

// Envelope is a single text frame: {"type": ..., "data": ...}.
type Envelope struct {
	Type Tag             `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope marshals payload into an envelope. A nil payload encodes as null.
func NewEnvelope(tag Tag, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: tag, Data: json.RawMessage("null")}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: tag, Data: data}, nil
}

// Client -> Server

type JoinGame struct {
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
	Token    string `json:"token,omitempty"`
}

type PlayerInput struct {
	Token  string `json:"token"`
	RoomID string `json:"roomId"`
	Input  string `json:"input"`
}

type StartGame struct {
	Token  string `json:"token"`
	RoomID string `json:"roomId"`
}

type GameOptions struct {
	MaxRounds           int `json:"maxRounds"`
	MinWordCombinations int `json:"minWordCombinations"`
	RoundTime           int `json:"roundTime"`
}

// Server -> Client

type NewClient struct {
	Token string `json:"token"`
}

// Letter is the payload of ROUND_ATAMA and ROUND_OSHIRI.
type Letter struct {
	Letter string `json:"letter"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}
