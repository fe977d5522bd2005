package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/DoyleJ11/oshiri-client/pkg/types"
)

var ErrUnknownTag = errors.New("unknown event tag")
var ErrOutboundOnly = errors.New("outbound-only event tag")
var ErrMalformed = errors.New("malformed event")

type decoder func(data json.RawMessage) (Event, error)

var decoders = map[types.Tag]decoder{
	types.TagNewClient: func(data json.RawMessage) (Event, error) {
		var p types.NewClient
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.Token == "" {
			return nil, fmt.Errorf("%w: empty token", ErrMalformed)
		}
		return NewClient{Token: p.Token}, nil
	},
	types.TagPlayerState: func(data json.RawMessage) (Event, error) {
		var p types.Player
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		return PlayerState{Player: p}, nil
	},
	types.TagGameState: func(data json.RawMessage) (Event, error) {
		g, err := gameState(data)
		return GameState{State: g}, err
	},
	types.TagStartGame: func(data json.RawMessage) (Event, error) {
		g, err := gameState(data)
		return StartGame{State: g}, err
	},
	types.TagRoundStart: func(data json.RawMessage) (Event, error) {
		g, err := gameState(data)
		return RoundStart{State: g}, err
	},
	types.TagNextRound: func(data json.RawMessage) (Event, error) {
		if absent(data) {
			return NextRound{}, nil
		}
		g, err := gameState(data)
		if err != nil {
			return nil, err
		}
		return NextRound{State: &g}, nil
	},
	types.TagRoundAtama: func(data json.RawMessage) (Event, error) {
		l, err := letter(data)
		return RoundAtama{Letter: l}, err
	},
	types.TagRoundOshiri: func(data json.RawMessage) (Event, error) {
		l, err := letter(data)
		return RoundOshiri{Letter: l}, err
	},
	types.TagRoundFinished: func(data json.RawMessage) (Event, error) {
		var r types.RoundResult
		if err := unmarshal(data, &r); err != nil {
			return nil, err
		}
		return RoundFinished{Result: r}, nil
	},
	types.TagGameOver: func(data json.RawMessage) (Event, error) {
		var r types.GameOverResult
		if err := unmarshal(data, &r); err != nil {
			return nil, err
		}
		return GameOver{Result: r}, nil
	},
	types.TagUsernameTooLong: func(json.RawMessage) (Event, error) {
		return UsernameTooLong{}, nil
	},
	types.TagRoomNotFound: func(json.RawMessage) (Event, error) {
		return RoomNotFound{}, nil
	},
	types.TagError: func(data json.RawMessage) (Event, error) {
		var p types.ErrorMessage
		if !absent(data) {
			// a bare string is accepted as the message too
			var s string
			if json.Unmarshal(data, &s) == nil {
				return Error{Message: s}, nil
			}
			if err := unmarshal(data, &p); err != nil {
				return nil, err
			}
		}
		return Error{Message: p.Message}, nil
	},
}

// Only ever sent by clients; a server echo of one is dropped.
var outboundOnly = map[types.Tag]bool{
	types.TagJoinGame:          true,
	types.TagPlayerInput:       true,
	types.TagResetGame:         true,
	types.TagUpdateGameOptions: true,
}

// Decode parses one raw frame into an Event.
func Decode(raw []byte) (Event, error) {
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	dec, ok := decoders[env.Type]
	if !ok {
		if outboundOnly[env.Type] {
			return nil, fmt.Errorf("%w: %s", ErrOutboundOnly, env.Type)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, env.Type)
	}
	ev, err := dec(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", env.Type, err)
	}
	return ev, nil
}

func absent(data json.RawMessage) bool {
	s := strings.TrimSpace(string(data))
	return s == "" || s == "null" || s == "{}"
}

func unmarshal(data json.RawMessage, v any) error {
	if absent(data) && string(data) != "{}" {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func gameState(data json.RawMessage) (types.GameState, error) {
	var g types.GameState
	err := unmarshal(data, &g)
	return g, err
}

// letter accepts a single ASCII letter in either case and returns it upper-cased.
func letter(data json.RawMessage) (string, error) {
	var p types.Letter
	if err := unmarshal(data, &p); err != nil {
		return "", err
	}
	l := strings.ToUpper(strings.TrimSpace(p.Letter))
	if len(l) != 1 || l[0] < 'A' || l[0] > 'Z' {
		return "", fmt.Errorf("%w: bad letter %q", ErrMalformed, p.Letter)
	}
	return l, nil
}
