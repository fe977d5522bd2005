package inputsync

import (
	"errors"

	"github.com/DoyleJ11/oshiri-client/pkg/types"
	"go.uber.org/zap"
)

var ErrFollower = errors.New("only the leader publishes input")

// Sender is the outbound half of the connection.
type Sender interface {
	Send(env types.Envelope) error
}

// Update is one change to the leader's word middle.
type Update struct {
	Leader bool
	Token  string
	RoomID string
	Input  string
}

// Channel pushes the leader's typing to the server. Followers never
// publish; they only read GameState.Input.
type Channel struct {
	sender Sender
	logger *zap.Logger
}

func New(sender Sender, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{sender: sender, logger: logger}
}

// Normalize upper-cases and truncates input to what the server accepts.
func Normalize(s string) string {
	r := []rune(s)
	if len(r) > types.MaxInputLen {
		r = r[:types.MaxInputLen]
	}
	out := make([]rune, 0, len(r))
	for _, c := range r {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// Publish sends one PLAYER_INPUT. Send failures are logged and not retried;
// a dead connection is reported by the connection manager.
func (c *Channel) Publish(u Update) error {
	if !u.Leader {
		return ErrFollower
	}
	env, err := types.NewEnvelope(types.TagPlayerInput, types.PlayerInput{
		Token:  u.Token,
		RoomID: u.RoomID,
		Input:  u.Input,
	})
	if err != nil {
		return err
	}
	if err := c.sender.Send(env); err != nil {
		c.logger.Debug("player input not sent", zap.Error(err))
	}
	return nil
}
