package inputsync

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/DoyleJ11/oshiri-client/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	sent []types.Envelope
	err  error
}

func (c *captureSender) Send(env types.Envelope) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, env)
	return nil
}

func TestPublish_LeaderSendsPlayerInput(t *testing.T) {
	s := &captureSender{}
	ch := New(s, nil)

	require.NoError(t, ch.Publish(Update{Leader: true, Token: "t1", RoomID: "r1", Input: "ABC"}))
	require.Len(t, s.sent, 1)
	assert.Equal(t, types.TagPlayerInput, s.sent[0].Type)

	var p types.PlayerInput
	require.NoError(t, json.Unmarshal(s.sent[0].Data, &p))
	assert.Equal(t, types.PlayerInput{Token: "t1", RoomID: "r1", Input: "ABC"}, p)

	// every change goes out, with no debounce
	require.NoError(t, ch.Publish(Update{Leader: true, Token: "t1", RoomID: "r1", Input: "AB"}))
	require.NoError(t, ch.Publish(Update{Leader: true, Token: "t1", RoomID: "r1", Input: "ABC"}))
	assert.Len(t, s.sent, 3)
}

func TestPublish_FollowerNeverSends(t *testing.T) {
	s := &captureSender{}
	ch := New(s, nil)

	err := ch.Publish(Update{Leader: false, Token: "t2", RoomID: "r1", Input: "ABC"})
	assert.ErrorIs(t, err, ErrFollower)
	assert.Empty(t, s.sent)
}

func TestPublish_SendFailureIsSwallowed(t *testing.T) {
	s := &captureSender{err: errors.New("not connected")}
	ch := New(s, nil)

	assert.NoError(t, ch.Publish(Update{Leader: true, Input: "A"}))
	assert.Empty(t, s.sent)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABC", Normalize("abc"))
	assert.Equal(t, "A-B", Normalize("a-B"))
	assert.Equal(t, types.MaxInputLen, len(Normalize(strings.Repeat("x", 60))))
}
