package main

import (
	"testing"

	"github.com/DoyleJ11/oshiri-client/internal/round"
	"github.com/DoyleJ11/oshiri-client/internal/session"
	"github.com/DoyleJ11/oshiri-client/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadline_RoundNamesLeaderForFollowers(t *testing.T) {
	g := &types.GameState{Started: true, Round: 2, MaxRounds: 5, PlayerQueue: []types.Player{
		{Username: "alice", IsLeader: true}, {Username: "bob"},
	}}
	v := session.View{
		Screen:    session.ScreenRound,
		Connected: true,
		Phase:     round.PhaseAwaitingInput,
		Atama:     round.Letter{Value: "K", Pinned: true},
		Oshiri:    round.Letter{Rolling: true},
		Input:     "IT",
		Game:      g,
	}
	assert.Equal(t, "round awaiting_input K_IT_? round 2/5 (alice is typing)", headline(v))

	v.IsLeader = true
	v.InputEnabled = true
	assert.Equal(t, "round awaiting_input K_IT_? round 2/5 [your turn]", headline(v))
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"3", "30", "100"})
	require.NoError(t, err)
	assert.Equal(t, types.GameOptions{MaxRounds: 3, RoundTime: 30, MinWordCombinations: 100}, opts)

	_, err = parseOptions([]string{"3", "x", "100"})
	assert.Error(t, err)
	_, err = parseOptions([]string{"3"})
	assert.Error(t, err)
}
