package types

// Player is the PLAYER_STATE payload and an element of GameState.PlayerQueue.
type Player struct {
	Token    string `json:"token,omitempty"`
	Username string `json:"username"`
	Ready    bool   `json:"ready"`
	Score    int    `json:"score"`
	IsLeader bool   `json:"isLeader"`
}

// GameState is the room snapshot. The first entry of PlayerQueue is the leader.
type GameState struct {
	Started          bool     `json:"started"`
	Round            int      `json:"round"`
	MaxRounds        int      `json:"maxRounds"`
	WordCombinations int      `json:"wordCombinations"`
	RoundTime        int      `json:"roundTime"`
	PlayerQueue      []Player `json:"playerQueue"`
	Input            string   `json:"input"`
	Atama            string   `json:"atama"`
	Oshiri           string   `json:"oshiri"`
	RoundOver        bool     `json:"roundOver"`
	Time             int      `json:"time"`
}

// Clone copies the snapshot so the queue can be handed out without sharing.
func (g GameState) Clone() GameState {
	out := g
	if g.PlayerQueue != nil {
		out.PlayerQueue = append([]Player(nil), g.PlayerQueue...)
	}
	return out
}

// Leader returns the head of the queue.
func (g GameState) Leader() (Player, bool) {
	if len(g.PlayerQueue) == 0 {
		return Player{}, false
	}
	return g.PlayerQueue[0], true
}

// LeaderCount counts players flagged isLeader. A healthy room has at most one.
func (g GameState) LeaderCount() int {
	n := 0
	for _, p := range g.PlayerQueue {
		if p.IsLeader {
			n++
		}
	}
	return n
}

// RoundResult is the ROUND_FINISHED payload.
type RoundResult struct {
	TopWords     []string  `json:"topWords"`
	GameState    GameState `json:"gameState"`
	Word         string    `json:"word"`
	WordAccepted bool      `json:"wordAccepted"`
}

type Ranking struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// GameOverResult is the GAME_OVER payload. Tied players share a rank.
type GameOverResult struct {
	Winners []Ranking `json:"winners"`
}
