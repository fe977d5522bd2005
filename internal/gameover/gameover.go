package gameover

import "github.com/DoyleJ11/oshiri-client/pkg/types"

// Podium groups the final ranking by place. Tied players share a step and
// keep the server's order within it.
type Podium struct {
	First  []types.Ranking
	Second []types.Ranking
	Third  []types.Ranking
	Rest   []types.Ranking
}

// Results holds the last GAME_OVER ranking until the room resets.
type Results struct {
	winners []types.Ranking
	set     bool
}

func (r *Results) Store(res types.GameOverResult) {
	r.winners = append([]types.Ranking(nil), res.Winners...)
	r.set = true
}

func (r *Results) Clear() {
	r.winners = nil
	r.set = false
}

// Ready reports whether a ranking has been stored.
func (r *Results) Ready() bool { return r.set }

// Winners returns the ranking exactly as the server sent it.
func (r *Results) Winners() []types.Ranking {
	return append([]types.Ranking(nil), r.winners...)
}

func (r *Results) Podium() Podium { return BuildPodium(r.winners) }

// BuildPodium places each player by the rank the server assigned.
// Ranks are not renumbered, so a two-way tie for first leaves second empty.
func BuildPodium(winners []types.Ranking) Podium {
	var p Podium
	for _, w := range winners {
		switch w.Rank {
		case 1:
			p.First = append(p.First, w)
		case 2:
			p.Second = append(p.Second, w)
		case 3:
			p.Third = append(p.Third, w)
		default:
			p.Rest = append(p.Rest, w)
		}
	}
	return p
}
