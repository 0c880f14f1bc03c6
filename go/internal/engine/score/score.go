// Package score computes and stores round and game standings under the two
// scoring policies. The engine is policy-only: whether a type ranks ascending
// by mistakes or descending by points is decided by the calling strategy.
package score

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/trivium-live/trivium/go/internal/models"
)

// Award adds delta to one team's raw round score and appends a progress entry
// at the given boundary (question id) for every team, so progress charts have
// a value at every question boundary.
func Award(rs *models.RoundScore, boundary uuid.UUID, teamID uuid.UUID, delta int) {
	rs.Scores[teamID] += delta
	MarkBoundary(rs, boundary)
}

// MarkBoundary appends the current cumulative score of every team at the
// boundary. Used when a question ends without any points moving.
func MarkBoundary(rs *models.RoundScore, boundary uuid.UUID) {
	for team, total := range rs.Scores {
		if rs.ScoresProgress[team] == nil {
			rs.ScoresProgress[team] = make(map[uuid.UUID]int)
		}
		rs.ScoresProgress[team][boundary] = total
	}
}

// Rank groups teams into rank-tied buckets. Ascending ranks lowest score
// first (mistake-count types); descending is the usual points order. Within a
// tied bucket teams keep creationOrder, the stable display order.
func Rank(scores map[uuid.UUID]int, creationOrder []uuid.UUID, ascending bool) []models.RankGroup {
	type entry struct {
		team  uuid.UUID
		score int
		pos   int
	}
	entries := make([]entry, 0, len(scores))
	for pos, team := range creationOrder {
		if s, ok := scores[team]; ok {
			entries = append(entries, entry{team: team, score: s, pos: pos})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			if ascending {
				return entries[i].score < entries[j].score
			}
			return entries[i].score > entries[j].score
		}
		return entries[i].pos < entries[j].pos
	})

	var groups []models.RankGroup
	for _, e := range entries {
		if n := len(groups); n > 0 && groups[n-1].Score == e.score {
			groups[n-1].Teams = append(groups[n-1].Teams, e.team)
			continue
		}
		groups = append(groups, models.RankGroup{
			Rank:  len(groups) + 1,
			Teams: []uuid.UUID{e.team},
			Score: e.score,
		})
	}
	return groups
}

// ApplyRewards writes the ranking-table reward into each bucket. Tied teams
// share the reward of their bucket's rank; buckets past the table length get
// zero.
func ApplyRewards(groups []models.RankGroup, table []int) {
	for i := range groups {
		if idx := groups[i].Rank - 1; idx < len(table) {
			groups[i].Reward = table[idx]
		} else {
			groups[i].Reward = 0
		}
	}
}

// CompletionRate converts a raw score into the rounded percentage of the
// round's theoretical maximum.
func CompletionRate(points, maxPoints int) int {
	if maxPoints <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(points) / float64(maxPoints)))
}

// Ranks flattens rank buckets into a team -> rank map.
func Ranks(groups []models.RankGroup) map[uuid.UUID]int {
	ranks := make(map[uuid.UUID]int)
	for _, g := range groups {
		for _, team := range g.Teams {
			ranks[team] = g.Rank
		}
	}
	return ranks
}

// Diffs computes the signed rank movement since the previous scored round:
// positive means the team climbed. Nil when there is no previous round.
func Diffs(prev, cur map[uuid.UUID]int) map[uuid.UUID]int {
	if len(prev) == 0 {
		return nil
	}
	diffs := make(map[uuid.UUID]int, len(cur))
	for team, rank := range cur {
		if p, ok := prev[team]; ok {
			diffs[team] = p - rank
		}
	}
	return diffs
}

// AggregateRound folds one finished round into the game-level record:
// roundPoints are the per-team points the round contributed (table rewards
// under the ranking policy, completion rates otherwise). Standings and
// ranking diffs are recomputed from the new totals.
func AggregateRound(gs *models.GameScore, roundID uuid.UUID, roundPoints map[uuid.UUID]int, creationOrder []uuid.UUID) {
	for team, pts := range roundPoints {
		gs.Scores[team] += pts
	}
	for team, total := range gs.Scores {
		if gs.ScoresProgress[team] == nil {
			gs.ScoresProgress[team] = make(map[uuid.UUID]int)
		}
		gs.ScoresProgress[team][roundID] = total
	}
	gs.SortedTeams = Rank(gs.Scores, creationOrder, false)
	ranks := Ranks(gs.SortedTeams)
	gs.RankingDiffs = Diffs(gs.PrevRanks, ranks)
	gs.PrevRanks = ranks
}
