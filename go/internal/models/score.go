package models

import "github.com/google/uuid"

// RankGroup is one rank bucket of the sorted standings. Tied teams share the
// bucket and the reward; Teams are listed in team-creation order.
type RankGroup struct {
	Rank   int         `json:"rank"` // 1-based
	Teams  []uuid.UUID `json:"teams"`
	Score  int         `json:"score"`
	Reward int         `json:"reward"`
}

// RoundScore is the per-round score record.
//
// Invariant: the last progress entry of a team equals Scores[team].
type RoundScore struct {
	RoundID uuid.UUID         `json:"round_id"`
	GameID  uuid.UUID         `json:"game_id"`
	Scores  map[uuid.UUID]int `json:"scores"`
	// ScoresProgress maps team -> question -> cumulative score at that
	// question boundary. Every team gets an entry at every boundary so
	// progress charts have no gaps.
	ScoresProgress map[uuid.UUID]map[uuid.UUID]int `json:"scores_progress"`
	SortedTeams    []RankGroup                     `json:"sorted_teams,omitempty"`
	// Mistakes accumulates per-team mistake counts for penalty types;
	// those rounds rank ascending by this counter.
	Mistakes map[uuid.UUID]int `json:"mistakes,omitempty"`
}

// GameScore aggregates round results across the whole game.
type GameScore struct {
	GameID         uuid.UUID                       `json:"game_id"`
	Scores         map[uuid.UUID]int               `json:"scores"`
	ScoresProgress map[uuid.UUID]map[uuid.UUID]int `json:"scores_progress"` // team -> round -> cumulative
	SortedTeams    []RankGroup                     `json:"sorted_teams,omitempty"`
	// RankingDiffs is the signed rank change since the previous scored
	// round; absent for the first one.
	RankingDiffs map[uuid.UUID]int `json:"ranking_diffs,omitempty"`
	// PrevRanks remembers the ranks of the previous scored round so diffs
	// can be computed incrementally.
	PrevRanks map[uuid.UUID]int `json:"prev_ranks,omitempty"`
}

// NewRoundScore returns an empty score record covering the given teams.
func NewRoundScore(gameID, roundID uuid.UUID, teamIDs []uuid.UUID) *RoundScore {
	rs := &RoundScore{
		RoundID:        roundID,
		GameID:         gameID,
		Scores:         make(map[uuid.UUID]int, len(teamIDs)),
		ScoresProgress: make(map[uuid.UUID]map[uuid.UUID]int, len(teamIDs)),
	}
	for _, id := range teamIDs {
		rs.Scores[id] = 0
		rs.ScoresProgress[id] = make(map[uuid.UUID]int)
	}
	return rs
}

// NewGameScore returns an empty aggregate covering the given teams.
func NewGameScore(gameID uuid.UUID, teamIDs []uuid.UUID) *GameScore {
	gs := &GameScore{
		GameID:         gameID,
		Scores:         make(map[uuid.UUID]int, len(teamIDs)),
		ScoresProgress: make(map[uuid.UUID]map[uuid.UUID]int, len(teamIDs)),
	}
	for _, id := range teamIDs {
		gs.Scores[id] = 0
		gs.ScoresProgress[id] = make(map[uuid.UUID]int)
	}
	return gs
}
