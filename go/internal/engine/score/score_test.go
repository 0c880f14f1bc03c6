package score

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/trivium-live/trivium/go/internal/models"
)

var (
	teamA = uuid.New()
	teamB = uuid.New()
	teamC = uuid.New()
	order = []uuid.UUID{teamA, teamB, teamC}
)

func TestRankTiesShareBucket(t *testing.T) {
	scores := map[uuid.UUID]int{teamA: 3, teamB: 5, teamC: 3}

	groups := Rank(scores, order, false)

	want := []models.RankGroup{
		{Rank: 1, Teams: []uuid.UUID{teamB}, Score: 5},
		{Rank: 2, Teams: []uuid.UUID{teamA, teamC}, Score: 3},
	}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Fatalf("rank mismatch (-want +got):\n%s", diff)
	}
}

func TestRankAscendingForMistakeCounts(t *testing.T) {
	mistakes := map[uuid.UUID]int{teamA: 2, teamB: 0, teamC: 1}

	groups := Rank(mistakes, order, true)

	if groups[0].Teams[0] != teamB || groups[2].Teams[0] != teamA {
		t.Fatalf("ascending rank order wrong: %+v", groups)
	}
}

func TestRankTiedBucketKeepsCreationOrder(t *testing.T) {
	scores := map[uuid.UUID]int{teamA: 1, teamB: 1, teamC: 1}

	groups := Rank(scores, order, false)

	if len(groups) != 1 {
		t.Fatalf("got %d buckets, want 1", len(groups))
	}
	if diff := cmp.Diff(order, groups[0].Teams); diff != "" {
		t.Fatalf("tied bucket order (-want +got):\n%s", diff)
	}
}

func TestApplyRewardsPastTableLength(t *testing.T) {
	groups := []models.RankGroup{
		{Rank: 1, Teams: []uuid.UUID{teamA}},
		{Rank: 2, Teams: []uuid.UUID{teamB}},
		{Rank: 3, Teams: []uuid.UUID{teamC}},
	}
	ApplyRewards(groups, []int{5, 3})

	if groups[0].Reward != 5 || groups[1].Reward != 3 || groups[2].Reward != 0 {
		t.Fatalf("rewards = %d/%d/%d, want 5/3/0",
			groups[0].Reward, groups[1].Reward, groups[2].Reward)
	}
}

func TestCompletionRateRounds(t *testing.T) {
	cases := []struct {
		points, max, want int
	}{
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{0, 3, 0},
		{1, 0, 0}, // no theoretical maximum
	}
	for _, c := range cases {
		if got := CompletionRate(c.points, c.max); got != c.want {
			t.Errorf("CompletionRate(%d, %d) = %d, want %d", c.points, c.max, got, c.want)
		}
	}
}

func TestAwardMarksEveryTeam(t *testing.T) {
	rs := models.NewRoundScore(uuid.New(), uuid.New(), order)
	q1 := uuid.New()

	Award(rs, q1, teamA, 2)

	if rs.Scores[teamA] != 2 {
		t.Fatalf("teamA score = %d, want 2", rs.Scores[teamA])
	}
	for _, team := range order {
		if _, ok := rs.ScoresProgress[team][q1]; !ok {
			t.Fatalf("team %s missing progress entry at boundary", team)
		}
	}
	if rs.ScoresProgress[teamB][q1] != 0 {
		t.Fatal("non-winning team boundary entry should be its cumulative score")
	}
}

func TestAggregateRoundComputesDiffs(t *testing.T) {
	gs := models.NewGameScore(uuid.New(), order)

	// Round one: B leads, then A overtakes in round two.
	AggregateRound(gs, uuid.New(), map[uuid.UUID]int{teamA: 1, teamB: 3, teamC: 2}, order)
	if gs.RankingDiffs != nil {
		t.Fatal("diffs present with no previous round")
	}

	AggregateRound(gs, uuid.New(), map[uuid.UUID]int{teamA: 5, teamB: 0, teamC: 0}, order)

	wantScores := map[uuid.UUID]int{teamA: 6, teamB: 3, teamC: 2}
	if diff := cmp.Diff(wantScores, gs.Scores); diff != "" {
		t.Fatalf("totals (-want +got):\n%s", diff)
	}
	wantDiffs := map[uuid.UUID]int{teamA: 2, teamB: -1, teamC: -1}
	if diff := cmp.Diff(wantDiffs, gs.RankingDiffs); diff != "" {
		t.Fatalf("ranking diffs (-want +got):\n%s", diff)
	}
	if gs.SortedTeams[0].Teams[0] != teamA {
		t.Fatalf("standings leader = %s, want teamA", gs.SortedTeams[0].Teams[0])
	}
}
