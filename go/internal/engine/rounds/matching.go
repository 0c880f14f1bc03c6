package rounds

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

// matchingStrategy: teams submit pairings between two columns. Correct pairs
// lock in; every wrong pair costs the mistake penalty. Teams are ranked
// ascending by mistakes at round end.
type matchingStrategy struct{}

func (matchingStrategy) Type() models.QuestionType { return models.QuestionTypeMatching }

func (matchingStrategy) Prepare(env *Env) error {
	env.Live.Matches = make(map[int]int)
	env.Live.MistakeCounts = make(map[uuid.UUID]int)
	env.setAllPlayers(models.PlayerStatusActive)
	return nil
}

func (s matchingStrategy) Handle(env *Env, act Action) (*Outcome, error) {
	if act.Kind != ActionSubmitMatches {
		return nil, errUnsupported(s.Type(), act.Kind)
	}
	if len(act.Matches) == 0 {
		return nil, fmt.Errorf("%w: empty match set", store.ErrPrecondition)
	}
	if env.Live.Matches == nil {
		env.Live.Matches = make(map[int]int)
	}

	wrong := 0
	for left, right := range act.Matches {
		want, ok := env.Base.MatchPairs[left]
		if !ok {
			return nil, fmt.Errorf("%w: unknown left item %d", store.ErrPrecondition, left)
		}
		if _, done := env.Live.Matches[left]; done {
			continue // already locked in by an earlier submission
		}
		if right == want {
			env.Live.Matches[left] = right
		} else {
			wrong++
		}
	}

	if wrong > 0 {
		for i := 0; i < wrong; i++ {
			env.mistake(act.TeamID)
		}
		env.award(act.TeamID, wrong*env.Round.MistakePenalty)
	}

	if len(env.Live.Matches) >= len(env.Base.MatchPairs) {
		return &Outcome{Winner: uuidPtr(act.TeamID), Correct: true}, nil
	}
	return nil, nil
}

func (matchingStrategy) Expire(env *Env) (*Outcome, error) {
	return &Outcome{Correct: false}, nil
}

func (matchingStrategy) MaxPoints(r *models.Round, bases []*models.BaseQuestion) int {
	// Penalty type: nothing positive can be earned, the theoretical
	// maximum is a clean sheet.
	return 0
}
