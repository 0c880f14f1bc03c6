package rounds

import (
	"fmt"

	"github.com/trivium-live/trivium/go/internal/engine/chooser"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

// enumerationStrategy: a team bets it can name N items, then names them while
// the organizer counts. Reaching the bet wins the fixed reward; one rejected
// item fails the challenge.
type enumerationStrategy struct{}

func (enumerationStrategy) Type() models.QuestionType { return models.QuestionTypeEnumeration }

func (enumerationStrategy) Prepare(env *Env) error {
	env.Live.Challenger = nil
	team, err := chooser.Current(env.Chooser)
	if err != nil {
		return err
	}
	env.splitPlayers(team)
	return nil
}

func (s enumerationStrategy) Handle(env *Env, act Action) (*Outcome, error) {
	switch act.Kind {
	case ActionChallenge:
		if env.Live.Challenger != nil {
			return nil, fmt.Errorf("%w: challenge already placed", store.ErrPrecondition)
		}
		if act.Bet <= 0 {
			return nil, fmt.Errorf("%w: bet must be positive", store.ErrPrecondition)
		}
		env.Live.Challenger = &models.Challenger{TeamID: act.TeamID, Bet: act.Bet}
		env.splitPlayers(act.TeamID)
		return nil, nil

	case ActionAnswer:
		ch := env.Live.Challenger
		if ch == nil {
			return nil, fmt.Errorf("%w: no challenge placed", store.ErrPrecondition)
		}
		if !act.Correct {
			// One rejected item sinks the whole challenge.
			return &Outcome{Correct: false}, nil
		}
		ch.Found++
		if ch.Found >= ch.Bet {
			return &Outcome{Winner: uuidPtr(ch.TeamID), Correct: true, Reward: env.Round.RewardPerQuestion}, nil
		}
		return nil, nil

	default:
		return nil, errUnsupported(s.Type(), act.Kind)
	}
}

func (enumerationStrategy) Expire(env *Env) (*Outcome, error) {
	// Time ran out mid-enumeration: the bet was not met.
	return &Outcome{Correct: false}, nil
}

func (enumerationStrategy) MaxPoints(r *models.Round, bases []*models.BaseQuestion) int {
	return len(bases) * r.RewardPerQuestion
}
