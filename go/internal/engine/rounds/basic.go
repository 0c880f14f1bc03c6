package rounds

import (
	"fmt"

	"github.com/trivium-live/trivium/go/internal/engine/chooser"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

// basicStrategy: the chooser team answers out loud and the organizer judges
// it. Single shot, fixed reward.
type basicStrategy struct{}

func (basicStrategy) Type() models.QuestionType { return models.QuestionTypeBasic }

func (basicStrategy) Prepare(env *Env) error {
	team, err := chooser.Current(env.Chooser)
	if err != nil {
		return err
	}
	env.splitPlayers(team)
	return nil
}

func (s basicStrategy) Handle(env *Env, act Action) (*Outcome, error) {
	if act.Kind != ActionAnswer {
		return nil, errUnsupported(s.Type(), act.Kind)
	}
	team, err := chooser.Current(env.Chooser)
	if err != nil {
		return nil, err
	}
	if !act.Correct {
		return &Outcome{Correct: false}, nil
	}
	return &Outcome{Winner: uuidPtr(team), Correct: true, Reward: env.Round.RewardPerQuestion}, nil
}

func (basicStrategy) Expire(env *Env) (*Outcome, error) {
	return &Outcome{Correct: false}, nil
}

func (basicStrategy) MaxPoints(r *models.Round, bases []*models.BaseQuestion) int {
	return len(bases) * r.RewardPerQuestion
}

// mcqStrategy: the chooser team picks one of the authored choices; the pick
// ends the question.
type mcqStrategy struct{}

func (mcqStrategy) Type() models.QuestionType { return models.QuestionTypeMCQ }

func (mcqStrategy) Prepare(env *Env) error {
	team, err := chooser.Current(env.Chooser)
	if err != nil {
		return err
	}
	env.splitPlayers(team)
	return nil
}

func (s mcqStrategy) Handle(env *Env, act Action) (*Outcome, error) {
	if act.Kind != ActionSelectChoice {
		return nil, errUnsupported(s.Type(), act.Kind)
	}
	if act.Index < 0 || act.Index >= len(env.Base.Choices) {
		return nil, fmt.Errorf("%w: choice %d out of range", store.ErrPrecondition, act.Index)
	}
	team, err := chooser.Current(env.Chooser)
	if err != nil {
		return nil, err
	}
	env.Live.SelectedItems = []int{act.Index}
	if act.Index != env.Base.CorrectChoice {
		return &Outcome{Correct: false}, nil
	}
	return &Outcome{Winner: uuidPtr(team), Correct: true, Reward: env.Round.RewardPerQuestion}, nil
}

func (mcqStrategy) Expire(env *Env) (*Outcome, error) {
	return &Outcome{Correct: false}, nil
}

func (mcqStrategy) MaxPoints(r *models.Round, bases []*models.BaseQuestion) int {
	return len(bases) * r.RewardPerQuestion
}
