package rounds

import (
	"fmt"

	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

// specialStrategy drives themed elimination rounds: sections of mixed-type
// sub-questions. Each sub-question is delegated to the strategy of its own
// type; the orchestrator advances the section cursor and eliminates the
// trailing team when a section completes.
type specialStrategy struct {
	table map[models.QuestionType]Strategy
}

func (specialStrategy) Type() models.QuestionType { return models.QuestionTypeSpecial }

func (s specialStrategy) inner(env *Env) (Strategy, error) {
	if env.Base.Type == models.QuestionTypeSpecial {
		return nil, fmt.Errorf("%w: special question cannot nest special", store.ErrPrecondition)
	}
	st, ok := s.table[env.Base.Type]
	if !ok {
		return nil, fmt.Errorf("%w: no strategy for %s", store.ErrNotFound, env.Base.Type)
	}
	return st, nil
}

func (s specialStrategy) Prepare(env *Env) error {
	st, err := s.inner(env)
	if err != nil {
		return err
	}
	return st.Prepare(env)
}

func (s specialStrategy) Handle(env *Env, act Action) (*Outcome, error) {
	st, err := s.inner(env)
	if err != nil {
		return nil, err
	}
	return st.Handle(env, act)
}

func (s specialStrategy) Expire(env *Env) (*Outcome, error) {
	st, err := s.inner(env)
	if err != nil {
		return nil, err
	}
	return st.Expire(env)
}

func (s specialStrategy) MaxPoints(r *models.Round, bases []*models.BaseQuestion) int {
	total := 0
	for _, q := range bases {
		switch q.Type {
		case models.QuestionTypeLabel, models.QuestionTypeQuote:
			total += q.Elements() * r.RewardPerElement
		case models.QuestionTypeMatching, models.QuestionTypeOddOneOut:
			// penalty sub-questions contribute nothing positive
		default:
			total += r.RewardPerQuestion
		}
	}
	return total
}

// NewStrategyTable wires the closed set of question types to their
// implementations.
func NewStrategyTable() map[models.QuestionType]Strategy {
	table := map[models.QuestionType]Strategy{
		models.QuestionTypeBasic:       basicStrategy{},
		models.QuestionTypeMCQ:         mcqStrategy{},
		models.QuestionTypeBuzzer:      buzzerStrategy{},
		models.QuestionTypeClues:       cluesStrategy{},
		models.QuestionTypeEnumeration: enumerationStrategy{},
		models.QuestionTypeLabel:       newLabelStrategy(),
		models.QuestionTypeQuote:       newQuoteStrategy(),
		models.QuestionTypeMatching:    matchingStrategy{},
		models.QuestionTypeOddOneOut:   oddOneOutStrategy{},
	}
	table[models.QuestionTypeSpecial] = specialStrategy{table: table}
	return table
}
