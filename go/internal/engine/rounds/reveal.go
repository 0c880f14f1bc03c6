package rounds

import (
	"fmt"

	"github.com/trivium-live/trivium/go/internal/events"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

// revealStrategy covers the label and quote types: a set of elements is
// uncovered piece by piece, each credited element pays the per-element
// reward. One implementation, two registrations.
type revealStrategy struct {
	typ      models.QuestionType
	elements func(*models.BaseQuestion) []string
}

func newLabelStrategy() revealStrategy {
	return revealStrategy{
		typ:      models.QuestionTypeLabel,
		elements: func(q *models.BaseQuestion) []string { return q.Labels },
	}
}

func newQuoteStrategy() revealStrategy {
	return revealStrategy{
		typ:      models.QuestionTypeQuote,
		elements: func(q *models.BaseQuestion) []string { return q.QuoteParts },
	}
}

func (s revealStrategy) Type() models.QuestionType { return s.typ }

func (s revealStrategy) Prepare(env *Env) error {
	env.Live.Revealed = 0
	env.Live.FoundElements = nil
	env.setAllPlayers(models.PlayerStatusActive)
	return nil
}

func (s revealStrategy) Handle(env *Env, act Action) (*Outcome, error) {
	total := len(s.elements(env.Base))

	switch act.Kind {
	case ActionReveal:
		// Organizer uncovers the next element without crediting anyone.
		if env.Live.Revealed >= total {
			return nil, fmt.Errorf("%w: nothing left to reveal", store.ErrPrecondition)
		}
		env.Live.Revealed++
		if err := env.Tx.Emit(events.TypeElementRevealed, map[string]any{
			"question_id": env.Live.QuestionID.String(),
			"revealed":    env.Live.Revealed,
		}); err != nil {
			return nil, err
		}
		if env.Live.Revealed >= total {
			return &Outcome{Correct: len(env.Live.FoundElements) > 0}, nil
		}
		return nil, nil

	case ActionSelectItem:
		// A team identified element act.Index: credit it immediately.
		if act.Index < 0 || act.Index >= total {
			return nil, fmt.Errorf("%w: element %d out of range", store.ErrPrecondition, act.Index)
		}
		if env.Live.ElementFound(act.Index) {
			return nil, fmt.Errorf("%w: element %d already credited", store.ErrPrecondition, act.Index)
		}
		env.Live.FoundElements = append(env.Live.FoundElements, act.Index)
		env.award(act.TeamID, env.Round.RewardPerElement)
		if len(env.Live.FoundElements) >= total {
			return &Outcome{Correct: true}, nil
		}
		return nil, nil

	default:
		return nil, errUnsupported(s.typ, act.Kind)
	}
}

func (s revealStrategy) Expire(env *Env) (*Outcome, error) {
	return &Outcome{Correct: false}, nil
}

func (s revealStrategy) MaxPoints(r *models.Round, bases []*models.BaseQuestion) int {
	total := 0
	for _, q := range bases {
		total += len(s.elements(q))
	}
	return total * r.RewardPerElement
}
