package rounds

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/trivium-live/trivium/go/internal/engine/chooser"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

// oddOneOutStrategy: teams take turns picking the item that does not belong.
// A wrong pick costs the mistake penalty, and a team hitting the mistake cap
// is excluded from further picks. Finding the odd item ends the question;
// no positive reward moves — the round ranks ascending by mistakes.
type oddOneOutStrategy struct{}

func (oddOneOutStrategy) Type() models.QuestionType { return models.QuestionTypeOddOneOut }

func (oddOneOutStrategy) Prepare(env *Env) error {
	if err := chooser.ResetIndex(env.Chooser); err != nil {
		return err
	}
	env.Live.SelectedItems = nil
	env.Live.MistakeCounts = make(map[uuid.UUID]int)
	env.Live.ExcludedTeams = nil
	team, err := chooser.Current(env.Chooser)
	if err != nil {
		return err
	}
	env.splitPlayers(team)
	return nil
}

func (s oddOneOutStrategy) Handle(env *Env, act Action) (*Outcome, error) {
	if act.Kind != ActionSelectItem {
		return nil, errUnsupported(s.Type(), act.Kind)
	}
	current, err := chooser.Current(env.Chooser)
	if err != nil {
		return nil, err
	}
	if act.TeamID != current {
		return nil, fmt.Errorf("%w: not team %s's turn", store.ErrPrecondition, act.TeamID)
	}
	if env.Live.TeamExcluded(act.TeamID) {
		return nil, fmt.Errorf("%w: team excluded from this question", store.ErrPrecondition)
	}
	if act.Index < 0 || act.Index >= len(env.Base.Items) {
		return nil, fmt.Errorf("%w: item %d out of range", store.ErrPrecondition, act.Index)
	}
	for _, picked := range env.Live.SelectedItems {
		if picked == act.Index {
			return nil, fmt.Errorf("%w: item %d already picked", store.ErrPrecondition, act.Index)
		}
	}

	env.Live.SelectedItems = append(env.Live.SelectedItems, act.Index)

	if act.Index == env.Base.OddIndex {
		return &Outcome{Winner: uuidPtr(act.TeamID), Correct: true}, nil
	}

	count := env.mistake(act.TeamID)
	env.award(act.TeamID, env.Round.MistakePenalty)
	if env.Round.MaxMistakes > 0 && count >= env.Round.MaxMistakes {
		env.Live.ExcludedTeams = append(env.Live.ExcludedTeams, act.TeamID)
		env.splitPlayers(uuid.Nil) // everyone idle until the cursor moves
	}

	// Pass the turn, skipping excluded teams. Nobody left means nobody
	// found the odd item.
	if !chooser.Advance(env.Chooser, env.Live.TeamExcluded) {
		return &Outcome{Correct: false}, nil
	}
	next, err := chooser.Current(env.Chooser)
	if err != nil {
		return nil, err
	}
	env.splitPlayers(next)
	return nil, nil
}

func (oddOneOutStrategy) Expire(env *Env) (*Outcome, error) {
	return &Outcome{Correct: false}, nil
}

func (oddOneOutStrategy) MaxPoints(r *models.Round, bases []*models.BaseQuestion) int {
	// Penalty type, same reasoning as matching.
	return 0
}
