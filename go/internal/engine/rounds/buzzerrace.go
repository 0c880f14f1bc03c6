package rounds

import (
	"fmt"

	"github.com/trivium-live/trivium/go/internal/engine/buzzer"
	"github.com/trivium-live/trivium/go/internal/events"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

// buzzerStrategy: every player races to buzz; the organizer validates or
// invalidates the head of the queue. cluesStrategy embeds it and adds the
// progressive reveal.
type buzzerStrategy struct{}

func (buzzerStrategy) Type() models.QuestionType { return models.QuestionTypeBuzzer }

func (buzzerStrategy) Prepare(env *Env) error {
	env.Live.Buzzer = buzzer.New()
	env.setAllPlayers(models.PlayerStatusActive)
	return nil
}

func (s buzzerStrategy) Handle(env *Env, act Action) (*Outcome, error) {
	return handleBuzzerAction(env, s.Type(), act)
}

func (buzzerStrategy) Expire(env *Env) (*Outcome, error) {
	return &Outcome{Correct: false}, nil
}

func (buzzerStrategy) MaxPoints(r *models.Round, bases []*models.BaseQuestion) int {
	return len(bases) * r.RewardPerQuestion
}

// cluesStrategy: like a buzzer race, but the organizer reveals clues one by
// one. Invalidated players re-enter the race once the reveal passes the clue
// they were cancelled at.
type cluesStrategy struct{}

func (cluesStrategy) Type() models.QuestionType { return models.QuestionTypeClues }

func (cluesStrategy) Prepare(env *Env) error {
	env.Live.Buzzer = buzzer.New()
	env.Live.Revealed = 0
	env.setAllPlayers(models.PlayerStatusActive)
	return nil
}

func (s cluesStrategy) Handle(env *Env, act Action) (*Outcome, error) {
	if act.Kind == ActionReveal {
		if env.Live.Revealed >= len(env.Base.Clues) {
			return nil, fmt.Errorf("%w: no clue left to reveal", store.ErrPrecondition)
		}
		env.Live.Revealed++
		if err := env.Tx.Emit(events.TypeElementRevealed, map[string]any{
			"question_id": env.Live.QuestionID.String(),
			"revealed":    env.Live.Revealed,
		}); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return handleBuzzerAction(env, s.Type(), act)
}

func (cluesStrategy) Expire(env *Env) (*Outcome, error) {
	return &Outcome{Correct: false}, nil
}

func (cluesStrategy) MaxPoints(r *models.Round, bases []*models.BaseQuestion) int {
	return len(bases) * r.RewardPerQuestion
}

// handleBuzzerAction covers the race commands shared by the buzzer family.
func handleBuzzerAction(env *Env, t models.QuestionType, act Action) (*Outcome, error) {
	b := env.Live.Buzzer
	if b == nil {
		return nil, fmt.Errorf("%w: buzzer state missing", store.ErrPrecondition)
	}

	switch act.Kind {
	case ActionBuzz:
		if !buzzer.Eligible(b, act.PlayerID, env.Live.Revealed) {
			return nil, fmt.Errorf("%w: player locked out until next reveal", store.ErrPrecondition)
		}
		if !buzzer.Buzz(b, act.PlayerID) {
			// Duplicate buzz before the queue was cleared: idempotent no-op.
			return nil, nil
		}
		if head, _ := buzzer.Head(b); head == act.PlayerID {
			env.Live.Players[act.PlayerID] = models.PlayerStatusFocus
		}
		return nil, emitBuzzerChanged(env)

	case ActionValidateHead:
		head, ok := buzzer.Head(b)
		if !ok {
			return nil, fmt.Errorf("%w: empty buzzer queue", store.ErrPrecondition)
		}
		team, ok := env.teamOf(head)
		if !ok {
			return nil, fmt.Errorf("%w: player %s has no team", store.ErrNotFound, head)
		}
		return &Outcome{Winner: uuidPtr(team), Correct: true, Reward: env.Round.RewardPerQuestion}, nil

	case ActionInvalidateHead:
		head, ok := buzzer.Head(b)
		if !ok {
			return nil, fmt.Errorf("%w: empty buzzer queue", store.ErrPrecondition)
		}
		buzzer.Cancel(b, head, env.Live.Revealed, env.Tx.Now())
		env.Live.Players[head] = models.PlayerStatusIdle
		if next, ok := buzzer.Head(b); ok {
			env.Live.Players[next] = models.PlayerStatusFocus
		}
		return nil, emitBuzzerChanged(env)

	default:
		return nil, errUnsupported(t, act.Kind)
	}
}

func emitBuzzerChanged(env *Env) error {
	head, _ := buzzer.Head(env.Live.Buzzer)
	return env.Tx.Emit(events.TypeBuzzerChanged, events.BuzzerChangedPayload{
		QuestionID: env.Live.QuestionID.String(),
		Head:       head,
		Buzzed:     append([]string{}, env.Live.Buzzer.Buzzed...),
	})
}
