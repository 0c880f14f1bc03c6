package rounds

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/trivium-live/trivium/go/internal/engine/buzzer"
	"github.com/trivium-live/trivium/go/internal/engine/chooser"
	"github.com/trivium-live/trivium/go/internal/engine/score"
	"github.com/trivium-live/trivium/go/internal/engine/timer"
	"github.com/trivium-live/trivium/go/internal/events"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

// Orchestrator drives round-level transitions by delegating to the active
// question-type strategy. Every method runs inside one store transaction
// owned by the game state machine; the orchestrator reads what it needs and
// writes what it changes.
type Orchestrator struct {
	table map[models.QuestionType]Strategy
}

// NewOrchestrator builds an orchestrator over the closed strategy table.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{table: NewStrategyTable()}
}

func (o *Orchestrator) strategyFor(t models.QuestionType) (Strategy, error) {
	s, ok := o.table[t]
	if !ok {
		return nil, fmt.Errorf("%w: no strategy for question type %s", store.ErrNotFound, t)
	}
	return s, nil
}

// SelectRound starts the given round: fixes the rotation order at the first
// round, stamps the round order and start time, and freezes MaxPoints under
// the completion-rate policy.
func (o *Orchestrator) SelectRound(tx store.Tx, game *models.Game, roundID uuid.UUID) error {
	round, err := tx.Round(roundID)
	if err != nil {
		return err
	}
	if round.Started() {
		return fmt.Errorf("%w: round %s already started", store.ErrPrecondition, roundID)
	}

	ch, err := tx.Chooser()
	if err != nil {
		return err
	}
	chooser.InitOrder(ch, game.TeamIDs, tx.Now().UnixNano())
	if err := tx.PutChooser(ch); err != nil {
		return err
	}

	now := tx.Now()
	game.RoundsPlayed++
	round.Order = game.RoundsPlayed
	round.DateStart = &now
	round.QuestionCursor = 0
	round.SectionIdx = 0

	if game.ScorePolicy == models.ScorePolicyCompletionRate {
		strat, err := o.strategyFor(round.Type)
		if err != nil {
			return err
		}
		bases, err := o.roundBases(tx, round)
		if err != nil {
			return err
		}
		mp := strat.MaxPoints(round, bases)
		round.MaxPoints = &mp
	}
	if err := tx.PutRound(round); err != nil {
		return err
	}
	if err := tx.PutRoundScore(models.NewRoundScore(game.ID, round.ID, game.TeamIDs)); err != nil {
		return err
	}

	game.CurrentRoundID = &round.ID
	game.CurrentQuestionID = nil
	to := models.GameStatusRoundStart
	if round.Type == models.QuestionTypeSpecial {
		to = models.GameStatusSpecial
	}
	if err := o.setStatus(tx, game, to); err != nil {
		return err
	}
	return tx.Emit(events.TypeRoundStarted, events.RoundStartedPayload{
		RoundID:   round.ID.String(),
		RoundType: string(round.Type),
		Order:     round.Order,
		StartedAt: now,
		MaxPoints: round.MaxPoints,
	})
}

// NextQuestion advances the round to its next question and prepares a fresh
// attempt: player statuses reset, countdown reloaded, DateStart stamped.
func (o *Orchestrator) NextQuestion(tx store.Tx, game *models.Game) error {
	round, err := o.currentRound(tx, game)
	if err != nil {
		return err
	}
	qid, err := o.nextQuestionID(tx, game, round)
	if err != nil {
		return err
	}
	base, err := tx.BaseQuestion(qid)
	if err != nil {
		return err
	}

	now := tx.Now()
	live, err := tx.GameQuestion(round.ID, qid)
	switch {
	case errors.Is(err, store.ErrNotFound):
		live = &models.GameQuestion{
			ID:         uuid.New(),
			RoundID:    round.ID,
			QuestionID: qid,
			Type:       base.Type,
		}
	case err != nil:
		return err
	default:
		resetLive(live)
	}
	live.ManagerID = game.OrganizerID
	live.DateStart = &now

	tm, err := tx.Timer()
	if err != nil {
		return err
	}
	timer.Reset(tm, thinkTime(round), now)

	teams, err := tx.Teams()
	if err != nil {
		return err
	}
	rs, err := tx.RoundScore(round.ID)
	if err != nil {
		return err
	}
	ch, err := tx.Chooser()
	if err != nil {
		return err
	}
	env := &Env{Tx: tx, Game: game, Round: round, Base: base, Live: live, Teams: teams, Score: rs, Chooser: ch, Timer: tm}

	// The rotation moves only when a fresh question starts; re-running
	// Prepare (question reset) must not pass the turn.
	if rotatesChooser(base.Type) {
		if err := rotateChooser(env); err != nil {
			return err
		}
	}

	strat, err := o.strategyFor(round.Type)
	if err != nil {
		return err
	}
	if err := strat.Prepare(env); err != nil {
		return err
	}
	if err := o.putEnv(tx, env); err != nil {
		return err
	}

	game.CurrentQuestionID = &qid
	game.CurrentQuestionType = base.Type
	to := models.GameStatusQuestionActive
	if round.Type == models.QuestionTypeSpecial {
		to = models.GameStatusSpecial
	}
	if err := o.setStatus(tx, game, to); err != nil {
		return err
	}
	if err := emitTimer(tx, tm); err != nil {
		return err
	}
	return tx.Emit(events.TypeQuestionStarted, events.QuestionStartedPayload{
		RoundID:      round.ID.String(),
		QuestionID:   qid.String(),
		QuestionType: string(base.Type),
		StartedAt:    now,
		ThinkTimeSec: tm.DurationSec,
	})
}

// HandleAction routes one organizer or player command to the active
// strategy and concludes the question when the strategy says so.
func (o *Orchestrator) HandleAction(tx store.Tx, game *models.Game, act Action) error {
	env, err := o.loadEnv(tx, game)
	if err != nil {
		return err
	}
	if env.Live.Ended() {
		return fmt.Errorf("%w: question already ended", store.ErrPrecondition)
	}
	if playerKind(act.Kind) && !env.Timer.Authorized {
		return fmt.Errorf("%w: players not authorized", store.ErrPrecondition)
	}
	// Player commands carry only the player; the team is resolved here so
	// clients cannot act for a team they are not on.
	if act.TeamID == uuid.Nil && act.PlayerID != "" {
		team, ok := env.teamOf(act.PlayerID)
		if !ok {
			return fmt.Errorf("%w: player %s has no team", store.ErrPrecondition, act.PlayerID)
		}
		act.TeamID = team
	}

	strat, err := o.strategyFor(env.Round.Type)
	if err != nil {
		return err
	}
	out, err := strat.Handle(env, act)
	if err != nil {
		return err
	}
	if err := o.putEnv(tx, env); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return o.finish(tx, game, env, out)
}

// Expire concludes the question after its countdown ran out; equivalent to a
// wrong answer and idempotent against duplicate delivery because the timer
// reaches END on the first application.
func (o *Orchestrator) Expire(tx store.Tx, game *models.Game) error {
	env, err := o.loadEnv(tx, game)
	if err != nil {
		return err
	}
	if env.Live.Ended() {
		return fmt.Errorf("%w: question already ended", store.ErrPrecondition)
	}
	if !timer.Expired(env.Timer, tx.Now()) {
		return fmt.Errorf("%w: countdown still running", store.ErrPrecondition)
	}

	strat, err := o.strategyFor(env.Round.Type)
	if err != nil {
		return err
	}
	out, err := strat.Expire(env)
	if err != nil {
		return err
	}
	if out == nil {
		out = &Outcome{Correct: false}
	}
	if err := o.putEnv(tx, env); err != nil {
		return err
	}
	return o.finish(tx, game, env, out)
}

// ResetQuestion clears the current attempt back to its initial shape and
// restarts it. Recovery path for a stuck question.
func (o *Orchestrator) ResetQuestion(tx store.Tx, game *models.Game) error {
	env, err := o.loadEnv(tx, game)
	if err != nil {
		return err
	}
	resetLive(env.Live)
	now := tx.Now()
	env.Live.DateStart = &now
	timer.Reset(env.Timer, thinkTime(env.Round), now)

	strat, err := o.strategyFor(env.Round.Type)
	if err != nil {
		return err
	}
	if err := strat.Prepare(env); err != nil {
		return err
	}
	if err := o.putEnv(tx, env); err != nil {
		return err
	}
	to := models.GameStatusQuestionActive
	if env.Round.Type == models.QuestionTypeSpecial {
		to = models.GameStatusSpecial
	}
	if err := o.setStatus(tx, game, to); err != nil {
		return err
	}
	if err := emitTimer(tx, env.Timer); err != nil {
		return err
	}
	return tx.Emit(events.TypeQuestionReset, map[string]any{
		"question_id": env.Live.QuestionID.String(),
	})
}

// ClearBuzzer empties the race queue; cancellations persist.
func (o *Orchestrator) ClearBuzzer(tx store.Tx, game *models.Game) error {
	env, err := o.loadEnv(tx, game)
	if err != nil {
		return err
	}
	if env.Live.Buzzer == nil {
		return fmt.Errorf("%w: not a buzzer question", store.ErrPrecondition)
	}
	buzzer.Clear(env.Live.Buzzer)
	// Nobody holds the floor anymore; the former head must drop its focus.
	env.setAllPlayers(models.PlayerStatusActive)
	if err := tx.PutGameQuestion(env.Live); err != nil {
		return err
	}
	return emitBuzzerChanged(env)
}

// EndRound closes the current round: applies the game's score policy, stores
// the sorted standings and folds the result into the game-level aggregate.
func (o *Orchestrator) EndRound(tx store.Tx, game *models.Game) error {
	round, err := o.currentRound(tx, game)
	if err != nil {
		return err
	}
	if round.DateEnd != nil {
		return fmt.Errorf("%w: round already ended", store.ErrPrecondition)
	}
	rs, err := tx.RoundScore(round.ID)
	if err != nil {
		return err
	}

	ascending := ranksByMistakes(round.Type)
	metric := rs.Scores
	if ascending {
		metric = make(map[uuid.UUID]int, len(game.TeamIDs))
		for _, t := range game.TeamIDs {
			metric[t] = rs.Mistakes[t]
		}
	}

	roundPoints := make(map[uuid.UUID]int, len(game.TeamIDs))
	groups := score.Rank(metric, game.TeamIDs, ascending)
	switch game.ScorePolicy {
	case models.ScorePolicyRanking:
		score.ApplyRewards(groups, game.RewardsTable)
		for _, g := range groups {
			for _, t := range g.Teams {
				roundPoints[t] = g.Reward
			}
		}
	case models.ScorePolicyCompletionRate:
		max := 0
		if round.MaxPoints != nil {
			max = *round.MaxPoints
		}
		for _, t := range game.TeamIDs {
			roundPoints[t] = score.CompletionRate(rs.Scores[t], max)
		}
	default:
		return fmt.Errorf("%w: unknown score policy %s", store.ErrPrecondition, game.ScorePolicy)
	}
	rs.SortedTeams = groups
	if err := tx.PutRoundScore(rs); err != nil {
		return err
	}

	gs, err := tx.GameScore()
	if err != nil {
		return err
	}
	score.AggregateRound(gs, round.ID, roundPoints, game.TeamIDs)
	if err := tx.PutGameScore(gs); err != nil {
		return err
	}

	now := tx.Now()
	round.DateEnd = &now
	if err := tx.PutRound(round); err != nil {
		return err
	}
	if err := o.setStatus(tx, game, models.GameStatusRoundEnd); err != nil {
		return err
	}
	if err := emitScores(tx, rs); err != nil {
		return err
	}
	return tx.Emit(events.TypeRoundEnded, events.RoundEndedPayload{
		RoundID: round.ID.String(),
		EndedAt: now,
	})
}

// finish is the shared end-of-question path: final award, statuses back to
// idle, countdown ended, section advance for special rounds.
func (o *Orchestrator) finish(tx store.Tx, game *models.Game, env *Env, out *Outcome) error {
	now := tx.Now()
	env.Live.DateEnd = &now
	env.Live.Correct = boolPtr(out.Correct)
	env.Live.WinnerTeamID = out.Winner

	if out.Winner != nil && out.Reward != 0 {
		env.award(*out.Winner, out.Reward)
	} else {
		score.MarkBoundary(env.Score, env.Live.QuestionID)
	}
	env.setAllPlayers(models.PlayerStatusIdle)

	if env.Timer.Status != models.TimerStatusEnd {
		if err := timer.End(env.Timer, env.Timer.ManagedBy, now); err != nil {
			return err
		}
	}
	if err := o.putEnv(tx, env); err != nil {
		return err
	}

	if env.Round.Type == models.QuestionTypeSpecial {
		if err := o.advanceSection(tx, env); err != nil {
			return err
		}
	} else if err := o.setStatus(tx, game, models.GameStatusQuestionEnd); err != nil {
		return err
	}

	winner := ""
	if out.Winner != nil {
		winner = out.Winner.String()
	}
	if err := tx.Emit(events.TypeAnswerJudged, events.AnswerJudgedPayload{
		QuestionID:   env.Live.QuestionID.String(),
		WinnerTeamID: winner,
		Correct:      out.Correct,
		Reward:       out.Reward,
		JudgedAt:     now,
	}); err != nil {
		return err
	}
	if err := emitScores(tx, env.Score); err != nil {
		return err
	}
	return emitTimer(tx, env.Timer)
}

// advanceSection moves the special round's inner cursor and eliminates the
// trailing team when a section completes. The round stays in SPECIAL status;
// the organizer drives the next question or ends the round.
func (o *Orchestrator) advanceSection(tx store.Tx, env *Env) error {
	round := env.Round
	if round.SectionIdx >= len(round.Sections) {
		return nil
	}
	section := round.Sections[round.SectionIdx]
	if round.QuestionCursor < len(section.QuestionIDs) {
		return nil // section still has questions
	}

	round.SectionIdx++
	round.QuestionCursor = 0

	// Elimination theme: the lowest-scoring team still in play drops out.
	var loser *uuid.UUID
	for _, t := range env.Game.TeamIDs {
		eliminated := false
		for _, e := range round.EliminatedTeams {
			if e == t {
				eliminated = true
				break
			}
		}
		if eliminated {
			continue
		}
		if loser == nil || env.Score.Scores[t] < env.Score.Scores[*loser] {
			loser = uuidPtr(t)
		}
	}
	// Keep at least one team in play.
	if loser != nil && len(round.EliminatedTeams)+1 < len(env.Game.TeamIDs) {
		round.EliminatedTeams = append(round.EliminatedTeams, *loser)
	}
	return tx.PutRound(round)
}

func (o *Orchestrator) currentRound(tx store.Tx, game *models.Game) (*models.Round, error) {
	if game.CurrentRoundID == nil {
		return nil, fmt.Errorf("%w: no round selected", store.ErrPrecondition)
	}
	return tx.Round(*game.CurrentRoundID)
}

// nextQuestionID picks the next question of the round, honoring the game's
// draw mode, and advances the round cursor.
func (o *Orchestrator) nextQuestionID(tx store.Tx, game *models.Game, round *models.Round) (uuid.UUID, error) {
	if round.Type == models.QuestionTypeSpecial {
		if round.SectionIdx >= len(round.Sections) {
			return uuid.Nil, fmt.Errorf("%w: special round exhausted", store.ErrPrecondition)
		}
		section := round.Sections[round.SectionIdx]
		if round.QuestionCursor >= len(section.QuestionIDs) {
			return uuid.Nil, fmt.Errorf("%w: section exhausted", store.ErrPrecondition)
		}
		qid := section.QuestionIDs[round.QuestionCursor]
		round.QuestionCursor++
		return qid, tx.PutRound(round)
	}

	if round.QuestionCursor >= len(round.QuestionIDs) {
		return uuid.Nil, fmt.Errorf("%w: round exhausted", store.ErrPrecondition)
	}
	idx := round.QuestionCursor
	if game.Kind == models.GameKindRandomPool {
		// Draw a random remaining question and swap it into cursor
		// position so the played prefix stays stable.
		rng := rand.New(rand.NewSource(tx.Now().UnixNano()))
		pick := idx + rng.Intn(len(round.QuestionIDs)-idx)
		round.QuestionIDs[idx], round.QuestionIDs[pick] = round.QuestionIDs[pick], round.QuestionIDs[idx]
	}
	qid := round.QuestionIDs[idx]
	round.QuestionCursor++
	return qid, tx.PutRound(round)
}

func (o *Orchestrator) loadEnv(tx store.Tx, game *models.Game) (*Env, error) {
	round, err := o.currentRound(tx, game)
	if err != nil {
		return nil, err
	}
	if game.CurrentQuestionID == nil {
		return nil, fmt.Errorf("%w: no active question", store.ErrPrecondition)
	}
	base, err := tx.BaseQuestion(*game.CurrentQuestionID)
	if err != nil {
		return nil, err
	}
	live, err := tx.GameQuestion(round.ID, base.ID)
	if err != nil {
		return nil, err
	}
	teams, err := tx.Teams()
	if err != nil {
		return nil, err
	}
	rs, err := tx.RoundScore(round.ID)
	if err != nil {
		return nil, err
	}
	ch, err := tx.Chooser()
	if err != nil {
		return nil, err
	}
	tm, err := tx.Timer()
	if err != nil {
		return nil, err
	}
	return &Env{Tx: tx, Game: game, Round: round, Base: base, Live: live, Teams: teams, Score: rs, Chooser: ch, Timer: tm}, nil
}

// putEnv writes back the documents a strategy may have touched. The store
// deduplicates unchanged writes at the version level, so writing the full
// set keeps strategies free of bookkeeping.
func (o *Orchestrator) putEnv(tx store.Tx, env *Env) error {
	if err := tx.PutGameQuestion(env.Live); err != nil {
		return err
	}
	if err := tx.PutRoundScore(env.Score); err != nil {
		return err
	}
	if err := tx.PutChooser(env.Chooser); err != nil {
		return err
	}
	return tx.PutTimer(env.Timer)
}

func (o *Orchestrator) setStatus(tx store.Tx, game *models.Game, to models.GameStatus) error {
	from := game.Status
	game.Status = to
	if from == to {
		return nil
	}
	return tx.Emit(events.TypeGameStatusChanged, events.GameStatusChangedPayload{
		GameID: game.ID.String(),
		From:   string(from),
		To:     string(to),
	})
}

func (o *Orchestrator) roundBases(tx store.Tx, round *models.Round) ([]*models.BaseQuestion, error) {
	ids := round.QuestionIDs
	if round.Type == models.QuestionTypeSpecial {
		ids = nil
		for _, s := range round.Sections {
			ids = append(ids, s.QuestionIDs...)
		}
	}
	bases := make([]*models.BaseQuestion, 0, len(ids))
	for _, id := range ids {
		q, err := tx.BaseQuestion(id)
		if err != nil {
			return nil, err
		}
		bases = append(bases, q)
	}
	return bases, nil
}

// ranksByMistakes reports whether the round type ranks ascending by mistake
// count instead of descending by score.
func ranksByMistakes(t models.QuestionType) bool {
	return t == models.QuestionTypeMatching || t == models.QuestionTypeOddOneOut
}

// playerKind reports whether the action kind is submitted by players; those
// pass only while the organizer holds the action gate open, regardless of the
// countdown status.
func playerKind(k ActionKind) bool {
	switch k {
	case ActionBuzz, ActionSelectItem, ActionSelectChoice, ActionSubmitMatches, ActionChallenge:
		return true
	}
	return false
}

// rotatesChooser reports whether the question type consumes one turn of the
// team rotation when a fresh question starts.
func rotatesChooser(t models.QuestionType) bool {
	switch t {
	case models.QuestionTypeBasic, models.QuestionTypeMCQ, models.QuestionTypeEnumeration:
		return true
	}
	return false
}

// rotateChooser resets the cursor on the round's first question and advances
// it one team otherwise, so chooser-restricted types walk the rotation.
func rotateChooser(env *Env) error {
	if !env.Chooser.Initialized() {
		return chooser.ErrEmptyOrder
	}
	if env.Round.QuestionCursor <= 1 {
		return chooser.ResetIndex(env.Chooser)
	}
	chooser.Advance(env.Chooser, nil)
	return nil
}

func thinkTime(round *models.Round) int {
	if round.ThinkTimeSec > 0 {
		return round.ThinkTimeSec
	}
	return defaultThinkTimeSec
}

const defaultThinkTimeSec = 30

// resetLive clears all mutable sub-state of an attempt without touching the
// authored question.
func resetLive(q *models.GameQuestion) {
	q.DateStart = nil
	q.DateEnd = nil
	q.WinnerTeamID = nil
	q.Correct = nil
	q.Revealed = 0
	q.FoundElements = nil
	q.SelectedItems = nil
	q.Matches = nil
	q.MistakeCounts = nil
	q.ExcludedTeams = nil
	q.Buzzer = nil
	q.Challenger = nil
	q.Players = nil
}

func emitTimer(tx store.Tx, tm *models.Timer) error {
	return tx.Emit(events.TypeTimerChanged, events.TimerChangedPayload{
		Status:       string(tm.Status),
		DurationSec:  tm.DurationSec,
		RemainingSec: tm.RemainingSec,
		Authorized:   tm.Authorized,
		ManagedBy:    tm.ManagedBy,
		Timestamp:    tm.Timestamp,
	})
}

func emitScores(tx store.Tx, rs *models.RoundScore) error {
	flat := make(map[string]int, len(rs.Scores))
	for team, s := range rs.Scores {
		flat[team.String()] = s
	}
	return tx.Emit(events.TypeScoreUpdated, events.ScoreUpdatedPayload{
		RoundID: rs.RoundID.String(),
		Scores:  flat,
	})
}
