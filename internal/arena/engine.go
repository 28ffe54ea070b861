package arena

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/langduel/vocab-arena/internal/metrics"
	"github.com/langduel/vocab-arena/internal/question"
)

// SubmitOutcome classifies one answer attempt.
type SubmitOutcome string

const (
	// SubmitIncorrect: the local check failed. No state changed; the
	// player is locked out of this question and waits for the opponent.
	SubmitIncorrect SubmitOutcome = "incorrect"

	// SubmitCommitted: the answer was correct and the conditional commit
	// applied: score awarded, question advanced or match finished.
	SubmitCommitted SubmitOutcome = "committed"

	// SubmitTooLate: the answer was correct but the opponent advanced the
	// match first. Nothing changed and no score was awarded.
	SubmitTooLate SubmitOutcome = "too_late"
)

// ErrNotPlaying is returned for submissions against a match that is not in
// the playing state.
var ErrNotPlaying = errors.New("match is not in play")

// ErrNotParticipant is returned when the submitter is not one of the two
// players.
var ErrNotParticipant = errors.New("player is not part of this match")

// Engine applies the answer-resolution protocol against the shared store.
// It is stateless: every submission races through one conditional commit.
type Engine struct {
	store  Store
	logger zerolog.Logger
}

// NewEngine creates the match engine.
func NewEngine(store Store, logger zerolog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// SubmitAnswer resolves one answer attempt for the question the player was
// looking at. snapshot is the player's last observed match state; its
// QIndex guards the commit so a stale correct answer is discarded instead
// of double-advancing the match.
func (e *Engine) SubmitAnswer(ctx context.Context, snapshot *Match, playerUID uuid.UUID, sub question.Submission) (SubmitOutcome, error) {
	if snapshot.Status != StatusPlaying {
		return "", ErrNotPlaying
	}
	if !snapshot.IsParticipant(playerUID) {
		return "", ErrNotParticipant
	}
	q, ok := snapshot.CurrentQuestion()
	if !ok {
		return "", fmt.Errorf("question index %d out of range", snapshot.QIndex)
	}

	if !q.Check(sub) {
		metrics.AnswersSubmitted.WithLabelValues("incorrect").Inc()
		return SubmitIncorrect, nil
	}
	metrics.AnswersSubmitted.WithLabelValues("correct").Inc()

	answeredIndex := snapshot.QIndex
	var finished bool
	var newScore int

	applied, err := e.store.ConditionalUpdate(ctx, snapshot.ID,
		func(m *Match) bool {
			return m.Status == StatusPlaying && m.QIndex == answeredIndex
		},
		func(m *Match) {
			p := m.PlayerByUID(playerUID)
			if p == nil {
				// Participant check already passed against the snapshot;
				// the stored record cannot lose a player.
				return
			}
			p.Score += ScorePerQuestion
			newScore = p.Score

			if m.OnLastQuestion() {
				m.Status = StatusFinished
				m.FinishedBy = playerUID
				m.WinnerScore = newScore
				finished = true
			} else {
				m.QIndex++
			}
		},
	)
	if err != nil {
		// The attempt is considered not committed; the caller may retry.
		return "", fmt.Errorf("commit answer: %w", err)
	}
	if !applied {
		metrics.CommitConflicts.Inc()
		e.logger.Debug().
			Str("match_id", snapshot.ID.String()).
			Str("player", playerUID.String()).
			Int("q_index", answeredIndex).
			Msg("correct answer lost the race")
		return SubmitTooLate, nil
	}

	if finished {
		metrics.MatchesFinished.Inc()
	}
	e.logger.Info().
		Str("match_id", snapshot.ID.String()).
		Str("player", playerUID.String()).
		Int("q_index", answeredIndex).
		Int("score", newScore).
		Bool("finished", finished).
		Msg("answer committed")
	return SubmitCommitted, nil
}
