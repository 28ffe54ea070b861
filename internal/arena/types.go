package arena

import (
	"time"

	"github.com/google/uuid"

	"github.com/langduel/vocab-arena/internal/question"
)

// Status is the match lifecycle state. Transitions are linear:
// waiting -> playing -> finished, with no backward or skipping moves.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// CanTransition reports whether moving from s to next is a legal transition.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusWaiting:
		return next == StatusPlaying
	case StatusPlaying:
		return next == StatusFinished
	default:
		return false
	}
}

// ScorePerQuestion is the fixed award for winning a question.
const ScorePerQuestion = 10

// RoomCodeLength is the length of the human-shareable join code.
const RoomCodeLength = 6

// Player is one side of a duel. Score starts at zero and only grows.
type Player struct {
	UID   uuid.UUID `json:"uid"`
	Name  string    `json:"name"`
	Score int       `json:"score"`
}

// Match is the shared record both players' clients observe and mutate
// through the store's conditional-update primitive.
type Match struct {
	ID          uuid.UUID           `json:"id"`
	RoomCode    string              `json:"roomCode"`
	Player1     Player              `json:"player1"`
	Player2     *Player             `json:"player2,omitempty"`
	Status      Status              `json:"status"`
	Questions   []question.Question `json:"questions"`
	QIndex      int                 `json:"qIndex"`
	FinishedBy  uuid.UUID           `json:"finishedBy,omitempty"`
	WinnerScore int                 `json:"winnerScore,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// IsParticipant reports whether uid is one of the two players.
func (m *Match) IsParticipant(uid uuid.UUID) bool {
	if m.Player1.UID == uid {
		return true
	}
	return m.Player2 != nil && m.Player2.UID == uid
}

// PlayerByUID returns the player record for uid, or nil.
func (m *Match) PlayerByUID(uid uuid.UUID) *Player {
	if m.Player1.UID == uid {
		return &m.Player1
	}
	if m.Player2 != nil && m.Player2.UID == uid {
		return m.Player2
	}
	return nil
}

// CurrentQuestion returns the question at QIndex. The bool is false when
// the index is out of range, which only happens on a corrupted record.
func (m *Match) CurrentQuestion() (question.Question, bool) {
	if m.QIndex < 0 || m.QIndex >= len(m.Questions) {
		return question.Question{}, false
	}
	return m.Questions[m.QIndex], true
}

// OnLastQuestion reports whether QIndex points at the final question.
func (m *Match) OnLastQuestion() bool {
	return m.QIndex == len(m.Questions)-1
}

// Scores returns (mine, opponent's) from uid's point of view. A missing
// second player counts as zero.
func (m *Match) Scores(uid uuid.UUID) (int, int) {
	p2Score := 0
	if m.Player2 != nil {
		p2Score = m.Player2.Score
	}
	if m.Player1.UID == uid {
		return m.Player1.Score, p2Score
	}
	return p2Score, m.Player1.Score
}

// Outcome of a finished duel from one player's point of view.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeTie  Outcome = "tie"
)

// OutcomeFor computes win/lose/tie for uid by plain score comparison.
func (m *Match) OutcomeFor(uid uuid.UUID) Outcome {
	mine, theirs := m.Scores(uid)
	switch {
	case mine > theirs:
		return OutcomeWin
	case mine < theirs:
		return OutcomeLoss
	default:
		return OutcomeTie
	}
}

// Clone makes a deep copy so snapshots handed to subscribers are isolated
// from subsequent commits.
func (m *Match) Clone() *Match {
	out := *m
	if m.Player2 != nil {
		p2 := *m.Player2
		out.Player2 = &p2
	}
	out.Questions = make([]question.Question, len(m.Questions))
	copy(out.Questions, m.Questions)
	for i := range out.Questions {
		opts := out.Questions[i].Options
		if opts != nil {
			out.Questions[i].Options = append([]string(nil), opts...)
		}
	}
	return &out
}
