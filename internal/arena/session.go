package arena

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/langduel/vocab-arena/internal/question"
	"github.com/langduel/vocab-arena/internal/speech"
)

// SubmitLocked classifies a submission rejected locally because the player
// already used their attempt on the current question.
const SubmitLocked SubmitOutcome = "locked"

// Notifier pushes observed match state to one player's client.
type Notifier interface {
	// MatchSnapshot delivers a non-terminal state (waiting or playing).
	MatchSnapshot(m *Match)
	// MatchFinished delivers the terminal state with the outcome computed
	// from this player's point of view.
	MatchFinished(m *Match, outcome Outcome)
	// MatchGone signals that the watched record disappeared.
	MatchGone()
}

// DuelResult is the terminal outcome of one duel, written back to the
// surrounding system's record store.
type DuelResult struct {
	MatchID     uuid.UUID
	RoomCode    string
	Player1     Player
	Player2     Player
	FinishedBy  uuid.UUID
	WinnerScore int
	FinishedAt  time.Time
}

// ResultSink receives finished duel outcomes for persistence. Implementations
// must tolerate duplicate delivery for the same match id.
type ResultSink interface {
	RecordDuel(ctx context.Context, res DuelResult) error
}

// ClientSession tracks one connected player's view of at most one match.
// It owns the store subscription, the per-question answer lock, and the
// one-shot cleanup when the match finishes.
type ClientSession struct {
	uid        uuid.UUID
	engine     *Engine
	store      Store
	pronouncer speech.Pronouncer
	notifier   Notifier
	results    ResultSink
	logger     zerolog.Logger

	mu         sync.Mutex
	attached   bool
	match      *Match
	prevQIndex int
	answered   bool
	unsub      func()
}

// NewClientSession creates a detached session for one player. results may
// be nil when the surrounding system does not persist outcomes.
func NewClientSession(uid uuid.UUID, engine *Engine, store Store, pronouncer speech.Pronouncer, notifier Notifier, results ResultSink, logger zerolog.Logger) *ClientSession {
	return &ClientSession{
		uid:        uid,
		engine:     engine,
		store:      store,
		pronouncer: pronouncer,
		notifier:   notifier,
		results:    results,
		logger:     logger.With().Str("player", uid.String()).Logger(),
		prevQIndex: -1,
	}
}

// Attach subscribes the session to a match record and replays the current
// state so the client renders immediately. A session watches at most one
// match; attaching twice without detaching is an error in the caller.
func (s *ClientSession) Attach(ctx context.Context, matchID uuid.UUID) error {
	s.mu.Lock()
	s.attached = true
	s.match = nil
	s.prevQIndex = -1
	s.answered = false
	s.mu.Unlock()

	unsub, err := s.store.Subscribe(ctx, matchID, func(ev Event) {
		s.handleEvent(ctx, ev)
	})
	if err != nil {
		s.mu.Lock()
		s.attached = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if !s.attached {
		// A terminal event arrived while the subscription was being set up.
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsub = unsub
	s.mu.Unlock()

	// Read the snapshot only after the subscription is live. Every commit
	// after this read also reaches the subscription, so nothing can fall
	// between the replayed state and the event stream.
	current, err := s.store.Get(ctx, matchID)
	if err != nil {
		s.Detach()
		return err
	}
	s.handleEvent(ctx, Event{Match: current})
	return nil
}

// Detach cancels the subscription and clears local state.
func (s *ClientSession) Detach() {
	s.mu.Lock()
	s.attached = false
	unsub := s.unsub
	s.unsub = nil
	s.match = nil
	s.prevQIndex = -1
	s.answered = false
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Match returns the latest observed snapshot, or nil.
func (s *ClientSession) Match() *Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match
}

// SubmitAnswer runs the resolution protocol for the currently displayed
// question. It is a no-op (SubmitLocked) when the player already used
// their attempt, and ErrNotPlaying when no active match is in play.
func (s *ClientSession) SubmitAnswer(ctx context.Context, sub question.Submission) (SubmitOutcome, error) {
	s.mu.Lock()
	if s.match == nil || s.match.Status != StatusPlaying {
		s.mu.Unlock()
		return "", ErrNotPlaying
	}
	if s.answered {
		s.mu.Unlock()
		return SubmitLocked, nil
	}
	s.answered = true
	snapshot := s.match.Clone()
	s.mu.Unlock()

	outcome, err := s.engine.SubmitAnswer(ctx, snapshot, s.uid, sub)
	if err != nil {
		// Not committed; release the lock so the player may retry.
		s.mu.Lock()
		if s.match != nil && s.match.QIndex == snapshot.QIndex {
			s.answered = false
		}
		s.mu.Unlock()
		return "", err
	}
	return outcome, nil
}

// ReplayAudio re-pronounces the current question's audio on request. Only
// allowed while the question is still open for this player.
func (s *ClientSession) ReplayAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.match == nil || s.match.Status != StatusPlaying || s.answered {
		return
	}
	if q, ok := s.match.CurrentQuestion(); ok {
		if audio := q.Audio(); audio != "" {
			s.pronouncer.Pronounce(audio)
		}
	}
}

// handleEvent processes one observed committed state, in commit order.
func (s *ClientSession) handleEvent(ctx context.Context, ev Event) {
	s.mu.Lock()
	if !s.attached {
		// Already detached; ignore stale queued events.
		s.mu.Unlock()
		return
	}

	if ev.Match == nil {
		detached := s.match != nil
		s.attached = false
		s.match = nil
		s.prevQIndex = -1
		s.answered = false
		unsub := s.unsub
		s.unsub = nil
		s.mu.Unlock()

		if unsub != nil {
			unsub()
		}
		if detached {
			s.notifier.MatchGone()
		}
		return
	}

	m := ev.Match
	if s.match != nil && snapshotRegressed(s.match, m) {
		// The replayed attach snapshot can race the live stream; never let
		// an older state roll back the question lock or re-speak audio.
		s.mu.Unlock()
		return
	}
	s.match = m

	if m.Status == StatusFinished {
		outcome := m.OutcomeFor(s.uid)
		finisher := m.FinishedBy == s.uid
		s.attached = false
		s.match = nil
		s.prevQIndex = -1
		s.answered = false
		unsub := s.unsub
		s.unsub = nil
		s.mu.Unlock()

		s.notifier.MatchFinished(m, outcome)
		if finisher {
			s.finalize(ctx, m)
		}
		if unsub != nil {
			unsub()
		}
		return
	}

	var speak string
	if m.Status == StatusPlaying && m.QIndex != s.prevQIndex {
		// New question: release the answer lock and vocalize once. Later
		// snapshots repeating this index (opponent score changes) must not
		// re-trigger audio.
		s.answered = false
		s.prevQIndex = m.QIndex
		if q, ok := m.CurrentQuestion(); ok {
			speak = q.Audio()
		}
	}
	s.mu.Unlock()

	if speak != "" {
		s.pronouncer.Pronounce(speak)
	}
	s.notifier.MatchSnapshot(m)
}

// snapshotRegressed reports whether next is an older state than have. Match
// records only move forward: a second seat is never vacated, playing never
// returns to waiting and the question index never decreases.
func snapshotRegressed(have, next *Match) bool {
	if have.Status == StatusPlaying {
		return next.Status == StatusWaiting || (next.Status == StatusPlaying && next.QIndex < have.QIndex)
	}
	return have.Player2 != nil && next.Status == StatusWaiting && next.Player2 == nil
}

// finalize runs the finisher-side cleanup: persist the result and delete
// the shared record.
func (s *ClientSession) finalize(ctx context.Context, m *Match) {
	if s.results != nil {
		res := DuelResult{
			MatchID:     m.ID,
			RoomCode:    m.RoomCode,
			Player1:     m.Player1,
			FinishedBy:  m.FinishedBy,
			WinnerScore: m.WinnerScore,
			FinishedAt:  time.Now(),
		}
		if m.Player2 != nil {
			res.Player2 = *m.Player2
		}
		if err := s.results.RecordDuel(ctx, res); err != nil {
			s.logger.Warn().Err(err).Str("match_id", m.ID.String()).Msg("record duel result failed")
		}
	}

	if err := s.store.Delete(ctx, m.ID); err != nil && err != ErrMatchNotFound {
		s.logger.Warn().Err(err).Str("match_id", m.ID.String()).Msg("delete finished match failed")
	}
}
