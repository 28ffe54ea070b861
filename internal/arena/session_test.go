package arena

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langduel/vocab-arena/internal/question"
)

type recordingNotifier struct {
	mu        sync.Mutex
	snapshots []*Match
	finished  []Outcome
	gone      int
}

func (n *recordingNotifier) MatchSnapshot(m *Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snapshots = append(n.snapshots, m)
}

func (n *recordingNotifier) MatchFinished(m *Match, outcome Outcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, outcome)
}

func (n *recordingNotifier) MatchGone() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gone++
}

func (n *recordingNotifier) snapshotCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.snapshots)
}

func (n *recordingNotifier) finishedOutcomes() []Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Outcome(nil), n.finished...)
}

func (n *recordingNotifier) goneCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gone
}

type recordingPronouncer struct {
	mu     sync.Mutex
	spoken []string
}

func (p *recordingPronouncer) Pronounce(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spoken = append(p.spoken, text)
}

func (p *recordingPronouncer) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}

type recordingSink struct {
	mu      sync.Mutex
	results []DuelResult
}

func (s *recordingSink) RecordDuel(ctx context.Context, res DuelResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return nil
}

func (s *recordingSink) recorded() []DuelResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DuelResult(nil), s.results...)
}

type sessionHarness struct {
	store      *MemoryStore
	engine     *Engine
	session    *ClientSession
	notifier   *recordingNotifier
	pronouncer *recordingPronouncer
	sink       *recordingSink
}

func newSessionHarness(uid uuid.UUID) *sessionHarness {
	store := NewMemoryStore(zerolog.Nop())
	engine := NewEngine(store, zerolog.Nop())
	notifier := &recordingNotifier{}
	pronouncer := &recordingPronouncer{}
	sink := &recordingSink{}
	session := NewClientSession(uid, engine, store, pronouncer, notifier, sink, zerolog.Nop())
	return &sessionHarness{
		store:      store,
		engine:     engine,
		session:    session,
		notifier:   notifier,
		pronouncer: pronouncer,
		sink:       sink,
	}
}

func audibleMatch(p1, p2 uuid.UUID) *Match {
	m := newTestMatch("AAAAAA")
	m.Player1 = Player{UID: p1, Name: "An"}
	m.Player2 = &Player{UID: p2, Name: "Binh"}
	m.Status = StatusPlaying
	for i := range m.Questions {
		m.Questions[i].AudioWord = "苹果"
	}
	return m
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, what)
}

func TestSession_AttachReplaysCurrentState(t *testing.T) {
	uid := uuid.New()
	h := newSessionHarness(uid)
	ctx := context.Background()

	m := audibleMatch(uid, uuid.New())
	_, err := h.store.Create(ctx, m)
	require.NoError(t, err)

	require.NoError(t, h.session.Attach(ctx, m.ID))

	assert.Equal(t, 1, h.notifier.snapshotCount())
	require.NotNil(t, h.session.Match())
	assert.Equal(t, m.ID, h.session.Match().ID)
	// First playing snapshot vocalizes the opening question.
	assert.Equal(t, []string{"苹果"}, h.pronouncer.all())
}

func TestSession_AudioSpokenOncePerQuestion(t *testing.T) {
	uid := uuid.New()
	h := newSessionHarness(uid)
	ctx := context.Background()

	m := audibleMatch(uid, uuid.New())
	_, err := h.store.Create(ctx, m)
	require.NoError(t, err)
	require.NoError(t, h.session.Attach(ctx, m.ID))

	// An opponent score change re-publishes the same question index.
	_, err = h.store.ConditionalUpdate(ctx, m.ID,
		func(m *Match) bool { return true },
		func(m *Match) { m.Player2.Score += ScorePerQuestion },
	)
	require.NoError(t, err)
	waitFor(t, func() bool { return h.notifier.snapshotCount() == 2 }, "score snapshot")
	assert.Equal(t, []string{"苹果"}, h.pronouncer.all())

	// Advancing to the next question speaks again.
	_, err = h.store.ConditionalUpdate(ctx, m.ID,
		func(m *Match) bool { return true },
		func(m *Match) { m.QIndex = 1 },
	)
	require.NoError(t, err)
	waitFor(t, func() bool { return len(h.pronouncer.all()) == 2 }, "second question audio")
}

func TestSession_WaitingStateDoesNotSpeak(t *testing.T) {
	uid := uuid.New()
	h := newSessionHarness(uid)
	ctx := context.Background()

	m := audibleMatch(uid, uuid.New())
	m.Status = StatusWaiting
	m.Player2 = nil
	_, err := h.store.Create(ctx, m)
	require.NoError(t, err)

	require.NoError(t, h.session.Attach(ctx, m.ID))
	assert.Equal(t, 1, h.notifier.snapshotCount())
	assert.Empty(t, h.pronouncer.all())
}

func TestSession_ReplayAudio(t *testing.T) {
	uid := uuid.New()
	h := newSessionHarness(uid)
	ctx := context.Background()

	m := audibleMatch(uid, uuid.New())
	_, err := h.store.Create(ctx, m)
	require.NoError(t, err)
	require.NoError(t, h.session.Attach(ctx, m.ID))

	h.session.ReplayAudio()
	assert.Equal(t, []string{"苹果", "苹果"}, h.pronouncer.all())

	// A locked player cannot replay.
	outcome, err := h.session.SubmitAnswer(ctx, question.Submission{OptionIndex: 3})
	require.NoError(t, err)
	require.Equal(t, SubmitIncorrect, outcome)
	h.session.ReplayAudio()
	assert.Len(t, h.pronouncer.all(), 2)
}

func TestSession_SubmitLockedAfterAttempt(t *testing.T) {
	uid := uuid.New()
	h := newSessionHarness(uid)
	ctx := context.Background()

	m := audibleMatch(uid, uuid.New())
	_, err := h.store.Create(ctx, m)
	require.NoError(t, err)
	require.NoError(t, h.session.Attach(ctx, m.ID))

	outcome, err := h.session.SubmitAnswer(ctx, question.Submission{OptionIndex: 3})
	require.NoError(t, err)
	assert.Equal(t, SubmitIncorrect, outcome)

	// A second attempt on the same question is rejected locally, even a
	// correct one.
	outcome, err = h.session.SubmitAnswer(ctx, question.Submission{OptionIndex: 0})
	require.NoError(t, err)
	assert.Equal(t, SubmitLocked, outcome)
}

func TestSession_LockReleasedOnNextQuestion(t *testing.T) {
	uid := uuid.New()
	h := newSessionHarness(uid)
	ctx := context.Background()

	m := audibleMatch(uid, uuid.New())
	_, err := h.store.Create(ctx, m)
	require.NoError(t, err)
	require.NoError(t, h.session.Attach(ctx, m.ID))

	outcome, err := h.session.SubmitAnswer(ctx, question.Submission{OptionIndex: 3})
	require.NoError(t, err)
	require.Equal(t, SubmitIncorrect, outcome)

	// Opponent wins the question; the advance unlocks this player.
	_, err = h.store.ConditionalUpdate(ctx, m.ID,
		func(m *Match) bool { return m.QIndex == 0 },
		func(m *Match) {
			m.QIndex = 1
			m.Player2.Score += ScorePerQuestion
		},
	)
	require.NoError(t, err)
	waitFor(t, func() bool {
		got := h.session.Match()
		return got != nil && got.QIndex == 1
	}, "question advance")

	outcome, err = h.session.SubmitAnswer(ctx, question.Submission{OptionIndex: 0})
	require.NoError(t, err)
	assert.Equal(t, SubmitCommitted, outcome)
}

func TestSession_SubmitWithoutMatch(t *testing.T) {
	h := newSessionHarness(uuid.New())

	_, err := h.session.SubmitAnswer(context.Background(), question.Submission{OptionIndex: 0})
	assert.ErrorIs(t, err, ErrNotPlaying)
}

func TestSession_FinisherRecordsAndDeletes(t *testing.T) {
	uid := uuid.New()
	h := newSessionHarness(uid)
	ctx := context.Background()

	m := audibleMatch(uid, uuid.New())
	m.QIndex = len(m.Questions) - 1
	_, err := h.store.Create(ctx, m)
	require.NoError(t, err)
	require.NoError(t, h.session.Attach(ctx, m.ID))

	outcome, err := h.session.SubmitAnswer(ctx, question.Submission{OptionIndex: 0})
	require.NoError(t, err)
	require.Equal(t, SubmitCommitted, outcome)

	waitFor(t, func() bool { return len(h.notifier.finishedOutcomes()) == 1 }, "finish notification")
	assert.Equal(t, []Outcome{OutcomeWin}, h.notifier.finishedOutcomes())

	// The finisher persists the result and deletes the shared record.
	waitFor(t, func() bool { return len(h.sink.recorded()) == 1 }, "result recorded")
	res := h.sink.recorded()[0]
	assert.Equal(t, m.ID, res.MatchID)
	assert.Equal(t, uid, res.FinishedBy)
	assert.Equal(t, ScorePerQuestion, res.WinnerScore)

	waitFor(t, func() bool {
		_, err := h.store.Get(ctx, m.ID)
		return err == ErrMatchNotFound
	}, "record deleted")
	assert.Nil(t, h.session.Match())
}

func TestSession_NonFinisherObservesFinishWithoutCleanup(t *testing.T) {
	uid := uuid.New()
	opponent := uuid.New()
	h := newSessionHarness(uid)
	ctx := context.Background()

	m := audibleMatch(uid, opponent)
	m.QIndex = len(m.Questions) - 1
	_, err := h.store.Create(ctx, m)
	require.NoError(t, err)
	require.NoError(t, h.session.Attach(ctx, m.ID))

	// The opponent finishes via the engine directly.
	snap, err := h.store.Get(ctx, m.ID)
	require.NoError(t, err)
	outcome, err := h.engine.SubmitAnswer(ctx, snap, opponent, question.Submission{OptionIndex: 0})
	require.NoError(t, err)
	require.Equal(t, SubmitCommitted, outcome)

	waitFor(t, func() bool { return len(h.notifier.finishedOutcomes()) == 1 }, "finish notification")
	assert.Equal(t, []Outcome{OutcomeLoss}, h.notifier.finishedOutcomes())

	// Only the finisher's session cleans up.
	assert.Empty(t, h.sink.recorded())
	_, err = h.store.Get(ctx, m.ID)
	assert.NoError(t, err)
}

func TestSession_MatchGoneOnDelete(t *testing.T) {
	uid := uuid.New()
	h := newSessionHarness(uid)
	ctx := context.Background()

	m := audibleMatch(uid, uuid.New())
	m.Status = StatusWaiting
	m.Player2 = nil
	_, err := h.store.Create(ctx, m)
	require.NoError(t, err)
	require.NoError(t, h.session.Attach(ctx, m.ID))

	require.NoError(t, h.store.Delete(ctx, m.ID))

	waitFor(t, func() bool { return h.notifier.goneCount() == 1 }, "gone notification")
	assert.Nil(t, h.session.Match())
}

func TestSession_DetachStopsDelivery(t *testing.T) {
	uid := uuid.New()
	h := newSessionHarness(uid)
	ctx := context.Background()

	m := audibleMatch(uid, uuid.New())
	_, err := h.store.Create(ctx, m)
	require.NoError(t, err)
	require.NoError(t, h.session.Attach(ctx, m.ID))
	before := h.notifier.snapshotCount()

	h.session.Detach()

	_, err = h.store.ConditionalUpdate(ctx, m.ID,
		func(m *Match) bool { return true },
		func(m *Match) { m.QIndex = 1 },
	)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, h.notifier.snapshotCount())
	assert.Nil(t, h.session.Match())
}

// subscribeHookStore runs a callback just before the subscription is
// established, simulating a commit racing an attach.
type subscribeHookStore struct {
	Store
	beforeSubscribe func()
}

func (s *subscribeHookStore) Subscribe(ctx context.Context, id uuid.UUID, onChange func(Event)) (func(), error) {
	if s.beforeSubscribe != nil {
		hook := s.beforeSubscribe
		s.beforeSubscribe = nil
		hook()
	}
	return s.Store.Subscribe(ctx, id, onChange)
}

func TestSession_FinishCommittedWhileAttachingIsObserved(t *testing.T) {
	uid := uuid.New()
	opponent := uuid.New()
	ctx := context.Background()

	mem := NewMemoryStore(zerolog.Nop())
	m := audibleMatch(uid, opponent)
	m.QIndex = len(m.Questions) - 1
	_, err := mem.Create(ctx, m)
	require.NoError(t, err)

	engine := NewEngine(mem, zerolog.Nop())
	store := &subscribeHookStore{Store: mem}
	store.beforeSubscribe = func() {
		snap, err := mem.Get(ctx, m.ID)
		require.NoError(t, err)
		outcome, err := engine.SubmitAnswer(ctx, snap, opponent, question.Submission{OptionIndex: 0})
		require.NoError(t, err)
		require.Equal(t, SubmitCommitted, outcome)
	}

	notifier := &recordingNotifier{}
	session := NewClientSession(uid, engine, store, &recordingPronouncer{}, notifier, &recordingSink{}, zerolog.Nop())

	// The opponent's finishing commit lands during attach; the session must
	// still end up observing the terminal state instead of a stale playing
	// snapshot.
	require.NoError(t, session.Attach(ctx, m.ID))

	waitFor(t, func() bool { return len(notifier.finishedOutcomes()) == 1 }, "finish observed")
	assert.Equal(t, []Outcome{OutcomeLoss}, notifier.finishedOutcomes())
	assert.Nil(t, session.Match())
}

func TestSession_OutOfOrderSnapshotIgnored(t *testing.T) {
	uid := uuid.New()
	h := newSessionHarness(uid)
	ctx := context.Background()

	m := audibleMatch(uid, uuid.New())
	_, err := h.store.Create(ctx, m)
	require.NoError(t, err)
	require.NoError(t, h.session.Attach(ctx, m.ID))

	_, err = h.store.ConditionalUpdate(ctx, m.ID,
		func(m *Match) bool { return true },
		func(m *Match) { m.QIndex = 1 },
	)
	require.NoError(t, err)
	waitFor(t, func() bool {
		got := h.session.Match()
		return got != nil && got.QIndex == 1
	}, "question advance")

	outcome, err := h.session.SubmitAnswer(ctx, question.Submission{OptionIndex: 3})
	require.NoError(t, err)
	require.Equal(t, SubmitIncorrect, outcome)

	// A reordered copy of the previous state must not roll the view back.
	stale := m.Clone()
	stale.QIndex = 0
	before := h.notifier.snapshotCount()
	h.session.handleEvent(ctx, Event{Match: stale})

	assert.Equal(t, before, h.notifier.snapshotCount())
	assert.Equal(t, 1, h.session.Match().QIndex)
	assert.Len(t, h.pronouncer.all(), 2)

	// The answer lock for the real current question stays held.
	outcome, err = h.session.SubmitAnswer(ctx, question.Submission{OptionIndex: 0})
	require.NoError(t, err)
	assert.Equal(t, SubmitLocked, outcome)
}
