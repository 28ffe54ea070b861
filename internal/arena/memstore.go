package arena

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// subscriberBuffer bounds the per-subscriber event queue. A match commits a
// few dozen states over its whole lifetime, so the buffer never fills in
// practice; an overflowing subscriber is dropped behind and logged.
const subscriberBuffer = 256

// MemoryStore is the in-process Store implementation: a mutex-guarded map
// with per-subscriber dispatch goroutines so change delivery preserves
// commit order without holding the store lock during callbacks.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*memRecord
	logger  zerolog.Logger
}

type memRecord struct {
	match   *Match
	nextSub int
	subs    map[int]chan Event
}

// NewMemoryStore creates an empty in-memory match store.
func NewMemoryStore(logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]*memRecord),
		logger:  logger,
	}
}

// Create persists a new match and assigns its id.
func (s *MemoryStore) Create(ctx context.Context, m *Match) (uuid.UUID, error) {
	id := uuid.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := m.Clone()
	stored.ID = id
	s.records[id] = &memRecord{
		match: stored,
		subs:  make(map[int]chan Event),
	}
	m.ID = id
	return id, nil
}

// Get returns a snapshot of the match, or ErrMatchNotFound.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return rec.match.Clone(), nil
}

// Query returns snapshots of all matches satisfying the predicate.
func (s *MemoryStore) Query(ctx context.Context, pred func(*Match) bool) ([]*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Match
	for _, rec := range s.records {
		if pred(rec.match) {
			out = append(out, rec.match.Clone())
		}
	}
	return out, nil
}

// Subscribe watches one match record until the returned cancel runs.
func (s *MemoryStore) Subscribe(ctx context.Context, id uuid.UUID, onChange func(Event)) (func(), error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrMatchNotFound
	}

	subID := rec.nextSub
	rec.nextSub++
	ch := make(chan Event, subscriberBuffer)
	rec.subs[subID] = ch
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				onChange(ev)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if rec, ok := s.records[id]; ok {
				delete(rec.subs, subID)
			}
			s.mu.Unlock()
			close(done)
		})
	}
	return cancel, nil
}

// ConditionalUpdate atomically applies patch when guard accepts the current
// record. The guard and patch run against a private copy under the store
// lock, so the commit is indivisible from any observer's point of view.
func (s *MemoryStore) ConditionalUpdate(ctx context.Context, id uuid.UUID, guard func(*Match) bool, patch func(*Match)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, ErrMatchNotFound
	}

	next := rec.match.Clone()
	if !guard(next) {
		return false, nil
	}
	patch(next)
	rec.match = next

	s.notifyLocked(rec, Event{Match: next})
	return true, nil
}

// Delete removes the match record and notifies subscribers with a nil match.
func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrMatchNotFound
	}

	s.notifyLocked(rec, Event{})
	for subID, ch := range rec.subs {
		close(ch)
		delete(rec.subs, subID)
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) notifyLocked(rec *memRecord, ev Event) {
	for subID, ch := range rec.subs {
		out := ev
		if ev.Match != nil {
			out.Match = ev.Match.Clone()
		}
		select {
		case ch <- out:
		default:
			s.logger.Warn().Int("subscriber", subID).Msg("subscriber queue full, event dropped")
		}
	}
}
