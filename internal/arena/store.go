package arena

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrMatchNotFound is returned by store lookups for unknown or deleted ids.
var ErrMatchNotFound = errors.New("match not found")

// Event is one observed change of a watched match record. Match is nil when
// the record was deleted.
type Event struct {
	Match *Match
}

// Store is the shared match record store. ConditionalUpdate is the sole
// concurrency primitive: it must apply guard and patch atomically against
// the whole record, so concurrent writers serialize into a total order of
// committed states per match. Subscriptions deliver every committed state
// in commit order, at least once, with no latency bound.
type Store interface {
	// Create persists a new match and assigns its id.
	Create(ctx context.Context, m *Match) (uuid.UUID, error)

	// Get returns a snapshot of the match, or ErrMatchNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Match, error)

	// Query returns snapshots of all matches satisfying the predicate.
	Query(ctx context.Context, pred func(*Match) bool) ([]*Match, error)

	// Subscribe watches one match record. onChange is invoked for every
	// committed state after the subscription is established, in commit
	// order. The returned function cancels the subscription.
	Subscribe(ctx context.Context, id uuid.UUID, onChange func(Event)) (func(), error)

	// ConditionalUpdate atomically applies patch if guard holds against the
	// current stored record. Returns false with a nil error when the guard
	// rejected the update; the record is then left untouched.
	ConditionalUpdate(ctx context.Context, id uuid.UUID, guard func(*Match) bool, patch func(*Match)) (bool, error)

	// Delete removes the match record and notifies subscribers.
	Delete(ctx context.Context, id uuid.UUID) error
}
