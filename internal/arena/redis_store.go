package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// casRetries bounds optimistic-transaction retries when an unrelated writer
// invalidates the watch. Abandoning after the bound is acceptable: the
// caller treats a false result as losing the race.
const casRetries = 5

// RedisStore is the Redis-backed Store implementation. Each match is one
// JSON document; ConditionalUpdate runs under WATCH/MULTI/EXEC so the guard
// and patch commit atomically against the whole record, and every commit is
// published on a per-match channel for subscribers.
type RedisStore struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

type redisEnvelope struct {
	Deleted bool   `json:"deleted,omitempty"`
	Match   *Match `json:"match,omitempty"`
}

// NewRedisStore creates a match store backed by the given Redis client.
func NewRedisStore(rdb *redis.Client, logger zerolog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, logger: logger}
}

func matchKey(id uuid.UUID) string     { return "arena:match:" + id.String() }
func matchChannel(id uuid.UUID) string { return "arena:match:events:" + id.String() }

// Create persists a new match and assigns its id.
func (s *RedisStore) Create(ctx context.Context, m *Match) (uuid.UUID, error) {
	id := uuid.New()
	stored := m.Clone()
	stored.ID = id

	raw, err := json.Marshal(stored)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal match: %w", err)
	}
	if err := s.rdb.Set(ctx, matchKey(id), raw, 0).Err(); err != nil {
		return uuid.Nil, fmt.Errorf("store match: %w", err)
	}
	m.ID = id
	return id, nil
}

// Get returns a snapshot of the match, or ErrMatchNotFound.
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Match, error) {
	raw, err := s.rdb.Get(ctx, matchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	var m Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal match: %w", err)
	}
	return &m, nil
}

// Query scans all match records and filters them with the predicate.
func (s *RedisStore) Query(ctx context.Context, pred func(*Match) bool) ([]*Match, error) {
	var out []*Match
	iter := s.rdb.Scan(ctx, 0, "arena:match:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		var m Match
		if err := json.Unmarshal(raw, &m); err != nil {
			s.logger.Warn().Str("key", key).Err(err).Msg("skip corrupted match record")
			continue
		}
		if pred(&m) {
			out = append(out, &m)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan matches: %w", err)
	}
	return out, nil
}

// Subscribe watches the match's event channel until the returned cancel runs.
func (s *RedisStore) Subscribe(ctx context.Context, id uuid.UUID, onChange func(Event)) (func(), error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	pubsub := s.rdb.Subscribe(ctx, matchChannel(id))
	// Force the subscription to be established before returning so no
	// commit published afterwards is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe match: %w", err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var env redisEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.logger.Warn().Err(err).Msg("skip malformed match event")
				continue
			}
			if env.Deleted {
				onChange(Event{})
				continue
			}
			onChange(Event{Match: env.Match})
		}
	}()

	return func() { pubsub.Close() }, nil
}

// ConditionalUpdate applies patch under an optimistic transaction: the match
// key is watched, the guard evaluated against the current document, and the
// new document written inside MULTI/EXEC. A concurrent commit invalidates
// the watch and the attempt is retried with a fresh read.
func (s *RedisStore) ConditionalUpdate(ctx context.Context, id uuid.UUID, guard func(*Match) bool, patch func(*Match)) (bool, error) {
	key := matchKey(id)
	var errGuardRejected = errors.New("guard rejected")

	for attempt := 0; attempt < casRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrMatchNotFound
			}
			if err != nil {
				return err
			}

			var m Match
			if err := json.Unmarshal(raw, &m); err != nil {
				return fmt.Errorf("unmarshal match: %w", err)
			}
			if !guard(&m) {
				return errGuardRejected
			}
			patch(&m)

			next, err := json.Marshal(&m)
			if err != nil {
				return fmt.Errorf("marshal match: %w", err)
			}
			event, err := json.Marshal(redisEnvelope{Match: &m})
			if err != nil {
				return fmt.Errorf("marshal match event: %w", err)
			}

			// Publishing inside the transaction pins the event to the EXEC,
			// so subscribers see commits in commit order.
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, 0)
				pipe.Publish(ctx, matchChannel(id), event)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, errGuardRejected):
			return false, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrMatchNotFound):
			return false, ErrMatchNotFound
		default:
			return false, fmt.Errorf("conditional update: %w", err)
		}
	}

	// Contention exhausted the retries; report as a lost race.
	return false, nil
}

// Delete removes the match record and notifies subscribers. DEL and the
// gone event go through one transaction so the event cannot overtake or
// trail a concurrent commit's event.
func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	key := matchKey(id)
	event, err := json.Marshal(redisEnvelope{Deleted: true})
	if err != nil {
		return fmt.Errorf("marshal match event: %w", err)
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrMatchNotFound
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.Publish(ctx, matchChannel(id), event)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrMatchNotFound):
			return ErrMatchNotFound
		default:
			return fmt.Errorf("delete match: %w", err)
		}
	}
	return fmt.Errorf("delete match: %w", redis.TxFailedErr)
}
