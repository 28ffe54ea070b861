package arena

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, zerolog.Nop())
}

func TestRedisStore_CreateGet(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	m := newTestMatch("CCCCCC")
	id, err := store.Create(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, id, m.ID)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "CCCCCC", got.RoomCode)
	assert.Len(t, got.Questions, len(m.Questions))

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestRedisStore_Query(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, newTestMatch("AAAAAA"))
	require.NoError(t, err)
	_, err = store.Create(ctx, newTestMatch("BBBBBB"))
	require.NoError(t, err)

	got, err := store.Query(ctx, func(m *Match) bool { return m.RoomCode == "AAAAAA" })
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "AAAAAA", got[0].RoomCode)

	all, err := store.Query(ctx, func(m *Match) bool { return true })
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRedisStore_ConditionalUpdate(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	m := newTestMatch("AAAAAA")
	id, err := store.Create(ctx, m)
	require.NoError(t, err)

	applied, err := store.ConditionalUpdate(ctx, id,
		func(m *Match) bool { return m.Status == StatusWaiting },
		func(m *Match) {
			m.Status = StatusPlaying
			m.Player1.Score = ScorePerQuestion
		},
	)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.ConditionalUpdate(ctx, id,
		func(m *Match) bool { return m.Status == StatusWaiting },
		func(m *Match) { m.Status = StatusFinished },
	)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, got.Status)
	assert.Equal(t, ScorePerQuestion, got.Player1.Score)
}

func TestRedisStore_ConditionalUpdate_MissingMatch(t *testing.T) {
	store := newRedisStore(t)

	applied, err := store.ConditionalUpdate(context.Background(), uuid.New(),
		func(m *Match) bool { return true },
		func(m *Match) {},
	)
	assert.ErrorIs(t, err, ErrMatchNotFound)
	assert.False(t, applied)
}

func TestRedisStore_SubscribeDeliversCommits(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	m := newTestMatch("AAAAAA")
	id, err := store.Create(ctx, m)
	require.NoError(t, err)

	events := make(chan Event, 16)
	cancel, err := store.Subscribe(ctx, id, func(ev Event) {
		events <- ev
	})
	require.NoError(t, err)
	defer cancel()

	applied, err := store.ConditionalUpdate(ctx, id,
		func(m *Match) bool { return true },
		func(m *Match) { m.QIndex = 3 },
	)
	require.NoError(t, err)
	require.True(t, applied)

	select {
	case ev := <-events:
		require.NotNil(t, ev.Match)
		assert.Equal(t, 3, ev.Match.QIndex)
	case <-time.After(2 * time.Second):
		t.Fatal("commit event not delivered")
	}
}

func TestRedisStore_DeletePublishesGoneEvent(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	m := newTestMatch("AAAAAA")
	id, err := store.Create(ctx, m)
	require.NoError(t, err)

	events := make(chan Event, 16)
	cancel, err := store.Subscribe(ctx, id, func(ev Event) {
		events <- ev
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, store.Delete(ctx, id))

	select {
	case ev := <-events:
		assert.Nil(t, ev.Match)
	case <-time.After(2 * time.Second):
		t.Fatal("delete event not delivered")
	}

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrMatchNotFound)
	assert.ErrorIs(t, store.Delete(ctx, id), ErrMatchNotFound)
}

func TestRedisStore_SubscribeUnknownMatch(t *testing.T) {
	store := newRedisStore(t)

	_, err := store.Subscribe(context.Background(), uuid.New(), func(Event) {})
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestRedisStore_EventsArriveInCommitOrder(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	m := newTestMatch("AAAAAA")
	id, err := store.Create(ctx, m)
	require.NoError(t, err)

	events := make(chan Event, 32)
	cancel, err := store.Subscribe(ctx, id, func(ev Event) {
		events <- ev
	})
	require.NoError(t, err)
	defer cancel()

	// Each publish rides inside the commit's MULTI/EXEC, so a sequence of
	// commits followed by a delete must be observed in exactly that order.
	for i := 1; i <= 5; i++ {
		qIndex := i
		applied, err := store.ConditionalUpdate(ctx, id,
			func(m *Match) bool { return true },
			func(m *Match) { m.QIndex = qIndex },
		)
		require.NoError(t, err)
		require.True(t, applied)
	}
	require.NoError(t, store.Delete(ctx, id))

	for i := 1; i <= 5; i++ {
		select {
		case ev := <-events:
			require.NotNil(t, ev.Match, "commit %d", i)
			assert.Equal(t, i, ev.Match.QIndex)
		case <-time.After(2 * time.Second):
			t.Fatalf("commit %d not delivered", i)
		}
	}
	select {
	case ev := <-events:
		assert.Nil(t, ev.Match)
	case <-time.After(2 * time.Second):
		t.Fatal("gone event not delivered")
	}
}
