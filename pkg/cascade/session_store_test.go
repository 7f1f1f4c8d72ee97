package cascade

import (
	"context"
	"testing"
	"time"

	"github.com/joiedevivre/jasmine/internal/repositories/repotest"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	s := &Session{ID: "c1", BusinessID: "b1", Plan: &models.CascadePlan{}, Acknowledged: map[string]bool{}}
	require.NoError(t, store.Create(ctx, s))

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	got.Acknowledged[models.ConsequenceBusinessRecord] = true

	again, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, again.Acknowledged, "callers get copies")

	require.NoError(t, store.Update(ctx, got))
	taken, err := store.Take(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, taken.Acknowledged[models.ConsequenceBusinessRecord])

	_, err = store.Take(ctx, "c1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Update(ctx, got), ErrSessionNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(15 * time.Minute)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Create(ctx, &Session{ID: "c1"}))

	now = now.Add(14 * time.Minute)
	_, err := store.Get(ctx, "c1")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_Integration(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(redis.Config{Addr: repotest.StartRedis(t)}, repotest.Logger())
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, 10*time.Minute)
	key := "cascade:confirmation:c1"
	plan := &models.CascadePlan{BusinessID: "b1", BusinessName: "Boutique Éloïse", ProductIDs: []string{"p1", "p2"}}

	t.Run("update of a missing session", func(t *testing.T) {
		err := store.Update(ctx, &Session{ID: "missing", Acknowledged: map[string]bool{}})
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = client.Get(ctx, "cascade:confirmation:missing")
		assert.ErrorIs(t, err, redis.ErrNotFound, "XX must not create the key")
	})

	require.NoError(t, store.Create(ctx, &Session{
		ID:           "c1",
		BusinessID:   "b1",
		ActorID:      "admin-1",
		Plan:         plan,
		ImpactLoaded: true,
		Acknowledged: map[string]bool{},
	}))

	// shorten the TTL so a KeepTTL update is distinguishable from a reset
	require.NoError(t, client.Set(ctx, key, mustGetRaw(t, client, key), time.Minute))

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, plan, got.Plan)
	got.Acknowledged[models.ConsequenceProducts] = true
	got.NameConfirmed = true
	require.NoError(t, store.Update(ctx, got))

	ttl, err := client.TTL(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute, "update keeps the existing TTL")

	taken, err := store.Take(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, taken.NameConfirmed)
	assert.True(t, taken.Acknowledged[models.ConsequenceProducts])

	_, err = store.Take(ctx, "c1")
	assert.ErrorIs(t, err, ErrSessionNotFound, "a session executes once")
	_, err = store.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func mustGetRaw(t *testing.T, client *redis.Client, key string) string {
	t.Helper()
	raw, err := client.Get(context.Background(), key)
	require.NoError(t, err)
	return raw
}
