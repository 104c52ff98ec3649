package storeinfo_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-delivery/internal/changefeed"
	"ms-delivery/internal/database/testdb"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
	"ms-delivery/internal/storeinfo"
)

var admin = models.Actor{ID: "admin-1", Role: models.RoleAdmin}

func setup(t *testing.T) (*storeinfo.Service, *miniredis.Miniredis, *changefeed.Hub) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hub := changefeed.NewHub()
	svc := storeinfo.NewService(
		storeinfo.NewStore(testdb.Open(t)),
		storeinfo.NewRedisCache(client, 30*time.Second),
		hub,
		logger.NewConsoleLogger(),
	)
	return svc, mr, hub
}

func TestGet_DefaultsAndCaches(t *testing.T) {
	svc, mr, _ := setup(t)

	info, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, info.MaxPrepMinutes)
	assert.Equal(t, "Hambúrguer Grátis", info.DailyPromo)

	assert.True(t, mr.Exists("store_info"))
	mr.FastForward(31 * time.Second)
	assert.False(t, mr.Exists("store_info"), "cache entry expires with its TTL")
}

func TestUpdate_AdminOnlyAndPublishes(t *testing.T) {
	svc, mr, hub := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := hub.Subscribe(ctx, "")
	require.NoError(t, err)

	_, err = svc.Get(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists("store_info"))

	_, err = svc.Update(ctx, models.Actor{ID: "c", Role: models.RoleCourier}, models.StoreInfoUpdate{MaxPrepMinutes: 20})
	assert.ErrorIs(t, err, storeinfo.ErrForbidden)

	_, err = svc.Update(ctx, admin, models.StoreInfoUpdate{MaxPrepMinutes: 0})
	assert.ErrorIs(t, err, storeinfo.ErrValidation)

	saved, err := svc.Update(ctx, admin, models.StoreInfoUpdate{MaxPrepMinutes: 25, DailyPromo: "Batata Grátis"})
	require.NoError(t, err)
	assert.Equal(t, 25, saved.MaxPrepMinutes)
	assert.False(t, mr.Exists("store_info"), "update invalidates the cache")

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, got.MaxPrepMinutes)
	assert.Equal(t, "Batata Grátis", got.DailyPromo)

	select {
	case ev := <-events:
		assert.Equal(t, models.TableStoreInfo, ev.Table)
	case <-time.After(time.Second):
		t.Fatal("expected a store_info change event")
	}
}

func TestGet_SurvivesCacheOutage(t *testing.T) {
	svc, mr, _ := setup(t)
	mr.Close()

	info, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMaxPrepMinutes, info.MaxPrepMinutes)
}
