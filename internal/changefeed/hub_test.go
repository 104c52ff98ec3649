package changefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
)

func orderEvent(id string, status models.OrderStatus) models.ChangeEvent {
	return models.NewOrderChange(models.ChangeUpdate, &models.Order{ID: id, Status: status}, nil)
}

func receive(t *testing.T, ch <-chan models.ChangeEvent) models.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
	return models.ChangeEvent{}
}

func TestHub_FiltersByOrder(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all, err := hub.Subscribe(ctx, "")
	require.NoError(t, err)
	one, err := hub.Subscribe(ctx, "order-1")
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, orderEvent("order-2", models.StatusPreparing)))
	require.NoError(t, hub.Publish(ctx, orderEvent("order-1", models.StatusReady)))

	assert.Equal(t, "order-2", receive(t, all).OrderID())
	assert.Equal(t, "order-1", receive(t, all).OrderID())
	assert.Equal(t, "order-1", receive(t, one).OrderID())

	select {
	case ev := <-one:
		t.Fatalf("unexpected event for %s", ev.OrderID())
	default:
	}
}

func TestHub_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := hub.Subscribe(ctx, "")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBuffer*3; i++ {
			hub.Publish(ctx, orderEvent("order-1", models.StatusPending))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, int64(defaultBuffer*2), hub.Dropped())
}

func TestHub_UnsubscribeOnContextDone(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := hub.Subscribe(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 1, hub.ClientCount("order-1"))

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return hub.ClientCount("order-1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	ch, err := hub.Subscribe(context.Background(), "")
	require.NoError(t, err)

	hub.Close()
	_, ok := <-ch
	assert.False(t, ok)

	_, err = hub.Subscribe(context.Background(), "")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, hub.Publish(context.Background(), orderEvent("x", models.StatusPending)), ErrClosed)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, models.ChangeEvent) error { return f.err }

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	hub := NewHub()
	ch, err := hub.Subscribe(context.Background(), "")
	require.NoError(t, err)

	boom := errors.New("broker down")
	m := Multi{failingPublisher{err: boom}, hub, nil}

	err = m.Publish(context.Background(), orderEvent("order-1", models.StatusReady))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "order-1", receive(t, ch).OrderID())
}

func TestRedisBridge_RelaysBetweenInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newBridge := func() *RedisBridge {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewRedisBridge(client, "orders:changes", NewHub(), logger.NewConsoleLogger())
	}
	a, b := newBridge(), newBridge()

	go b.Run(ctx)
	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("orders:changes")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	localA, err := a.Subscribe(ctx, "")
	require.NoError(t, err)
	remoteB, err := b.Subscribe(ctx, "order-9")
	require.NoError(t, err)

	require.NoError(t, a.Publish(ctx, orderEvent("order-9", models.StatusAwaitingPickup)))

	assert.Equal(t, "order-9", receive(t, localA).OrderID())
	ev := receive(t, remoteB)
	assert.Equal(t, models.StatusAwaitingPickup, ev.New.Status)
	assert.Equal(t, models.TableOrders, ev.Table)
}

func TestRedisBridge_SkipsOwnEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	bridge := NewRedisBridge(client, "orders:changes", NewHub(), logger.NewConsoleLogger())

	go bridge.Run(ctx)
	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("orders:changes")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	ch, err := bridge.Subscribe(ctx, "")
	require.NoError(t, err)
	require.NoError(t, bridge.Publish(ctx, orderEvent("order-1", models.StatusPending)))

	receive(t, ch)
	select {
	case <-ch:
		t.Fatal("event delivered twice")
	case <-time.After(200 * time.Millisecond):
	}
}
