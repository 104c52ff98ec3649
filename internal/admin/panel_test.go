package admin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-delivery/internal/admin"
	"ms-delivery/internal/changefeed"
	"ms-delivery/internal/client"
	"ms-delivery/internal/database/testdb"
	"ms-delivery/internal/lifecycle"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
	"ms-delivery/internal/order"
	"ms-delivery/internal/order/db"
	"ms-delivery/internal/storeinfo"
)

func quietLogger() *logger.Logger {
	log := logger.NewConsoleLogger()
	log.SetLevel(logger.FATAL)
	return log
}

// MockBackend only implements what the panel calls in these tests.
type MockBackend struct {
	mock.Mock
	client.Backend
}

func (m *MockBackend) Self() models.Actor {
	return models.Actor{ID: "admin", Role: models.RoleAdmin}
}

func (m *MockBackend) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	args := m.Called(ctx, filter)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Error(1)
}

func (m *MockBackend) StoreInfo(ctx context.Context) (models.StoreInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.StoreInfo), args.Error(1)
}

func (m *MockBackend) SetStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error) {
	args := m.Called(ctx, id, to)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func TestPanel_RejectsBeforeWriting(t *testing.T) {
	backend := new(MockBackend)
	backend.On("ListOrders", mock.Anything, models.OrderFilter{}).Return([]models.Order{
		{ID: "p1", Status: models.StatusPending, IsDelivery: true},
		{ID: "r1", Status: models.StatusReady, IsDelivery: false},
		{ID: "d1", Status: models.StatusDelivered},
	}, nil)
	backend.On("StoreInfo", mock.Anything).Return(models.DefaultStoreInfo(), nil)

	panel := admin.NewPanel(backend, time.Hour, quietLogger())
	require.NoError(t, panel.Loop.Refresh(context.Background()))

	_, err := panel.SetStatus(context.Background(), "p1", models.StatusReady)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = panel.SetStatus(context.Background(), "r1", models.StatusAwaitingPickup)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "pickup orders never wait for a courier")

	_, err = panel.Advance(context.Background(), "d1")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = panel.Cancel(context.Background(), "d1")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	backend.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestPanel_StaleWriteResyncs(t *testing.T) {
	backend := new(MockBackend)
	backend.On("ListOrders", mock.Anything, models.OrderFilter{}).Return([]models.Order{
		{ID: "p1", Status: models.StatusPending},
	}, nil)
	backend.On("StoreInfo", mock.Anything).Return(models.DefaultStoreInfo(), nil)
	backend.On("SetStatus", mock.Anything, "p1", models.StatusPreparing).Return(nil, order.ErrStaleStatus)

	panel := admin.NewPanel(backend, time.Hour, quietLogger())
	require.NoError(t, panel.Loop.Refresh(context.Background()))

	_, err := panel.Advance(context.Background(), "p1")
	assert.ErrorIs(t, err, order.ErrStaleStatus)
	backend.AssertNumberOfCalls(t, "ListOrders", 2)
}

func TestPanel_StoreInfoFailureKeepsOrders(t *testing.T) {
	backend := new(MockBackend)
	backend.On("ListOrders", mock.Anything, models.OrderFilter{}).Return([]models.Order{{ID: "p1", Status: models.StatusPending}}, nil)
	backend.On("StoreInfo", mock.Anything).Return(models.StoreInfo{}, errors.New("timeout"))

	panel := admin.NewPanel(backend, time.Hour, quietLogger())
	require.NoError(t, panel.Loop.Refresh(context.Background()))
	assert.Len(t, panel.Orders(), 1)
	assert.Equal(t, models.DefaultMaxPrepMinutes, panel.StoreInfo().MaxPrepMinutes)
}

func TestPanel_OlderRefreshDoesNotOverwriteStoreInfo(t *testing.T) {
	ctx := context.Background()
	backend := new(MockBackend)
	backend.On("ListOrders", mock.Anything, models.OrderFilter{}).Return([]models.Order{{ID: "p1", Status: models.StatusPending}}, nil)

	started, release := make(chan struct{}), make(chan struct{})
	backend.On("StoreInfo", mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(models.StoreInfo{MaxPrepMinutes: 15, DailyPromo: "Batata Grátis"}, nil).Once()
	backend.On("StoreInfo", mock.Anything).Return(models.StoreInfo{MaxPrepMinutes: 30, DailyPromo: "Milkshake em dobro"}, nil)

	panel := admin.NewPanel(backend, time.Hour, quietLogger())

	slow := make(chan error, 1)
	go func() { slow <- panel.Loop.Refresh(ctx) }()
	<-started

	require.NoError(t, panel.Loop.Refresh(ctx))
	assert.Equal(t, 30, panel.StoreInfo().MaxPrepMinutes)

	close(release)
	require.NoError(t, <-slow)
	assert.Equal(t, 30, panel.StoreInfo().MaxPrepMinutes)
	assert.Equal(t, "Milkshake em dobro", panel.StoreInfo().DailyPromo)
	assert.Equal(t, uint64(2), panel.Loop.Snapshot().Seq)
}

func TestPanel_QueueCountsAndLateness(t *testing.T) {
	now := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)
	backend := new(MockBackend)
	backend.On("ListOrders", mock.Anything, models.OrderFilter{}).Return([]models.Order{
		{ID: "new", Status: models.StatusPending, CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "slow", Status: models.StatusPreparing, CreatedAt: now.Add(-25 * time.Minute)},
		{ID: "waiting", Status: models.StatusAwaitingPickup, CreatedAt: now.Add(-40 * time.Minute)},
		{ID: "old-done", Status: models.StatusDelivered, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "ready", Status: models.StatusReady, CreatedAt: now.Add(-10 * time.Minute)},
	}, nil)
	backend.On("StoreInfo", mock.Anything).Return(models.StoreInfo{MaxPrepMinutes: 20}, nil)

	panel := admin.NewPanel(backend, time.Hour, quietLogger())
	require.NoError(t, panel.Loop.Refresh(context.Background()))

	var queue []string
	for _, o := range panel.KitchenQueue() {
		queue = append(queue, o.ID)
	}
	assert.Equal(t, []string{"slow", "ready", "new"}, queue)

	counts := panel.StatusCounts()
	assert.Equal(t, 1, counts[models.StatusPending])
	assert.Equal(t, 1, counts[models.StatusDelivered])
	assert.Equal(t, 0, counts[models.StatusCancelled])
	assert.Len(t, counts, len(models.AllStatuses))

	var late []string
	for _, o := range panel.LateOrders(now) {
		late = append(late, o.ID)
	}
	assert.ElementsMatch(t, []string{"slow", "waiting"}, late)
}

func TestPanel_PickupOrderEndToEnd(t *testing.T) {
	log := quietLogger()
	bunDB := testdb.Open(t)
	hub := changefeed.NewHub()
	defer hub.Close()
	orders := order.NewOrderService(db.New(bunDB), hub, log, 8.99)
	info := storeinfo.NewService(storeinfo.NewStore(bunDB), nil, hub, log)
	ctx := context.Background()

	placed, err := orders.PlaceOrder(ctx, models.PlaceOrderRequest{
		CustomerName:  "Helena Costa",
		CustomerPhone: "1133334444",
		Items:         []models.OrderItem{{MenuItemID: "duplo", Name: "Duplo Bacon", UnitPrice: 34.9, Quantity: 1}},
		PaymentMethod: models.PaymentCash,
	})
	require.NoError(t, err)

	panel := admin.NewPanel(client.NewLocal(orders, info, hub, models.Actor{ID: "gerente", Role: models.RoleAdmin}), time.Hour, log)
	require.NoError(t, panel.Loop.Refresh(ctx))

	for _, want := range []models.OrderStatus{models.StatusPreparing, models.StatusReady, models.StatusDelivered} {
		updated, err := panel.Advance(ctx, placed.ID)
		require.NoError(t, err)
		assert.Equal(t, want, updated.Status)
		assert.Equal(t, want, panel.Orders()[0].Status, "panel resyncs after each write")
	}

	_, err = panel.Advance(ctx, placed.ID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	updated, err := panel.UpdateStoreInfo(ctx, models.StoreInfoUpdate{MaxPrepMinutes: 25, DailyPromo: "Milkshake em dobro"})
	require.NoError(t, err)
	assert.Equal(t, 25, updated.MaxPrepMinutes)
	assert.Equal(t, "Milkshake em dobro", panel.StoreInfo().DailyPromo)
}
