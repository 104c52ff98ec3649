package order_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-delivery/internal/database/testdb"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
	"ms-delivery/internal/order"
	"ms-delivery/internal/order/db"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev models.ChangeEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockPublisher) events() []models.ChangeEvent {
	var out []models.ChangeEvent
	for _, c := range m.Calls {
		if c.Method == "Publish" {
			out = append(out, c.Arguments.Get(1).(models.ChangeEvent))
		}
	}
	return out
}

var (
	admin   = models.Actor{ID: "admin-1", Name: "Gerente", Role: models.RoleAdmin}
	courier = models.Actor{ID: "courier-a", Name: "Ana", Role: models.RoleCourier}
	rival   = models.Actor{ID: "courier-b", Name: "Bruno", Role: models.RoleCourier}
)

func newService(t *testing.T) (*order.OrderService, *MockPublisher) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	svc := order.NewOrderService(db.New(testdb.Open(t)), pub, logger.NewConsoleLogger(), 8.99)
	return svc, pub
}

func deliveryRequest() models.PlaceOrderRequest {
	return models.PlaceOrderRequest{
		CustomerName:  "Maria Silva",
		CustomerPhone: "11987654321",
		Items: []models.OrderItem{
			{MenuItemID: "x-burger", Name: "X-Burger", UnitPrice: 25.5, Quantity: 2},
		},
		Address: &models.Address{
			Street:       "Rua das Flores",
			Number:       "123",
			Neighborhood: "Centro",
			City:         "São Paulo",
		},
		PaymentMethod: models.PaymentPix,
	}
}

func advanceToAwaitingPickup(t *testing.T, svc *order.OrderService, id string) {
	t.Helper()
	ctx := context.Background()
	for _, to := range []models.OrderStatus{models.StatusPreparing, models.StatusReady, models.StatusAwaitingPickup} {
		_, err := svc.SetStatus(ctx, admin, id, to)
		require.NoError(t, err)
	}
}

func TestPlaceOrder_DeliveryAddsFee(t *testing.T) {
	svc, pub := newService(t)

	placed, err := svc.PlaceOrder(context.Background(), deliveryRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, placed.ID)
	assert.Equal(t, models.StatusPending, placed.Status)
	assert.True(t, placed.IsDelivery)
	assert.Equal(t, 59.99, placed.Total)
	assert.Equal(t, "Rua das Flores, 123 - Centro - São Paulo", placed.DeliveryAddress)
	assert.Nil(t, placed.CourierID)

	events := pub.events()
	require.Len(t, events, 1)
	assert.Equal(t, models.ChangeInsert, events[0].Type)
	assert.Equal(t, placed.ID, events[0].OrderID())
}

func TestPlaceOrder_PickupHasNoFee(t *testing.T) {
	svc, _ := newService(t)
	req := deliveryRequest()
	req.Address = nil
	req.PaymentMethod = models.PaymentCash
	change := 100.0
	req.ChangeFor = &change

	placed, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, placed.IsDelivery)
	assert.Equal(t, 51.0, placed.Total)
	assert.Empty(t, placed.DeliveryAddress)
}

func TestPlaceOrder_Validation(t *testing.T) {
	svc, pub := newService(t)
	low := 10.0

	tests := []struct {
		name   string
		mutate func(r *models.PlaceOrderRequest)
	}{
		{"short name", func(r *models.PlaceOrderRequest) { r.CustomerName = "Al" }},
		{"phone with letters", func(r *models.PlaceOrderRequest) { r.CustomerPhone = "11-98765-43" }},
		{"phone too short", func(r *models.PlaceOrderRequest) { r.CustomerPhone = "119876" }},
		{"no items", func(r *models.PlaceOrderRequest) { r.Items = nil }},
		{"zero quantity", func(r *models.PlaceOrderRequest) { r.Items[0].Quantity = 0 }},
		{"unknown payment", func(r *models.PlaceOrderRequest) { r.PaymentMethod = "boleto" }},
		{"address without number", func(r *models.PlaceOrderRequest) { r.Address.Number = "" }},
		{"change for card payment", func(r *models.PlaceOrderRequest) { r.ChangeFor = &low }},
		{"change below total", func(r *models.PlaceOrderRequest) {
			r.PaymentMethod = models.PaymentCash
			r.ChangeFor = &low
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := deliveryRequest()
			tt.mutate(&req)
			_, err := svc.PlaceOrder(context.Background(), req)
			assert.ErrorIs(t, err, order.ErrValidation)
		})
	}
	assert.Empty(t, pub.events(), "rejected checkouts publish nothing")
}

func TestOrderLifecycle_DeliveryHappyPath(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()

	placed, err := svc.PlaceOrder(ctx, deliveryRequest())
	require.NoError(t, err)
	advanceToAwaitingPickup(t, svc, placed.ID)

	won, err := svc.Claim(ctx, courier, placed.ID)
	require.NoError(t, err)
	assert.True(t, won)

	arrived, err := svc.MarkArrived(ctx, courier, placed.ID)
	require.NoError(t, err)
	assert.True(t, arrived.CourierArrived)
	assert.Equal(t, models.StatusInTransit, arrived.Status)

	done, err := svc.CompleteDelivery(ctx, courier, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, done.Status)
	assert.False(t, done.CourierArrived)
	assert.Equal(t, "courier-a", *done.CourierID)
	assert.Equal(t, "Ana", done.CourierName)

	var statuses []models.OrderStatus
	for _, ev := range pub.events() {
		statuses = append(statuses, ev.New.Status)
	}
	assert.Equal(t, []models.OrderStatus{
		models.StatusPending, models.StatusPreparing, models.StatusReady, models.StatusAwaitingPickup,
		models.StatusInTransit, models.StatusInTransit, models.StatusDelivered,
	}, statuses)
}

func TestOrderLifecycle_PickupSkipsCourier(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	req := deliveryRequest()
	req.Address = nil

	placed, err := svc.PlaceOrder(ctx, req)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, admin, placed.ID, models.StatusPreparing)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, admin, placed.ID, models.StatusReady)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, admin, placed.ID, models.StatusAwaitingPickup)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)

	got, err := svc.SetStatus(ctx, admin, placed.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)
	assert.Nil(t, got.CourierID)
}

func TestSetStatus_RejectsOutOfTableMoves(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	placed, err := svc.PlaceOrder(ctx, deliveryRequest())
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, admin, placed.ID, models.StatusReady)
	assert.ErrorIs(t, err, order.ErrInvalidTransition, "skipping preparing")

	_, err = svc.SetStatus(ctx, models.Actor{ID: "c1", Role: models.RoleCustomer}, placed.ID, models.StatusCancelled)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)

	_, err = svc.SetStatus(ctx, admin, "missing", models.StatusPreparing)
	assert.ErrorIs(t, err, order.ErrNotFound)

	got, err := svc.GetOrder(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestSetStatus_CancelFromAnyNonTerminal(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	placed, err := svc.PlaceOrder(ctx, deliveryRequest())
	require.NoError(t, err)
	advanceToAwaitingPickup(t, svc, placed.ID)
	_, err = svc.Claim(ctx, courier, placed.ID)
	require.NoError(t, err)
	_, err = svc.MarkArrived(ctx, courier, placed.ID)
	require.NoError(t, err)

	cancelled, err := svc.SetStatus(ctx, admin, placed.ID, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.False(t, cancelled.CourierArrived)

	_, err = svc.SetStatus(ctx, admin, placed.ID, models.StatusPending)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestClaim_ConcurrentCouriersOneWinner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	placed, err := svc.PlaceOrder(ctx, deliveryRequest())
	require.NoError(t, err)
	advanceToAwaitingPickup(t, svc, placed.ID)

	var wins int32
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := models.Actor{ID: fmt.Sprintf("courier-%d", i), Role: models.RoleCourier}
			won, err := svc.Claim(ctx, c, placed.ID)
			if err != nil {
				errs <- err
				return
			}
			if won {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("losing a claim must not be an error: %v", err)
	}
	assert.Equal(t, int32(1), wins)
}

func TestClaim_Rules(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	placed, err := svc.PlaceOrder(ctx, deliveryRequest())
	require.NoError(t, err)

	won, err := svc.Claim(ctx, courier, placed.ID)
	require.NoError(t, err)
	assert.False(t, won, "pending order is not claimable")

	_, err = svc.Claim(ctx, admin, placed.ID)
	assert.ErrorIs(t, err, order.ErrForbidden)

	_, err = svc.Claim(ctx, courier, "missing")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestCourierActions_OwnershipAndStatus(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	placed, err := svc.PlaceOrder(ctx, deliveryRequest())
	require.NoError(t, err)
	advanceToAwaitingPickup(t, svc, placed.ID)

	_, err = svc.MarkArrived(ctx, courier, placed.ID)
	assert.ErrorIs(t, err, order.ErrInvalidTransition, "not yet in transit")

	_, err = svc.Claim(ctx, courier, placed.ID)
	require.NoError(t, err)

	_, err = svc.MarkArrived(ctx, rival, placed.ID)
	assert.ErrorIs(t, err, order.ErrNotOwner)
	_, err = svc.CompleteDelivery(ctx, rival, placed.ID)
	assert.ErrorIs(t, err, order.ErrNotOwner)

	// a courier finishing through the generic status route still needs ownership
	_, err = svc.SetStatus(ctx, rival, placed.ID, models.StatusDelivered)
	assert.ErrorIs(t, err, order.ErrNotOwner)

	done, err := svc.SetStatus(ctx, courier, placed.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, done.Status)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	svc := order.NewOrderService(db.New(testdb.Open(t)), pub, logger.NewConsoleLogger(), 8.99)

	placed, err := svc.PlaceOrder(context.Background(), deliveryRequest())
	require.NoError(t, err)
	_, err = svc.SetStatus(context.Background(), admin, placed.ID, models.StatusPreparing)
	require.NoError(t, err)
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

// staleDB reports that another writer got there first.
type staleDB struct {
	*db.DB
}

func (s staleDB) TransitionStatus(context.Context, string, models.OrderStatus, models.OrderStatus) (bool, error) {
	return false, nil
}

func TestSetStatus_StaleCompareAndSwap(t *testing.T) {
	store := db.New(testdb.Open(t))
	svc := order.NewOrderService(staleDB{store}, nil, logger.NewConsoleLogger(), 8.99)

	placed, err := svc.PlaceOrder(context.Background(), deliveryRequest())
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), admin, placed.ID, models.StatusPreparing)
	assert.ErrorIs(t, err, order.ErrStaleStatus)
}
