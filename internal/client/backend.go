// Package client is what the role apps talk to: either the services in the
// same process or a remote API server.
package client

import (
	"context"

	"ms-delivery/internal/changefeed"
	"ms-delivery/internal/models"
	"ms-delivery/internal/order"
	"ms-delivery/internal/storeinfo"
)

// Backend is the order API as seen by one signed-in actor.
type Backend interface {
	changefeed.Subscriber

	Self() models.Actor

	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.Order, error)
	SetStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error)
	Claim(ctx context.Context, id string) (bool, error)
	MarkArrived(ctx context.Context, id string) (*models.Order, error)
	CompleteDelivery(ctx context.Context, id string) (*models.Order, error)

	StoreInfo(ctx context.Context) (models.StoreInfo, error)
	UpdateStoreInfo(ctx context.Context, upd models.StoreInfoUpdate) (models.StoreInfo, error)
}

var (
	_ Backend = (*Local)(nil)
	_ Backend = (*HTTP)(nil)
)

// Local calls the services directly.
type Local struct {
	Orders *order.OrderService
	Info   *storeinfo.Service
	Feed   changefeed.Subscriber
	Actor  models.Actor
}

func NewLocal(orders *order.OrderService, info *storeinfo.Service, feed changefeed.Subscriber, actor models.Actor) *Local {
	return &Local{Orders: orders, Info: info, Feed: feed, Actor: actor}
}

func (l *Local) Self() models.Actor { return l.Actor }

func (l *Local) Subscribe(ctx context.Context, orderID string) (<-chan models.ChangeEvent, error) {
	return l.Feed.Subscribe(ctx, orderID)
}

func (l *Local) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	if l.Actor.Role == models.RoleCustomer {
		return nil, order.ErrForbidden
	}
	return l.Orders.ListOrders(ctx, filter)
}

func (l *Local) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return l.Orders.GetOrder(ctx, id)
}

func (l *Local) PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.Order, error) {
	return l.Orders.PlaceOrder(ctx, req)
}

func (l *Local) SetStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error) {
	return l.Orders.SetStatus(ctx, l.Actor, id, to)
}

func (l *Local) Claim(ctx context.Context, id string) (bool, error) {
	return l.Orders.Claim(ctx, l.Actor, id)
}

func (l *Local) MarkArrived(ctx context.Context, id string) (*models.Order, error) {
	return l.Orders.MarkArrived(ctx, l.Actor, id)
}

func (l *Local) CompleteDelivery(ctx context.Context, id string) (*models.Order, error) {
	return l.Orders.CompleteDelivery(ctx, l.Actor, id)
}

func (l *Local) StoreInfo(ctx context.Context) (models.StoreInfo, error) {
	return l.Info.Get(ctx)
}

func (l *Local) UpdateStoreInfo(ctx context.Context, upd models.StoreInfoUpdate) (models.StoreInfo, error) {
	return l.Info.Update(ctx, l.Actor, upd)
}
