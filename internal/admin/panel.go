// Package admin is the store manager's panel over every order.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ms-delivery/internal/client"
	"ms-delivery/internal/lifecycle"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
	"ms-delivery/internal/order"
	"ms-delivery/internal/syncloop"
)

type Panel struct {
	Backend client.Backend
	Loop    *syncloop.Loop
	Logger  *logger.Logger

	mu     sync.RWMutex
	orders []models.Order
	info   models.StoreInfo
}

func NewPanel(backend client.Backend, interval time.Duration, log *logger.Logger) *Panel {
	p := &Panel{Backend: backend, Logger: log, info: models.DefaultStoreInfo()}
	p.Loop = syncloop.New("admin", p.fetch, backend, "", interval, log)
	p.Loop.FetchInfo = backend.StoreInfo
	p.Loop.OnSnapshot(p.apply)
	return p
}

func (p *Panel) fetch(ctx context.Context) ([]models.Order, error) {
	return p.Backend.ListOrders(ctx, models.OrderFilter{})
}

// apply takes orders and store info from the same snapshot. A snapshot
// without info keeps the previous values.
func (p *Panel) apply(snap syncloop.Snapshot) {
	p.mu.Lock()
	p.orders = snap.Orders
	if snap.Info != nil {
		p.info = *snap.Info
	}
	p.mu.Unlock()
}

func (p *Panel) Run(ctx context.Context) error {
	return p.Loop.Run(ctx)
}

// Orders returns every order, newest first.
func (p *Panel) Orders() []models.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Order, len(p.orders))
	copy(out, p.orders)
	return out
}

func (p *Panel) find(ctx context.Context, id string) (models.Order, error) {
	p.mu.RLock()
	for _, o := range p.orders {
		if o.ID == id {
			p.mu.RUnlock()
			return o, nil
		}
	}
	p.mu.RUnlock()

	o, err := p.Backend.GetOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	return *o, nil
}

// SetStatus checks the move against the transition table before sending it.
func (p *Panel) SetStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error) {
	current, err := p.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Validate(models.RoleAdmin, current.Status, to, current.IsDelivery); err != nil {
		return nil, err
	}

	updated, err := p.Backend.SetStatus(ctx, id, to)
	if errors.Is(err, order.ErrStaleStatus) {
		p.Logger.Warn("ADMIN", fmt.Sprintf("Order %s changed under us, resyncing", id))
	}
	_ = p.Loop.Refresh(ctx)
	return updated, err
}

// Advance moves the order one step along the kitchen flow.
func (p *Panel) Advance(ctx context.Context, id string) (*models.Order, error) {
	current, err := p.find(ctx, id)
	if err != nil {
		return nil, err
	}
	next, ok := lifecycle.NextAdminStatus(current.Status, current.IsDelivery)
	if !ok {
		return nil, fmt.Errorf("%w: nothing to advance from %s", lifecycle.ErrInvalidTransition, current.Status)
	}
	return p.SetStatus(ctx, id, next)
}

func (p *Panel) Cancel(ctx context.Context, id string) (*models.Order, error) {
	return p.SetStatus(ctx, id, models.StatusCancelled)
}

// KitchenQueue lists orders the kitchen still has to work on, oldest first.
func (p *Panel) KitchenQueue() []models.Order {
	var queue []models.Order
	for _, o := range p.Orders() {
		switch o.Status {
		case models.StatusPending, models.StatusPreparing, models.StatusReady:
			queue = append(queue, o)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].CreatedAt.Before(queue[j].CreatedAt)
	})
	return queue
}

func (p *Panel) StatusCounts() map[models.OrderStatus]int {
	counts := make(map[models.OrderStatus]int, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		counts[s] = 0
	}
	for _, o := range p.Orders() {
		counts[o.Status]++
	}
	return counts
}

// LateOrders returns open orders older than the store's max prep time.
func (p *Panel) LateOrders(now time.Time) []models.Order {
	limit := time.Duration(p.StoreInfo().MaxPrepMinutes) * time.Minute
	var late []models.Order
	for _, o := range p.Orders() {
		if lifecycle.IsTerminal(o.Status) {
			continue
		}
		if now.Sub(o.CreatedAt) > limit {
			late = append(late, o)
		}
	}
	return late
}

func (p *Panel) StoreInfo() models.StoreInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

func (p *Panel) UpdateStoreInfo(ctx context.Context, upd models.StoreInfoUpdate) (models.StoreInfo, error) {
	info, err := p.Backend.UpdateStoreInfo(ctx, upd)
	if err != nil {
		return models.StoreInfo{}, err
	}
	p.mu.Lock()
	p.info = info
	p.mu.Unlock()
	return info, nil
}
