// Package courier is the courier's view: deliveries waiting for anyone, the
// one this courier is carrying, and the alarm.
package courier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-delivery/internal/alert"
	"ms-delivery/internal/client"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
	"ms-delivery/internal/syncloop"
)

var ErrCourierBusy = errors.New("finish the current delivery before collecting another")

type View struct {
	Backend client.Backend
	Trigger *alert.Trigger
	Loop    *syncloop.Loop
	Logger  *logger.Logger

	mu        sync.RWMutex
	available []models.Order
	current   *models.Order
}

func NewView(backend client.Backend, trigger *alert.Trigger, interval time.Duration, log *logger.Logger) *View {
	v := &View{Backend: backend, Trigger: trigger, Logger: log}
	v.Loop = syncloop.New("courier", v.fetch, backend, "", interval, log)
	v.Loop.OnSnapshot(v.Apply)
	return v
}

func (v *View) fetch(ctx context.Context) ([]models.Order, error) {
	return v.Backend.ListOrders(ctx, models.OrderFilter{
		Statuses: []models.OrderStatus{models.StatusAwaitingPickup, models.StatusInTransit},
	})
}

// Run keeps the view in sync until ctx is done.
func (v *View) Run(ctx context.Context) error {
	return v.Loop.Run(ctx)
}

// Apply rebuilds the view from a full snapshot and feeds the alarm.
func (v *View) Apply(snap syncloop.Snapshot) {
	available := DeriveAvailable(snap.Orders)
	current := DeriveCurrent(snap.Orders, v.Backend.Self().ID)

	v.mu.Lock()
	v.available = available
	v.current = current
	v.mu.Unlock()

	if v.Trigger != nil {
		v.Trigger.Observe(snap.Orders)
	}
}

func (v *View) AvailableOrders() []models.Order {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.Order, len(v.available))
	copy(out, v.available)
	return out
}

// CurrentDelivery is nil when the courier carries nothing.
func (v *View) CurrentDelivery() *models.Order {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.current == nil {
		return nil
	}
	c := v.current.Clone()
	return &c
}

func (v *View) IsRinging() bool {
	return v.Trigger != nil && v.Trigger.Alarm.IsRinging()
}

func (v *View) SilenceAlarm() {
	if v.Trigger != nil {
		v.Trigger.Silence()
	}
}

// Collect tries to claim id. Losing to another courier returns false with no
// error; either way the view resyncs.
func (v *View) Collect(ctx context.Context, id string) (bool, error) {
	if cur := v.CurrentDelivery(); cur != nil {
		return false, fmt.Errorf("%w: carrying %s", ErrCourierBusy, cur.ID)
	}

	won, err := v.Backend.Claim(ctx, id)
	if err != nil {
		return false, err
	}
	if !won {
		v.Logger.Info("COURIER", fmt.Sprintf("Order %s was taken by another courier", id))
	}
	v.resync(ctx)
	return won, nil
}

func (v *View) MarkArrived(ctx context.Context, id string) error {
	if _, err := v.Backend.MarkArrived(ctx, id); err != nil {
		return err
	}
	v.resync(ctx)
	return nil
}

func (v *View) CompleteDelivery(ctx context.Context, id string) error {
	if _, err := v.Backend.CompleteDelivery(ctx, id); err != nil {
		return err
	}
	v.resync(ctx)
	return nil
}

// resync failures are already logged by the loop; the next poll retries.
func (v *View) resync(ctx context.Context) {
	_ = v.Loop.Refresh(ctx)
}

// DeriveAvailable returns the orders any courier may collect.
func DeriveAvailable(orders []models.Order) []models.Order {
	out := []models.Order{}
	for _, o := range orders {
		if alert.Available(o) {
			out = append(out, o)
		}
	}
	return out
}

// DeriveCurrent returns the in_transit order owned by courierID. There is at
// most one; if the store ever holds more, the oldest wins.
func DeriveCurrent(orders []models.Order, courierID string) *models.Order {
	var current *models.Order
	for i := range orders {
		o := orders[i]
		if o.Status != models.StatusInTransit || !o.OwnedBy(courierID) {
			continue
		}
		if current == nil || o.CreatedAt.Before(current.CreatedAt) {
			c := o.Clone()
			current = &c
		}
	}
	return current
}
