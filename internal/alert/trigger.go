package alert

import (
	"sync"

	"ms-delivery/internal/models"
)

// Trigger diffs consecutive snapshots and drives the Alarm.
type Trigger struct {
	Alarm *Alarm

	mu   sync.Mutex
	prev map[string]models.OrderStatus
}

func NewTrigger(alarm *Alarm) *Trigger {
	return &Trigger{Alarm: alarm, prev: map[string]models.OrderStatus{}}
}

// Available reports whether o is waiting for any courier.
func Available(o models.Order) bool {
	return o.Status == models.StatusAwaitingPickup && !o.Claimed()
}

// Observe evaluates one applied snapshot and returns the freshly available
// orders. An order is fresh when it is available now and was either absent
// from the previous snapshot or in another status there. Any fresh order
// starts the alarm; no available orders at all stops it.
func (t *Trigger) Observe(orders []models.Order) []models.Order {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []models.Order
	available := 0
	next := make(map[string]models.OrderStatus, len(orders))
	for _, o := range orders {
		next[o.ID] = o.Status
		if !Available(o) {
			continue
		}
		available++
		if before, seen := t.prev[o.ID]; !seen || before != models.StatusAwaitingPickup {
			fresh = append(fresh, o)
		}
	}
	t.prev = next

	switch {
	case len(fresh) > 0:
		t.Alarm.Start()
	case available == 0:
		t.Alarm.Stop()
	}
	return fresh
}

// Silence stops the alarm. It rings again only on a new fresh order.
func (t *Trigger) Silence() {
	t.Alarm.Stop()
}
