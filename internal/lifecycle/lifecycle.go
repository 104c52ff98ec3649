// Package lifecycle holds the order status transition table. It knows nothing
// about storage or transport; callers ask it whether a move is allowed before
// issuing the conditional write.
package lifecycle

import (
	"errors"
	"fmt"

	"ms-delivery/internal/models"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type edge struct {
	from models.OrderStatus
	to   models.OrderStatus
}

// rule decides whether an edge applies to an order given its delivery mode.
type rule struct {
	role     models.Role
	delivery *bool // nil means both modes
}

var (
	deliveryOnly = true
	pickupOnly   = false
)

var table = map[edge][]rule{
	{models.StatusPending, models.StatusPreparing}:        {{role: models.RoleAdmin}},
	{models.StatusPreparing, models.StatusReady}:          {{role: models.RoleAdmin}},
	{models.StatusReady, models.StatusDelivered}:          {{role: models.RoleAdmin, delivery: &pickupOnly}},
	{models.StatusReady, models.StatusAwaitingPickup}:     {{role: models.RoleAdmin, delivery: &deliveryOnly}},
	{models.StatusAwaitingPickup, models.StatusInTransit}: {{role: models.RoleCourier, delivery: &deliveryOnly}},
	{models.StatusInTransit, models.StatusDelivered}:      {{role: models.RoleCourier, delivery: &deliveryOnly}},
}

var rank = map[models.OrderStatus]int{
	models.StatusPending:        0,
	models.StatusPreparing:      1,
	models.StatusReady:          2,
	models.StatusAwaitingPickup: 3,
	models.StatusInTransit:      4,
	models.StatusDelivered:      5,
	models.StatusCancelled:      6,
}

// Rank orders statuses along the forward path. Cancelled ranks last.
func Rank(s models.OrderStatus) int {
	r, ok := rank[s]
	if !ok {
		return -1
	}
	return r
}

func IsTerminal(s models.OrderStatus) bool {
	return s == models.StatusDelivered || s == models.StatusCancelled
}

// Parse maps raw input to a known status.
func Parse(raw string) (models.OrderStatus, error) {
	s := models.OrderStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// CanTransition reports whether role may move an order from one status to another.
func CanTransition(role models.Role, from, to models.OrderStatus, isDelivery bool) bool {
	return Validate(role, from, to, isDelivery) == nil
}

// Validate returns ErrInvalidTransition (wrapped with detail) when the move is
// not in the table for this role and delivery mode.
func Validate(role models.Role, from, to models.OrderStatus, isDelivery bool) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: unknown status %s -> %s", ErrInvalidTransition, from, to)
	}
	if IsTerminal(from) {
		return fmt.Errorf("%w: order already %s", ErrInvalidTransition, from)
	}
	if to == models.StatusCancelled {
		if role != models.RoleAdmin {
			return fmt.Errorf("%w: only admin may cancel", ErrInvalidTransition)
		}
		return nil
	}
	rules, ok := table[edge{from, to}]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	for _, r := range rules {
		if r.role != role {
			continue
		}
		if r.delivery != nil && *r.delivery != isDelivery {
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %s -> %s not allowed for %s (delivery=%t)", ErrInvalidTransition, from, to, role, isDelivery)
}

// Allowed lists the statuses role may move to from the given one.
func Allowed(role models.Role, from models.OrderStatus, isDelivery bool) []models.OrderStatus {
	var out []models.OrderStatus
	for _, to := range models.AllStatuses {
		if CanTransition(role, from, to, isDelivery) {
			out = append(out, to)
		}
	}
	return out
}

// NextAdminStatus is the admin panel's single "advance" action. At ready it
// calls a courier for delivery orders and hands over at the counter otherwise.
// It returns false when the admin has nothing to advance.
func NextAdminStatus(from models.OrderStatus, isDelivery bool) (models.OrderStatus, bool) {
	switch from {
	case models.StatusPending:
		return models.StatusPreparing, true
	case models.StatusPreparing:
		return models.StatusReady, true
	case models.StatusReady:
		if isDelivery {
			return models.StatusAwaitingPickup, true
		}
		return models.StatusDelivered, true
	default:
		return "", false
	}
}
