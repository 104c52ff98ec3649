package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-delivery/internal/models"
)

var ErrNotFound = errors.New("order not found")

// DB is the order record store. Every lifecycle write is a single conditional
// UPDATE; callers learn whether they won from the affected row count.
type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// ---------------- READS ----------------

// GetOrderByID → fetch one order by its ID
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders → newest first, optionally restricted to some statuses
func (d *DB) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	orders := []models.Order{}
	q := d.Bun.NewSelect().
		Model(&orders).
		Order("created_at DESC")
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(filter.Statuses))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return orders, nil
}

// ---------------- WRITES ----------------

// CreateOrder → insert new order
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

// TransitionStatus moves an order from one status to the next only if it is
// still at from. Leaving in_transit clears motoboy_arrived.
func (d *DB) TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", from)
	if from == models.StatusInTransit {
		q = q.Set("motoboy_arrived = ?", false)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition %s %s->%s: %w", id, from, to, err)
	}
	return affectedOne(res)
}

// ClaimOrder assigns an unclaimed awaiting_pickup order to a courier. Exactly
// one of any number of concurrent callers gets true.
func (d *DB) ClaimOrder(ctx context.Context, id, courierID, courierName string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.StatusInTransit).
		Set("motoboy_id = ?", courierID).
		Set("motoboy_name = ?", courierName).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("motoboy_id IS NULL").
		Where("status = ?", models.StatusAwaitingPickup).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", id, err)
	}
	return affectedOne(res)
}

// MarkArrived flags that the owning courier reached the customer.
func (d *DB) MarkArrived(ctx context.Context, id, courierID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("motoboy_arrived = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", models.StatusInTransit).
		Where("motoboy_id = ?", courierID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark arrived %s: %w", id, err)
	}
	return affectedOne(res)
}

// CompleteDelivery closes an in_transit order owned by courierID.
func (d *DB) CompleteDelivery(ctx context.Context, id, courierID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.StatusDelivered).
		Set("motoboy_arrived = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", models.StatusInTransit).
		Where("motoboy_id = ?", courierID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("complete delivery %s: %w", id, err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
