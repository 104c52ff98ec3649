package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"ms-delivery/internal/changefeed"
	"ms-delivery/internal/lifecycle"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/metrics"
	"ms-delivery/internal/models"
	"ms-delivery/internal/order/db"
)

var (
	ErrNotFound          = db.ErrNotFound
	ErrInvalidTransition = lifecycle.ErrInvalidTransition
	ErrStaleStatus       = errors.New("order status changed concurrently")
	ErrNotOwner          = errors.New("order is assigned to another courier")
	ErrValidation        = errors.New("invalid order")
	ErrForbidden         = errors.New("action not permitted for role")
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error)
	ClaimOrder(ctx context.Context, id, courierID, courierName string) (bool, error)
	MarkArrived(ctx context.Context, id, courierID string) (bool, error)
	CompleteDelivery(ctx context.Context, id, courierID string) (bool, error)
}

type OrderService struct {
	DB          DBLayer
	Changes     changefeed.Publisher
	Logger      *logger.Logger
	DeliveryFee float64

	validate *validator.Validate
}

func NewOrderService(store DBLayer, changes changefeed.Publisher, log *logger.Logger, deliveryFee float64) *OrderService {
	return &OrderService{
		DB:          store,
		Changes:     changes,
		Logger:      log,
		DeliveryFee: deliveryFee,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ---------------- READS ----------------

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.DB.GetOrderByID(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	return s.DB.ListOrders(ctx, filter)
}

// ---------------- CHECKOUT ----------------

// PlaceOrder validates a checkout, prices it and stores it as pending.
func (s *OrderService) PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.Order, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, describeValidation(err))
	}

	address := ""
	if req.Address != nil {
		address = strings.TrimSpace(req.Address.String())
		if len([]rune(address)) < 5 {
			return nil, fmt.Errorf("%w: delivery address too short", ErrValidation)
		}
	}
	isDelivery := address != ""

	total := req.ItemsTotal()
	if isDelivery {
		total = models.RoundCents(total + s.DeliveryFee)
	}

	if req.ChangeFor != nil {
		if req.PaymentMethod != models.PaymentCash {
			return nil, fmt.Errorf("%w: change_for is only accepted for cash payments", ErrValidation)
		}
		if *req.ChangeFor < total {
			return nil, fmt.Errorf("%w: change_for %.2f is below total %.2f", ErrValidation, *req.ChangeFor, total)
		}
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:              uuid.NewString(),
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   req.CustomerPhone,
		Items:           req.Items,
		Total:           total,
		DeliveryAddress: address,
		IsDelivery:      isDelivery,
		PaymentMethod:   req.PaymentMethod,
		ChangeFor:       req.ChangeFor,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.DB.CreateOrder(ctx, order); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("place_order").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	mode := "pickup"
	if isDelivery {
		mode = "delivery"
	}
	metrics.OrdersPlacedTotal.WithLabelValues(mode).Inc()
	s.Logger.LogOrder("PLACE", order.ID, fmt.Sprintf("%s order, total %.2f", mode, total))

	created := order.Clone()
	s.publish(ctx, models.NewOrderChange(models.ChangeInsert, &created, nil))
	return order, nil
}

// ---------------- LIFECYCLE ----------------

// SetStatus applies a status change on behalf of actor. The move is checked
// against the transition table and then written as a compare-and-swap on the
// status the service just read.
func (s *OrderService) SetStatus(ctx context.Context, actor models.Actor, id string, to models.OrderStatus) (*models.Order, error) {
	current, err := s.DB.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := lifecycle.Validate(actor.Role, current.Status, to, current.IsDelivery); err != nil {
		metrics.RejectedTransitionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	// courier edges carry ownership and go through their own predicates
	if actor.Role == models.RoleCourier {
		switch to {
		case models.StatusInTransit:
			won, err := s.Claim(ctx, actor, id)
			if err != nil {
				return nil, err
			}
			if !won {
				return nil, ErrStaleStatus
			}
			return s.DB.GetOrderByID(ctx, id)
		case models.StatusDelivered:
			return s.CompleteDelivery(ctx, actor, id)
		}
	}

	ok, err := s.DB.TransitionStatus(ctx, id, current.Status, to)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("set_status").Inc()
		return nil, err
	}
	if !ok {
		metrics.RejectedTransitionsTotal.WithLabelValues("stale").Inc()
		return nil, fmt.Errorf("%w: %s is no longer %s", ErrStaleStatus, id, current.Status)
	}

	metrics.StatusTransitionsTotal.WithLabelValues(string(current.Status), string(to)).Inc()
	s.Logger.LogOrder("STATUS", id, fmt.Sprintf("%s -> %s by %s", current.Status, to, actor.Role))
	return s.reloadAndPublish(ctx, id, current)
}

// Claim runs the claim protocol for a courier. Losing the race is not an
// error: it returns false and the caller resyncs.
func (s *OrderService) Claim(ctx context.Context, actor models.Actor, id string) (bool, error) {
	if actor.Role != models.RoleCourier || actor.ID == "" {
		return false, ErrForbidden
	}

	won, err := s.DB.ClaimOrder(ctx, id, actor.ID, actor.DisplayName())
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("claim").Inc()
		return false, err
	}
	s.Logger.LogClaim(id, actor.ID, won)

	if !won {
		metrics.ClaimsTotal.WithLabelValues("lost").Inc()
		if _, err := s.DB.GetOrderByID(ctx, id); errors.Is(err, ErrNotFound) {
			return false, ErrNotFound
		}
		return false, nil
	}

	metrics.ClaimsTotal.WithLabelValues("won").Inc()
	metrics.StatusTransitionsTotal.WithLabelValues(string(models.StatusAwaitingPickup), string(models.StatusInTransit)).Inc()
	before := &models.Order{ID: id, Status: models.StatusAwaitingPickup}
	if _, err := s.reloadAndPublish(ctx, id, before); err != nil {
		s.Logger.Warn("ORDER", fmt.Sprintf("Claimed %s but reload failed: %v", id, err))
	}
	return true, nil
}

// MarkArrived sets motoboy_arrived on an in_transit order owned by actor.
func (s *OrderService) MarkArrived(ctx context.Context, actor models.Actor, id string) (*models.Order, error) {
	if actor.Role != models.RoleCourier {
		return nil, ErrForbidden
	}
	ok, err := s.DB.MarkArrived(ctx, id, actor.ID)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("mark_arrived").Inc()
		return nil, err
	}
	if !ok {
		return nil, s.explainCourierMiss(ctx, id, actor.ID)
	}
	s.Logger.LogOrder("ARRIVED", id, fmt.Sprintf("courier %s at destination", actor.ID))
	return s.reloadAndPublish(ctx, id, &models.Order{ID: id, Status: models.StatusInTransit})
}

// CompleteDelivery closes an in_transit order owned by actor.
func (s *OrderService) CompleteDelivery(ctx context.Context, actor models.Actor, id string) (*models.Order, error) {
	if actor.Role != models.RoleCourier {
		return nil, ErrForbidden
	}
	ok, err := s.DB.CompleteDelivery(ctx, id, actor.ID)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("complete_delivery").Inc()
		return nil, err
	}
	if !ok {
		return nil, s.explainCourierMiss(ctx, id, actor.ID)
	}
	metrics.StatusTransitionsTotal.WithLabelValues(string(models.StatusInTransit), string(models.StatusDelivered)).Inc()
	s.Logger.LogOrder("DELIVERED", id, fmt.Sprintf("by courier %s", actor.ID))
	return s.reloadAndPublish(ctx, id, &models.Order{ID: id, Status: models.StatusInTransit})
}

// explainCourierMiss turns a zero-row courier write into the reason it missed.
func (s *OrderService) explainCourierMiss(ctx context.Context, id, courierID string) error {
	current, err := s.DB.GetOrderByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case current.Status != models.StatusInTransit:
		metrics.RejectedTransitionsTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: order is %s", ErrInvalidTransition, current.Status)
	case !current.OwnedBy(courierID):
		metrics.RejectedTransitionsTotal.WithLabelValues("not_owner").Inc()
		return ErrNotOwner
	default:
		metrics.RejectedTransitionsTotal.WithLabelValues("stale").Inc()
		return ErrStaleStatus
	}
}

func (s *OrderService) reloadAndPublish(ctx context.Context, id string, before *models.Order) (*models.Order, error) {
	updated, err := s.DB.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	after := updated.Clone()
	s.publish(ctx, models.NewOrderChange(models.ChangeUpdate, &after, before))
	return updated, nil
}

// publish never fails the write it follows; subscribers that miss an event
// catch up on their next poll.
func (s *OrderService) publish(ctx context.Context, ev models.ChangeEvent) {
	if s.Changes == nil {
		return
	}
	if err := s.Changes.Publish(ctx, ev); err != nil {
		metrics.ChangeEventsPublishedTotal.WithLabelValues(ev.Table, "error").Inc()
		s.Logger.Warn("CHANGEFEED", fmt.Sprintf("Publish %s %s failed: %v", ev.Type, ev.OrderID(), err))
		return
	}
	metrics.ChangeEventsPublishedTotal.WithLabelValues(ev.Table, "ok").Inc()
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
