package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusPreparing      OrderStatus = "preparing"
	StatusReady          OrderStatus = "ready"
	StatusAwaitingPickup OrderStatus = "awaiting_pickup"
	StatusInTransit      OrderStatus = "in_transit"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []OrderStatus{
	StatusPending,
	StatusPreparing,
	StatusReady,
	StatusAwaitingPickup,
	StatusInTransit,
	StatusDelivered,
	StatusCancelled,
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCredit PaymentMethod = "credit"
	PaymentDebit  PaymentMethod = "debit"
	PaymentPix    PaymentMethod = "pix"
)

type OrderItem struct {
	MenuItemID string  `json:"menu_item_id" validate:"required"`
	Name       string  `json:"name" validate:"required"`
	UnitPrice  float64 `json:"unit_price" validate:"gt=0"`
	Quantity   int     `json:"quantity" validate:"gte=1"`
	Notes      string  `json:"notes,omitempty" validate:"max=280"`
}

// Address is the structured delivery address captured at checkout.
type Address struct {
	Street       string `json:"street" validate:"required,min=3"`
	Number       string `json:"number" validate:"required"`
	Complement   string `json:"complement,omitempty" validate:"max=100"`
	Neighborhood string `json:"neighborhood" validate:"required"`
	City         string `json:"city" validate:"required"`
	ZipCode      string `json:"zip_code" validate:"omitempty,numeric,len=8"`
}

// String renders the address the way it is stored on the order row.
func (a Address) String() string {
	if a.Street == "" && a.City == "" {
		return ""
	}
	line := strings.TrimSpace(a.Street)
	if a.Number != "" {
		line += ", " + a.Number
	}
	if a.Complement != "" {
		line += " - " + a.Complement
	}
	parts := []string{line}
	if a.Neighborhood != "" {
		parts = append(parts, a.Neighborhood)
	}
	if a.City != "" {
		parts = append(parts, a.City)
	}
	if a.ZipCode != "" {
		parts = append(parts, a.ZipCode)
	}
	return strings.Join(parts, " - ")
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              string        `bun:"id,pk" json:"id"`
	CustomerName    string        `bun:"customer_name,notnull" json:"customer_name"`
	CustomerPhone   string        `bun:"customer_phone,notnull" json:"customer_phone"`
	Items           []OrderItem   `bun:"items" json:"items"`
	Total           float64       `bun:"total,notnull" json:"total"`
	DeliveryAddress string        `bun:"delivery_address" json:"delivery_address"`
	IsDelivery      bool          `bun:"is_delivery,notnull" json:"is_delivery"`
	PaymentMethod   PaymentMethod `bun:"payment_method,notnull" json:"payment_method"`
	ChangeFor       *float64      `bun:"change_for" json:"change_for,omitempty"`
	Status          OrderStatus   `bun:"status,notnull" json:"status"`
	CourierID       *string       `bun:"motoboy_id" json:"motoboy_id"`
	CourierName     string        `bun:"motoboy_name" json:"motoboy_name,omitempty"`
	CourierArrived  bool          `bun:"motoboy_arrived,notnull" json:"motoboy_arrived"`
	CreatedAt       time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Claimed reports whether a courier owns the order.
func (o Order) Claimed() bool {
	return o.CourierID != nil && *o.CourierID != ""
}

// OwnedBy reports whether courierID owns the order.
func (o Order) OwnedBy(courierID string) bool {
	return o.Claimed() && *o.CourierID == courierID
}

// Normalize coerces partial rows coming back from the store. It fails only when
// the row cannot be interpreted at all.
func (o *Order) Normalize() error {
	if o.ID == "" {
		return fmt.Errorf("order without id")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("order %s has unknown status %q", o.ID, o.Status)
	}
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
	if o.CourierID != nil && *o.CourierID == "" {
		o.CourierID = nil
	}
	return nil
}

// Clone returns a deep copy so projections never share mutable state.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]OrderItem, len(o.Items))
		copy(c.Items, o.Items)
	}
	if o.CourierID != nil {
		id := *o.CourierID
		c.CourierID = &id
	}
	if o.ChangeFor != nil {
		v := *o.ChangeFor
		c.ChangeFor = &v
	}
	return c
}

// SanitizeOrders normalizes every row, dropping the ones that cannot be used.
func SanitizeOrders(rows []Order) ([]Order, []error) {
	out := make([]Order, 0, len(rows))
	var errs []error
	for i := range rows {
		o := rows[i].Clone()
		if err := o.Normalize(); err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, o)
	}
	return out, errs
}

// PlaceOrderRequest is what the storefront submits at checkout.
type PlaceOrderRequest struct {
	CustomerName  string        `json:"customer_name" validate:"required,min=3"`
	CustomerPhone string        `json:"customer_phone" validate:"required,numeric,min=10,max=11"`
	Items         []OrderItem   `json:"items" validate:"required,min=1,dive"`
	Address       *Address      `json:"address,omitempty" validate:"omitempty"`
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=cash credit debit pix"`
	ChangeFor     *float64      `json:"change_for,omitempty" validate:"omitempty,gt=0"`
}

// ItemsTotal sums the line items rounded to cents.
func (r PlaceOrderRequest) ItemsTotal() float64 {
	var sum float64
	for _, item := range r.Items {
		sum += item.UnitPrice * float64(item.Quantity)
	}
	return RoundCents(sum)
}

func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

type StatusUpdateRequest struct {
	Status OrderStatus `json:"status"`
}

type ClaimResponse struct {
	OrderID string `json:"order_id"`
	Claimed bool   `json:"claimed"`
}

type OrderFilter struct {
	Statuses []OrderStatus
	Limit    int
}
