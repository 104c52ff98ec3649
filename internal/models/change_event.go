package models

import "time"

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

const (
	TableOrders    = "orders"
	TableStoreInfo = "store_info"
)

// ChangeEvent describes one row change pushed to subscribers. New and Old are
// nil for tables other than orders.
type ChangeEvent struct {
	Type       ChangeType `json:"event_type"`
	Table      string     `json:"table"`
	New        *Order     `json:"new,omitempty"`
	Old        *Order     `json:"old,omitempty"`
	CommitTime time.Time  `json:"commit_time"`
}

// OrderID returns the id of the row the event concerns.
func (e ChangeEvent) OrderID() string {
	if e.New != nil {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return ""
}

func NewOrderChange(kind ChangeType, newRow, oldRow *Order) ChangeEvent {
	return ChangeEvent{
		Type:       kind,
		Table:      TableOrders,
		New:        newRow,
		Old:        oldRow,
		CommitTime: time.Now().UTC(),
	}
}
