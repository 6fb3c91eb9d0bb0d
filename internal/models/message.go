package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderEventType names an order lifecycle event
type OrderEventType string

const (
	EventOrderPlaced  OrderEventType = "order.placed"
	EventOrderDeleted OrderEventType = "order.deleted"
)

// OrderEvent is published after an order leaves the processing set
type OrderEvent struct {
	EventID   string         `json:"event_id"`
	Type      OrderEventType `json:"event_type"`
	OrderID   int            `json:"order_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewOrderEvent creates an OrderEvent with a fresh event id
func NewOrderEvent(eventType OrderEventType, orderID int) *OrderEvent {
	return &OrderEvent{
		EventID:   uuid.NewString(),
		Type:      eventType,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
	}
}

// RoutingKey returns the routing key used for this event
func (e *OrderEvent) RoutingKey() string {
	return string(e.Type)
}
