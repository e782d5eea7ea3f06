package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the real-time event kinds
type EventType string

const (
	EventConnected          EventType = "connected"
	EventOrderCreated       EventType = "order_created"
	EventOrderStatusChanged EventType = "order_status_changed"
	EventTableStatusChanged EventType = "table_status_changed"
)

// Event is the payload pushed to connected staff and customer sessions.
// Delivery is at-most-once and non-durable; a publish failure never rolls
// back the state change that caused it.
type Event struct {
	Type         EventType  `json:"type"`
	EntityID     uuid.UUID  `json:"entity_id"`
	Status       string     `json:"status"`
	RestaurantID uuid.UUID  `json:"restaurant_id"`
	TableID      *uuid.UUID `json:"table_id,omitempty"`
	CustomerID   *uuid.UUID `json:"customer_id,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// RestaurantRoom names the staff room for a restaurant
func RestaurantRoom(restaurantID uuid.UUID) string {
	return fmt.Sprintf("restaurant:%s", restaurantID)
}

// TableRoom names the customer room scoped to one table
func TableRoom(restaurantID, tableID uuid.UUID) string {
	return fmt.Sprintf("restaurant:%s:table:%s", restaurantID, tableID)
}

// CustomerRoom names the customer room scoped to one customer
func CustomerRoom(restaurantID, customerID uuid.UUID) string {
	return fmt.Sprintf("restaurant:%s:customer:%s", restaurantID, customerID)
}

// Rooms lists every room this event fans out to: always the restaurant
// staff room, plus table and customer rooms when the event is scoped.
func (e Event) Rooms() []string {
	rooms := []string{RestaurantRoom(e.RestaurantID)}
	if e.TableID != nil {
		rooms = append(rooms, TableRoom(e.RestaurantID, *e.TableID))
	}
	if e.CustomerID != nil {
		rooms = append(rooms, CustomerRoom(e.RestaurantID, *e.CustomerID))
	}
	return rooms
}

// RoutingKey builds the broker routing key for this event. The restaurant
// segment always comes first so relay queues can bind with room.#.
func (e Event) RoutingKey() string {
	key := fmt.Sprintf("room.%s", e.RestaurantID)
	if e.TableID != nil {
		key = fmt.Sprintf("%s.table.%s", key, *e.TableID)
	} else if e.CustomerID != nil {
		key = fmt.Sprintf("%s.customer.%s", key, *e.CustomerID)
	}
	return key
}
