package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tableside/internal/apperrors"
)

// OrderStatus represents the lifecycle status of an order
type OrderStatus string

const (
	StatusNew       OrderStatus = "new"
	StatusReady     OrderStatus = "ready"
	StatusServed    OrderStatus = "served"
	StatusCancelled OrderStatus = "cancelled"
	StatusBilled    OrderStatus = "billed"
)

// transitions is the forward edge set of the order lifecycle. Billed and
// Cancelled are terminal; cancellation is reachable from every non-terminal
// status; Billed is reachable from Ready and Served (the billing engine
// retires both).
var transitions = map[OrderStatus][]OrderStatus{
	StatusNew:    {StatusReady, StatusCancelled},
	StatusReady:  {StatusServed, StatusBilled, StatusCancelled},
	StatusServed: {StatusBilled, StatusCancelled},
}

// ValidOrderStatus reports whether s is a known order status
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case StatusNew, StatusReady, StatusServed, StatusCancelled, StatusBilled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal lifecycle edge
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is permitted from s
func (s OrderStatus) Terminal() bool {
	return s == StatusBilled || s == StatusCancelled
}

// Active reports whether an order in status s keeps its table occupied
func (s OrderStatus) Active() bool {
	return s == StatusNew || s == StatusReady || s == StatusServed
}

// OrderItem is a single line of an order with the unit price resolved from
// the menu catalog at creation time.
type OrderItem struct {
	ID         int             `json:"id,omitempty" db:"id"`
	OrderID    uuid.UUID       `json:"order_id,omitempty" db:"order_id"`
	MenuItemID uuid.UUID       `json:"menu_item_id" db:"menu_item_id"`
	Quantity   int             `json:"quantity" db:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price" db:"unit_price"`
}

// Order represents a customer order against a table
type Order struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	RestaurantID uuid.UUID       `json:"restaurant_id" db:"restaurant_id"`
	CustomerID   uuid.UUID       `json:"customer_id" db:"customer_id"`
	TableID      uuid.UUID       `json:"table_id" db:"table_id"`
	Items        []OrderItem     `json:"items"`
	TotalAmount  decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status       OrderStatus     `json:"status" db:"status"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// ComputeTotal derives the order total from its items
func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// OrderItemRequest is an item as submitted by a customer; the unit price is
// never taken from the request.
type OrderItemRequest struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Quantity   int       `json:"quantity"`
}

// CreateOrderRequest represents the request to place a new order
type CreateOrderRequest struct {
	TableID uuid.UUID          `json:"table_id"`
	Items   []OrderItemRequest `json:"items"`
}

// Validate checks structural validity of the request
func (req *CreateOrderRequest) Validate() error {
	if req.TableID == uuid.Nil {
		return apperrors.Validation("table_id is required")
	}
	if len(req.Items) == 0 {
		return apperrors.Validation("items array cannot be empty")
	}
	if len(req.Items) > 50 {
		return apperrors.Validation("items array cannot contain more than 50 items")
	}
	for i, item := range req.Items {
		if item.MenuItemID == uuid.Nil {
			return apperrors.Validation("items[%d].menu_item_id is required", i)
		}
		if item.Quantity < 1 || item.Quantity > 50 {
			return apperrors.Validation("items[%d].quantity must be between 1 and 50", i)
		}
	}
	return nil
}

// UpdateOrderStatusRequest represents a staff status update
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status"`
}

// Validate checks the requested status is a known, staff-settable status.
// Billed is excluded: only the billing engine retires orders.
func (req *UpdateOrderStatusRequest) Validate() error {
	if !ValidOrderStatus(req.Status) {
		return apperrors.Validation("status must be one of: new, ready, served, cancelled")
	}
	if req.Status == StatusBilled {
		return apperrors.Validation("orders are billed through the billing engine, not status updates")
	}
	return nil
}

// AmendOrderItemsRequest replaces the items of an order still in status new
type AmendOrderItemsRequest struct {
	Items []OrderItemRequest `json:"items"`
}

// Validate checks structural validity of the amendment
func (req *AmendOrderItemsRequest) Validate() error {
	if len(req.Items) == 0 {
		return apperrors.Validation("items array cannot be empty")
	}
	if len(req.Items) > 50 {
		return apperrors.Validation("items array cannot contain more than 50 items")
	}
	for i, item := range req.Items {
		if item.MenuItemID == uuid.Nil {
			return apperrors.Validation("items[%d].menu_item_id is required", i)
		}
		if item.Quantity < 1 || item.Quantity > 50 {
			return apperrors.Validation("items[%d].quantity must be between 1 and 50", i)
		}
	}
	return nil
}
