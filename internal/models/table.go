package models

import "github.com/google/uuid"

// TableStatus represents the occupancy of a table
type TableStatus string

const (
	TableFree     TableStatus = "free"
	TableOccupied TableStatus = "occupied"
)

// Table represents a physical restaurant table. A table is occupied iff at
// least one order referencing it is in an active status.
type Table struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	RestaurantID uuid.UUID   `json:"restaurant_id" db:"restaurant_id"`
	Title        string      `json:"title" db:"title"`
	Capacity     int         `json:"capacity" db:"capacity"`
	Status       TableStatus `json:"status" db:"status"`
}
