// Package catalog is the read-only boundary to the menu catalog. Menu CRUD
// lives elsewhere; the engine only ever resolves prices and categories.
package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tableside/internal/database"
)

// MenuItem is the slice of a catalog entry the engine cares about
type MenuItem struct {
	ID        uuid.UUID
	UnitPrice decimal.Decimal
	Alcoholic bool
	Active    bool
}

// Resolver resolves menu item ids for one restaurant
type Resolver interface {
	Resolve(ctx context.Context, restaurantID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]MenuItem, error)
}

// Service is the Postgres-backed resolver
type Service struct {
	db *database.DB
}

// NewService creates a catalog resolver over the shared pool
func NewService(db *database.DB) *Service {
	return &Service{db: db}
}

// Resolve returns the catalog entries for itemIDs that belong to the
// restaurant. Absent ids are simply missing from the result map; the caller
// decides whether that is an error.
func (s *Service) Resolve(ctx context.Context, restaurantID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]MenuItem, error) {
	if len(itemIDs) == 0 {
		return map[uuid.UUID]MenuItem{}, nil
	}

	rows, err := s.db.Query(ctx, database.ResolveMenuItemsSQL, restaurantID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve menu items: %w", err)
	}
	defer rows.Close()

	resolved := make(map[uuid.UUID]MenuItem, len(itemIDs))
	for rows.Next() {
		var item MenuItem
		if err := rows.Scan(&item.ID, &item.UnitPrice, &item.Alcoholic, &item.Active); err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		resolved[item.ID] = item
	}

	return resolved, rows.Err()
}
