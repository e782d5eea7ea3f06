package table

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tableside/internal/apperrors"
	"tableside/internal/database"
	"tableside/internal/logger"
	"tableside/internal/messaging"
	"tableside/internal/models"
)

// Service owns the table occupancy state machine. The Occupied flip on
// order creation and the Free flip on billing happen inside those
// transactions; this service serves staff reads and the explicit
// SetStatus contract.
type Service struct {
	db        *database.DB
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewService creates a table service
func NewService(db *database.DB, publisher messaging.EventPublisher, log *logger.Logger) *Service {
	return &Service{
		db:        db,
		publisher: publisher,
		logger:    log,
	}
}

// Get returns one table
func (s *Service) Get(ctx context.Context, tableID uuid.UUID) (*models.Table, error) {
	var t models.Table
	err := s.db.QueryRow(ctx, database.GetTableSQL, tableID).
		Scan(&t.ID, &t.RestaurantID, &t.Title, &t.Capacity, &t.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	return &t, nil
}

// ListByRestaurant returns the occupancy view for the staff dashboard
func (s *Service) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]models.Table, error) {
	rows, err := s.db.Query(ctx, database.ListTablesByRestaurantSQL, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []models.Table
	for rows.Next() {
		var t models.Table
		if err := rows.Scan(&t.ID, &t.RestaurantID, &t.Title, &t.Capacity, &t.Status); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// SetStatus moves a table to the target status. Setting a table already in
// the target status is a no-op. Freeing a table that still has active
// orders fails with ErrConflict.
func (s *Service) SetStatus(ctx context.Context, tableID, requesterRestaurantID uuid.UUID, status models.TableStatus, requestID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var t models.Table
	err = tx.QueryRow(ctx, database.GetTableForUpdateSQL, tableID).
		Scan(&t.ID, &t.RestaurantID, &t.Title, &t.Capacity, &t.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock table: %w", err)
	}

	if t.RestaurantID != requesterRestaurantID {
		return apperrors.ErrForbidden
	}

	if t.Status == status {
		return tx.Commit(ctx)
	}

	if status == models.TableFree {
		var active int
		if err := tx.QueryRow(ctx, database.CountActiveOrdersForTableSQL, tableID).Scan(&active); err != nil {
			return fmt.Errorf("failed to count active orders: %w", err)
		}
		if active > 0 {
			return fmt.Errorf("%w: table has %d active orders", apperrors.ErrConflict, active)
		}
	}

	if _, err := tx.Exec(ctx, database.SetTableStatusSQL, tableID, status); err != nil {
		return fmt.Errorf("failed to set table status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.publishStatusChange(ctx, t.RestaurantID, tableID, status, requestID)
	return nil
}

// publishStatusChange is best-effort: a publish failure never affects the
// committed state change.
func (s *Service) publishStatusChange(ctx context.Context, restaurantID, tableID uuid.UUID, status models.TableStatus, requestID string) {
	event := models.Event{
		Type:         models.EventTableStatusChanged,
		EntityID:     tableID,
		Status:       string(status),
		RestaurantID: restaurantID,
		TableID:      &tableID,
		OccurredAt:   time.Now().UTC(),
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish table status event", requestID, err, map[string]interface{}{
			"table_id": tableID,
			"status":   status,
		})
	}
}
