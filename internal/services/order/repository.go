package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"tableside/internal/apperrors"
	"tableside/internal/database"
	"tableside/internal/models"
)

// Repository is the persistence boundary of the order state machine
type Repository interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, changedBy string) (bool, error)
	ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem, total decimal.Decimal) (bool, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Order, error)
	ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, status *models.OrderStatus, limit, offset int) ([]models.Order, error)
}

// PostgresRepository implements Repository over pgx
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates the pgx-backed repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists a new order in one transaction: the table row is locked,
// ownership is verified, the order with its items and initial status-log
// row are inserted, and the table flips to occupied. Concurrent creations
// against the same table serialize on the row lock and commute.
func (r *PostgresRepository) Create(ctx context.Context, order *models.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var table models.Table
	err = tx.QueryRow(ctx, database.GetTableForUpdateSQL, order.TableID).
		Scan(&table.ID, &table.RestaurantID, &table.Title, &table.Capacity, &table.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock table: %w", err)
	}
	if table.RestaurantID != order.RestaurantID {
		return apperrors.ErrForbidden
	}

	err = tx.QueryRow(ctx, database.InsertOrderSQL,
		order.ID, order.RestaurantID, order.CustomerID, order.TableID,
		order.TotalAmount, order.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		_, err = tx.Exec(ctx, database.InsertOrderItemSQL,
			order.ID, item.MenuItemID, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	_, err = tx.Exec(ctx, database.InsertOrderStatusLogSQL,
		order.ID, nil, order.Status, "order-service")
	if err != nil {
		return fmt.Errorf("failed to insert status log: %w", err)
	}

	if table.Status != models.TableOccupied {
		if _, err = tx.Exec(ctx, database.SetTableStatusSQL, order.TableID, models.TableOccupied); err != nil {
			return fmt.Errorf("failed to occupy table: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Get returns one order with its items
func (r *PostgresRepository) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := r.db.QueryRow(ctx, database.GetOrderSQL, orderID).Scan(
		&o.ID, &o.RestaurantID, &o.CustomerID, &o.TableID,
		&o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	rows, err := r.db.Query(ctx, database.GetOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.MenuItemID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &o, nil
}

// UpdateStatusCAS performs the atomic read-modify-write keyed by
// (orderID, expected status). It reports false when the expected status no
// longer matches, i.e. the caller lost a race.
func (r *PostgresRepository) UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, changedBy string) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, database.UpdateOrderStatusCASSQL, orderID, to, from)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, database.InsertOrderStatusLogSQL, orderID, from, to, changedBy)
	if err != nil {
		return false, fmt.Errorf("failed to insert status log: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// ReplaceItems swaps the item set and total of an order that is still in
// status new. It reports false when the order has already left new.
func (r *PostgresRepository) ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem, total decimal.Decimal) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, database.UpdateOrderTotalSQL, orderID, total)
	if err != nil {
		return false, fmt.Errorf("failed to update order total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err = tx.Exec(ctx, database.DeleteOrderItemsSQL, orderID); err != nil {
		return false, fmt.Errorf("failed to delete order items: %w", err)
	}

	for _, item := range items {
		_, err = tx.Exec(ctx, database.InsertOrderItemSQL,
			orderID, item.MenuItemID, item.Quantity, item.UnitPrice)
		if err != nil {
			return false, fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// ListByCustomer returns a page of a customer's orders, newest first
func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Order, error) {
	rows, err := r.db.Query(ctx, database.ListOrdersByCustomerSQL, customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ListByRestaurant returns a page of a restaurant's orders, optionally
// filtered by status, newest first
func (r *PostgresRepository) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, status *models.OrderStatus, limit, offset int) ([]models.Order, error) {
	var statusFilter *string
	if status != nil {
		s := string(*status)
		statusFilter = &s
	}

	rows, err := r.db.Query(ctx, database.ListOrdersByRestaurantSQL, restaurantID, statusFilter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.RestaurantID, &o.CustomerID, &o.TableID,
			&o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
