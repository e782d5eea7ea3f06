package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tableside/internal/apperrors"
	"tableside/internal/database"
	"tableside/internal/models"
)

// BuildFunc turns the locked billable orders into a bill. It runs inside
// the billing transaction; the orders carry their items.
type BuildFunc func(orders []models.Order) (*models.Bill, error)

// Repository is the persistence boundary of the billing engine
type Repository interface {
	TaxRates(ctx context.Context, restaurantID uuid.UUID) (models.TaxTable, error)
	GenerateBill(ctx context.Context, restaurantID uuid.UUID, target models.BillTarget, since time.Time, build BuildFunc) (*models.Bill, bool, error)
	Get(ctx context.Context, billID uuid.UUID) (*models.Bill, error)
	ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, limit, offset int) ([]models.Bill, error)
	UpdatePayment(ctx context.Context, billID, restaurantID uuid.UUID, status models.PaymentStatus, method string) error
}

// PostgresRepository implements Repository over pgx
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates the pgx-backed repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// TaxRates loads the restaurant's named tax percentages. Rates missing
// from the table are simply absent from the result.
func (r *PostgresRepository) TaxRates(ctx context.Context, restaurantID uuid.UUID) (models.TaxTable, error) {
	rows, err := r.db.Query(ctx, database.GetTaxRatesSQL, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tax rates: %w", err)
	}
	defer rows.Close()

	rates := make(models.TaxTable)
	for rows.Next() {
		var rate models.TaxRate
		if err := rows.Scan(&rate.TaxName, &rate.TaxPercentage); err != nil {
			return nil, fmt.Errorf("failed to scan tax rate: %w", err)
		}
		rates[rate.TaxName] = rate.TaxPercentage
	}
	return rates, rows.Err()
}

// GenerateBill runs one billing pass in a single transaction: the billable
// orders are selected FOR UPDATE so concurrent runs over the same target
// serialize, the bill built by build is inserted, the orders flip to
// billed, and a table target with no remaining active orders is freed.
// The second return reports whether the table was freed.
func (r *PostgresRepository) GenerateBill(ctx context.Context, restaurantID uuid.UUID, target models.BillTarget, since time.Time, build BuildFunc) (*models.Bill, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	orders, err := selectBillable(ctx, tx, restaurantID, target, since)
	if err != nil {
		return nil, false, err
	}
	if len(orders) == 0 {
		return nil, false, apperrors.ErrNothingToBill
	}

	for i := range orders {
		if err := loadItems(ctx, tx, &orders[i]); err != nil {
			return nil, false, err
		}
	}

	bill, err := build(orders)
	if err != nil {
		return nil, false, err
	}

	err = tx.QueryRow(ctx, database.InsertBillSQL,
		bill.ID, bill.RestaurantID, bill.TableID,
		uuidStrings(bill.Customers), uuidStrings(bill.Orders),
		bill.GrossTotal, bill.ServiceCharge, bill.VATAlcohol, bill.VATFood,
		bill.ServiceTax, bill.NetAmount,
		bill.PaymentStatus, bill.PaymentMethod,
	).Scan(&bill.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert bill: %w", err)
	}

	if _, err = tx.Exec(ctx, database.MarkOrdersBilledSQL, uuidStrings(bill.Orders)); err != nil {
		return nil, false, fmt.Errorf("failed to mark orders billed: %w", err)
	}
	for _, o := range orders {
		_, err = tx.Exec(ctx, database.InsertOrderStatusLogSQL,
			o.ID, o.Status, models.StatusBilled, "billing-engine")
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert status log: %w", err)
		}
	}

	tableFreed := false
	if target.TableID != nil {
		// Lock the table row before counting, the same order as order
		// creation. Without the lock an in-flight creation could commit a
		// new active order between the count and the status update, and
		// the table would end up free while occupied.
		var table models.Table
		err = tx.QueryRow(ctx, database.GetTableForUpdateSQL, *target.TableID).
			Scan(&table.ID, &table.RestaurantID, &table.Title, &table.Capacity, &table.Status)
		if err != nil {
			return nil, false, fmt.Errorf("failed to lock table: %w", err)
		}

		var active int
		err = tx.QueryRow(ctx, database.CountActiveOrdersForTableSQL, *target.TableID).Scan(&active)
		if err != nil {
			return nil, false, fmt.Errorf("failed to count active orders: %w", err)
		}
		if active == 0 {
			if _, err = tx.Exec(ctx, database.SetTableStatusSQL, *target.TableID, models.TableFree); err != nil {
				return nil, false, fmt.Errorf("failed to free table: %w", err)
			}
			tableFreed = true
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return bill, tableFreed, nil
}

// Get returns one bill by id
func (r *PostgresRepository) Get(ctx context.Context, billID uuid.UUID) (*models.Bill, error) {
	bill, err := scanBill(r.db.QueryRow(ctx, database.GetBillSQL, billID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return bill, nil
}

// ListByRestaurant returns the restaurant's bills, newest first
func (r *PostgresRepository) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, limit, offset int) ([]models.Bill, error) {
	rows, err := r.db.Query(ctx, database.ListBillsByRestaurantSQL, restaurantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	var bills []models.Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, *bill)
	}
	return bills, rows.Err()
}

// UpdatePayment settles or fails a pending bill. The pending guard is in
// the predicate, so a second settlement attempt affects zero rows.
func (r *PostgresRepository) UpdatePayment(ctx context.Context, billID, restaurantID uuid.UUID, status models.PaymentStatus, method string) error {
	tag, err := r.db.Pool.Exec(ctx, database.UpdateBillPaymentSQL, billID, restaurantID, status, method)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing bill from one already settled.
		if _, err := r.Get(ctx, billID); err != nil {
			return err
		}
		return apperrors.ErrConflict
	}
	return nil
}

func selectBillable(ctx context.Context, tx pgx.Tx, restaurantID uuid.UUID, target models.BillTarget, since time.Time) ([]models.Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if target.TableID != nil {
		rows, err = tx.Query(ctx, database.SelectBillableForTableSQL, restaurantID, *target.TableID, since)
	} else {
		rows, err = tx.Query(ctx, database.SelectBillableForCustomerSQL, restaurantID, *target.CustomerID, since)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select billable orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		err := rows.Scan(&o.ID, &o.RestaurantID, &o.CustomerID, &o.TableID,
			&o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func loadItems(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	rows, err := tx.Query(ctx, database.GetOrderItemsSQL, order.ID)
	if err != nil {
		return fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.MenuItemID, &item.Quantity, &item.UnitPrice); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBill(row rowScanner) (*models.Bill, error) {
	var (
		b         models.Bill
		customers []string
		orders    []string
	)
	err := row.Scan(&b.ID, &b.RestaurantID, &b.TableID, &customers, &orders,
		&b.GrossTotal, &b.ServiceCharge, &b.VATAlcohol, &b.VATFood,
		&b.ServiceTax, &b.NetAmount,
		&b.PaymentStatus, &b.PaymentMethod, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if b.Customers, err = parseUUIDs(customers); err != nil {
		return nil, err
	}
	if b.Orders, err = parseUUIDs(orders); err != nil {
		return nil, err
	}
	return &b, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse uuid %q: %w", s, err)
		}
		out[i] = id
	}
	return out, nil
}
