package admission

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

// Repository is the persistence boundary of the admission controller
type Repository interface {
	GetPlan(ctx context.Context, restaurantID uuid.UUID) (*models.SubscriptionPlan, error)
	MonthlyVisitorCount(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (int, error)
	AdmitVisitor(ctx context.Context, restaurantID uuid.UUID, day time.Time, visitorID uuid.UUID, dailyLimit int) (models.AdmissionOutcome, error)
	ActivateMenu(ctx context.Context, restaurantID, entityID uuid.UUID, kind models.MenuKind) error
}

// PostgresRepository implements Repository over pgx
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates the pgx-backed repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetPlan returns the restaurant's subscription plan
func (r *PostgresRepository) GetPlan(ctx context.Context, restaurantID uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.QueryRow(ctx, database.GetSubscriptionPlanSQL, restaurantID).Scan(
		&plan.RestaurantID, &plan.DailyCustomerLimit, &plan.MonthlyCustomerLimit,
		&plan.MenuCategoryLimit, &plan.MenuItemLimit, &plan.TableLimit,
		&plan.Active, &plan.PeriodStart)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription plan: %w", err)
	}
	return &plan, nil
}

// MonthlyVisitorCount sums distinct daily visitors over [from, to)
func (r *PostgresRepository) MonthlyVisitorCount(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, database.MonthlyVisitorCountSQL, restaurantID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count monthly visitors: %w", err)
	}
	return count, nil
}

// AdmitVisitor runs the atomic append-if-absent-and-under-limit operation.
// The (restaurant, day) ledger row lock serializes concurrent admissions so
// two requests cannot both pass the limit check and both insert.
func (r *PostgresRepository) AdmitVisitor(ctx context.Context, restaurantID uuid.UUID, day time.Time, visitorID uuid.UUID, dailyLimit int) (models.AdmissionOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, database.EnsureVisitorLedgerSQL, restaurantID, day); err != nil {
		return "", fmt.Errorf("failed to ensure visitor ledger: %w", err)
	}

	var visitors []string
	err = tx.QueryRow(ctx, database.GetVisitorLedgerForUpdateSQL, restaurantID, day).Scan(&visitors)
	if err != nil {
		return "", fmt.Errorf("failed to lock visitor ledger: %w", err)
	}

	visitor := visitorID.String()
	for _, seen := range visitors {
		if seen == visitor {
			// Repeat visit within the same day is free
			return models.AdmittedRepeat, tx.Commit(ctx)
		}
	}

	if len(visitors) >= dailyLimit {
		return models.DeniedDaily, nil
	}

	if _, err := tx.Exec(ctx, database.AppendVisitorSQL, restaurantID, day, visitor); err != nil {
		return "", fmt.Errorf("failed to append visitor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return models.AdmittedNew, nil
}

// ActivateMenu flips a menu item or category to active after the
// count-compare-flip quota check. The plan row lock serializes concurrent
// activations per restaurant.
func (r *PostgresRepository) ActivateMenu(ctx context.Context, restaurantID, entityID uuid.UUID, kind models.MenuKind) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var itemLimit, categoryLimit int
	err = tx.QueryRow(ctx, database.LockPlanForQuotaSQL, restaurantID).Scan(&itemLimit, &categoryLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNoSubscription
	}
	if err != nil {
		return fmt.Errorf("failed to lock subscription plan: %w", err)
	}

	countSQL, activateSQL, limit := database.CountActiveMenuItemsSQL, database.ActivateMenuItemSQL, itemLimit
	if kind == models.MenuKindCategory {
		countSQL, activateSQL, limit = database.CountActiveMenuCategoriesSQL, database.ActivateMenuCategorySQL, categoryLimit
	}

	var active int
	if err := tx.QueryRow(ctx, countSQL, restaurantID).Scan(&active); err != nil {
		return fmt.Errorf("failed to count active menu entries: %w", err)
	}
	if active >= limit {
		return fmt.Errorf("%w: %s limit %d reached", apperrors.ErrMenuLimitExceeded, kind, limit)
	}

	tag, err := tx.Exec(ctx, activateSQL, restaurantID, entityID)
	if err != nil {
		return fmt.Errorf("failed to activate menu %s: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		// Already active, or not this restaurant's entry
		existsSQL := database.MenuItemExistsSQL
		if kind == models.MenuKindCategory {
			existsSQL = database.MenuCategoryExistsSQL
		}
		var exists bool
		err = tx.QueryRow(ctx, existsSQL, restaurantID, entityID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check menu %s: %w", kind, err)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		// Activating an already-active entry is a no-op
	}

	return tx.Commit(ctx)
}
