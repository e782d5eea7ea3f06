package admission

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tableside/internal/apperrors"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// Result is the outcome of an allowed admission
type Result struct {
	Allowed bool                    `json:"allowed"`
	Outcome models.AdmissionOutcome `json:"outcome"`
}

// Service gates new customer sessions against the restaurant's
// subscription quotas.
type Service struct {
	repo   Repository
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates an admission service
func NewService(repo Repository, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: log,
		now:    time.Now,
	}
}

// Admit decides whether a visitor may open a session. Plan and monthly
// checks happen first; the daily membership/limit/append step is one atomic
// ledger operation. Denials are typed outcomes, not failures.
func (s *Service) Admit(ctx context.Context, restaurantID, visitorID uuid.UUID, requestID string) (*Result, error) {
	plan, err := s.repo.GetPlan(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, apperrors.ErrNoSubscription
	}

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)

	monthly, err := s.repo.MonthlyVisitorCount(ctx, restaurantID, monthStart, nextMonth)
	if err != nil {
		return nil, err
	}
	if monthly >= plan.MonthlyCustomerLimit {
		s.logger.Info("admission_denied", "Monthly customer limit reached", requestID, map[string]interface{}{
			"restaurant_id": restaurantID,
			"monthly_count": monthly,
			"monthly_limit": plan.MonthlyCustomerLimit,
		})
		return nil, apperrors.ErrMonthlyLimitExceeded
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	outcome, err := s.repo.AdmitVisitor(ctx, restaurantID, day, visitorID, plan.DailyCustomerLimit)
	if err != nil {
		return nil, err
	}
	if outcome == models.DeniedDaily {
		s.logger.Info("admission_denied", "Daily customer limit reached", requestID, map[string]interface{}{
			"restaurant_id": restaurantID,
			"daily_limit":   plan.DailyCustomerLimit,
		})
		return nil, apperrors.ErrDailyLimitExceeded
	}

	s.logger.Debug("admission_allowed", "Visitor admitted", requestID, map[string]interface{}{
		"restaurant_id": restaurantID,
		"outcome":       outcome,
	})

	return &Result{Allowed: true, Outcome: outcome}, nil
}

// ActivateMenuItem gates a menu item activation against the plan's item
// quota.
func (s *Service) ActivateMenuItem(ctx context.Context, restaurantID, itemID uuid.UUID) error {
	return s.repo.ActivateMenu(ctx, restaurantID, itemID, models.MenuKindItem)
}

// ActivateMenuCategory gates a menu category activation against the plan's
// category quota.
func (s *Service) ActivateMenuCategory(ctx context.Context, restaurantID, categoryID uuid.UUID) error {
	return s.repo.ActivateMenu(ctx, restaurantID, categoryID, models.MenuKindCategory)
}
