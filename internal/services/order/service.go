package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tableside/internal/apperrors"
	"tableside/internal/logger"
	"tableside/internal/messaging"
	"tableside/internal/models"
	"tableside/internal/services/catalog"
)

// maxStatusAttempts bounds the optimistic-concurrency retry loop on status
// updates before surfacing ErrConflict to the caller.
const maxStatusAttempts = 3

// Service implements the order state machine
type Service struct {
	repo      Repository
	catalog   catalog.Resolver
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewService creates an order service
func NewService(repo Repository, resolver catalog.Resolver, publisher messaging.EventPublisher, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		catalog:   resolver,
		publisher: publisher,
		logger:    log,
	}
}

// CreateOrder places a new order for a customer against a table. Unit
// prices come from the catalog, never from the request. On success the
// order is persisted in status new, the table is occupied, and an
// order-created event is published best-effort.
func (s *Service) CreateOrder(ctx context.Context, restaurantID, customerID uuid.UUID, req *models.CreateOrderRequest, requestID string) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	items, err := s.resolveItems(ctx, restaurantID, req.Items)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		CustomerID:   customerID,
		TableID:      req.TableID,
		Items:        items,
		Status:       models.StatusNew,
	}
	order.TotalAmount = order.ComputeTotal()

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order_created", "Order created", requestID, map[string]interface{}{
		"order_id":     order.ID,
		"table_id":     order.TableID,
		"total_amount": order.TotalAmount,
	})

	s.publishEvent(ctx, models.EventOrderCreated, order, requestID)
	return order, nil
}

// UpdateStatus advances an order along the lifecycle graph. Legality is
// judged against the status the caller first observed: an illegal edge is
// ErrInvalidTransition, while losing the compare-and-set to a concurrent
// update is ErrConflict. A spuriously lost CAS with the status unchanged is
// retried a bounded number of times before surfacing ErrConflict.
func (s *Service) UpdateStatus(ctx context.Context, orderID, requesterRestaurantID uuid.UUID, newStatus models.OrderStatus, requestID string) (*models.Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.RestaurantID != requesterRestaurantID {
		return nil, apperrors.ErrForbidden
	}
	if !models.CanTransition(order.Status, newStatus) {
		return nil, apperrors.InvalidTransition(string(order.Status), string(newStatus))
	}

	expected := order.Status
	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		won, err := s.repo.UpdateStatusCAS(ctx, orderID, expected, newStatus, "staff")
		if err != nil {
			return nil, err
		}
		if won {
			order.Status = newStatus
			s.logger.Info("order_status_updated", "Order status updated", requestID, map[string]interface{}{
				"order_id": orderID,
				"status":   newStatus,
			})
			s.publishEvent(ctx, models.EventOrderStatusChanged, order, requestID)
			return order, nil
		}

		current, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if current.Status != expected {
			// A concurrent update moved the order first
			return nil, fmt.Errorf("%w: order %s moved from %s to %s", apperrors.ErrConflict, orderID, expected, current.Status)
		}

		s.logger.Debug("order_status_race_lost", "Lost compare-and-set with status unchanged, retrying", requestID, map[string]interface{}{
			"order_id": orderID,
			"attempt":  attempt + 1,
		})
	}

	return nil, fmt.Errorf("%w: order %s status", apperrors.ErrConflict, orderID)
}

// AmendItems replaces the item set of an order still in status new and
// recomputes the total. Once the order has left new via a status update,
// the amount is frozen and amendment fails with ErrInvalidTransition.
func (s *Service) AmendItems(ctx context.Context, orderID, requesterRestaurantID uuid.UUID, req *models.AmendOrderItemsRequest, requestID string) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.RestaurantID != requesterRestaurantID {
		return nil, apperrors.ErrForbidden
	}
	if order.Status != models.StatusNew {
		return nil, apperrors.InvalidTransition(string(order.Status), "item amendment")
	}

	items, err := s.resolveItems(ctx, order.RestaurantID, req.Items)
	if err != nil {
		return nil, err
	}

	amended := &models.Order{Items: items}
	total := amended.ComputeTotal()

	applied, err := s.repo.ReplaceItems(ctx, orderID, items, total)
	if err != nil {
		return nil, err
	}
	if !applied {
		// The order left status new between the read and the write
		return nil, fmt.Errorf("%w: order %s items", apperrors.ErrConflict, orderID)
	}

	order.Items = items
	order.TotalAmount = total
	return order, nil
}

// Get returns an order, enforcing restaurant scoping
func (s *Service) Get(ctx context.Context, orderID, requesterRestaurantID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.RestaurantID != requesterRestaurantID {
		return nil, apperrors.ErrForbidden
	}
	return order, nil
}

// ListByCustomer returns a customer's orders, newest first
func (s *Service) ListByCustomer(ctx context.Context, customerID uuid.UUID, page, pageSize int) ([]models.Order, error) {
	limit, offset := pageWindow(page, pageSize)
	return s.repo.ListByCustomer(ctx, customerID, limit, offset)
}

// ListByRestaurant returns a restaurant's orders with optional status filter
func (s *Service) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, status *models.OrderStatus, page, pageSize int) ([]models.Order, error) {
	limit, offset := pageWindow(page, pageSize)
	return s.repo.ListByRestaurant(ctx, restaurantID, status, limit, offset)
}

// resolveItems maps requested items to priced order items via the catalog.
// Unknown or inactive menu items fail the whole request with ErrNotFound.
func (s *Service) resolveItems(ctx context.Context, restaurantID uuid.UUID, reqItems []models.OrderItemRequest) ([]models.OrderItem, error) {
	ids := make([]uuid.UUID, 0, len(reqItems))
	for _, item := range reqItems {
		ids = append(ids, item.MenuItemID)
	}

	resolved, err := s.catalog.Resolve(ctx, restaurantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve menu items: %w", err)
	}

	items := make([]models.OrderItem, 0, len(reqItems))
	for _, reqItem := range reqItems {
		menuItem, ok := resolved[reqItem.MenuItemID]
		if !ok || !menuItem.Active {
			return nil, fmt.Errorf("%w: menu item %s", apperrors.ErrNotFound, reqItem.MenuItemID)
		}
		items = append(items, models.OrderItem{
			MenuItemID: reqItem.MenuItemID,
			Quantity:   reqItem.Quantity,
			UnitPrice:  menuItem.UnitPrice,
		})
	}
	return items, nil
}

func (s *Service) publishEvent(ctx context.Context, eventType models.EventType, order *models.Order, requestID string) {
	event := models.Event{
		Type:         eventType,
		EntityID:     order.ID,
		Status:       string(order.Status),
		RestaurantID: order.RestaurantID,
		TableID:      &order.TableID,
		CustomerID:   &order.CustomerID,
		OccurredAt:   time.Now().UTC(),
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish order event", requestID, err, map[string]interface{}{
			"order_id": order.ID,
			"type":     eventType,
		})
	}
}

func pageWindow(page, pageSize int) (limit, offset int) {
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	if page < 1 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}
