package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tableside/internal/apperrors"
	"tableside/internal/logger"
	"tableside/internal/messaging"
	"tableside/internal/models"
	"tableside/internal/services/catalog"
)

// Service consolidates ready and served orders into immutable bills
type Service struct {
	repo      Repository
	catalog   catalog.Resolver
	publisher messaging.EventPublisher
	logger    *logger.Logger
	lookback  time.Duration
	now       func() time.Time
}

// NewService creates a billing service. lookbackHours bounds how far back
// a billing run reaches for unbilled orders.
func NewService(repo Repository, resolver catalog.Resolver, publisher messaging.EventPublisher, log *logger.Logger, lookbackHours int) *Service {
	return &Service{
		repo:      repo,
		catalog:   resolver,
		publisher: publisher,
		logger:    log,
		lookback:  time.Duration(lookbackHours) * time.Hour,
		now:       time.Now,
	}
}

// charges is the output of one tax cascade over a gross split
type charges struct {
	gross         decimal.Decimal
	serviceCharge decimal.Decimal
	vatAlcohol    decimal.Decimal
	vatFood       decimal.Decimal
	serviceTax    decimal.Decimal
	net           decimal.Decimal
}

// computeCharges runs the tax cascade at full precision. The service
// charge applies to the whole gross, the VAT lines apply per bucket, and
// the service tax compounds on gross plus service charge. Rounding happens
// once, when the bill is persisted.
func computeCharges(alcoholGross, foodGross decimal.Decimal, rates models.TaxTable) charges {
	gross := alcoholGross.Add(foodGross)
	serviceCharge := gross.Mul(rates.Rate(models.TaxServiceCharge))
	vatAlcohol := alcoholGross.Mul(rates.Rate(models.TaxVATAlcoholic))
	vatFood := foodGross.Mul(rates.Rate(models.TaxVATNonAlcoholic))
	serviceTax := gross.Add(serviceCharge).Mul(rates.Rate(models.TaxServiceTax))

	net := gross.Add(serviceCharge).Add(vatAlcohol).Add(vatFood).Add(serviceTax)
	return charges{
		gross:         gross,
		serviceCharge: serviceCharge,
		vatAlcohol:    vatAlcohol,
		vatFood:       vatFood,
		serviceTax:    serviceTax,
		net:           net,
	}
}

// GenerateBill runs one billing pass for the target. All billable orders
// within the lookback window flip to billed and the resulting bill starts
// pending. Targets with nothing to bill return ErrNothingToBill.
func (s *Service) GenerateBill(ctx context.Context, restaurantID uuid.UUID, target models.BillTarget, requestID string) (*models.Bill, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	since := s.now().UTC().Add(-s.lookback)

	bill, tableFreed, err := s.repo.GenerateBill(ctx, restaurantID, target, since, func(orders []models.Order) (*models.Bill, error) {
		return s.buildBill(ctx, restaurantID, target, orders, requestID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bill_generated", "Bill generated", requestID, map[string]interface{}{
		"bill_id":     bill.ID,
		"order_count": len(bill.Orders),
		"net_amount":  bill.NetAmount,
	})

	s.publishBilled(ctx, bill, tableFreed, requestID)
	return bill, nil
}

// buildBill splits the gross into alcoholic and non-alcoholic buckets via
// the catalog and runs the cascade. An item whose catalog entry no longer
// resolves counts as non-alcoholic rather than failing the run.
func (s *Service) buildBill(ctx context.Context, restaurantID uuid.UUID, target models.BillTarget, orders []models.Order, requestID string) (*models.Bill, error) {
	rates, err := s.repo.TaxRates(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	var itemIDs []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, o := range orders {
		for _, item := range o.Items {
			if !seen[item.MenuItemID] {
				seen[item.MenuItemID] = true
				itemIDs = append(itemIDs, item.MenuItemID)
			}
		}
	}
	resolved, err := s.catalog.Resolve(ctx, restaurantID, itemIDs)
	if err != nil {
		return nil, err
	}

	alcoholGross, foodGross := decimal.Zero, decimal.Zero
	customers := make(map[uuid.UUID]bool)
	orderIDs := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		orderIDs = append(orderIDs, o.ID)
		customers[o.CustomerID] = true
		for _, item := range o.Items {
			line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
			entry, ok := resolved[item.MenuItemID]
			if !ok {
				s.logger.Warn("catalog_item_missing", "Menu item no longer resolves, billed as non-alcoholic", requestID, map[string]interface{}{
					"menu_item_id": item.MenuItemID,
					"order_id":     o.ID,
				})
			}
			if ok && entry.Alcoholic {
				alcoholGross = alcoholGross.Add(line)
			} else {
				foodGross = foodGross.Add(line)
			}
		}
	}

	c := computeCharges(alcoholGross, foodGross, rates)

	customerIDs := make([]uuid.UUID, 0, len(customers))
	for id := range customers {
		customerIDs = append(customerIDs, id)
	}

	return &models.Bill{
		ID:            uuid.New(),
		RestaurantID:  restaurantID,
		TableID:       target.TableID,
		Customers:     customerIDs,
		Orders:        orderIDs,
		GrossTotal:    c.gross.Round(2),
		ServiceCharge: c.serviceCharge.Round(2),
		VATAlcohol:    c.vatAlcohol.Round(2),
		VATFood:       c.vatFood.Round(2),
		ServiceTax:    c.serviceTax.Round(2),
		NetAmount:     c.net.Round(2),
		PaymentStatus: models.PaymentPending,
	}, nil
}

// SetPaymentStatus settles or fails a pending bill. Settled bills never
// change again; a repeat attempt surfaces ErrConflict.
func (s *Service) SetPaymentStatus(ctx context.Context, restaurantID, billID uuid.UUID, req *models.UpdatePaymentRequest, requestID string) (*models.Bill, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePayment(ctx, billID, restaurantID, req.Status, req.Method); err != nil {
		return nil, err
	}
	s.logger.Info("payment_updated", "Bill payment status updated", requestID, map[string]interface{}{
		"bill_id": billID,
		"status":  req.Status,
	})
	return s.repo.Get(ctx, billID)
}

// Get returns one bill scoped to the caller's restaurant
func (s *Service) Get(ctx context.Context, restaurantID, billID uuid.UUID) (*models.Bill, error) {
	bill, err := s.repo.Get(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.RestaurantID != restaurantID {
		return nil, apperrors.ErrForbidden
	}
	return bill, nil
}

// List returns the restaurant's bills, newest first
func (s *Service) List(ctx context.Context, restaurantID uuid.UUID, page, pageSize int) ([]models.Bill, error) {
	limit, offset := pageWindow(page, pageSize)
	return s.repo.ListByRestaurant(ctx, restaurantID, limit, offset)
}

// publishBilled emits the order and table transitions caused by a billing
// run. Delivery is best-effort; a broker failure never unwinds the bill.
func (s *Service) publishBilled(ctx context.Context, bill *models.Bill, tableFreed bool, requestID string) {
	now := s.now().UTC()
	for _, orderID := range bill.Orders {
		event := models.Event{
			Type:         models.EventOrderStatusChanged,
			EntityID:     orderID,
			Status:       string(models.StatusBilled),
			RestaurantID: bill.RestaurantID,
			TableID:      bill.TableID,
			OccurredAt:   now,
		}
		if err := s.publisher.PublishEvent(ctx, event); err != nil {
			s.logger.Warn("event_publish_failed", "Failed to publish order billed event", requestID, map[string]interface{}{
				"order_id": orderID,
				"error":    err.Error(),
			})
		}
	}
	if tableFreed && bill.TableID != nil {
		event := models.Event{
			Type:         models.EventTableStatusChanged,
			EntityID:     *bill.TableID,
			Status:       string(models.TableFree),
			RestaurantID: bill.RestaurantID,
			TableID:      bill.TableID,
			OccurredAt:   now,
		}
		if err := s.publisher.PublishEvent(ctx, event); err != nil {
			s.logger.Warn("event_publish_failed", "Failed to publish table freed event", requestID, map[string]interface{}{
				"table_id": *bill.TableID,
				"error":    err.Error(),
			})
		}
	}
}

func pageWindow(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return pageSize, (page - 1) * pageSize
}
