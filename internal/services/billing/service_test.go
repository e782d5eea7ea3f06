package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableside/internal/apperrors"
	"tableside/internal/logger"
	"tableside/internal/models"
	"tableside/internal/services/catalog"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testRates() models.TaxTable {
	return models.TaxTable{
		models.TaxServiceCharge:   dec("10"),
		models.TaxVATAlcoholic:    dec("20"),
		models.TaxVATNonAlcoholic: dec("5"),
		models.TaxServiceTax:      dec("5"),
	}
}

func TestComputeCharges(t *testing.T) {
	// 1000 alcoholic + 2000 food at 10% service charge, 20%/5% VAT and
	// 5% service tax on (gross + service charge).
	c := computeCharges(dec("1000"), dec("2000"), testRates())

	assert.True(t, c.gross.Equal(dec("3000")), "gross: %s", c.gross)
	assert.True(t, c.serviceCharge.Equal(dec("300")), "service charge: %s", c.serviceCharge)
	assert.True(t, c.vatAlcohol.Equal(dec("200")), "vat alcohol: %s", c.vatAlcohol)
	assert.True(t, c.vatFood.Equal(dec("100")), "vat food: %s", c.vatFood)
	assert.True(t, c.serviceTax.Equal(dec("165")), "service tax: %s", c.serviceTax)
	assert.True(t, c.net.Equal(dec("3765")), "net: %s", c.net)
}

func TestComputeCharges_MissingRatesAreZero(t *testing.T) {
	c := computeCharges(dec("100"), dec("100"), models.TaxTable{})

	assert.True(t, c.gross.Equal(dec("200")))
	assert.True(t, c.serviceCharge.IsZero())
	assert.True(t, c.vatAlcohol.IsZero())
	assert.True(t, c.vatFood.IsZero())
	assert.True(t, c.serviceTax.IsZero())
	assert.True(t, c.net.Equal(dec("200")))
}

func TestComputeCharges_OnlyAlcohol(t *testing.T) {
	c := computeCharges(dec("500"), decimal.Zero, testRates())

	assert.True(t, c.serviceCharge.Equal(dec("50")))
	assert.True(t, c.vatAlcohol.Equal(dec("100")))
	assert.True(t, c.vatFood.IsZero())
	assert.True(t, c.serviceTax.Equal(dec("27.5")))
	assert.True(t, c.net.Equal(dec("677.5")))
}

// memoryRepo keeps orders and bills in memory with the same billable
// selection and pending-guard semantics as the Postgres repository.
// onBill, when set, runs after the billable selection, standing in for a
// transaction that commits between the selection and the free-table check.
type memoryRepo struct {
	rates  models.TaxTable
	orders []*models.Order
	bills  map[uuid.UUID]*models.Bill
	onBill func(r *memoryRepo)
}

func newMemoryRepo(rates models.TaxTable, orders ...*models.Order) *memoryRepo {
	return &memoryRepo{
		rates:  rates,
		orders: orders,
		bills:  make(map[uuid.UUID]*models.Bill),
	}
}

func (r *memoryRepo) TaxRates(_ context.Context, _ uuid.UUID) (models.TaxTable, error) {
	return r.rates, nil
}

func (r *memoryRepo) GenerateBill(_ context.Context, restaurantID uuid.UUID, target models.BillTarget, since time.Time, build BuildFunc) (*models.Bill, bool, error) {
	var billable []models.Order
	for _, o := range r.orders {
		if o.RestaurantID != restaurantID {
			continue
		}
		if o.Status != models.StatusReady && o.Status != models.StatusServed {
			continue
		}
		if o.CreatedAt.Before(since) {
			continue
		}
		if target.TableID != nil && o.TableID != *target.TableID {
			continue
		}
		if target.CustomerID != nil && o.CustomerID != *target.CustomerID {
			continue
		}
		billable = append(billable, *o)
	}
	if len(billable) == 0 {
		return nil, false, apperrors.ErrNothingToBill
	}

	if r.onBill != nil {
		r.onBill(r)
	}

	bill, err := build(billable)
	if err != nil {
		return nil, false, err
	}

	billed := make(map[uuid.UUID]bool, len(bill.Orders))
	for _, id := range bill.Orders {
		billed[id] = true
	}
	for _, o := range r.orders {
		if billed[o.ID] {
			o.Status = models.StatusBilled
		}
	}

	tableFreed := false
	if target.TableID != nil {
		tableFreed = true
		for _, o := range r.orders {
			if o.TableID == *target.TableID && o.Status.Active() {
				tableFreed = false
			}
		}
	}

	bill.CreatedAt = time.Now()
	r.bills[bill.ID] = bill
	return bill, tableFreed, nil
}

func (r *memoryRepo) Get(_ context.Context, billID uuid.UUID) (*models.Bill, error) {
	bill, ok := r.bills[billID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *bill
	return &copied, nil
}

func (r *memoryRepo) ListByRestaurant(_ context.Context, restaurantID uuid.UUID, _, _ int) ([]models.Bill, error) {
	var out []models.Bill
	for _, b := range r.bills {
		if b.RestaurantID == restaurantID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdatePayment(_ context.Context, billID, restaurantID uuid.UUID, status models.PaymentStatus, method string) error {
	bill, ok := r.bills[billID]
	if !ok || bill.RestaurantID != restaurantID {
		return apperrors.ErrNotFound
	}
	if bill.PaymentStatus != models.PaymentPending {
		return apperrors.ErrConflict
	}
	bill.PaymentStatus = status
	bill.PaymentMethod = method
	return nil
}

type staticCatalog map[uuid.UUID]catalog.MenuItem

func (c staticCatalog) Resolve(_ context.Context, _ uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]catalog.MenuItem, error) {
	out := make(map[uuid.UUID]catalog.MenuItem)
	for _, id := range itemIDs {
		if item, ok := c[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

type recordingPublisher struct {
	events []models.Event
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event models.Event) error {
	p.events = append(p.events, event)
	return nil
}

func billableOrder(restaurantID, customerID, tableID uuid.UUID, status models.OrderStatus, items ...models.OrderItem) *models.Order {
	o := &models.Order{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		CustomerID:   customerID,
		TableID:      tableID,
		Items:        items,
		Status:       status,
		CreatedAt:    time.Now(),
	}
	o.TotalAmount = o.ComputeTotal()
	return o
}

func TestGenerateBill_TableTarget(t *testing.T) {
	restaurantID, customerID, tableID := uuid.New(), uuid.New(), uuid.New()
	wineID, pastaID := uuid.New(), uuid.New()

	cat := staticCatalog{
		wineID:  {ID: wineID, UnitPrice: dec("500"), Alcoholic: true, Active: true},
		pastaID: {ID: pastaID, UnitPrice: dec("1000"), Active: true},
	}
	order := billableOrder(restaurantID, customerID, tableID, models.StatusServed,
		models.OrderItem{MenuItemID: wineID, Quantity: 2, UnitPrice: dec("500")},
		models.OrderItem{MenuItemID: pastaID, Quantity: 2, UnitPrice: dec("1000")},
	)
	repo := newMemoryRepo(testRates(), order)
	pub := &recordingPublisher{}
	svc := NewService(repo, cat, pub, logger.New("test"), 12)

	bill, err := svc.GenerateBill(context.Background(), restaurantID, models.BillTarget{TableID: &tableID}, "req")
	require.NoError(t, err)

	assert.True(t, bill.GrossTotal.Equal(dec("3000")), "gross: %s", bill.GrossTotal)
	assert.True(t, bill.ServiceCharge.Equal(dec("300")))
	assert.True(t, bill.VATAlcohol.Equal(dec("200")))
	assert.True(t, bill.VATFood.Equal(dec("100")))
	assert.True(t, bill.ServiceTax.Equal(dec("165")))
	assert.True(t, bill.NetAmount.Equal(dec("3765")), "net: %s", bill.NetAmount)
	assert.Equal(t, models.PaymentPending, bill.PaymentStatus)
	assert.Equal(t, []uuid.UUID{order.ID}, bill.Orders)
	assert.Equal(t, models.StatusBilled, order.Status)

	// One billed event per order plus the table freed event.
	require.Len(t, pub.events, 2)
	assert.Equal(t, models.EventOrderStatusChanged, pub.events[0].Type)
	assert.Equal(t, models.EventTableStatusChanged, pub.events[1].Type)
}

func TestGenerateBill_NeverBillsTwice(t *testing.T) {
	restaurantID, customerID, tableID := uuid.New(), uuid.New(), uuid.New()
	itemID := uuid.New()

	cat := staticCatalog{itemID: {ID: itemID, UnitPrice: dec("10"), Active: true}}
	order := billableOrder(restaurantID, customerID, tableID, models.StatusReady,
		models.OrderItem{MenuItemID: itemID, Quantity: 1, UnitPrice: dec("10")})
	repo := newMemoryRepo(testRates(), order)
	svc := NewService(repo, cat, &recordingPublisher{}, logger.New("test"), 12)

	_, err := svc.GenerateBill(context.Background(), restaurantID, models.BillTarget{TableID: &tableID}, "req")
	require.NoError(t, err)

	_, err = svc.GenerateBill(context.Background(), restaurantID, models.BillTarget{TableID: &tableID}, "req")
	assert.ErrorIs(t, err, apperrors.ErrNothingToBill)
}

func TestGenerateBill_UnresolvableItemBilledAsFood(t *testing.T) {
	restaurantID, customerID, tableID := uuid.New(), uuid.New(), uuid.New()
	goneID := uuid.New()

	order := billableOrder(restaurantID, customerID, tableID, models.StatusServed,
		models.OrderItem{MenuItemID: goneID, Quantity: 1, UnitPrice: dec("100")})
	repo := newMemoryRepo(testRates(), order)
	svc := NewService(repo, staticCatalog{}, &recordingPublisher{}, logger.New("test"), 12)

	bill, err := svc.GenerateBill(context.Background(), restaurantID, models.BillTarget{TableID: &tableID}, "req")
	require.NoError(t, err)

	assert.True(t, bill.VATAlcohol.IsZero())
	assert.True(t, bill.VATFood.Equal(dec("5")), "vat food: %s", bill.VATFood)
}

func TestGenerateBill_OrderCreatedMidRunKeepsTableOccupied(t *testing.T) {
	// A new order lands on the table while the billing run is in flight.
	// The run bills what it selected, but the table must stay occupied and
	// no table-freed event may go out.
	restaurantID, customerID, tableID := uuid.New(), uuid.New(), uuid.New()
	itemID := uuid.New()

	cat := staticCatalog{itemID: {ID: itemID, UnitPrice: dec("10"), Active: true}}
	served := billableOrder(restaurantID, customerID, tableID, models.StatusServed,
		models.OrderItem{MenuItemID: itemID, Quantity: 1, UnitPrice: dec("10")})
	repo := newMemoryRepo(testRates(), served)
	repo.onBill = func(r *memoryRepo) {
		r.orders = append(r.orders, billableOrder(restaurantID, uuid.New(), tableID, models.StatusNew,
			models.OrderItem{MenuItemID: itemID, Quantity: 1, UnitPrice: dec("10")}))
	}
	pub := &recordingPublisher{}
	svc := NewService(repo, cat, pub, logger.New("test"), 12)

	bill, err := svc.GenerateBill(context.Background(), restaurantID, models.BillTarget{TableID: &tableID}, "req")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{served.ID}, bill.Orders, "only the selected order is billed")

	require.Len(t, pub.events, 1)
	assert.Equal(t, models.EventOrderStatusChanged, pub.events[0].Type)
	for _, e := range pub.events {
		assert.NotEqual(t, models.EventTableStatusChanged, e.Type,
			"a table with an active order must not be freed")
	}
}

func TestGenerateBill_LookbackExcludesStaleOrders(t *testing.T) {
	restaurantID, customerID, tableID := uuid.New(), uuid.New(), uuid.New()
	itemID := uuid.New()

	stale := billableOrder(restaurantID, customerID, tableID, models.StatusServed,
		models.OrderItem{MenuItemID: itemID, Quantity: 1, UnitPrice: dec("10")})
	stale.CreatedAt = time.Now().Add(-48 * time.Hour)

	repo := newMemoryRepo(testRates(), stale)
	cat := staticCatalog{itemID: {ID: itemID, UnitPrice: dec("10"), Active: true}}
	svc := NewService(repo, cat, &recordingPublisher{}, logger.New("test"), 12)

	_, err := svc.GenerateBill(context.Background(), restaurantID, models.BillTarget{TableID: &tableID}, "req")
	assert.ErrorIs(t, err, apperrors.ErrNothingToBill)
}

func TestGenerateBill_TargetValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(testRates()), staticCatalog{}, &recordingPublisher{}, logger.New("test"), 12)

	_, err := svc.GenerateBill(context.Background(), uuid.New(), models.BillTarget{}, "req")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	tableID, customerID := uuid.New(), uuid.New()
	_, err = svc.GenerateBill(context.Background(), uuid.New(), models.BillTarget{TableID: &tableID, CustomerID: &customerID}, "req")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSetPaymentStatus(t *testing.T) {
	restaurantID, customerID, tableID := uuid.New(), uuid.New(), uuid.New()
	itemID := uuid.New()

	cat := staticCatalog{itemID: {ID: itemID, UnitPrice: dec("10"), Active: true}}
	order := billableOrder(restaurantID, customerID, tableID, models.StatusServed,
		models.OrderItem{MenuItemID: itemID, Quantity: 1, UnitPrice: dec("10")})
	repo := newMemoryRepo(testRates(), order)
	svc := NewService(repo, cat, &recordingPublisher{}, logger.New("test"), 12)

	bill, err := svc.GenerateBill(context.Background(), restaurantID, models.BillTarget{TableID: &tableID}, "req")
	require.NoError(t, err)

	updated, err := svc.SetPaymentStatus(context.Background(), restaurantID, bill.ID,
		&models.UpdatePaymentRequest{Status: models.PaymentPaid, Method: "card"}, "req")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, updated.PaymentStatus)
	assert.Equal(t, "card", updated.PaymentMethod)

	// A settled bill is immutable.
	_, err = svc.SetPaymentStatus(context.Background(), restaurantID, bill.ID,
		&models.UpdatePaymentRequest{Status: models.PaymentFailed}, "req")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// Bad status is rejected before touching the repository.
	_, err = svc.SetPaymentStatus(context.Background(), restaurantID, bill.ID,
		&models.UpdatePaymentRequest{Status: "refunded"}, "req")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
