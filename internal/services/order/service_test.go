package order

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableside/internal/apperrors"
	"tableside/internal/logger"
	"tableside/internal/models"
	"tableside/internal/services/catalog"
)

// memoryRepo is an in-memory Repository with the same compare-and-set
// semantics as the Postgres implementation.
type memoryRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[uuid.UUID]*models.Order)}
}

func (r *memoryRepo) Create(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *memoryRepo) Get(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memoryRepo) UpdateStatusCAS(_ context.Context, orderID uuid.UUID, from, to models.OrderStatus, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (r *memoryRepo) ReplaceItems(_ context.Context, orderID uuid.UUID, items []models.OrderItem, total decimal.Decimal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.Status != models.StatusNew {
		return false, nil
	}
	o.Items = items
	o.TotalAmount = total
	return true, nil
}

func (r *memoryRepo) ListByCustomer(_ context.Context, customerID uuid.UUID, limit, offset int) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListByRestaurant(_ context.Context, restaurantID uuid.UUID, status *models.OrderStatus, limit, offset int) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if o.RestaurantID == restaurantID && (status == nil || o.Status == *status) {
			out = append(out, *o)
		}
	}
	return out, nil
}

// staticCatalog resolves every id to a fixed price
type staticCatalog struct {
	items map[uuid.UUID]catalog.MenuItem
}

func (c *staticCatalog) Resolve(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]catalog.MenuItem, error) {
	out := make(map[uuid.UUID]catalog.MenuItem)
	for _, id := range ids {
		if item, ok := c.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

// nopPublisher records published events
type nopPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *nopPublisher) PublishEvent(_ context.Context, ev models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func newTestService(repo Repository, cat catalog.Resolver) *Service {
	return NewService(repo, cat, &nopPublisher{}, logger.New("test"))
}

func seedOrder(t *testing.T, repo *memoryRepo, restaurantID uuid.UUID, status models.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		CustomerID:   uuid.New(),
		TableID:      uuid.New(),
		Status:       status,
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func TestCreateOrder_ResolvesPricesFromCatalog(t *testing.T) {
	repo := newMemoryRepo()
	menuItemID := uuid.New()
	cat := &staticCatalog{items: map[uuid.UUID]catalog.MenuItem{
		menuItemID: {ID: menuItemID, UnitPrice: decimal.RequireFromString("12.50"), Active: true},
	}}
	svc := newTestService(repo, cat)

	req := &models.CreateOrderRequest{
		TableID: uuid.New(),
		Items:   []models.OrderItemRequest{{MenuItemID: menuItemID, Quantity: 3}},
	}

	order, err := svc.CreateOrder(context.Background(), uuid.New(), uuid.New(), req, "req")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("37.50")),
		"total should be 3 x 12.50, got %s", order.TotalAmount)
}

func TestCreateOrder_UnknownMenuItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &staticCatalog{items: map[uuid.UUID]catalog.MenuItem{}})

	req := &models.CreateOrderRequest{
		TableID: uuid.New(),
		Items:   []models.OrderItemRequest{{MenuItemID: uuid.New(), Quantity: 1}},
	}

	_, err := svc.CreateOrder(context.Background(), uuid.New(), uuid.New(), req, "req")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreateOrder_InactiveMenuItem(t *testing.T) {
	repo := newMemoryRepo()
	menuItemID := uuid.New()
	cat := &staticCatalog{items: map[uuid.UUID]catalog.MenuItem{
		menuItemID: {ID: menuItemID, UnitPrice: decimal.NewFromInt(5), Active: false},
	}}
	svc := newTestService(repo, cat)

	req := &models.CreateOrderRequest{
		TableID: uuid.New(),
		Items:   []models.OrderItemRequest{{MenuItemID: menuItemID, Quantity: 1}},
	}

	_, err := svc.CreateOrder(context.Background(), uuid.New(), uuid.New(), req, "req")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateStatus_HappyPath(t *testing.T) {
	repo := newMemoryRepo()
	restaurantID := uuid.New()
	order := seedOrder(t, repo, restaurantID, models.StatusNew)
	svc := newTestService(repo, &staticCatalog{})

	updated, err := svc.UpdateStatus(context.Background(), order.ID, restaurantID, models.StatusReady, "req")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, updated.Status)

	stored, _ := repo.Get(context.Background(), order.ID)
	assert.Equal(t, models.StatusReady, stored.Status)
}

func TestUpdateStatus_IllegalTransition(t *testing.T) {
	repo := newMemoryRepo()
	restaurantID := uuid.New()
	order := seedOrder(t, repo, restaurantID, models.StatusNew)
	svc := newTestService(repo, &staticCatalog{})

	_, err := svc.UpdateStatus(context.Background(), order.ID, restaurantID, models.StatusServed, "req")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	stored, _ := repo.Get(context.Background(), order.ID)
	assert.Equal(t, models.StatusNew, stored.Status, "stored status must be unchanged after a rejected transition")
}

func TestUpdateStatus_CrossRestaurant(t *testing.T) {
	repo := newMemoryRepo()
	order := seedOrder(t, repo, uuid.New(), models.StatusNew)
	svc := newTestService(repo, &staticCatalog{})

	_, err := svc.UpdateStatus(context.Background(), order.ID, uuid.New(), models.StatusReady, "req")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestUpdateStatus_ConcurrentRace_OneWinner(t *testing.T) {
	// Two racing updates from the same expected status: exactly one wins,
	// the loser observes ErrConflict. The barrier holds both CAS attempts
	// until both racers have read the same starting status.
	repo := newMemoryRepo()
	restaurantID := uuid.New()
	order := seedOrder(t, repo, restaurantID, models.StatusNew)
	barrier := newCASBarrierRepo(repo, 2)
	svc := newTestService(barrier, &staticCatalog{})

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.UpdateStatus(context.Background(), order.ID, restaurantID, models.StatusCancelled, "req")
			results <- err
		}()
	}

	errs := []error{<-results, <-results}
	var wins, losses int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			losses++
			assert.ErrorIs(t, err, apperrors.ErrConflict)
			assert.NotErrorIs(t, err, apperrors.ErrInvalidTransition,
				"a legal transition losing a race is a conflict, not an illegal edge")
		}
	}
	assert.Equal(t, 1, wins, "exactly one racer must win")
	assert.Equal(t, 1, losses)

	stored, _ := repo.Get(context.Background(), order.ID)
	assert.Equal(t, models.StatusCancelled, stored.Status)
}

// casBarrierRepo holds every CAS until n readers have completed their
// first Get, so racers always start from the same observed status.
type casBarrierRepo struct {
	*memoryRepo
	mu    sync.Mutex
	seen  int
	n     int
	ready sync.WaitGroup
}

func newCASBarrierRepo(repo *memoryRepo, n int) *casBarrierRepo {
	b := &casBarrierRepo{memoryRepo: repo, n: n}
	b.ready.Add(n)
	return b
}

func (r *casBarrierRepo) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	o, err := r.memoryRepo.Get(ctx, orderID)
	r.mu.Lock()
	if r.seen < r.n {
		r.seen++
		r.ready.Done()
	}
	r.mu.Unlock()
	return o, err
}

func (r *casBarrierRepo) UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, changedBy string) (bool, error) {
	r.ready.Wait()
	return r.memoryRepo.UpdateStatusCAS(ctx, orderID, from, to, changedBy)
}

func TestUpdateStatus_LostRaceIsConflict(t *testing.T) {
	// The caller reads new, a concurrent update cancels the order before
	// the CAS lands. The caller's transition was legal against what it
	// observed, so the loss must surface as ErrConflict.
	repo := newMemoryRepo()
	restaurantID := uuid.New()
	order := seedOrder(t, repo, restaurantID, models.StatusNew)
	stolen := &stealingRepo{memoryRepo: repo, orderID: order.ID, to: models.StatusCancelled}
	svc := newTestService(stolen, &staticCatalog{})

	_, err := svc.UpdateStatus(context.Background(), order.ID, restaurantID, models.StatusReady, "req")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidTransition)

	stored, _ := repo.Get(context.Background(), order.ID)
	assert.Equal(t, models.StatusCancelled, stored.Status)
}

// stealingRepo applies a competing transition right before the first CAS,
// so the caller's CAS always loses to a real status change.
type stealingRepo struct {
	*memoryRepo
	orderID uuid.UUID
	to      models.OrderStatus
	stolen  bool
}

func (r *stealingRepo) UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, changedBy string) (bool, error) {
	if !r.stolen {
		r.stolen = true
		if o, err := r.memoryRepo.Get(ctx, r.orderID); err == nil {
			_, _ = r.memoryRepo.UpdateStatusCAS(ctx, r.orderID, o.Status, r.to, "rival")
		}
	}
	return r.memoryRepo.UpdateStatusCAS(ctx, orderID, from, to, changedBy)
}

func TestUpdateStatus_RetriesThenConflict(t *testing.T) {
	repo := &flappingRepo{memoryRepo: newMemoryRepo()}
	restaurantID := uuid.New()
	order := seedOrder(t, repo.memoryRepo, restaurantID, models.StatusNew)
	svc := newTestService(repo, &staticCatalog{})

	_, err := svc.UpdateStatus(context.Background(), order.ID, restaurantID, models.StatusReady, "req")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, maxStatusAttempts, repo.casCalls, "service must bound its optimistic retry loop")
}

// flappingRepo always loses the CAS, simulating a persistent race
type flappingRepo struct {
	*memoryRepo
	casCalls int
}

func (r *flappingRepo) UpdateStatusCAS(_ context.Context, _ uuid.UUID, _, _ models.OrderStatus, _ string) (bool, error) {
	r.casCalls++
	return false, nil
}

func TestAmendItems_OnlyWhileNew(t *testing.T) {
	repo := newMemoryRepo()
	restaurantID := uuid.New()
	menuItemID := uuid.New()
	cat := &staticCatalog{items: map[uuid.UUID]catalog.MenuItem{
		menuItemID: {ID: menuItemID, UnitPrice: decimal.NewFromInt(10), Active: true},
	}}
	svc := newTestService(repo, cat)

	order := seedOrder(t, repo, restaurantID, models.StatusNew)
	req := &models.AmendOrderItemsRequest{
		Items: []models.OrderItemRequest{{MenuItemID: menuItemID, Quantity: 2}},
	}

	amended, err := svc.AmendItems(context.Background(), order.ID, restaurantID, req, "req")
	require.NoError(t, err)
	assert.True(t, amended.TotalAmount.Equal(decimal.NewFromInt(20)))

	// Once the order leaves new, the amount is frozen
	served := seedOrder(t, repo, restaurantID, models.StatusReady)
	_, err = svc.AmendItems(context.Background(), served.ID, restaurantID, req, "req")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestCreateOrder_PublishesEvent(t *testing.T) {
	repo := newMemoryRepo()
	menuItemID := uuid.New()
	cat := &staticCatalog{items: map[uuid.UUID]catalog.MenuItem{
		menuItemID: {ID: menuItemID, UnitPrice: decimal.NewFromInt(1), Active: true},
	}}
	pub := &nopPublisher{}
	svc := NewService(repo, cat, pub, logger.New("test"))

	req := &models.CreateOrderRequest{
		TableID: uuid.New(),
		Items:   []models.OrderItemRequest{{MenuItemID: menuItemID, Quantity: 1}},
	}
	order, err := svc.CreateOrder(context.Background(), uuid.New(), uuid.New(), req, "req")
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, models.EventOrderCreated, pub.events[0].Type)
	assert.Equal(t, order.ID, pub.events[0].EntityID)
}
