package orders

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/sales"
	"github.com/stocklane/stocklane/internal/shared"
)

// memoryRepo mimics the coordinator's atomicity: WithTx snapshots all state
// and restores it when the callback errors, so rollback behaviour is
// observable in tests.
type memoryRepo struct {
	products  map[int64]ledger.ProductStock
	orders    map[int64]*Order
	sales     map[int64]sales.Sale
	nextOrder int64
	nextSale  int64
}

func newMemoryRepo(products ...ledger.ProductStock) *memoryRepo {
	r := &memoryRepo{
		products: make(map[int64]ledger.ProductStock),
		orders:   make(map[int64]*Order),
		sales:    make(map[int64]sales.Sale),
	}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *memoryRepo) snapshot() *memoryRepo {
	snap := newMemoryRepo()
	for id, p := range r.products {
		snap.products[id] = p
	}
	for id, o := range r.orders {
		copied := *o
		copied.Items = append([]Item(nil), o.Items...)
		snap.orders[id] = &copied
	}
	for id, s := range r.sales {
		snap.sales[id] = s
	}
	snap.nextOrder = r.nextOrder
	snap.nextSale = r.nextSale
	return snap
}

func (r *memoryRepo) restore(snap *memoryRepo) {
	r.products = snap.products
	r.orders = snap.orders
	r.sales = snap.sales
	r.nextOrder = snap.nextOrder
	r.nextSale = snap.nextSale
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (*Order, error) {
	order, ok := r.orders[id]
	if !ok || order.Deleted {
		return nil, shared.ErrNotFound
	}
	copied := *order
	copied.Items = append([]Item(nil), order.Items...)
	return &copied, nil
}

func (r *memoryRepo) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	var result []Order
	for _, o := range r.orders {
		if !o.Deleted && o.FranchiseID == req.FranchiseID {
			result = append(result, *o)
		}
	}
	return result, len(result), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (*Order, error) {
	return t.repo.GetByID(ctx, id)
}

func (t *memoryTx) InsertOrder(ctx context.Context, order *Order) (int64, error) {
	t.repo.nextOrder++
	copied := *order
	copied.ID = t.repo.nextOrder
	t.repo.orders[copied.ID] = &copied
	return copied.ID, nil
}

func (t *memoryTx) ReplaceItems(ctx context.Context, orderID int64, items []Item) error {
	order := t.repo.orders[orderID]
	order.Items = append([]Item(nil), items...)
	order.RecomputeTotal()
	return nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, id int64, status Status, stamps StatusStamps) error {
	order := t.repo.orders[id]
	order.Status = status
	if stamps.ConfirmedAt != nil {
		order.ConfirmedAt = stamps.ConfirmedAt
	}
	if stamps.DeliveredAt != nil {
		order.DeliveredAt = stamps.DeliveredAt
	}
	if stamps.CancelledAt != nil {
		order.CancelledAt = stamps.CancelledAt
	}
	return nil
}

func (t *memoryTx) MarkDeleted(ctx context.Context, id int64) error {
	t.repo.orders[id].Deleted = true
	return nil
}

func (t *memoryTx) Stock() ledger.TxStore { return &memoryStock{repo: t.repo} }
func (t *memoryTx) Sales() sales.TxStore  { return &memorySales{repo: t.repo} }

type memoryStock struct {
	repo *memoryRepo
}

func (s *memoryStock) GetForUpdate(ctx context.Context, productID int64) (ledger.ProductStock, error) {
	p, ok := s.repo.products[productID]
	if !ok {
		return ledger.ProductStock{}, shared.ErrNotFound
	}
	return p, nil
}

func (s *memoryStock) GetBySKUForUpdate(ctx context.Context, franchiseID int64, sku string) (ledger.ProductStock, error) {
	for _, p := range s.repo.products {
		if p.FranchiseID == franchiseID && p.SKU == sku {
			return p, nil
		}
	}
	return ledger.ProductStock{}, shared.ErrNotFound
}

func (s *memoryStock) CreateProduct(ctx context.Context, p ledger.ProductStock) (int64, error) {
	id := int64(len(s.repo.products) + 1000)
	p.ID = id
	s.repo.products[id] = p
	return id, nil
}

func (s *memoryStock) UpdateCounters(ctx context.Context, productID, stockQuantity, reservedQuantity int64) error {
	p := s.repo.products[productID]
	p.StockQuantity = stockQuantity
	p.ReservedQuantity = reservedQuantity
	s.repo.products[productID] = p
	return nil
}

func (s *memoryStock) ApplySale(ctx context.Context, productID, qty int64, revenue, profit float64, soldAt time.Time) error {
	p := s.repo.products[productID]
	p.TotalSold += qty
	p.TotalRevenue += revenue
	p.TotalProfit += profit
	p.LastSold = &soldAt
	s.repo.products[productID] = p
	return nil
}

func (s *memoryStock) InsertMovement(ctx context.Context, m ledger.Movement) error { return nil }

type memorySales struct {
	repo *memoryRepo
}

func (s *memorySales) InsertSale(ctx context.Context, sale sales.Sale) (int64, error) {
	s.repo.nextSale++
	sale.ID = s.repo.nextSale
	s.repo.sales[sale.ID] = sale
	return sale.ID, nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, ledger.NewService(slog.Default()), nil, nil, nil, slog.Default())
}

func managerScope() shared.Scope {
	return shared.Scope{UserID: 1, FranchiseID: 10, Role: shared.RoleManager}
}

func product(id int64, stock int64) ledger.ProductStock {
	return ledger.ProductStock{
		ID:            id,
		FranchiseID:   10,
		SKU:           "SKU-" + string(rune('A'+id)),
		Name:          "Product",
		StockQuantity: stock,
		BuyingPrice:   40,
		SellingPrice:  65,
	}
}

func createOrder(t *testing.T, svc *Service, qty int64, productIDs ...int64) *Order {
	t.Helper()
	req := CreateOrderRequest{
		FranchiseID:   10,
		CustomerName:  "Walk-in",
		PaymentMethod: sales.PaymentCOD,
	}
	if len(productIDs) == 0 {
		productIDs = []int64{1}
	}
	for _, pid := range productIDs {
		req.Items = append(req.Items, CreateOrderItemReq{ProductID: pid, Quantity: qty})
	}
	order, err := svc.Create(context.Background(), managerScope(), req)
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	return order
}

func advance(t *testing.T, svc *Service, id int64, statuses ...Status) *Order {
	t.Helper()
	var order *Order
	var err error
	for _, status := range statuses {
		order, err = svc.ChangeStatus(context.Background(), managerScope(), id, status)
		require.NoError(t, err)
	}
	return order
}

func TestConfirmReservesAndRejectsOversell(t *testing.T) {
	repo := newMemoryRepo(product(1, 10))
	svc := newTestService(repo)
	ctx := context.Background()

	o1 := createOrder(t, svc, 6)
	o2 := createOrder(t, svc, 5)

	confirmed := advance(t, svc, o1.ID, StatusConfirmed)
	require.Equal(t, StatusConfirmed, confirmed.Status)
	require.Equal(t, int64(6), repo.products[1].ReservedQuantity)

	// Available is 4, O2 wants 5: the loser observes the winner's reservation.
	_, err := svc.ChangeStatus(ctx, managerScope(), o2.ID, StatusConfirmed)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(4), stockErr.Available)
	require.Equal(t, int64(6), repo.products[1].ReservedQuantity)

	got, err := svc.Get(ctx, managerScope(), o2.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}

func TestConfirmIsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo(product(1, 10), product(2, 10), product(3, 2))
	svc := newTestService(repo)

	order := createOrder(t, svc, 5, 1, 2, 3)

	// Product 3 only has 2 on hand; the whole confirmation must roll back.
	_, err := svc.ChangeStatus(context.Background(), managerScope(), order.ID, StatusConfirmed)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(0), repo.products[1].ReservedQuantity)
	require.Equal(t, int64(0), repo.products[2].ReservedQuantity)
	require.Equal(t, int64(0), repo.products[3].ReservedQuantity)

	got, err := svc.Get(context.Background(), managerScope(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}

func TestCancelReleasesReservation(t *testing.T) {
	repo := newMemoryRepo(product(1, 10))
	svc := newTestService(repo)

	order := createOrder(t, svc, 6)
	advance(t, svc, order.ID, StatusConfirmed, StatusPacked)
	require.Equal(t, int64(6), repo.products[1].ReservedQuantity)

	cancelled := advance(t, svc, order.ID, StatusCancelled)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, int64(0), repo.products[1].ReservedQuantity)
	require.Equal(t, int64(10), repo.products[1].StockQuantity)
}

func TestCancelPendingTouchesNoStock(t *testing.T) {
	repo := newMemoryRepo(product(1, 10))
	svc := newTestService(repo)

	order := createOrder(t, svc, 6)
	cancelled := advance(t, svc, order.ID, StatusCancelled)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, int64(10), repo.products[1].StockQuantity)
	require.Equal(t, int64(0), repo.products[1].ReservedQuantity)
}

func TestDeliveryCommitsAndEmitsSale(t *testing.T) {
	repo := newMemoryRepo(product(1, 10))
	svc := newTestService(repo)

	order := createOrder(t, svc, 6)
	delivered := advance(t, svc, order.ID, StatusConfirmed, StatusPacked, StatusShipped, StatusDelivered)
	require.Equal(t, StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	p := repo.products[1]
	require.Equal(t, int64(4), p.StockQuantity)
	require.Equal(t, int64(0), p.ReservedQuantity)
	require.Equal(t, int64(6), p.TotalSold)

	require.Len(t, repo.sales, 1)
	for _, sale := range repo.sales {
		require.Equal(t, sales.SaleTypeOnline, sale.Type)
		// COD on the order maps to cash on the emitted sale.
		require.Equal(t, sales.PaymentCash, sale.PaymentMethod)
		require.Equal(t, order.ID, *sale.OrderID)
		require.Len(t, sale.Items, 1)
		require.InDelta(t, (65.0-40.0)*6, sale.TotalProfit, 0.001)
		require.InDelta(t, 65.0*6, sale.TotalAmount, 0.001)
		require.InDelta(t, 40.0, sale.Items[0].BuyingPrice, 0.001)
	}
}

func TestSkippingStatesIsRejected(t *testing.T) {
	repo := newMemoryRepo(product(1, 10))
	svc := newTestService(repo)
	ctx := context.Background()

	order := createOrder(t, svc, 2)
	for _, target := range []Status{StatusPacked, StatusShipped, StatusDelivered} {
		_, err := svc.ChangeStatus(ctx, managerScope(), order.ID, target)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	}
	require.Equal(t, int64(0), repo.products[1].ReservedQuantity)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	repo := newMemoryRepo(product(1, 10))
	svc := newTestService(repo)
	ctx := context.Background()

	delivered := createOrder(t, svc, 2)
	advance(t, svc, delivered.ID, StatusConfirmed, StatusPacked, StatusShipped, StatusDelivered)
	for _, target := range []Status{StatusPending, StatusConfirmed, StatusCancelled} {
		_, err := svc.ChangeStatus(ctx, managerScope(), delivered.ID, target)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	}

	cancelled := createOrder(t, svc, 2)
	advance(t, svc, cancelled.ID, StatusCancelled)
	_, err := svc.ChangeStatus(ctx, managerScope(), cancelled.ID, StatusCancelled)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestDeliveredOrderIsImmutable(t *testing.T) {
	repo := newMemoryRepo(product(1, 10))
	svc := newTestService(repo)
	ctx := context.Background()

	order := createOrder(t, svc, 2)
	advance(t, svc, order.ID, StatusConfirmed, StatusPacked, StatusShipped, StatusDelivered)

	err := svc.Delete(ctx, managerScope(), order.ID)
	require.ErrorIs(t, err, shared.ErrImmutableState)

	_, err = svc.UpdateItems(ctx, managerScope(), order.ID, UpdateItemsRequest{
		Items: []CreateOrderItemReq{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrImmutableState)
}

func TestDeleteRequiresSettledOrder(t *testing.T) {
	repo := newMemoryRepo(product(1, 10))
	svc := newTestService(repo)
	ctx := context.Background()

	confirmed := createOrder(t, svc, 2)
	advance(t, svc, confirmed.ID, StatusConfirmed)
	err := svc.Delete(ctx, managerScope(), confirmed.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	pending := createOrder(t, svc, 2)
	require.NoError(t, svc.Delete(ctx, managerScope(), pending.ID))
	_, err = svc.Get(ctx, managerScope(), pending.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCrossFranchiseScopeIsRejected(t *testing.T) {
	repo := newMemoryRepo(product(1, 10))
	svc := newTestService(repo)
	ctx := context.Background()

	order := createOrder(t, svc, 2)

	other := shared.Scope{UserID: 2, FranchiseID: 99, Role: shared.RoleManager}
	_, err := svc.ChangeStatus(ctx, other, order.ID, StatusConfirmed)
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Equal(t, int64(0), repo.products[1].ReservedQuantity)

	// Admin scope spans franchises.
	admin := shared.Scope{UserID: 3, Role: shared.RoleAdmin}
	_, err = svc.ChangeStatus(ctx, admin, order.ID, StatusConfirmed)
	require.NoError(t, err)
}
