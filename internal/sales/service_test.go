package sales

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/shared"
)

type memoryRepo struct {
	products map[int64]ledger.ProductStock
	sales    map[int64]Sale
	nextID   int64
}

func newMemoryRepo(products ...ledger.ProductStock) *memoryRepo {
	r := &memoryRepo{
		products: make(map[int64]ledger.ProductStock),
		sales:    make(map[int64]Sale),
	}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	productsSnap := make(map[int64]ledger.ProductStock, len(r.products))
	for id, p := range r.products {
		productsSnap[id] = p
	}
	salesSnap := make(map[int64]Sale, len(r.sales))
	for id, s := range r.sales {
		salesSnap[id] = s
	}
	nextSnap := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products = productsSnap
		r.sales = salesSnap
		r.nextID = nextSnap
		return err
	}
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (*Sale, error) {
	sale, ok := r.sales[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := sale
	copied.Items = append([]SaleItem(nil), sale.Items...)
	return &copied, nil
}

func (r *memoryRepo) List(ctx context.Context, req ListSalesRequest) ([]Sale, int, error) {
	var result []Sale
	for _, s := range r.sales {
		if s.FranchiseID == req.FranchiseID {
			result = append(result, s)
		}
	}
	return result, len(result), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Stock() ledger.TxStore { return &memoryStock{repo: t.repo} }
func (t *memoryTx) Sales() TxStore        { return &memorySales{repo: t.repo} }

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
	return ledger.ProductStock{}, shared.ErrNotFound
}

func (s *memoryStock) CreateProduct(ctx context.Context, p ledger.ProductStock) (int64, error) {
	return 0, shared.ErrNotFound
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

func (s *memorySales) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	s.repo.nextID++
	sale.ID = s.repo.nextID
	s.repo.sales[sale.ID] = sale
	return sale.ID, nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, ledger.NewService(slog.Default()), nil, nil, nil, slog.Default())
}

func staffScope() shared.Scope {
	return shared.Scope{UserID: 7, FranchiseID: 10, Role: shared.RoleStaff}
}

func posProduct(id, stock, reserved int64) ledger.ProductStock {
	return ledger.ProductStock{
		ID:               id,
		FranchiseID:      10,
		SKU:              "SKU-1",
		Name:             "Product",
		StockQuantity:    stock,
		ReservedQuantity: reserved,
		BuyingPrice:      40,
		SellingPrice:     65,
	}
}

func TestCreateDirectCommitsStockAndSnapshotsPrices(t *testing.T) {
	repo := newMemoryRepo(posProduct(1, 10, 0))
	svc := newTestService(repo)

	sale, err := svc.CreateDirect(context.Background(), staffScope(), CreateSaleRequest{
		FranchiseID:   10,
		PaymentMethod: PaymentCash,
		Items:         []CreateSaleItemReq{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, SaleTypePOS, sale.Type)
	require.True(t, strings.HasPrefix(sale.Code, "SAL-"))
	require.Len(t, sale.Items, 1)
	require.InDelta(t, 40.0, sale.Items[0].BuyingPrice, 0.001)
	require.InDelta(t, 65.0, sale.Items[0].SellingPrice, 0.001)
	require.InDelta(t, 130.0, sale.TotalAmount, 0.001)
	require.InDelta(t, 50.0, sale.TotalProfit, 0.001)

	require.Equal(t, int64(8), repo.products[1].StockQuantity)
	require.Equal(t, int64(2), repo.products[1].TotalSold)
}

func TestCreateDirectHonoursReservedUnits(t *testing.T) {
	repo := newMemoryRepo(posProduct(1, 10, 8))
	svc := newTestService(repo)

	// 10 on hand but 8 are promised to confirmed orders.
	_, err := svc.CreateDirect(context.Background(), staffScope(), CreateSaleRequest{
		FranchiseID:   10,
		PaymentMethod: PaymentCash,
		Items:         []CreateSaleItemReq{{ProductID: 1, Quantity: 3}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(2), stockErr.Available)
	require.Equal(t, int64(10), repo.products[1].StockQuantity)
	require.Empty(t, repo.sales)
}

func TestCreateDirectIsAllOrNothing(t *testing.T) {
	short := posProduct(2, 1, 0)
	short.SKU = "SKU-2"
	repo := newMemoryRepo(posProduct(1, 10, 0), short)
	svc := newTestService(repo)

	_, err := svc.CreateDirect(context.Background(), staffScope(), CreateSaleRequest{
		FranchiseID:   10,
		PaymentMethod: PaymentCard,
		Items: []CreateSaleItemReq{
			{ProductID: 1, Quantity: 4},
			{ProductID: 2, Quantity: 5},
		},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(10), repo.products[1].StockQuantity)
	require.Equal(t, int64(0), repo.products[1].TotalSold)
	require.Empty(t, repo.sales)
}

func TestCreateDirectPriceOverrideIsSnapshotted(t *testing.T) {
	repo := newMemoryRepo(posProduct(1, 10, 0))
	svc := newTestService(repo)

	override := 50.0
	sale, err := svc.CreateDirect(context.Background(), staffScope(), CreateSaleRequest{
		FranchiseID:   10,
		PaymentMethod: PaymentTransfer,
		Items:         []CreateSaleItemReq{{ProductID: 1, Quantity: 1, SellingPrice: &override}},
	})
	require.NoError(t, err)
	require.InDelta(t, 50.0, sale.Items[0].SellingPrice, 0.001)
	require.InDelta(t, 10.0, sale.TotalProfit, 0.001)

	// Changing the product price afterwards must not touch the snapshot.
	p := repo.products[1]
	p.SellingPrice = 99
	p.BuyingPrice = 1
	repo.products[1] = p

	got, err := svc.Get(context.Background(), staffScope(), sale.ID)
	require.NoError(t, err)
	require.InDelta(t, 50.0, got.Items[0].SellingPrice, 0.001)
	require.InDelta(t, 40.0, got.Items[0].BuyingPrice, 0.001)
}

func TestCreateDirectRejectsCrossFranchise(t *testing.T) {
	repo := newMemoryRepo(posProduct(1, 10, 0))
	svc := newTestService(repo)

	_, err := svc.CreateDirect(context.Background(), staffScope(), CreateSaleRequest{
		FranchiseID:   99,
		PaymentMethod: PaymentCash,
		Items:         []CreateSaleItemReq{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrForbidden)

	other := posProduct(3, 5, 0)
	other.FranchiseID = 99
	repo.products[3] = other
	_, err = svc.CreateDirect(context.Background(), staffScope(), CreateSaleRequest{
		FranchiseID:   10,
		PaymentMethod: PaymentCash,
		Items:         []CreateSaleItemReq{{ProductID: 3, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}
