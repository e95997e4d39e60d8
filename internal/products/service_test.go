package products

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/shared"
)

type memoryRepo struct {
	products map[int64]*Product
	openRefs map[int64]int64
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]*Product), openRefs: make(map[int64]int64)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	snap := make(map[int64]*Product, len(r.products))
	for id, p := range r.products {
		copied := *p
		snap[id] = &copied
	}
	nextSnap := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products = snap
		r.nextID = nextSnap
		return err
	}
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (*Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memoryRepo) GetBySKU(ctx context.Context, franchiseID int64, sku string) (*Product, error) {
	for _, p := range r.products {
		if p.FranchiseID == franchiseID && p.SKU == sku {
			copied := *p
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, req ListProductsRequest) ([]Product, int, error) {
	var result []Product
	for _, p := range r.products {
		if p.FranchiseID == req.FranchiseID {
			result = append(result, *p)
		}
	}
	return result, len(result), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) InsertProduct(ctx context.Context, p *Product) (int64, error) {
	t.repo.nextID++
	copied := *p
	copied.ID = t.repo.nextID
	t.repo.products[copied.ID] = &copied
	return copied.ID, nil
}

func (t *memoryTx) UpdateCatalog(ctx context.Context, id int64, req UpdateProductRequest) error {
	p, ok := t.repo.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Name = req.Name
	p.Description = req.Description
	p.Category = req.Category
	p.BuyingPrice = req.BuyingPrice
	p.SellingPrice = req.SellingPrice
	p.IsActive = req.IsActive
	return nil
}

func (t *memoryTx) CountOpenReferences(ctx context.Context, id int64) (int64, error) {
	return t.repo.openRefs[id], nil
}

func (t *memoryTx) SoftDelete(ctx context.Context, id int64) error {
	delete(t.repo.products, id)
	return nil
}

func (t *memoryTx) Stock() ledger.TxStore { return &memoryStock{repo: t.repo} }

type memoryStock struct {
	repo *memoryRepo
}

func (s *memoryStock) GetForUpdate(ctx context.Context, productID int64) (ledger.ProductStock, error) {
	p, ok := s.repo.products[productID]
	if !ok {
		return ledger.ProductStock{}, shared.ErrNotFound
	}
	return stockView(p), nil
}

func (s *memoryStock) GetBySKUForUpdate(ctx context.Context, franchiseID int64, sku string) (ledger.ProductStock, error) {
	for _, p := range s.repo.products {
		if p.FranchiseID == franchiseID && p.SKU == sku {
			return stockView(p), nil
		}
	}
	return ledger.ProductStock{}, shared.ErrNotFound
}

func (s *memoryStock) CreateProduct(ctx context.Context, p ledger.ProductStock) (int64, error) {
	return 0, shared.ErrNotFound
}

func (s *memoryStock) UpdateCounters(ctx context.Context, productID, stockQuantity, reservedQuantity int64) error {
	p := s.repo.products[productID]
	p.StockQuantity = stockQuantity
	p.ReservedQuantity = reservedQuantity
	return nil
}

func (s *memoryStock) ApplySale(ctx context.Context, productID, qty int64, revenue, profit float64, soldAt time.Time) error {
	return nil
}

func (s *memoryStock) InsertMovement(ctx context.Context, m ledger.Movement) error { return nil }

func stockView(p *Product) ledger.ProductStock {
	return ledger.ProductStock{
		ID:               p.ID,
		FranchiseID:      p.FranchiseID,
		SKU:              p.SKU,
		Name:             p.Name,
		StockQuantity:    p.StockQuantity,
		ReservedQuantity: p.ReservedQuantity,
		BuyingPrice:      p.BuyingPrice,
		SellingPrice:     p.SellingPrice,
	}
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, ledger.NewService(slog.Default()), nil, nil, slog.Default())
}

func managerScope() shared.Scope {
	return shared.Scope{UserID: 1, FranchiseID: 10, Role: shared.RoleManager}
}

func TestCreateNormalizesSKUAndRejectsDuplicates(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, managerScope(), CreateProductRequest{
		FranchiseID:  10,
		SKU:          "  sku-1 ",
		Name:         "Product",
		BuyingPrice:  40,
		SellingPrice: 65,
		InitialStock: 5,
	})
	require.NoError(t, err)
	require.Equal(t, "SKU-1", p.SKU)
	require.Equal(t, int64(5), p.StockQuantity)
	require.True(t, p.IsActive)

	_, err = svc.Create(ctx, managerScope(), CreateProductRequest{
		FranchiseID: 10,
		SKU:         "sku-1",
		Name:        "Duplicate",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Len(t, repo.products, 1)
}

func TestAdjustCannotCutIntoReservedStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, managerScope(), CreateProductRequest{
		FranchiseID: 10, SKU: "SKU-1", Name: "Product", InitialStock: 10,
	})
	require.NoError(t, err)
	repo.products[p.ID].ReservedQuantity = 6

	levels, err := svc.Adjust(ctx, managerScope(), p.ID, AdjustStockRequest{Delta: -4, Reason: "damaged"})
	require.NoError(t, err)
	require.Equal(t, int64(6), levels.StockQuantity)

	_, err = svc.Adjust(ctx, managerScope(), p.ID, AdjustStockRequest{Delta: -1, Reason: "damaged"})
	require.ErrorIs(t, err, shared.ErrInvalidQuantity)
	require.Equal(t, int64(6), repo.products[p.ID].StockQuantity)
}

func TestDeleteBlockedWhileReferenced(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, managerScope(), CreateProductRequest{
		FranchiseID: 10, SKU: "SKU-1", Name: "Product",
	})
	require.NoError(t, err)

	repo.openRefs[p.ID] = 2
	err = svc.Delete(ctx, managerScope(), p.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, repo.products, p.ID)

	repo.openRefs[p.ID] = 0
	require.NoError(t, svc.Delete(ctx, managerScope(), p.ID))
	require.NotContains(t, repo.products, p.ID)
}

func TestUpdateAndScope(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, managerScope(), CreateProductRequest{
		FranchiseID: 10, SKU: "SKU-1", Name: "Product", SellingPrice: 65,
	})
	require.NoError(t, err)

	other := shared.Scope{UserID: 5, FranchiseID: 99, Role: shared.RoleManager}
	_, err = svc.Update(ctx, other, p.ID, UpdateProductRequest{Name: "Hijacked", IsActive: true})
	require.ErrorIs(t, err, shared.ErrForbidden)

	updated, err := svc.Update(ctx, managerScope(), p.ID, UpdateProductRequest{
		Name: "Renamed", SellingPrice: 70, IsActive: true,
	})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.InDelta(t, 70.0, updated.SellingPrice, 0.001)
}
