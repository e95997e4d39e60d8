package transfers

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
	products  map[int64]ledger.ProductStock
	transfers map[int64]*Transfer
	nextID    int64
}

func newMemoryRepo(products ...ledger.ProductStock) *memoryRepo {
	r := &memoryRepo{
		products:  make(map[int64]ledger.ProductStock),
		transfers: make(map[int64]*Transfer),
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
	for id, t := range r.transfers {
		copied := *t
		snap.transfers[id] = &copied
	}
	snap.nextID = r.nextID
	return snap
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products = snap.products
		r.transfers = snap.transfers
		r.nextID = snap.nextID
		return err
	}
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (*Transfer, error) {
	t, ok := r.transfers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *memoryRepo) List(ctx context.Context, req ListTransfersRequest) ([]Transfer, int, error) {
	var result []Transfer
	for _, t := range r.transfers {
		if t.FromFranchiseID == req.FranchiseID || t.ToFranchiseID == req.FranchiseID {
			result = append(result, *t)
		}
	}
	return result, len(result), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GetTransferForUpdate(ctx context.Context, id int64) (*Transfer, error) {
	return t.repo.GetByID(ctx, id)
}

func (t *memoryTx) InsertTransfer(ctx context.Context, transfer *Transfer) (int64, error) {
	t.repo.nextID++
	copied := *transfer
	copied.ID = t.repo.nextID
	t.repo.transfers[copied.ID] = &copied
	return copied.ID, nil
}

func (t *memoryTx) UpdateTransfer(ctx context.Context, id int64, status Status, approvedBy *int64, actualDelivery *time.Time) error {
	transfer := t.repo.transfers[id]
	transfer.Status = status
	if approvedBy != nil {
		transfer.ApprovedBy = approvedBy
	}
	if actualDelivery != nil {
		transfer.ActualDelivery = actualDelivery
	}
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
	return nil
}

func (s *memoryStock) InsertMovement(ctx context.Context, m ledger.Movement) error { return nil }

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, ledger.NewService(slog.Default()), nil, nil, slog.Default())
}

func senderScope() shared.Scope {
	return shared.Scope{UserID: 1, FranchiseID: 10, Role: shared.RoleManager}
}

func receiverScope() shared.Scope {
	return shared.Scope{UserID: 2, FranchiseID: 20, Role: shared.RoleManager}
}

func sourceProduct(stock int64) ledger.ProductStock {
	return ledger.ProductStock{
		ID:            1,
		FranchiseID:   10,
		SKU:           "SKU-1",
		Name:          "Product",
		StockQuantity: stock,
		BuyingPrice:   40,
		SellingPrice:  65,
	}
}

func createTransfer(t *testing.T, svc *Service, qty int64) *Transfer {
	t.Helper()
	transfer, err := svc.Create(context.Background(), senderScope(), CreateTransferRequest{
		ProductID:     1,
		ToFranchiseID: 20,
		Quantity:      qty,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, transfer.Status)
	return transfer
}

func TestCompleteConservesTotalStock(t *testing.T) {
	repo := newMemoryRepo(sourceProduct(10))
	svc := newTestService(repo)
	ctx := context.Background()

	transfer := createTransfer(t, svc, 3)
	approved, err := svc.Approve(ctx, receiverScope(), transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, receiverScope().UserID, *approved.ApprovedBy)

	completed, err := svc.Complete(ctx, receiverScope(), transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.ActualDelivery)

	require.Equal(t, int64(7), repo.products[1].StockQuantity)

	var dest ledger.ProductStock
	for _, p := range repo.products {
		if p.FranchiseID == 20 {
			dest = p
		}
	}
	require.Equal(t, "SKU-1", dest.SKU)
	require.Equal(t, int64(3), dest.StockQuantity)
	// Auto-provisioned destination adopts the unit cost as buying price.
	require.InDelta(t, 40.0, dest.BuyingPrice, 0.001)

	var total int64
	for _, p := range repo.products {
		total += p.StockQuantity
	}
	require.Equal(t, int64(10), total)
}

func TestCompleteWithStaleStockStaysApproved(t *testing.T) {
	repo := newMemoryRepo(sourceProduct(10))
	svc := newTestService(repo)
	ctx := context.Background()

	transfer := createTransfer(t, svc, 3)
	_, err := svc.Approve(ctx, receiverScope(), transfer.ID)
	require.NoError(t, err)

	// Stock drops to 2 between approval and completion.
	p := repo.products[1]
	p.StockQuantity = 2
	repo.products[1] = p

	_, err = svc.Complete(ctx, receiverScope(), transfer.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	got, err := svc.Get(ctx, senderScope(), transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, int64(2), repo.products[1].StockQuantity)

	// Still cancellable after the failed attempt.
	cancelled, err := svc.Cancel(ctx, senderScope(), transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestApprovalRestrictedToReceivingFranchise(t *testing.T) {
	repo := newMemoryRepo(sourceProduct(10))
	svc := newTestService(repo)
	ctx := context.Background()

	transfer := createTransfer(t, svc, 3)

	_, err := svc.Approve(ctx, senderScope(), transfer.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.Reject(ctx, senderScope(), transfer.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	// And cancellation belongs to the sender.
	_, err = svc.Cancel(ctx, receiverScope(), transfer.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	admin := shared.Scope{UserID: 9, Role: shared.RoleAdmin}
	approved, err := svc.Approve(ctx, admin, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
}

func TestRejectOnlyFromPending(t *testing.T) {
	repo := newMemoryRepo(sourceProduct(10))
	svc := newTestService(repo)
	ctx := context.Background()

	transfer := createTransfer(t, svc, 3)
	_, err := svc.Approve(ctx, receiverScope(), transfer.ID)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, receiverScope(), transfer.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCompletedIsTerminal(t *testing.T) {
	repo := newMemoryRepo(sourceProduct(10))
	svc := newTestService(repo)
	ctx := context.Background()

	transfer := createTransfer(t, svc, 3)
	_, err := svc.Approve(ctx, receiverScope(), transfer.ID)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, receiverScope(), transfer.ID)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, receiverScope(), transfer.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = svc.Cancel(ctx, senderScope(), transfer.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Equal(t, int64(7), repo.products[1].StockQuantity)
}

func TestCompleteSkippingApprovalIsRejected(t *testing.T) {
	repo := newMemoryRepo(sourceProduct(10))
	svc := newTestService(repo)

	transfer := createTransfer(t, svc, 3)
	_, err := svc.Complete(context.Background(), receiverScope(), transfer.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Equal(t, int64(10), repo.products[1].StockQuantity)
}

func TestCreateAdvisoryStockCheck(t *testing.T) {
	repo := newMemoryRepo(sourceProduct(2))
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), senderScope(), CreateTransferRequest{
		ProductID:     1,
		ToFranchiseID: 20,
		Quantity:      3,
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, repo.transfers)
}

func TestBulkExportPartialSuccess(t *testing.T) {
	repo := newMemoryRepo(
		sourceProduct(10),
		ledger.ProductStock{ID: 2, FranchiseID: 10, SKU: "SKU-2", Name: "Short", StockQuantity: 1, BuyingPrice: 5, SellingPrice: 9},
	)
	svc := newTestService(repo)

	outcomes := svc.Export(context.Background(), senderScope(), []BulkMoveRow{
		{ProductID: 1, ToFranchiseID: 20, Quantity: 4},
		{ProductID: 2, ToFranchiseID: 20, Quantity: 5},
		{ProductID: 1, ToFranchiseID: 20, Quantity: 2},
	})
	require.Len(t, outcomes, 3)
	require.Empty(t, outcomes[0].Error)
	require.NotEmpty(t, outcomes[1].Error)
	require.Empty(t, outcomes[2].Error)
	require.NotZero(t, outcomes[0].TransferID)
	require.Zero(t, outcomes[1].TransferID)

	// Failed row rolled back alone; the others landed as completed transfers.
	require.Equal(t, int64(4), repo.products[1].StockQuantity)
	require.Equal(t, int64(1), repo.products[2].StockQuantity)
	require.Len(t, repo.transfers, 2)
	for _, tr := range repo.transfers {
		require.Equal(t, StatusCompleted, tr.Status)
		require.NotNil(t, tr.ActualDelivery)
	}
}

func TestBulkImportCreditsCallerFranchise(t *testing.T) {
	repo := newMemoryRepo(sourceProduct(10))
	svc := newTestService(repo)

	outcomes := svc.Import(context.Background(), receiverScope(), []BulkMoveRow{
		{ProductID: 1, Quantity: 4},
	})
	require.Len(t, outcomes, 1)
	require.Empty(t, outcomes[0].Error)

	require.Equal(t, int64(6), repo.products[1].StockQuantity)
	var dest ledger.ProductStock
	for _, p := range repo.products {
		if p.FranchiseID == 20 {
			dest = p
		}
	}
	require.Equal(t, int64(4), dest.StockQuantity)
}

func TestMoveDirectHonoursReservations(t *testing.T) {
	p := sourceProduct(10)
	p.ReservedQuantity = 8
	repo := newMemoryRepo(p)
	svc := newTestService(repo)
	ctx := context.Background()

	transfer := createTransfer(t, svc, 3)
	_, err := svc.Approve(ctx, receiverScope(), transfer.ID)
	require.NoError(t, err)

	// Only 2 units are unreserved even though 10 are on hand.
	_, err = svc.Complete(ctx, receiverScope(), transfer.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(2), stockErr.Available)
	require.Equal(t, int64(10), repo.products[1].StockQuantity)
}
