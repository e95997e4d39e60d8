package franchises

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/shared"
)

type memoryRepo struct {
	franchises map[int64]Franchise
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{franchises: map[int64]Franchise{}, nextID: 1}
}

func (m *memoryRepo) Create(_ context.Context, f Franchise) (Franchise, error) {
	f.ID = m.nextID
	m.nextID++
	m.franchises[f.ID] = f
	return f, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, f Franchise) error {
	if _, ok := m.franchises[id]; !ok {
		return shared.ErrNotFound
	}
	f.ID = id
	m.franchises[id] = f
	return nil
}

func (m *memoryRepo) GetByID(_ context.Context, id int64) (Franchise, error) {
	f, ok := m.franchises[id]
	if !ok {
		return Franchise{}, fmt.Errorf("franchise %d: %w", id, shared.ErrNotFound)
	}
	return f, nil
}

func (m *memoryRepo) GetByCode(_ context.Context, code string) (Franchise, error) {
	for _, f := range m.franchises {
		if f.Code == code {
			return f, nil
		}
	}
	return Franchise{}, fmt.Errorf("franchise %s: %w", code, shared.ErrNotFound)
}

func (m *memoryRepo) List(_ context.Context) ([]Franchise, error) {
	out := make([]Franchise, 0, len(m.franchises))
	for _, f := range m.franchises {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func adminScope() shared.Scope {
	return shared.Scope{UserID: 1, Role: shared.RoleAdmin}
}

func TestCreateNormalizesCodeAndRejectsDuplicates(t *testing.T) {
	svc := NewService(newMemoryRepo(), slog.Default())

	created, err := svc.Create(context.Background(), adminScope(), FranchiseForm{Code: " br-north ", Name: "North Branch"})
	require.NoError(t, err)
	require.Equal(t, "BR-NORTH", created.Code)
	require.True(t, created.IsActive)

	_, err = svc.Create(context.Background(), adminScope(), FranchiseForm{Code: "BR-NORTH", Name: "Duplicate"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestOnlyAdminsManageFranchises(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, slog.Default())

	manager := shared.Scope{UserID: 2, FranchiseID: 10, Role: shared.RoleManager}
	_, err := svc.Create(context.Background(), manager, FranchiseForm{Code: "HQ", Name: "Central"})
	require.ErrorIs(t, err, shared.ErrForbidden)

	created, err := svc.Create(context.Background(), adminScope(), FranchiseForm{Code: "HQ", Name: "Central"})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), manager, created.ID, FranchiseForm{Code: "HQ", Name: "Renamed"})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestUpdateEditsExistingTenant(t *testing.T) {
	svc := NewService(newMemoryRepo(), slog.Default())

	created, err := svc.Create(context.Background(), adminScope(), FranchiseForm{Code: "HQ", Name: "Central", Phone: "555-0100"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), adminScope(), created.ID, FranchiseForm{
		Code: "HQ", Name: "Central Renamed", Address: "1 Market Street", IsActive: false,
	})
	require.NoError(t, err)
	require.Equal(t, "Central Renamed", updated.Name)
	require.Equal(t, "1 Market Street", updated.Address)
	require.False(t, updated.IsActive)
	// Code is immutable on update.
	require.Equal(t, "HQ", updated.Code)

	_, err = svc.Update(context.Background(), adminScope(), 999, FranchiseForm{Code: "X", Name: "Ghost"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
