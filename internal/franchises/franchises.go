// Package franchises manages the tenants of the platform. Every product,
// order, transfer and sale belongs to exactly one franchise.
package franchises

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/shared"
)

// Franchise is one tenant.
type Franchise struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FranchiseForm is the create/update payload.
type FranchiseForm struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=200"`
	Address  string `json:"address" validate:"max=500"`
	Phone    string `json:"phone" validate:"max=32"`
	IsActive bool   `json:"isActive"`
}

// Repository is the franchise persistence port.
type Repository interface {
	Create(ctx context.Context, f Franchise) (Franchise, error)
	Update(ctx context.Context, id int64, f Franchise) error
	GetByID(ctx context.Context, id int64) (Franchise, error)
	GetByCode(ctx context.Context, code string) (Franchise, error)
	List(ctx context.Context) ([]Franchise, error)
}

// Service manages franchises. Only admins may create or edit tenants.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create registers a tenant with a unique upper-cased code.
func (s *Service) Create(ctx context.Context, scope shared.Scope, form FranchiseForm) (Franchise, error) {
	if !scope.IsAdmin() {
		return Franchise{}, fmt.Errorf("%w: only admins manage franchises", shared.ErrForbidden)
	}
	code := strings.ToUpper(strings.TrimSpace(form.Code))
	if _, err := s.repo.GetByCode(ctx, code); err == nil {
		return Franchise{}, fmt.Errorf("%w: franchise code %s already exists", shared.ErrValidation, code)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Franchise{}, err
	}
	return s.repo.Create(ctx, Franchise{
		Code:     code,
		Name:     form.Name,
		Address:  form.Address,
		Phone:    form.Phone,
		IsActive: true,
	})
}

// Update edits a tenant.
func (s *Service) Update(ctx context.Context, scope shared.Scope, id int64, form FranchiseForm) (Franchise, error) {
	if !scope.IsAdmin() {
		return Franchise{}, fmt.Errorf("%w: only admins manage franchises", shared.ErrForbidden)
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Franchise{}, err
	}
	current.Name = form.Name
	current.Address = form.Address
	current.Phone = form.Phone
	current.IsActive = form.IsActive
	if err := s.repo.Update(ctx, id, current); err != nil {
		return Franchise{}, err
	}
	return s.repo.GetByID(ctx, id)
}

// Get returns one franchise.
func (s *Service) Get(ctx context.Context, id int64) (Franchise, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all franchises.
func (s *Service) List(ctx context.Context) ([]Franchise, error) {
	return s.repo.List(ctx)
}

// PgRepository persists franchises in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const franchiseColumns = `id, code, name, address, phone, is_active, created_at, updated_at`

func (r *PgRepository) Create(ctx context.Context, f Franchise) (Franchise, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO franchises (code, name, address, phone, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING `+franchiseColumns,
		f.Code, f.Name, f.Address, f.Phone, f.IsActive)
	return scanFranchise(row)
}

func (r *PgRepository) Update(ctx context.Context, id int64, f Franchise) error {
	tag, err := r.pool.Exec(ctx, `UPDATE franchises SET name=$2, address=$3, phone=$4, is_active=$5, updated_at=NOW() WHERE id=$1`,
		id, f.Name, f.Address, f.Phone, f.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: franchise %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (Franchise, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+franchiseColumns+` FROM franchises WHERE id=$1`, id)
	f, err := scanFranchise(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Franchise{}, fmt.Errorf("%w: franchise %d", shared.ErrNotFound, id)
		}
		return Franchise{}, err
	}
	return f, nil
}

func (r *PgRepository) GetByCode(ctx context.Context, code string) (Franchise, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+franchiseColumns+` FROM franchises WHERE code=$1`, code)
	f, err := scanFranchise(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Franchise{}, fmt.Errorf("%w: franchise %s", shared.ErrNotFound, code)
		}
		return Franchise{}, err
	}
	return f, nil
}

func (r *PgRepository) List(ctx context.Context) ([]Franchise, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+franchiseColumns+` FROM franchises ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Franchise{}
	for rows.Next() {
		f, err := scanFranchise(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func scanFranchise(row pgx.Row) (Franchise, error) {
	var f Franchise
	err := row.Scan(&f.ID, &f.Code, &f.Name, &f.Address, &f.Phone, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}
