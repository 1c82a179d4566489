package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
)

var householdColumns = []string{"id", "name", "address", "owner_id", "created_at", "updated_at"}

type householdRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewHouseholdRepository(db Querier, logger *slog.Logger) HouseholdRepository {
	return &householdRepository{db: db, logger: logger}
}

func (r *householdRepository) Create(ctx context.Context, h *entity.Household) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now

	query, args := pg().Insert("households").
		Columns(householdColumns...).
		Values(h.ID, h.Name, h.Address, h.OwnerID, h.CreatedAt, h.UpdatedAt).
		Query()
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.logger.Error("failed to create household", "owner_id", h.OwnerID, "error", err)
		return fmt.Errorf("insert household: %w", err)
	}
	return nil
}

func (r *householdRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Household, error) {
	return r.get(ctx, id, false)
}

func (r *householdRepository) Lock(ctx context.Context, id uuid.UUID) (*entity.Household, error) {
	return r.get(ctx, id, true)
}

func (r *householdRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*entity.Household, error) {
	sel := pg().Select(householdColumns...).
		From(entsql.Table("households")).
		Where(entsql.EQ("id", id))
	if lock {
		sel = sel.ForUpdate()
	}
	query, args := sel.Query()
	h, err := scanHousehold(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NotFound("household %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (r *householdRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entity.Household, error) {
	query, args := pg().Select(householdColumns...).
		From(entsql.Table("households")).
		Where(entsql.EQ("owner_id", ownerID)).
		OrderBy("created_at").
		Query()
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	defer rows.Close()

	var out []*entity.Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHousehold(row rowScanner) (*entity.Household, error) {
	var h entity.Household
	if err := row.Scan(&h.ID, &h.Name, &h.Address, &h.OwnerID, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}
