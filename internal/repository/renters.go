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

var renterColumns = []string{"id", "tenancy_id", "user_id", "is_primary", "created_at", "updated_at"}

const listRentersSQL = `
SELECT r.id, r.tenancy_id, r.user_id, r.is_primary, r.created_at, r.updated_at,
       u.id, u.email, u.first_name, u.last_name, u.phone_number, u.role, u.is_active, u.created_at
FROM renters r
JOIN users u ON u.id = r.user_id
WHERE r.tenancy_id = $1
ORDER BY r.is_primary DESC, r.created_at`

type renterRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewRenterRepository(db Querier, logger *slog.Logger) RenterRepository {
	return &renterRepository{db: db, logger: logger}
}

func (r *renterRepository) Create(ctx context.Context, rt *entity.Renter) error {
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	now := time.Now().UTC()
	rt.CreatedAt, rt.UpdatedAt = now, now

	query, args := pg().Insert("renters").
		Columns(renterColumns...).
		Values(rt.ID, rt.TenancyID, rt.UserID, rt.IsPrimary, rt.CreatedAt, rt.UpdatedAt).
		Query()
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return common.Conflict("user %s is already a renter of tenancy %s", rt.UserID, rt.TenancyID)
		}
		r.logger.Error("failed to create renter", "tenancy_id", rt.TenancyID, "error", err)
		return fmt.Errorf("insert renter: %w", err)
	}
	return nil
}

func (r *renterRepository) Find(ctx context.Context, tenancyID, userID uuid.UUID) (*entity.Renter, error) {
	query, args := pg().Select(renterColumns...).
		From(entsql.Table("renters")).
		Where(entsql.And(entsql.EQ("tenancy_id", tenancyID), entsql.EQ("user_id", userID))).
		Query()
	var rt entity.Renter
	err := r.db.QueryRow(ctx, query, args...).
		Scan(&rt.ID, &rt.TenancyID, &rt.UserID, &rt.IsPrimary, &rt.CreatedAt, &rt.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find renter: %w", err)
	}
	return &rt, nil
}

func (r *renterRepository) SetPrimary(ctx context.Context, id uuid.UUID, primary bool) error {
	query, args := pg().Update("renters").
		Set("is_primary", primary).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id)).
		Query()
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return common.Conflict("tenancy already has a primary renter")
		}
		return fmt.Errorf("update renter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NotFound("renter %s not found", id)
	}
	return nil
}

func (r *renterRepository) DemoteOthers(ctx context.Context, tenancyID, keep uuid.UUID) (int64, error) {
	query, args := pg().Update("renters").
		Set("is_primary", false).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("tenancy_id", tenancyID),
			entsql.NEQ("id", keep),
			entsql.EQ("is_primary", true),
		)).
		Query()
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("demote renters: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *renterRepository) ListByTenancy(ctx context.Context, tenancyID uuid.UUID) ([]*entity.Renter, error) {
	rows, err := r.db.Query(ctx, listRentersSQL, tenancyID)
	if err != nil {
		return nil, fmt.Errorf("list renters: %w", err)
	}
	defer rows.Close()

	var out []*entity.Renter
	for rows.Next() {
		var (
			rt entity.Renter
			u  entity.User
		)
		if err := rows.Scan(&rt.ID, &rt.TenancyID, &rt.UserID, &rt.IsPrimary, &rt.CreatedAt, &rt.UpdatedAt,
			&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.Role, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, err
		}
		rt.User = &u
		out = append(out, &rt)
	}
	return out, rows.Err()
}
