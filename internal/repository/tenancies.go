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

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
)

var tenancyColumns = []string{
	"id", "household_id", "name", "status", "start_date", "end_date",
	"monthly_rent", "deposit", "proof_document_id", "created_at", "updated_at",
}

type tenancyRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewTenancyRepository(db Querier, logger *slog.Logger) TenancyRepository {
	return &tenancyRepository{db: db, logger: logger}
}

func (r *tenancyRepository) Create(ctx context.Context, t *entity.Tenancy) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	query, args := pg().Insert("tenancies").
		Columns(tenancyColumns...).
		Values(t.ID, t.HouseholdID, t.Name, string(t.Status), t.StartDate.Time, dateArg(t.EndDate),
			t.MonthlyRent, t.Deposit, t.ProofDocumentID, t.CreatedAt, t.UpdatedAt).
		Query()
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return common.Conflict("household %s already has an active tenancy or this document is already linked", t.HouseholdID)
		}
		r.logger.Error("failed to create tenancy", "household_id", t.HouseholdID, "error", err)
		return fmt.Errorf("insert tenancy: %w", err)
	}
	return nil
}

func (r *tenancyRepository) Update(ctx context.Context, t *entity.Tenancy) error {
	t.UpdatedAt = time.Now().UTC()
	query, args := pg().Update("tenancies").
		Set("name", t.Name).
		Set("status", string(t.Status)).
		Set("start_date", t.StartDate.Time).
		Set("end_date", dateArg(t.EndDate)).
		Set("monthly_rent", t.MonthlyRent).
		Set("deposit", t.Deposit).
		Set("proof_document_id", t.ProofDocumentID).
		Set("updated_at", t.UpdatedAt).
		Where(entsql.EQ("id", t.ID)).
		Query()
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return common.Conflict("household %s already has an active tenancy", t.HouseholdID)
		}
		r.logger.Error("failed to update tenancy", "tenancy_id", t.ID, "error", err)
		return fmt.Errorf("update tenancy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NotFound("tenancy %s not found", t.ID)
	}
	return nil
}

func (r *tenancyRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Tenancy, error) {
	return r.get(ctx, id, false)
}

func (r *tenancyRepository) Lock(ctx context.Context, id uuid.UUID) (*entity.Tenancy, error) {
	return r.get(ctx, id, true)
}

func (r *tenancyRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*entity.Tenancy, error) {
	sel := pg().Select(tenancyColumns...).
		From(entsql.Table("tenancies")).
		Where(entsql.EQ("id", id))
	if lock {
		sel = sel.ForUpdate()
	}
	query, args := sel.Query()
	t, err := scanTenancy(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NotFound("tenancy %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenancy: %w", err)
	}
	return t, nil
}

func (r *tenancyRepository) FindByProofDocument(ctx context.Context, agreementID uuid.UUID) (*entity.Tenancy, error) {
	query, args := pg().Select(tenancyColumns...).
		From(entsql.Table("tenancies")).
		Where(entsql.EQ("proof_document_id", agreementID)).
		ForUpdate().
		Query()
	return r.findOne(ctx, query, args)
}

func (r *tenancyRepository) FindActive(ctx context.Context, householdID uuid.UUID, exclude *uuid.UUID) (*entity.Tenancy, error) {
	preds := []*entsql.Predicate{
		entsql.EQ("household_id", householdID),
		entsql.EQ("status", string(constants.TenancyActive)),
	}
	if exclude != nil {
		preds = append(preds, entsql.NEQ("id", *exclude))
	}
	query, args := pg().Select(tenancyColumns...).
		From(entsql.Table("tenancies")).
		Where(entsql.And(preds...)).
		Limit(1).
		Query()
	return r.findOne(ctx, query, args)
}

func (r *tenancyRepository) findOne(ctx context.Context, query string, args []any) (*entity.Tenancy, error) {
	t, err := scanTenancy(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tenancy: %w", err)
	}
	return t, nil
}

func (r *tenancyRepository) List(ctx context.Context, filter entity.TenancyFilter) ([]*entity.Tenancy, error) {
	var preds []*entsql.Predicate
	if filter.HouseholdID != nil {
		preds = append(preds, entsql.EQ("household_id", *filter.HouseholdID))
	}
	if filter.OwnerID != nil {
		owned := pg().Select("id").
			From(entsql.Table("households")).
			Where(entsql.EQ("owner_id", *filter.OwnerID))
		preds = append(preds, entsql.In("household_id", owned))
	}
	if filter.Status != "" {
		preds = append(preds, entsql.EQ("status", string(filter.Status)))
	}
	if filter.Search != "" {
		preds = append(preds, entsql.ContainsFold("name", filter.Search))
	}

	sel := pg().Select(tenancyColumns...).From(entsql.Table("tenancies"))
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	query, args := sel.OrderBy(entsql.Desc("start_date")).Query()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tenancies: %w", err)
	}
	defer rows.Close()

	var out []*entity.Tenancy
	for rows.Next() {
		t, err := scanTenancy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTenancy(row rowScanner) (*entity.Tenancy, error) {
	var (
		t      entity.Tenancy
		status string
		start  time.Time
		end    *time.Time
	)
	err := row.Scan(&t.ID, &t.HouseholdID, &t.Name, &status, &start, &end,
		&t.MonthlyRent, &t.Deposit, &t.ProofDocumentID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = constants.TenancyStatus(status)
	t.StartDate = entity.DateOf(start)
	if end != nil {
		t.EndDate = entity.DatePtr(entity.DateOf(*end))
	}
	return &t, nil
}

func dateArg(d *entity.Date) any {
	if d == nil {
		return nil
	}
	return d.Time
}
