package repository

import (
	"context"
	"encoding/json"
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

var agreementColumns = []string{
	"id", "household_id", "uploaded_by", "file_name", "file_ext", "file_size", "storage_key",
	"status", "extracted_data", "error_code", "error_message", "error_fields",
	"processed_at", "created_at", "updated_at",
}

const agreementsTable = "tenancy_agreements"

type agreementRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewAgreementRepository(db Querier, logger *slog.Logger) AgreementRepository {
	return &agreementRepository{db: db, logger: logger}
}

func (r *agreementRepository) Create(ctx context.Context, a *entity.TenancyAgreement) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = constants.AgreementPending
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	query, args := pg().Insert(agreementsTable).
		Columns("id", "household_id", "uploaded_by", "file_name", "file_ext", "file_size", "storage_key", "status", "created_at", "updated_at").
		Values(a.ID, a.HouseholdID, a.UploadedBy, a.FileName, a.FileExt, a.FileSize, a.StorageKey, string(a.Status), a.CreatedAt, a.UpdatedAt).
		Query()
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.logger.Error("failed to create agreement", "household_id", a.HouseholdID, "error", err)
		return fmt.Errorf("insert agreement: %w", err)
	}
	return nil
}

func (r *agreementRepository) Get(ctx context.Context, id uuid.UUID) (*entity.TenancyAgreement, error) {
	query, args := pg().Select(agreementColumns...).
		From(entsql.Table(agreementsTable)).
		Where(entsql.EQ("id", id)).
		Query()
	a, err := scanAgreement(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NotFound("tenancy agreement %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get agreement: %w", err)
	}
	return a, nil
}

func (r *agreementRepository) Transition(ctx context.Context, id uuid.UUID, to constants.AgreementStatus) (*entity.TenancyAgreement, error) {
	upd := pg().Update(agreementsTable).
		Set("status", string(to)).
		Set("updated_at", time.Now().UTC())
	if to == constants.AgreementPending {
		upd = upd.SetNull("error_code").SetNull("error_message").SetNull("error_fields")
	}
	query, args := upd.Where(entsql.And(
		entsql.EQ("id", id),
		entsql.In("status", statusArgs(constants.SourcesFor(to))...),
	)).Query()

	if err := r.conditionalUpdate(ctx, id, to, query, args); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *agreementRepository) MarkProcessed(ctx context.Context, id uuid.UUID, data *entity.ExtractionResult) error {
	if data == nil {
		return common.InvalidInput("processed agreement %s requires extracted data", id)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode extracted data: %w", err)
	}
	now := time.Now().UTC()
	query, args := pg().Update(agreementsTable).
		Set("status", string(constants.AgreementProcessed)).
		Set("extracted_data", raw).
		Set("processed_at", now).
		Set("updated_at", now).
		SetNull("error_code").
		SetNull("error_message").
		SetNull("error_fields").
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(constants.AgreementProcessing)),
		)).Query()
	return r.conditionalUpdate(ctx, id, constants.AgreementProcessed, query, args)
}

func (r *agreementRepository) MarkFailed(ctx context.Context, id uuid.UUID, code, message string, fields []common.ValidationError) error {
	var rawFields any
	if len(fields) > 0 {
		b, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode error fields: %w", err)
		}
		rawFields = b
	}
	query, args := pg().Update(agreementsTable).
		Set("status", string(constants.AgreementFailed)).
		SetNull("extracted_data").
		Set("error_code", code).
		Set("error_message", message).
		Set("error_fields", rawFields).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.In("status", statusArgs(constants.SourcesFor(constants.AgreementFailed))...),
		)).Query()
	return r.conditionalUpdate(ctx, id, constants.AgreementFailed, query, args)
}

// conditionalUpdate runs a status-guarded update and explains a zero-row result.
func (r *agreementRepository) conditionalUpdate(ctx context.Context, id uuid.UUID, to constants.AgreementStatus, query string, args []any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to update agreement status", "agreement_id", id, "to", to, "error", err)
		return fmt.Errorf("update agreement: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return common.Precondition("tenancy agreement %s is %s and cannot move to %s", id, current.Status, to)
}

func (r *agreementRepository) ListStaleProcessing(ctx context.Context, updatedBefore time.Time) ([]*entity.TenancyAgreement, error) {
	query, args := pg().Select(agreementColumns...).
		From(entsql.Table(agreementsTable)).
		Where(entsql.And(
			entsql.EQ("status", string(constants.AgreementProcessing)),
			entsql.LT("updated_at", updatedBefore),
		)).
		OrderBy("updated_at").
		Query()
	return r.list(ctx, query, args)
}

func (r *agreementRepository) ListByHousehold(ctx context.Context, householdID uuid.UUID) ([]*entity.TenancyAgreement, error) {
	query, args := pg().Select(agreementColumns...).
		From(entsql.Table(agreementsTable)).
		Where(entsql.EQ("household_id", householdID)).
		OrderBy(entsql.Desc("created_at")).
		Query()
	return r.list(ctx, query, args)
}

func (r *agreementRepository) list(ctx context.Context, query string, args []any) ([]*entity.TenancyAgreement, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	defer rows.Close()

	var out []*entity.TenancyAgreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAgreement(row rowScanner) (*entity.TenancyAgreement, error) {
	var (
		a         entity.TenancyAgreement
		status    string
		extracted []byte
		fields    []byte
	)
	err := row.Scan(&a.ID, &a.HouseholdID, &a.UploadedBy, &a.FileName, &a.FileExt, &a.FileSize, &a.StorageKey,
		&status, &extracted, &a.ErrorCode, &a.ErrorMessage, &fields,
		&a.ProcessedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = constants.AgreementStatus(status)
	if len(extracted) > 0 {
		a.ExtractedData = &entity.ExtractionResult{}
		if err := json.Unmarshal(extracted, a.ExtractedData); err != nil {
			return nil, fmt.Errorf("decode extracted data: %w", err)
		}
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &a.ErrorFields); err != nil {
			return nil, fmt.Errorf("decode error fields: %w", err)
		}
	}
	return &a, nil
}

func statusArgs(statuses []constants.AgreementStatus) []any {
	out := make([]any, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
