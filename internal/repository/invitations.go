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

var invitationColumns = []string{
	"id", "email", "household_id", "invited_by", "token", "status",
	"expires_at", "sent_at", "send_error", "send_attempts", "created_at",
}

type invitationRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewInvitationRepository(db Querier, logger *slog.Logger) InvitationRepository {
	return &invitationRepository{db: db, logger: logger}
}

func (r *invitationRepository) Create(ctx context.Context, inv *entity.Invitation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Token == uuid.Nil {
		inv.Token = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = constants.InvitationPending
	}
	inv.Email = NormalizeEmail(inv.Email)
	inv.CreatedAt = time.Now().UTC()

	query, args := pg().Insert("invitations").
		Columns(invitationColumns...).
		Values(inv.ID, inv.Email, inv.HouseholdID, inv.InvitedBy, inv.Token, string(inv.Status),
			inv.ExpiresAt, inv.SentAt, inv.SendError, inv.SendAttempts, inv.CreatedAt).
		Query()
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.logger.Error("failed to create invitation", "household_id", inv.HouseholdID, "error", err)
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (r *invitationRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Invitation, error) {
	return r.getBy(ctx, "id", id)
}

func (r *invitationRepository) GetByToken(ctx context.Context, token uuid.UUID) (*entity.Invitation, error) {
	return r.getBy(ctx, "token", token)
}

func (r *invitationRepository) getBy(ctx context.Context, column string, value uuid.UUID) (*entity.Invitation, error) {
	query, args := pg().Select(invitationColumns...).
		From(entsql.Table("invitations")).
		Where(entsql.EQ(column, value)).
		Query()
	inv, err := scanInvitation(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NotFound("invitation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (r *invitationRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	query, args := pg().Update("invitations").
		Set("sent_at", at.UTC()).
		SetNull("send_error").
		Add("send_attempts", 1).
		Where(entsql.EQ("id", id)).
		Query()
	return r.exec(ctx, id, query, args)
}

func (r *invitationRepository) MarkSendFailed(ctx context.Context, id uuid.UUID, message string) error {
	query, args := pg().Update("invitations").
		Set("send_error", message).
		Add("send_attempts", 1).
		Where(entsql.EQ("id", id)).
		Query()
	return r.exec(ctx, id, query, args)
}

func (r *invitationRepository) exec(ctx context.Context, id uuid.UUID, query string, args []any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NotFound("invitation %s not found", id)
	}
	return nil
}

func (r *invitationRepository) ListUnsent(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*entity.Invitation, error) {
	sel := pg().Select(invitationColumns...).
		From(entsql.Table("invitations")).
		Where(entsql.And(
			entsql.IsNull("sent_at"),
			entsql.EQ("status", string(constants.InvitationPending)),
			entsql.GT("expires_at", now.UTC()),
			entsql.LT("send_attempts", maxAttempts),
		)).
		OrderBy("created_at")
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list unsent invitations: %w", err)
	}
	defer rows.Close()

	var out []*entity.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvitation(row rowScanner) (*entity.Invitation, error) {
	var (
		inv    entity.Invitation
		status string
	)
	err := row.Scan(&inv.ID, &inv.Email, &inv.HouseholdID, &inv.InvitedBy, &inv.Token, &status,
		&inv.ExpiresAt, &inv.SentAt, &inv.SendError, &inv.SendAttempts, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	inv.Status = constants.InvitationStatus(status)
	return &inv, nil
}
