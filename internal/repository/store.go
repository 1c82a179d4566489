package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
)

// Lookups named Find* return (nil, nil) when nothing matches; Get* and Lock*
// return a NOT_FOUND AppError.

type HouseholdRepository interface {
	Create(ctx context.Context, h *entity.Household) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Household, error)
	// Lock reads the household with a row lock held until the transaction ends.
	Lock(ctx context.Context, id uuid.UUID) (*entity.Household, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entity.Household, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	Get(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
}

type AgreementRepository interface {
	Create(ctx context.Context, a *entity.TenancyAgreement) error
	Get(ctx context.Context, id uuid.UUID) (*entity.TenancyAgreement, error)
	// Transition moves the record to `to` only from a legal source status.
	// Moving back to pending clears the stored error.
	Transition(ctx context.Context, id uuid.UUID, to constants.AgreementStatus) (*entity.TenancyAgreement, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, data *entity.ExtractionResult) error
	MarkFailed(ctx context.Context, id uuid.UUID, code, message string, fields []common.ValidationError) error
	ListStaleProcessing(ctx context.Context, updatedBefore time.Time) ([]*entity.TenancyAgreement, error)
	ListByHousehold(ctx context.Context, householdID uuid.UUID) ([]*entity.TenancyAgreement, error)
}

type TenancyRepository interface {
	Create(ctx context.Context, t *entity.Tenancy) error
	Update(ctx context.Context, t *entity.Tenancy) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Tenancy, error)
	Lock(ctx context.Context, id uuid.UUID) (*entity.Tenancy, error)
	FindByProofDocument(ctx context.Context, agreementID uuid.UUID) (*entity.Tenancy, error)
	// FindActive returns the active tenancy of a household other than exclude.
	FindActive(ctx context.Context, householdID uuid.UUID, exclude *uuid.UUID) (*entity.Tenancy, error)
	List(ctx context.Context, filter entity.TenancyFilter) ([]*entity.Tenancy, error)
}

type RenterRepository interface {
	Create(ctx context.Context, r *entity.Renter) error
	Find(ctx context.Context, tenancyID, userID uuid.UUID) (*entity.Renter, error)
	SetPrimary(ctx context.Context, id uuid.UUID, primary bool) error
	// DemoteOthers clears is_primary on every renter of the tenancy except keep.
	DemoteOthers(ctx context.Context, tenancyID, keep uuid.UUID) (int64, error)
	ListByTenancy(ctx context.Context, tenancyID uuid.UUID) ([]*entity.Renter, error)
}

type InvitationRepository interface {
	Create(ctx context.Context, inv *entity.Invitation) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Invitation, error)
	GetByToken(ctx context.Context, token uuid.UUID) (*entity.Invitation, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkSendFailed(ctx context.Context, id uuid.UUID, message string) error
	ListUnsent(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*entity.Invitation, error)
}

// Repositories bundles the repositories bound to one connection or transaction.
type Repositories struct {
	Households  HouseholdRepository
	Users       UserRepository
	Agreements  AgreementRepository
	Tenancies   TenancyRepository
	Renters     RenterRepository
	Invitations InvitationRepository
}

// Store hands out repositories and runs transactional units of work.
//
// Transactions that lock more than one row take the household lock before any
// tenancy lock.
type Store interface {
	Repos() Repositories
	// InTx runs fn in a transaction; any error returned by fn rolls back every write.
	InTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Ping(ctx context.Context) error
}
