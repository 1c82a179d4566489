package onboarding

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/async"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
	"github.com/YorickdeJong/energy-contracts/internal/storage"
)

// InvitationSender delivers an invitation after its rows are committed.
type InvitationSender interface {
	Deliver(ctx context.Context, inv *entity.Invitation) error
}

type Config struct {
	MaxUploadBytes int64
	InvitationTTL  time.Duration
}

// Service implements landlord onboarding: households, agreement upload and
// processing, confirmation into a tenancy and renter reconciliation.
type Service struct {
	store   repository.Store
	docs    storage.DocumentStore
	proc    async.Processor
	queue   async.Queue
	inviter InvitationSender
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the service. With a nil queue, uploads are processed
// inline before the request returns.
func NewService(
	store repository.Store,
	docs storage.DocumentStore,
	proc async.Processor,
	queue async.Queue,
	inviter InvitationSender,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = constants.MaxUploadSize
	}
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		docs:    docs,
		proc:    proc,
		queue:   queue,
		inviter: inviter,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// household loads a household and checks the actor may manage it:
// unknown is NOT_FOUND, someone else's is FORBIDDEN.
func household(ctx context.Context, repos repository.Repositories, actor common.Actor, id uuid.UUID, lock bool) (*entity.Household, error) {
	var (
		h   *entity.Household
		err error
	)
	if lock {
		h, err = repos.Households.Lock(ctx, id)
	} else {
		h, err = repos.Households.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if h.OwnerID != actor.UserID && !actor.IsAdmin() {
		return nil, common.Forbidden("you do not manage household %s", id)
	}
	return h, nil
}

// ownedAgreement hides agreements of other landlords behind NOT_FOUND.
func ownedAgreement(ctx context.Context, repos repository.Repositories, actor common.Actor, id uuid.UUID) (*entity.TenancyAgreement, error) {
	a, err := repos.Agreements.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := household(ctx, repos, actor, a.HouseholdID, false); err != nil {
		if common.IsCode(err, common.CodeForbidden) {
			return nil, common.NotFound("tenancy agreement %s not found", id)
		}
		return nil, err
	}
	return a, nil
}

func (s *Service) deliver(ctx context.Context, invitations []*entity.Invitation) {
	if s.inviter == nil {
		return
	}
	for _, inv := range invitations {
		if err := s.inviter.Deliver(ctx, inv); err != nil {
			s.logger.Warn("onboarding.invitation.deferred", "invitation_id", inv.ID, "error", err)
		}
	}
}
