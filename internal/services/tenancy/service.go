package tenancy

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/export"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
)

// Service handles the tenancy lifecycle after onboarding.
type Service struct {
	store    repository.Store
	exporter *export.Service
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new tenancy service.
func NewService(store repository.Store, exporter *export.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = export.NewService(store, logger)
	}
	return &Service{store: store, exporter: exporter, logger: logger, now: time.Now}
}

// ListRequest narrows a tenancy listing. Landlords only ever see their own households.
type ListRequest struct {
	HouseholdID *uuid.UUID
	Status      string
	Search      string
}

func (s *Service) filter(actor common.Actor, req ListRequest) (entity.TenancyFilter, error) {
	f := entity.TenancyFilter{
		HouseholdID: req.HouseholdID,
		Search:      strings.TrimSpace(req.Search),
	}
	if req.Status != "" {
		if !constants.ValidTenancyStatus(req.Status) {
			return f, common.InvalidInput("unknown status %q; allowed: %s", req.Status, strings.Join(constants.TenancyStatuses, ", "))
		}
		f.Status = constants.TenancyStatus(req.Status)
	}
	if !actor.IsAdmin() {
		owner := actor.UserID
		f.OwnerID = &owner
	}
	return f, nil
}

func (s *Service) List(ctx context.Context, actor common.Actor, req ListRequest) ([]*entity.Tenancy, error) {
	f, err := s.filter(actor, req)
	if err != nil {
		return nil, err
	}
	return s.store.Repos().Tenancies.List(ctx, f)
}

// Get returns the tenancy with its renters.
func (s *Service) Get(ctx context.Context, actor common.Actor, id uuid.UUID) (*entity.Tenancy, error) {
	repos := s.store.Repos()
	t, err := owned(ctx, repos, actor, id)
	if err != nil {
		return nil, err
	}
	if t.Renters, err = repos.Renters.ListByTenancy(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// Export renders the tenancies matching req as an XLSX workbook.
func (s *Service) Export(ctx context.Context, actor common.Actor, req ListRequest) ([]byte, error) {
	f, err := s.filter(actor, req)
	if err != nil {
		return nil, err
	}
	return s.exporter.TenanciesXLSX(ctx, f)
}

// Activate moves a future tenancy to active. The household lock held by
// update makes the single-active check race free against concurrent confirms.
func (s *Service) Activate(ctx context.Context, actor common.Actor, id uuid.UUID) (*entity.Tenancy, error) {
	return s.update(ctx, actor, id, "tenancy.activated", func(repos repository.Repositories, t *entity.Tenancy) error {
		switch t.Status {
		case constants.TenancyActive:
			return nil
		case constants.TenancyFuture:
		default:
			return common.Precondition("tenancy %s is %s and cannot be activated", t.ID, t.Status)
		}
		other, err := repos.Tenancies.FindActive(ctx, t.HouseholdID, &t.ID)
		if err != nil {
			return err
		}
		if other != nil {
			return common.Conflict("household already has an active tenancy (%s)", other.Name)
		}
		t.Status = constants.TenancyActive
		return nil
	})
}

// StartMoveOut records the end date of an active tenancy.
func (s *Service) StartMoveOut(ctx context.Context, actor common.Actor, id uuid.UUID, endDate entity.Date) (*entity.Tenancy, error) {
	return s.update(ctx, actor, id, "tenancy.move_out.started", func(_ repository.Repositories, t *entity.Tenancy) error {
		if t.Status != constants.TenancyActive && t.Status != constants.TenancyMovingOut {
			return common.Precondition("tenancy %s is %s; only active tenancies can move out", t.ID, t.Status)
		}
		t.EndDate = &endDate
		t.Status = constants.TenancyMovingOut
		return nil
	})
}

// MarkMovedOut ends the tenancy. Moved-out tenancies stay listed but accept no
// further changes.
func (s *Service) MarkMovedOut(ctx context.Context, actor common.Actor, id uuid.UUID) (*entity.Tenancy, error) {
	return s.update(ctx, actor, id, "tenancy.moved_out", func(_ repository.Repositories, t *entity.Tenancy) error {
		if t.Status == constants.TenancyMovedOut {
			return common.Precondition("tenancy %s has already ended", t.ID)
		}
		if t.EndDate == nil {
			today := entity.DateOf(s.now().UTC())
			if today.After(t.StartDate) {
				t.EndDate = &today
			}
		}
		t.Status = constants.TenancyMovedOut
		return nil
	})
}

// update applies mutate to the tenancy under the household lock and then the
// tenancy lock, the same order Confirm takes them in.
func (s *Service) update(ctx context.Context, actor common.Actor, id uuid.UUID, event string, mutate func(repos repository.Repositories, t *entity.Tenancy) error) (*entity.Tenancy, error) {
	var out *entity.Tenancy
	err := s.store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		t, err := owned(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		if _, err := repos.Households.Lock(ctx, t.HouseholdID); err != nil {
			return err
		}
		if t, err = repos.Tenancies.Lock(ctx, id); err != nil {
			return err
		}
		if err := mutate(repos, t); err != nil {
			return err
		}
		if err := t.Validate(); err != nil {
			return err
		}
		if err := repos.Tenancies.Update(ctx, t); err != nil {
			return err
		}
		if t.Renters, err = repos.Renters.ListByTenancy(ctx, t.ID); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		s.logger.Warn(event+".rejected", "tenancy_id", id, "code", common.CodeOf(err), "error", err)
		return nil, err
	}
	s.logger.Info(event, "tenancy_id", id, "status", out.Status)
	return out, nil
}

// owned loads a tenancy of a household the actor manages. Tenancies of other
// landlords are reported as FORBIDDEN.
func owned(ctx context.Context, repos repository.Repositories, actor common.Actor, id uuid.UUID) (*entity.Tenancy, error) {
	t, err := repos.Tenancies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return t, nil
	}
	h, err := repos.Households.Get(ctx, t.HouseholdID)
	if err != nil {
		return nil, err
	}
	if h.OwnerID != actor.UserID {
		return nil, common.Forbidden("you do not manage tenancy %s", id)
	}
	return t, nil
}
