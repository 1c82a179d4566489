package onboarding

import (
	"context"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
)

// AddRenter links one renter to an existing tenancy. Adding a user who is
// already a renter of it is a RECONCILIATION_CONFLICT.
func (s *Service) AddRenter(ctx context.Context, actor common.Actor, tenancyID uuid.UUID, in RenterInput) (*entity.Tenancy, error) {
	in = in.trimmed()
	v := common.NewValidator()
	in.validate(v, "")
	if err := v.Err("invalid renter"); err != nil {
		return nil, err
	}

	var (
		out *entity.Tenancy
		inv *entity.Invitation
	)
	err := s.store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		t, err := repos.Tenancies.Get(ctx, tenancyID)
		if err != nil {
			return err
		}
		if _, err := household(ctx, repos, actor, t.HouseholdID, true); err != nil {
			return err
		}
		if t, err = repos.Tenancies.Lock(ctx, tenancyID); err != nil {
			return err
		}
		if t.Status == constants.TenancyMovedOut {
			return common.Precondition("tenancy %s has ended", t.ID)
		}
		if inv, err = s.attachRenter(ctx, repos, actor, t, in, true); err != nil {
			return err
		}
		if t.Renters, err = repos.Renters.ListByTenancy(ctx, t.ID); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("onboarding.renter.added", "tenancy_id", tenancyID, "primary", in.IsPrimary, "invited", inv != nil)
	if inv != nil {
		s.deliver(ctx, []*entity.Invitation{inv})
	}
	return out, nil
}
