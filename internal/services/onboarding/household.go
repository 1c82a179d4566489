package onboarding

import (
	"context"
	"strings"

	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
)

// HouseholdInput carries either a full address or its components.
type HouseholdInput struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// FullAddress returns Address, or the non-empty components joined with ", ".
func (in HouseholdInput) FullAddress() string {
	if a := strings.TrimSpace(in.Address); a != "" {
		return a
	}
	var parts []string
	for _, p := range []string{in.Street, in.PostalCode, in.City, in.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func (s *Service) CreateHousehold(ctx context.Context, actor common.Actor, in HouseholdInput) (*entity.Household, error) {
	h := &entity.Household{
		Name:    strings.TrimSpace(in.Name),
		Address: in.FullAddress(),
		OwnerID: actor.UserID,
	}
	v := common.NewValidator()
	v.Field("name", h.Name, common.Required, common.MaxLength(255))
	v.Field("address", h.Address, common.Required, common.MaxLength(500))
	if err := v.Err("invalid household"); err != nil {
		return nil, err
	}
	if err := s.store.Repos().Households.Create(ctx, h); err != nil {
		return nil, err
	}
	s.logger.Info("onboarding.household.created", "household_id", h.ID, "owner_id", actor.UserID)
	return h, nil
}

// Status summarizes how far the actor got through onboarding.
type Status struct {
	HouseholdCreated bool `json:"household_created"`
	TenancyCreated   bool `json:"tenancy_created"`
	RentersAdded     bool `json:"renters_added"`
	Households       int  `json:"households"`
	Tenancies        int  `json:"tenancies"`
}

func (s *Service) Status(ctx context.Context, actor common.Actor) (*Status, error) {
	repos := s.store.Repos()
	households, err := repos.Households.ListByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	tenancies, err := repos.Tenancies.List(ctx, entity.TenancyFilter{OwnerID: &actor.UserID})
	if err != nil {
		return nil, err
	}
	st := &Status{
		HouseholdCreated: len(households) > 0,
		TenancyCreated:   len(tenancies) > 0,
		Households:       len(households),
		Tenancies:        len(tenancies),
	}
	for _, t := range tenancies {
		renters, err := repos.Renters.ListByTenancy(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if len(renters) > 0 {
			st.RentersAdded = true
			break
		}
	}
	return st, nil
}
