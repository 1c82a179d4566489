package onboarding

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
)

// RenterInput is one renter as reviewed by the landlord.
type RenterInput struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	IsPrimary   bool    `json:"is_primary"`
}

// trimmed returns in with surrounding whitespace removed from the text fields.
func (in RenterInput) trimmed() RenterInput {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	if in.PhoneNumber != nil {
		p := strings.TrimSpace(*in.PhoneNumber)
		in.PhoneNumber = &p
		if p == "" {
			in.PhoneNumber = nil
		}
	}
	return in
}

func (in RenterInput) validate(v *common.Validator, prefix string) {
	v.Field(prefix+"email", in.Email, common.Required, common.Email, common.MaxLength(254))
	v.Field(prefix+"first_name", in.FirstName, common.MaxLength(150))
	v.Field(prefix+"last_name", in.LastName, common.MaxLength(150))
	v.Field(prefix+"phone_number", in.PhoneNumber, common.Phone)
}

// ConfirmInput holds the reviewed tenancy fields. A nil Renters list takes
// the renters from the extracted data.
type ConfirmInput struct {
	AgreementID uuid.UUID     `json:"tenancy_agreement_id"`
	Name        string        `json:"tenancy_name"`
	StartDate   entity.Date   `json:"start_date"`
	EndDate     *entity.Date  `json:"end_date"`
	MonthlyRent float64       `json:"monthly_rent"`
	Deposit     float64       `json:"deposit"`
	Renters     []RenterInput `json:"renters"`
}

type ConfirmResult struct {
	Tenancy     *entity.Tenancy      `json:"tenancy"`
	Created     bool                 `json:"created"`
	Invitations []*entity.Invitation `json:"invitations"`
}

// Confirm creates or updates the tenancy proven by a processed agreement and
// reconciles its renters, all in one transaction. Repeating a confirm updates
// the same tenancy. Invitation emails go out after commit.
func (s *Service) Confirm(ctx context.Context, actor common.Actor, in ConfirmInput) (*ConfirmResult, error) {
	start := time.Now()
	res := &ConfirmResult{}

	err := s.store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		a, err := ownedAgreement(ctx, repos, actor, in.AgreementID)
		if err != nil {
			return err
		}
		if a.Status != constants.AgreementProcessed {
			return common.Precondition("tenancy agreement %s is %s; only processed agreements can be confirmed", a.ID, a.Status)
		}
		// serializes confirms and activations per household
		if _, err := repos.Households.Lock(ctx, a.HouseholdID); err != nil {
			return err
		}

		source := in.Renters
		if source == nil {
			source = s.extractedRenters(a)
		}
		renters := make([]RenterInput, len(source))
		v := common.NewValidator()
		for i, r := range source {
			renters[i] = r.trimmed()
			renters[i].validate(v, "renters["+strconv.Itoa(i)+"].")
		}

		t, err := repos.Tenancies.FindByProofDocument(ctx, a.ID)
		if err != nil {
			return err
		}
		res.Created = t == nil
		if t == nil {
			proof := a.ID
			t = &entity.Tenancy{HouseholdID: a.HouseholdID, ProofDocumentID: &proof}
		}
		t.Name = strings.TrimSpace(in.Name)
		t.StartDate = in.StartDate
		t.EndDate = in.EndDate
		t.MonthlyRent = in.MonthlyRent
		t.Deposit = in.Deposit
		t.Status = entity.StatusForStart(in.StartDate, s.now())

		if err := t.Validate(); err != nil {
			for _, fe := range common.FieldErrors(err) {
				v.Add(fe.Field, fe.Value, fe.Message)
			}
		}
		if err := v.Err("invalid confirmation"); err != nil {
			return err
		}

		if t.Status == constants.TenancyActive {
			var exclude *uuid.UUID
			if !res.Created {
				exclude = &t.ID
			}
			other, err := repos.Tenancies.FindActive(ctx, t.HouseholdID, exclude)
			if err != nil {
				return err
			}
			if other != nil {
				return common.Conflict("household already has an active tenancy (%s)", other.Name)
			}
		}

		if res.Created {
			err = repos.Tenancies.Create(ctx, t)
		} else {
			err = repos.Tenancies.Update(ctx, t)
		}
		if err != nil {
			return err
		}

		for _, r := range renters {
			inv, err := s.attachRenter(ctx, repos, actor, t, r, false)
			if err != nil {
				return err
			}
			if inv != nil {
				res.Invitations = append(res.Invitations, inv)
			}
		}

		if t.Renters, err = repos.Renters.ListByTenancy(ctx, t.ID); err != nil {
			return err
		}
		res.Tenancy = t
		return nil
	})
	if err != nil {
		s.logger.Warn("confirm.tenancy.rejected", "agreement_id", in.AgreementID, "code", common.CodeOf(err), "error", err)
		return nil, err
	}

	event := "confirm.tenancy.updated"
	if res.Created {
		event = "confirm.tenancy.created"
	}
	s.logger.Info(event,
		"agreement_id", in.AgreementID,
		"tenancy_id", res.Tenancy.ID,
		"status", res.Tenancy.Status,
		"renters", len(res.Tenancy.Renters),
		"invitations", len(res.Invitations),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	s.deliver(ctx, res.Invitations)
	return res, nil
}

func (s *Service) extractedRenters(a *entity.TenancyAgreement) []RenterInput {
	if a.ExtractedData == nil {
		return []RenterInput{}
	}
	out := make([]RenterInput, 0, len(a.ExtractedData.Renters))
	for _, r := range a.ExtractedData.Renters {
		if r.Email == nil {
			s.logger.Warn("confirm.renter.skipped_without_email", "agreement_id", a.ID)
			continue
		}
		out = append(out, RenterInput{
			FirstName:   deref(r.FirstName),
			LastName:    deref(r.LastName),
			Email:       *r.Email,
			PhoneNumber: r.PhoneNumber,
			IsPrimary:   r.IsPrimary,
		})
	}
	return out
}

// findUser returns the account registered under email, or nil.
func findUser(ctx context.Context, repos repository.Repositories, email string) (*entity.User, error) {
	return repos.Users.FindByEmail(ctx, email)
}

// createPlaceholderUser creates an inactive tenant account that the invitee
// activates by registering.
func createPlaceholderUser(ctx context.Context, repos repository.Repositories, in RenterInput) (*entity.User, error) {
	u := &entity.User{
		Email:       in.Email,
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		PhoneNumber: in.PhoneNumber,
		Role:        string(constants.RoleTenant),
		IsActive:    false,
	}
	if err := repos.Users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// attachRenter resolves the renter's user and links it to the tenancy. A new
// placeholder user also gets an invitation, which is returned for delivery.
// With strict set an existing link is a conflict; otherwise it is updated.
func (s *Service) attachRenter(ctx context.Context, repos repository.Repositories, actor common.Actor, t *entity.Tenancy, in RenterInput, strict bool) (*entity.Invitation, error) {
	var inv *entity.Invitation
	u, err := findUser(ctx, repos, in.Email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		if u, err = createPlaceholderUser(ctx, repos, in); err != nil {
			return nil, err
		}
		inv = &entity.Invitation{
			Email:       u.Email,
			HouseholdID: t.HouseholdID,
			InvitedBy:   actor.UserID,
			Status:      constants.InvitationPending,
			ExpiresAt:   s.now().Add(s.cfg.InvitationTTL).UTC(),
		}
		if err := repos.Invitations.Create(ctx, inv); err != nil {
			return nil, err
		}
	}

	r, err := repos.Renters.Find(ctx, t.ID, u.ID)
	if err != nil {
		return nil, err
	}
	if r != nil && strict {
		return nil, common.Conflict("%s is already a renter of this tenancy", u.Email)
	}
	if r == nil {
		r = &entity.Renter{TenancyID: t.ID, UserID: u.ID}
		if err := repos.Renters.Create(ctx, r); err != nil {
			return nil, err
		}
	}

	switch {
	case in.IsPrimary:
		// demote first so the single-primary constraint never sees two
		if _, err := repos.Renters.DemoteOthers(ctx, t.ID, r.ID); err != nil {
			return nil, err
		}
		if !r.IsPrimary {
			if err := repos.Renters.SetPrimary(ctx, r.ID, true); err != nil {
				return nil, err
			}
		}
	case r.IsPrimary && !strict:
		if err := repos.Renters.SetPrimary(ctx, r.ID, false); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
