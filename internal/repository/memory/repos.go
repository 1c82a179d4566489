package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
)

type households struct{ base }

func (r *households) Create(_ context.Context, h *entity.Household) error {
	st, unlock := r.lock()
	defer unlock()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now
	st.households[h.ID] = *h
	return nil
}

func (r *households) Get(_ context.Context, id uuid.UUID) (*entity.Household, error) {
	st, unlock := r.lock()
	defer unlock()
	h, ok := st.households[id]
	if !ok {
		return nil, common.NotFound("household %s not found", id)
	}
	return &h, nil
}

func (r *households) Lock(ctx context.Context, id uuid.UUID) (*entity.Household, error) {
	return r.Get(ctx, id)
}

func (r *households) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*entity.Household, error) {
	st, unlock := r.lock()
	defer unlock()
	var out []*entity.Household
	for _, h := range st.households {
		if h.OwnerID == ownerID {
			h := h
			out = append(out, &h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type users struct{ base }

func (r *users) Create(_ context.Context, u *entity.User) error {
	st, unlock := r.lock()
	defer unlock()
	u.Email = repository.NormalizeEmail(u.Email)
	for _, existing := range st.users {
		if existing.Email == u.Email {
			return common.Conflict("a user with email %s already exists", u.Email)
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now().UTC()
	st.users[u.ID] = *u
	return nil
}

func (r *users) Get(_ context.Context, id uuid.UUID) (*entity.User, error) {
	st, unlock := r.lock()
	defer unlock()
	u, ok := st.users[id]
	if !ok {
		return nil, common.NotFound("user %s not found", id)
	}
	return &u, nil
}

func (r *users) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	st, unlock := r.lock()
	defer unlock()
	email = repository.NormalizeEmail(email)
	for _, u := range st.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

type agreements struct{ base }

func cloneAgreement(a entity.TenancyAgreement) *entity.TenancyAgreement {
	if a.ExtractedData != nil {
		d := *a.ExtractedData
		d.Renters = append([]entity.ExtractedRenter(nil), d.Renters...)
		d.Warnings = append([]string(nil), d.Warnings...)
		a.ExtractedData = &d
	}
	a.ErrorFields = append([]common.ValidationError(nil), a.ErrorFields...)
	return &a
}

func (r *agreements) Create(_ context.Context, a *entity.TenancyAgreement) error {
	st, unlock := r.lock()
	defer unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = constants.AgreementPending
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	st.agreements[a.ID] = *cloneAgreement(*a)
	return nil
}

func (r *agreements) Get(_ context.Context, id uuid.UUID) (*entity.TenancyAgreement, error) {
	st, unlock := r.lock()
	defer unlock()
	a, ok := st.agreements[id]
	if !ok {
		return nil, common.NotFound("tenancy agreement %s not found", id)
	}
	return cloneAgreement(a), nil
}

// move applies mutate if the record may move to `to`. Callers hold the lock.
func (r *agreements) move(st *state, id uuid.UUID, to constants.AgreementStatus, allowed []constants.AgreementStatus, mutate func(*entity.TenancyAgreement)) error {
	a, ok := st.agreements[id]
	if !ok {
		return common.NotFound("tenancy agreement %s not found", id)
	}
	legal := false
	for _, s := range allowed {
		if a.Status == s {
			legal = true
			break
		}
	}
	if !legal {
		return common.Precondition("tenancy agreement %s is %s and cannot move to %s", id, a.Status, to)
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	mutate(&a)
	st.agreements[id] = *cloneAgreement(a)
	return nil
}

func (r *agreements) Transition(_ context.Context, id uuid.UUID, to constants.AgreementStatus) (*entity.TenancyAgreement, error) {
	st, unlock := r.lock()
	defer unlock()
	err := r.move(st, id, to, constants.SourcesFor(to), func(a *entity.TenancyAgreement) {
		if to == constants.AgreementPending {
			a.ErrorCode, a.ErrorMessage, a.ErrorFields = nil, nil, nil
		}
	})
	if err != nil {
		return nil, err
	}
	return cloneAgreement(st.agreements[id]), nil
}

func (r *agreements) MarkProcessed(_ context.Context, id uuid.UUID, data *entity.ExtractionResult) error {
	if data == nil {
		return common.InvalidInput("processed agreement %s requires extracted data", id)
	}
	st, unlock := r.lock()
	defer unlock()
	allowed := []constants.AgreementStatus{constants.AgreementProcessing}
	return r.move(st, id, constants.AgreementProcessed, allowed, func(a *entity.TenancyAgreement) {
		now := time.Now().UTC()
		a.ExtractedData = data
		a.ProcessedAt = &now
		a.ErrorCode, a.ErrorMessage, a.ErrorFields = nil, nil, nil
	})
}

func (r *agreements) MarkFailed(_ context.Context, id uuid.UUID, code, message string, fields []common.ValidationError) error {
	st, unlock := r.lock()
	defer unlock()
	allowed := constants.SourcesFor(constants.AgreementFailed)
	return r.move(st, id, constants.AgreementFailed, allowed, func(a *entity.TenancyAgreement) {
		a.ExtractedData = nil
		a.ErrorCode = &code
		a.ErrorMessage = &message
		a.ErrorFields = fields
	})
}

func (r *agreements) ListStaleProcessing(_ context.Context, updatedBefore time.Time) ([]*entity.TenancyAgreement, error) {
	return r.filter(func(a entity.TenancyAgreement) bool {
		return a.Status == constants.AgreementProcessing && a.UpdatedAt.Before(updatedBefore)
	}, func(a, b *entity.TenancyAgreement) bool { return a.UpdatedAt.Before(b.UpdatedAt) }), nil
}

func (r *agreements) ListByHousehold(_ context.Context, householdID uuid.UUID) ([]*entity.TenancyAgreement, error) {
	return r.filter(func(a entity.TenancyAgreement) bool {
		return a.HouseholdID == householdID
	}, func(a, b *entity.TenancyAgreement) bool { return a.CreatedAt.After(b.CreatedAt) }), nil
}

func (r *agreements) filter(keep func(entity.TenancyAgreement) bool, less func(a, b *entity.TenancyAgreement) bool) []*entity.TenancyAgreement {
	st, unlock := r.lock()
	defer unlock()
	var out []*entity.TenancyAgreement
	for _, a := range st.agreements {
		if keep(a) {
			out = append(out, cloneAgreement(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

type tenancies struct{ base }

func (r *tenancies) checkUnique(st *state, t *entity.Tenancy) error {
	for id, other := range st.tenancies {
		if id == t.ID {
			continue
		}
		if t.Status == constants.TenancyActive && other.HouseholdID == t.HouseholdID && other.Status == constants.TenancyActive {
			return common.Conflict("household %s already has an active tenancy", t.HouseholdID)
		}
		if t.ProofDocumentID != nil && other.ProofDocumentID != nil && *t.ProofDocumentID == *other.ProofDocumentID {
			return common.Conflict("document %s is already linked to tenancy %s", *t.ProofDocumentID, id)
		}
	}
	return nil
}

func (r *tenancies) Create(_ context.Context, t *entity.Tenancy) error {
	st, unlock := r.lock()
	defer unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if err := r.checkUnique(st, t); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	stored := *t
	stored.Renters = nil
	st.tenancies[t.ID] = stored
	return nil
}

func (r *tenancies) Update(_ context.Context, t *entity.Tenancy) error {
	st, unlock := r.lock()
	defer unlock()
	if _, ok := st.tenancies[t.ID]; !ok {
		return common.NotFound("tenancy %s not found", t.ID)
	}
	if err := r.checkUnique(st, t); err != nil {
		return err
	}
	t.UpdatedAt = time.Now().UTC()
	stored := *t
	stored.Renters = nil
	st.tenancies[t.ID] = stored
	return nil
}

func (r *tenancies) Get(_ context.Context, id uuid.UUID) (*entity.Tenancy, error) {
	st, unlock := r.lock()
	defer unlock()
	t, ok := st.tenancies[id]
	if !ok {
		return nil, common.NotFound("tenancy %s not found", id)
	}
	return &t, nil
}

func (r *tenancies) Lock(ctx context.Context, id uuid.UUID) (*entity.Tenancy, error) {
	return r.Get(ctx, id)
}

func (r *tenancies) FindByProofDocument(_ context.Context, agreementID uuid.UUID) (*entity.Tenancy, error) {
	st, unlock := r.lock()
	defer unlock()
	for _, t := range st.tenancies {
		if t.ProofDocumentID != nil && *t.ProofDocumentID == agreementID {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (r *tenancies) FindActive(_ context.Context, householdID uuid.UUID, exclude *uuid.UUID) (*entity.Tenancy, error) {
	st, unlock := r.lock()
	defer unlock()
	for _, t := range st.tenancies {
		if t.HouseholdID != householdID || t.Status != constants.TenancyActive {
			continue
		}
		if exclude != nil && t.ID == *exclude {
			continue
		}
		t := t
		return &t, nil
	}
	return nil, nil
}

func (r *tenancies) List(_ context.Context, filter entity.TenancyFilter) ([]*entity.Tenancy, error) {
	st, unlock := r.lock()
	defer unlock()
	search := strings.ToLower(filter.Search)
	var out []*entity.Tenancy
	for _, t := range st.tenancies {
		if filter.HouseholdID != nil && t.HouseholdID != *filter.HouseholdID {
			continue
		}
		if filter.OwnerID != nil {
			h, ok := st.households[t.HouseholdID]
			if !ok || h.OwnerID != *filter.OwnerID {
				continue
			}
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Name), search) {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

type renters struct{ base }

func (r *renters) Create(_ context.Context, rt *entity.Renter) error {
	st, unlock := r.lock()
	defer unlock()
	for _, other := range st.renters {
		if other.TenancyID != rt.TenancyID {
			continue
		}
		if other.UserID == rt.UserID {
			return common.Conflict("user %s is already a renter of tenancy %s", rt.UserID, rt.TenancyID)
		}
		if rt.IsPrimary && other.IsPrimary {
			return common.Conflict("tenancy already has a primary renter")
		}
	}
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	now := time.Now().UTC()
	rt.CreatedAt, rt.UpdatedAt = now, now
	stored := *rt
	stored.User = nil
	st.renters[rt.ID] = stored
	return nil
}

func (r *renters) Find(_ context.Context, tenancyID, userID uuid.UUID) (*entity.Renter, error) {
	st, unlock := r.lock()
	defer unlock()
	for _, rt := range st.renters {
		if rt.TenancyID == tenancyID && rt.UserID == userID {
			rt := rt
			return &rt, nil
		}
	}
	return nil, nil
}

func (r *renters) SetPrimary(_ context.Context, id uuid.UUID, primary bool) error {
	st, unlock := r.lock()
	defer unlock()
	rt, ok := st.renters[id]
	if !ok {
		return common.NotFound("renter %s not found", id)
	}
	if primary {
		for otherID, other := range st.renters {
			if otherID != id && other.TenancyID == rt.TenancyID && other.IsPrimary {
				return common.Conflict("tenancy already has a primary renter")
			}
		}
	}
	rt.IsPrimary = primary
	rt.UpdatedAt = time.Now().UTC()
	st.renters[id] = rt
	return nil
}

func (r *renters) DemoteOthers(_ context.Context, tenancyID, keep uuid.UUID) (int64, error) {
	st, unlock := r.lock()
	defer unlock()
	var n int64
	for id, rt := range st.renters {
		if rt.TenancyID == tenancyID && id != keep && rt.IsPrimary {
			rt.IsPrimary = false
			rt.UpdatedAt = time.Now().UTC()
			st.renters[id] = rt
			n++
		}
	}
	return n, nil
}

func (r *renters) ListByTenancy(_ context.Context, tenancyID uuid.UUID) ([]*entity.Renter, error) {
	st, unlock := r.lock()
	defer unlock()
	var out []*entity.Renter
	for _, rt := range st.renters {
		if rt.TenancyID != tenancyID {
			continue
		}
		rt := rt
		if u, ok := st.users[rt.UserID]; ok {
			rt.User = &u
		}
		out = append(out, &rt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type invitations struct{ base }

func (r *invitations) Create(_ context.Context, inv *entity.Invitation) error {
	st, unlock := r.lock()
	defer unlock()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Token == uuid.Nil {
		inv.Token = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = constants.InvitationPending
	}
	inv.Email = repository.NormalizeEmail(inv.Email)
	inv.CreatedAt = time.Now().UTC()
	st.invitations[inv.ID] = *inv
	return nil
}

func (r *invitations) Get(_ context.Context, id uuid.UUID) (*entity.Invitation, error) {
	st, unlock := r.lock()
	defer unlock()
	inv, ok := st.invitations[id]
	if !ok {
		return nil, common.NotFound("invitation not found")
	}
	return &inv, nil
}

func (r *invitations) GetByToken(_ context.Context, token uuid.UUID) (*entity.Invitation, error) {
	st, unlock := r.lock()
	defer unlock()
	for _, inv := range st.invitations {
		if inv.Token == token {
			inv := inv
			return &inv, nil
		}
	}
	return nil, common.NotFound("invitation not found")
}

func (r *invitations) update(id uuid.UUID, mutate func(*entity.Invitation)) error {
	st, unlock := r.lock()
	defer unlock()
	inv, ok := st.invitations[id]
	if !ok {
		return common.NotFound("invitation %s not found", id)
	}
	mutate(&inv)
	st.invitations[id] = inv
	return nil
}

func (r *invitations) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, func(inv *entity.Invitation) {
		at := at.UTC()
		inv.SentAt = &at
		inv.SendError = nil
		inv.SendAttempts++
	})
}

func (r *invitations) MarkSendFailed(_ context.Context, id uuid.UUID, message string) error {
	return r.update(id, func(inv *entity.Invitation) {
		inv.SendError = &message
		inv.SendAttempts++
	})
}

func (r *invitations) ListUnsent(_ context.Context, now time.Time, maxAttempts, limit int) ([]*entity.Invitation, error) {
	st, unlock := r.lock()
	defer unlock()
	var out []*entity.Invitation
	for _, inv := range st.invitations {
		if inv.SentAt != nil || inv.Status != constants.InvitationPending {
			continue
		}
		if !now.Before(inv.ExpiresAt) || inv.SendAttempts >= maxAttempts {
			continue
		}
		inv := inv
		out = append(out, &inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
