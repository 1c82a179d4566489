// Package repotest holds the behavioral contract every repository.Store
// implementation must satisfy.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
)

// Run exercises store against the shared contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("households", func(t *testing.T) { testHouseholds(t, newStore(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("agreement state machine", func(t *testing.T) { testAgreements(t, newStore(t)) })
	t.Run("tenancies", func(t *testing.T) { testTenancies(t, newStore(t)) })
	t.Run("renters", func(t *testing.T) { testRenters(t, newStore(t)) })
	t.Run("invitations", func(t *testing.T) { testInvitations(t, newStore(t)) })
	t.Run("transaction rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
}

// SeedOwner creates a landlord and one household owned by it.
func SeedOwner(t *testing.T, store repository.Store) (*entity.User, *entity.Household) {
	t.Helper()
	ctx := context.Background()
	repos := store.Repos()
	owner := &entity.User{Email: uuid.NewString() + "@landlord.test", FirstName: "Lena", Role: string(constants.RoleLandlord), IsActive: true}
	if err := repos.Users.Create(ctx, owner); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	h := &entity.Household{Name: "Canal House", Address: "Keizersgracht 1, Amsterdam", OwnerID: owner.ID}
	if err := repos.Households.Create(ctx, h); err != nil {
		t.Fatalf("create household: %v", err)
	}
	return owner, h
}

func testHouseholds(t *testing.T, store repository.Store) {
	ctx := context.Background()
	owner, h := SeedOwner(t, store)

	got, err := store.Repos().Households.Get(ctx, h.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Canal House" || got.OwnerID != owner.ID {
		t.Errorf("unexpected household %+v", got)
	}
	list, err := store.Repos().Households.ListByOwner(ctx, owner.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByOwner: %v, %d", err, len(list))
	}
	if _, err := store.Repos().Households.Get(ctx, uuid.New()); !common.IsCode(err, common.CodeNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func testUsers(t *testing.T, store repository.Store) {
	ctx := context.Background()
	users := store.Repos().Users
	email := uuid.NewString() + "@example.com"

	u := &entity.User{Email: "  " + email + " ", FirstName: "John", LastName: "Doe"}
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	found, err := users.FindByEmail(ctx, email)
	if err != nil || found == nil || found.ID != u.ID {
		t.Fatalf("FindByEmail: %v %+v", err, found)
	}
	if found.IsActive {
		t.Error("placeholder users are inactive")
	}
	missing, err := users.FindByEmail(ctx, "nobody@example.com")
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for unknown email, got %+v, %v", missing, err)
	}
	dup := &entity.User{Email: email}
	if err := users.Create(ctx, dup); !common.IsCode(err, common.CodeConflict) {
		t.Errorf("Expected conflict on duplicate email, got %v", err)
	}
}

func newAgreement(t *testing.T, store repository.Store, h *entity.Household) *entity.TenancyAgreement {
	t.Helper()
	a := &entity.TenancyAgreement{
		HouseholdID: h.ID, UploadedBy: h.OwnerID, FileName: "lease.pdf", FileExt: "pdf",
		FileSize: 1024, StorageKey: "agreements/" + uuid.NewString() + ".pdf",
	}
	if err := store.Repos().Agreements.Create(context.Background(), a); err != nil {
		t.Fatalf("create agreement: %v", err)
	}
	return a
}

func testAgreements(t *testing.T, store repository.Store) {
	ctx := context.Background()
	_, h := SeedOwner(t, store)
	repo := store.Repos().Agreements
	a := newAgreement(t, store, h)

	if a.Status != constants.AgreementPending {
		t.Fatalf("Expected pending, got %s", a.Status)
	}
	if err := repo.MarkProcessed(ctx, a.ID, &entity.ExtractionResult{}); !common.IsCode(err, common.CodePrecondition) {
		t.Fatalf("pending -> processed must be rejected, got %v", err)
	}
	if _, err := repo.Transition(ctx, a.ID, constants.AgreementProcessing); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if err := repo.MarkFailed(ctx, a.ID, common.CodeParse, "bad json", nil); err != nil {
		t.Fatalf("processing -> failed: %v", err)
	}
	failed, _ := repo.Get(ctx, a.ID)
	if failed.Status != constants.AgreementFailed || failed.ExtractedData != nil {
		t.Fatalf("unexpected failed record %+v", failed)
	}
	if failed.ErrorCode == nil || *failed.ErrorCode != common.CodeParse {
		t.Errorf("Expected stored error code, got %v", failed.ErrorCode)
	}
	if _, err := repo.Transition(ctx, a.ID, constants.AgreementProcessing); !common.IsCode(err, common.CodePrecondition) {
		t.Fatalf("failed -> processing must require a reset, got %v", err)
	}

	reset, err := repo.Transition(ctx, a.ID, constants.AgreementPending)
	if err != nil {
		t.Fatalf("failed -> pending: %v", err)
	}
	if reset.ErrorCode != nil || reset.ErrorMessage != nil {
		t.Error("reset must clear the stored error")
	}
	if _, err := repo.Transition(ctx, a.ID, constants.AgreementProcessing); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	rent := 1200.0
	data := &entity.ExtractionResult{MonthlyRent: &rent, Renters: []entity.ExtractedRenter{{IsPrimary: true}}}
	if err := repo.MarkProcessed(ctx, a.ID, data); err != nil {
		t.Fatalf("processing -> processed: %v", err)
	}
	done, _ := repo.Get(ctx, a.ID)
	if done.ExtractedData == nil || *done.ExtractedData.MonthlyRent != 1200 || done.ProcessedAt == nil {
		t.Fatalf("processed record must carry data: %+v", done)
	}
	if err := repo.MarkFailed(ctx, a.ID, common.CodeParse, "late", nil); !common.IsCode(err, common.CodePrecondition) {
		t.Errorf("processed is terminal, got %v", err)
	}

	stale := newAgreement(t, store, h)
	if _, err := repo.Transition(ctx, stale.ID, constants.AgreementProcessing); err != nil {
		t.Fatal(err)
	}
	list, err := repo.ListStaleProcessing(ctx, time.Now().Add(time.Minute))
	if err != nil || len(list) != 1 || list[0].ID != stale.ID {
		t.Errorf("ListStaleProcessing: %v %v", err, list)
	}
	byHousehold, err := repo.ListByHousehold(ctx, h.ID)
	if err != nil || len(byHousehold) != 2 {
		t.Errorf("ListByHousehold: %v %d", err, len(byHousehold))
	}
}

func newTenancy(h *entity.Household, name string, status constants.TenancyStatus) *entity.Tenancy {
	return &entity.Tenancy{
		HouseholdID: h.ID, Name: name, Status: status,
		StartDate: entity.NewDate(2024, time.January, 1), MonthlyRent: 1000, Deposit: 2000,
	}
}

func testTenancies(t *testing.T, store repository.Store) {
	ctx := context.Background()
	owner, h := SeedOwner(t, store)
	repo := store.Repos().Tenancies
	a := newAgreement(t, store, h)

	active := newTenancy(h, "Lease 2024", constants.TenancyActive)
	active.ProofDocumentID = &a.ID
	if err := repo.Create(ctx, active); err != nil {
		t.Fatalf("Create: %v", err)
	}
	second := newTenancy(h, "Lease 2025", constants.TenancyActive)
	if err := repo.Create(ctx, second); !common.IsCode(err, common.CodeConflict) {
		t.Fatalf("second active tenancy must conflict, got %v", err)
	}
	second.Status = constants.TenancyFuture
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("future tenancy: %v", err)
	}

	found, err := repo.FindByProofDocument(ctx, a.ID)
	if err != nil || found == nil || found.ID != active.ID {
		t.Fatalf("FindByProofDocument: %v %+v", err, found)
	}
	other, err := repo.FindActive(ctx, h.ID, &active.ID)
	if err != nil || other != nil {
		t.Errorf("FindActive excluding self: %+v %v", other, err)
	}
	if got, _ := repo.FindActive(ctx, h.ID, nil); got == nil || got.ID != active.ID {
		t.Errorf("FindActive: %+v", got)
	}

	end := entity.NewDate(2024, time.December, 31)
	active.EndDate = &end
	active.Status = constants.TenancyMovingOut
	if err := repo.Update(ctx, active); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := repo.Get(ctx, active.ID)
	if got.EndDate == nil || got.EndDate.String() != "2024-12-31" || got.Status != constants.TenancyMovingOut {
		t.Errorf("unexpected updated tenancy %+v", got)
	}

	list, err := repo.List(ctx, entity.TenancyFilter{OwnerID: &owner.ID, Search: "lease 2025"})
	if err != nil || len(list) != 1 || list[0].ID != second.ID {
		t.Errorf("List search: %v %v", err, list)
	}
	list, _ = repo.List(ctx, entity.TenancyFilter{HouseholdID: &h.ID, Status: constants.TenancyMovingOut})
	if len(list) != 1 {
		t.Errorf("List status filter: %d", len(list))
	}
}

func testRenters(t *testing.T, store repository.Store) {
	ctx := context.Background()
	_, h := SeedOwner(t, store)
	repos := store.Repos()
	ten := newTenancy(h, "Lease", constants.TenancyFuture)
	if err := repos.Tenancies.Create(ctx, ten); err != nil {
		t.Fatal(err)
	}

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		u := &entity.User{Email: uuid.NewString() + "@example.com"}
		if err := repos.Users.Create(ctx, u); err != nil {
			t.Fatal(err)
		}
		r := &entity.Renter{TenancyID: ten.ID, UserID: u.ID, IsPrimary: i == 0}
		if err := repos.Renters.Create(ctx, r); err != nil {
			t.Fatalf("create renter %d: %v", i, err)
		}
		ids = append(ids, r.ID)
		if i == 0 {
			if err := repos.Renters.Create(ctx, &entity.Renter{TenancyID: ten.ID, UserID: u.ID}); !common.IsCode(err, common.CodeConflict) {
				t.Errorf("duplicate (tenancy, user) must conflict, got %v", err)
			}
		}
	}

	n, err := repos.Renters.DemoteOthers(ctx, ten.ID, ids[2])
	if err != nil || n != 1 {
		t.Fatalf("DemoteOthers: %d %v", n, err)
	}
	if err := repos.Renters.SetPrimary(ctx, ids[2], true); err != nil {
		t.Fatalf("SetPrimary: %v", err)
	}
	list, err := repos.Renters.ListByTenancy(ctx, ten.ID)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListByTenancy: %v %d", err, len(list))
	}
	primaries := 0
	for _, r := range list {
		if r.IsPrimary {
			primaries++
		}
		if r.User == nil {
			t.Error("renters are listed with their user")
		}
	}
	if primaries != 1 || list[0].ID != ids[2] {
		t.Errorf("Expected exactly one primary listed first, got %d", primaries)
	}
}

func testInvitations(t *testing.T, store repository.Store) {
	ctx := context.Background()
	owner, h := SeedOwner(t, store)
	repo := store.Repos().Invitations
	now := time.Now()

	inv := &entity.Invitation{Email: "New@Example.com", HouseholdID: h.ID, InvitedBy: owner.ID, ExpiresAt: now.Add(7 * 24 * time.Hour)}
	if err := repo.Create(ctx, inv); err != nil {
		t.Fatalf("Create: %v", err)
	}
	expired := &entity.Invitation{Email: "old@example.com", HouseholdID: h.ID, InvitedBy: owner.ID, ExpiresAt: now.Add(-time.Hour)}
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatal(err)
	}

	byToken, err := repo.GetByToken(ctx, inv.Token)
	if err != nil || byToken.Email != "new@example.com" {
		t.Fatalf("GetByToken: %v %+v", err, byToken)
	}
	if err := repo.MarkSendFailed(ctx, inv.ID, "smtp down"); err != nil {
		t.Fatal(err)
	}
	unsent, err := repo.ListUnsent(ctx, now, 5, 10)
	if err != nil || len(unsent) != 1 || unsent[0].ID != inv.ID {
		t.Fatalf("ListUnsent: %v %v", err, unsent)
	}
	if unsent[0].SendAttempts != 1 || unsent[0].SendError == nil {
		t.Errorf("send failure must be recorded: %+v", unsent[0])
	}
	if got, _ := repo.ListUnsent(ctx, now, 1, 10); len(got) != 0 {
		t.Error("attempt cap must exclude the invitation")
	}
	if err := repo.MarkSent(ctx, inv.ID, now); err != nil {
		t.Fatal(err)
	}
	if got, _ := repo.ListUnsent(ctx, now, 5, 10); len(got) != 0 {
		t.Error("sent invitations are not listed")
	}
	sent, _ := repo.Get(ctx, inv.ID)
	if sent.SentAt == nil || sent.SendError != nil || sent.SendAttempts != 2 {
		t.Errorf("unexpected sent invitation %+v", sent)
	}
}

var errBoom = errors.New("boom")

func testRollback(t *testing.T, store repository.Store) {
	ctx := context.Background()
	_, h := SeedOwner(t, store)

	var createdID uuid.UUID
	err := store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ten := newTenancy(h, "Doomed", constants.TenancyFuture)
		if err := repos.Tenancies.Create(ctx, ten); err != nil {
			return err
		}
		createdID = ten.ID
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Expected errBoom, got %v", err)
	}
	if _, err := store.Repos().Tenancies.Get(ctx, createdID); !common.IsCode(err, common.CodeNotFound) {
		t.Errorf("rolled back tenancy must not exist, got %v", err)
	}
}
