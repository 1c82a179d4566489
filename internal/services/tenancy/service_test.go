package tenancy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
	"github.com/YorickdeJong/energy-contracts/internal/repository/memory"
	"github.com/YorickdeJong/energy-contracts/internal/repository/repotest"
)

type fixture struct {
	svc       *Service
	store     repository.Store
	household *entity.Household
	actor     common.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore(nil)
	owner, h := repotest.SeedOwner(t, store)
	svc := NewService(store, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC) }
	return &fixture{
		svc:       svc,
		store:     store,
		household: h,
		actor:     common.Actor{UserID: owner.ID, Role: string(constants.RoleLandlord)},
	}
}

func (f *fixture) tenancy(t *testing.T, name string, status constants.TenancyStatus, start entity.Date) *entity.Tenancy {
	t.Helper()
	ten := &entity.Tenancy{HouseholdID: f.household.ID, Name: name, Status: status, StartDate: start, MonthlyRent: 1200}
	if err := f.store.Repos().Tenancies.Create(context.Background(), ten); err != nil {
		t.Fatalf("create tenancy: %v", err)
	}
	return ten
}

func TestActivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	next := f.tenancy(t, "Lease 2025", constants.TenancyFuture, entity.NewDate(2025, 1, 1))

	got, err := f.svc.Activate(ctx, f.actor, next.ID)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got.Status != constants.TenancyActive {
		t.Errorf("Expected active, got %s", got.Status)
	}

	// activating again is a no-op
	if _, err := f.svc.Activate(ctx, f.actor, next.ID); err != nil {
		t.Errorf("Expected idempotent activate, got %v", err)
	}
}

func TestActivateRejectsSecondActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tenancy(t, "Lease 2024", constants.TenancyActive, entity.NewDate(2024, 1, 1))
	next := f.tenancy(t, "Lease 2025", constants.TenancyFuture, entity.NewDate(2025, 1, 1))

	_, err := f.svc.Activate(ctx, f.actor, next.ID)
	if !common.IsCode(err, common.CodeConflict) {
		t.Fatalf("Expected RECONCILIATION_CONFLICT, got %v", err)
	}
	stored, _ := f.store.Repos().Tenancies.Get(ctx, next.ID)
	if stored.Status != constants.TenancyFuture {
		t.Errorf("Expected tenancy to stay future, got %s", stored.Status)
	}
}

func TestMoveOutLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ten := f.tenancy(t, "Lease 2024", constants.TenancyActive, entity.NewDate(2024, 1, 1))

	_, err := f.svc.StartMoveOut(ctx, f.actor, ten.ID, entity.NewDate(2024, 1, 1))
	if !common.IsCode(err, common.CodeValidation) {
		t.Fatalf("Expected VALIDATION_FAILED for end == start, got %v", err)
	}

	got, err := f.svc.StartMoveOut(ctx, f.actor, ten.ID, entity.NewDate(2024, 12, 31))
	if err != nil {
		t.Fatalf("StartMoveOut: %v", err)
	}
	if got.Status != constants.TenancyMovingOut || got.EndDate == nil || got.EndDate.String() != "2024-12-31" {
		t.Errorf("unexpected tenancy %+v", got)
	}

	got, err = f.svc.MarkMovedOut(ctx, f.actor, ten.ID)
	if err != nil {
		t.Fatalf("MarkMovedOut: %v", err)
	}
	if got.Status != constants.TenancyMovedOut || got.EndDate.String() != "2024-12-31" {
		t.Errorf("unexpected tenancy %+v", got)
	}

	if _, err := f.svc.MarkMovedOut(ctx, f.actor, ten.ID); !common.IsCode(err, common.CodePrecondition) {
		t.Errorf("Expected PRECONDITION_FAILED, got %v", err)
	}
	if _, err := f.svc.StartMoveOut(ctx, f.actor, ten.ID, entity.NewDate(2025, 1, 1)); !common.IsCode(err, common.CodePrecondition) {
		t.Errorf("Expected PRECONDITION_FAILED, got %v", err)
	}
}

func TestMarkMovedOutDefaultsEndDate(t *testing.T) {
	f := newFixture(t)
	ten := f.tenancy(t, "Lease 2024", constants.TenancyActive, entity.NewDate(2024, 1, 1))
	got, err := f.svc.MarkMovedOut(context.Background(), f.actor, ten.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EndDate == nil || got.EndDate.String() != "2024-06-01" {
		t.Errorf("Expected end date today, got %v", got.EndDate)
	}
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tenancy(t, "Lease 2024", constants.TenancyActive, entity.NewDate(2024, 1, 1))
	f.tenancy(t, "Garden flat 2025", constants.TenancyFuture, entity.NewDate(2025, 1, 1))

	other := memoryOwner(t, f.store)
	otherHousehold := &entity.Household{Name: "Elsewhere", Address: "Somewhere 1", OwnerID: other.ID}
	if err := f.store.Repos().Households.Create(ctx, otherHousehold); err != nil {
		t.Fatal(err)
	}
	foreign := &entity.Tenancy{HouseholdID: otherHousehold.ID, Name: "Foreign", Status: constants.TenancyFuture, StartDate: entity.NewDate(2024, 3, 1)}
	if err := f.store.Repos().Tenancies.Create(ctx, foreign); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  ListRequest
		want int
	}{
		{"all own", ListRequest{}, 2},
		{"by status", ListRequest{Status: "future"}, 1},
		{"search", ListRequest{Search: "garden"}, 1},
		{"by household", ListRequest{HouseholdID: &otherHousehold.ID}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.List(ctx, f.actor, tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("Expected %d tenancies, got %d", tt.want, len(got))
			}
		})
	}

	if _, err := f.svc.List(ctx, f.actor, ListRequest{Status: "evicted"}); !common.IsCode(err, common.CodeInvalidInput) {
		t.Errorf("Expected INVALID_INPUT, got %v", err)
	}
	if _, err := f.svc.Get(ctx, f.actor, foreign.ID); !common.IsCode(err, common.CodeForbidden) {
		t.Errorf("Expected FORBIDDEN, got %v", err)
	}
	if _, err := f.svc.Get(ctx, f.actor, uuid.New()); !common.IsCode(err, common.CodeNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
	admin := common.Actor{UserID: uuid.New(), Role: string(constants.RoleAdmin)}
	if all, _ := f.svc.List(ctx, admin, ListRequest{}); len(all) != 3 {
		t.Errorf("Expected admin to see every tenancy, got %d", len(all))
	}
}

func TestExportScopesToOwner(t *testing.T) {
	f := newFixture(t)
	f.tenancy(t, "Lease 2024", constants.TenancyActive, entity.NewDate(2024, 1, 1))
	b, err := f.svc.Export(context.Background(), f.actor, ListRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(b) == 0 {
		t.Error("Expected workbook bytes")
	}
	if _, err := f.svc.Export(context.Background(), f.actor, ListRequest{Status: "bogus"}); !common.IsCode(err, common.CodeInvalidInput) {
		t.Errorf("Expected INVALID_INPUT, got %v", err)
	}
}

func memoryOwner(t *testing.T, store repository.Store) *entity.User {
	t.Helper()
	u := &entity.User{Email: "other@landlord.test", Role: string(constants.RoleLandlord), IsActive: true}
	if err := store.Repos().Users.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

// lockRecorder wraps a Store and records the order in which rows are locked.
type lockRecorder struct {
	repository.Store
	locks []string
}

type recordingHouseholds struct {
	repository.HouseholdRepository
	rec *lockRecorder
}

func (r recordingHouseholds) Lock(ctx context.Context, id uuid.UUID) (*entity.Household, error) {
	r.rec.locks = append(r.rec.locks, "household")
	return r.HouseholdRepository.Lock(ctx, id)
}

type recordingTenancies struct {
	repository.TenancyRepository
	rec *lockRecorder
}

func (r recordingTenancies) Lock(ctx context.Context, id uuid.UUID) (*entity.Tenancy, error) {
	r.rec.locks = append(r.rec.locks, "tenancy")
	return r.TenancyRepository.Lock(ctx, id)
}

func (l *lockRecorder) InTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return l.Store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		repos.Households = recordingHouseholds{HouseholdRepository: repos.Households, rec: l}
		repos.Tenancies = recordingTenancies{TenancyRepository: repos.Tenancies, rec: l}
		return fn(ctx, repos)
	})
}

func TestWritesLockHouseholdBeforeTenancy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := &lockRecorder{Store: f.store}
	f.svc.store = rec
	ten := f.tenancy(t, "Lease 2025", constants.TenancyFuture, entity.NewDate(2024, 1, 1))

	ops := []struct {
		name string
		run  func() error
	}{
		{"activate", func() error { _, err := f.svc.Activate(ctx, f.actor, ten.ID); return err }},
		{"start move-out", func() error {
			_, err := f.svc.StartMoveOut(ctx, f.actor, ten.ID, entity.NewDate(2024, 12, 31))
			return err
		}},
		{"moved out", func() error { _, err := f.svc.MarkMovedOut(ctx, f.actor, ten.ID); return err }},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			rec.locks = nil
			if err := op.run(); err != nil {
				t.Fatalf("%s: %v", op.name, err)
			}
			if len(rec.locks) != 2 || rec.locks[0] != "household" || rec.locks[1] != "tenancy" {
				t.Errorf("Expected household then tenancy lock, got %v", rec.locks)
			}
		})
	}
}
