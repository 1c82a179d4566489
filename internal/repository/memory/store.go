// Package memory is an in-process repository.Store. Transactions serialize on a
// single mutex and roll back by restoring a snapshot, which gives the same
// isolation the Postgres row locks give the reconciliation code.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
)

type state struct {
	households  map[uuid.UUID]entity.Household
	users       map[uuid.UUID]entity.User
	agreements  map[uuid.UUID]entity.TenancyAgreement
	tenancies   map[uuid.UUID]entity.Tenancy
	renters     map[uuid.UUID]entity.Renter
	invitations map[uuid.UUID]entity.Invitation
}

func newState() *state {
	return &state{
		households:  map[uuid.UUID]entity.Household{},
		users:       map[uuid.UUID]entity.User{},
		agreements:  map[uuid.UUID]entity.TenancyAgreement{},
		tenancies:   map[uuid.UUID]entity.Tenancy{},
		renters:     map[uuid.UUID]entity.Renter{},
		invitations: map[uuid.UUID]entity.Invitation{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.households {
		c.households[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.agreements {
		c.agreements[k] = v
	}
	for k, v := range s.tenancies {
		c.tenancies[k] = v
	}
	for k, v := range s.renters {
		c.renters[k] = v
	}
	for k, v := range s.invitations {
		c.invitations[k] = v
	}
	return c
}

// Store implements repository.Store in memory.
type Store struct {
	mu     sync.Mutex
	data   *state
	logger *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{data: newState(), logger: logger}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Repos() repository.Repositories {
	return s.repos(false)
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	err := fn(ctx, s.repos(true))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) repos(inTx bool) repository.Repositories {
	b := base{store: s, inTx: inTx}
	return repository.Repositories{
		Households:  &households{b},
		Users:       &users{b},
		Agreements:  &agreements{b},
		Tenancies:   &tenancies{b},
		Renters:     &renters{b},
		Invitations: &invitations{b},
	}
}

// base guards access to the shared state. Repositories handed out by InTx run
// under the transaction's lock already.
type base struct {
	store *Store
	inTx  bool
}

func (b base) lock() (*state, func()) {
	if b.inTx {
		return b.store.data, func() {}
	}
	b.store.mu.Lock()
	return b.store.data, b.store.mu.Unlock
}
