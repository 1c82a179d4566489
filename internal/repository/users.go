package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
)

var userColumns = []string{"id", "email", "first_name", "last_name", "phone_number", "role", "is_active", "created_at"}

type userRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewUserRepository(db Querier, logger *slog.Logger) UserRepository {
	return &userRepository{db: db, logger: logger}
}

// NormalizeEmail is the canonical form stored and matched on.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *userRepository) Create(ctx context.Context, u *entity.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = NormalizeEmail(u.Email)
	u.CreatedAt = time.Now().UTC()

	query, args := pg().Insert("users").
		Columns(userColumns...).
		Values(u.ID, u.Email, u.FirstName, u.LastName, u.PhoneNumber, u.Role, u.IsActive, u.CreatedAt).
		Query()
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return common.Conflict("a user with email %s already exists", u.Email)
		}
		r.logger.Error("failed to create user", "error", err)
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	query, args := pg().Select(userColumns...).
		From(entsql.Table("users")).
		Where(entsql.EQ("id", id)).
		Query()
	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	query, args := pg().Select(userColumns...).
		From(entsql.Table("users")).
		Where(entsql.EQ("email", NormalizeEmail(email))).
		Query()
	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func scanUser(row rowScanner) (*entity.User, error) {
	var u entity.User
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.Role, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
