package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

const userColumns = `id::text, name, email, password_hash, role, weight, created_at, updated_at`

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Weight, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = model.ParseRole(role)
	return &u, nil
}

// Create inserts a user, assigning its ID. A duplicate email yields ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.ID = uuid.NewString()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, weight)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		u.ID, u.Name, strings.ToLower(u.Email), u.PasswordHash, string(u.Role), u.Weight,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return e.WrapError(ctx, "repository.User.Create", err)
}

// FindByID returns a single user.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, e.WrapError(ctx, "repository.User.FindByID", err)
	}
	return u, nil
}

// FindByEmail returns the user registered with email (case-insensitive).
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
	if err != nil {
		return nil, e.WrapError(ctx, "repository.User.FindByEmail", err)
	}
	return u, nil
}

// UpdateRole sets a user's role and the weight derived from it.
func (r *UserRepo) UpdateRole(ctx context.Context, id string, role model.Role, weight int) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET role = $2, weight = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, string(role), weight))
	if err != nil {
		return nil, e.WrapError(ctx, "repository.User.UpdateRole", err)
	}
	return u, nil
}

// Activity counts the reports a user submitted and the validations they gave.
func (r *UserRepo) Activity(ctx context.Context, id string) (reports, validations int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM defect_reports WHERE reported_by = $1),
			(SELECT COUNT(*) FROM validations WHERE user_id = $1)`, id,
	).Scan(&reports, &validations)
	if err != nil {
		return 0, 0, e.WrapError(ctx, "repository.User.Activity", err)
	}
	return reports, validations, nil
}
