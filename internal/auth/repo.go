package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinel-ops/sentinel/internal/platform/db"
	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/shared"
)

var (
	// ErrDuplicateUser is returned when the username or email is already taken.
	ErrDuplicateUser   = fmt.Errorf("username or email already registered: %w", shared.ErrConflict)
	// ErrAccountInactive is returned for a valid token whose account was deactivated.
	ErrAccountInactive = fmt.Errorf("account is deactivated: %w", shared.ErrForbidden)
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, user User) (*User, error)
	List(ctx context.Context) ([]User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// BaseChecker reports whether a base exists.
type BaseChecker interface {
	BaseExists(ctx context.Context, id string) (bool, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, username, email, name, role, COALESCE(base_id, ''), password_hash, is_active, is_seed, created_at, updated_at`

// FindByIdentifier fetches a user by username or email, case-insensitively.
func (r *PGRepository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users
WHERE lower(username) = lower($1) OR lower(email) = lower($1)
LIMIT 1`, strings.TrimSpace(identifier))
	return scanUser(row)
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// Create inserts a user and returns the stored row.
func (r *PGRepository) Create(ctx context.Context, user User) (*User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users (username, email, name, role, base_id, password_hash, is_active, is_seed)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
RETURNING `+userColumns,
		user.Username, user.Email, user.Name, string(user.Role), user.BaseID, user.PasswordHash, user.IsActive, user.IsSeed)
	created, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}
	return created, nil
}

// List returns every account ordered by id.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// SetActive toggles an account. Seed accounts are never modified.
func (r *PGRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1 AND NOT is_seed`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// BaseExists reports whether the base id is known.
func (r *PGRepository) BaseExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bases WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &role, &u.BaseID, &u.PasswordHash,
		&u.IsActive, &u.IsSeed, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	u.Role = rbac.Role(role)
	return &u, nil
}

var (
	_ Repository  = (*PGRepository)(nil)
	_ BaseChecker = (*PGRepository)(nil)
)
