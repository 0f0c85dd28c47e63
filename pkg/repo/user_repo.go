package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opentriagem/triagem/pkg/models"
)

// ErrEmailExists is returned when a user with the same email already exists.
var ErrEmailExists = errors.New("email already registered")

const userColumns = `user_id, email, password_hash, role, account_status, created_at, updated_at`

// UserRepo persists the role-based identity store.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.Role, &u.AccountStatus,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user.
func (r *UserRepo) Create(ctx context.Context, userID, email, passwordHash string, role models.Role) (*models.User, error) {
	q := `INSERT INTO users (user_id, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRowContext(ctx, q, userID, email, passwordHash, role))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user %s: %w", email, err)
	}
	return u, nil
}

// GetByEmail loads one user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", email, err)
	}
	return u, nil
}

// GetByID loads one user by id.
func (r *UserRepo) GetByID(ctx context.Context, userID string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return u, nil
}

// Count returns the number of user rows. The bootstrap admin is only created
// against an empty table.
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
