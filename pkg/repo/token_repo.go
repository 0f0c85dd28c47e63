package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opentriagem/triagem/pkg/models"
)

// TokenRepo stores bearer token hashes. The plaintext token never touches
// the database.
type TokenRepo struct {
	db *sql.DB
}

func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// Insert records a freshly issued token hash.
func (r *TokenRepo) Insert(ctx context.Context, tokenID, userID, tokenHash string) (*models.AuthToken, error) {
	const q = `INSERT INTO auth_tokens (token_id, user_id, token_hash)
		VALUES ($1, $2, $3)
		RETURNING token_id, user_id, token_hash, created_at, last_used_at, revoked_at`
	var t models.AuthToken
	err := r.db.QueryRowContext(ctx, q, tokenID, userID, tokenHash).Scan(
		&t.TokenID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.LastUsedAt, &t.RevokedAt)
	if err != nil {
		return nil, fmt.Errorf("insert token for user %s: %w", userID, err)
	}
	return &t, nil
}

// ResolveHash returns the non-revoked token matching the hash together with
// its owning user, and stamps last_used_at.
func (r *TokenRepo) ResolveHash(ctx context.Context, tokenHash string) (*models.AuthToken, *models.User, error) {
	const q = `UPDATE auth_tokens t SET last_used_at = now()
		FROM users u
		WHERE t.token_hash = $1 AND t.revoked_at IS NULL AND u.user_id = t.user_id
		RETURNING t.token_id, t.user_id, t.token_hash, t.created_at, t.last_used_at, t.revoked_at,
			u.user_id, u.email, u.password_hash, u.role, u.account_status, u.created_at, u.updated_at`
	var t models.AuthToken
	var u models.User
	err := r.db.QueryRowContext(ctx, q, tokenHash).Scan(
		&t.TokenID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.LastUsedAt, &t.RevokedAt,
		&u.UserID, &u.Email, &u.PasswordHash, &u.Role, &u.AccountStatus, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("resolve token hash: %w", err)
	}
	return &t, &u, nil
}

// Revoke marks a token unusable.
func (r *TokenRepo) Revoke(ctx context.Context, tokenID string) error {
	const q = `UPDATE auth_tokens SET revoked_at = now()
		WHERE token_id = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, tokenID)
	if err != nil {
		return fmt.Errorf("revoke token %s: %w", tokenID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AuthEventRepo is the append-only authentication audit log.
type AuthEventRepo struct {
	db *sql.DB
}

func NewAuthEventRepo(db *sql.DB) *AuthEventRepo {
	return &AuthEventRepo{db: db}
}

// Append records one auth event. Payloads must already be sanitized: no
// secrets, no token material.
func (r *AuthEventRepo) Append(ctx context.Context, userID *string, eventType string, payload json.RawMessage) error {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	const q = `INSERT INTO auth_events (user_id, event_type, payload) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, q, userID, eventType, []byte(payload)); err != nil {
		return fmt.Errorf("append auth event %s: %w", eventType, err)
	}
	return nil
}

// ListRecent returns the newest auth events, capped at limit.
func (r *AuthEventRepo) ListRecent(ctx context.Context, limit int) ([]*models.AuthEvent, error) {
	const q = `SELECT id, user_id, event_type, payload, created_at
		FROM auth_events ORDER BY id DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list auth events: %w", err)
	}
	defer rows.Close()

	var out []*models.AuthEvent
	for rows.Next() {
		var ev models.AuthEvent
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		out = append(out, &ev)
	}
	return out, rows.Err()
}
