package models

import (
	"encoding/json"
	"time"
)

// Role gates API access: admins may submit decisions, readers may only
// observe.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleReader Role = "reader"
)

// AccountStatus controls whether a user's tokens are honored.
type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
	AccountRemoved AccountStatus = "removed"
)

// User is one identity in the role-based store.
type User struct {
	UserID        string        `json:"user_id"`
	Email         string        `json:"email"`
	PasswordHash  string        `json:"-"`
	Role          Role          `json:"role"`
	AccountStatus AccountStatus `json:"account_status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// AuthToken stores only the SHA-256 hash of an issued bearer token; the
// plaintext is shown once at issuance and never persisted.
type AuthToken struct {
	TokenID    string     `json:"token_id"`
	UserID     string     `json:"user_id"`
	TokenHash  string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Auth event types recorded in the append-only auth log.
const (
	AuthEventLoginFailed           = "login_failed"
	AuthEventAuthorizationFailed   = "authorization_failed"
	AuthEventTokenIssued           = "token_issued"
	AuthEventBootstrapAdminCreated = "bootstrap_admin_created"
)

// AuthEvent is one append-only authentication/authorization audit row. The
// payload is sanitized: no secrets, no token material.
type AuthEvent struct {
	ID        int64           `json:"id"`
	UserID    *string         `json:"user_id,omitempty"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
