package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// Token plaintext prefix, handy for secret scanners.
const tokenPrefix = "tgm_"

// GenerateToken mints one opaque bearer token and its storage hash. The
// plaintext is returned exactly once; only the hash is ever persisted.
func GenerateToken() (plaintext, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	plaintext = tokenPrefix + hex.EncodeToString(buf)
	return plaintext, HashToken(plaintext), nil
}

// HashToken derives the storage/lookup hash of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IssueToken mints a token for an existing active user and records the
// issuance in the auth log. Returns the plaintext for one-time display.
func IssueToken(ctx context.Context, repos *repo.Repos, email string) (string, error) {
	user, err := repos.Users.GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("issue token for %s: %w", email, err)
	}
	if user.AccountStatus != models.AccountActive {
		return "", fmt.Errorf("issue token for %s: account is %s", email, user.AccountStatus)
	}

	plaintext, hash, err := GenerateToken()
	if err != nil {
		return "", err
	}
	token, err := repos.Tokens.Insert(ctx, uuid.NewString(), user.UserID, hash)
	if err != nil {
		return "", err
	}

	payload, _ := json.Marshal(map[string]string{"token_id": token.TokenID, "email": user.Email})
	if err := repos.AuthEvents.Append(ctx, &user.UserID, models.AuthEventTokenIssued, payload); err != nil {
		return "", err
	}
	return plaintext, nil
}
