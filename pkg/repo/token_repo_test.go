package repo_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

func createUser(t *testing.T, repos *repo.Repos, email string, role models.Role) *models.User {
	t.Helper()
	u, err := repos.Users.Create(context.Background(), uuid.NewString(), email, "$2a$10$fakehash", role)
	require.NoError(t, err)
	return u
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	repos := newRepos(t)

	createUser(t, repos, "admin@example.org", models.RoleAdmin)
	_, err := repos.Users.Create(context.Background(), uuid.NewString(),
		"admin@example.org", "$2a$10$otherhash", models.RoleReader)
	assert.ErrorIs(t, err, repo.ErrEmailExists)
}

func TestResolveHashStampsLastUsed(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	u := createUser(t, repos, "reader@example.org", models.RoleReader)

	inserted, err := repos.Tokens.Insert(ctx, uuid.NewString(), u.UserID, "hash-abc")
	require.NoError(t, err)
	assert.Nil(t, inserted.LastUsedAt)

	token, user, err := repos.Tokens.ResolveHash(ctx, "hash-abc")
	require.NoError(t, err)
	assert.Equal(t, inserted.TokenID, token.TokenID)
	assert.NotNil(t, token.LastUsedAt)
	assert.Equal(t, u.UserID, user.UserID)
	assert.Equal(t, models.RoleReader, user.Role)
}

func TestResolveHashUnknown(t *testing.T) {
	repos := newRepos(t)

	_, _, err := repos.Tokens.ResolveHash(context.Background(), "no-such-hash")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRevokedTokenNoLongerResolves(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	u := createUser(t, repos, "admin@example.org", models.RoleAdmin)

	inserted, err := repos.Tokens.Insert(ctx, uuid.NewString(), u.UserID, "hash-xyz")
	require.NoError(t, err)

	require.NoError(t, repos.Tokens.Revoke(ctx, inserted.TokenID))
	_, _, err = repos.Tokens.ResolveHash(ctx, "hash-xyz")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	// Double revoke reports the token gone.
	assert.ErrorIs(t, repos.Tokens.Revoke(ctx, inserted.TokenID), repo.ErrNotFound)
}

func TestAuthEventAppendAndList(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	u := createUser(t, repos, "admin@example.org", models.RoleAdmin)

	require.NoError(t, repos.AuthEvents.Append(ctx, &u.UserID, models.AuthEventTokenIssued,
		json.RawMessage(`{"token_id":"t1"}`)))
	// Anonymous failures carry no user.
	require.NoError(t, repos.AuthEvents.Append(ctx, nil, models.AuthEventLoginFailed, nil))

	events, err := repos.AuthEvents.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, models.AuthEventLoginFailed, events[0].EventType)
	assert.Nil(t, events[0].UserID)
	assert.Equal(t, json.RawMessage(`{}`), events[0].Payload)
	require.NotNil(t, events[1].UserID)
	assert.Equal(t, u.UserID, *events[1].UserID)
}
