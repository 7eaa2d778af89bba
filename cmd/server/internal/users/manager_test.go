package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdeck/promptdeck/cmd/server/internal/store"
	"github.com/promptdeck/promptdeck/pkg/logger"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	logger.Init(logger.Config{Level: "error", Environment: "test"})

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewManager(db, "test-secret-at-least-32-characters!!", time.Hour)
}

func TestCreateAndAuthenticate(t *testing.T) {
	m := newManager(t)

	u, err := m.Create(context.Background(), "alice", "s3cret-pass", false)
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.IsAdmin)

	got, err := m.Authenticate(context.Background(), "alice", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = m.Authenticate(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Authenticate(context.Background(), "nobody", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreate_DuplicateUsername(t *testing.T) {
	m := newManager(t)

	_, err := m.Create(context.Background(), "alice", "pass-one", false)
	require.NoError(t, err)

	_, err = m.Create(context.Background(), "alice", "pass-two", false)
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestEnsureDefaultAdmin_Idempotent(t *testing.T) {
	m := newManager(t)

	require.NoError(t, m.EnsureDefaultAdmin(context.Background(), "admin-pass-123"))
	require.NoError(t, m.EnsureDefaultAdmin(context.Background(), "different-pass"))

	// The second call must not rotate the password.
	u, err := m.Authenticate(context.Background(), "admin", "admin-pass-123")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
}

func TestTokenRoundTrip(t *testing.T) {
	m := newManager(t)

	u, err := m.Create(context.Background(), "alice", "s3cret-pass", true)
	require.NoError(t, err)

	token, err := m.GenerateToken(u)
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsAdmin)
}

func TestParseToken_Invalid(t *testing.T) {
	m := newManager(t)

	_, err := m.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// A token signed with a different secret is rejected.
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	other := NewManager(db, "another-secret-also-32-chars-long!!!", time.Hour)
	u, err := other.Create(context.Background(), "mallory", "pass-word-1", false)
	require.NoError(t, err)
	token, err := other.GenerateToken(u)
	require.NoError(t, err)

	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	m := NewManager(db, "test-secret-at-least-32-characters!!", -time.Minute)

	u, err := m.Create(context.Background(), "alice", "s3cret-pass", false)
	require.NoError(t, err)
	token, err := m.GenerateToken(u)
	require.NoError(t, err)

	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
