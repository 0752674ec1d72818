package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydaVis04/jLedger/internal/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	m, err := migrate.New("file://../../../migrations", "sqlite3://"+dbPath)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	srcErr, dbErr := m.Close()
	require.NoError(t, srcErr)
	require.NoError(t, dbErr)

	s, err := New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestSaveUser(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	email := gofakeit.Email()
	user, err := s.SaveUser(ctx, email, []byte("hash"))
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, email, user.Email)
	assert.Equal(t, "USER", string(user.Role))

	_, err = s.SaveUser(ctx, email, []byte("other-hash"))
	assert.ErrorIs(t, err, storage.ErrUserAlreadyExists)
}

func TestUserLookup(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	email := gofakeit.Email()
	saved, err := s.SaveUser(ctx, email, []byte("hash"))
	require.NoError(t, err)

	byEmail, err := s.User(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, byEmail.ID)
	assert.Equal(t, []byte("hash"), byEmail.PassHash)

	byID, err := s.UserByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, email, byID.Email)

	_, err = s.User(ctx, gofakeit.Email())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	_, err = s.UserByID(ctx, "no-such-id")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func saveUserAndToken(t *testing.T, s *Storage, hash string, expiresAt time.Time) (userID, recordID string) {
	t.Helper()
	ctx := context.Background()

	user, err := s.SaveUser(ctx, gofakeit.Email(), []byte("hash"))
	require.NoError(t, err)

	recordID, err = s.SaveRefreshToken(ctx, hash, user.ID, expiresAt)
	require.NoError(t, err)

	return user.ID, recordID
}

func TestActiveRefreshToken(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	userID, recordID := saveUserAndToken(t, s, "hash-1", time.Now().Add(time.Hour))

	token, err := s.ActiveRefreshToken(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, recordID, token.ID)
	assert.Equal(t, userID, token.UserID)
	assert.Nil(t, token.RevokedAt)

	_, err = s.ActiveRefreshToken(ctx, "no-such-hash")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestActiveRefreshTokenExcludesExpired(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	saveUserAndToken(t, s, "hash-exp", time.Now().Add(-time.Minute))

	_, err := s.ActiveRefreshToken(ctx, "hash-exp")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	// still present for replay detection
	token, err := s.RefreshToken(ctx, "hash-exp")
	require.NoError(t, err)
	assert.False(t, token.Active(time.Now()))
}

func TestRotateRefreshToken(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	userID, _ := saveUserAndToken(t, s, "hash-old", time.Now().Add(time.Hour))

	newID, err := s.RotateRefreshToken(ctx, "hash-old", "hash-new", userID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, newID)

	// both effects landed together
	old, err := s.RefreshToken(ctx, "hash-old")
	require.NoError(t, err)
	require.NotNil(t, old.RevokedAt)
	require.NotNil(t, old.ReplacedByHash)
	assert.Equal(t, "hash-new", *old.ReplacedByHash)

	fresh, err := s.ActiveRefreshToken(ctx, "hash-new")
	require.NoError(t, err)
	assert.Equal(t, userID, fresh.UserID)

	// the old hash is consumed: a second rotation loses the compare-and-revoke
	_, err = s.RotateRefreshToken(ctx, "hash-old", "hash-newer", userID, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	_, err = s.RefreshToken(ctx, "hash-newer")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound, "losing rotation must not insert a successor")
}

func TestRotateRefreshTokenExpired(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	userID, _ := saveUserAndToken(t, s, "hash-exp", time.Now().Add(-time.Minute))

	_, err := s.RotateRefreshToken(ctx, "hash-exp", "hash-new", userID, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestRevokeRefreshToken(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	saveUserAndToken(t, s, "hash-1", time.Now().Add(time.Hour))

	require.NoError(t, s.RevokeRefreshToken(ctx, "hash-1"))

	_, err := s.ActiveRefreshToken(ctx, "hash-1")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	// idempotent
	assert.NoError(t, s.RevokeRefreshToken(ctx, "hash-1"))
	assert.NoError(t, s.RevokeRefreshToken(ctx, "no-such-hash"))
}

func TestRevokeAllRefreshTokens(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	user, err := s.SaveUser(ctx, gofakeit.Email(), []byte("hash"))
	require.NoError(t, err)
	other, err := s.SaveUser(ctx, gofakeit.Email(), []byte("hash"))
	require.NoError(t, err)

	expiresAt := time.Now().Add(time.Hour)
	for _, hash := range []string{"u1-a", "u1-b", "u1-c"} {
		_, err := s.SaveRefreshToken(ctx, hash, user.ID, expiresAt)
		require.NoError(t, err)
	}
	_, err = s.SaveRefreshToken(ctx, "u2-a", other.ID, expiresAt)
	require.NoError(t, err)

	require.NoError(t, s.RevokeAllRefreshTokens(ctx, user.ID))

	for _, hash := range []string{"u1-a", "u1-b", "u1-c"} {
		_, err := s.ActiveRefreshToken(ctx, hash)
		assert.ErrorIs(t, err, storage.ErrTokenNotFound, "hash %s", hash)
	}

	_, err = s.ActiveRefreshToken(ctx, "u2-a")
	assert.NoError(t, err, "other users' tokens must stay active")
}

func TestRevokedTokensAreRetained(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	saveUserAndToken(t, s, "hash-1", time.Now().Add(time.Hour))
	require.NoError(t, s.RevokeRefreshToken(ctx, "hash-1"))

	token, err := s.RefreshToken(ctx, "hash-1")
	require.NoError(t, err, "revoked tokens must be retained, not deleted")
	require.NotNil(t, token.RevokedAt)
}
