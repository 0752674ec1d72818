package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jaydaVis04/jLedger/internal/domain/models"
	"github.com/jaydaVis04/jLedger/internal/storage"
)

type Storage struct {
	db *sql.DB
}

// New returns a new instance of the Storage.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveUser inserts a new user with the USER role and returns it.
func (s *Storage) SaveUser(ctx context.Context, email string, passHash []byte) (*models.User, error) {
	const op = "storage.sqlite.SaveUser"

	user := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		PassHash:  passHash,
		Role:      models.RoleUser,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, pass_hash, role, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Email, user.PassHash, string(user.Role), user.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// User retrieves a user by email.
func (s *Storage) User(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.User"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, pass_hash, role, created_at FROM users WHERE email = ?", email)
	return scanUser(row, op)
}

// UserByID retrieves a user by ID.
func (s *Storage) UserByID(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.sqlite.UserByID"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, pass_hash, role, created_at FROM users WHERE id = ?", userID)
	return scanUser(row, op)
}

func scanUser(row *sql.Row, op string) (*models.User, error) {
	var user models.User
	var role string
	err := row.Scan(&user.ID, &user.Email, &user.PassHash, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.Role = models.Role(role)
	return &user, nil
}

// SaveRefreshToken stores a new refresh token hash and returns the record ID.
func (s *Storage) SaveRefreshToken(ctx context.Context, tokenHash, userID string, expiresAt time.Time) (string, error) {
	const op = "storage.sqlite.SaveRefreshToken"

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		id, tokenHash, userID, time.Now().UTC(), expiresAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// ActiveRefreshToken retrieves a refresh token by hash only if it is
// neither revoked nor expired.
func (s *Storage) ActiveRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.sqlite.ActiveRefreshToken"
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, created_at, expires_at, revoked_at, replaced_by_hash
		FROM refresh_tokens
		WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
		tokenHash, time.Now().UTC())
	return scanToken(row, op)
}

// RefreshToken retrieves a refresh token by hash regardless of state.
// Used for replay detection on revoked records.
func (s *Storage) RefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.sqlite.RefreshToken"
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, created_at, expires_at, revoked_at, replaced_by_hash
		FROM refresh_tokens
		WHERE token_hash = ?`,
		tokenHash)
	return scanToken(row, op)
}

func scanToken(row *sql.Row, op string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := row.Scan(
		&token.ID, &token.TokenHash, &token.UserID,
		&token.CreatedAt, &token.ExpiresAt, &token.RevokedAt, &token.ReplacedByHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &token, nil
}

// RotateRefreshToken atomically revokes the old token and inserts its
// successor. The revoke is conditional on the old record still being
// active, so of two racing rotations exactly one sees the row and wins;
// the loser gets ErrTokenNotFound.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldHash, newHash, userID string, newExpiresAt time.Time) (string, error) {
	const op = "storage.sqlite.RotateRefreshToken"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?, replaced_by_hash = ?
		WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
		now, newHash, oldHash, now)
	if err != nil {
		return "", fmt.Errorf("%s: revoke old: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return "", fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		id, newHash, userID, now, newExpiresAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("%s: insert new: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// RevokeRefreshToken marks the token revoked if it is still active.
// Revoking an absent or already-revoked token is not an error.
func (s *Storage) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	const op = "storage.sqlite.RevokeRefreshToken"

	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?
		WHERE token_hash = ? AND revoked_at IS NULL`,
		time.Now().UTC(), tokenHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RevokeAllRefreshTokens revokes every active token owned by userID.
func (s *Storage) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	const op = "storage.sqlite.RevokeAllRefreshTokens"

	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?
		WHERE user_id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
