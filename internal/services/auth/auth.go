package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaydaVis04/jLedger/internal/domain/models"
	"github.com/jaydaVis04/jLedger/internal/lib/jwt"
	"github.com/jaydaVis04/jLedger/internal/lib/secret"
	"github.com/jaydaVis04/jLedger/internal/lib/sl"
	"github.com/jaydaVis04/jLedger/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrMissingToken       = errors.New("missing refresh token")
	// ErrInvalidToken covers never-existed, expired and already-revoked
	// refresh secrets alike, so a caller cannot probe chain state.
	ErrInvalidToken    = errors.New("invalid or expired refresh token")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Auth orchestrates login, refresh rotation, logout, and identity
// lookup. It holds no mutable state of its own; all durable state
// lives behind the store interfaces.
type Auth struct {
	logger             *slog.Logger
	userSaver          UserSaver
	userProvider       UserProvider
	tokenStore         RefreshTokenStore
	hasher             *secret.Hasher
	jwtSecret          []byte
	accessTokenTTL     time.Duration
	refreshTokenTTL    time.Duration
	revokeChainOnReuse bool
	dummyHash          []byte
}

type UserSaver interface {
	SaveUser(ctx context.Context, email string, passHash []byte) (*models.User, error)
}

type UserProvider interface {
	User(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)
}

type RefreshTokenStore interface {
	SaveRefreshToken(ctx context.Context, tokenHash, userID string, expiresAt time.Time) (string, error)
	ActiveRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldHash, newHash, userID string, newExpiresAt time.Time) (string, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokenStore RefreshTokenStore,
	hasher *secret.Hasher,
	jwtSecret []byte,
	accessTokenTTL time.Duration,
	refreshTokenTTL time.Duration,
	revokeChainOnReuse bool,
) *Auth {
	// hashed once so a login against an unknown email still pays one
	// bcrypt comparison, keeping the two failure paths close in timing
	dummyHash, err := hasher.HashPassword("jledger-dummy-password")
	if err != nil {
		panic("failed to precompute dummy hash: " + err.Error())
	}

	return &Auth{
		logger:             logger,
		userSaver:          userSaver,
		userProvider:       userProvider,
		tokenStore:         tokenStore,
		hasher:             hasher,
		jwtSecret:          jwtSecret,
		accessTokenTTL:     accessTokenTTL,
		refreshTokenTTL:    refreshTokenTTL,
		revokeChainOnReuse: revokeChainOnReuse,
		dummyHash:          dummyHash,
	}
}

// Register creates a new account with the USER role.
func (a *Auth) Register(ctx context.Context, email, password string) (*models.User, error) {
	const op = "auth.Register"
	log := a.logger.With(slog.String("op", op), slog.String("email", email))
	log.Info("register request")

	passHash, err := a.hasher.HashPassword(password)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.userSaver.SaveUser(ctx, email, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			log.Warn("user already exists")
			return nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("userID", user.ID))

	return user, nil
}

// Login verifies credentials and starts a new refresh-token chain.
// Unknown email and wrong password return the same error.
func (a *Auth) Login(ctx context.Context, email, password string) (accessToken, rawRefreshToken string, user *models.User, err error) {
	const op = "auth.Login"
	log := a.logger.With(slog.String("op", op))
	log.Info("login request")

	user, err = a.userProvider.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			a.hasher.VerifyPassword(password, a.dummyHash)
			log.Warn("user not found")
			return "", "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return "", "", nil, fmt.Errorf("%s: %w", op, err)
	}

	if !a.hasher.VerifyPassword(password, user.PassHash) {
		log.Warn("invalid password")
		return "", "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	accessToken, err = jwt.NewToken(user.ID, a.jwtSecret, a.accessTokenTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return "", "", nil, fmt.Errorf("%s: %w", op, err)
	}

	rawRefreshToken, err = a.issueRefreshToken(ctx, user.ID)
	if err != nil {
		log.Error("failed to issue refresh token", sl.Err(err))
		return "", "", nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("userID", user.ID))

	return accessToken, rawRefreshToken, user, nil
}

// Refresh exchanges a valid refresh secret for a new access token and
// a new refresh secret. The presented secret is revoked in the same
// store transaction that creates its successor, so each secret is
// usable for exactly one rotation.
func (a *Auth) Refresh(ctx context.Context, rawRefreshToken string) (accessToken, newRawRefreshToken string, err error) {
	const op = "auth.Refresh"
	log := a.logger.With(slog.String("op", op))
	log.Info("refresh request")

	if rawRefreshToken == "" {
		return "", "", fmt.Errorf("%s: %w", op, ErrMissingToken)
	}

	tokenHash := a.hasher.HashToken(rawRefreshToken)

	token, err := a.tokenStore.ActiveRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			a.handlePossibleReplay(ctx, log, tokenHash)
			log.Warn("refresh token not active")
			return "", "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		log.Error("failed to look up refresh token", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	newRawRefreshToken, err = a.hasher.GenerateToken()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	newHash := a.hasher.HashToken(newRawRefreshToken)
	newExpiresAt := time.Now().Add(a.refreshTokenTTL)

	_, err = a.tokenStore.RotateRefreshToken(ctx, tokenHash, newHash, token.UserID, newExpiresAt)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			// a concurrent rotation won the compare-and-revoke
			log.Warn("lost rotation race", slog.String("userID", token.UserID))
			return "", "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		log.Error("failed to rotate refresh token", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err = jwt.NewToken(token.UserID, a.jwtSecret, a.accessTokenTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens refreshed", slog.String("userID", token.UserID))

	return accessToken, newRawRefreshToken, nil
}

// handlePossibleReplay checks whether the presented hash matches an
// already-revoked record. That means the legitimate client rotated
// forward and someone is now replaying the old secret, so the whole
// chain is revoked when the policy is enabled.
func (a *Auth) handlePossibleReplay(ctx context.Context, log *slog.Logger, tokenHash string) {
	if !a.revokeChainOnReuse {
		return
	}

	token, err := a.tokenStore.RefreshToken(ctx, tokenHash)
	if err != nil || token.RevokedAt == nil {
		return
	}

	log.Warn("refresh token reuse detected, revoking chain",
		slog.String("userID", token.UserID))

	if err := a.tokenStore.RevokeAllRefreshTokens(ctx, token.UserID); err != nil {
		log.Error("failed to revoke token chain", sl.Err(err))
	}
}

// Logout revokes the presented refresh secret. Idempotent: an absent
// or already-revoked secret is not an error.
func (a *Auth) Logout(ctx context.Context, rawRefreshToken string) error {
	const op = "auth.Logout"
	log := a.logger.With(slog.String("op", op))
	log.Info("logout request")

	if rawRefreshToken == "" {
		return nil
	}

	tokenHash := a.hasher.HashToken(rawRefreshToken)

	if err := a.tokenStore.RevokeRefreshToken(ctx, tokenHash); err != nil {
		log.Error("failed to revoke refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Me verifies an access token and returns the account it identifies.
func (a *Auth) Me(ctx context.Context, accessToken string) (*models.User, error) {
	const op = "auth.Me"
	log := a.logger.With(slog.String("op", op))

	userID, err := jwt.ParseToken(accessToken, a.jwtSecret)
	if err != nil {
		log.Warn("access token rejected", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	user, err := a.userProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("token subject no longer exists", slog.String("userID", userID))
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// RevokeAll revokes every active refresh token of a user. Not wired to
// a route; exposed for logout-everywhere and compromise response.
func (a *Auth) RevokeAll(ctx context.Context, userID string) error {
	const op = "auth.RevokeAll"

	if err := a.tokenStore.RevokeAllRefreshTokens(ctx, userID); err != nil {
		a.logger.With(slog.String("op", op)).Error("failed to revoke all tokens", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// issueRefreshToken creates a fresh chain link and returns the raw
// secret, the only time it exists outside hashed form.
func (a *Auth) issueRefreshToken(ctx context.Context, userID string) (string, error) {
	raw, err := a.hasher.GenerateToken()
	if err != nil {
		return "", err
	}

	tokenHash := a.hasher.HashToken(raw)
	expiresAt := time.Now().Add(a.refreshTokenTTL)

	if _, err := a.tokenStore.SaveRefreshToken(ctx, tokenHash, userID, expiresAt); err != nil {
		return "", err
	}

	return raw, nil
}
