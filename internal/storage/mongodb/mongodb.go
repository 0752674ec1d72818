package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jaydaVis04/jLedger/internal/domain/models"
	"github.com/jaydaVis04/jLedger/internal/storage"
)

type Storage struct {
	client *mongo.Client
	users  *mongo.Collection
	tokens *mongo.Collection
}

type userDoc struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	PassHash  []byte    `bson:"pass_hash"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
}

type refreshTokenDoc struct {
	ID             string     `bson:"_id"`
	TokenHash      string     `bson:"token_hash"`
	UserID         string     `bson:"user_id"`
	CreatedAt      time.Time  `bson:"created_at"`
	ExpiresAt      time.Time  `bson:"expires_at"`
	RevokedAt      *time.Time `bson:"revoked_at,omitempty"`
	ReplacedByHash *string    `bson:"replaced_by_hash,omitempty"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client: client,
		users:  db.Collection("users"),
		tokens: db.Collection("refresh_tokens"),
	}

	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

// EnsureIndexes creates the unique and TTL indexes the token protocol
// relies on. The TTL index lets expired records age out while revoked
// ones stay queryable until expiry for replay detection.
func (s *Storage) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.email index: %w", err)
	}

	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token_hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.token_hash index: %w", err)
	}

	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index(),
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.user_id index: %w", err)
	}

	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.expires_at TTL index: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// SaveUser inserts a new user with the USER role and returns it.
func (s *Storage) SaveUser(ctx context.Context, email string, passHash []byte) (*models.User, error) {
	const op = "storage.mongodb.SaveUser"

	doc := userDoc{
		ID:        uuid.NewString(),
		Email:     email,
		PassHash:  passHash,
		Role:      string(models.RoleUser),
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return doc.toModel(), nil
}

// User retrieves a user by email.
func (s *Storage) User(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongodb.User"
	return s.findUser(ctx, op, bson.D{{Key: "email", Value: email}})
}

// UserByID retrieves a user by ID.
func (s *Storage) UserByID(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.mongodb.UserByID"
	return s.findUser(ctx, op, bson.D{{Key: "_id", Value: userID}})
}

func (s *Storage) findUser(ctx context.Context, op string, filter bson.D) (*models.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toModel(), nil
}

func (d *userDoc) toModel() *models.User {
	return &models.User{
		ID:        d.ID,
		Email:     d.Email,
		PassHash:  d.PassHash,
		Role:      models.Role(d.Role),
		CreatedAt: d.CreatedAt,
	}
}

// SaveRefreshToken stores a new refresh token hash and returns the record ID.
func (s *Storage) SaveRefreshToken(ctx context.Context, tokenHash, userID string, expiresAt time.Time) (string, error) {
	const op = "storage.mongodb.SaveRefreshToken"

	doc := refreshTokenDoc{
		ID:        uuid.NewString(),
		TokenHash: tokenHash,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt.UTC(),
	}

	if _, err := s.tokens.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return doc.ID, nil
}

// ActiveRefreshToken retrieves a refresh token by hash only if it is
// neither revoked nor expired.
func (s *Storage) ActiveRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.mongodb.ActiveRefreshToken"
	return s.findToken(ctx, op, activeFilter(tokenHash, time.Now().UTC()))
}

// RefreshToken retrieves a refresh token by hash regardless of state.
func (s *Storage) RefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.mongodb.RefreshToken"
	return s.findToken(ctx, op, bson.D{{Key: "token_hash", Value: tokenHash}})
}

func activeFilter(tokenHash string, now time.Time) bson.D {
	return bson.D{
		{Key: "token_hash", Value: tokenHash},
		{Key: "revoked_at", Value: bson.D{{Key: "$exists", Value: false}}},
		{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: now}}},
	}
}

func (s *Storage) findToken(ctx context.Context, op string, filter bson.D) (*models.RefreshToken, error) {
	var doc refreshTokenDoc
	err := s.tokens.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.RefreshToken{
		ID:             doc.ID,
		TokenHash:      doc.TokenHash,
		UserID:         doc.UserID,
		CreatedAt:      doc.CreatedAt,
		ExpiresAt:      doc.ExpiresAt,
		RevokedAt:      doc.RevokedAt,
		ReplacedByHash: doc.ReplacedByHash,
	}, nil
}

// RotateRefreshToken revokes the old token and inserts its successor
// inside one session transaction, so either both effects land or
// neither. The revoke is additionally conditional on the active state,
// so of two racing rotations only one observes the document and wins.
// Requires a replica-set deployment, as transactions do on MongoDB.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldHash, newHash, userID string, newExpiresAt time.Time) (string, error) {
	const op = "storage.mongodb.RotateRefreshToken"

	session, err := s.client.StartSession()
	if err != nil {
		return "", fmt.Errorf("%s: start session: %w", op, err)
	}
	defer session.EndSession(ctx)

	now := time.Now().UTC()
	doc := refreshTokenDoc{
		ID:        uuid.NewString(),
		TokenHash: newHash,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: newExpiresAt.UTC(),
	}

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		err := s.tokens.FindOneAndUpdate(ctx,
			activeFilter(oldHash, now),
			bson.D{{Key: "$set", Value: bson.D{
				{Key: "revoked_at", Value: now},
				{Key: "replaced_by_hash", Value: newHash},
			}}},
		).Err()
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, storage.ErrTokenNotFound
			}
			return nil, fmt.Errorf("revoke old: %w", err)
		}

		if _, err := s.tokens.InsertOne(ctx, doc); err != nil {
			return nil, fmt.Errorf("insert new: %w", err)
		}

		return nil, nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return doc.ID, nil
}

// RevokeRefreshToken marks the token revoked if it is still active.
// Absent or already-revoked tokens are not an error.
func (s *Storage) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	const op = "storage.mongodb.RevokeRefreshToken"

	_, err := s.tokens.UpdateOne(ctx,
		bson.D{
			{Key: "token_hash", Value: tokenHash},
			{Key: "revoked_at", Value: bson.D{{Key: "$exists", Value: false}}},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "revoked_at", Value: time.Now().UTC()}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RevokeAllRefreshTokens revokes every active token owned by userID.
func (s *Storage) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	const op = "storage.mongodb.RevokeAllRefreshTokens"

	_, err := s.tokens.UpdateMany(ctx,
		bson.D{
			{Key: "user_id", Value: userID},
			{Key: "revoked_at", Value: bson.D{{Key: "$exists", Value: false}}},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "revoked_at", Value: time.Now().UTC()}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
