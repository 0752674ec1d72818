package app

import (
	"context"
	"log/slog"
	"time"

	httpapp "github.com/jaydaVis04/jLedger/internal/app/http"
	"github.com/jaydaVis04/jLedger/internal/config"
	"github.com/jaydaVis04/jLedger/internal/http/middleware"
	"github.com/jaydaVis04/jLedger/internal/lib/secret"
	authservice "github.com/jaydaVis04/jLedger/internal/services/auth"
	"github.com/jaydaVis04/jLedger/internal/storage/mongodb"
	"github.com/jaydaVis04/jLedger/internal/storage/sqlite"
)

type App struct {
	HTTPSrv *httpapp.App
}

// storageBackend is the full store surface the auth service composes.
type storageBackend interface {
	authservice.UserSaver
	authservice.UserProvider
	authservice.RefreshTokenStore
	middleware.UserProvider
}

func New(logger *slog.Logger, cfg *config.Config) *App {
	// the process must never come up able to serve traffic without a key
	if cfg.JWTSecret == "" {
		panic("jwt signing secret is not configured (JWT_SECRET)")
	}

	store := newStorage(cfg)

	hasher := secret.NewHasher(cfg.BcryptCost, cfg.RefreshPepper)

	authService := authservice.New(
		logger,
		store,
		store,
		store,
		hasher,
		[]byte(cfg.JWTSecret),
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
		cfg.RevokeChainOnReuse,
	)

	httpApp := httpapp.New(
		logger,
		cfg.Env,
		authService,
		store,
		[]byte(cfg.JWTSecret),
		cfg.RefreshTokenTTL,
		cfg.HTTP.Port,
		cfg.HTTP.Timeout,
	)

	return &App{
		HTTPSrv: httpApp,
	}
}

func newStorage(cfg *config.Config) storageBackend {
	switch cfg.Storage {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		store, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			panic(err)
		}
		return store
	case "sqlite":
		store, err := sqlite.New(cfg.StoragePath)
		if err != nil {
			panic(err)
		}
		return store
	default:
		panic("unknown storage backend: " + cfg.Storage)
	}
}
