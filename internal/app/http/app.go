package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	adminhandler "github.com/jaydaVis04/jLedger/internal/http/admin"
	authhandler "github.com/jaydaVis04/jLedger/internal/http/auth"
	"github.com/jaydaVis04/jLedger/internal/http/middleware"
	authservice "github.com/jaydaVis04/jLedger/internal/services/auth"
)

type App struct {
	logger *slog.Logger
	server *http.Server
	port   int
}

// NewRouter assembles the full route surface. Split out of New so the
// functional tests can drive the router in-process.
func NewRouter(
	env string,
	authService *authservice.Auth,
	users middleware.UserProvider,
	jwtSecret []byte,
	refreshTokenTTL time.Duration,
) *gin.Engine {
	if env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// cookies over plain HTTP only happen in local development
	authhandler.NewHandler(authService, refreshTokenTTL, env == "prod").RegisterRoutes(router)
	adminhandler.NewHandler(authService).RegisterRoutes(router, jwtSecret, users)

	return router
}

func New(
	logger *slog.Logger,
	env string,
	authService *authservice.Auth,
	users middleware.UserProvider,
	jwtSecret []byte,
	refreshTokenTTL time.Duration,
	port int,
	timeout time.Duration,
) *App {
	router := NewRouter(env, authService, users, jwtSecret, refreshTokenTTL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	return &App{
		logger: logger,
		server: server,
		port:   port,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.Run"

	log := a.logger.With(
		slog.String("op", op),
		slog.Int("port", a.port),
	)

	log.Info("HTTP server is running", slog.String("address", a.server.Addr))

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop() {
	const op = "httpapp.Stop"
	log := a.logger.With(slog.String("op", op))
	log.Info("stopping HTTP server", slog.Int("port", a.port))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
}
