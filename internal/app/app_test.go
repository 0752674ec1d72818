package app

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jaydaVis04/jLedger/internal/config"
)

// A missing signing key must keep the process from serving traffic.
func TestNewPanicsWithoutSigningSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		Env:       "local",
		Storage:   "sqlite",
		JWTSecret: "",
	}

	assert.Panics(t, func() { New(logger, cfg) })
}
