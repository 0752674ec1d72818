package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaydaVis04/jLedger/internal/app"
	"github.com/jaydaVis04/jLedger/internal/config"
	"github.com/jaydaVis04/jLedger/internal/lib/handlers/slogpretty"
)

const (
	envLocal = "local"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/local.yaml", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	logger := setupLogger(cfg.Env)
	logger.Info("starting jledger auth server", slog.String("env", cfg.Env))

	application := app.New(logger, cfg)
	go application.HTTPSrv.MustRun()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	application.HTTPSrv.Stop()

	logger.Info("shutting down jledger auth server")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		panic("unknown environment: " + env)
	}
	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}
	h := opts.NewPrettyHandler(os.Stdout)

	return slog.New(h)
}
