package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/jaydaVis04/jLedger/internal/config"
	"github.com/jaydaVis04/jLedger/internal/storage/mongodb"
)

func main() {
	var configPath, migrationsPath string
	var mongoInit bool
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.StringVar(&migrationsPath, "migrations", "migrations", "path to sqlite migrations")
	flag.BoolVar(&mongoInit, "mongo-init", false, "create MongoDB collections and indexes instead of running sqlite migrations")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	cfg := config.MustLoad(configPath)

	if mongoInit {
		initMongo(cfg)
		return
	}

	m, err := migrate.New(
		"file://"+migrationsPath,
		fmt.Sprintf("sqlite3://%s", cfg.StoragePath),
	)
	if err != nil {
		log.Fatalf("failed to init migrator: %v", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("no migrations to apply")
			return
		}
		log.Fatalf("failed to apply migrations: %v", err)
	}

	log.Println("migrations applied successfully")
}

func initMongo(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Println("connecting to MongoDB...")

	storage, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Fatalf("failed to connect to mongodb: %v", err)
	}
	defer storage.Close(ctx)

	log.Println("MongoDB connected, indexes created successfully")
}
