// Command raeserver runs the Reflective Agent Engine: the storage/tenant/
// retrieval/reflection/worker stack wired together by internal/rae, with no
// HTTP or RPC surface of its own (callers embed the engine directly, or front
// it with their own adapter).
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dreamsoft-pro/rae/infrastructure/logging"
	"github.com/dreamsoft-pro/rae/internal/config"
	"github.com/dreamsoft-pro/rae/internal/platform/database"
	"github.com/dreamsoft-pro/rae/internal/platform/migrations"
	"github.com/dreamsoft-pro/rae/internal/rae"
	"github.com/dreamsoft-pro/rae/internal/storage/memory"
	"github.com/dreamsoft-pro/rae/internal/storage/postgres"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New("raeserver", cfg.LogLevel, cfg.LogFormat)

	rootCtx := context.Background()
	dsnVal := resolveDSN(*dsn, cfg)

	backends := rae.Backends{}
	var db *sql.DB

	if dsnVal != "" {
		db, err = database.Open(rootCtx, dsnVal)
		if err != nil {
			log.Fatalf("connect to postgres: %v", err)
		}
		configurePool(db, cfg)
		if *runMigrations {
			if err := migrations.Apply(rootCtx, db); err != nil {
				log.Fatalf("apply migrations: %v", err)
			}
		}
		store := postgres.New(db)
		backends = rae.Backends{Records: store, Vectors: store, Graph: store, Audit: store, Cost: store}
	} else {
		store := memory.New()
		backends = rae.Backends{Records: store, Vectors: store, Graph: store, Audit: store, Cost: store}
	}

	if db != nil {
		defer db.Close()
	}

	engine, err := rae.New(backends, cfg, logger)
	if err != nil {
		log.Fatalf("initialise engine: %v", err)
	}

	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		log.Fatalf("start engine: %v", err)
	}
	log.Printf("rae engine started (env=%s, persistent=%v)", cfg.Env, dsnVal != "")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := engine.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

func configurePool(db *sql.DB, cfg *config.Config) {
	if cfg.DBMaxConnections > 0 {
		db.SetMaxOpenConns(cfg.DBMaxConnections)
		db.SetMaxIdleConns(cfg.DBMaxConnections)
	}
	if cfg.DBIdleTimeout > 0 {
		db.SetConnMaxIdleTime(cfg.DBIdleTimeout)
	}
}

func resolveDSN(flagDSN string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	if envDSN := strings.TrimSpace(os.Getenv("DATABASE_URL")); envDSN != "" {
		return envDSN
	}
	return strings.TrimSpace(cfg.DatabaseDSN)
}
