// Package main provides the DCSP (Dataset Commit & Serve Pipeline)
// service: the ingestion orchestrator, its periodic scheduler, and the
// HTTP API that hosts Validated Read plus the admin surface.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/dcsp-io/dcsp/internal/adminauth"
	"github.com/dcsp-io/dcsp/internal/api"
	"github.com/dcsp-io/dcsp/internal/api/middleware"
	"github.com/dcsp-io/dcsp/internal/commitlog"
	"github.com/dcsp-io/dcsp/internal/config"
	"github.com/dcsp-io/dcsp/internal/identity"
	"github.com/dcsp-io/dcsp/internal/kv"
	"github.com/dcsp-io/dcsp/internal/notify"
	"github.com/dcsp-io/dcsp/internal/objectstore"
	"github.com/dcsp-io/dcsp/internal/orchestrator"
	"github.com/dcsp-io/dcsp/internal/read"
	"github.com/dcsp-io/dcsp/internal/readiness"
	"github.com/dcsp-io/dcsp/internal/rules"
	"github.com/dcsp-io/dcsp/internal/schema"
)

const (
	version = "0.1.0-dev"
	name    = "dcspd"

	dbMaxOpenConns    = 25
	dbMaxIdleConns    = 5
	dbConnMaxLifetime = 30 * time.Minute

	schedulerInterval = time.Minute
	reaperInterval    = 10 * time.Minute
	reaperTTL         = 2 * time.Hour
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: serverConfig.LogLevel}))
	logger.Info("starting dcsp service", slog.String("service", name), slog.String("version", version))

	db, err := openDatabase(config.GetEnvStr("DATABASE_URL", ""))
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	ruleSet := loadRuleSet(logger)

	schemas := schema.NewStore(db)
	commits := commitlog.NewStore(db)
	readyz := readiness.NewService(db)
	idRegistry := identity.NewRegistry(db)
	apiKeyStore := adminauth.NewStore(db, logger)

	kvCfg := kv.LoadConfig()
	kvClient := kv.NewRedisClient(kvCfg.Addr, kvCfg.Password, kvCfg.DB)

	objects, err := objectstore.NewS3Store(context.Background(), objectstore.LoadConfig(), logger)
	if err != nil {
		logger.Error("failed to configure object store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	notifyCfg := notify.LoadConfig()
	notifier := notify.NewProducer(notifyCfg.Brokers, notifyCfg.Topic, logger)
	defer notifier.Close()

	orch := orchestrator.New(ruleSet, schemas, commits, readyz, kvClient, objects, notifier, idRegistry, logger)

	reaper := commitlog.NewReaper(commits, reaperInterval, reaperTTL, logger)
	reaper.Start()
	defer reaper.Stop()

	scheduler := orchestrator.NewScheduler(orch, ruleSet, noopFetcherFor, schedulerInterval, logger)

	reader := read.NewService(readyz, commits, kvClient, objects, idRegistry, schemas, ruleSet, logger)

	rateLimitCfg := middleware.LoadRateLimitConfig()
	rateLimiter := middleware.NewInMemoryRateLimiter(rateLimitCfg.GlobalRPS, rateLimitCfg.CallerRPS)

	server := api.NewServer(&serverConfig, apiKeyStore, rateLimiter, reader, orch, scheduler, readyz, commits, schemas, ruleSet, idRegistry)

	if err := server.Start(); err != nil {
		logger.Error("server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("dcsp service stopped")
}

func openDatabase(databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL must be set")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(dbMaxOpenConns)
	db.SetMaxIdleConns(dbMaxIdleConns)
	db.SetConnMaxLifetime(dbConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

func loadRuleSet(logger *slog.Logger) *rules.Set {
	path := config.GetEnvStr("DCSP_RULES_CONFIG_PATH", "./rules.yaml")

	cfg, err := rules.LoadConfig(path)
	if err != nil {
		logger.Warn("rules config not loaded, starting with empty rule set",
			slog.String("path", path), slog.String("error", err.Error()))
	}

	return rules.NewSet(cfg)
}

// noopFetcherFor is the scheduler's default fetcher resolver: it has no
// upstream source wired in yet, so every tick is a no-op until a real
// source (HTTP poll, message queue consumer, etc.) is plugged in here.
func noopFetcherFor(_ string) orchestrator.Fetcher {
	return nil
}
