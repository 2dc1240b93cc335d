// Command server runs the subtask dispatch/lifecycle core: the HTTP Intake
// Stub, the Dispatch Channel, the Assignment/Lifecycle engines, and the
// Heartbeat Monitor, wired against either the in-memory or postgres Store.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/meshcompute/inference-marketplace/internal/assignment"
	"github.com/meshcompute/inference-marketplace/internal/config"
	"github.com/meshcompute/inference-marketplace/internal/devices"
	"github.com/meshcompute/inference-marketplace/internal/dispatch"
	"github.com/meshcompute/inference-marketplace/internal/heartbeat"
	"github.com/meshcompute/inference-marketplace/internal/httpapi"
	"github.com/meshcompute/inference-marketplace/internal/ledger"
	"github.com/meshcompute/inference-marketplace/internal/lifecycle"
	"github.com/meshcompute/inference-marketplace/internal/storage"
	"github.com/meshcompute/inference-marketplace/internal/storage/memory"
	"github.com/meshcompute/inference-marketplace/internal/storage/postgres"
	"github.com/meshcompute/inference-marketplace/internal/system"
	"github.com/meshcompute/inference-marketplace/internal/timeline"
	"github.com/meshcompute/inference-marketplace/pkg/logger"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config/env)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if trimmed := strings.TrimSpace(*addr); trimmed != "" {
		cfg.Server.Addr = trimmed
	}

	lg := logger.New(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("build store: %v", err)
	}

	tlog := timeline.New()
	ldg := ledger.New(cfg.Assignment.RequestorMarginRatio)
	assignmentEngine := assignment.New(store, tlog, lg, assignment.Config{
		SelfAssignAllowedInDebug: cfg.Assignment.SelfAssignAllowedInDebug,
		MaxSerializationRetries:  cfg.Assignment.MaxSerializationRetries,
	})
	lifecycleEngine := lifecycle.New(store, tlog, ldg)

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
	}
	registry := devices.New(store, lifecycleEngine, redisClient, lg)

	wireLogger, err := buildWireLogger(cfg.Logging.Format)
	if err != nil {
		log.Fatalf("build wire logger: %v", err)
	}
	defer wireLogger.Sync()

	validator := dispatch.NewTokenValidator(cfg.Dispatch.JWTSecret, cfg.Dispatch.JWTIssuer, cfg.Dispatch.JWTAudience)
	gateway := dispatch.NewGateway(validator, assignmentEngine, lifecycleEngine, registry, dispatch.NewAddrLimiter(dispatch.DefaultConnLimitConfig()), wireLogger)

	manager := system.NewManager()

	sweepSeconds := cfg.Heartbeat.SweepSeconds
	if sweepSeconds <= 0 {
		sweepSeconds = 30
	}
	monitor := heartbeat.New(store, lifecycleEngine, fmt.Sprintf("*/%d * * * * *", sweepSeconds), lg)
	if err := manager.Register(monitor); err != nil {
		log.Fatalf("register heartbeat monitor: %v", err)
	}

	httpService := httpapi.NewService(cfg.Server.Addr, store, assignmentEngine, gateway, lg)
	if err := manager.Register(httpService); err != nil {
		log.Fatalf("register http service: %v", err)
	}

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}
	lg.WithField("addr", cfg.Server.Addr).Info("inference marketplace core listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	dsn := strings.TrimSpace(cfg.Database.DSN)
	if dsn == "" {
		return memory.NewMemory(), nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}
	return postgres.NewStore(db), nil
}

func buildWireLogger(format string) (*zap.Logger, error) {
	if strings.EqualFold(format, "json") {
		return zap.NewProduction()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
