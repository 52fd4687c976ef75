package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"mediconnect/internal/authz"
	authzmetrics "mediconnect/internal/authz/metrics"
	"mediconnect/internal/credential"
	"mediconnect/internal/credential/denylist"
	"mediconnect/internal/directory"
	"mediconnect/internal/platform/config"
	"mediconnect/internal/platform/httpserver"
	"mediconnect/internal/platform/logger"
	"mediconnect/internal/platform/metrics"
	platformredis "mediconnect/internal/platform/redis"
	rlmetrics "mediconnect/internal/ratelimit/metrics"
	ratelimit "mediconnect/internal/ratelimit/middleware"
	"mediconnect/internal/ratelimit/store/bucket"
	"mediconnect/internal/rbac"
	httptransport "mediconnect/internal/transport/http"
	audit "mediconnect/pkg/platform/audit"
	kafkasink "mediconnect/pkg/platform/audit/publishers/kafka"
	"mediconnect/pkg/platform/audit/store/memory"
	"mediconnect/pkg/platform/audit/store/postgres"
	"mediconnect/pkg/platform/middleware/metadata"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mediconnect: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	if cfg.JWTSecret == config.DevJWTSecret {
		log.Warn("using development JWT secret; set JWT_SECRET")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checks := map[string]httptransport.HealthCheck{}

	store, closeStore, err := openAuditStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		checks["postgres"] = pinger.Ping
	}

	trailOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics(reg)),
	}
	if cfg.AuditBuffer > 0 {
		trailOpts = append(trailOpts, audit.WithAsyncBuffer(cfg.AuditBuffer))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		client, err := kafkasink.NewClient(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return fmt.Errorf("create kafka client: %w", err)
		}
		defer client.Close()
		checks["kafka"] = client.Ping
		trailOpts = append(trailOpts, audit.WithSinks(kafkasink.New(client, cfg.Kafka.AuditTopic,
			kafkasink.WithLogger(log),
			kafkasink.WithMetrics(kafkasink.NewMetrics(reg)),
		)))
		log.Info("mirroring audit records to kafka", "topic", cfg.Kafka.AuditTopic)
	}
	trail, err := audit.NewTrail(ctx, store, trailOpts...)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var revoked credential.Denylist
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		revoked = denylist.NewRedis(redisClient.Client)
		checks["redis"] = redisClient.Health
	} else {
		mem := denylist.NewMemory()
		revoked = mem
		g.Go(func() error { return mem.RunSweeper(gctx, time.Minute) })
	}
	creds := credential.NewService(cfg.JWTSecret, cfg.Issuer, cfg.Audience, credential.WithDenylist(revoked))

	engine := authz.NewEngine(rbac.Default(),
		authz.WithLogger(log),
		authz.WithMetrics(authzmetrics.New(reg)),
	)

	users := directory.NewInMemoryStore()
	if cfg.SeedDemoUsers {
		if err := directory.SeedDemoUsers(ctx, users, 0); err != nil {
			return err
		}
		log.Info("seeded demo users")
	}
	dir := directory.NewService(users, directory.WithLogger(log))

	buckets := bucket.NewInMemoryBucketStore(cfg.LoginRate, cfg.LoginBurst)
	g.Go(func() error { return buckets.RunSweeper(gctx, time.Minute, 10*time.Minute) })
	limits := ratelimit.New(buckets, log, ratelimit.WithMetrics(rlmetrics.New(reg)))

	clientIP, err := metadata.NewClientIPResolver(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
	}

	appMetrics := metrics.New(reg)
	auditor := httptransport.NewAuditor(trail, log)
	router := httptransport.NewRouter(log, appMetrics, reg, clientIP,
		httptransport.NewHealthHandler(checks),
		httptransport.NewAuthHandler(dir, creds, auditor, log, cfg.TokenTTL,
			httptransport.WithLoginLimiter(limits.RateLimitByIP("login")),
			httptransport.WithAuthMetrics(appMetrics),
		),
		httptransport.NewAccessControlHandler(dir, creds, engine, trail, auditor, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	g.Go(func() error {
		log.Info("starting mediconnect", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Requests still in flight have appended by now; drain the writer.
		trail.Close()
		log.Info("shutdown complete")
		if err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// openAuditStore picks Postgres when DATABASE_URL is set and memory
// otherwise.
func openAuditStore(ctx context.Context, cfg config.Server, log *slog.Logger) (audit.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set; audit records are kept in memory and lost on restart")
		return memory.NewInMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := postgres.New(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}
