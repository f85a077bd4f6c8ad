package main

import (
	"context"
	"crypto"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"tenant-authz/internal/audit"
	auditrepo "tenant-authz/internal/audit/repository"
	"tenant-authz/internal/authz"
	"tenant-authz/internal/cache"
	"tenant-authz/internal/config"
	"tenant-authz/internal/db"
	"tenant-authz/internal/health"
	"tenant-authz/internal/logging"
	membershiprepo "tenant-authz/internal/membership/repository"
	"tenant-authz/internal/policy/engine"
	policyrepo "tenant-authz/internal/policy/repository"
	projectrepo "tenant-authz/internal/project/repository"
	"tenant-authz/internal/ratelimit"
	"tenant-authz/internal/security"
	"tenant-authz/internal/server"
	"tenant-authz/internal/server/httpapi"
	authzotel "tenant-authz/internal/telemetry/otel"
	"tenant-authz/internal/tenant"
	userrepo "tenant-authz/internal/user/repository"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: cfg.OTelServiceName,
	})
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	ctx := context.Background()
	providers, err := authzotel.NewProviders(ctx, authzotel.Config{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("otel providers")
	}
	providers.SetGlobal()
	if cfg.OTelEndpoint != "" {
		logger.Logger.AddHook(logging.NewOTelHook(providers.LoggerProvider, logger.Logger.GetLevel()))
	}
	metrics, err := authzotel.NewMetrics(providers.MeterProvider)
	if err != nil {
		logger.WithError(err).Fatal("otel metrics")
	}

	// Membership and activity lookups fail closed, so the service does not start without Postgres.
	conn, err := db.Open(cfg.DatabaseURL, db.PoolConfig{MinIdle: cfg.DBPoolMin, MaxOpen: cfg.DBPoolMax})
	if err != nil {
		logger.WithError(err).Fatal("postgres")
	}

	store, err := cache.NewRedisStore(cache.Options{URL: cfg.RedisURL, DefaultTTL: cfg.CacheTTL()})
	if err != nil {
		logger.WithError(err).Fatal("redis")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		// The quota guard fails open; requests are still served while Redis is down.
		logger.WithError(err).Warn("redis unreachable at startup; rate limiting will fail open")
	}
	cancel()

	verifier, err := newVerifier(cfg)
	if err != nil {
		logger.WithError(err).Fatal("jwt verifier")
	}
	scope, err := ratelimit.ParseScope(cfg.RateLimitScope)
	if err != nil {
		logger.WithError(err).Fatal("rate limit scope")
	}

	clk := clock.New()
	users := userrepo.NewPostgresRepository(conn)
	memberships := membershiprepo.NewPostgresRepository(conn)
	// Rejections must not wait on Postgres; audit entries go through a bounded queue.
	auditWriter := audit.NewAsyncWriter(auditrepo.NewPostgresRepository(conn), cfg.AuditQueueSize, logger,
		audit.WithDropRecorder(metrics))
	auditLogger := audit.NewLogger(auditWriter, logger, clk)
	evaluator := engine.NewOPAEvaluator(policyrepo.NewPostgresRepository(conn), logger)

	pipeline := authz.NewPipeline(authz.Stages{
		Verifier: verifier,
		Resolver: tenant.NewResolver(memberships, users),
		Guard: ratelimit.NewGuard(store,
			ratelimit.WithClock(clk),
			ratelimit.WithLogger(logger),
			ratelimit.WithFailOpenRecorder(metrics),
		),
	}, authz.Quota{
		Limit:          cfg.RateLimitMaxRequests,
		WindowSeconds:  cfg.RateLimitWindowSeconds,
		Scope:          scope,
		AnonymousLimit: cfg.RateLimitAnonMaxRequests,
	},
		authz.WithLogger(logger),
		authz.WithMetrics(metrics),
		authz.WithAuditor(auditLogger),
	)

	checker := health.NewChecker(2*time.Second).
		AddPinger("postgres", conn).
		Add("redis", store.Ping).
		AddPolicy("policy", evaluator)

	grpcServer := server.NewGRPCServer(server.Deps{
		Authorizer:  pipeline,
		AuditLogger: auditLogger,
		Logger:      logger,
		Checker:     checker,
		Clock:       clk,
	})
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.WithError(err).Fatal("grpc listen")
	}
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Authorizer: pipeline,
			Checker:    checker,
			Evaluator:  evaluator,
			Projects:   projectrepo.NewPostgresRepository(conn),
			Logger:     logger,
			Clock:      clk,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		logger.WithError(err).Error("server stopped unexpectedly; shutting down")
	}

	shutdown(logger, grpcServer.GracefulStop, httpServer, auditWriter, store, conn.Close, providers)
}

func shutdown(logger logrus.FieldLogger, stopGRPC func(), httpServer *http.Server, auditWriter *audit.AsyncWriter,
	store *cache.RedisStore, closeDB func() error, providers *authzotel.Providers) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		stopGRPC()
		close(stopped)
	}()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	select {
	case <-stopped:
	case <-ctx.Done():
		logger.Warn("gRPC graceful stop timed out")
	}
	if err := auditWriter.Close(ctx); err != nil {
		logger.WithError(err).WithField("dropped", auditWriter.Dropped()).Warn("audit drain")
	}
	if err := store.Close(); err != nil {
		logger.WithError(err).Warn("redis close")
	}
	if err := closeDB(); err != nil {
		logger.WithError(err).Warn("postgres close")
	}
	if err := providers.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("otel shutdown")
	}
	logger.Info("stopped")
}

func newVerifier(cfg *config.Config) (*security.Verifier, error) {
	var pub crypto.PublicKey
	if cfg.JWTPublicKey != "" {
		k, err := security.ParseVerificationKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		pub = k
	}
	return security.NewVerifier([]byte(cfg.JWTSecret), pub, cfg.JWTIssuer, cfg.JWTAudience, nil)
}
