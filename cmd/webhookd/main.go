// Command webhookd is the process entrypoint: it wires config, storage
// backends, the LLM Adapter, the Extraction Pipeline, the Job Scheduler,
// and the two HTTP surfaces (the webhook dispatcher and the admin API)
// together and runs them until SIGINT/SIGTERM. Grounded on the teacher's
// cmd/orchestrator/main.go wiring style (flat sequential construction,
// signal.NotifyContext for graceful shutdown) adapted from a Kafka
// consumer bootstrap to a dual-HTTP-server one.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/adminapi"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/analytics"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/config"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/contextassembler"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/extraction"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/httpapi"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/jobs"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm/providers"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/payloadstore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/profilecache"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/search"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := observability.Setup(ctx, observability.TelemetryConfig(cfg.Telemetry))
	if err != nil {
		log.Warn().Err(err).Msg("otel setup failed, continuing without tracing/metrics export")
		shutdown = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("webhookd terminated")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	httpClient := &http.Client{Timeout: cfg.LLM.CallTimeout}

	backends, err := memorystore.Build(ctx, cfg, httpClient)
	if err != nil {
		return fmt.Errorf("build memory store backends: %w", err)
	}

	archive, err := payloadstore.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build payload store: %w", err)
	}

	selector, err := providers.BuildSelector(ctx, cfg.LLM, httpClient)
	if err != nil {
		return fmt.Errorf("build llm providers: %w", err)
	}

	var cacheBackend profilecache.Backend
	var redisClient redis.UniversalClient
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if backend, err := profilecache.NewRedisBackend(cfg.Redis); err == nil {
			cacheBackend = backend
		} else {
			log.Warn().Err(err).Msg("redis profile cache backend unavailable, falling back to in-process only")
		}
	}

	agentCache := profilecache.New(cfg.AgentProfileTTL, agentFetcher(backends.Relational), cacheBackend)

	var locker extraction.CallerLocker
	if redisClient != nil {
		locker = extraction.NewRedisCallerLocker(redisClient)
	} else {
		locker = extraction.NewLocalCallerLocker()
	}

	publisher := extraction.NewPublisher(cfg.Kafka)

	pipeline := &extraction.Pipeline{
		Store:              backends.Adapter,
		Relational:         backends.Relational,
		Provider:           selector,
		Locker:             locker,
		Publisher:          publisher,
		ChunkTokens:        cfg.LLM.ChunkTokens,
		ExtractParallelism: cfg.LLM.ExtractParallelism,
	}

	persistence, err := jobs.NewDiskPersistence(cfg.DataPath)
	if err != nil {
		return fmt.Errorf("open job persistence: %w", err)
	}

	analyticsSink, err := analytics.New(ctx, cfg.ClickHouse)
	if err != nil {
		log.Warn().Err(err).Msg("clickhouse analytics sink unavailable, continuing without it")
		analyticsSink = nil
	}

	handler := extraction.NewJobHandler(pipeline, backends.Relational, archive, analyticsSink)
	scheduler := jobs.New(handler, persistence, cfg.Jobs.WorkerPoolSize, cfg.Jobs.QueueCapacity, cfg.Jobs.MaxAttempts, cfg.Jobs.RetryDelays, cfg.Deadlines.Shutdown)
	if err := scheduler.RegisterDepthMetric(cfg.Telemetry.ServiceName); err != nil {
		log.Warn().Err(err).Msg("register extraction queue depth metric failed")
	}
	scheduler.Start(ctx)

	assembler := &contextassembler.Assembler{
		Store:        backends.Adapter,
		Provider:     selector,
		ProfileCache: agentCache,
		RecentLimit:  contextassembler.DefaultRecentLimit,
		ContextMax:   cfg.ContextMaxMemories,
		TokenBudget:  cfg.ContextTokenBudget,
	}

	searchService := &search.Service{Store: backends.Adapter, Analytics: analyticsSink}

	dispatcher := httpapi.NewServer(httpapi.Dependencies{
		Assembler:     assembler,
		Search:        searchService,
		Relational:    backends.Relational,
		Archive:       archive,
		Scheduler:     scheduler,
		HMACSecret:    cfg.HMACSecret,
		SignatureSkew: cfg.SignatureSkew,
		Deadlines:     cfg.Deadlines,
	})

	var auth *adminapi.Authenticator
	if cfg.OIDC.Enabled {
		auth, err = adminapi.NewAuthenticator(ctx, cfg.OIDC.Issuer, cfg.OIDC.ClientID)
		if err != nil {
			return fmt.Errorf("build admin oidc authenticator: %w", err)
		}
	} else {
		log.Warn().Msg("admin api starting without oidc authentication; protected admin endpoints reject every request while ADMIN_OIDC_ENABLED=false")
	}

	admin := adminapi.NewServer(adminapi.Dependencies{
		Archive:     archive,
		Scheduler:   scheduler,
		Persistence: persistence,
		VectorStore: backends.Adapter,
		Relational:  backends.Relational,
		Auth:        auth,
	})
	admin.StartRecoverySweepTicker(ctx, cfg.RecoverySweepInterval)

	dispatcherServer := &http.Server{Addr: cfg.ListenAddr, Handler: dispatcher}
	adminServer := &http.Server{Addr: cfg.AdminListenAddr, Handler: admin}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("webhook dispatcher listening")
		if err := dispatcherServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("dispatcher server: %w", err)
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.AdminListenAddr).Msg("admin api listening")
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("http server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Deadlines.Shutdown)
	defer cancel()

	_ = dispatcherServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("extraction scheduler shutdown incomplete")
	}
	_ = analyticsSink.Close()
	return nil
}

// agentFetcher adapts RelationalStore.GetAgent into the profilecache.Fetcher
// shape the Agent-Profile Cache drives on a miss, projecting the relational
// row into the llm.AgentProfile shape contextassembler.Assembler.fetchProfile
// expects back out of the cache.
func agentFetcher(relational memorystore.RelationalStore) profilecache.Fetcher {
	return func(ctx context.Context, agentID string) (any, error) {
		agent, ok, err := relational.GetAgent(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("agent not found: %s", agentID)
		}
		return extraction.AgentProfileFrom(agent), nil
	}
}
