package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Angus1976/superinsight1225-sub020/internal/config"
	"github.com/Angus1976/superinsight1225-sub020/internal/health"
	"github.com/Angus1976/superinsight1225-sub020/internal/providers"
	"github.com/Angus1976/superinsight1225-sub020/internal/queue"
	"github.com/Angus1976/superinsight1225-sub020/internal/routing"
	"github.com/Angus1976/superinsight1225-sub020/internal/storage"
)

// Dependencies aggregates all services the HTTP layer needs. main holds on
// to it for graceful shutdown.
type Dependencies struct {
	DB       *storage.DB
	Store    health.Store
	Monitor  *health.Monitor
	Switcher *routing.Switcher
	Worker   *storage.SnapshotWorker
	Queue    queue.Queue
	DLQ      queue.DeadLetterQueue
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	// Initialize database
	db, err := storage.NewDB(storage.DBConfig{
		DSN:               cfg.Database.URL,
		MaxOpenConns:      cfg.Database.MaxOpenConns,
		MaxIdleConns:      cfg.Database.MaxIdleConns,
		ConnMaxLifetime:   cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:   cfg.Database.ConnMaxIdleTime,
		QueryTimeout:      cfg.Database.QueryTimeout,
		ProviderCacheSize: cfg.Database.ProviderCacheSize,
		ProviderCacheTTL:  cfg.Database.ProviderCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}

	providerRepo := db.NewProviderRepository()
	healthRepo := db.NewHealthRepository()

	// Credential encryption is optional; without a key, probes go out
	// unauthenticated and credential storage is rejected.
	var encryption *storage.Encryption
	var decryptor providers.CredentialDecryptor
	if cfg.EncryptionKey != "" {
		encryption, err = storage.NewEncryptionFromBase64(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize encryption: %w", err)
		}
		decryptor = encryption
	}

	// Snapshot queue: Redis for distributed deployments, memory otherwise
	queueCfg := queue.DefaultConfig(cfg.Snapshot.QueueName)
	queueCfg.BatchSize = cfg.Snapshot.BatchSize
	queueCfg.BatchTimeout = cfg.Snapshot.BatchTimeout
	queueCfg.MaxRetries = cfg.Snapshot.MaxRetries
	queueCfg.RetryBackoff = cfg.Snapshot.RetryBackoff
	queueCfg.UseRedis = cfg.Snapshot.UseRedis
	queueCfg.RedisAddr = cfg.Redis.Address
	queueCfg.RedisPassword = cfg.Redis.Password
	queueCfg.RedisDB = cfg.Redis.DB

	var snapshotQueue queue.Queue
	var dlq queue.DeadLetterQueue
	if queueCfg.UseRedis {
		snapshotQueue, err = queue.NewRedisQueue(queueCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize snapshot queue: %w", err)
		}
		dlq, err = queue.NewRedisDeadLetterQueue(queueCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize dead letter queue: %w", err)
		}
	} else {
		snapshotQueue = queue.NewMemoryQueue(queueCfg)
		dlq = queue.NewMemoryDeadLetterQueue()
	}

	worker := storage.NewSnapshotWorker(snapshotQueue, dlq, healthRepo, queueCfg)
	worker.Start(context.Background())

	// Health core
	store := health.NewMemoryStore()
	prober := providers.NewHTTPProber(decryptor)
	monitor := health.NewMonitor(health.MonitorConfig{
		Interval:         cfg.Monitor.Interval,
		Timeout:          cfg.Monitor.Timeout,
		FailureThreshold: cfg.Monitor.FailureThreshold,
		Jitter:           cfg.Monitor.Jitter,
	}, store, prober, worker)

	// Track every enabled provider from the start
	enabled, err := providerRepo.ListEnabled(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load providers: %w", err)
	}
	for _, provider := range enabled {
		monitor.AddProvider(provider)
	}

	if err := monitor.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start monitor: %w", err)
	}

	switcher := routing.NewSwitcher(store, worker, monitor, cfg.Monitor.FailureThreshold)

	deps := &Dependencies{
		DB:       db,
		Store:    store,
		Monitor:  monitor,
		Switcher: switcher,
		Worker:   worker,
		Queue:    snapshotQueue,
		DLQ:      dlq,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, providerRepo, healthRepo, encryption)

	return mux, deps, nil
}

// registerRoutes attaches all endpoints to the mux
func registerRoutes(mux *http.ServeMux, deps *Dependencies, providerRepo *storage.ProviderRepository, healthRepo *storage.HealthRepository, encryption *storage.Encryption) {
	// Service liveness - public
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.DB.Health(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Read-only health record queries
	queryHandler := NewHealthQueryHandler(healthRepo)
	mux.HandleFunc("/v1/health/records", queryHandler.List)
	mux.HandleFunc("/v1/health/unhealthy", queryHandler.ListUnhealthy)
	mux.HandleFunc("/v1/health/stale", queryHandler.ListStale)

	// Provider administration
	providerHandler := NewProviderHandler(providerRepo, deps.Monitor, encryption)
	mux.HandleFunc("/v1/providers", providerHandler.Handle)
	mux.HandleFunc("/v1/providers/", providerHandler.Handle)

	// Monitor control surface
	controlHandler := NewMonitorControlHandler(deps.Monitor, providerRepo, deps.Worker)
	mux.HandleFunc("/v1/monitor/start", controlHandler.Start)
	mux.HandleFunc("/v1/monitor/stop", controlHandler.Stop)
	mux.HandleFunc("/v1/monitor/status", controlHandler.Status)
	mux.HandleFunc("/v1/monitor/queue", controlHandler.QueueStatus)
	mux.HandleFunc("/v1/monitor/providers", controlHandler.HandleProviders)
	mux.HandleFunc("/v1/monitor/providers/", controlHandler.HandleProviders)

	// Caller-facing routing surface
	routeHandler := NewRouteHandler(deps.Switcher, providerRepo)
	mux.HandleFunc("/v1/route/select", routeHandler.Select)
	mux.HandleFunc("/v1/route/outcome", routeHandler.Outcome)
}
