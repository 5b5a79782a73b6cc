// Package control wires the agent together and manages its lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/vietddude/costwatch/internal/agent/classifier"
	"github.com/vietddude/costwatch/internal/agent/health"
	"github.com/vietddude/costwatch/internal/agent/recommender"
	"github.com/vietddude/costwatch/internal/agent/scheduler"
	"github.com/vietddude/costwatch/internal/agent/worker"
	"github.com/vietddude/costwatch/internal/core/config"
	"github.com/vietddude/costwatch/internal/infra/broadcast"
	"github.com/vietddude/costwatch/internal/infra/cloud"
	"github.com/vietddude/costwatch/internal/infra/notify"
	"github.com/vietddude/costwatch/internal/infra/resilience"
	"github.com/vietddude/costwatch/internal/infra/storage"
	"github.com/vietddude/costwatch/internal/infra/storage/memory"
	"github.com/vietddude/costwatch/internal/infra/storage/postgres"
	"github.com/vietddude/costwatch/internal/infra/vector"
)

// Agent is the main application struct managing the optimization loop
// lifecycle across tenants.
type Agent struct {
	cfg config.AppConfig

	runners      map[string]*scheduler.Runner
	expirer      *worker.Expirer
	machine      *recommender.Machine
	configs      *classifier.ConfigStore
	configRepo   storage.AgentConfigRepository
	recs         storage.RecommendationRepository
	history      storage.HistoryRepository
	healthServer *health.Server

	db          *postgres.DB
	redisClient *broadcast.Client
	log         *slog.Logger
}

// NewAgent creates an Agent with all dependencies initialized. With no
// database URL it runs on in-memory storage against the simulated fleet,
// which is the local development mode.
func NewAgent(cfg config.AppConfig, log *slog.Logger) (*Agent, error) {
	// 1. Storage
	var (
		recs       storage.RecommendationRepository
		history    storage.HistoryRepository
		configRepo storage.AgentConfigRepository
		txRunner   storage.TxRunner
		db         *postgres.DB
		dbPinger   health.Pinger
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		recs = postgres.NewRecommendationRepo(db)
		history = postgres.NewHistoryRepo(db)
		configRepo = postgres.NewConfigRepo(db)
		txRunner = postgres.NewTxRunner(db, cfg.Agent.Retry)
		dbPinger = db
		log.Info("using postgresql storage")
	} else {
		store := memory.NewMemoryStorage()
		recs = memory.NewRecommendationRepo(store)
		history = memory.NewHistoryRepo(store)
		configRepo = memory.NewConfigRepo(store)
		txRunner = memory.NewTxRunner(store)
		log.Info("using memory storage")
	}

	// 2. Broadcast
	var (
		publisher   broadcast.Publisher = broadcast.NopPublisher{}
		redisClient *broadcast.Client
		redisPinger health.Pinger
	)
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = broadcast.NewClient(cfg.Redis, log)
		if err != nil {
			log.Warn("failed to connect to redis, broadcast disabled", "error", err)
		} else {
			publisher = redisClient
			redisPinger = redisClient
			log.Info("broadcast stream enabled")
		}
	}

	// 3. Notifications and context enrichment
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify, log)
	}

	var contexts vector.ContextStore
	if cfg.Vector.URL != "" {
		contexts = vector.NewClient(cfg.Vector)
	}
	breaker := resilience.NewBreaker("vector-store", cfg.Agent.Breaker)

	// 4. Core components
	provider := cloud.NewSimProvider(rand.NewSource(time.Now().UnixNano()))
	machine := recommender.New(recs, txRunner, provider, publisher, notifier, log)
	configStore := classifier.NewConfigStore(configRepo)

	runners := make(map[string]*scheduler.Runner)
	statsSources := make(map[string]health.StatsSource)
	for _, tenantID := range cfg.Agent.Tenants {
		runner := scheduler.NewRunner(
			scheduler.Config{
				TenantID: tenantID,
				Interval: cfg.Agent.CycleInterval,
				MinBatch: cfg.Agent.MinBatch,
				MaxBatch: cfg.Agent.MaxBatch,
			},
			provider,
			classifier.New(rand.NewSource(time.Now().UnixNano())),
			configStore,
			machine,
			recs,
			contexts,
			breaker,
			rand.NewSource(time.Now().UnixNano()),
			log,
		)
		runners[tenantID] = runner
		statsSources[tenantID] = runner
	}

	expirer := worker.NewExpirer(cfg.Agent.PendingTTL, recs, machine, log)

	// 5. Health
	healthMon := health.NewMonitor(
		dbPinger,
		redisPinger,
		breaker,
		statsSources,
		recs,
		cfg.Agent.CycleInterval,
	)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Agent{
		cfg:          cfg,
		runners:      runners,
		expirer:      expirer,
		machine:      machine,
		configs:      configStore,
		configRepo:   configRepo,
		recs:         recs,
		history:      history,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// Start starts the agent and all its components.
func (a *Agent) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("health server failed", "error", err)
		}
	}()

	// Config changes made by other processes invalidate this instance's
	// cache through the redis signal channel.
	if a.redisClient != nil {
		a.redisClient.SubscribeConfigInvalidations(ctx, a.configs.Invalidate)
	}

	for tenantID, runner := range a.runners {
		a.log.Info("starting cycle runner", "tenant", tenantID)
		go func(tenantID string, r *scheduler.Runner) {
			if err := r.Start(ctx); err != nil {
				a.log.Error("cycle runner failed", "tenant", tenantID, "error", err)
			}
		}(tenantID, runner)
	}

	go a.expirer.Start(ctx)

	return nil
}

// Stop stops the agent.
func (a *Agent) Stop(ctx context.Context) error {
	a.log.Info("stopping agent...")

	for _, runner := range a.runners {
		runner.Stop()
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close database", "error", err)
		}
	}

	return a.healthServer.Stop(ctx)
}

// Machine exposes the state machine for the admin surface.
func (a *Agent) Machine() *recommender.Machine { return a.machine }

// Recommendations exposes the recommendation repository for the admin surface.
func (a *Agent) Recommendations() storage.RecommendationRepository { return a.recs }

// History exposes the history repository for the admin surface.
func (a *Agent) History() storage.HistoryRepository { return a.history }

// AgentConfigs exposes the configuration repository for the admin surface.
func (a *Agent) AgentConfigs() storage.AgentConfigRepository { return a.configRepo }

// InvalidateConfig drops the cached policy so the next cycle reloads it.
func (a *Agent) InvalidateConfig(tenantID string) { a.configs.Invalidate(tenantID) }
