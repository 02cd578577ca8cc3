package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/apexfest/checkin/internal/config"
	"github.com/apexfest/checkin/internal/dependencies/clock"
	"github.com/apexfest/checkin/internal/dependencies/random"
	"github.com/apexfest/checkin/internal/live"
	"github.com/apexfest/checkin/internal/metrics"
	"github.com/apexfest/checkin/internal/notify"
	"github.com/apexfest/checkin/internal/services/auth"
	"github.com/apexfest/checkin/internal/services/directory"
	"github.com/apexfest/checkin/internal/services/leaderboard"
	"github.com/apexfest/checkin/internal/services/ledger"
	"github.com/apexfest/checkin/internal/storage"
	"github.com/apexfest/checkin/internal/storage/memory"
	redisstorage "github.com/apexfest/checkin/internal/storage/redis"
	"github.com/apexfest/checkin/internal/storage/sqldb"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Observability
	Logger  *slog.Logger
	Metrics *metrics.Manager

	// Publisher receives every domain notification, including the live
	// leaderboard fan-out
	Publisher notify.Publisher

	// Services
	DirectoryService   *directory.Service
	AuthService        *auth.Service
	LedgerService      *ledger.Service
	LeaderboardService *leaderboard.Service
	HubManager         *live.HubManager
	Broadcaster        *live.Broadcaster

	closers []io.Closer
}

// dependencies are the pieces New resolves from configuration
type dependencies struct {
	storage  storage.Storage
	clock    clock.Clock
	random   random.Random
	external notify.Publisher
	metrics  *metrics.Manager
	auth     auth.Config
	ledger   ledger.Config
	logger   *slog.Logger
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Use no-op logger if not provided
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg == nil {
		cfg = config.New()
	}

	store, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	external, closer, err := newPublisher(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	authCfg := auth.Config{
		Secret:            cfg.SessionSecret,
		SessionDuration:   cfg.SessionDuration,
		AdminPasswordHash: cfg.AdminPasswordHash,
	}

	app := newWithDependencies(dependencies{
		storage:  store,
		clock:    clock.New(),
		random:   random.New(),
		external: external,
		metrics:  metrics.NewManager(metrics.WithMetricsEnabled(cfg.MetricsEnabled)),
		auth:     authCfg,
		ledger:   ledger.Config{Cooldown: cfg.Cooldown},
		logger:   logger,
	})
	if closer != nil {
		app.closers = append(app.closers, closer)
	}
	return app, nil
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "", config.StorageMemory:
		return memory.New(), nil
	case config.StorageRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		return redisstorage.New(redisCfg)
	case config.StorageSQL:
		return sqldb.New(ctx, sqldb.Config{Driver: cfg.SQLDriver, DSN: cfg.SQLDSN})
	default:
		return nil, fmt.Errorf("%w: storage_type %q", config.ErrInvalidConfig, cfg.StorageType)
	}
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (notify.Publisher, io.Closer, error) {
	switch cfg.NotifyType {
	case config.NotifyNone:
		return notify.Nop{}, nil, nil
	case "", config.NotifyLog:
		return notify.NewLogPublisher(logger), nil, nil
	case config.NotifyAMQP:
		publisher, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, nil, err
		}
		return publisher, publisher, nil
	default:
		return nil, nil, fmt.Errorf("%w: notify_type %q", config.ErrInvalidConfig, cfg.NotifyType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(deps dependencies) *App {
	logger := deps.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if deps.external == nil {
		deps.external = notify.Nop{}
	}
	if deps.auth.SessionDuration == 0 {
		deps.auth.SessionDuration = auth.DefaultConfig().SessionDuration
	}

	leaderboardService := leaderboard.New(deps.storage)
	hubManager := live.NewHubManager(logger, deps.metrics.StreamClients)
	broadcaster := live.NewBroadcaster(hubManager, leaderboardService, deps.clock, logger)
	publisher := notify.Multi{deps.external, broadcaster}

	directoryService := directory.New(deps.storage, deps.clock, deps.random, publisher, deps.metrics, logger)
	authService := auth.New(directoryService, deps.clock, deps.random, deps.auth, logger)
	ledgerService := ledger.New(deps.storage, deps.clock, deps.random, publisher, deps.metrics, logger, deps.ledger)

	return &App{
		Storage:            deps.storage,
		Clock:              deps.clock,
		Random:             deps.random,
		Logger:             logger,
		Metrics:            deps.metrics,
		Publisher:          publisher,
		DirectoryService:   directoryService,
		AuthService:        authService,
		LedgerService:      ledgerService,
		LeaderboardService: leaderboardService,
		HubManager:         hubManager,
		Broadcaster:        broadcaster,
		closers:            []io.Closer{deps.storage},
	}
}

// Close stops live streams and releases storage and broker connections
func (a *App) Close() error {
	a.HubManager.CloseAll()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
