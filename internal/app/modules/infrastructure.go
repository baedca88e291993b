package modules

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/config"
	"squadkeeper.io/keeper/internal/infrastructure"
	"squadkeeper.io/keeper/internal/pkg/lease"
	"squadkeeper.io/keeper/internal/pkg/logger"
	"squadkeeper.io/keeper/internal/pkg/metrics"
	"squadkeeper.io/keeper/internal/pkg/worker"
	"squadkeeper.io/keeper/internal/provider"
	"squadkeeper.io/keeper/internal/repository"
	"squadkeeper.io/keeper/internal/repository/memory"
	"squadkeeper.io/keeper/internal/repository/postgres"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config *config.Config
	// DB is nil with the memory store.
	DB    *infrastructure.DatabaseClients
	Store repository.Store
	// Redis is nil unless redis.enabled.
	Redis       *redis.Client
	Locker      lease.Locker
	Pools       *worker.Pools
	Provider    provider.ResourceProvider
	Contexts    provider.ContextProvider
	Metrics     *metrics.Metrics
	RiverClient *river.Client[pgx.Tx]
}

// NewInfrastructure initializes storage, leases, pools and the provider client.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	infra := &Infrastructure{Config: cfg, Metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			infra.Close()
		}
	}()

	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		infra.DB = db
		if cfg.Database.AutoMigrate {
			if err := db.AutoMigrate(ctx, cfg.River.Enabled); err != nil {
				return nil, fmt.Errorf("auto-migrate: %w", err)
			}
		}
		infra.Store = postgres.New(db.Pool)
	default:
		infra.Store = memory.New()
	}

	if cfg.Redis.Enabled {
		client, err := infrastructure.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		infra.Redis = client
		infra.Locker = lease.NewRedisLocker(client, cfg.Lease.TTL)
	} else {
		infra.Locker = lease.NewLocalLocker()
	}

	pools, err := worker.NewPools(worker.PoolConfig{TenantPoolSize: cfg.Worker.TenantPoolSize})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}
	infra.Pools = pools
	if err := infra.Metrics.RegisterPools(pools); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	infra.Provider, err = newResourceProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	if cfg.Tenants.File != "" {
		contexts, err := provider.LoadStaticContextProvider(cfg.Tenants.File)
		if err != nil {
			return nil, fmt.Errorf("load tenants file: %w", err)
		}
		infra.Contexts = contexts
	} else {
		infra.Contexts = provider.NewStaticContextProvider()
	}

	logger.Info("Infrastructure initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("provider", infra.Provider.Name()),
		zap.Bool("redis_lease", infra.Redis != nil),
	)
	ok = true
	return infra, nil
}

func newResourceProvider(cfg config.ProviderConfig) (provider.ResourceProvider, error) {
	if cfg.Driver == config.ProviderMock {
		return provider.NewMockProvider(), nil
	}
	p, err := provider.NewHTTPProvider(provider.HTTPConfig{
		BaseURL:         cfg.BaseURL,
		APIKey:          cfg.APIKey,
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}, &http.Client{Timeout: cfg.RequestTimeout})
	if err != nil {
		return nil, fmt.Errorf("init http provider: %w", err)
	}
	return p, nil
}

// InitRiver initializes the River client on top of a prepared worker registry.
func (i *Infrastructure) InitRiver(workers *river.Workers, periodic []*river.PeriodicJob) error {
	if i == nil || i.DB == nil || i.Config == nil {
		return fmt.Errorf("river needs the postgres store")
	}
	if err := i.DB.InitRiverClient(workers, periodic, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
