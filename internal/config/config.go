// Package config provides configuration management for SquadKeeper.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Provider drivers.
const (
	ProviderHTTP = "http"
	ProviderMock = "mock"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Lease    LeaseConfig    `mapstructure:"lease"`
	Provider ProviderConfig `mapstructure:"provider"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Tenants  TenantsConfig  `mapstructure:"tenants"`
	Log      LogConfig      `mapstructure:"log"`
	River    RiverConfig    `mapstructure:"river"`
	Security SecurityConfig `mapstructure:"security"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// ValidateRequests turns on OpenAPI request validation.
	ValidateRequests bool `mapstructure:"validate_requests"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// One pool is shared by the store and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// StoreConfig selects the deployment store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory or postgres
}

// RedisConfig enables the cross-instance account lease.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LeaseConfig bounds per-account lease acquisition.
type LeaseConfig struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Wait time.Duration `mapstructure:"wait"`
}

// ProviderConfig configures the provisioning API client.
type ProviderConfig struct {
	Driver          string        `mapstructure:"driver"` // http or mock
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	// RequestTimeout caps every HTTP call at the client level. Zero disables
	// it; when set it must cover the largest per-call timeout below.
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	CreateTimeout   time.Duration `mapstructure:"create_timeout"`
	RoutingTimeout  time.Duration `mapstructure:"routing_timeout"`
	DeleteTimeout   time.Duration `mapstructure:"delete_timeout"`
	HealthInterval  time.Duration `mapstructure:"health_interval"`
}

// ResolverConfig tunes effective template resolution.
type ResolverConfig struct {
	BuiltInWinsOnTie bool `mapstructure:"built_in_wins_on_tie"`
}

// TenantsConfig points at the runtime context file.
type TenantsConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	Enabled                     bool          `mapstructure:"enabled"`
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
	// ReconcileInterval schedules the periodic scan; zero disables it.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	// JWTVerificationKeys are HMAC keys used to verify bearer tokens.
	// The token subject becomes the recorded actor.
	JWTVerificationKeys []string `mapstructure:"jwt_verification_keys"`
	// RequireAuth rejects write calls without a valid token.
	RequireAuth bool `mapstructure:"require_auth"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	// TenantPoolSize caps concurrent swaps during bulk runs.
	TenantPoolSize int `mapstructure:"tenant_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Nested keys map to env names with "_": database.max_conns → DATABASE_MAX_CONNS.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path
// searches the default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/squadkeeper")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	cfg.warnUnsafe()

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store.Driver)
	}
	switch c.Provider.Driver {
	case ProviderMock:
	case ProviderHTTP:
		if c.Provider.BaseURL == "" {
			return fmt.Errorf("provider.base_url is required when provider.driver is %q", ProviderHTTP)
		}
	default:
		return fmt.Errorf("provider.driver must be %q or %q, got %q", ProviderHTTP, ProviderMock, c.Provider.Driver)
	}
	if c.River.Enabled && c.Store.Driver != StorePostgres {
		return fmt.Errorf("river.enabled requires store.driver %q", StorePostgres)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must not be empty when redis.enabled")
	}
	if c.Provider.RequestTimeout > 0 && c.Provider.RequestTimeout < c.Provider.maxCallTimeout() {
		return fmt.Errorf("provider.request_timeout (%s) must be at least the largest per-call timeout (%s)",
			c.Provider.RequestTimeout, c.Provider.maxCallTimeout())
	}
	if c.Redis.Enabled && c.Lease.TTL <= c.Provider.swapBudget() {
		return fmt.Errorf("lease.ttl (%s) must exceed create + routing + delete timeouts (%s)",
			c.Lease.TTL, c.Provider.swapBudget())
	}
	if c.Worker.TenantPoolSize <= 0 {
		return fmt.Errorf("worker.tenant_pool_size must be positive")
	}
	if c.Lease.Wait <= 0 {
		return fmt.Errorf("lease.wait must be positive")
	}
	if c.Security.RequireAuth && len(c.Security.JWTVerificationKeys) == 0 {
		return fmt.Errorf("security.require_auth needs at least one jwt verification key")
	}
	return nil
}

// maxCallTimeout is the longest deadline the orchestrator puts on one call.
func (p ProviderConfig) maxCallTimeout() time.Duration {
	return max(p.CreateTimeout, p.RoutingTimeout, p.DeleteTimeout)
}

// swapBudget is the longest a single swap can hold the account lease.
func (p ProviderConfig) swapBudget() time.Duration {
	return p.CreateTimeout + p.RoutingTimeout + p.DeleteTimeout
}

func (c *Config) warnUnsafe() {
	if c.Provider.Driver == ProviderMock {
		logBootstrapWarn("provider.driver is mock; no real resources will be provisioned")
	}
	if c.Store.Driver == StoreMemory {
		logBootstrapWarn("store.driver is memory; deployments and history are lost on restart")
	}
	if c.Provider.Driver == ProviderHTTP && c.Provider.APIKey == "" {
		logBootstrapWarn("provider.api_key is empty", zap.String("base_url", c.Provider.BaseURL))
	}
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.validate_requests", true)

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "squadkeeper")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "squadkeeper")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("store.driver", StoreMemory)

	// Redis lease
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("lease.ttl", "5m")
	v.SetDefault("lease.wait", "10s")

	// Provider
	v.SetDefault("provider.driver", ProviderMock)
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.request_timeout", "90s")
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.initial_interval", "200ms")
	v.SetDefault("provider.max_interval", "5s")
	v.SetDefault("provider.create_timeout", "60s")
	v.SetDefault("provider.routing_timeout", "15s")
	v.SetDefault("provider.delete_timeout", "30s")
	v.SetDefault("provider.health_interval", "30s")

	v.SetDefault("resolver.built_in_wins_on_tie", true)
	v.SetDefault("tenants.file", "")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.enabled", false)
	v.SetDefault("river.max_workers", 4)
	v.SetDefault("river.completed_job_retention_period", "24h")
	v.SetDefault("river.reconcile_interval", "0s")

	// Security
	v.SetDefault("security.jwt_verification_keys", []string{})
	v.SetDefault("security.require_auth", false)

	// Worker pool
	v.SetDefault("worker.tenant_pool_size", 8)
}
