package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	Storage     StorageConfig
	Redis       RedisConfig
	DB          DBConfig
	Remote      RemoteConfig
	JWT         JWTConfig
	Collections CollectionsConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	if cfg.Storage.Driver == StorageDriverRedis && cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("%s or %s is required for the redis storage driver", EnvRedisURL, EnvRedisAddr)
	}
	if cfg.Storage.Driver == StorageDriverSQL && cfg.DB.DSN == "" {
		return nil, fmt.Errorf("%s is required for the sql storage driver", EnvDBDSN)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StorageConfig selects the backend holding guest collections.
type StorageConfig struct {
	Driver string        `envconfig:"STOREFRONT_STORAGE_DRIVER" default:"redis"`
	TTL    time.Duration `envconfig:"STOREFRONT_STORAGE_TTL" default:"720h"`
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(s.Driver) {
	case StorageDriverRedis, StorageDriverSQL, StorageDriverMemory:
		return nil
	}
	return fmt.Errorf("unsupported storage driver %q", s.Driver)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	AutoMigrate     bool          `envconfig:"STOREFRONT_DB_AUTO_MIGRATE" default:"false"`
}

// RemoteConfig points at the storefront REST API that owns authenticated collections.
type RemoteConfig struct {
	BaseURL   string        `envconfig:"STOREFRONT_REMOTE_BASE_URL" required:"true"`
	Timeout   time.Duration `envconfig:"STOREFRONT_REMOTE_TIMEOUT" default:"10s"`
	ChromeTLS bool          `envconfig:"STOREFRONT_REMOTE_CHROME_TLS" default:"false"`
}

type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER"`
}

// CollectionsConfig tunes reconciler behaviour.
type CollectionsConfig struct {
	CompareLimit  int           `envconfig:"STOREFRONT_COMPARE_LIMIT" default:"4"`
	ErrorTTL      time.Duration `envconfig:"STOREFRONT_COLLECTIONS_ERROR_TTL" default:"3s"`
	ReflectWait   time.Duration `envconfig:"STOREFRONT_COLLECTIONS_REFLECT_WAIT" default:"1500ms"`
	PollInterval  time.Duration `envconfig:"STOREFRONT_COLLECTIONS_POLL_INTERVAL" default:"50ms"`
	IdleTTL       time.Duration `envconfig:"STOREFRONT_COLLECTIONS_IDLE_TTL" default:"30m"`
	SweepInterval time.Duration `envconfig:"STOREFRONT_COLLECTIONS_SWEEP_INTERVAL" default:"1m"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

// RateLimitConfig throttles collection traffic per device and per client IP.
// Limits only apply when the redis storage driver is active.
type RateLimitConfig struct {
	Window      time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_WINDOW" default:"1m"`
	DeviceLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_DEVICE" default:"120"`
	IPLimit     int           `envconfig:"STOREFRONT_RATE_LIMIT_IP" default:"600"`
}
