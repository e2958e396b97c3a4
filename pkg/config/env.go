package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageDriverRedis  = "redis"
	StorageDriverSQL    = "sql"
	StorageDriverMemory = "memory"
)

const (
	EnvAppEnv         = "STOREFRONT_APP_ENV"
	EnvPort           = "STOREFRONT_APP_PORT"
	EnvStorageDriver  = "STOREFRONT_STORAGE_DRIVER"
	EnvRedisURL       = "STOREFRONT_REDIS_URL"
	EnvRedisAddr      = "STOREFRONT_REDIS_ADDR"
	EnvDBDSN          = "STOREFRONT_DB_DSN"
	EnvDBDriver       = "STOREFRONT_DB_DRIVER"
	EnvRemoteBaseURL  = "STOREFRONT_REMOTE_BASE_URL"
	EnvJWTSecret      = "STOREFRONT_JWT_SECRET"
	EnvCompareLimit   = "STOREFRONT_COMPARE_LIMIT"
	EnvErrorTTL       = "STOREFRONT_COLLECTIONS_ERROR_TTL"
	EnvCORSOrigins    = "STOREFRONT_CORS_ORIGINS"
)
