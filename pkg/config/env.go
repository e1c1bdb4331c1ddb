package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const defaultSQLiteDSN = "file:storefront.db?_busy_timeout=5000"

const (
	EnvAppEnv       = "STOREFRONT_APP_ENV"
	EnvPort         = "STOREFRONT_APP_PORT"
	EnvDBDSN        = "STOREFRONT_DB_DSN"
	EnvDBHost       = "STOREFRONT_DB_HOST"
	EnvDBUser       = "STOREFRONT_DB_USER"
	EnvDBName       = "STOREFRONT_DB_NAME"
	EnvDBPassword   = "STOREFRONT_DB_PASSWORD"
	EnvUseSQLite    = "STOREFRONT_USE_SQLITE"
	EnvRedisURL     = "STOREFRONT_REDIS_URL"
	EnvJWTSecret    = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer    = "STOREFRONT_JWT_ISSUER"
	EnvCurrency     = "STOREFRONT_CURRENCY"
	EnvShippingFlat = "STOREFRONT_SHIPPING_FLAT"
	EnvPolicyTTL    = "STOREFRONT_POLICY_CACHE_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
