package config

const (
	EnvPrefix = "SETTLEMENT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultSQLiteDSN = "file:settlement.db?cache=shared&_busy_timeout=5000"

	EnvAppEnv    = "SETTLEMENT_APP_ENV"
	EnvPort      = "SETTLEMENT_APP_PORT"
	EnvLogLevel  = "SETTLEMENT_LOG_LEVEL"
	EnvDBDSN     = "SETTLEMENT_DB_DSN"
	EnvDBHost    = "SETTLEMENT_DB_HOST"
	EnvDBUser    = "SETTLEMENT_DB_USER"
	EnvDBName    = "SETTLEMENT_DB_NAME"
	EnvRedisURL  = "SETTLEMENT_REDIS_URL"
	EnvJWTSecret = "SETTLEMENT_JWT_SECRET"
	EnvJWTIssuer = "SETTLEMENT_JWT_ISSUER"
	EnvUseSQLite = "SETTLEMENT_USE_SQLITE"

	EnvGatewayServerKey  = "SETTLEMENT_GATEWAY_SERVER_KEY"
	EnvShippingAPIKey    = "SETTLEMENT_SHIPPING_API_KEY"
	EnvCORSOrigins       = "SETTLEMENT_CORS_ALLOWED_ORIGINS"
	EnvVATRate           = "SETTLEMENT_VAT_RATE"
	EnvAdminFeeRate      = "SETTLEMENT_ADMIN_FEE_RATE"
	EnvMinimumWithdrawal = "SETTLEMENT_MINIMUM_WITHDRAWAL"
	EnvOrderTTL          = "SETTLEMENT_ORDER_TTL"
	EnvCronInterval      = "SETTLEMENT_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
