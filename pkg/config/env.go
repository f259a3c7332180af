package config

const EnvPrefix = "SHELFWISE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "SHELFWISE_APP_ENV"
	EnvPort     = "SHELFWISE_APP_PORT"
	EnvLogLevel = "SHELFWISE_LOG_LEVEL"

	EnvDBDSN  = "SHELFWISE_DB_DSN"
	EnvDBHost = "SHELFWISE_DB_HOST"
	EnvDBUser = "SHELFWISE_DB_USER"
	EnvDBName = "SHELFWISE_DB_NAME"

	EnvRedisURL = "SHELFWISE_REDIS_URL"

	EnvJWTSecret = "SHELFWISE_JWT_SECRET"
	EnvJWTIssuer = "SHELFWISE_JWT_ISSUER"

	EnvGatewayBaseURL       = "SHELFWISE_GATEWAY_BASE_URL"
	EnvGatewaySecretKey     = "SHELFWISE_GATEWAY_SECRET_KEY"
	EnvGatewayWebhookSecret = "SHELFWISE_GATEWAY_WEBHOOK_SECRET"
	EnvGatewayCurrency      = "SHELFWISE_GATEWAY_CURRENCY"
	EnvGatewayTimeout       = "SHELFWISE_GATEWAY_TIMEOUT"

	EnvWebhookDedupTTL = "SHELFWISE_WEBHOOK_DEDUP_TTL"
	EnvCronInterval    = "SHELFWISE_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
