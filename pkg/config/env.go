package config

const EnvPrefix = "MARKETPLACE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "MARKETPLACE_APP_ENV"
	EnvPort      = "MARKETPLACE_APP_PORT"
	EnvLogLevel  = "MARKETPLACE_LOG_LEVEL"
	EnvDBDSN     = "MARKETPLACE_DB_DSN"
	EnvDBHost    = "MARKETPLACE_DB_HOST"
	EnvDBUser    = "MARKETPLACE_DB_USER"
	EnvDBName    = "MARKETPLACE_DB_NAME"
	EnvRedisURL  = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer = "MARKETPLACE_JWT_ISSUER"

	EnvSplitCommissionPercent = "MARKETPLACE_SPLIT_COMMISSION_PERCENT"
	EnvLedgerBaseURL          = "MARKETPLACE_LEDGER_BASE_URL"
	EnvAnchorMaxAttempts      = "MARKETPLACE_ANCHOR_MAX_ATTEMPTS"
	EnvSquareEnv              = "MARKETPLACE_SQUARE_ENV"
	EnvGCPProjectID           = "MARKETPLACE_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic      = "MARKETPLACE_PUBSUB_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
