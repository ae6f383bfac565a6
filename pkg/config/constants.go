package config

const (
	EnvPrefix = "SALESLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "SALESLEDGER_APP_ENV"
	EnvPort      = "SALESLEDGER_APP_PORT"
	EnvDBDSN     = "SALESLEDGER_DB_DSN"
	EnvDBHost    = "SALESLEDGER_DB_HOST"
	EnvDBPort    = "SALESLEDGER_DB_PORT"
	EnvDBUser    = "SALESLEDGER_DB_USER"
	EnvDBName    = "SALESLEDGER_DB_NAME"
	EnvRedisURL  = "SALESLEDGER_REDIS_URL"
	EnvJWTSecret = "SALESLEDGER_JWT_SECRET"
	EnvJWTIssuer = "SALESLEDGER_JWT_ISSUER"

	EnvOrdersIDAttempts      = "SALESLEDGER_ORDERS_ID_ATTEMPTS"
	EnvReferenceSearchLimit  = "SALESLEDGER_REFERENCE_SEARCH_LIMIT"
	EnvPubSubOrderEventTopic = "SALESLEDGER_PUBSUB_ORDER_EVENTS_TOPIC"
	EnvAllowRegistration     = "SALESLEDGER_FEATURE_ALLOW_REGISTRATION"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
