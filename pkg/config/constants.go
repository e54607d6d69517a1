package config

const (
	EnvPrefix = "CUIDLY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv     = "CUIDLY_APP_ENV"
	EnvDBDSN      = "CUIDLY_DB_DSN"
	EnvDBHost     = "CUIDLY_DB_HOST"
	EnvDBUser     = "CUIDLY_DB_USER"
	EnvDBName     = "CUIDLY_DB_NAME"
	EnvJWTSecret  = "CUIDLY_JWT_SECRET"
	EnvJWTIssuer  = "CUIDLY_JWT_ISSUER"
	EnvUseSQLite  = "CUIDLY_USE_SQLITE"
	EnvGraceTrial = "CUIDLY_TRIAL_GRACE_PERIOD"
	EnvBackoff    = "CUIDLY_RETRY_BACKOFF"
	EnvPriceFPM   = "CUIDLY_PRICE_FAMILY_PLUS_MONTH"

	defaultSQLiteDSN = "file:cuidly.db?cache=shared&_busy_timeout=5000"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
