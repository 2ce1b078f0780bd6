package config

const (
	// EnvPrefix is intentionally empty; every field names its env var in full.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "PMS_APP_ENV"
	EnvDBDSN        = "PMS_DB_DSN"
	EnvDBHost       = "PMS_DB_HOST"
	EnvDBUser       = "PMS_DB_USER"
	EnvDBName       = "PMS_DB_NAME"
	EnvRedisURL     = "PMS_REDIS_URL"
	EnvGCPProjectID = "PMS_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
