package config

// EnvPrefix is passed to envconfig; individual fields carry fully qualified
// tags so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "SHIPLINE_APP_ENV"
	EnvLogLevel = "SHIPLINE_LOG_LEVEL"

	EnvDBDSN  = "SHIPLINE_DB_DSN"
	EnvDBHost = "SHIPLINE_DB_HOST"
	EnvDBUser = "SHIPLINE_DB_USER"
	EnvDBName = "SHIPLINE_DB_NAME"

	EnvRedisURL = "SHIPLINE_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
