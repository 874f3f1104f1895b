package config

// EnvPrefix namespaces every environment variable consumed by the platform.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "ROUTEPILOT_DB_DSN"
	EnvDBHost = "ROUTEPILOT_DB_HOST"
	EnvDBUser = "ROUTEPILOT_DB_USER"
	EnvDBName = "ROUTEPILOT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
