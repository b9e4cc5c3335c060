package config

const (
	EnvPrefix = "STOCKLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

const (
	EnvAppEnv            = "STOCKLEDGER_APP_ENV"
	EnvDBDSN             = "STOCKLEDGER_DB_DSN"
	EnvDBHost            = "STOCKLEDGER_DB_HOST"
	EnvDBUser            = "STOCKLEDGER_DB_USER"
	EnvDBName            = "STOCKLEDGER_DB_NAME"
	EnvRedisURL          = "STOCKLEDGER_REDIS_URL"
	EnvUseSQLite         = "STOCKLEDGER_USE_SQLITE"
	EnvApprovalThreshold = "STOCKLEDGER_APPROVAL_THRESHOLD"
	EnvLockBackend       = "STOCKLEDGER_LOCK_BACKEND"
	EnvUrgentOrderCap    = "STOCKLEDGER_URGENT_ORDER_CAP"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
