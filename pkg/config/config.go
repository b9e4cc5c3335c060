package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	Reservations ReservationsConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKLEDGER_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"STOCKLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKLEDGER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKLEDGER_DB_DSN"`
	Driver string `envconfig:"STOCKLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"STOCKLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"STOCKLEDGER_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKLEDGER_REDIS_URL"`
	Address      string        `envconfig:"STOCKLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKLEDGER_AUTO_MIGRATE" default:"false"`
}

// LedgerConfig carries the business knobs of the movement ledger and the
// picking orchestrator.
type LedgerConfig struct {
	ApprovalThreshold      string        `envconfig:"STOCKLEDGER_APPROVAL_THRESHOLD" default:"1000"`
	JustificationMinLength int           `envconfig:"STOCKLEDGER_JUSTIFICATION_MIN_LENGTH" default:"10"`
	UnavailableNoteMinLen  int           `envconfig:"STOCKLEDGER_UNAVAILABLE_NOTE_MIN_LENGTH" default:"5"`
	UrgentOrderCap         int           `envconfig:"STOCKLEDGER_URGENT_ORDER_CAP" default:"5"`
	LockBackend            string        `envconfig:"STOCKLEDGER_LOCK_BACKEND" default:"local"`
	LockTTL                time.Duration `envconfig:"STOCKLEDGER_LOCK_TTL" default:"30s"`
	LockRetryInterval      time.Duration `envconfig:"STOCKLEDGER_LOCK_RETRY_INTERVAL" default:"25ms"`
}

// Threshold parses the configured approval threshold.
func (l LedgerConfig) Threshold() decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(l.ApprovalThreshold))
	if err != nil {
		return decimal.Zero
	}
	return value
}

// UsesRedisLocks reports whether balance locks must also be taken in redis.
func (l LedgerConfig) UsesRedisLocks() bool {
	return strings.EqualFold(strings.TrimSpace(l.LockBackend), LockBackendRedis)
}

func (l LedgerConfig) validate() error {
	if _, err := decimal.NewFromString(strings.TrimSpace(l.ApprovalThreshold)); err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvApprovalThreshold, err)
	}
	switch strings.ToLower(strings.TrimSpace(l.LockBackend)) {
	case LockBackendLocal, LockBackendRedis:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvLockBackend, LockBackendLocal, LockBackendRedis)
	}
	if l.UrgentOrderCap < 0 {
		return fmt.Errorf("%s must be non-negative", EnvUrgentOrderCap)
	}
	return nil
}

type ReservationsConfig struct {
	DefaultTTL time.Duration `envconfig:"STOCKLEDGER_RESERVATION_TTL" default:"48h"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"STOCKLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"STOCKLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"STOCKLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	ChannelPrefix  string `envconfig:"STOCKLEDGER_OUTBOX_CHANNEL_PREFIX" default:"stockledger"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"STOCKLEDGER_CRON_INTERVAL" default:"5m"`
	OutboxRetentionDays int           `envconfig:"STOCKLEDGER_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"STOCKLEDGER_CRON_DLQ_RETENTION_DAYS" default:"90"`
	ExpiryBatchSize     int           `envconfig:"STOCKLEDGER_CRON_EXPIRY_BATCH_SIZE" default:"200"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:stockledger.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
