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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Split        SplitConfig
	Ledger       LedgerConfig
	Anchor       AnchorConfig
	Square       SquareConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Split.Commission(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string   `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"MARKETPLACE_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETPLACE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETPLACE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETPLACE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETPLACE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only verifies tokens; minting happens in the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

type SplitConfig struct {
	CommissionPercent string `envconfig:"MARKETPLACE_SPLIT_COMMISSION_PERCENT" default:"10"`
	MinorUnits        int32  `envconfig:"MARKETPLACE_SPLIT_MINOR_UNITS" default:"2"`
}

// Commission parses the configured platform commission; it must lie in [0,100].
func (s SplitConfig) Commission() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(s.CommissionPercent))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", EnvSplitCommissionPercent, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%s must be between 0 and 100", EnvSplitCommissionPercent)
	}
	return rate, nil
}

type LedgerConfig struct {
	BaseURL string        `envconfig:"MARKETPLACE_LEDGER_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"MARKETPLACE_LEDGER_API_KEY"`
	Timeout time.Duration `envconfig:"MARKETPLACE_LEDGER_TIMEOUT" default:"10s"`
	Network string        `envconfig:"MARKETPLACE_LEDGER_NETWORK" default:"testnet"`
}

type AnchorConfig struct {
	BatchSize    int           `envconfig:"MARKETPLACE_ANCHOR_BATCH_SIZE" default:"25"`
	PollInterval time.Duration `envconfig:"MARKETPLACE_ANCHOR_POLL_INTERVAL" default:"2s"`
	MaxAttempts  int           `envconfig:"MARKETPLACE_ANCHOR_MAX_ATTEMPTS" default:"12"`
	BaseBackoff  time.Duration `envconfig:"MARKETPLACE_ANCHOR_BASE_BACKOFF" default:"30s"`
	MaxBackoff   time.Duration `envconfig:"MARKETPLACE_ANCHOR_MAX_BACKOFF" default:"1h"`
	Lease        time.Duration `envconfig:"MARKETPLACE_ANCHOR_LEASE" default:"2m"`
}

// SquareConfig carries gateway credentials. NotificationURL is the public webhook URL
// Square signs together with the body.
type SquareConfig struct {
	AccessToken     string        `envconfig:"MARKETPLACE_SQUARE_ACCESS_TOKEN"`
	WebhookSecret   string        `envconfig:"MARKETPLACE_SQUARE_WEBHOOK_SECRET"`
	Env             string        `envconfig:"MARKETPLACE_SQUARE_ENV" default:"sandbox"`
	NotificationURL string        `envconfig:"MARKETPLACE_SQUARE_NOTIFICATION_URL"`
	WebhookDedupTTL time.Duration `envconfig:"MARKETPLACE_SQUARE_WEBHOOK_DEDUP_TTL" default:"72h"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID       string `envconfig:"MARKETPLACE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"MARKETPLACE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_TOPIC" default:"marketplace-orders"`
	OrdersSubscription string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_SUBSCRIPTION"`
	DisputesTopic      string `envconfig:"MARKETPLACE_PUBSUB_DISPUTES_TOPIC" default:"marketplace-disputes"`
	LedgerTopic        string `envconfig:"MARKETPLACE_PUBSUB_LEDGER_TOPIC" default:"marketplace-ledger"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"MARKETPLACE_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MARKETPLACE_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"MARKETPLACE_CRON_LOCK_TTL" default:"5m"`
}

// RateLimitConfig is off until an operator sets a per-user limit.
type RateLimitConfig struct {
	Window time.Duration `envconfig:"MARKETPLACE_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"MARKETPLACE_RATE_LIMIT_PER_USER" default:"0"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
