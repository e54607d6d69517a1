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
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Gateway      GatewayConfig
	Billing      BillingConfig
	Pricing      PricingConfig
	Jobs         JobsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CUIDLY_APP_ENV" required:"true"`
	Port         string `envconfig:"CUIDLY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CUIDLY_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CUIDLY_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CUIDLY_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"CUIDLY_CORS_ORIGINS" default:"http://localhost:3000,https://cuidly.com,https://www.cuidly.com"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CUIDLY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CUIDLY_DB_DSN"`
	Driver string `envconfig:"CUIDLY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CUIDLY_DB_HOST"`
	LegacyPort     int    `envconfig:"CUIDLY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CUIDLY_DB_USER"`
	LegacyPassword string `envconfig:"CUIDLY_DB_PASSWORD"`
	LegacyName     string `envconfig:"CUIDLY_DB_NAME"`
	LegacySSLMode  string `envconfig:"CUIDLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CUIDLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CUIDLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CUIDLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CUIDLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"CUIDLY_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CUIDLY_REDIS_URL"`
	Address      string        `envconfig:"CUIDLY_REDIS_ADDR"`
	Password     string        `envconfig:"CUIDLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"CUIDLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CUIDLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CUIDLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CUIDLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CUIDLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CUIDLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig validates access tokens minted by the identity service.
type JWTConfig struct {
	Secret string        `envconfig:"CUIDLY_JWT_SECRET" required:"true"`
	Issuer string        `envconfig:"CUIDLY_JWT_ISSUER" required:"true"`
	Leeway time.Duration `envconfig:"CUIDLY_JWT_LEEWAY" default:"30s"`
}

// RateLimitConfig throttles coupon code probing.
type RateLimitConfig struct {
	CouponWindow    time.Duration `envconfig:"CUIDLY_COUPON_RATE_LIMIT_WINDOW" default:"1m"`
	CouponIPLimit   int           `envconfig:"CUIDLY_COUPON_RATE_LIMIT_IP" default:"30"`
	CouponUserLimit int           `envconfig:"CUIDLY_COUPON_RATE_LIMIT_USER" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite           bool `envconfig:"CUIDLY_USE_SQLITE" default:"false"`
	AutoMigrate         bool `envconfig:"CUIDLY_AUTO_MIGRATE" default:"false"`
	TriggerTrialEnabled bool `envconfig:"CUIDLY_TRIGGER_TRIAL_ENABLED" default:"false"`
}

type GatewayConfig struct {
	BaseURL       string        `envconfig:"CUIDLY_GATEWAY_BASE_URL" default:"https://api-sandbox.asaas.com/v3"`
	APIKey        string        `envconfig:"CUIDLY_GATEWAY_API_KEY"`
	WebhookSecret string        `envconfig:"CUIDLY_GATEWAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"CUIDLY_GATEWAY_TIMEOUT" default:"15s"`

	BreakerFailureThreshold uint32        `envconfig:"CUIDLY_GATEWAY_BREAKER_FAILURES" default:"5"`
	BreakerOpenTimeout      time.Duration `envconfig:"CUIDLY_GATEWAY_BREAKER_OPEN_TIMEOUT" default:"30s"`
	BreakerHalfOpenRequests uint32        `envconfig:"CUIDLY_GATEWAY_BREAKER_HALF_OPEN_REQUESTS" default:"1"`
}

// BillingConfig holds the lifecycle knobs that used to be hard-coded.
type BillingConfig struct {
	TrialGracePeriod   time.Duration `envconfig:"CUIDLY_TRIAL_GRACE_PERIOD" default:"72h"`
	RetryBackoff       time.Duration `envconfig:"CUIDLY_RETRY_BACKOFF" default:"5m"`
	RetryMaxAttempts   int           `envconfig:"CUIDLY_RETRY_MAX_ATTEMPTS" default:"10"`
	SweepBatchSize     int           `envconfig:"CUIDLY_SWEEP_BATCH_SIZE" default:"100"`
	TriggerTrialDays   int           `envconfig:"CUIDLY_TRIGGER_TRIAL_DAYS" default:"7"`
	FreePeriodEndYear  int           `envconfig:"CUIDLY_FREE_PERIOD_END_YEAR" default:"2099"`
	IdempotencyKeyTTL  time.Duration `envconfig:"CUIDLY_IDEMPOTENCY_KEY_TTL" default:"24h"`
	WebhookDedupTTL    time.Duration `envconfig:"CUIDLY_WEBHOOK_DEDUP_TTL" default:"720h"`
	PaymentDescription string        `envconfig:"CUIDLY_PAYMENT_DESCRIPTION" default:"Cuidly subscription"`
}

// PricingConfig is the gross price of every paid plan/interval pair.
type PricingConfig struct {
	FamilyPlusMonth   decimal.Decimal `envconfig:"CUIDLY_PRICE_FAMILY_PLUS_MONTH" default:"47.00"`
	FamilyPlusQuarter decimal.Decimal `envconfig:"CUIDLY_PRICE_FAMILY_PLUS_QUARTER" default:"94.00"`
	FamilyPlusYear    decimal.Decimal `envconfig:"CUIDLY_PRICE_FAMILY_PLUS_YEAR" default:"297.00"`
	NannyProMonth     decimal.Decimal `envconfig:"CUIDLY_PRICE_NANNY_PRO_MONTH" default:"19.90"`
	NannyProYear      decimal.Decimal `envconfig:"CUIDLY_PRICE_NANNY_PRO_YEAR" default:"119.00"`
}

type JobsConfig struct {
	CronSecret    string        `envconfig:"CUIDLY_CRON_SECRET"`
	Interval      time.Duration `envconfig:"CUIDLY_CRON_INTERVAL" default:"15m"`
	LockKey       string        `envconfig:"CUIDLY_CRON_LOCK_KEY" default:"cuidly:cron:billing"`
	LockTTL       time.Duration `envconfig:"CUIDLY_CRON_LOCK_TTL" default:"14m"`
	MetricsListen string        `envconfig:"CUIDLY_CRON_METRICS_ADDR" default:":9091"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CUIDLY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CUIDLY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CUIDLY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BillingTopic string `envconfig:"CUIDLY_PUBSUB_BILLING_TOPIC" default:"cuidly-billing-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CUIDLY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	Concurrency    int           `envconfig:"CUIDLY_OUTBOX_PUBLISH_CONCURRENCY" default:"4"`
	PollInterval   time.Duration `envconfig:"CUIDLY_OUTBOX_PUBLISH_POLL_INTERVAL" default:"500ms"`
	PublishTimeout time.Duration `envconfig:"CUIDLY_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	MaxAttempts    int           `envconfig:"CUIDLY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CUIDLY_OUTBOX_RETENTION" default:"720h"`
	MetricsListen  string        `envconfig:"CUIDLY_OUTBOX_METRICS_ADDR" default:":9092"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
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
