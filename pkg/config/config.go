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
	Ledger       LedgerConfig
	Cron         CronConfig
	HTTP         HTTPConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"LEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEDGER_LOG_WARN_STACK" default:"false"`
	MetricsAddr  string `envconfig:"LEDGER_METRICS_ADDR" default:":9090"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEDGER_DB_DSN"`
	Driver string `envconfig:"LEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"LEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEDGER_DB_USER"`
	LegacyPassword string `envconfig:"LEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEDGER_REDIS_URL"`
	Address      string        `envconfig:"LEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"LEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"LEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LEDGER_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LEDGER_AUTO_MIGRATE" default:"false"`
}

// LedgerConfig tunes numbering, edit windows and reconciliation tolerances.
type LedgerConfig struct {
	InvoicePrefix        string        `envconfig:"LEDGER_INVOICE_PREFIX" default:"INV-"`
	InvoiceStartNumber   int64         `envconfig:"LEDGER_INVOICE_START_NUMBER" default:"1001"`
	NumberMaxRetries     int           `envconfig:"LEDGER_NUMBER_MAX_RETRIES" default:"5"`
	EditAllowanceWindow  time.Duration `envconfig:"LEDGER_EDIT_ALLOWANCE_WINDOW" default:"720h"`
	IdempotencyRetention time.Duration `envconfig:"LEDGER_IDEMPOTENCY_RETENTION" default:"2160h"`
	DriftEpsilon         string        `envconfig:"LEDGER_DRIFT_EPSILON" default:"0.005"`
	AllowOverpayment     bool          `envconfig:"LEDGER_ALLOW_OVERPAYMENT" default:"false"`
}

// Epsilon parses DriftEpsilon; validate guarantees it parses after Load.
func (l LedgerConfig) Epsilon() decimal.Decimal {
	eps, err := decimal.NewFromString(strings.TrimSpace(l.DriftEpsilon))
	if err != nil {
		return decimal.New(5, -3)
	}
	return eps
}

func (l LedgerConfig) validate() error {
	if l.InvoiceStartNumber < 1 {
		return fmt.Errorf("%s must be positive", EnvInvoiceStartNumber)
	}
	if l.NumberMaxRetries < 1 {
		return fmt.Errorf("%s must be positive", EnvNumberMaxRetries)
	}
	if l.EditAllowanceWindow < 0 {
		return fmt.Errorf("%s must not be negative", EnvEditAllowance)
	}
	eps, err := decimal.NewFromString(strings.TrimSpace(l.DriftEpsilon))
	if err != nil {
		return fmt.Errorf("invalid drift epsilon %q: %w", l.DriftEpsilon, err)
	}
	if eps.IsNegative() {
		return fmt.Errorf("drift epsilon must not be negative")
	}
	return nil
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"LEDGER_CRON_INTERVAL" default:"5m"`
	LockTTL           time.Duration `envconfig:"LEDGER_CRON_LOCK_TTL" default:"10m"`
	DriftBatchSize    int           `envconfig:"LEDGER_CRON_DRIFT_BATCH_SIZE" default:"200"`
	DriftConcurrency  int           `envconfig:"LEDGER_CRON_DRIFT_CONCURRENCY" default:"4"`
	RepairDrift       bool          `envconfig:"LEDGER_CRON_REPAIR_DRIFT" default:"false"`
	AutoLockBatchSize int           `envconfig:"LEDGER_CRON_AUTOLOCK_BATCH_SIZE" default:"100"`
}

type HTTPConfig struct {
	PaymentsPerMinute     int           `envconfig:"LEDGER_HTTP_PAYMENTS_PER_MINUTE" default:"120"`
	InvoiceIdempotencyTTL time.Duration `envconfig:"LEDGER_HTTP_INVOICE_IDEMPOTENCY_TTL" default:"24h"`
	CORSAllowedOrigins    []string      `envconfig:"LEDGER_HTTP_CORS_ALLOWED_ORIGINS" default:"*"`
	ReadHeaderTimeout     time.Duration `envconfig:"LEDGER_HTTP_READ_HEADER_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"LEDGER_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"LEDGER_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	InvoicesTopic string `envconfig:"LEDGER_PUBSUB_INVOICES_TOPIC" default:"ledger-invoices"`
	PaymentsTopic string `envconfig:"LEDGER_PUBSUB_PAYMENTS_TOPIC" default:"ledger-payments"`
	AlertsTopic   string `envconfig:"LEDGER_PUBSUB_ALERTS_TOPIC" default:"ledger-alerts"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"LEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"LEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"LEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"LEDGER_OUTBOX_RETENTION" default:"720h"`
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
