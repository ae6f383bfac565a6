package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Orders        OrdersConfig
	Reference     ReferenceConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Housekeeping  HousekeepingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SALESLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"SALESLEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SALESLEDGER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SALESLEDGER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SALESLEDGER_LOG_WARN_STACK" default:"false"`
	// MetricsPort serves /metrics for the background workers; empty disables.
	MetricsPort string `envconfig:"SALESLEDGER_METRICS_PORT" default:"9090"`
	// CORSOrigins is a comma separated allow list.
	CORSOrigins string `envconfig:"SALESLEDGER_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type DBConfig struct {
	DSN string `envconfig:"SALESLEDGER_DB_DSN"`

	Host     string `envconfig:"SALESLEDGER_DB_HOST"`
	Port     int    `envconfig:"SALESLEDGER_DB_PORT" default:"5432"`
	User     string `envconfig:"SALESLEDGER_DB_USER"`
	Password string `envconfig:"SALESLEDGER_DB_PASSWORD"`
	Name     string `envconfig:"SALESLEDGER_DB_NAME"`
	SSLMode  string `envconfig:"SALESLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SALESLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SALESLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SALESLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SALESLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// StatementTimeout bounds every store call made through a request context.
	StatementTimeout time.Duration `envconfig:"SALESLEDGER_DB_STATEMENT_TIMEOUT" default:"10s"`
	// SlowQuery logs statements slower than this at warn; 0 disables.
	SlowQuery time.Duration `envconfig:"SALESLEDGER_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SALESLEDGER_REDIS_URL" required:"true"`
	Password     string        `envconfig:"SALESLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"SALESLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SALESLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SALESLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SALESLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SALESLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SALESLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"SALESLEDGER_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"SALESLEDGER_JWT_ISSUER" default:"salesledger"`
	ExpirationMinutes      int    `envconfig:"SALESLEDGER_JWT_EXPIRATION_MINUTES" default:"15"`
	RefreshTokenTTLMinutes int    `envconfig:"SALESLEDGER_REFRESH_TOKEN_TTL_MINUTES" default:"10080"`
}

func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SALESLEDGER_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SALESLEDGER_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SALESLEDGER_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SALESLEDGER_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SALESLEDGER_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"SALESLEDGER_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginIPLimit       int           `envconfig:"SALESLEDGER_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit    int           `envconfig:"SALESLEDGER_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	RegisterWindow     time.Duration `envconfig:"SALESLEDGER_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"1h"`
	RegisterIPLimit    int           `envconfig:"SALESLEDGER_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"10"`
	RegisterEmailLimit int           `envconfig:"SALESLEDGER_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
}

type FeatureFlagsConfig struct {
	AutoMigrate       bool `envconfig:"SALESLEDGER_AUTO_MIGRATE" default:"false"`
	AllowRegistration bool `envconfig:"SALESLEDGER_FEATURE_ALLOW_REGISTRATION" default:"false"`
}

type OrdersConfig struct {
	IDAttempts int `envconfig:"SALESLEDGER_ORDERS_ID_ATTEMPTS" default:"5"`
	// ListLimit caps order listings; 0 lists every order.
	ListLimit int `envconfig:"SALESLEDGER_ORDERS_LIST_LIMIT" default:"0"`
}

type ReferenceConfig struct {
	SearchLimit        int `envconfig:"SALESLEDGER_REFERENCE_SEARCH_LIMIT" default:"200"`
	ProductSearchLimit int `envconfig:"SALESLEDGER_REFERENCE_PRODUCT_SEARCH_LIMIT" default:"50"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SALESLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SALESLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SALESLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrderEventsTopic      string `envconfig:"SALESLEDGER_PUBSUB_ORDER_EVENTS_TOPIC" default:"sl-order-events"`
	AnalyticsSubscription string `envconfig:"SALESLEDGER_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"sl-order-events-analytics"`
	// IdempotencyTTL is how long a consumer remembers handled event ids.
	IdempotencyTTL time.Duration `envconfig:"SALESLEDGER_PUBSUB_IDEMPOTENCY_TTL" default:"168h"`
	// ClaimLease bounds how long an in-flight claim survives a crashed worker.
	ClaimLease time.Duration `envconfig:"SALESLEDGER_PUBSUB_CLAIM_LEASE" default:"10m"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"SALESLEDGER_BIGQUERY_DATASET" default:"salesledger"`
	SalesEventsTable string `envconfig:"SALESLEDGER_BIGQUERY_SALES_EVENTS_TABLE" default:"sales_events"`
	// CreateTables provisions a missing sales events table instead of failing.
	CreateTables bool `envconfig:"SALESLEDGER_BIGQUERY_CREATE_TABLES" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SALESLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SALESLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SALESLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// PublishLanes bounds how many aggregates are published concurrently.
	PublishLanes   int `envconfig:"SALESLEDGER_OUTBOX_PUBLISH_LANES" default:"8"`
}

// HousekeepingConfig drives the retention jobs run by cmd/housekeeper.
type HousekeepingConfig struct {
	Interval            time.Duration `envconfig:"SALESLEDGER_HOUSEKEEPING_INTERVAL" default:"24h"`
	LockTTL             time.Duration `envconfig:"SALESLEDGER_HOUSEKEEPING_LOCK_TTL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"SALESLEDGER_HOUSEKEEPING_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"SALESLEDGER_HOUSEKEEPING_DLQ_RETENTION_DAYS" default:"90"`
}

func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
