package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Retention    RetentionConfig
	FeatureFlags FeatureFlagsConfig
	Ops          OpsConfig
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
	Env          string `envconfig:"PMS_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"PMS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PMS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PMS_SERVICE_KIND" default:"audit-relay"`
}

type DBConfig struct {
	DSN    string `envconfig:"PMS_DB_DSN"`
	Driver string `envconfig:"PMS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PMS_DB_HOST"`
	LegacyPort     int    `envconfig:"PMS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PMS_DB_USER"`
	LegacyPassword string `envconfig:"PMS_DB_PASSWORD"`
	LegacyName     string `envconfig:"PMS_DB_NAME"`
	LegacySSLMode  string `envconfig:"PMS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PMS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PMS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PMS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PMS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PMS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PMS_REDIS_ADDR"`
	Password     string        `envconfig:"PMS_REDIS_PASSWORD"`
	DB           int           `envconfig:"PMS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PMS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PMS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PMS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PMS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PMS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PMS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"PMS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PMS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DefaultTopic    string `envconfig:"PMS_PUBSUB_DEFAULT_TOPIC" default:"pms.audit.events"`
	DeadLetterTopic string `envconfig:"PMS_PUBSUB_DLQ_TOPIC" default:"pms.audit.events.dlq"`
}

// OutboxConfig carries the relay knobs. Defaults mirror the production
// deployment: 50-row batches, five attempts, a 30s fixed reschedule delay.
type OutboxConfig struct {
	BatchSize      int           `envconfig:"PMS_OUTBOX_BATCH_SIZE" default:"50"`
	MaxRetries     int           `envconfig:"PMS_OUTBOX_MAX_RETRIES" default:"5"`
	RetryDelay     time.Duration `envconfig:"PMS_OUTBOX_RETRY_DELAY" default:"30s"`
	SendTimeout    time.Duration `envconfig:"PMS_OUTBOX_SEND_TIMEOUT" default:"2s"`
	StaleThreshold time.Duration `envconfig:"PMS_OUTBOX_STALE_THRESHOLD" default:"10m"`
	PollInterval   time.Duration `envconfig:"PMS_OUTBOX_POLL_INTERVAL" default:"5s"`
}

type RetentionConfig struct {
	OutboxDays     int           `envconfig:"PMS_RETENTION_OUTBOX_DAYS" default:"30"`
	DeadLetterDays int           `envconfig:"PMS_RETENTION_DEAD_LETTER_DAYS" default:"90"`
	CronInterval   time.Duration `envconfig:"PMS_RETENTION_CRON_INTERVAL" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PMS_AUTO_MIGRATE" default:"false"`
}

type OpsConfig struct {
	Port string `envconfig:"PMS_OPS_PORT" default:"9090"`
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
