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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Gateway      GatewayConfig
	Webhook      WebhookConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Gateway.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHELFWISE_APP_ENV" required:"true"`
	Port         string `envconfig:"SHELFWISE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHELFWISE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHELFWISE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// LogFormat pins production to JSON. Elsewhere it returns "" so the logger
// falls back to SHELFWISE_LOG_FORMAT.
func (a AppConfig) LogFormat() string {
	if a.IsProd() {
		return "json"
	}
	return ""
}

type ServiceConfig struct {
	Kind string `envconfig:"SHELFWISE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHELFWISE_DB_DSN"`
	Driver string `envconfig:"SHELFWISE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHELFWISE_DB_HOST"`
	LegacyPort     int    `envconfig:"SHELFWISE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHELFWISE_DB_USER"`
	LegacyPassword string `envconfig:"SHELFWISE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHELFWISE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHELFWISE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHELFWISE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHELFWISE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHELFWISE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHELFWISE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"SHELFWISE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHELFWISE_REDIS_URL"`
	Address      string        `envconfig:"SHELFWISE_REDIS_ADDR"`
	Password     string        `envconfig:"SHELFWISE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHELFWISE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHELFWISE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHELFWISE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHELFWISE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHELFWISE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHELFWISE_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"SHELFWISE_REDIS_KEY_PREFIX" default:"sw"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SHELFWISE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHELFWISE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SHELFWISE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHELFWISE_AUTO_MIGRATE" default:"false"`
}

// GatewayConfig points at the mobile-money processor.
type GatewayConfig struct {
	BaseURL       string        `envconfig:"SHELFWISE_GATEWAY_BASE_URL" default:"https://api.paystack.co"`
	SecretKey     string        `envconfig:"SHELFWISE_GATEWAY_SECRET_KEY" required:"true"`
	WebhookSecret string        `envconfig:"SHELFWISE_GATEWAY_WEBHOOK_SECRET"`
	Currency      string        `envconfig:"SHELFWISE_GATEWAY_CURRENCY" default:"GHS"`
	CallbackURL   string        `envconfig:"SHELFWISE_GATEWAY_CALLBACK_URL"`
	Timeout       time.Duration `envconfig:"SHELFWISE_GATEWAY_TIMEOUT" default:"15s"`
}

// SigningSecret returns the secret used for webhook HMACs. Providers that do
// not issue a dedicated webhook secret sign with the API secret key.
func (g GatewayConfig) SigningSecret() string {
	if s := strings.TrimSpace(g.WebhookSecret); s != "" {
		return s
	}
	return strings.TrimSpace(g.SecretKey)
}

func (g GatewayConfig) validate() error {
	if _, err := url.ParseRequestURI(g.BaseURL); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvGatewayBaseURL, err)
	}
	if g.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvGatewayTimeout)
	}
	if len(strings.TrimSpace(g.Currency)) != 3 {
		return fmt.Errorf("%s must be an ISO 4217 code", EnvGatewayCurrency)
	}
	return nil
}

type WebhookConfig struct {
	DedupTTL time.Duration `envconfig:"SHELFWISE_WEBHOOK_DEDUP_TTL" default:"24h"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"SHELFWISE_CRON_INTERVAL" default:"1h"`
	ReminderWindow    time.Duration `envconfig:"SHELFWISE_CRON_REMINDER_WINDOW" default:"72h"`
	ReconcileMinAge   time.Duration `envconfig:"SHELFWISE_CRON_RECONCILE_MIN_AGE" default:"15m"`
	ReconcileLimit    int           `envconfig:"SHELFWISE_CRON_RECONCILE_LIMIT" default:"100"`
	ReconcileLookback time.Duration `envconfig:"SHELFWISE_CRON_RECONCILE_LOOKBACK" default:"72h"`
	// NotificationRetention is how long read notifications are kept.
	NotificationRetention time.Duration `envconfig:"SHELFWISE_CRON_NOTIFICATION_RETENTION" default:"2160h"`
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
