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
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
	Shipping     ShippingConfig
	Gateway      GatewayConfig
	Settlement   SettlementConfig
	Cron         CronConfig
	Eventing     EventingConfig
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
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SETTLEMENT_APP_ENV" required:"true"`
	Port         string `envconfig:"SETTLEMENT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SETTLEMENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SETTLEMENT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SETTLEMENT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SETTLEMENT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLEMENT_DB_DSN"`
	Driver string `envconfig:"SETTLEMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLEMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLEMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLEMENT_DB_USER"`
	LegacyPassword string `envconfig:"SETTLEMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLEMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLEMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLEMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLEMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLEMENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SETTLEMENT_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLEMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLEMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLEMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLEMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLEMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only covers verification; tokens are minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"SETTLEMENT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SETTLEMENT_JWT_ISSUER" required:"true"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"SETTLEMENT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SETTLEMENT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SETTLEMENT_AUTO_MIGRATE" default:"false"`
}

type ShippingConfig struct {
	BaseURL  string        `envconfig:"SETTLEMENT_SHIPPING_BASE_URL" default:"https://rajaongkir.komerce.id/api/v1"`
	APIKey   string        `envconfig:"SETTLEMENT_SHIPPING_API_KEY" required:"true"`
	Couriers string        `envconfig:"SETTLEMENT_SHIPPING_COURIERS" default:"jne:sicepat:jnt:pos:tiki"`
	Timeout  time.Duration `envconfig:"SETTLEMENT_SHIPPING_TIMEOUT" default:"10s"`
}

type GatewayConfig struct {
	ServerKey string        `envconfig:"SETTLEMENT_GATEWAY_SERVER_KEY" required:"true"`
	SnapURL   string        `envconfig:"SETTLEMENT_GATEWAY_SNAP_URL" default:"https://app.sandbox.midtrans.com/snap/v1"`
	APIURL    string        `envconfig:"SETTLEMENT_GATEWAY_API_URL" default:"https://api.sandbox.midtrans.com"`
	Timeout   time.Duration `envconfig:"SETTLEMENT_GATEWAY_TIMEOUT" default:"10s"`
	ReplayTTL time.Duration `envconfig:"SETTLEMENT_GATEWAY_REPLAY_TTL" default:"24h"`
}

type SettlementConfig struct {
	VATRate           string        `envconfig:"SETTLEMENT_VAT_RATE" default:"0.11"`
	AdminFeeRate      string        `envconfig:"SETTLEMENT_ADMIN_FEE_RATE" default:"0.10"`
	MinimumWithdrawal string        `envconfig:"SETTLEMENT_MINIMUM_WITHDRAWAL" default:"50000"`
	OrderTTL          time.Duration `envconfig:"SETTLEMENT_ORDER_TTL" default:"15m"`
}

// Rates parses the decimal settings. Load already validated them.
func (s SettlementConfig) Rates() (vat, adminFee, minWithdrawal decimal.Decimal) {
	vat, _ = decimal.NewFromString(s.VATRate)
	adminFee, _ = decimal.NewFromString(s.AdminFeeRate)
	minWithdrawal, _ = decimal.NewFromString(s.MinimumWithdrawal)
	return vat, adminFee, minWithdrawal
}

func (s SettlementConfig) validate() error {
	for env, raw := range map[string]string{
		EnvVATRate:           s.VATRate,
		EnvAdminFeeRate:      s.AdminFeeRate,
		EnvMinimumWithdrawal: s.MinimumWithdrawal,
	} {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		if v.IsNegative() {
			return fmt.Errorf("%s must not be negative", env)
		}
	}
	if s.OrderTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvOrderTTL)
	}
	return nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SETTLEMENT_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"SETTLEMENT_CRON_LOCK_TTL" default:"5m"`
	// ExpiryBatch caps how many stale orders one cycle reaps.
	ExpiryBatch int `envconfig:"SETTLEMENT_CRON_EXPIRY_BATCH" default:"200"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"SETTLEMENT_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SETTLEMENT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic      string `envconfig:"SETTLEMENT_PUBSUB_ORDERS_TOPIC" default:"settlement-orders"`
	WithdrawalsTopic string `envconfig:"SETTLEMENT_PUBSUB_WITHDRAWALS_TOPIC" default:"settlement-withdrawals"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SETTLEMENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SETTLEMENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SETTLEMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"SETTLEMENT_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = DefaultSQLiteDSN
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
