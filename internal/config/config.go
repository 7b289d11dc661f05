package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Config holds application configuration values.
type Config struct {
	App       AppConfig
	DB        DBConfig
	JWT       JWTConfig
	Password  PasswordConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Invoice   InvoiceConfig
	Bootstrap BootstrapConfig
}

// Load reads configuration from SPIS_* environment variables with reasonable defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.DB.ensureDSN()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.App.IsProd() && (c.JWT.Secret == "" || c.JWT.Secret == defaultSecret) {
		return errors.New("SPIS_JWT_SECRET must be set in prod")
	}
	if c.Invoice.NodeID < 0 || c.Invoice.NodeID > 1023 {
		return fmt.Errorf("invoice node id %d out of range 0..1023", c.Invoice.NodeID)
	}
	if c.App.ExpiringWindowDays <= 0 {
		return errors.New("expiring window must be positive")
	}
	return nil
}

type AppConfig struct {
	Env          string        `envconfig:"SPIS_APP_ENV" default:"dev"`
	Port         string        `envconfig:"SPIS_APP_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"SPIS_APP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"SPIS_APP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"SPIS_APP_IDLE_TIMEOUT" default:"60s"`
	CORSOrigins  []string      `envconfig:"SPIS_APP_CORS_ORIGINS" default:"*"`
	LogLevel     string        `envconfig:"SPIS_APP_LOG_LEVEL" default:"info"`
	LogFormat    string        `envconfig:"SPIS_APP_LOG_FORMAT" default:"json"`
	LogWarnStack bool          `envconfig:"SPIS_APP_LOG_WARN_STACK" default:"false"`
	SeedFile     string        `envconfig:"SPIS_APP_SEED_FILE"`
	// ExpiringWindowDays is the default forward window for expiring-soon listings.
	ExpiringWindowDays int `envconfig:"SPIS_APP_EXPIRING_WINDOW_DAYS" default:"30"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	Driver string `envconfig:"SPIS_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"SPIS_DB_DSN"`

	Host     string `envconfig:"SPIS_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"SPIS_DB_PORT" default:"5432"`
	User     string `envconfig:"SPIS_DB_USER" default:"postgres"`
	Password string `envconfig:"SPIS_DB_PASSWORD"`
	Name     string `envconfig:"SPIS_DB_NAME" default:"spis"`
	SSLMode  string `envconfig:"SPIS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SPIS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SPIS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SPIS_DB_CONN_MAX_LIFETIME" default:"1h"`
	AutoMigrate     bool          `envconfig:"SPIS_DB_AUTO_MIGRATE" default:"true"`
}

// ensureDSN fills DSN from the discrete fields when it was not given explicitly.
func (d *DBConfig) ensureDSN() {
	if d.DSN != "" {
		return
	}
	if d.Driver == DriverSQLite {
		d.DSN = "file:spis.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
		return
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	d.DSN = u.String()
}

const defaultSecret = "dev_secret"

type JWTConfig struct {
	Secret     string        `envconfig:"SPIS_JWT_SECRET" default:"dev_secret"`
	Issuer     string        `envconfig:"SPIS_JWT_ISSUER" default:"spis"`
	AccessTTL  time.Duration `envconfig:"SPIS_JWT_ACCESS_TTL" default:"15m"`
	RefreshTTL time.Duration `envconfig:"SPIS_JWT_REFRESH_TTL" default:"168h"`
}

type PasswordConfig struct {
	BcryptCost int `envconfig:"SPIS_PASSWORD_BCRYPT_COST" default:"10"`
	MinLength  int `envconfig:"SPIS_PASSWORD_MIN_LENGTH" default:"6"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SPIS_REDIS_URL"`
	Address      string        `envconfig:"SPIS_REDIS_ADDR"`
	Password     string        `envconfig:"SPIS_REDIS_PASSWORD"`
	DB           int           `envconfig:"SPIS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SPIS_REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"SPIS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SPIS_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"SPIS_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Enabled reports whether a redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type RateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"SPIS_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginIPLimit       int           `envconfig:"SPIS_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit    int           `envconfig:"SPIS_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	RegisterWindow     time.Duration `envconfig:"SPIS_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterIPLimit    int           `envconfig:"SPIS_RATE_LIMIT_REGISTER_IP_LIMIT" default:"10"`
	RegisterEmailLimit int           `envconfig:"SPIS_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
}

type InvoiceConfig struct {
	NodeID int64 `envconfig:"SPIS_INVOICE_NODE_ID" default:"1"`
}

// BootstrapConfig seeds the first admin account when no admin exists.
type BootstrapConfig struct {
	AdminEmail    string `envconfig:"SPIS_BOOTSTRAP_ADMIN_EMAIL"`
	AdminUsername string `envconfig:"SPIS_BOOTSTRAP_ADMIN_USERNAME" default:"admin"`
	AdminPassword string `envconfig:"SPIS_BOOTSTRAP_ADMIN_PASSWORD"`
}
