package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "dormmate"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "DORMMATE_DB_DSN"
	EnvDBHost = "DORMMATE_DB_HOST"
	EnvDBUser = "DORMMATE_DB_USER"
	EnvDBName = "DORMMATE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Mail          MailConfig
	FeatureFlags  FeatureFlagsConfig
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
	Env          string `envconfig:"DORMMATE_APP_ENV" required:"true"`
	Port         string `envconfig:"DORMMATE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DORMMATE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DORMMATE_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"DORMMATE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DORMMATE_DB_DSN"`
	Driver string `envconfig:"DORMMATE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DORMMATE_DB_HOST"`
	LegacyPort     int    `envconfig:"DORMMATE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DORMMATE_DB_USER"`
	LegacyPassword string `envconfig:"DORMMATE_DB_PASSWORD"`
	LegacyName     string `envconfig:"DORMMATE_DB_NAME"`
	LegacySSLMode  string `envconfig:"DORMMATE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DORMMATE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DORMMATE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DORMMATE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DORMMATE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DORMMATE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DORMMATE_REDIS_ADDR"`
	Password     string        `envconfig:"DORMMATE_REDIS_PASSWORD"`
	DB           int           `envconfig:"DORMMATE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DORMMATE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DORMMATE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DORMMATE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DORMMATE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DORMMATE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig drives every signed token the platform issues. Sessions are
// stateless; setup/verification and reset tokens are short-lived and
// additionally checked against the copy stored on the user row.
type JWTConfig struct {
	Secret              string `envconfig:"DORMMATE_JWT_SECRET" required:"true"`
	Issuer              string `envconfig:"DORMMATE_JWT_ISSUER" default:"dormmate"`
	SessionTTLMinutes   int    `envconfig:"DORMMATE_SESSION_TTL_MINUTES" default:"1440"`
	SetupTokenTTLMin    int    `envconfig:"DORMMATE_SETUP_TOKEN_TTL_MINUTES" default:"10"`
	ResetTokenTTLMin    int    `envconfig:"DORMMATE_RESET_TOKEN_TTL_MINUTES" default:"15"`
	SessionCookieName   string `envconfig:"DORMMATE_SESSION_COOKIE_NAME" default:"dm_session"`
	SessionCookieSecure bool   `envconfig:"DORMMATE_SESSION_COOKIE_SECURE" default:"true"`
}

func (j JWTConfig) SessionTTL() time.Duration {
	return time.Duration(j.SessionTTLMinutes) * time.Minute
}

func (j JWTConfig) SetupTokenTTL() time.Duration {
	return time.Duration(j.SetupTokenTTLMin) * time.Minute
}

func (j JWTConfig) ResetTokenTTL() time.Duration {
	return time.Duration(j.ResetTokenTTLMin) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"DORMMATE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"DORMMATE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"DORMMATE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"DORMMATE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"DORMMATE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"DORMMATE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginIDLimit    int           `envconfig:"DORMMATE_AUTH_RATE_LIMIT_LOGIN_ID_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"DORMMATE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow  time.Duration `envconfig:"DORMMATE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterIDLimit int           `envconfig:"DORMMATE_AUTH_RATE_LIMIT_REGISTER_ID_LIMIT" default:"3"`
	RegisterIPLimit int           `envconfig:"DORMMATE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

// MailConfig configures SMTP delivery for verification and reset mail.
// StudentDomain is the institutional mail domain used to derive the
// contact address from a student number.
type MailConfig struct {
	Host          string `envconfig:"DORMMATE_SMTP_HOST"`
	Port          int    `envconfig:"DORMMATE_SMTP_PORT" default:"587"`
	Username      string `envconfig:"DORMMATE_SMTP_USERNAME"`
	Password      string `envconfig:"DORMMATE_SMTP_PASSWORD"`
	From          string `envconfig:"DORMMATE_SMTP_FROM" default:"noreply@dormmate.app"`
	StudentDomain string `envconfig:"DORMMATE_MAIL_DOMAIN" default:"stu.campus.edu"`
}

func (m MailConfig) Enabled() bool {
	return m.Host != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DORMMATE_AUTO_MIGRATE" default:"false"`
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
