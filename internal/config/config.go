package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`
	AuthAudience  string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL   string `mapstructure:"AUTH_JWKS_URL"`
	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`
	DevActorID    string `mapstructure:"DEV_ACTOR_ID"`
	DevActorRole  string `mapstructure:"DEV_ACTOR_ROLE"`
	DevFacilityID string `mapstructure:"DEV_FACILITY_ID"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`

	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	StoreTimeout      time.Duration `mapstructure:"STORE_TIMEOUT"`
	ChannelTimeout    time.Duration `mapstructure:"CHANNEL_TIMEOUT"`
	NotifyConcurrency int           `mapstructure:"NOTIFY_CONCURRENCY"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	SMSGatewayURL   string `mapstructure:"SMS_GATEWAY_URL"`
	SMSGatewayToken string `mapstructure:"SMS_GATEWAY_TOKEN"`
	SMSFrom         string `mapstructure:"SMS_FROM"`

	PolicyFile string `mapstructure:"POLICY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "SQLITE_PATH", "REDIS_URL",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "JWT_SIGNING_KEY",
	"DEV_ACTOR_ID", "DEV_ACTOR_ROLE", "DEV_FACILITY_ID",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"REQUEST_TIMEOUT", "STORE_TIMEOUT", "CHANNEL_TIMEOUT", "NOTIFY_CONCURRENCY",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
	"SMS_GATEWAY_URL", "SMS_GATEWAY_TOKEN", "SMS_FROM",
	"POLICY_FILE",
}

// Load reads .env (if present) and the environment. It does not validate;
// callers run Validate before serving.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("SQLITE_PATH", "careguard.db")
	v.SetDefault("DEV_ACTOR_ROLE", "SUPER_ADMIN")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("STORE_TIMEOUT", "3s")
	v.SetDefault("CHANNEL_TIMEOUT", "10s")
	v.SetDefault("NOTIFY_CONCURRENCY", 4)
	v.SetDefault("SMTP_PORT", 587)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// HasTokenVerifier reports whether a JWT verification source is configured.
func (c *Config) HasTokenVerifier() bool {
	return c.AuthJWKSURL != "" || c.JWTSigningKey != ""
}

func (c *Config) SMTPEnabled() bool { return c.SMTPHost != "" }

func (c *Config) SMSEnabled() bool { return c.SMSGatewayURL != "" }

// Validate checks that the configuration is safe to run. Outside development
// a token verification source is required so requests are never admitted
// without authentication.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", DriverSQLite)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}

	if !c.IsDev() && !c.HasTokenVerifier() {
		return fmt.Errorf("AUTH_JWKS_URL or JWT_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.JWTSigningKey != "" && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes")
	}
	if c.IsDev() && c.DevActorID == "" && !c.HasTokenVerifier() {
		return fmt.Errorf("DEV_ACTOR_ID is required in development without a token verifier")
	}

	for name, d := range map[string]time.Duration{
		"REQUEST_TIMEOUT": c.RequestTimeout,
		"STORE_TIMEOUT":   c.StoreTimeout,
		"CHANNEL_TIMEOUT": c.ChannelTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.NotifyConcurrency < 1 {
		return fmt.Errorf("NOTIFY_CONCURRENCY must be at least 1, got %d", c.NotifyConcurrency)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if c.SMTPEnabled() {
		if c.SMTPFrom == "" {
			return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
		}
		if c.SMTPPort <= 0 {
			return fmt.Errorf("SMTP_PORT must be positive")
		}
		if (c.SMTPUsername == "") != (c.SMTPPassword == "") {
			return fmt.Errorf("SMTP_USERNAME and SMTP_PASSWORD must be set together")
		}
	}
	if c.SMSEnabled() && c.SMSGatewayToken == "" {
		return fmt.Errorf("SMS_GATEWAY_TOKEN is required when SMS_GATEWAY_URL is set")
	}

	return nil
}
