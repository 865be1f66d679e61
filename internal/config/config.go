package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	OTPBackendMemory = "memory"
	OTPBackendRedis  = "redis"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port          string `mapstructure:"PORT"`
	AppEnv        string `mapstructure:"APP_ENV"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`

	JWTSecret           string `mapstructure:"JWT_SECRET"`
	JWTRefreshSecret    string `mapstructure:"JWT_REFRESH_SECRET"`
	JWTIssuer           string `mapstructure:"JWT_ISSUER"`
	JWTAccessTTLMinutes int    `mapstructure:"JWT_ACCESS_TTL_MINUTES"`
	JWTRefreshTTLHours  int    `mapstructure:"JWT_REFRESH_TTL_HOURS"`

	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	CookieDomain       string `mapstructure:"COOKIE_DOMAIN"`

	OTPBackend      string `mapstructure:"OTP_BACKEND"`
	OTPTTLMinutes   int    `mapstructure:"OTP_TTL_MINUTES"`
	OTPDigits       int    `mapstructure:"OTP_DIGITS"`
	OTPSweepSeconds int    `mapstructure:"OTP_SWEEP_SECONDS"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	SMSURL      string `mapstructure:"SMS_URL"`
	SMSAPIKey   string `mapstructure:"SMS_API_KEY"`
	SMSType     string `mapstructure:"SMS_TYPE"`
	SMSSenderID string `mapstructure:"SMS_SENDER_ID"`

	BrandName      string `mapstructure:"BRAND_NAME"`
	StoreBaseURL   string `mapstructure:"STORE_BASE_URL"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`
}

var defaults = map[string]any{
	"PORT":                   "8080",
	"APP_ENV":                "development",
	"LOG_LEVEL":              "info",
	"STORAGE_DRIVER":         StoragePostgres,
	"JWT_ISSUER":             "storefront-backend",
	"JWT_ACCESS_TTL_MINUTES": 60,
	"JWT_REFRESH_TTL_HOURS":  168,
	"CORS_ALLOWED_ORIGINS":   "*",
	"OTP_BACKEND":            OTPBackendMemory,
	"OTP_TTL_MINUTES":        5,
	"OTP_DIGITS":             6,
	"OTP_SWEEP_SECONDS":      60,
	"REDIS_DB":               0,
	"SMTP_PORT":              587,
	"SMS_TYPE":               "text",
	"BRAND_NAME":             "Storefront",
	"STORE_BASE_URL":         "http://localhost:3000",
	"EVENTS_EXCHANGE":        "storefront.events",
}

var keys = []string{
	"PORT", "APP_ENV", "LOG_LEVEL", "STORAGE_DRIVER", "DATABASE_URL",
	"JWT_SECRET", "JWT_REFRESH_SECRET", "JWT_ISSUER", "JWT_ACCESS_TTL_MINUTES", "JWT_REFRESH_TTL_HOURS",
	"CORS_ALLOWED_ORIGINS", "COOKIE_DOMAIN",
	"OTP_BACKEND", "OTP_TTL_MINUTES", "OTP_DIGITS", "OTP_SWEEP_SECONDS",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
	"SMS_URL", "SMS_API_KEY", "SMS_TYPE", "SMS_SENDER_ID",
	"BRAND_NAME", "STORE_BASE_URL", "RABBITMQ_URL", "EVENTS_EXCHANGE",
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
	viper.AutomaticEnv()
	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Port = fallback(c.Port, "8080")
	c.AppEnv = strings.ToLower(fallback(c.AppEnv, "development"))
	c.StorageDriver = strings.ToLower(fallback(c.StorageDriver, StoragePostgres))
	c.OTPBackend = strings.ToLower(fallback(c.OTPBackend, OTPBackendMemory))
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	c.JWTRefreshSecret = strings.TrimSpace(c.JWTRefreshSecret)
	c.RedisAddr = strings.TrimSpace(c.RedisAddr)
	c.RabbitMQURL = strings.TrimSpace(c.RabbitMQURL)
	c.StoreBaseURL = strings.TrimRight(fallback(c.StoreBaseURL, "http://localhost:3000"), "/")

	c.JWTAccessTTLMinutes = positive(c.JWTAccessTTLMinutes, 60)
	c.JWTRefreshTTLHours = positive(c.JWTRefreshTTLHours, 168)
	c.OTPTTLMinutes = positive(c.OTPTTLMinutes, 5)
	c.OTPDigits = positive(c.OTPDigits, 6)
	c.OTPSweepSeconds = positive(c.OTPSweepSeconds, 60)
	c.SMTPPort = positive(c.SMTPPort, 587)
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.JWTRefreshSecret == "" {
		return errors.New("JWT_REFRESH_SECRET is required")
	}
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER %q is not supported", c.StorageDriver)
	}
	switch c.OTPBackend {
	case OTPBackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when OTP_BACKEND=redis")
		}
	case OTPBackendMemory:
	default:
		return fmt.Errorf("OTP_BACKEND %q is not supported", c.OTPBackend)
	}
	return nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLHours) * time.Hour
}

func (c Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}

func (c Config) OTPSweepInterval() time.Duration {
	return time.Duration(c.OTPSweepSeconds) * time.Second
}

// CORSOrigins splits CORS_ALLOWED_ORIGINS; an empty list means "*".
func (c Config) CORSOrigins() []string {
	return parseCSV(c.CORSAllowedOrigins)
}

// SMTPEnabled reports whether an SMTP relay is configured.
func (c Config) SMTPEnabled() bool {
	return strings.TrimSpace(c.SMTPHost) != ""
}

// SMSEnabled reports whether an SMS gateway is configured.
func (c Config) SMSEnabled() bool {
	return strings.TrimSpace(c.SMSURL) != "" && strings.TrimSpace(c.SMSAPIKey) != ""
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func positive(value, def int) int {
	if value <= 0 {
		return def
	}
	return value
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
