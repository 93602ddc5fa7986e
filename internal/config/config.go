package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	OTP      OTPConfig
	Email    EmailConfig
	SMS      SMSConfig
	Admin    AdminConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret         string
	SessionTTL        time.Duration
	SessionCookieName string
	BcryptCost        int
	CleanupInterval   time.Duration

	// Constant-time padding for failed password logins
	TimingDelayBaseMs   int
	TimingDelayRandomMs int
}

type OTPConfig struct {
	TTL                time.Duration
	MaxVerifyAttempts  int
	RateLimitMax       int
	RateLimitWindow    time.Duration
	RateLimitBackend   string // "postgres" or "redis"
	RequireOnSignup    bool
	DispatchTimeout    time.Duration
	DefaultCountryCode string
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

type SMSConfig struct {
	GatewayURL string
	APIKey     string
	SenderID   string
}

// AdminConfig seeds a superadmin identity on startup. Empty Email or Password disables it.
type AdminConfig struct {
	Email     string
	Password  string
	Subdomain string
}

// Enabled reports whether an admin identity should be seeded
func (c *AdminConfig) Enabled() bool {
	return strings.TrimSpace(c.Email) != "" && c.Password != ""
}

// IsProduction reports whether the server runs in a production-like environment
func (c *ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "pagebuilder"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			SessionTTL:          getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
			SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "session"),
			BcryptCost:          getEnvAsInt("BCRYPT_COST", 12),
			CleanupInterval:     getEnvAsDuration("OTP_CLEANUP_INTERVAL", 15*time.Minute),
			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 50),
		},
		OTP: OTPConfig{
			TTL:                time.Duration(getEnvAsInt("OTP_TTL_MINUTES", 10)) * time.Minute,
			MaxVerifyAttempts:  getEnvAsInt("OTP_MAX_VERIFY_ATTEMPTS", 5),
			RateLimitMax:       getEnvAsInt("OTP_RATE_LIMIT_MAX", 3),
			RateLimitWindow:    getEnvAsDuration("OTP_RATE_LIMIT_WINDOW", 10*time.Minute),
			RateLimitBackend:   strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "postgres")),
			RequireOnSignup:    getEnvAsBool("OTP_REQUIRE_ON_SIGNUP", false),
			DispatchTimeout:    getEnvAsDuration("OTP_DISPATCH_TIMEOUT", 10*time.Second),
			DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "91"),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@localhost"),
		},
		SMS: SMSConfig{
			GatewayURL: getEnv("SMS_GATEWAY_URL", ""),
			APIKey:     getEnv("SMS_API_KEY", ""),
			SenderID:   getEnv("SMS_SENDER_ID", ""),
		},
		Admin: AdminConfig{
			Email:     getEnv("ADMIN_EMAIL", ""),
			Password:  getEnv("ADMIN_PASSWORD", ""),
			Subdomain: getEnv("ADMIN_SUBDOMAIN", "admin"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.OTP.validate(); err != nil {
		return nil, err
	}

	if cfg.Auth.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}

	if cfg.Auth.CleanupInterval <= 0 {
		return nil, fmt.Errorf("OTP_CLEANUP_INTERVAL must be positive")
	}

	return cfg, nil
}

func (c *OTPConfig) validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("OTP_TTL_MINUTES must be positive")
	}
	if c.MaxVerifyAttempts < 1 {
		return fmt.Errorf("OTP_MAX_VERIFY_ATTEMPTS must be at least 1")
	}
	if c.RateLimitMax < 1 {
		return fmt.Errorf("OTP_RATE_LIMIT_MAX must be at least 1")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("OTP_RATE_LIMIT_WINDOW must be positive")
	}
	switch c.RateLimitBackend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be postgres or redis (got %q)", c.RateLimitBackend)
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	items := strings.Split(raw, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
