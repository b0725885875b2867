package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	CORSOrigins []string

	DatabaseDSN string

	JWTSecret        string
	JWTIssuer        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	TokenVerifyCache time.Duration

	CleanupInterval time.Duration

	ZaloAppID     string
	ZaloAppSecret string

	RedisAddr     string
	RedisPassword string

	AuthRateLimitRPM int

	OTELEnabled              bool
	OTELExporterOTLPEndpoint string
	OTELExporterOTLPInsecure bool
	OTELServiceName          string
	OTELEnvironment          string

	ShutdownTimeout time.Duration
}

// Load builds the configuration from environment variables, applying an
// optional .env file first. Real environment variables always win over file
// entries.
func Load() (*Config, error) {
	if err := LoadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "")),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTIssuer:        getEnv("JWT_ISSUER", "resident-portal"),
		AccessTokenTTL:   getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTokenTTL:  getDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		TokenVerifyCache: getDuration("JWT_VERIFY_CACHE_TTL", 5*time.Minute),

		CleanupInterval: getDuration("SESSION_CLEANUP_INTERVAL", time.Hour),

		ZaloAppID:     getEnv("ZALO_APP_ID", ""),
		ZaloAppSecret: getEnv("ZALO_APP_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 30),

		OTELEnabled:              getBool("OTEL_ENABLED", false),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "resident-portal"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", "dev"),

		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("access token lifetime must be shorter than refresh token lifetime")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
