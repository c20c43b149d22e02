package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NewRelic   NewRelicConfig
	Processor  ProcessorConfig
	Enrollment EnrollmentConfig
	Fee        FeeConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// ProcessorConfig holds payment processor configuration.
type ProcessorConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// EnrollmentConfig holds enrollment backend configuration.
type EnrollmentConfig struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	ResolverTimeout time.Duration
	IdentityTTL     time.Duration
}

// FeeConfig holds the fixed enrollment fee charged per period.
type FeeConfig struct {
	Amount   string
	Currency string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "paygate"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "payment-gateway-service"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Processor: ProcessorConfig{
			BaseURL:       getEnv("PROCESSOR_BASE_URL", "https://api.stripe.com"),
			SecretKey:     getEnv("PROCESSOR_SECRET_KEY", ""),
			WebhookSecret: getEnv("PROCESSOR_WEBHOOK_SECRET", ""),
			Timeout:       getDurationEnv("PROCESSOR_TIMEOUT", 10*time.Second),
		},
		Enrollment: EnrollmentConfig{
			BaseURL:         getEnv("ENROLLMENT_BASE_URL", "http://localhost:5251"),
			APIKey:          getEnv("ENROLLMENT_API_KEY", ""),
			Timeout:         getDurationEnv("ENROLLMENT_TIMEOUT", 10*time.Second),
			ResolverTimeout: getDurationEnv("IDENTITY_RESOLVER_TIMEOUT", 5*time.Second),
			IdentityTTL:     getDurationEnv("IDENTITY_CACHE_TTL", 5*time.Minute),
		},
		Fee: FeeConfig{
			Amount:   getEnv("FEE_AMOUNT", "5.00"),
			Currency: getEnv("FEE_CURRENCY", "PEN"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
