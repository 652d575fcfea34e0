package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	ServerPort     string
	MetricsEnabled bool

	Analysis AnalysisConfig
	Limits   LimitsConfig
	Store    StoreConfig
	Auth     AuthConfig
	Billing  BillingConfig
	Log      LogConfig
}

type AnalysisConfig struct {
	BaseURL      string
	SharedSecret string
	SecretHeader string
	AnalyzePath  string
	HealthPath   string
	Timeout      time.Duration
}

type LimitsConfig struct {
	FreeScanLimit               int
	RateWindow                  time.Duration
	RateMaxRequests             int
	PrivilegedAccountID         string
	PrivilegedBypassesRateLimit bool
	PaidBypassesRateLimit       bool
}

type StoreConfig struct {
	Backend          string
	Path             string
	DatabaseURL      string
	RedisURL         string
	RedisDocumentKey string
}

type AuthConfig struct {
	JWTSecret       string
	TransportAPIKey string
	AdminAPIKey     string
}

type BillingConfig struct {
	PayTo    string
	Price    decimal.Decimal
	Currency string
}

type LogConfig struct {
	Environment string
	Level       string
	Format      string
}

const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

func Load() (*Config, error) {
	godotenv.Load()

	price, err := decimal.NewFromString(getEnv("PRICE_BASIC", "0.25"))
	if err != nil {
		return nil, fmt.Errorf("PRICE_BASIC: %w", err)
	}

	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		Analysis: AnalysisConfig{
			BaseURL:      strings.TrimRight(getEnv("ANALYSIS_BASE_URL", ""), "/"),
			SharedSecret: getEnv("ANALYSIS_SHARED_SECRET", ""),
			SecretHeader: getEnv("ANALYSIS_SECRET_HEADER", "x-shared-secret"),
			AnalyzePath:  getEnv("ANALYSIS_PATH", "/analyze"),
			HealthPath:   getEnv("ANALYSIS_HEALTH_PATH", "/health"),
			Timeout:      getEnvMillis("ANALYSIS_TIMEOUT_MS", 15*time.Second),
		},
		Limits: LimitsConfig{
			FreeScanLimit:               getEnvInt("FREE_SCAN_LIMIT", 5),
			RateWindow:                  getEnvMillis("RATE_WINDOW_MS", 120*time.Second),
			RateMaxRequests:             getEnvInt("RATE_MAX_REQUESTS", 3),
			PrivilegedAccountID:         getEnv("PRIVILEGED_ACCOUNT_ID", ""),
			PrivilegedBypassesRateLimit: getEnvBool("PRIVILEGED_BYPASSES_RATE_LIMIT", true),
			PaidBypassesRateLimit:       getEnvBool("PAID_BYPASSES_RATE_LIMIT", false),
		},
		Store: StoreConfig{
			Backend:          getEnv("STORE_BACKEND", BackendFile),
			Path:             getEnv("STORE_PATH", "data/accounts.json"),
			DatabaseURL:      getEnv("DATABASE_URL", ""),
			RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
			RedisDocumentKey: getEnv("REDIS_DOCUMENT_KEY", "scan-gateway:document"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			TransportAPIKey: getEnv("TRANSPORT_API_KEY", ""),
			AdminAPIKey:     getEnv("ADMIN_API_KEY", ""),
		},
		Billing: BillingConfig{
			PayTo:    getEnv("PAY_TO", "0x6CB857A62f6a55239D67C6bD1A8ed5671605566D"),
			Price:    price,
			Currency: getEnv("PAY_CURRENCY", "USDC"),
		},
		Log: LogConfig{
			Environment: getEnv("LOG_ENV", "development"),
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "console"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Analysis.BaseURL == "" {
		errs = append(errs, errors.New("ANALYSIS_BASE_URL is required"))
	}
	if c.Analysis.SharedSecret == "" {
		errs = append(errs, errors.New("ANALYSIS_SHARED_SECRET is required"))
	}
	if c.Analysis.Timeout <= 0 {
		errs = append(errs, errors.New("ANALYSIS_TIMEOUT_MS must be positive"))
	}
	if c.Limits.FreeScanLimit < 0 {
		errs = append(errs, errors.New("FREE_SCAN_LIMIT must not be negative"))
	}
	if c.Limits.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW_MS must be positive"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("STORE_PATH is required for the file backend"))
		}
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
