package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	ServerPort string

	StorageDriver string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	RunMigrations bool

	JWTSecret string
	JWTIssuer string
	JWTExpiry time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateCacheTTL  time.Duration

	FraudServiceURL string
	RateServiceURL  string
	OracleTimeout   time.Duration
	FraudMaxAmount  decimal.Decimal

	StartingBalance    decimal.Decimal
	DefaultCurrency    string
	FraudHistoryWindow int

	RateLimit string

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("STORAGE_DRIVER", StorageDriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "banking_ledger")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_ISSUER", "banking-ledger")
	v.SetDefault("JWT_EXPIRY", "1h")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RATE_CACHE_TTL", "10m")
	v.SetDefault("FRAUD_SERVICE_URL", "")
	v.SetDefault("RATE_SERVICE_URL", "")
	v.SetDefault("ORACLE_TIMEOUT", "5s")
	v.SetDefault("FRAUD_MAX_AMOUNT", "10000")
	v.SetDefault("LEDGER_STARTING_BALANCE", "0")
	v.SetDefault("LEDGER_DEFAULT_CURRENCY", "USD")
	v.SetDefault("LEDGER_FRAUD_HISTORY_WINDOW", 20)
	v.SetDefault("RATE_LIMIT", "300-M")
	v.SetDefault("BOOTSTRAP_ADMIN_EMAIL", "")
	v.SetDefault("BOOTSTRAP_ADMIN_PASSWORD", "")
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() *Config {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg, err := FromViper(v)
	if err != nil {
		slog.Warn("Invalid configuration value, falling back to defaults", "error", err)
		d := viper.New()
		setDefaults(d)
		cfg, _ = FromViper(d)
	}
	return cfg
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ServerPort:             v.GetString("SERVER_PORT"),
		StorageDriver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		DBHost:                 v.GetString("DB_HOST"),
		DBPort:                 v.GetString("DB_PORT"),
		DBUser:                 v.GetString("DB_USER"),
		DBPassword:             v.GetString("DB_PASSWORD"),
		DBName:                 v.GetString("DB_NAME"),
		DBSSLMode:              v.GetString("DB_SSLMODE"),
		RunMigrations:          v.GetBool("RUN_MIGRATIONS"),
		JWTSecret:              v.GetString("JWT_SECRET"),
		JWTIssuer:              v.GetString("JWT_ISSUER"),
		RedisAddr:              v.GetString("REDIS_ADDR"),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
		FraudServiceURL:        v.GetString("FRAUD_SERVICE_URL"),
		RateServiceURL:         v.GetString("RATE_SERVICE_URL"),
		DefaultCurrency:        strings.ToUpper(v.GetString("LEDGER_DEFAULT_CURRENCY")),
		FraudHistoryWindow:     v.GetInt("LEDGER_FRAUD_HISTORY_WINDOW"),
		RateLimit:              v.GetString("RATE_LIMIT"),
		BootstrapAdminEmail:    v.GetString("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
	}

	var err error
	if cfg.JWTExpiry, err = time.ParseDuration(v.GetString("JWT_EXPIRY")); err != nil {
		return nil, fmt.Errorf("JWT_EXPIRY: %w", err)
	}
	if cfg.RateCacheTTL, err = time.ParseDuration(v.GetString("RATE_CACHE_TTL")); err != nil {
		return nil, fmt.Errorf("RATE_CACHE_TTL: %w", err)
	}
	if cfg.OracleTimeout, err = time.ParseDuration(v.GetString("ORACLE_TIMEOUT")); err != nil {
		return nil, fmt.Errorf("ORACLE_TIMEOUT: %w", err)
	}
	if cfg.StartingBalance, err = decimal.NewFromString(v.GetString("LEDGER_STARTING_BALANCE")); err != nil {
		return nil, fmt.Errorf("LEDGER_STARTING_BALANCE: %w", err)
	}
	if cfg.StartingBalance.IsNegative() {
		return nil, fmt.Errorf("LEDGER_STARTING_BALANCE must not be negative")
	}
	if cfg.FraudMaxAmount, err = decimal.NewFromString(v.GetString("FRAUD_MAX_AMOUNT")); err != nil {
		return nil, fmt.Errorf("FRAUD_MAX_AMOUNT: %w", err)
	}
	if cfg.FraudHistoryWindow <= 0 {
		return nil, fmt.Errorf("LEDGER_FRAUD_HISTORY_WINDOW must be positive")
	}
	if cfg.StorageDriver != StorageDriverPostgres && cfg.StorageDriver != StorageDriverMemory {
		return nil, fmt.Errorf("STORAGE_DRIVER must be %q or %q", StorageDriverPostgres, StorageDriverMemory)
	}

	return cfg, nil
}

// GetDBConnectionString returns a lib/pq keyword/value connection string.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
