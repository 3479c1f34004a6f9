// Package config provides configuration management for the webhook indexer.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Helius     HeliusConfig
	TenantPool TenantPoolConfig
	Dispatch   DispatchConfig
	Crypto     CryptoConfig
	Logging    LoggingConfig
}

// ServerConfig holds webhook receiver server configuration
type ServerConfig struct {
	Port          string
	Host          string
	WebhookRPS    int // Requests per second accepted per source address
	WebhookBurst  int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	ShutdownGrace time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds control-plane Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds configuration for the raw event archive
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds fast-path cache configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// HeliusConfig holds upstream webhook provider configuration,
// one credential set per cluster.
type HeliusConfig struct {
	BaseURL string
	Mainnet HeliusClusterConfig
	Devnet  HeliusClusterConfig
	Timeout time.Duration
}

// HeliusClusterConfig holds the credentials and subscription identity
// for one cluster's webhook.
type HeliusClusterConfig struct {
	WebhookID  string
	APIKey     string
	AuthSecret string
}

// TenantPoolConfig holds tenant client pool configuration
type TenantPoolConfig struct {
	MaxConnsPerTenant int
	ConnectTimeout    time.Duration
	SSLMode           string
}

// DispatchConfig holds dispatcher configuration
type DispatchConfig struct {
	UnitTimeout   time.Duration // Bounds one rule's charge/suspend/ingest sequence
	LowCreditMark int64         // Post-charge balance at or below which suspension fires
	RetryAttempts int
	RetryDelay    time.Duration
	SnapshotTTL   time.Duration
}

// CryptoConfig holds credential encryption configuration
type CryptoConfig struct {
	// Key is the hex-encoded 32-byte AES key used for tenant passwords.
	Key string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:          getEnv("SERVER_PORT", "8080"),
			Host:          getEnv("SERVER_HOST", "0.0.0.0"),
			WebhookRPS:    getEnvAsInt("WEBHOOK_RPS", 100),
			WebhookBurst:  getEnvAsInt("WEBHOOK_BURST", 50),
			ReadTimeout:   getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:  getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:   getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownGrace: getEnvAsDuration("SERVER_SHUTDOWN_GRACE", 30*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "webhook_indexer"),
				User:           getEnv("POSTGRES_USER", "indexer"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "webhook_indexer"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Helius: HeliusConfig{
			BaseURL: getEnv("HELIUS_API_URL", "https://api.helius.xyz/v0/webhooks"),
			Mainnet: HeliusClusterConfig{
				WebhookID:  getEnv("MAINNET_WEBHOOK_ID", ""),
				APIKey:     getEnv("HELIUS_MAINNET_API_KEY", ""),
				AuthSecret: getEnv("WEBHOOK_MAINNET_SECRET", ""),
			},
			Devnet: HeliusClusterConfig{
				WebhookID:  getEnv("DEVNET_WEBHOOK_ID", ""),
				APIKey:     getEnv("WEBHOOK_DEVNET_API_KEY", ""),
				AuthSecret: getEnv("WEBHOOK_DEVNET_SECRET", ""),
			},
			Timeout: getEnvAsDuration("HELIUS_TIMEOUT", 10*time.Second),
		},
		TenantPool: TenantPoolConfig{
			MaxConnsPerTenant: getEnvAsInt("TENANT_MAX_CONNECTIONS", 10),
			ConnectTimeout:    getEnvAsDuration("TENANT_CONNECT_TIMEOUT", 10*time.Second),
			SSLMode:           getEnv("TENANT_SSLMODE", "require"),
		},
		Dispatch: DispatchConfig{
			UnitTimeout:   getEnvAsDuration("DISPATCH_UNIT_TIMEOUT", 15*time.Second),
			LowCreditMark: int64(getEnvAsInt("DISPATCH_LOW_CREDIT_MARK", 100)),
			RetryAttempts: getEnvAsInt("DISPATCH_RETRY_ATTEMPTS", 5),
			RetryDelay:    getEnvAsDuration("DISPATCH_RETRY_DELAY", 2*time.Second),
			SnapshotTTL:   getEnvAsDuration("SNAPSHOT_CACHE_TTL", 20*time.Second),
		},
		Crypto: CryptoConfig{
			Key: getEnv("CREDENTIAL_ENCRYPTION_KEY", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
