// Package config provides configuration management for the ECL ledger node.
// It handles loading configuration from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the global configuration for an ECL node
type Config struct {
	// Service identification
	ServiceName string
	Version     string
	Environment string
	NodeID      string

	// Network configuration
	APIListenAddr string

	// Standalone mode disables Kafka, Postgres, Redis, Influx, and the
	// sentinel feed; the node runs purely in-process
	Standalone bool

	// Kafka configuration
	KafkaBrokers []string

	// Database connections
	PostgresHost     string
	PostgresPort     int
	PostgresDatabase string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	InfluxURL        string
	InfluxToken      string
	InfluxOrg        string
	InfluxBucket     string

	// Ledger storage
	DataDir string

	// Sentinel feed
	SentinelEndpoint string

	// Ledger parameters
	StakeAmount     uint64
	RewardCap       uint64
	SubmitPerSecond float64

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		// Service defaults
		ServiceName: getEnv("SERVICE_NAME", "ecld"),
		Version:     getEnv("VERSION", "dev"),
		Environment: getEnv("ENVIRONMENT", "development"),
		NodeID:      getEnv("NODE_ID", ""),

		// Network defaults
		APIListenAddr: getEnv("API_LISTEN_ADDR", "0.0.0.0:8080"),

		Standalone: getEnvBool("STANDALONE", false),

		// Kafka defaults
		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),

		// Database defaults
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
		PostgresDatabase: getEnv("POSTGRES_DATABASE", "ecl"),
		PostgresUser:     getEnv("POSTGRES_USER", "ecl"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		InfluxURL:        getEnv("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:      getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:        getEnv("INFLUX_ORG", "ecl"),
		InfluxBucket:     getEnv("INFLUX_BUCKET", "ledger"),

		// Storage defaults
		DataDir: getEnv("DATA_DIR", "./data"),

		// Sentinel defaults
		SentinelEndpoint: getEnv("SENTINEL_ENDPOINT", "tcp://localhost:28400"),

		// Ledger defaults
		StakeAmount:     getEnvUint("STAKE_AMOUNT", 5),
		RewardCap:       getEnvUint("REWARD_CAP", 5000),
		SubmitPerSecond: getEnvFloat("SUBMIT_PER_SECOND", 5.0),

		// Logging defaults
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate performs basic validation of configuration values
func (c *Config) validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("SERVICE_NAME cannot be empty")
	}

	if c.APIListenAddr == "" {
		return fmt.Errorf("API_LISTEN_ADDR cannot be empty")
	}

	if c.StakeAmount == 0 {
		return fmt.Errorf("STAKE_AMOUNT must be positive")
	}

	if c.RewardCap == 0 {
		return fmt.Errorf("REWARD_CAP must be positive")
	}

	if c.SubmitPerSecond <= 0 {
		return fmt.Errorf("SUBMIT_PER_SECOND must be positive")
	}

	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR cannot be empty")
	}

	if !c.Standalone && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS cannot be empty outside standalone mode")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
