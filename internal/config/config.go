package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the health monitoring service.
type Config struct {
	HTTPPort string
	Database DatabaseConfig
	Redis    RedisConfig
	Monitor  MonitorConfig
	Snapshot SnapshotConfig
	// EncryptionKey decrypts provider credentials for probing, base64-encoded.
	EncryptionKey string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration

	ProviderCacheSize int
	ProviderCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MonitorConfig holds the probing schedule and the failure threshold.
type MonitorConfig struct {
	Interval         time.Duration // time between successive probes per provider
	Timeout          time.Duration // per-probe bound, must be < Interval
	FailureThreshold int           // consecutive failures before a provider is unhealthy
	Jitter           time.Duration // randomized stagger applied to each provider's first probe
}

// SnapshotConfig holds settings for the async health snapshot persistence.
type SnapshotConfig struct {
	UseRedis     bool
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	QueueName    string
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnvString("HTTP_PORT", "8080")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	interval := getEnvDuration("HEALTH_CHECK_INTERVAL", 60*time.Second)
	timeout := getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second)
	if timeout >= interval {
		return nil, fmt.Errorf("HEALTH_CHECK_TIMEOUT (%s) must be less than HEALTH_CHECK_INTERVAL (%s)", timeout, interval)
	}

	threshold := getEnvInt("HEALTH_FAILURE_THRESHOLD", 3)
	if threshold < 1 {
		return nil, fmt.Errorf("HEALTH_FAILURE_THRESHOLD must be at least 1, got %d", threshold)
	}

	cfg := &Config{
		HTTPPort:      port,
		EncryptionKey: getEnvString("ENCRYPTION_KEY", ""),
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			QueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),

			ProviderCacheSize: getEnvInt("CACHE_PROVIDER_SIZE", 500),
			ProviderCacheTTL:  getEnvDuration("CACHE_PROVIDER_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Monitor: MonitorConfig{
			Interval:         interval,
			Timeout:          timeout,
			FailureThreshold: threshold,
			Jitter:           getEnvDuration("HEALTH_CHECK_JITTER", interval/10),
		},
		Snapshot: SnapshotConfig{
			UseRedis:     getEnvBool("SNAPSHOT_QUEUE_USE_REDIS", false),
			BatchSize:    getEnvInt("SNAPSHOT_QUEUE_BATCH_SIZE", 100),
			BatchTimeout: getEnvDuration("SNAPSHOT_QUEUE_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:   getEnvInt("SNAPSHOT_QUEUE_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("SNAPSHOT_QUEUE_RETRY_BACKOFF", 1*time.Second),
			QueueName:    getEnvString("SNAPSHOT_QUEUE_NAME", "health-snapshots"),
		},
	}

	return cfg, nil
}
