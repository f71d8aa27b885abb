package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service  ServiceConfig
	API      APIConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Cloud    CloudConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// APIConfig holds remote backend settings
type APIConfig struct {
	BaseURL        string
	Timeout        time.Duration
	UploadTimeout  time.Duration
	BulkTimeout    time.Duration
	RetryAttempts  int
	RetryBase      time.Duration
	PollInterval   time.Duration
	PollMaxTries   int
	AnalyticsBatch int
}

// RedisConfig holds the durable KV tier settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig holds Postgres settings for the operation-history archive
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// StorageConfig holds file-plane settings
type StorageConfig struct {
	KeyPrefix       string
	EncryptAtRest   bool
	MaxFileSize     int64
	FileWaitTimeout time.Duration
}

// CloudConfig holds per-provider OAuth client settings
type CloudConfig struct {
	GoogleClientID   string
	DropboxClientID  string
	OneDriveClientID string
	RedirectURI      string
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		API: APIConfig{
			BaseURL:        getEnv("API_BASE_URL", "http://localhost:9000"),
			Timeout:        getEnvDuration("API_TIMEOUT", 30*time.Second),
			UploadTimeout:  getEnvDuration("API_UPLOAD_TIMEOUT", 120*time.Second),
			BulkTimeout:    getEnvDuration("API_BULK_TIMEOUT", 300*time.Second),
			RetryAttempts:  getEnvInt("API_RETRY_ATTEMPTS", 3),
			RetryBase:      getEnvDuration("API_RETRY_BASE", time.Second),
			PollInterval:   getEnvDuration("API_POLL_INTERVAL", time.Second),
			PollMaxTries:   getEnvInt("API_POLL_MAX_TRIES", 300),
			AnalyticsBatch: getEnvInt("ANALYTICS_BATCH_SIZE", 20),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "docuforge"),
			User:        getEnv("POSTGRES_USER", "docuforge"),
			Password:    getEnv("POSTGRES_PASSWORD", "docuforge"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Storage: StorageConfig{
			KeyPrefix:       getEnv("STORAGE_KEY_PREFIX", "docuforge_"),
			EncryptAtRest:   getEnvBool("STORAGE_ENCRYPT_AT_REST", true),
			MaxFileSize:     getEnvInt64("STORAGE_MAX_FILE_SIZE", 100*1024*1024),
			FileWaitTimeout: getEnvDuration("STORAGE_FILE_WAIT_TIMEOUT", 10*time.Second),
		},
		Cloud: CloudConfig{
			GoogleClientID:   getEnv("CLOUD_GOOGLE_CLIENT_ID", ""),
			DropboxClientID:  getEnv("CLOUD_DROPBOX_CLIENT_ID", ""),
			OneDriveClientID: getEnv("CLOUD_ONEDRIVE_CLIENT_ID", ""),
			RedirectURI:      getEnv("CLOUD_REDIRECT_URI", "http://localhost:8080/cloud/callback"),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is required")
	}

	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api base url must be http(s): %s", c.API.BaseURL)
	}

	if c.API.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be >= 1")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
