package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Worker   WorkerConfig
	Ingest   IngestConfig
	Query    QueryConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RabbitMQConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	VHost    string
}

type WorkerConfig struct {
	ActivityQueue string
	PrefetchCount int
}

type IngestConfig struct {
	// MaxPayloadBytes caps the raw size of the opaque event payload.
	MaxPayloadBytes int
}

type QueryConfig struct {
	// PageSize is the fixed page size of the event read path.
	PageSize int
}

const (
	defaultActivityQueue   = "device-activity"
	defaultPrefetchCount   = 8
	defaultMaxPayloadBytes = 64 * 1024
	defaultPageSize        = 25
)

func Load() (*Config, error) {
	var missing []string

	get := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	getOr := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	getIntOr := func(key string, fallback int) (int, error) {
		val := os.Getenv(key)
		if val == "" {
			return fallback, nil
		}
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%s must be a positive integer, got %q", key, val)
		}
		return n, nil
	}

	config := &Config{
		Server: ServerConfig{
			Host: get("SERVER_HOST"),
			Port: get("SERVER_PORT"),
		},
		Database: DatabaseConfig{
			Host:     get("DB_HOST"),
			Port:     get("DB_PORT"),
			User:     get("DB_USER"),
			Password: get("DB_PASSWORD"),
			DBName:   get("DB_NAME"),
			SSLMode:  get("DB_SSLMODE"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      os.Getenv("RABBITMQ_URL"),
			Host:     get("RABBITMQ_HOST"),
			Port:     get("RABBITMQ_PORT"),
			User:     get("RABBITMQ_USER"),
			Password: get("RABBITMQ_PASSWORD"),
			VHost:    get("RABBITMQ_VHOST"),
		},
		Worker: WorkerConfig{
			ActivityQueue: getOr("WORKER_ACTIVITY_QUEUE", defaultActivityQueue),
		},
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	var err error
	if config.Worker.PrefetchCount, err = getIntOr("WORKER_PREFETCH_COUNT", defaultPrefetchCount); err != nil {
		return nil, err
	}
	if config.Ingest.MaxPayloadBytes, err = getIntOr("INGEST_MAX_PAYLOAD_BYTES", defaultMaxPayloadBytes); err != nil {
		return nil, err
	}
	if config.Query.PageSize, err = getIntOr("QUERY_PAGE_SIZE", defaultPageSize); err != nil {
		return nil, err
	}

	return config, nil
}

// MigrationURL returns a DSN for golang-migrate.
func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// ConnectionString returns a DSN string for GORM.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s",
		c.User, c.Password, c.Host, c.Port, c.VHost)
}
