package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the floor service
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Billing  BillingConfig  `yaml:"billing"`
}

// HTTPConfig holds API server settings
type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig selects the repository implementation
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int32  `yaml:"max_conns"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	Prefetch int    `yaml:"prefetch"`
}

// BillingConfig holds settlement parameters
type BillingConfig struct {
	// TaxRate is a decimal fraction, e.g. "0.10".
	TaxRate string `yaml:"tax_rate"`
}

// Load reads configuration from a YAML file and applies environment overrides
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 3000
	}
	if c.HTTP.RequestTimeout == 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverPostgres
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 25
	}
	if c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = 5672
	}
	if c.RabbitMQ.VHost == "" {
		c.RabbitMQ.VHost = "/"
	}
	if c.RabbitMQ.Prefetch == 0 {
		c.RabbitMQ.Prefetch = 10
	}
	if c.Billing.TaxRate == "" {
		c.Billing.TaxRate = "0.10"
	}
}

func (c *Config) applyEnv() error {
	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Database.Host = getEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.User = getEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = getEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("POSTGRES_DBNAME", c.Database.Database)
	c.RabbitMQ.Host = getEnv("RABBITMQ_HOST", c.RabbitMQ.Host)
	c.RabbitMQ.User = getEnv("RABBITMQ_USER", c.RabbitMQ.User)
	c.RabbitMQ.Password = getEnv("RABBITMQ_PASSWORD", c.RabbitMQ.Password)
	c.Billing.TaxRate = getEnv("BILLING_TAX_RATE", c.Billing.TaxRate)

	var err error
	if c.HTTP.Port, err = getEnvInt("HTTP_PORT", c.HTTP.Port); err != nil {
		return err
	}
	if c.Database.Port, err = getEnvInt("POSTGRES_PORT", c.Database.Port); err != nil {
		return err
	}
	if c.RabbitMQ.Port, err = getEnvInt("RABBITMQ_PORT", c.RabbitMQ.Port); err != nil {
		return err
	}
	if v := os.Getenv("RABBITMQ_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RABBITMQ_ENABLED: %w", err)
		}
		c.RabbitMQ.Enabled = enabled
	}
	return nil
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("database.host and database.database are required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.RabbitMQ.Enabled && c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq.host is required when rabbitmq is enabled")
	}
	rate, err := c.TaxRate()
	if err != nil {
		return err
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("billing.tax_rate must be in [0, 1)")
	}
	return nil
}

// TaxRate parses the configured tax rate
func (c *Config) TaxRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.Billing.TaxRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid billing.tax_rate %q: %w", c.Billing.TaxRate, err)
	}
	return rate, nil
}

// DatabaseURL returns the PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(c.Database.User),
		url.QueryEscape(c.Database.Password),
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RabbitMQURL returns the RabbitMQ connection URL
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		url.QueryEscape(c.RabbitMQ.User),
		url.QueryEscape(c.RabbitMQ.Password),
		c.RabbitMQ.Host,
		c.RabbitMQ.Port,
		url.PathEscape(trimSlash(c.RabbitMQ.VHost)),
	)
}

func trimSlash(vhost string) string {
	if vhost == "/" {
		return ""
	}
	return vhost
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
