package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// MaxItemsCeiling is the server-side ceiling on items per job, protecting
	// the rate-limited image provider regardless of what clients request.
	MaxItemsCeiling = 100
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Redis      RedisConfig      `yaml:"redis"`
	S3         S3Config         `yaml:"s3"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Selector   SelectorConfig   `yaml:"selector"`
	Compositor CompositorConfig `yaml:"compositor"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host               string           `yaml:"host"`
	Port               int              `yaml:"port"`
	User               string           `yaml:"user"`
	Password           string           `yaml:"password"`
	VHost              string           `yaml:"vhost"`
	Exchange           ExchangeConfig   `yaml:"exchange"`
	DeadLetterExchange string           `yaml:"dead_letter_exchange"`
	DispatchQueue      QueueConfig      `yaml:"dispatch_queue"`
	WorkItemQueue      QueueConfig      `yaml:"work_item_queue"`
	Connection         ConnectionConfig `yaml:"connection"`
	Publish            PublishConfig    `yaml:"publish"`
	Consumer           ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	RoutingKey string `yaml:"routing_key"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds the status cache configuration
type RedisConfig struct {
	URL       string        `yaml:"url"`
	StatusTTL time.Duration `yaml:"status_ttl"`
}

// S3Config holds the object store configuration
type S3Config struct {
	Bucket     string        `yaml:"bucket"`
	Region     string        `yaml:"region"`
	Endpoint   string        `yaml:"endpoint"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// ProvidersConfig holds the two upstream provider configurations
type ProvidersConfig struct {
	Stations ProviderConfig      `yaml:"stations"`
	Images   ImageProviderConfig `yaml:"images"`
}

// ProviderConfig holds one upstream HTTP client's settings
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	MaxRetryAfter  time.Duration `yaml:"max_retry_after"`
}

// ImageProviderConfig extends ProviderConfig with the API key
type ImageProviderConfig struct {
	ProviderConfig `yaml:",inline"`
	APIKey         string `yaml:"api_key"`
}

// SelectorConfig holds the item-selection policy
type SelectorConfig struct {
	HardCap     int  `yaml:"hard_cap"`
	FallbackCap int  `yaml:"fallback_cap"`
	Strict      bool `yaml:"strict"`
}

// CompositorConfig holds image composition settings
type CompositorConfig struct {
	MaxWidth          int     `yaml:"max_width"`
	MaxHeight         int     `yaml:"max_height"`
	BaseFontSize      float64 `yaml:"base_font_size"`
	MinFontSize       float64 `yaml:"min_font_size"`
	FontSizeStep      float64 `yaml:"font_size_step"`
	WatermarkFontSize float64 `yaml:"watermark_font_size"`
	JPEGQuality       int     `yaml:"jpeg_quality"`
	PlaceholderWidth  int     `yaml:"placeholder_width"`
	PlaceholderHeight int     `yaml:"placeholder_height"`
	Notice            string  `yaml:"notice"`
	TimestampFormat   string  `yaml:"timestamp_format"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

func (c *Config) validateCommon() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.DispatchQueue.Name == "" {
		return fmt.Errorf("rabbitmq dispatch queue name is required")
	}

	if c.RabbitMQ.WorkItemQueue.Name == "" {
		return fmt.Errorf("rabbitmq work item queue name is required")
	}

	return nil
}

// ValidateAPIConfig checks the config needed by the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return c.validateCommon()
}

// ValidateDispatcherConfig checks the config needed by the dispatcher service
func (c *Config) ValidateDispatcherConfig() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.Providers.Stations.BaseURL == "" {
		return fmt.Errorf("stations provider base_url is required")
	}

	if c.Selector.HardCap <= 0 || c.Selector.HardCap > MaxItemsCeiling {
		return fmt.Errorf("selector hard_cap must be between 1 and %d", MaxItemsCeiling)
	}

	if c.Selector.FallbackCap <= 0 {
		return fmt.Errorf("selector fallback_cap must be greater than 0")
	}

	return nil
}

// ValidateWorkerConfig checks the config needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Providers.Images.BaseURL == "" {
		return fmt.Errorf("images provider base_url is required")
	}

	if c.S3.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}

	return nil
}
