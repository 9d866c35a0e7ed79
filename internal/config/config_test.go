package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "weathercards_db", cfg.Database.Database)
				assert.Equal(t, "jobs_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "job_dispatch", cfg.RabbitMQ.DispatchQueue.Name)
				assert.Equal(t, "job.workitem", cfg.RabbitMQ.WorkItemQueue.RoutingKey)
				assert.Equal(t, "jobs_dlx", cfg.RabbitMQ.DeadLetterExchange)
				assert.Equal(t, 20, cfg.Selector.HardCap)
				assert.Equal(t, 85, cfg.Compositor.JPEGQuality)
				assert.Equal(t, "weathercards-results", cfg.S3.Bucket)
				assert.Equal(t, time.Hour, cfg.S3.PresignTTL)
				assert.Equal(t, 8, cfg.Worker.Concurrency)
			}
		})
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)
	return cfg
}

func TestValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{"valid", func(c *Config) {}, ""},
		{"server port too low", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"server port too high", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"missing database host", func(c *Config) { c.Database.Host = "" }, "database host is required"},
		{"missing rabbitmq host", func(c *Config) { c.RabbitMQ.Host = "" }, "rabbitmq host is required"},
		{"missing exchange", func(c *Config) { c.RabbitMQ.Exchange.Name = "" }, "exchange name is required"},
		{"missing dispatch queue", func(c *Config) { c.RabbitMQ.DispatchQueue.Name = "" }, "dispatch queue name is required"},
		{"missing work item queue", func(c *Config) { c.RabbitMQ.WorkItemQueue.Name = "" }, "work item queue name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			}
		})
	}
}

func TestValidateDispatcherConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing stations url", func(c *Config) { c.Providers.Stations.BaseURL = "" }, "stations provider base_url is required"},
		{"zero hard cap", func(c *Config) { c.Selector.HardCap = 0 }, "hard_cap"},
		{"hard cap above ceiling", func(c *Config) { c.Selector.HardCap = 500 }, "hard_cap"},
		{"zero fallback cap", func(c *Config) { c.Selector.FallbackCap = 0 }, "fallback_cap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.ValidateDispatcherConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			}
		})
	}
}

func TestValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, "concurrency"},
		{"zero job timeout", func(c *Config) { c.Worker.JobTimeout = 0 }, "job_timeout"},
		{"zero shutdown timeout", func(c *Config) { c.Worker.ShutdownTimeout = 0 }, "shutdown_timeout"},
		{"missing images url", func(c *Config) { c.Providers.Images.BaseURL = "" }, "images provider base_url is required"},
		{"missing bucket", func(c *Config) { c.S3.Bucket = "" }, "s3 bucket is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			}
		})
	}
}
