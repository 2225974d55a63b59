package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Quoteflow  QuoteflowConfig  `yaml:"quoteflow"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	API        APIConfig        `yaml:"api"`
	Venues     VenuesConfig     `yaml:"venues"`
	Stream     StreamConfig     `yaml:"stream"`
	Capture    CaptureConfig    `yaml:"capture"`
}

type QuoteflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type AggregatorConfig struct {
	MaxAgeMs     int64         `yaml:"max_age_ms"`
	VenueTimeout time.Duration `yaml:"venue_timeout"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type VenuesConfig struct {
	Binance VenueConfig `yaml:"binance"`
	Bybit   VenueConfig `yaml:"bybit"`
	Kucoin  VenueConfig `yaml:"kucoin"`
	Okx     VenueConfig `yaml:"okx"`
	Mock    VenueConfig `yaml:"mock"`
}

type VenueConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	SpotURL        string               `yaml:"spot_url"`
	FuturesURL     string               `yaml:"futures_url"`
	Depth          int                  `yaml:"depth"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Timeout        time.Duration        `yaml:"timeout"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type StreamConfig struct {
	Enabled bool     `yaml:"enabled"`
	URL     string   `yaml:"url"`
	Symbols []string `yaml:"symbols"`
}

type CaptureConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Directory     string        `yaml:"directory"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BatchSize     int           `yaml:"batch_size"`
	S3            S3Config      `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LoadConfig reads and validates the yaml configuration at path. Environment
// specific files (config.<env>.yml) take precedence when APP_ENV is set.
func LoadConfig(path string) (*Config, error) {
	path = resolveConfigPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Quoteflow.Name == "" {
		c.Quoteflow.Name = "quoteflow"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Aggregator.MaxAgeMs <= 0 {
		c.Aggregator.MaxAgeMs = 30000
	}
	if c.Aggregator.VenueTimeout <= 0 {
		c.Aggregator.VenueTimeout = 10 * time.Second
	}
	if c.API.Address == "" {
		c.API.Address = ":8080"
	}
	if c.Capture.FlushInterval <= 0 {
		c.Capture.FlushInterval = 30 * time.Second
	}
	if c.Capture.BatchSize <= 0 {
		c.Capture.BatchSize = 500
	}
	if c.Capture.Directory == "" {
		c.Capture.Directory = "./data"
	}

	for _, vc := range []*VenueConfig{&c.Venues.Binance, &c.Venues.Bybit, &c.Venues.Kucoin, &c.Venues.Okx, &c.Venues.Mock} {
		if vc.Timeout <= 0 {
			vc.Timeout = 10 * time.Second
		}
		if vc.Depth <= 0 {
			vc.Depth = 100
		}
		if vc.ConnectionPool.MaxIdleConns <= 0 {
			vc.ConnectionPool.MaxIdleConns = 10
		}
		if vc.ConnectionPool.MaxConnsPerHost <= 0 {
			vc.ConnectionPool.MaxConnsPerHost = 10
		}
		if vc.ConnectionPool.IdleConnTimeout <= 0 {
			vc.ConnectionPool.IdleConnTimeout = 90 * time.Second
		}
		if vc.RateLimit.RequestsPerSecond <= 0 {
			vc.RateLimit.RequestsPerSecond = 5
		}
		if vc.RateLimit.BurstSize <= 0 {
			vc.RateLimit.BurstSize = 1
		}
	}
}

func (c *Config) validate() error {
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format '%s'", c.Logging.Format)
	}

	if c.Capture.Enabled && c.Capture.S3.Enabled {
		if c.Capture.S3.Bucket == "" {
			return fmt.Errorf("capture s3 enabled but bucket is empty")
		}
		if c.Capture.S3.Region == "" {
			return fmt.Errorf("capture s3 enabled but region is empty")
		}
	}

	if c.Stream.Enabled && len(c.Stream.Symbols) == 0 {
		return fmt.Errorf("stream enabled but no symbols configured")
	}

	return nil
}
