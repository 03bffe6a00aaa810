package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bookwatch BookwatchConfig `yaml:"bookwatch"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type BookwatchConfig struct {
	Name    string `yaml:"name" validate:"nonzero"`
	Version string `yaml:"version" validate:"nonzero"`
}

type ExchangeConfig struct {
	BaseURL           string               `yaml:"base_url" validate:"nonzero"`
	Symbol            string               `yaml:"symbol" validate:"nonzero,regexp=^[A-Z0-9]+$"`
	Depth             int                  `yaml:"depth" validate:"min=1,max=5000"`
	TradesLimit       int                  `yaml:"trades_limit" validate:"min=1,max=1000"`
	RequestTimeout    time.Duration        `yaml:"request_timeout" validate:"min=1"`
	RequestsPerSecond int                  `yaml:"requests_per_second" validate:"min=1"`
	Burst             int                  `yaml:"burst" validate:"min=1"`
	SourceIP          string               `yaml:"source_ip"`
	ConnectionPool    ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type RefreshConfig struct {
	Interval   time.Duration `yaml:"interval" validate:"min=1"`
	Concurrent bool          `yaml:"concurrent"`
}

type DashboardConfig struct {
	Enabled        bool          `yaml:"enabled"`
	RedrawInterval time.Duration `yaml:"redraw_interval"`
	LogHistory     int           `yaml:"log_history"`
}

type MetricsConfig struct {
	Listen     string           `yaml:"listen"`
	UsedWeight bool             `yaml:"used_weight"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		Bookwatch: BookwatchConfig{Name: "bookwatch", Version: "dev"},
		Exchange: ExchangeConfig{
			BaseURL:           "https://api.binance.com",
			Symbol:            "BTCUSDT",
			Depth:             15,
			TradesLimit:       15,
			RequestTimeout:    10 * time.Second,
			RequestsPerSecond: 10,
			Burst:             3,
			ConnectionPool: ConnectionPoolConfig{
				MaxIdleConns:    10,
				MaxConnsPerHost: 4,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		Refresh: RefreshConfig{Interval: 2 * time.Second},
		Dashboard: DashboardConfig{
			Enabled:        true,
			RedrawInterval: 250 * time.Millisecond,
			LogHistory:     200,
		},
		Metrics: MetricsConfig{
			UsedWeight: true,
			CloudWatch: CloudWatchConfig{Namespace: "Bookwatch", Dashboard: "Bookwatch"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "logs/bookwatch.log",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	config.Exchange.Symbol = strings.ToUpper(strings.TrimSpace(config.Exchange.Symbol))
	config.Exchange.BaseURL = strings.TrimRight(strings.TrimSpace(config.Exchange.BaseURL), "/")

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BOOKWATCH_SYMBOL"); v != "" {
		cfg.Exchange.Symbol = v
	}
	if v := os.Getenv("BOOKWATCH_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" && cfg.Metrics.CloudWatch.Enabled {
		cfg.Metrics.CloudWatch.Region = strings.TrimSpace(v)
	}
}

func validateConfig(cfg *Config) error {
	if errs, ok := validator.Validate(cfg).(validator.ErrorMap); ok {
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		k := keys[0]
		return fmt.Errorf("%s: %s", fieldPath(k), errs[k])
	}

	if !strings.HasPrefix(cfg.Exchange.BaseURL, "http://") && !strings.HasPrefix(cfg.Exchange.BaseURL, "https://") {
		return fmt.Errorf("exchange.base_url '%s' must be an http(s) URL", cfg.Exchange.BaseURL)
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.RedrawInterval <= 0 {
		return fmt.Errorf("dashboard.redraw_interval must be greater than 0 when the dashboard is enabled")
	}

	if cfg.Metrics.CloudWatch.Enabled {
		if cfg.Metrics.CloudWatch.Region == "" {
			return fmt.Errorf("metrics.cloudwatch.region is required when CloudWatch is enabled")
		}
		if cfg.Metrics.CloudWatch.Namespace == "" {
			return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
		}
	}

	return nil
}

var fieldNames = map[string]string{
	"Bookwatch": "bookwatch", "Name": "name", "Version": "version",
	"Exchange": "exchange", "BaseURL": "base_url", "Symbol": "symbol",
	"Depth": "depth", "TradesLimit": "trades_limit", "RequestTimeout": "request_timeout",
	"RequestsPerSecond": "requests_per_second", "Burst": "burst",
	"Refresh": "refresh", "Interval": "interval",
}

// fieldPath maps a validator key such as "Exchange.Depth" to its yaml path.
func fieldPath(key string) string {
	parts := strings.Split(key, ".")
	for i, p := range parts {
		if n, ok := fieldNames[p]; ok {
			parts[i] = n
		}
	}
	return strings.Join(parts, ".")
}
