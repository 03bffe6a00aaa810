package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempConfig writes content to a temporary config file and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, `bookwatch:
  name: "TestApp"
  version: "1.0"
exchange:
  symbol: "ethusdt"
  base_url: "https://api.binance.com/"
  depth: 20
refresh:
  interval: 5s
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Bookwatch.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Bookwatch.Name)
	}
	if cfg.Exchange.Symbol != "ETHUSDT" {
		t.Errorf("symbol not normalised: %s", cfg.Exchange.Symbol)
	}
	if cfg.Exchange.BaseURL != "https://api.binance.com" {
		t.Errorf("trailing slash not trimmed: %s", cfg.Exchange.BaseURL)
	}
	if cfg.Exchange.Depth != 20 {
		t.Errorf("unexpected depth: %d", cfg.Exchange.Depth)
	}
	if cfg.Refresh.Interval != 5*time.Second {
		t.Errorf("unexpected interval: %s", cfg.Refresh.Interval)
	}
	// untouched keys keep their defaults
	if cfg.Exchange.TradesLimit != 15 || cfg.Exchange.RequestTimeout != 10*time.Second {
		t.Errorf("defaults lost: %+v", cfg.Exchange)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BOOKWATCH_SYMBOL", "solusdt")
	t.Setenv("BOOKWATCH_BASE_URL", "http://127.0.0.1:9000")
	path := writeTempConfig(t, "bookwatch:\n  name: x\n  version: y\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Exchange.Symbol != "SOLUSDT" {
		t.Errorf("env symbol ignored: %s", cfg.Exchange.Symbol)
	}
	if cfg.Exchange.BaseURL != "http://127.0.0.1:9000" {
		t.Errorf("env base url ignored: %s", cfg.Exchange.BaseURL)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing name", "bookwatch:\n  name: \"\"\n", "bookwatch.name"},
		{"depth too large", "exchange:\n  depth: 6000\n", "exchange.depth"},
		{"zero trades", "exchange:\n  trades_limit: 0\n", "exchange.trades_limit"},
		{"bad symbol", "exchange:\n  symbol: \"BTC/USDT\"\n", "exchange.symbol"},
		{"bad scheme", "exchange:\n  base_url: \"ftp://example.com\"\n", "exchange.base_url"},
		{"cloudwatch without region", "metrics:\n  cloudwatch:\n    enabled: true\n", "metrics.cloudwatch.region"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AWS_REGION", "")
			_, err := LoadConfig(writeTempConfig(t, tt.content))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := LoadConfig("config.yml")
	if err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
	if cfg.Exchange.Symbol == "" {
		t.Fatalf("sample config has no symbol")
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("APP_ENV", "")
	if got := ResolvePath(""); got != DefaultPath {
		t.Errorf("development should use default path, got %s", got)
	}
	if got := ResolvePath("custom.yml"); got != "custom.yml" {
		t.Errorf("explicit path must win, got %s", got)
	}

	t.Setenv("APP_ENV", "prod")
	if AppEnvironment() != EnvironmentProduction {
		t.Errorf("alias not resolved: %s", AppEnvironment())
	}
	if !IsProductionLike(AppEnvironment()) {
		t.Errorf("production must be production-like")
	}
	// no config.production.yml next to the default path in tests
	if got := ResolvePath(""); got != DefaultPath {
		t.Errorf("expected fallback to default path, got %s", got)
	}
}
