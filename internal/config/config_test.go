package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `
app:
  environment: test
advisors:
  - name: deepseek
    base_url: https://api.deepseek.com/v1
    api_key_env: DEEPSEEK_API_KEY
    model: deepseek-chat
    timeout: 60s
trading:
  pairs:
    - symbol: BTCUSDT
      short_interval: 3m
      long_interval: 4h
      kline_limit: 100
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if !cfg.Exchange.Testnet {
		t.Errorf("testnet must default to true")
	}
	if cfg.Exchange.RecvWindow != 5000 {
		t.Errorf("expected default recv_window 5000, got %d", cfg.Exchange.RecvWindow)
	}
	if cfg.Exchange.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.Exchange.Timeout)
	}
	if cfg.Exchange.Retry.MaxAttempts != 3 || cfg.Exchange.Retry.Delay != 2*time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg.Exchange.Retry)
	}
	if cfg.Trading.ConfidenceThreshold != 0.6 {
		t.Errorf("expected default confidence threshold 0.6, got %f", cfg.Trading.ConfidenceThreshold)
	}
	if cfg.Scheduler.Interval != 3*time.Minute {
		t.Errorf("expected default interval 3m, got %v", cfg.Scheduler.Interval)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("expected default port 5000, got %d", cfg.Server.Port)
	}
}

func TestLoad_ResolvesSecretsFromEnv(t *testing.T) {
	t.Setenv("EXCHANGE_API_KEY", "env-key")
	t.Setenv("EXCHANGE_API_SECRET", "env-secret")
	t.Setenv("DEEPSEEK_API_KEY", "advisor-key")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Exchange.APIKey != "env-key" || cfg.Exchange.APISecret != "env-secret" {
		t.Errorf("exchange secrets not resolved: %q/%q", cfg.Exchange.APIKey, cfg.Exchange.APISecret)
	}
	if cfg.Advisors[0].APIKey != "advisor-key" {
		t.Errorf("advisor key not resolved: %q", cfg.Advisors[0].APIKey)
	}
}

func TestLoad_EnvOverridesFileSecret(t *testing.T) {
	t.Setenv("EXCHANGE_API_KEY", "from-env")

	content := minimalConfig + `
exchange:
  api_key: from-file
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Exchange.APIKey != "from-env" {
		t.Errorf("env must win over file, got %q", cfg.Exchange.APIKey)
	}
}

func TestLoad_ValidationAccumulatesErrors(t *testing.T) {
	content := `
app:
  environment: test
advisors:
  - name: ""
    model: ""
    timeout: 60s
trading:
  confidence_threshold: 1.5
  pairs:
    - symbol: BTCUSDT
      short_interval: 3m
      long_interval: 4h
      kline_limit: 100
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, fragment := range []string{"advisors[0].name", "advisors[0].model", "confidence_threshold"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("validation error should mention %q: %v", fragment, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
