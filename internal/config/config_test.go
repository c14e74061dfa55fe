package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dentalvoice/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: "dentalvoice-test"
upload:
  relay_url: "http://localhost:8090/api/v1/voice"
  access_token: "${TEST_DENTALVOICE_TOKEN}"
  timeout: 15s
retry:
  max_attempts: 3
  delays: [0s, 5s, 30s]
queue:
  drain_interval: 2m
store:
  driver: sqlite
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	t.Setenv("TEST_DENTALVOICE_TOKEN", "secret-token")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Upload.AccessToken != "secret-token" {
		t.Errorf("expected expanded access token, got %q", cfg.Upload.AccessToken)
	}
	if cfg.Upload.Timeout != 15*time.Second {
		t.Errorf("expected timeout 15s, got %s", cfg.Upload.Timeout)
	}
	if cfg.Queue.DrainInterval != 2*time.Minute {
		t.Errorf("expected drain interval 2m, got %s", cfg.Queue.DrainInterval)
	}
	if len(cfg.Retry.Delays) != 3 || cfg.Retry.Delays[1] != 5*time.Second {
		t.Errorf("unexpected delays %v", cfg.Retry.Delays)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("expected sqlite driver, got %s", cfg.Store.Driver)
	}
	if cfg.Store.Key != models.DefaultStoreKey {
		t.Errorf("expected default store key, got %s", cfg.Store.Key)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
upload:
  relay_url: "http://localhost:8090/api/v1/voice"
  access_token: "from-file"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	t.Setenv("DENTALVOICE_ACCESS_TOKEN", "from-env")
	t.Setenv("DENTALVOICE_WEBHOOK_URL", "https://hooks.example.com/voice-process")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Upload.AccessToken != "from-env" {
		t.Errorf("expected env override, got %q", cfg.Upload.AccessToken)
	}
	if cfg.Relay.WebhookURL != "https://hooks.example.com/voice-process" {
		t.Errorf("expected webhook url from env, got %q", cfg.Relay.WebhookURL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{Upload: UploadConfig{RelayURL: "http://localhost:8090/api/v1/voice"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "bad relay url", mutate: func(c *Config) { c.Upload.RelayURL = "not a url" }, wantErr: true},
		{name: "unknown store driver", mutate: func(c *Config) { c.Store.Driver = "etcd" }, wantErr: true},
		{name: "unknown fallback", mutate: func(c *Config) { c.Store.Fallback = "s3" }, wantErr: true},
		{name: "too few delays", mutate: func(c *Config) { c.Retry.Delays = []time.Duration{0} }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.Retry.Delays = []time.Duration{0, -time.Second} }, wantErr: true},
		{name: "zero attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Retry.MaxAttempts != models.MaxAttempts {
		t.Errorf("expected default max attempts %d, got %d", models.MaxAttempts, cfg.Retry.MaxAttempts)
	}
	if len(cfg.Retry.Delays) != 3 || cfg.Retry.Delays[2] != 30*time.Second {
		t.Errorf("expected default delays [0s 5s 30s], got %v", cfg.Retry.Delays)
	}
	if cfg.Queue.RefreshInterval != 30*time.Second {
		t.Errorf("expected default refresh interval 30s, got %s", cfg.Queue.RefreshInterval)
	}
	if cfg.Queue.DrainInterval != 5*time.Minute {
		t.Errorf("expected default drain interval 5m, got %s", cfg.Queue.DrainInterval)
	}
	if cfg.Upload.SlowThreshold != 5*time.Second {
		t.Errorf("expected default slow threshold 5s, got %s", cfg.Upload.SlowThreshold)
	}
	if cfg.Store.Driver != DriverFile {
		t.Errorf("expected default file store, got %s", cfg.Store.Driver)
	}
	if cfg.API.HTTP.Port != 8080 || cfg.Relay.HTTP.Port != 8090 {
		t.Errorf("unexpected default ports api=%d relay=%d", cfg.API.HTTP.Port, cfg.Relay.HTTP.Port)
	}
	if cfg.Upload.Source != models.RelaySource {
		t.Errorf("expected default source %q, got %q", models.RelaySource, cfg.Upload.Source)
	}
}
