package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected defaults to load, got error: %v", err)
	}

	if cfg.API.WSURL != "wss://api.traderepublic.com" {
		t.Errorf("unexpected default ws_url: %s", cfg.API.WSURL)
	}
	if cfg.API.RESTURL != "https://api.traderepublic.com" {
		t.Errorf("unexpected default rest_url: %s", cfg.API.RESTURL)
	}
	if cfg.API.Locale != "de" {
		t.Errorf("unexpected default locale: %s", cfg.API.Locale)
	}
	if cfg.API.SubscribeTimeoutSec != 300 {
		t.Errorf("unexpected default subscribe timeout: %d", cfg.API.SubscribeTimeoutSec)
	}
	if cfg.Login.Mode != "web" {
		t.Errorf("unexpected default login mode: %s", cfg.Login.Mode)
	}
	if cfg.Timeline.DetailWorkers != 3 {
		t.Errorf("expected 3 detail workers by default, got %d", cfg.Timeline.DetailWorkers)
	}
	if cfg.Output.Directory != "export" {
		t.Errorf("unexpected default output directory: %s", cfg.Output.Directory)
	}
	if cfg.Notify.Enabled {
		t.Error("notifications must be disabled by default")
	}
	if cfg.Notify.Server != "https://ntfy.sh" {
		t.Errorf("unexpected default notify server: %s", cfg.Notify.Server)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
api:
  locale: en
  rate_per_second: 5
login:
  mode: app
timeline:
  detail_workers: 8
  include_pending: true
notify:
  enabled: true
  topic: my-exports
  priority: high
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Locale != "en" {
		t.Errorf("locale: got %s", cfg.API.Locale)
	}
	if cfg.API.RatePerSecond != 5 {
		t.Errorf("rate: got %d", cfg.API.RatePerSecond)
	}
	if cfg.Login.Mode != "app" {
		t.Errorf("mode: got %s", cfg.Login.Mode)
	}
	if cfg.Timeline.DetailWorkers != 8 {
		t.Errorf("workers: got %d", cfg.Timeline.DetailWorkers)
	}
	if !cfg.Timeline.IncludePending {
		t.Error("include_pending not loaded")
	}
	if !cfg.Notify.Enabled || cfg.Notify.Topic != "my-exports" || cfg.Notify.Priority != "high" {
		t.Errorf("notify not loaded: %+v", cfg.Notify)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TR_HIBISCUS_OUTPUT_DIRECTORY", "/tmp/exports")
	t.Setenv("TR_HIBISCUS_API_RATE_PER_SECOND", "2")
	t.Setenv("TR_HIBISCUS_NTFY_TOKEN", "tk-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Output.Directory != "/tmp/exports" {
		t.Errorf("output directory: got %s", cfg.Output.Directory)
	}
	if cfg.API.RatePerSecond != 2 {
		t.Errorf("rate: got %d", cfg.API.RatePerSecond)
	}
	if cfg.Notify.Token != "tk-secret" {
		t.Errorf("token: got %s", cfg.Notify.Token)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Login:    LoginConfig{Mode: "web"},
			Timeline: TimelineConfig{DetailWorkers: 3},
		}
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg = valid()
	cfg.Login.Mode = "desktop"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown login mode")
	}

	cfg = valid()
	cfg.Timeline.DetailWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero workers")
	}

	cfg = valid()
	cfg.API.RatePerSecond = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative rate")
	}

	cfg = valid()
	cfg.Notify.Enabled = true
	cfg.Notify.Priority = "default"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for enabled notifications without topic")
	}
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("api: ["), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config file")
	}
}

func TestLoadFakerConfigDefaults(t *testing.T) {
	cfg, err := LoadFakerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port: got %s", cfg.Port)
	}
	if cfg.LoginCode != "1234" {
		t.Errorf("code: got %s", cfg.LoginCode)
	}
	if cfg.PageSize != 3 {
		t.Errorf("page size: got %d", cfg.PageSize)
	}
	if cfg.Events != 12 {
		t.Errorf("events: got %d", cfg.Events)
	}
}

func TestLoadFakerConfigFromEnv(t *testing.T) {
	t.Setenv("TR_FAKER_PORT", "9911")
	t.Setenv("TR_FAKER_CODE", "4711")
	t.Setenv("TR_FAKER_PAGE_SIZE", "7")

	cfg, err := LoadFakerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9911" || cfg.LoginCode != "4711" || cfg.PageSize != 7 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadFakerConfigBadValues(t *testing.T) {
	t.Setenv("TR_FAKER_PAGE_SIZE", "many")
	if _, err := LoadFakerConfig(); err == nil {
		t.Error("expected error for non-numeric page size")
	}

	t.Setenv("TR_FAKER_PAGE_SIZE", "0")
	if _, err := LoadFakerConfig(); err == nil {
		t.Error("expected error for zero page size")
	}
}
