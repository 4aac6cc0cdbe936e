package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hibiscus-tools/tr-hibiscus/internal/notify"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Login    LoginConfig    `mapstructure:"login"`
	Timeline TimelineConfig `mapstructure:"timeline"`
	Output   OutputConfig   `mapstructure:"output"`
	Notify   notify.Config  `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type APIConfig struct {
	WSURL               string `mapstructure:"ws_url"`
	RESTURL             string `mapstructure:"rest_url"`
	Locale              string `mapstructure:"locale"`
	SubscribeTimeoutSec int    `mapstructure:"subscribe_timeout_sec"`
	RatePerSecond       int    `mapstructure:"rate_per_second"`
}

type LoginConfig struct {
	Mode string `mapstructure:"mode"` // "web" or "app"
}

type TimelineConfig struct {
	DetailWorkers  int  `mapstructure:"detail_workers"`
	IncludePending bool `mapstructure:"include_pending"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("api.ws_url", "wss://api.traderepublic.com")
	v.SetDefault("api.rest_url", "https://api.traderepublic.com")
	v.SetDefault("api.locale", "de")
	v.SetDefault("api.subscribe_timeout_sec", 300)
	v.SetDefault("api.rate_per_second", 10)
	v.SetDefault("login.mode", "web")
	v.SetDefault("timeline.detail_workers", 3)
	v.SetDefault("timeline.include_pending", false)
	v.SetDefault("output.directory", "export")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "bank")
	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("TR_HIBISCUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("notify.token", "TR_HIBISCUS_NTFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Login.Mode != "web" && c.Login.Mode != "app" {
		return fmt.Errorf("invalid login mode: %s (must be 'web' or 'app')", c.Login.Mode)
	}
	if c.Timeline.DetailWorkers < 1 {
		return fmt.Errorf("detail_workers must be >= 1")
	}
	if c.API.RatePerSecond < 0 {
		return fmt.Errorf("rate_per_second must be >= 0")
	}
	if c.API.SubscribeTimeoutSec < 0 {
		return fmt.Errorf("subscribe_timeout_sec must be >= 0")
	}
	if err := c.Notify.Validate(); err != nil {
		return err
	}
	return nil
}
