package config

import (
	"fmt"
	"os"
	"strconv"
)

// FakerConfig configures the faker binary. It is driven by environment
// variables so a container can run it without a config file.
type FakerConfig struct {
	Port        string
	LoginCode   string // 4-digit code the verify step accepts
	PageSize    int    // list feed page size
	FixturePath string // optional fixture file; empty generates one
	Events      int    // generated transaction count when no fixture is given
}

func LoadFakerConfig() (*FakerConfig, error) {
	pageSize, err := getEnvIntOrDefault("TR_FAKER_PAGE_SIZE", 3)
	if err != nil {
		return nil, err
	}
	events, err := getEnvIntOrDefault("TR_FAKER_EVENTS", 12)
	if err != nil {
		return nil, err
	}

	cfg := &FakerConfig{
		Port:        getEnvOrDefault("TR_FAKER_PORT", "8080"),
		LoginCode:   getEnvOrDefault("TR_FAKER_CODE", "1234"),
		PageSize:    pageSize,
		FixturePath: os.Getenv("TR_FAKER_FIXTURE"),
		Events:      events,
	}

	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("invalid TR_FAKER_PAGE_SIZE: %d (must be >= 1)", cfg.PageSize)
	}
	if cfg.Events < 1 {
		return nil, fmt.Errorf("invalid TR_FAKER_EVENTS: %d (must be >= 1)", cfg.Events)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, val)
	}
	return n, nil
}
