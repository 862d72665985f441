package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration, mapped from the YAML file. The
// configuration layer normalizes everything here; the core packages only
// ever see resolved plain values.
type Config struct {
	Storage struct {
		Root        string `yaml:"root"`
		AutoCleanup bool   `yaml:"auto_cleanup"`
		KeepLatest  int    `yaml:"keep_latest"`
	} `yaml:"storage"`

	API struct {
		BaseURL string            `yaml:"base_url"`
		Headers map[string]string `yaml:"headers"`
	} `yaml:"api"`

	Export struct {
		PollIntervalSeconds  int `yaml:"poll_interval_seconds"`
		MaxWaitSeconds       int `yaml:"max_wait_seconds"`
		CheckRetries         int `yaml:"check_retries"`
		CheckBackoffMs       int `yaml:"check_backoff_ms"`
		DownloadRetries      int `yaml:"download_retries"`
		DownloadDelaySeconds int `yaml:"download_delay_seconds"`
	} `yaml:"export"`

	Modules map[string]ModuleConfig `yaml:"modules"`

	Reports struct {
		Enabled []string `yaml:"enabled"`
	} `yaml:"reports"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// ModuleConfig is one acquisition module's switch and parameter spec.
// Exactly one of Preset or Custom should be set; Overrides only accompany a
// Preset.
type ModuleConfig struct {
	Enabled    bool           `yaml:"enabled"`
	ReportType string         `yaml:"report_type"` // defaults to the module name
	Preset     string         `yaml:"preset"`
	Overrides  map[string]any `yaml:"overrides"`
	Custom     map[string]any `yaml:"custom"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "storage"
	}
	if cfg.Storage.KeepLatest == 0 {
		cfg.Storage.KeepLatest = 1
	}
	if cfg.Export.PollIntervalSeconds == 0 {
		cfg.Export.PollIntervalSeconds = 15
	}
	if cfg.Export.MaxWaitSeconds == 0 {
		cfg.Export.MaxWaitSeconds = 300
	}
	if cfg.Export.CheckRetries == 0 {
		cfg.Export.CheckRetries = 3
	}
	if cfg.Export.CheckBackoffMs == 0 {
		cfg.Export.CheckBackoffMs = 500
	}
	if cfg.Export.DownloadRetries == 0 {
		cfg.Export.DownloadRetries = 3
	}
	if cfg.Export.DownloadDelaySeconds == 0 {
		cfg.Export.DownloadDelaySeconds = 2
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func (c *Config) pollInterval() time.Duration {
	return time.Duration(c.Export.PollIntervalSeconds) * time.Second
}

func (c *Config) maxWait() time.Duration {
	return time.Duration(c.Export.MaxWaitSeconds) * time.Second
}

func (c *Config) checkBackoff() time.Duration {
	return time.Duration(c.Export.CheckBackoffMs) * time.Millisecond
}

func (c *Config) downloadDelay() time.Duration {
	return time.Duration(c.Export.DownloadDelaySeconds) * time.Second
}
