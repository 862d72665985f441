package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  root: /var/lib/reportflow
  auto_cleanup: true
  keep_latest: 3
api:
  base_url: https://bi.example.com
  headers:
    X-Operator: ops
    X-Company: "42"
export:
  poll_interval_seconds: 10
  max_wait_seconds: 600
  check_retries: 5
  check_backoff_ms: 250
modules:
  inventory_query:
    enabled: true
    preset: inventory_query
    overrides:
      unit_type: SALE
  sales_analysis:
    enabled: false
    report_type: sales_analysis_v2
    custom:
      date_range: DAY
reports:
  enabled:
    - inventory_summary
    - sales_summary
metrics:
  enabled: true
  port: 9191
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/reportflow", cfg.Storage.Root)
	assert.True(t, cfg.Storage.AutoCleanup)
	assert.Equal(t, 3, cfg.Storage.KeepLatest)

	assert.Equal(t, "https://bi.example.com", cfg.API.BaseURL)
	assert.Equal(t, "ops", cfg.API.Headers["X-Operator"])

	assert.Equal(t, 10*time.Second, cfg.pollInterval())
	assert.Equal(t, 10*time.Minute, cfg.maxWait())
	assert.Equal(t, 5, cfg.Export.CheckRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.checkBackoff())

	require.Contains(t, cfg.Modules, "inventory_query")
	inventory := cfg.Modules["inventory_query"]
	assert.True(t, inventory.Enabled)
	assert.Equal(t, "inventory_query", inventory.Preset)
	assert.Equal(t, "SALE", inventory.Overrides["unit_type"])

	sales := cfg.Modules["sales_analysis"]
	assert.False(t, sales.Enabled)
	assert.Equal(t, "sales_analysis_v2", sales.ReportType)
	assert.Equal(t, "DAY", sales.Custom["date_range"])

	assert.Equal(t, []string{"inventory_summary", "sales_summary"}, cfg.Reports.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Metrics.Port)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://bi.example.com
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "storage", cfg.Storage.Root)
	assert.Equal(t, 1, cfg.Storage.KeepLatest)
	assert.Equal(t, 15*time.Second, cfg.pollInterval())
	assert.Equal(t, 5*time.Minute, cfg.maxWait())
	assert.Equal(t, 3, cfg.Export.CheckRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.checkBackoff())
	assert.Equal(t, 3, cfg.Export.DownloadRetries)
	assert.Equal(t, 2*time.Second, cfg.downloadDelay())
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := writeConfig(t, "storage: [broken")
	_, err := loadConfig(path)
	assert.ErrorContains(t, err, "parse")
}
