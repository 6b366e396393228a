package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staycount/generic"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "staycount.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STAYCOUNT_DATABASE_PATH", filepath.Join(t.TempDir(), "db", "staycount.db"))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 90, cfg.Server.MaxTripDays)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Hour, cfg.Snapshot.Interval)
	assert.Equal(t, "schengen", cfg.Engine.PrimaryZone)
	assert.Equal(t, generic.DefaultSearchHorizon, cfg.Engine.SearchHorizonDays)
	assert.Empty(t, cfg.ExtraRules())
}

func TestLoad_FileWithRules(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "staycount.db")
	path := writeConfig(t, `
server:
  port: 9000
database:
  path: `+dbPath+`
logging:
  level: debug
  format: text
redis:
  enabled: true
  addr: redis:6379
  ttl: 5m
snapshot:
  interval: 30m
  concurrency: 8
rules:
  - code: th_visa_exempt
    name: Thailand
    days_allowed: 60
    window_days: 180
    counting_method: rolling
  - code: pt_tax
    name: Portugal tax year
    days_allowed: 183
    counting_method: calendar_year
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, 30*time.Minute, cfg.Snapshot.Interval)
	assert.Equal(t, 8, cfg.Snapshot.Concurrency)

	rules := cfg.ExtraRules()
	require.Len(t, rules, 2)
	assert.Equal(t, generic.JurisdictionCode("th_visa_exempt"), rules[0].Code)
	assert.Equal(t, generic.MethodRolling, rules[0].Method)
	assert.Equal(t, generic.MethodCalendarYear, rules[1].Method)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("STAYCOUNT_DATABASE_PATH", filepath.Join(t.TempDir(), "staycount.db"))
	t.Setenv("STAYCOUNT_SERVER_PORT", "9191")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoad_InvalidRuleIsFatal(t *testing.T) {
	for name, rule := range map[string]string{
		"zero allowance": `
  - code: broken
    days_allowed: 0
    window_days: 180
    counting_method: rolling`,
		"oversized allowance": `
  - code: broken
    days_allowed: 5000
    window_days: 5000
    counting_method: rolling`,
		"missing method": `
  - code: broken
    days_allowed: 90
    window_days: 180`,
	} {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, `
database:
  path: `+filepath.Join(t.TempDir(), "staycount.db")+`
rules:`+rule+`
`)

			_, err := Load(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, generic.ErrConfiguration)
		})
	}
}

func TestLoad_MaxTripDaysBounded(t *testing.T) {
	t.Setenv("STAYCOUNT_DATABASE_PATH", filepath.Join(t.TempDir(), "staycount.db"))
	t.Setenv("STAYCOUNT_SERVER_MAX_TRIP_DAYS", "5000")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_trip_days")
}

func TestLoad_InvalidFormat(t *testing.T) {
	path := writeConfig(t, `
database:
  path: `+filepath.Join(t.TempDir(), "staycount.db")+`
logging:
  format: xml
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging format")
}
