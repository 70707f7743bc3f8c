package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOperationsConfigDefaultsWhenFileMissing(t *testing.T) {
	holder, err := LoadOperationsConfig(t.TempDir())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, int64(5), cfg.Stock.DefaultThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Overdue.MinAge)
	assert.Len(t, cfg.Overdue.Levels, 3)
}

func TestLoadOperationsConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`operations:
  stock:
    defaultThreshold: 12
  overdue:
    minAge: 48h
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "operations.yml"), content, 0o600))

	holder, err := LoadOperationsConfig(dir)
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, int64(12), cfg.Stock.DefaultThreshold)
	assert.Equal(t, 48*time.Hour, cfg.Overdue.MinAge)
	assert.Len(t, cfg.Overdue.Levels, 3, "levels fall back to defaults")
}

func TestOverdueSeverityBuckets(t *testing.T) {
	cfg := DefaultOperationsConfig().Overdue

	cases := []struct {
		age      time.Duration
		severity string
		overdue  bool
	}{
		{age: 2 * time.Hour, overdue: false},
		{age: 24 * time.Hour, overdue: false},
		{age: 30 * time.Hour, severity: SeverityMedium, overdue: true},
		{age: 80 * time.Hour, severity: SeverityHigh, overdue: true},
		{age: 200 * time.Hour, severity: SeverityCritical, overdue: true},
	}
	for _, tc := range cases {
		severity, overdue := cfg.SeverityFor(tc.age)
		assert.Equal(t, tc.overdue, overdue, "age %s", tc.age)
		assert.Equal(t, tc.severity, severity, "age %s", tc.age)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("SCHEDULER_INTERVAL", "5m")
	t.Setenv("BUSINESS_TIMEZONE", "Africa/Abidjan")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, "Africa/Abidjan", cfg.Location().String())
}
