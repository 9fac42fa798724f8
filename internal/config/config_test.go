package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Empty(t, cfg.Redis.Addr, "memory stores by default")

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, ".", "botflow.yaml", `
log:
  level: debug
  format: json
redis:
  addr: localhost:6379
  session_ttl: 24h
engine:
  max_steps: 20
  suspend_ttl: 30m
scheduler:
  workers: 8
  retry_backoff: 90s
  timezone: America/Sao_Paulo
telegram:
  bots:
    - tenant: acme
      id: support
      token: "123:abc"
`)
	t.Setenv("BOTFLOW_ENGINE_MAX_STEPS", "50")
	t.Setenv("BOTFLOW_SQLITE_PATH", "/var/lib/botflow/jobs.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Redis.SessionTTL)
	assert.Equal(t, "botflow:", cfg.Redis.Prefix, "unset keys keep their default")
	assert.Equal(t, 50, cfg.Engine.MaxSteps, "environment wins over the file")
	assert.Equal(t, 30*time.Minute, cfg.Engine.SuspendTTL)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.RetryBackoff)
	assert.Equal(t, "/var/lib/botflow/jobs.db", cfg.SQLite.Path)

	token, ok := cfg.BotToken("acme", "support")
	assert.True(t, ok)
	assert.Equal(t, "123:abc", token)
	_, ok = cfg.BotToken("acme", "sales")
	assert.False(t, ok)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "BOTFLOW_HTTP_ADDR=:9090\nBOTFLOW_SCHEDULER_SEND_TIMEOUT=5s\n")
	t.Cleanup(func() {
		os.Unsetenv("BOTFLOW_HTTP_ADDR")
		os.Unsetenv("BOTFLOW_SCHEDULER_SEND_TIMEOUT")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.SendTimeout)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("missing.yaml")
	assert.Error(t, err)

	bad := writeFile(t, ".", "bad.yaml", "engine: [not, a, map]")
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("BOTFLOW_SCHEDULER_WORKERS", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "BOTFLOW_SCHEDULER_WORKERS")
}

func TestValidate_ReportsEverything(t *testing.T) {
	cfg := Defaults()
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Engine.MaxSteps = 0
	cfg.Scheduler.Workers = -1
	cfg.Scheduler.Timezone = "Mars/Olympus"
	cfg.Telegram.Bots = []BotConfig{{Tenant: "acme"}}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"loud", "xml", "max_steps", "workers", "timezone", "telegram.bots[0]"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestApplyEnv_Lookup(t *testing.T) {
	env := map[string]string{
		"BOTFLOW_REDIS_DB":           "2",
		"BOTFLOW_ENGINE_SUSPEND_TTL": "soon",
	}
	cfg := Defaults()
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.ErrorContains(t, err, "BOTFLOW_ENGINE_SUSPEND_TTL")
	assert.Equal(t, 2, cfg.Redis.DB)
}
