package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-release-radar/internal/common"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "console", cfg.NotificationProvider)
	assert.Equal(t, 300*time.Millisecond, cfg.IngestDelay)
	assert.Equal(t, 20*time.Second, cfg.EnrichTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "radar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
monitored_repos:
  - golang/go
  - https://github.com/gohugoio/hugo
store: memory
notification_provider: webhook
ingest_delay: 1s
`), 0o600))

	t.Setenv("NOTIFICATION_WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("ENRICH_TIMEOUT", "5s")
	t.Setenv("MONITORED_REPOS", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"golang/go", "gohugoio/hugo"}, cfg.MonitoredRepos)
	assert.Equal(t, "webhook", cfg.NotificationProvider)
	assert.Equal(t, "https://hooks.example.com/x", cfg.WebhookURL)
	assert.Equal(t, time.Second, cfg.IngestDelay)
	assert.Equal(t, 5*time.Second, cfg.EnrichTimeout)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MONITORED_REPOS": "Golang/Go, golang/go, bad repo",
		"STORE":           "postgres",
		"DATABASE_URL":    "host=localhost dbname=radar",
		"WORKER_INTERVAL": "15m",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	cfg.normalizeRepos()

	assert.Equal(t, []string{"golang/go"}, cfg.MonitoredRepos)
	assert.Equal(t, []string{"bad repo"}, cfg.InvalidRepos)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, 15*time.Minute, cfg.WorkerInterval)
}

func TestApplyEnv_BadDuration(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "INGEST_DELAY" {
			return "soon", true
		}
		return "", false
	})

	assert.Error(t, err)
	assert.Equal(t, common.ErrCodeInvalidInput, common.CodeOf(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "未知存储", mutate: func(c *Config) { c.Store = "mysql" }},
		{name: "未知通知渠道", mutate: func(c *Config) { c.NotificationProvider = "sms" }},
		{name: "负数延迟", mutate: func(c *Config) { c.IngestDelay = -time.Second }},
		{name: "超时为 0", mutate: func(c *Config) { c.RemoteTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
