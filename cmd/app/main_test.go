package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
)

// setupEnv 使用临时目录下的内存存储，控制台通知
func setupEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "radar.json")
	t.Setenv("STORE", "memory")
	t.Setenv("DATABASE_URL", path)
	t.Setenv("NOTIFICATION_PROVIDER", "console")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("MONITORED_REPOS", "")
	t.Setenv("LOG_OUTPUT", "stderr")
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"radar"}, args...))
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	app := newApp()
	names := make([]string, 0, len(app.Commands))
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}

	for _, want := range []string{"ingest", "compare", "serve", "subscribe", "unsubscribe", "repos", "snapshots", "comparisons", "runs", "notifications"} {
		assert.Contains(t, names, want)
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{name: "对比只给一个仓库", args: []string{"compare", "acme/a"}, wantCode: common.ErrCodeInvalidInput},
		{name: "对比没有分析数据", args: []string{"compare", "acme/a", "acme/b"}, wantCode: common.ErrCodeInsufficientData},
		{name: "订阅未监控的仓库", args: []string{"subscribe", "--user", "alice", "acme/a"}, wantCode: common.ErrCodeNotFound},
		{name: "取消不存在的订阅", args: []string{"unsubscribe", "--user", "alice", "acme/a"}, wantCode: common.ErrCodeNotFound},
		{name: "没有监控仓库时抓取", args: []string{"ingest"}, wantCode: common.ErrCodeInvalidInput},
		{name: "非法日志级别", args: []string{"--log-level", "verbose", "repos"}, wantCode: common.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t)
			_, err := runApp(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, common.CodeOf(err))
		})
	}
}

func TestReposOutputsJSON(t *testing.T) {
	setupEnv(t)

	out, err := runApp(t, "repos")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestRunsOutputsJSON(t *testing.T) {
	setupEnv(t)

	out, err := runApp(t, "runs")
	require.NoError(t, err)

	var runs []*domain.IngestRun
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	assert.Empty(t, runs)
}
