package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
)

// Config 运行配置。顺序: 默认值 -> YAML 文件 -> .env -> 环境变量，命令行参数最后覆盖
type Config struct {
	MonitoredRepos []string `yaml:"monitored_repos"`

	GitHubToken string `yaml:"github_token" masq:"secret"`

	GeminiAPIKey string `yaml:"gemini_api_key" masq:"secret"`
	GeminiModel  string `yaml:"gemini_model"`

	Store       string `yaml:"store"`
	DatabaseURL string `yaml:"database_url" masq:"secret"`

	NotificationProvider string `yaml:"notification_provider"`
	WebhookURL           string `yaml:"notification_webhook_url" masq:"secret"`
	FeishuWebhook        string `yaml:"feishu_webhook" masq:"secret"`
	NATSURL              string `yaml:"nats_url"`
	NATSSubject          string `yaml:"nats_subject"`

	IngestDelay    time.Duration `yaml:"ingest_delay"`
	EnrichTimeout  time.Duration `yaml:"enrich_timeout"`
	RemoteTimeout  time.Duration `yaml:"remote_timeout"`
	WorkerInterval time.Duration `yaml:"worker_interval"`
	StartupDelay   time.Duration `yaml:"startup_monitoring_delay"`

	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	LogOutput   string `yaml:"log_output"`
	SentryDSN   string `yaml:"sentry_dsn" masq:"secret"`
	MetricsAddr string `yaml:"metrics_addr"`

	// 无法识别的仓库输入，加载时记录下来由调用方打日志
	InvalidRepos []string `yaml:"-"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		GeminiModel:          "gemini-2.5-flash-lite",
		Store:                "memory",
		DatabaseURL:          "./data/radar.json",
		NotificationProvider: "console",
		NATSSubject:          "radar.notifications",
		IngestDelay:          300 * time.Millisecond,
		EnrichTimeout:        20 * time.Second,
		RemoteTimeout:        30 * time.Second,
		LogLevel:             "info",
		LogFormat:            "text",
		LogOutput:            "stdout",
	}
}

// Load 读取配置。yamlPath 为空时跳过 YAML 文件；.env 不存在时忽略
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, common.WrapError(common.ErrCodeInvalidInput, "读取配置文件失败", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, common.WrapError(common.ErrCodeInvalidInput, "解析配置文件失败", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, common.WrapError(common.ErrCodeInvalidInput, "解析 .env 失败", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.normalizeRepos()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"GITHUB_TOKEN":             &c.GitHubToken,
		"GEMINI_API_KEY":           &c.GeminiAPIKey,
		"GEMINI_MODEL":             &c.GeminiModel,
		"STORE":                    &c.Store,
		"DATABASE_URL":             &c.DatabaseURL,
		"NOTIFICATION_PROVIDER":    &c.NotificationProvider,
		"NOTIFICATION_WEBHOOK_URL": &c.WebhookURL,
		"FEISHU_WEBHOOK":           &c.FeishuWebhook,
		"NATS_URL":                 &c.NATSURL,
		"NATS_SUBJECT":             &c.NATSSubject,
		"LOG_LEVEL":                &c.LogLevel,
		"LOG_FORMAT":               &c.LogFormat,
		"LOG_OUTPUT":               &c.LogOutput,
		"SENTRY_DSN":               &c.SentryDSN,
		"METRICS_ADDR":             &c.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"INGEST_DELAY":             &c.IngestDelay,
		"ENRICH_TIMEOUT":           &c.EnrichTimeout,
		"REMOTE_TIMEOUT":           &c.RemoteTimeout,
		"WORKER_INTERVAL":          &c.WorkerInterval,
		"STARTUP_MONITORING_DELAY": &c.StartupDelay,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return common.WrapError(common.ErrCodeInvalidInput, fmt.Sprintf("%s 不是合法的时间间隔", key), err)
		}
		*dst = d
	}

	if v, ok := lookup("MONITORED_REPOS"); ok && v != "" {
		c.MonitoredRepos = strings.Split(v, ",")
	}
	return nil
}

func (c *Config) normalizeRepos() {
	repos, invalid := domain.ParseRepoList(strings.Join(c.MonitoredRepos, ","))
	c.MonitoredRepos = repos
	c.InvalidRepos = invalid
}

// Validate 检查枚举值和时间参数
func (c *Config) Validate() error {
	switch c.Store {
	case "memory", "postgres":
	default:
		return common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("未知的存储类型 %q，请使用 memory 或 postgres", c.Store))
	}
	switch c.NotificationProvider {
	case "console", "webhook", "feishu", "email", "nats":
	default:
		return common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("未知的通知渠道 %q", c.NotificationProvider))
	}
	if c.IngestDelay < 0 || c.EnrichTimeout <= 0 || c.RemoteTimeout <= 0 || c.WorkerInterval < 0 || c.StartupDelay < 0 {
		return common.NewError(common.ErrCodeInvalidInput, "时间参数不能为负数，超时必须大于 0")
	}
	return nil
}
