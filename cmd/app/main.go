package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github-release-radar/internal/adapter/enricher"
	"github-release-radar/internal/adapter/gemini"
	"github-release-radar/internal/adapter/github"
	"github-release-radar/internal/adapter/notify"
	"github-release-radar/internal/adapter/repository"
	"github-release-radar/internal/common"
	"github-release-radar/internal/config"
	"github-release-radar/internal/metrics"
	"github-release-radar/internal/port"
	"github-release-radar/internal/service"
)

const version = "0.3.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// radar 一次命令执行所需的全部组件
type radar struct {
	cfg          *config.Config
	store        port.Store
	metrics      *metrics.Recorder
	orchestrator *service.Orchestrator
	comparison   *service.ComparisonEngine
	queries      *service.QueryService
	closers      []func()
}

func (r *radar) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func newApp() *cli.App {
	var (
		configPath string
		logLevel   string
		logFormat  string
		logOutput  string

		cfg         *config.Config
		flushReport = func() {}
	)

	return &cli.App{
		Name:    "radar",
		Usage:   "监控 GitHub 仓库的新发布，打分、排名并通知订阅者",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "YAML 配置文件路径",
				EnvVars:     []string{"RADAR_CONFIG"},
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Aliases:     []string{"l"},
				Usage:       "日志级别 [debug|info|warn|error]",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Aliases:     []string{"f"},
				Usage:       "日志格式 [text|json]",
				Destination: &logFormat,
			},
			&cli.StringFlag{
				Name:        "log-output",
				Aliases:     []string{"o"},
				Usage:       "日志输出 [stdout|stderr|<file>]",
				Destination: &logOutput,
			},
		},
		Before: func(c *cli.Context) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// 命令行参数最后覆盖
			if logLevel != "" {
				loaded.LogLevel = logLevel
			}
			if logFormat != "" {
				loaded.LogFormat = logFormat
			}
			if logOutput != "" {
				loaded.LogOutput = logOutput
			}
			if err := common.ConfigureLogger(loaded.LogFormat, loaded.LogLevel, loaded.LogOutput); err != nil {
				return err
			}

			flush, err := common.InitReporting(loaded.SentryDSN, version)
			if err != nil {
				return err
			}
			flushReport = flush

			for _, raw := range loaded.InvalidRepos {
				common.DefaultLogger().Warn("忽略无法识别的仓库", slog.String("input", raw))
			}
			common.DefaultLogger().Debug("配置已加载", slog.Any("config", loaded))
			cfg = loaded
			return nil
		},
		After: func(c *cli.Context) error {
			flushReport()
			return nil
		},
		Commands: []*cli.Command{
			ingestCommand(&cfg),
			compareCommand(&cfg),
			serveCommand(&cfg),
			subscribeCommand(&cfg),
			unsubscribeCommand(&cfg),
			reposCommand(&cfg),
			snapshotsCommand(&cfg),
			comparisonsCommand(&cfg),
			runsCommand(&cfg),
			notificationsCommand(&cfg),
		},
		ExitErrHandler: func(c *cli.Context, err error) {
			if err != nil {
				common.DefaultLogger().Error("命令执行失败", slog.Any("error", err), slog.String("code", common.CodeOf(err)))
			}
		},
	}
}

// bootstrap 按配置组装各组件
func bootstrap(ctx context.Context, cfg *config.Config) (*radar, error) {
	r := &radar{cfg: cfg, metrics: metrics.New()}

	store, closeStore, err := repository.Open(cfg.Store, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	r.store = store
	r.closers = append(r.closers, func() {
		if err := closeStore(); err != nil {
			common.Logger(ctx).Warn("关闭存储失败", slog.Any("error", err))
		}
	})

	sink, closeSink, err := notify.New(notify.Options{
		Provider:      cfg.NotificationProvider,
		WebhookURL:    cfg.WebhookURL,
		FeishuWebhook: cfg.FeishuWebhook,
		NATSURL:       cfg.NATSURL,
		NATSSubject:   cfg.NATSSubject,
		Timeout:       cfg.RemoteTimeout,
	})
	if err != nil {
		r.Close()
		return nil, err
	}
	r.closers = append(r.closers, closeSink)

	var (
		scorer   port.RemoteScorer
		narrator port.Narrator
	)
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.RemoteTimeout)
		if err != nil {
			common.Logger(ctx).Warn("初始化 Gemini 失败，只使用启发式打分", slog.Any("error", err))
		} else {
			scorer, narrator = client, client
			r.closers = append(r.closers, func() { _ = client.Close() })
		}
	} else {
		common.Logger(ctx).Info("未配置 GEMINI_API_KEY，只使用启发式打分")
	}

	dispatcher := service.NewDispatcher(store, sink, r.metrics)
	r.orchestrator = service.NewOrchestrator(
		github.NewFetcher(cfg.GitHubToken, cfg.RemoteTimeout),
		enricher.New(cfg.EnrichTimeout),
		service.NewAnalysisEngine(scorer, r.metrics),
		store,
		dispatcher,
		cfg.MonitoredRepos,
		service.WithDelay(cfg.IngestDelay),
		service.WithMetrics(r.metrics),
	)
	r.comparison = service.NewComparisonEngine(store, narrator, dispatcher, r.metrics)
	r.queries = service.NewQueryService(store)
	return r, nil
}

// withRadar 为命令准备组件，结束时释放
func withRadar(cfg **config.Config, fn func(ctx context.Context, c *cli.Context, r *radar) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if *cfg == nil {
			return common.NewError(common.ErrCodeInternal, "配置未加载")
		}
		ctx := c.Context
		r, err := bootstrap(ctx, *cfg)
		if err != nil {
			return err
		}
		defer r.Close()
		return fn(ctx, c, r)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ingestCommand(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "对所有监控的仓库执行一次抓取",
		Action: withRadar(cfg, func(ctx context.Context, c *cli.Context, r *radar) error {
			if len(r.cfg.MonitoredRepos) == 0 {
				return common.NewError(common.ErrCodeInvalidInput, "MONITORED_REPOS 为空")
			}
			run, err := r.orchestrator.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, run)
		}),
	}
}

func compareCommand(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "对比至少两个仓库的最新分析",
		ArgsUsage: "<owner/name> <owner/name> [...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "executive|technical|security|use_case", Value: service.ModeExecutive},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "排名变化时通知的用户"},
		},
		Action: withRadar(cfg, func(ctx context.Context, c *cli.Context, r *radar) error {
			run, err := r.comparison.Compare(ctx, service.CompareRequest{
				RepositoryIDs: c.Args().Slice(),
				Mode:          c.String("mode"),
				UserID:        c.String("user"),
			})
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, run)
		}),
	}
}

func serveCommand(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "常驻运行：启动后执行一次，之后按间隔定时抓取",
		Action: withRadar(cfg, func(ctx context.Context, c *cli.Context, r *radar) error {
			if r.cfg.WorkerInterval == 0 && r.cfg.StartupDelay == 0 {
				common.Logger(ctx).Warn("WORKER_INTERVAL 和 STARTUP_MONITORING_DELAY 都为 0，不会自动抓取")
			}

			scheduler, err := service.NewScheduler(r.orchestrator, r.cfg.WorkerInterval, r.cfg.StartupDelay)
			if err != nil {
				return err
			}

			serverErr := make(chan error, 1)
			var httpServer *http.Server
			if r.cfg.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", r.metrics.Handler())
				httpServer = &http.Server{
					Addr:              r.cfg.MetricsAddr,
					Handler:           mux,
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					common.Logger(ctx).Info("启动 metrics 服务", slog.String("addr", r.cfg.MetricsAddr))
					if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						serverErr <- common.WrapError(common.ErrCodeInternal, "metrics 服务异常退出", err)
					}
				}()
			}

			scheduler.Start(ctx)
			defer scheduler.Stop()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-serverErr:
				return err
			case sig := <-quit:
				common.Logger(ctx).Info("收到停止信号，正在退出", slog.String("signal", sig.String()))
			}

			if httpServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return common.WrapError(common.ErrCodeInternal, "关闭 metrics 服务失败", err)
				}
			}
			return nil
		}),
	}
}

func subscribeCommand(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "订阅仓库的新发布通知",
		ArgsUsage: "<owner/name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true},
			&cli.StringSliceFlag{Name: "criteria", Usage: "security|fix|feature|docs|maintenance|all，默认 all"},
		},
		Action: withRadar(cfg, func(ctx context.Context, c *cli.Context, r *radar) error {
			sub, err := r.queries.Subscribe(ctx, c.String("user"), c.Args().First(), c.StringSlice("criteria"))
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, sub)
		}),
	}
}

func unsubscribeCommand(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:      "unsubscribe",
		Usage:     "停用订阅",
		ArgsUsage: "<owner/name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true},
		},
		Action: withRadar(cfg, func(ctx context.Context, c *cli.Context, r *radar) error {
			if err := r.queries.Unsubscribe(ctx, c.String("user"), c.Args().First()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(c.App.Writer, "unsubscribed")
			return err
		}),
	}
}

func reposCommand(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "repos",
		Usage: "列出监控的仓库及最新分析",
		Action: withRadar(cfg, func(ctx context.Context, c *cli.Context, r *radar) error {
			views, err := r.queries.ListRepositories(ctx)
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, views)
		}),
	}
}

func snapshotsCommand(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:      "snapshots",
		Usage:     "列出仓库的发布快照，最新的在前",
		ArgsUsage: "<owner/name>",
		Action: withRadar(cfg, func(ctx context.Context, c *cli.Context, r *radar) error {
			snaps, err := r.queries.ListSnapshots(ctx, c.Args().First())
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, snaps)
		}),
	}
}

func comparisonsCommand(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "comparisons",
		Usage: "列出历史对比结果",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "只看某个模式"},
		},
		Action: withRadar(cfg, func(ctx context.Context, c *cli.Context, r *radar) error {
			runs, err := r.queries.ListComparisonRuns(ctx, c.String("mode"))
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, runs)
		}),
	}
}

func runsCommand(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "列出最近的抓取任务报告",
		Action: withRadar(cfg, func(ctx context.Context, c *cli.Context, r *radar) error {
			runs, err := r.queries.ListIngestRuns(ctx)
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, runs)
		}),
	}
}

func notificationsCommand(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "notifications",
		Usage: "列出用户收到的通知",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true},
			&cli.IntFlag{Name: "limit", Value: service.DefaultNotificationList},
		},
		Action: withRadar(cfg, func(ctx context.Context, c *cli.Context, r *radar) error {
			list, err := r.queries.ListNotifications(ctx, c.String("user"), c.Int("limit"))
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, list)
		}),
	}
}
