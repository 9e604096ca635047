package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github-release-radar/internal/adapter/enricher"
	"github-release-radar/internal/adapter/gemini"
	"github-release-radar/internal/adapter/github"
	"github-release-radar/internal/common"
	"github-release-radar/internal/config"
	"github-release-radar/internal/domain"
	"github-release-radar/internal/port"
	"github-release-radar/internal/service"
)

// 调试模式：对单个仓库执行 抓取 -> 补充 -> 分析，只打印结果，不写入存储也不发通知
func main() {
	app := &cli.App{
		Name:      "radar-debug",
		Usage:     "对单个仓库做一次不落库的分析",
		ArgsUsage: "<owner/name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML 配置文件路径"},
			&cli.BoolFlag{Name: "no-remote", Usage: "跳过 Gemini，只用启发式打分"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx := c.Context
	repoID, ok := domain.NormalizeRepoID(c.Args().First())
	if !ok {
		return common.NewError(common.ErrCodeInvalidInput, "请提供 owner/name 或 GitHub 仓库地址")
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := common.ConfigureLogger(cfg.LogFormat, "debug", "stderr"); err != nil {
		return err
	}

	var scorer port.RemoteScorer
	if cfg.GeminiAPIKey != "" && !c.Bool("no-remote") {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.RemoteTimeout)
		if err != nil {
			common.Logger(ctx).Warn("初始化 Gemini 失败，只使用启发式打分", slog.Any("error", err))
		} else {
			defer client.Close()
			scorer = client
		}
	}

	fetcher := github.NewFetcher(cfg.GitHubToken, cfg.RemoteTimeout)
	fmt.Printf("🔍 调试模式：%s\n", repoID)

	release, err := fetcher.LatestRelease(ctx, repoID)
	if err != nil {
		return err
	}
	if release == nil {
		fmt.Println("📭 该仓库还没有发布")
		return nil
	}
	fmt.Printf("📦 最新发布: %s (%s) id=%d\n", release.Name, release.TagName, release.ID)

	commits, err := fetcher.RecentCommitMessages(ctx, repoID)
	if err != nil {
		common.Logger(ctx).Warn("获取提交记录失败", slog.Any("error", err))
	}
	fmt.Printf("📝 提交记录 %d 条\n", len(commits))

	scraped := enricher.New(cfg.EnrichTimeout).Enrich(ctx, release.HTMLURL)
	fmt.Printf("🌐 页面正文 %d 字符\n", len([]rune(scraped)))

	analysis := service.NewAnalysisEngine(scorer, nil).AnalyzeUpdate(ctx, domain.ScoreRequest{
		Repo:          repoID,
		ReleaseTitle:  service.ReleaseTitle(release),
		ReleaseBody:   release.Body,
		ReleaseURL:    release.HTMLURL,
		CommitSample:  strings.Join(commits, "\n"),
		ScrapedSample: scraped,
	})

	out, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("🧠 分析结果 (%s):\n%s\n", analysis.Source, out)
	return nil
}
