package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
	"github-release-radar/internal/metrics"
	"github-release-radar/internal/port"
)

// DefaultIngestDelay 两个仓库之间的停顿，用来遵守 GitHub 的速率限制
const DefaultIngestDelay = 300 * time.Millisecond

// ingestStore 抓取任务用到的存储能力
type ingestStore interface {
	port.RepositoryStore
	port.SnapshotStore
	port.RunStore
}

// Orchestrator 抓取任务：按顺序对每个仓库执行 抓取 -> 补充 -> 分析 -> 保存 -> 通知
// 单个仓库失败只记入报告，不会中断整个任务
type Orchestrator struct {
	fetcher    port.ReleaseFetcher
	enricher   port.Enricher
	engine     *AnalysisEngine
	store      ingestStore
	dispatcher *Dispatcher
	repos      []string
	delay      time.Duration
	metrics    *metrics.Recorder
	now        func() time.Time

	running sync.Mutex
}

// OrchestratorOption 可选配置
type OrchestratorOption func(*Orchestrator)

// WithDelay 设置仓库之间的停顿，0 表示不停顿
func WithDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.delay = d
		}
	}
}

func WithMetrics(rec *metrics.Recorder) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = rec
	}
}

// NewOrchestrator 创建抓取任务。repos 应该已经规范化为 owner/name
func NewOrchestrator(
	fetcher port.ReleaseFetcher,
	enricher port.Enricher,
	engine *AnalysisEngine,
	store ingestStore,
	dispatcher *Dispatcher,
	repos []string,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		fetcher:    fetcher,
		enricher:   enricher,
		engine:     engine,
		store:      store,
		dispatcher: dispatcher,
		repos:      repos,
		delay:      DefaultIngestDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run 执行一次抓取任务并返回报告
// 同一进程里已有任务在跑时返回 RUN_IN_PROGRESS
func (o *Orchestrator) Run(ctx context.Context) (*domain.IngestRun, error) {
	if !o.running.TryLock() {
		return nil, common.NewError(common.ErrCodeRunInProgress, "an ingest run is already in progress")
	}
	defer o.running.Unlock()

	run := &domain.IngestRun{
		ID:        domain.NewID("run"),
		StartedAt: o.now(),
		Status:    domain.RunRunning,
		Errors:    []string{},
	}
	logger := common.Logger(ctx).With(slog.String("run", run.ID))
	ctx = common.WithLogger(ctx, logger)

	if err := o.store.SaveIngestRun(ctx, run); err != nil {
		return nil, err
	}
	logger.Info("开始抓取任务", slog.Int("repos", len(o.repos)))

	for i, repoID := range o.repos {
		if i > 0 && !o.pause(ctx) {
			run.Errors = append(run.Errors, fmt.Sprintf("run interrupted: %v", ctx.Err()))
			break
		}

		run.ReposScanned++
		created, err := o.safeProcess(ctx, repoID)
		if created {
			run.EventsCreated++
		}
		if err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", repoID, err))
			o.metrics.RepositoryError(repoID)
			common.ReportError(ctx, "仓库处理失败", err, slog.String("repo", repoID))
		}
	}

	finished := o.now()
	run.FinishedAt = &finished
	run.Status = domain.RunCompleted
	if len(run.Errors) > 0 {
		run.Status = domain.RunCompletedWithErrors
	}
	o.metrics.IngestRun(string(run.Status))

	logger.Info("抓取任务结束",
		slog.String("status", string(run.Status)),
		slog.Int("scanned", run.ReposScanned),
		slog.Int("events", run.EventsCreated),
		slog.Int("errors", len(run.Errors)),
		slog.Duration("elapsed", finished.Sub(run.StartedAt)),
	)

	if err := o.store.SaveIngestRun(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// pause 仓库之间的停顿，ctx 结束时返回 false
func (o *Orchestrator) pause(ctx context.Context) bool {
	if o.delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(o.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// safeProcess 把 panic 也转换成该仓库的错误
func (o *Orchestrator) safeProcess(ctx context.Context, repoID string) (created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.processRepo(ctx, repoID)
}

// processRepo 处理单个仓库，返回是否创建了新的 Snapshot
func (o *Orchestrator) processRepo(ctx context.Context, repoID string) (bool, error) {
	logger := common.Logger(ctx).With(slog.String("repo", repoID))

	repo, err := o.store.GetOrCreateRepository(ctx, repoID)
	if err != nil {
		return false, err
	}

	release, err := o.fetcher.LatestRelease(ctx, repo.ID)
	if err != nil {
		return false, err
	}
	if release == nil {
		logger.Debug("仓库还没有发布，跳过")
		return false, nil
	}

	latest, err := o.store.LatestSnapshot(ctx, repo.ID)
	if err != nil {
		return false, err
	}
	if latest != nil && latest.ExternalID == release.ID {
		logger.Debug("发布没有变化，跳过", slog.Int64("release", release.ID))
		return false, nil
	}

	commits, err := o.fetcher.RecentCommitMessages(ctx, repo.ID)
	if err != nil {
		logger.Warn("获取提交记录失败，继续分析", slog.Any("error", err))
		commits = nil
	}

	var scraped string
	if o.enricher != nil {
		scraped = o.enricher.Enrich(ctx, release.HTMLURL)
	}

	title := ReleaseTitle(release)
	analysis := o.engine.AnalyzeUpdate(ctx, domain.ScoreRequest{
		Repo:          repo.ID,
		ReleaseTitle:  title,
		ReleaseBody:   release.Body,
		ReleaseURL:    release.HTMLURL,
		CommitSample:  strings.Join(commits, "\n"),
		ScrapedSample: scraped,
	})

	now := o.now()
	snapshot := &domain.Snapshot{
		ID:           domain.NewID("snapshot"),
		RepositoryID: repo.ID,
		ExternalID:   release.ID,
		Title:        title,
		TagName:      release.TagName,
		HTMLURL:      release.HTMLURL,
		PublishedAt:  release.PublishedAt,
		Summary:      analysis.Summary,
		AnalysisID:   analysis.ID,
		ChangeType:   analysis.ChangeType,
		Significance: analysis.Significance,
		CreatedAt:    now,
	}
	event := &domain.ReleaseEvent{
		ID:           domain.NewID("event"),
		RepositoryID: repo.ID,
		SnapshotID:   snapshot.ID,
		ExternalID:   release.ID,
		Source:       "github",
		EventType:    "release",
		ReleaseURL:   release.HTMLURL,
		PublishedAt:  release.PublishedAt,
		CreatedAt:    now,
	}

	if err := o.store.SaveRelease(ctx, analysis, snapshot, event); err != nil {
		if common.HasCode(err, common.ErrCodeAlreadyExists) {
			logger.Debug("发布已被记录，跳过", slog.Int64("release", release.ID))
			return false, nil
		}
		return false, err
	}
	o.metrics.SnapshotCreated()

	logger.Info("记录新发布",
		slog.String("tag", release.TagName),
		slog.String("change", string(analysis.ChangeType)),
		slog.String("significance", string(analysis.Significance)),
		slog.String("source", string(analysis.Source)),
	)

	if o.dispatcher == nil {
		return true, nil
	}
	sent, err := o.dispatcher.NotifyRelease(ctx, snapshot, analysis)
	if err != nil {
		return true, fmt.Errorf("notify subscribers: %w", err)
	}
	if sent > 0 {
		logger.Info("已通知订阅者", slog.Int("notifications", sent))
	}
	return true, nil
}

// ReleaseTitle 发布名 -> 标签 -> 固定文案
func ReleaseTitle(r *domain.Release) string {
	if s := strings.TrimSpace(r.Name); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.TagName); s != "" {
		return s
	}
	return "Latest release"
}
