package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
)

// runner 调度的任务，通常是 *Orchestrator
type runner interface {
	Run(ctx context.Context) (*domain.IngestRun, error)
}

// Scheduler 两个定时器：启动后的一次性任务和周期任务，都调用同一个 Run
type Scheduler struct {
	job          runner
	interval     time.Duration
	startupDelay time.Duration

	cron    *cron.Cron
	startup *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
}

// NewScheduler interval 或 startupDelay 为 0 时不启用对应的定时器
func NewScheduler(job runner, interval, startupDelay time.Duration) (*Scheduler, error) {
	if interval < 0 || startupDelay < 0 {
		return nil, common.NewError(common.ErrCodeInvalidInput, "调度间隔不能为负数")
	}

	logger := cron.PrintfLogger(slog.NewLogLogger(common.DefaultLogger().Handler(), slog.LevelDebug))
	s := &Scheduler{
		job:          job,
		interval:     interval,
		startupDelay: startupDelay,
		cron:         cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
	}

	if interval > 0 {
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.tick); err != nil {
			return nil, common.WrapError(common.ErrCodeInvalidInput, "添加定时任务失败", err)
		}
	}
	return s, nil
}

// Start 启动定时器，重复调用无效
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	if s.startupDelay > 0 {
		s.startup = time.AfterFunc(s.startupDelay, s.tick)
	}
	s.cron.Start()
	s.started = true

	common.Logger(ctx).Info("调度器已启动",
		slog.Duration("interval", s.interval),
		slog.Duration("startup_delay", s.startupDelay),
	)
}

// Stop 停止定时器并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	if s.startup != nil {
		s.startup.Stop()
	}
	s.cancel()
	done := s.cron.Stop()
	s.started = false
	s.mu.Unlock()

	<-done.Done()
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	run, err := s.job.Run(ctx)
	if err != nil {
		if common.HasCode(err, common.ErrCodeRunInProgress) {
			common.Logger(ctx).Warn("上一次抓取任务还没结束，跳过本次")
			return
		}
		common.ReportError(ctx, "定时抓取任务失败", err)
		return
	}
	common.Logger(ctx).Debug("定时抓取任务完成", slog.String("run", run.ID), slog.String("status", string(run.Status)))
}
