package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github-release-radar/internal/adapter/analyzer"
	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
	"github-release-radar/internal/metrics"
	"github-release-radar/internal/port"
)

// AnalysisEngine 把发布文本变成评分报告：先远程打分，失败则用启发式
type AnalysisEngine struct {
	remote    port.RemoteScorer
	heuristic *analyzer.Heuristic
	metrics   *metrics.Recorder
	now       func() time.Time
}

// NewAnalysisEngine remote 为 nil 时只使用启发式
func NewAnalysisEngine(remote port.RemoteScorer, rec *metrics.Recorder) *AnalysisEngine {
	return &AnalysisEngine{
		remote:    remote,
		heuristic: analyzer.NewHeuristic(),
		metrics:   rec,
		now:       time.Now,
	}
}

// Score 返回评分结果及其来源，结果总是完整有效的
func (e *AnalysisEngine) Score(ctx context.Context, req domain.ScoreRequest) Outcome[*domain.ScoreReport] {
	var remote func(context.Context) (*domain.ScoreReport, error)
	if e.remote != nil {
		remote = func(ctx context.Context) (*domain.ScoreReport, error) {
			return e.remote.ScoreRelease(ctx, req)
		}
	}

	return resolve(ctx, remote,
		func(r *domain.ScoreReport) error {
			if !r.Complete() {
				return errors.New("incomplete score report")
			}
			return nil
		},
		func() *domain.ScoreReport { return e.heuristic.Score(req) },
	)
}

// AnalyzeUpdate 生成 (尚未保存的) Analysis，不会失败
func (e *AnalysisEngine) AnalyzeUpdate(ctx context.Context, req domain.ScoreRequest) *domain.Analysis {
	out := e.Score(ctx, req)

	source := domain.SourceLLM
	if !out.Remote {
		source = domain.SourceHeuristic
		if !errors.Is(out.Fallback, errRemoteDisabled) {
			common.Logger(ctx).Warn("远程打分失败，使用启发式结果",
				slog.String("repo", req.Repo),
				slog.Any("error", out.Fallback),
			)
		}
	}
	e.metrics.Analysis(string(source))

	report := out.Value
	return &domain.Analysis{
		ID:           domain.NewID("analysis"),
		RepositoryID: req.Repo,
		Source:       source,
		Summary:      report.Summary,
		ChangeType:   report.ChangeType,
		Significance: report.Significance,
		Criteria:     report.Criteria,
		Confidence:   report.Confidence,
		CreatedAt:    e.now(),
	}
}
