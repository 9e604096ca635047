package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github-release-radar/internal/adapter/filter"
	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
	"github-release-radar/internal/metrics"
	"github-release-radar/internal/port"
)

// 对比模式
const (
	ModeExecutive = "executive"
	ModeTechnical = "technical"
	ModeSecurity  = "security"
	ModeUseCase   = "use_case"
)

// ModeWeights 每个模式下四个维度的权重，和为 1
var ModeWeights = map[string]map[string]float64{
	ModeExecutive: {
		domain.CriterionFeatures:   0.35,
		domain.CriterionSecurity:   0.3,
		domain.CriterionMaturity:   0.2,
		domain.CriterionUseCaseFit: 0.15,
	},
	ModeTechnical: {
		domain.CriterionFeatures:   0.3,
		domain.CriterionSecurity:   0.25,
		domain.CriterionMaturity:   0.3,
		domain.CriterionUseCaseFit: 0.15,
	},
	ModeSecurity: {
		domain.CriterionSecurity:   0.6,
		domain.CriterionMaturity:   0.25,
		domain.CriterionFeatures:   0.1,
		domain.CriterionUseCaseFit: 0.05,
	},
	ModeUseCase: {
		domain.CriterionUseCaseFit: 0.5,
		domain.CriterionFeatures:   0.3,
		domain.CriterionMaturity:   0.1,
		domain.CriterionSecurity:   0.1,
	},
}

// NormalizeMode 未知或空的模式一律视为 executive
func NormalizeMode(mode string) string {
	if _, ok := ModeWeights[mode]; ok {
		return mode
	}
	return ModeExecutive
}

// WeightedScore 按模式加权求和，四舍五入并限制在 [0,100]
func WeightedScore(criteria domain.CriteriaScores, mode string) int {
	weights := ModeWeights[NormalizeMode(mode)]
	var total float64
	for _, name := range domain.Criteria {
		total += float64(criteria[name].Score) * weights[name]
	}
	return max(0, min(100, int(math.Round(total))))
}

// CompareRequest 一次对比的输入
type CompareRequest struct {
	RepositoryIDs []string
	Mode          string
	// UserID 非空时，排名变化会通知该用户
	UserID string
}

// comparisonStore 对比用到的存储能力
type comparisonStore interface {
	port.SnapshotStore
	port.ComparisonStore
}

// ComparisonEngine 对一组仓库的最新分析做加权排名，并与上一次同组同模式的结果比较
type ComparisonEngine struct {
	store      comparisonStore
	narrator   port.Narrator
	dispatcher *Dispatcher
	metrics    *metrics.Recorder
	now        func() time.Time
}

// NewComparisonEngine narrator 和 dispatcher 都可以为 nil
func NewComparisonEngine(store comparisonStore, narrator port.Narrator, dispatcher *Dispatcher, rec *metrics.Recorder) *ComparisonEngine {
	return &ComparisonEngine{
		store:      store,
		narrator:   narrator,
		dispatcher: dispatcher,
		metrics:    rec,
		now:        time.Now,
	}
}

// Compare 生成并保存一次 ComparisonRun
func (e *ComparisonEngine) Compare(ctx context.Context, req CompareRequest) (*domain.ComparisonRun, error) {
	ids, err := normalizeComparisonIDs(req.RepositoryIDs)
	if err != nil {
		return nil, err
	}
	mode := NormalizeMode(req.Mode)
	key := domain.ComparisonKey(ids)
	logger := common.Logger(ctx).With(slog.String("mode", mode), slog.String("key", key))

	summaries, err := e.latestSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(summaries) < 2 {
		return nil, common.NewError(common.ErrCodeInsufficientData,
			fmt.Sprintf("需要至少两个已分析的仓库，当前只有 %d 个", len(summaries)))
	}

	previous, err := e.store.LatestComparisonRun(ctx, key, mode)
	if err != nil {
		return nil, err
	}

	ranking := rank(summaries, mode)
	applyTrends(ranking, previous)

	var confidence float64
	for _, entry := range ranking {
		confidence += entry.Confidence
	}
	confidence = math.Round(confidence/float64(len(ranking))*100) / 100

	narrative := e.narrate(ctx, domain.NarrativeRequest{Mode: mode, Ranking: ranking, Summaries: summaries})
	if !narrative.Remote && !errors.Is(narrative.Fallback, errRemoteDisabled) {
		logger.Warn("生成对比说明失败，使用默认说明", slog.Any("error", narrative.Fallback))
	}

	run := &domain.ComparisonRun{
		ID:             domain.NewID("compare"),
		UserID:         req.UserID,
		Mode:           mode,
		ComparisonKey:  key,
		RepositoryIDs:  ids,
		Ranking:        ranking,
		Winner:         ranking[0].RepositoryID,
		Confidence:     confidence,
		NarrativeByLLM: narrative.Remote,
		CreatedAt:      e.now(),
	}
	run.Summary, run.Rationale = explain(narrative.Value, ranking, mode)

	if err := e.store.SaveComparisonRun(ctx, run); err != nil {
		return nil, err
	}
	e.metrics.Comparison(mode)
	logger.Info("对比完成", slog.String("winner", run.Winner), slog.Int("repos", len(ranking)))

	if req.UserID != "" && previous != nil && e.dispatcher != nil {
		shifts := filter.DetectRankShifts(previous.Ranking, ranking, 1)
		if err := e.dispatcher.NotifyRankShifts(ctx, req.UserID, run, shifts); err != nil {
			logger.Warn("排名变化通知失败", slog.Any("error", err))
		}
	}
	return run, nil
}

// normalizeComparisonIDs 规范化并去重，保持输入顺序
func normalizeComparisonIDs(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		id, ok := domain.NormalizeRepoID(r)
		if !ok {
			return nil, common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("无效的仓库标识: %q", r))
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) < 2 {
		return nil, common.NewError(common.ErrCodeInvalidInput, "对比至少需要两个不同的仓库")
	}
	return ids, nil
}

// latestSummaries 每个仓库只取最新的 Snapshot；没有快照或分析的仓库不参与
func (e *ComparisonEngine) latestSummaries(ctx context.Context, ids []string) ([]domain.RepoSummary, error) {
	var out []domain.RepoSummary
	for _, id := range ids {
		snap, err := e.store.LatestSnapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			continue
		}

		analysis, err := e.store.GetAnalysis(ctx, snap.AnalysisID)
		if err != nil {
			if common.HasCode(err, common.ErrCodeNotFound) {
				common.Logger(ctx).Warn("快照缺少分析，跳过", slog.String("repo", id), slog.String("snapshot", snap.ID))
				continue
			}
			return nil, err
		}

		out = append(out, domain.RepoSummary{
			RepositoryID: id,
			SnapshotID:   snap.ID,
			Title:        snap.Title,
			Summary:      analysis.Summary,
			ChangeType:   analysis.ChangeType,
			Significance: analysis.Significance,
			Criteria:     analysis.Criteria,
			Confidence:   analysis.Confidence,
		})
	}
	return out, nil
}

// rank 按加权分降序排序，同分保持输入顺序
func rank(summaries []domain.RepoSummary, mode string) []domain.RankEntry {
	ranking := make([]domain.RankEntry, len(summaries))
	for i, s := range summaries {
		ranking[i] = domain.RankEntry{
			RepositoryID:  s.RepositoryID,
			Score:         WeightedScore(s.Criteria, mode),
			Confidence:    s.Confidence,
			Rationale:     s.Summary,
			TopChangeType: s.ChangeType,
			Significance:  s.Significance,
		}
	}
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].Score > ranking[j].Score })
	for i := range ranking {
		ranking[i].Rank = i + 1
	}
	return ranking
}

// applyTrends 与上一次同组同模式的排名比较
func applyTrends(ranking []domain.RankEntry, previous *domain.ComparisonRun) {
	prevRank := map[string]int{}
	if previous != nil {
		for _, e := range previous.Ranking {
			prevRank[e.RepositoryID] = e.Rank
		}
	}

	for i := range ranking {
		before, ok := prevRank[ranking[i].RepositoryID]
		if !ok || before == 0 {
			ranking[i].Trend = domain.Trend{Direction: domain.TrendNew}
			continue
		}

		dir := domain.TrendStable
		switch {
		case before > ranking[i].Rank:
			dir = domain.TrendUp
		case before < ranking[i].Rank:
			dir = domain.TrendDown
		}
		ranking[i].Trend = domain.Trend{
			Direction:    dir,
			PreviousRank: before,
			DeltaRank:    before - ranking[i].Rank,
		}
	}
}

func (e *ComparisonEngine) narrate(ctx context.Context, req domain.NarrativeRequest) Outcome[*domain.Narrative] {
	var remote func(context.Context) (*domain.Narrative, error)
	if e.narrator != nil {
		remote = func(ctx context.Context) (*domain.Narrative, error) {
			return e.narrator.Narrate(ctx, req)
		}
	}

	return resolve(ctx, remote,
		func(n *domain.Narrative) error {
			if n == nil || n.OverallWinner == "" {
				return errors.New("narrative missing overallWinner")
			}
			return nil
		},
		func() *domain.Narrative { return nil },
	)
}

// explain 组合说明文字，远程说明缺失的字段用默认文案补齐
func explain(n *domain.Narrative, ranking []domain.RankEntry, mode string) (string, domain.ComparisonRationale) {
	summary := fmt.Sprintf("Winner by weighted %s score: %s", mode, ranking[0].RepositoryID)
	rationale := domain.ComparisonRationale{
		WinnerJustification: "Scored highest on the configured mode weights.",
		OverallTradeoff:     "Feature and security deltas were the dominant contributors.",
	}

	if n != nil {
		summary = n.OverallWinner
		if n.WinnerJustification != "" {
			rationale.WinnerJustification = n.WinnerJustification
		}
		if n.Rationale != "" {
			rationale.OverallTradeoff = n.Rationale
		}
		rationale.Alternatives = n.Alternatives
	}

	if rationale.Alternatives == nil {
		rationale.Alternatives = []domain.Alternative{}
		for _, entry := range ranking[1:min(3, len(ranking))] {
			rationale.Alternatives = append(rationale.Alternatives, domain.Alternative{
				RepositoryID: entry.RepositoryID,
				Reason:       entry.Rationale,
			})
		}
	}
	return summary, rationale
}
