package service

import (
	"context"
	"fmt"
	"time"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
	"github-release-radar/internal/port"
)

// 查询默认条数
const (
	SnapshotListLimit       = 30
	ComparisonListLimit     = 50
	IngestRunListLimit      = 20
	DefaultNotificationList = 20
)

// RepositoryView 仓库及其最新的快照和分析
type RepositoryView struct {
	Repository     *domain.MonitoredRepository `json:"repository"`
	LatestSnapshot *domain.Snapshot            `json:"latest_snapshot"`
	Analysis       *domain.Analysis            `json:"analysis"`
}

// QueryService 只读查询和订阅管理
type QueryService struct {
	store port.Store
	now   func() time.Time
}

func NewQueryService(store port.Store) *QueryService {
	return &QueryService{store: store, now: time.Now}
}

func (q *QueryService) ListRepositories(ctx context.Context) ([]RepositoryView, error) {
	repos, err := q.store.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]RepositoryView, 0, len(repos))
	for _, repo := range repos {
		view := RepositoryView{Repository: repo}
		snap, err := q.store.LatestSnapshot(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			view.LatestSnapshot = snap
			analysis, err := q.store.GetAnalysis(ctx, snap.AnalysisID)
			if err != nil && !common.HasCode(err, common.ErrCodeNotFound) {
				return nil, err
			}
			view.Analysis = analysis
		}
		views = append(views, view)
	}
	return views, nil
}

func (q *QueryService) ListSnapshots(ctx context.Context, repo string) ([]*domain.Snapshot, error) {
	id, ok := domain.NormalizeRepoID(repo)
	if !ok {
		return nil, common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("无效的仓库标识: %q", repo))
	}
	return q.store.ListSnapshots(ctx, id, SnapshotListLimit)
}

// ListComparisonRuns mode 为空时返回所有模式
func (q *QueryService) ListComparisonRuns(ctx context.Context, mode string) ([]*domain.ComparisonRun, error) {
	if mode != "" {
		mode = NormalizeMode(mode)
	}
	return q.store.ListComparisonRuns(ctx, mode, ComparisonListLimit)
}

func (q *QueryService) ListIngestRuns(ctx context.Context) ([]*domain.IngestRun, error) {
	return q.store.ListIngestRuns(ctx, IngestRunListLimit)
}

// ListNotifications limit <= 0 时使用默认值
func (q *QueryService) ListNotifications(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	if userID == "" {
		return nil, common.NewError(common.ErrCodeInvalidInput, "缺少用户")
	}
	if limit <= 0 {
		limit = DefaultNotificationList
	}
	return q.store.ListNotifications(ctx, userID, limit)
}

// Subscribe 创建或重新启用订阅，仓库必须已被监控
func (q *QueryService) Subscribe(ctx context.Context, userID, repo string, criteria []string) (*domain.Subscription, error) {
	if userID == "" {
		return nil, common.NewError(common.ErrCodeInvalidInput, "缺少用户")
	}
	id, ok := domain.NormalizeRepoID(repo)
	if !ok {
		return nil, common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("无效的仓库标识: %q", repo))
	}
	if _, err := q.store.GetRepository(ctx, id); err != nil {
		return nil, err
	}

	if len(criteria) == 0 {
		criteria = []string{domain.CriteriaAll}
	}
	return q.store.UpsertSubscription(ctx, &domain.Subscription{
		ID:           domain.NewID("sub"),
		UserID:       userID,
		RepositoryID: id,
		Criteria:     criteria,
		Enabled:      true,
		CreatedAt:    q.now(),
	})
}

func (q *QueryService) Unsubscribe(ctx context.Context, userID, repo string) error {
	id, ok := domain.NormalizeRepoID(repo)
	if !ok {
		return common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("无效的仓库标识: %q", repo))
	}
	return q.store.DisableSubscription(ctx, userID, id)
}
