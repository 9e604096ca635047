package port

import (
	"context"

	"github-release-radar/internal/domain"
)

// ReleaseFetcher (侦察兵): 负责从 GitHub 获取最新发布和提交记录
type ReleaseFetcher interface {
	// 没有发布时返回 (nil, nil)，不是错误
	LatestRelease(ctx context.Context, repoID string) (*domain.Release, error)

	// 最近的提交信息，最多 8 条
	RecentCommitMessages(ctx context.Context, repoID string) ([]string, error)
}

// Enricher (补充材料): 抓取发布页面的正文
// 约定：任何失败都返回空字符串，不返回错误
type Enricher interface {
	Enrich(ctx context.Context, pageURL string) string
}

// RemoteScorer (鉴定师): 调用 LLM 对一次发布打分
type RemoteScorer interface {
	ScoreRelease(ctx context.Context, req domain.ScoreRequest) (*domain.ScoreReport, error)
}

// Narrator: 调用 LLM 为对比结果生成说明
type Narrator interface {
	Narrate(ctx context.Context, req domain.NarrativeRequest) (*domain.Narrative, error)
}

// Sink (信使): 把通知投递出去 (控制台/Webhook/飞书/NATS)
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n *domain.Notification) error
}

// RepositoryStore 被监控仓库
type RepositoryStore interface {
	GetOrCreateRepository(ctx context.Context, repoID string) (*domain.MonitoredRepository, error)
	GetRepository(ctx context.Context, repoID string) (*domain.MonitoredRepository, error)
	ListRepositories(ctx context.Context) ([]*domain.MonitoredRepository, error)
}

// SnapshotStore 发布快照和分析结果
type SnapshotStore interface {
	// 没有快照时返回 (nil, nil)
	LatestSnapshot(ctx context.Context, repoID string) (*domain.Snapshot, error)
	ListSnapshots(ctx context.Context, repoID string, limit int) ([]*domain.Snapshot, error)
	GetAnalysis(ctx context.Context, analysisID string) (*domain.Analysis, error)

	// SaveRelease 原子地写入 Analysis、Snapshot、ReleaseEvent 并更新仓库的最新发布指针
	// 同一 (仓库, 发布 ID) 重复写入时返回 ALREADY_EXISTS
	SaveRelease(ctx context.Context, analysis *domain.Analysis, snapshot *domain.Snapshot, event *domain.ReleaseEvent) error
}

// ComparisonStore 对比历史
type ComparisonStore interface {
	SaveComparisonRun(ctx context.Context, run *domain.ComparisonRun) error
	// 没有历史时返回 (nil, nil)
	LatestComparisonRun(ctx context.Context, key, mode string) (*domain.ComparisonRun, error)
	ListComparisonRuns(ctx context.Context, mode string, limit int) ([]*domain.ComparisonRun, error)
}

// SubscriptionStore 订阅关系
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	DisableSubscription(ctx context.Context, userID, repoID string) error
	ListSubscriptions(ctx context.Context, repoID string) ([]*domain.Subscription, error)
	ListUserSubscriptions(ctx context.Context, userID string) ([]*domain.Subscription, error)
}

// NotificationStore 通知记录
type NotificationStore interface {
	SaveNotification(ctx context.Context, n *domain.Notification) error
	MarkDelivered(ctx context.Context, notificationID string) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
}

// RunStore 抓取任务报告
type RunStore interface {
	SaveIngestRun(ctx context.Context, run *domain.IngestRun) error
	ListIngestRuns(ctx context.Context, limit int) ([]*domain.IngestRun, error)
}

// Store (仓库管理员): 全部持久化能力
type Store interface {
	RepositoryStore
	SnapshotStore
	ComparisonStore
	SubscriptionStore
	NotificationStore
	RunStore
}
