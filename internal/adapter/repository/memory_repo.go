package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
)

// memoryData 文件持久化时的整体结构
type memoryData struct {
	Repositories   []*domain.MonitoredRepository `json:"repositories"`
	Analyses       []*domain.Analysis            `json:"analyses"`
	Snapshots      []*domain.Snapshot            `json:"snapshots"`
	ReleaseEvents  []*domain.ReleaseEvent        `json:"releaseEvents"`
	ComparisonRuns []*domain.ComparisonRun       `json:"comparisonRuns"`
	Subscriptions  []*domain.Subscription        `json:"subscriptions"`
	Notifications  []*domain.Notification        `json:"notifications"`
	IngestRuns     []*domain.IngestRun           `json:"ingestRuns"`
}

// MemoryRepo 进程内存储，实现 port.Store
// path 非空时每次写操作都把全部数据重写到文件 (先写临时文件再 rename)
// 写操作在副本上进行，落盘成功后才替换 data，已存的记录从不原地修改
type MemoryRepo struct {
	mu   sync.RWMutex
	path string
	data memoryData
}

// NewMemoryRepo path 为空时不落盘
func NewMemoryRepo(path string) (*MemoryRepo, error) {
	r := &MemoryRepo{path: path}
	if path == "" {
		return r, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "读取数据文件失败", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r.data); err != nil {
			return nil, common.WrapError(common.ErrCodeDatabase, "解析数据文件失败", err)
		}
	}
	return r, nil
}

// commit 落盘成功后才让 next 生效，调用方必须持有写锁
func (r *MemoryRepo) commit(next memoryData) error {
	if err := r.persist(&next); err != nil {
		return err
	}
	r.data = next
	return nil
}

func (r *MemoryRepo) persist(d *memoryData) error {
	if r.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, "序列化数据失败", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return common.WrapError(common.ErrCodeDatabase, "创建数据目录失败", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".radar-*.json")
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, "创建临时文件失败", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return common.WrapError(common.ErrCodeDatabase, "写入数据文件失败", err)
	}
	if err := tmp.Close(); err != nil {
		return common.WrapError(common.ErrCodeDatabase, "写入数据文件失败", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return common.WrapError(common.ErrCodeDatabase, "替换数据文件失败", err)
	}
	return nil
}

// cloneOf 深拷贝记录，调用方拿到的切片和 map 不与存储共享
func cloneOf[T any](v *T) *T {
	c := *v
	switch x := any(&c).(type) {
	case *domain.MonitoredRepository:
		x.LatestReleaseAt = cloneTime(x.LatestReleaseAt)
	case *domain.Analysis:
		x.Criteria = maps.Clone(x.Criteria)
	case *domain.ComparisonRun:
		x.RepositoryIDs = slices.Clone(x.RepositoryIDs)
		x.Ranking = slices.Clone(x.Ranking)
		x.Rationale.Alternatives = slices.Clone(x.Rationale.Alternatives)
	case *domain.Subscription:
		x.Criteria = slices.Clone(x.Criteria)
	case *domain.Notification:
		x.Payload = clonePayload(x.Payload)
		x.DeliveredAt = cloneTime(x.DeliveredAt)
	case *domain.IngestRun:
		x.Errors = slices.Clone(x.Errors)
		x.FinishedAt = cloneTime(x.FinishedAt)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func clonePayload(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case domain.CriteriaScores:
			out[k] = maps.Clone(x)
		case map[string]any:
			out[k] = clonePayload(x)
		case []any:
			out[k] = slices.Clone(x)
		default:
			out[k] = v
		}
	}
	return out
}

// appended 总是分配新的底层数组，失败回滚时不影响原切片
func appended[T any](items []*T, v ...*T) []*T {
	return append(slices.Clip(items), v...)
}

func replaced[T any](items []*T, i int, v *T) []*T {
	out := slices.Clone(items)
	out[i] = v
	return out
}

func newestFirst[T any](items []*T, createdAt func(*T) time.Time, keep func(*T) bool, limit int) []*T {
	var out []*T
	for i := len(items) - 1; i >= 0; i-- {
		if keep(items[i]) {
			out = append(out, cloneOf(items[i]))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return createdAt(out[i]).After(createdAt(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ---- 仓库 ----

func (r *MemoryRepo) GetOrCreateRepository(ctx context.Context, repoID string) (*domain.MonitoredRepository, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, repo := range r.data.Repositories {
		if repo.ID == repoID {
			return cloneOf(repo), nil
		}
	}

	repo := &domain.MonitoredRepository{ID: repoID, URL: domain.RepoURL(repoID), CreatedAt: time.Now()}
	next := r.data
	next.Repositories = appended(r.data.Repositories, repo)
	if err := r.commit(next); err != nil {
		return nil, err
	}
	return cloneOf(repo), nil
}

func (r *MemoryRepo) GetRepository(ctx context.Context, repoID string) (*domain.MonitoredRepository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, repo := range r.data.Repositories {
		if repo.ID == repoID {
			return cloneOf(repo), nil
		}
	}
	return nil, common.NewError(common.ErrCodeNotFound, fmt.Sprintf("仓库 %s 未被监控", repoID))
}

func (r *MemoryRepo) ListRepositories(ctx context.Context) ([]*domain.MonitoredRepository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.MonitoredRepository, 0, len(r.data.Repositories))
	for _, repo := range r.data.Repositories {
		out = append(out, cloneOf(repo))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- 快照与分析 ----

func (r *MemoryRepo) LatestSnapshot(ctx context.Context, repoID string) (*domain.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := newestFirst(r.data.Snapshots,
		func(s *domain.Snapshot) time.Time { return s.CreatedAt },
		func(s *domain.Snapshot) bool { return s.RepositoryID == repoID },
		1)
	if len(snaps) == 0 {
		return nil, nil
	}
	return snaps[0], nil
}

func (r *MemoryRepo) ListSnapshots(ctx context.Context, repoID string, limit int) ([]*domain.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return newestFirst(r.data.Snapshots,
		func(s *domain.Snapshot) time.Time { return s.CreatedAt },
		func(s *domain.Snapshot) bool { return s.RepositoryID == repoID },
		limit), nil
}

func (r *MemoryRepo) GetAnalysis(ctx context.Context, analysisID string) (*domain.Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.data.Analyses {
		if a.ID == analysisID {
			return cloneOf(a), nil
		}
	}
	return nil, common.NewError(common.ErrCodeNotFound, fmt.Sprintf("分析 %s 不存在", analysisID))
}

// SaveRelease 一次加锁、一次落盘完成四步写入
func (r *MemoryRepo) SaveRelease(ctx context.Context, analysis *domain.Analysis, snapshot *domain.Snapshot, event *domain.ReleaseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.data.Snapshots {
		if s.RepositoryID == snapshot.RepositoryID && s.ExternalID == snapshot.ExternalID {
			return common.NewError(common.ErrCodeAlreadyExists,
				fmt.Sprintf("%s 的发布 %d 已存在", snapshot.RepositoryID, snapshot.ExternalID))
		}
	}

	next := r.data
	next.Analyses = appended(r.data.Analyses, cloneOf(analysis))
	next.Snapshots = appended(r.data.Snapshots, cloneOf(snapshot))
	next.ReleaseEvents = appended(r.data.ReleaseEvents, cloneOf(event))

	for i, repo := range r.data.Repositories {
		if repo.ID == snapshot.RepositoryID {
			updated := cloneOf(repo)
			publishedAt := snapshot.PublishedAt
			updated.LatestReleaseID = snapshot.ID
			updated.LatestReleaseAt = &publishedAt
			next.Repositories = replaced(r.data.Repositories, i, updated)
		}
	}
	return r.commit(next)
}

// ---- 对比 ----

func (r *MemoryRepo) SaveComparisonRun(ctx context.Context, run *domain.ComparisonRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.data
	next.ComparisonRuns = appended(r.data.ComparisonRuns, cloneOf(run))
	return r.commit(next)
}

func (r *MemoryRepo) LatestComparisonRun(ctx context.Context, key, mode string) (*domain.ComparisonRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := newestFirst(r.data.ComparisonRuns,
		func(c *domain.ComparisonRun) time.Time { return c.CreatedAt },
		func(c *domain.ComparisonRun) bool { return c.ComparisonKey == key && c.Mode == mode },
		1)
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

func (r *MemoryRepo) ListComparisonRuns(ctx context.Context, mode string, limit int) ([]*domain.ComparisonRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return newestFirst(r.data.ComparisonRuns,
		func(c *domain.ComparisonRun) time.Time { return c.CreatedAt },
		func(c *domain.ComparisonRun) bool { return mode == "" || c.Mode == mode },
		limit), nil
}

// ---- 订阅 ----

func (r *MemoryRepo) UpsertSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.data
	var saved *domain.Subscription
	for i, existing := range r.data.Subscriptions {
		if existing.UserID == sub.UserID && existing.RepositoryID == sub.RepositoryID {
			saved = cloneOf(existing)
			saved.Criteria = slices.Clone(sub.Criteria)
			saved.Enabled = true
			next.Subscriptions = replaced(r.data.Subscriptions, i, saved)
			break
		}
	}
	if saved == nil {
		saved = cloneOf(sub)
		saved.Enabled = true
		next.Subscriptions = appended(r.data.Subscriptions, saved)
	}

	if err := r.commit(next); err != nil {
		return nil, err
	}
	return cloneOf(saved), nil
}

func (r *MemoryRepo) DisableSubscription(ctx context.Context, userID, repoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.data.Subscriptions {
		if existing.UserID == userID && existing.RepositoryID == repoID {
			disabled := cloneOf(existing)
			disabled.Enabled = false
			next := r.data
			next.Subscriptions = replaced(r.data.Subscriptions, i, disabled)
			return r.commit(next)
		}
	}
	return common.NewError(common.ErrCodeNotFound, fmt.Sprintf("%s 没有订阅 %s", userID, repoID))
}

func (r *MemoryRepo) ListSubscriptions(ctx context.Context, repoID string) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Subscription
	for _, s := range r.data.Subscriptions {
		if s.RepositoryID == repoID && s.Enabled {
			out = append(out, cloneOf(s))
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListUserSubscriptions(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Subscription
	for _, s := range r.data.Subscriptions {
		if s.UserID == userID {
			out = append(out, cloneOf(s))
		}
	}
	return out, nil
}

// ---- 通知 ----

func (r *MemoryRepo) SaveNotification(ctx context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.data
	next.Notifications = appended(r.data.Notifications, cloneOf(n))
	return r.commit(next)
}

func (r *MemoryRepo) MarkDelivered(ctx context.Context, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, n := range r.data.Notifications {
		if n.ID == notificationID {
			now := time.Now()
			delivered := cloneOf(n)
			delivered.Delivered = true
			delivered.DeliveredAt = &now
			next := r.data
			next.Notifications = replaced(r.data.Notifications, i, delivered)
			return r.commit(next)
		}
	}
	return common.NewError(common.ErrCodeNotFound, fmt.Sprintf("通知 %s 不存在", notificationID))
}

func (r *MemoryRepo) ListNotifications(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return newestFirst(r.data.Notifications,
		func(n *domain.Notification) time.Time { return n.CreatedAt },
		func(n *domain.Notification) bool { return n.UserID == userID },
		limit), nil
}

// ---- 任务报告 ----

func (r *MemoryRepo) SaveIngestRun(ctx context.Context, run *domain.IngestRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.data
	for i, existing := range r.data.IngestRuns {
		if existing.ID == run.ID {
			next.IngestRuns = replaced(r.data.IngestRuns, i, cloneOf(run))
			return r.commit(next)
		}
	}
	next.IngestRuns = appended(r.data.IngestRuns, cloneOf(run))
	return r.commit(next)
}

func (r *MemoryRepo) ListIngestRuns(ctx context.Context, limit int) ([]*domain.IngestRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return newestFirst(r.data.IngestRuns,
		func(run *domain.IngestRun) time.Time { return run.StartedAt },
		func(*domain.IngestRun) bool { return true },
		limit), nil
}
