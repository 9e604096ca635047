package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresRepo 实现了 port.Store 接口
type PostgresRepo struct {
	db *gorm.DB
}

// NewPostgresRepo 初始化数据库连接并自动迁移表结构
func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	// 1. 连接数据库，TranslateError 把唯一约束冲突翻译成 gorm.ErrDuplicatedKey
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "连接数据库失败", err)
	}

	// 2. 自动迁移 (Auto Migrate)
	err = db.AutoMigrate(
		&domain.MonitoredRepository{},
		&domain.Analysis{},
		&domain.Snapshot{},
		&domain.ReleaseEvent{},
		&domain.ComparisonRun{},
		&domain.Subscription{},
		&domain.Notification{},
		&domain.IngestRun{},
	)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "数据库迁移失败", err)
	}

	return &PostgresRepo{db: db}, nil
}

func (r *PostgresRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dbError(message string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return common.WrapError(common.ErrCodeAlreadyExists, message, err)
	}
	return common.WrapError(common.ErrCodeDatabase, message, err)
}

// ---- 仓库 ----

func (r *PostgresRepo) GetOrCreateRepository(ctx context.Context, repoID string) (*domain.MonitoredRepository, error) {
	var repo domain.MonitoredRepository
	err := r.db.WithContext(ctx).
		Where(domain.MonitoredRepository{ID: repoID}).
		Attrs(domain.MonitoredRepository{URL: domain.RepoURL(repoID), CreatedAt: time.Now()}).
		FirstOrCreate(&repo).Error
	if err != nil {
		return nil, dbError(fmt.Sprintf("读取或创建仓库 %s 失败", repoID), err)
	}
	return &repo, nil
}

func (r *PostgresRepo) GetRepository(ctx context.Context, repoID string) (*domain.MonitoredRepository, error) {
	var repo domain.MonitoredRepository
	err := r.db.WithContext(ctx).Where("id = ?", repoID).Take(&repo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewError(common.ErrCodeNotFound, fmt.Sprintf("仓库 %s 未被监控", repoID))
	}
	if err != nil {
		return nil, dbError("读取仓库失败", err)
	}
	return &repo, nil
}

func (r *PostgresRepo) ListRepositories(ctx context.Context) ([]*domain.MonitoredRepository, error) {
	var repos []*domain.MonitoredRepository
	if err := r.db.WithContext(ctx).Order("id").Find(&repos).Error; err != nil {
		return nil, dbError("读取仓库列表失败", err)
	}
	return repos, nil
}

// ---- 快照与分析 ----

func (r *PostgresRepo) LatestSnapshot(ctx context.Context, repoID string) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	err := r.db.WithContext(ctx).
		Where("repository_id = ?", repoID).
		Order("created_at DESC").
		Take(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("读取最新快照失败", err)
	}
	return &snap, nil
}

func (r *PostgresRepo) ListSnapshots(ctx context.Context, repoID string, limit int) ([]*domain.Snapshot, error) {
	var snaps []*domain.Snapshot
	err := r.db.WithContext(ctx).
		Where("repository_id = ?", repoID).
		Order("created_at DESC").
		Limit(limit).
		Find(&snaps).Error
	if err != nil {
		return nil, dbError("读取快照列表失败", err)
	}
	return snaps, nil
}

func (r *PostgresRepo) GetAnalysis(ctx context.Context, analysisID string) (*domain.Analysis, error) {
	var a domain.Analysis
	err := r.db.WithContext(ctx).Where("id = ?", analysisID).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewError(common.ErrCodeNotFound, fmt.Sprintf("分析 %s 不存在", analysisID))
	}
	if err != nil {
		return nil, dbError("读取分析失败", err)
	}
	return &a, nil
}

// SaveRelease 在一个事务里写入分析、快照、事件并移动仓库的最新发布指针
func (r *PostgresRepo) SaveRelease(ctx context.Context, analysis *domain.Analysis, snapshot *domain.Snapshot, event *domain.ReleaseEvent) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(analysis).Error; err != nil {
			return err
		}
		if err := tx.Create(snapshot).Error; err != nil {
			return err
		}
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		return tx.Model(&domain.MonitoredRepository{}).
			Where("id = ?", snapshot.RepositoryID).
			Updates(map[string]any{
				"latest_release_id": snapshot.ID,
				"latest_release_at": snapshot.PublishedAt,
			}).Error
	})
	if err != nil {
		return dbError(fmt.Sprintf("保存 %s 的发布失败", snapshot.RepositoryID), err)
	}
	return nil
}

// ---- 对比 ----

func (r *PostgresRepo) SaveComparisonRun(ctx context.Context, run *domain.ComparisonRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return dbError("保存对比结果失败", err)
	}
	return nil
}

func (r *PostgresRepo) LatestComparisonRun(ctx context.Context, key, mode string) (*domain.ComparisonRun, error) {
	var run domain.ComparisonRun
	err := r.db.WithContext(ctx).
		Where("comparison_key = ? AND mode = ?", key, mode).
		Order("created_at DESC").
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("读取历史对比失败", err)
	}
	return &run, nil
}

func (r *PostgresRepo) ListComparisonRuns(ctx context.Context, mode string, limit int) ([]*domain.ComparisonRun, error) {
	var runs []*domain.ComparisonRun
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if mode != "" {
		q = q.Where("mode = ?", mode)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, dbError("读取对比列表失败", err)
	}
	return runs, nil
}

// ---- 订阅 ----

// UpsertSubscription 新建或重新启用 (用户, 仓库) 订阅
func (r *PostgresRepo) UpsertSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	var saved domain.Subscription
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND repository_id = ?", sub.UserID, sub.RepositoryID).Take(&saved).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			saved = *sub
			saved.Enabled = true
			return tx.Create(&saved).Error
		}
		if err != nil {
			return err
		}
		saved.Criteria = sub.Criteria
		saved.Enabled = true
		return tx.Model(&saved).Select("criteria", "enabled").Updates(&saved).Error
	})
	if err != nil {
		return nil, dbError("保存订阅失败", err)
	}
	return &saved, nil
}

func (r *PostgresRepo) DisableSubscription(ctx context.Context, userID, repoID string) error {
	result := r.db.WithContext(ctx).Model(&domain.Subscription{}).
		Where("user_id = ? AND repository_id = ?", userID, repoID).
		Update("enabled", false)
	if result.Error != nil {
		return dbError("停用订阅失败", result.Error)
	}
	if result.RowsAffected == 0 {
		return common.NewError(common.ErrCodeNotFound, fmt.Sprintf("%s 没有订阅 %s", userID, repoID))
	}
	return nil
}

func (r *PostgresRepo) ListSubscriptions(ctx context.Context, repoID string) ([]*domain.Subscription, error) {
	var subs []*domain.Subscription
	err := r.db.WithContext(ctx).
		Where("repository_id = ? AND enabled = ?", repoID, true).
		Order("created_at").
		Find(&subs).Error
	if err != nil {
		return nil, dbError("读取订阅失败", err)
	}
	return subs, nil
}

func (r *PostgresRepo) ListUserSubscriptions(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	var subs []*domain.Subscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&subs).Error
	if err != nil {
		return nil, dbError("读取订阅失败", err)
	}
	return subs, nil
}

// ---- 通知 ----

func (r *PostgresRepo) SaveNotification(ctx context.Context, n *domain.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return dbError("保存通知失败", err)
	}
	return nil
}

// MarkDelivered 标记通知为已投递
func (r *PostgresRepo) MarkDelivered(ctx context.Context, notificationID string) error {
	result := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id = ?", notificationID).
		Updates(map[string]any{"delivered": true, "delivered_at": time.Now()})
	if result.Error != nil {
		return dbError("更新通知状态失败", result.Error)
	}
	return nil
}

func (r *PostgresRepo) ListNotifications(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	var items []*domain.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, dbError("读取通知失败", err)
	}
	return items, nil
}

// ---- 任务报告 ----

// SaveIngestRun 开始时写入一次，结束时覆盖
func (r *PostgresRepo) SaveIngestRun(ctx context.Context, run *domain.IngestRun) error {
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return dbError("保存任务报告失败", err)
	}
	return nil
}

func (r *PostgresRepo) ListIngestRuns(ctx context.Context, limit int) ([]*domain.IngestRun, error) {
	var runs []*domain.IngestRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, dbError("读取任务报告失败", err)
	}
	return runs, nil
}
