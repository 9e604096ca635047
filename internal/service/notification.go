package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github-release-radar/internal/adapter/filter"
	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
	"github-release-radar/internal/metrics"
	"github-release-radar/internal/port"
)

// notificationStore 派发器用到的存储能力
type notificationStore interface {
	port.SubscriptionStore
	port.NotificationStore
}

// Dispatcher 按订阅条件生成通知并通过 Sink 投递
// 投递是尽力而为的：失败只记日志，不重试
type Dispatcher struct {
	store   notificationStore
	sink    port.Sink
	metrics *metrics.Recorder
	now     func() time.Time
}

func NewDispatcher(store notificationStore, sink port.Sink, rec *metrics.Recorder) *Dispatcher {
	return &Dispatcher{store: store, sink: sink, metrics: rec, now: time.Now}
}

// NotifyRelease 为仓库的每个启用且条件匹配的订阅创建并投递一条通知
// 返回创建的通知数
func (d *Dispatcher) NotifyRelease(ctx context.Context, snapshot *domain.Snapshot, analysis *domain.Analysis) (int, error) {
	subs, err := d.store.ListSubscriptions(ctx, snapshot.RepositoryID)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, sub := range subs {
		if !filter.Accepts(sub, analysis.ChangeType) {
			common.Logger(ctx).Debug("订阅条件不匹配，跳过",
				slog.String("user", sub.UserID),
				slog.String("repo", sub.RepositoryID),
				slog.String("type", string(analysis.ChangeType)),
			)
			continue
		}

		n := &domain.Notification{
			ID:           domain.NewID("notify"),
			UserID:       sub.UserID,
			RepositoryID: snapshot.RepositoryID,
			Type:         analysis.ChangeType,
			Title:        fmt.Sprintf("%s new update", snapshot.RepositoryID),
			Body:         analysis.Summary,
			Payload: map[string]any{
				"releaseUrl":    snapshot.HTMLURL,
				"severity":      string(analysis.Significance),
				"changeType":    string(analysis.ChangeType),
				"scoreSnapshot": analysis.Criteria,
			},
		}
		if err := d.Send(ctx, n); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// NotifyRankShifts 对比排名变化时通知发起对比的用户
func (d *Dispatcher) NotifyRankShifts(ctx context.Context, userID string, run *domain.ComparisonRun, shifts []filter.RankShift) error {
	for _, s := range shifts {
		n := &domain.Notification{
			ID:           domain.NewID("notify"),
			UserID:       userID,
			RepositoryID: s.RepositoryID,
			Type:         domain.ChangeRankingShift,
			Title:        fmt.Sprintf("Ranking changed for %s", s.RepositoryID),
			Body:         s.Message(),
			Payload: map[string]any{
				"mode":          run.Mode,
				"comparisonKey": run.ComparisonKey,
				"previousRank":  s.PreviousRank,
				"currentRank":   s.CurrentRank,
				"delta":         s.Delta,
				"severity":      string(s.Severity()),
				"winner":        run.Winner,
			},
		}
		if err := d.Send(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// Send 先以 delivered=false 落库，再尝试投递；只有保存失败才返回错误
func (d *Dispatcher) Send(ctx context.Context, n *domain.Notification) error {
	n.Delivered = false
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}
	if err := d.store.SaveNotification(ctx, n); err != nil {
		return err
	}

	if d.sink == nil {
		return nil
	}

	logger := common.Logger(ctx).With(
		slog.String("notification", n.ID),
		slog.String("sink", d.sink.Name()),
		slog.String("user", n.UserID),
		slog.String("repo", n.RepositoryID),
	)

	if err := d.sink.Deliver(ctx, n); err != nil {
		d.metrics.Notification(d.sink.Name(), false)
		logger.Warn("通知投递失败，不重试", slog.Any("error", err))
		return nil
	}
	d.metrics.Notification(d.sink.Name(), true)

	if err := d.store.MarkDelivered(ctx, n.ID); err != nil {
		logger.Warn("标记通知为已投递失败", slog.Any("error", err))
		return nil
	}
	n.Delivered = true
	return nil
}
