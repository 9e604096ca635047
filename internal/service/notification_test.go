package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-release-radar/internal/adapter/filter"
	"github-release-radar/internal/adapter/notify"
	"github-release-radar/internal/domain"
	"github-release-radar/internal/metrics"
	"github-release-radar/internal/port"
)

func subscribe(t *testing.T, store interface {
	UpsertSubscription(context.Context, *domain.Subscription) (*domain.Subscription, error)
}, user, repo string, criteria ...string) {
	t.Helper()
	_, err := store.UpsertSubscription(context.Background(), &domain.Subscription{
		ID:           domain.NewID("sub"),
		UserID:       user,
		RepositoryID: repo,
		Criteria:     criteria,
		Enabled:      true,
	})
	require.NoError(t, err)
}

func releaseOf(change domain.ChangeType) (*domain.Snapshot, *domain.Analysis) {
	analysis := &domain.Analysis{
		ID:           domain.NewID("analysis"),
		RepositoryID: "acme/widget",
		Summary:      "Detected activity.",
		ChangeType:   change,
		Significance: domain.SignificanceMedium,
		Criteria:     scores(60, 50, 55, 50),
	}
	snapshot := &domain.Snapshot{
		ID:           domain.NewID("snapshot"),
		RepositoryID: "acme/widget",
		HTMLURL:      "https://github.com/acme/widget/releases/tag/v1.0.0",
		AnalysisID:   analysis.ID,
		ChangeType:   change,
	}
	return snapshot, analysis
}

func TestNotifyReleaseSecurityOptOut(t *testing.T) {
	tests := []struct {
		name     string
		criteria []string
		change   domain.ChangeType
		want     int
	}{
		{name: "feature 订阅收不到 security", criteria: []string{"feature"}, change: domain.ChangeSecurity, want: 0},
		{name: "feature 订阅收到 feature", criteria: []string{"feature"}, change: domain.ChangeFeature, want: 1},
		{name: "feature 订阅也收到 fix", criteria: []string{"feature"}, change: domain.ChangeFix, want: 1},
		{name: "all 收不到 security", criteria: []string{"all"}, change: domain.ChangeSecurity, want: 0},
		{name: "空条件收不到 security", criteria: nil, change: domain.ChangeSecurity, want: 0},
		{name: "security 订阅收到 security", criteria: []string{"security"}, change: domain.ChangeSecurity, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			sink := &recordingSink{}
			d := NewDispatcher(store, sink, metrics.New())
			subscribe(t, store, "alice", "acme/widget", tt.criteria...)

			snapshot, analysis := releaseOf(tt.change)
			n, err := d.NotifyRelease(ctx, snapshot, analysis)

			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
			assert.Equal(t, tt.want, sink.count())

			saved, err := store.ListNotifications(ctx, "alice", 0)
			require.NoError(t, err)
			assert.Len(t, saved, tt.want)
		})
	}
}

func TestNotifyReleasePayload(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sink := &recordingSink{}
	d := NewDispatcher(store, sink, nil)
	subscribe(t, store, "alice", "acme/widget")
	subscribe(t, store, "bob", "acme/widget")
	subscribe(t, store, "carol", "other/repo")

	snapshot, analysis := releaseOf(domain.ChangeFeature)
	n, err := d.NotifyRelease(ctx, snapshot, analysis)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Equal(t, 2, sink.count())
	got := sink.delivered[0]
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, domain.ChangeFeature, got.Type)
	assert.Equal(t, "acme/widget new update", got.Title)
	assert.Equal(t, analysis.Summary, got.Body)
	assert.Equal(t, snapshot.HTMLURL, got.Payload["releaseUrl"])
	assert.Equal(t, "medium", got.Payload["severity"])
	assert.Equal(t, "feature", got.Payload["changeType"])
	assert.Equal(t, analysis.Criteria, got.Payload["scoreSnapshot"])
}

func TestNotifyReleaseDisabledSubscription(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sink := &recordingSink{}
	d := NewDispatcher(store, sink, nil)
	subscribe(t, store, "alice", "acme/widget")
	require.NoError(t, store.DisableSubscription(ctx, "alice", "acme/widget"))

	snapshot, analysis := releaseOf(domain.ChangeFeature)
	n, err := d.NotifyRelease(ctx, snapshot, analysis)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, sink.count())
}

func TestSendDeliveredFlag(t *testing.T) {
	tests := []struct {
		name          string
		sink          port.Sink
		wantDelivered bool
	}{
		{name: "投递成功后标记", sink: &recordingSink{}, wantDelivered: true},
		{name: "投递失败保持 false 且不报错", sink: &recordingSink{err: errors.New("webhook down")}, wantDelivered: false},
		{name: "邮件渠道未启用不算投递", sink: notify.NewEmailSink(), wantDelivered: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			d := NewDispatcher(store, tt.sink, metrics.New())

			n := &domain.Notification{ID: domain.NewID("notify"), UserID: "alice", RepositoryID: "acme/widget", Type: domain.ChangeFix}
			require.NoError(t, d.Send(ctx, n))
			assert.Equal(t, tt.wantDelivered, n.Delivered)

			saved, err := store.ListNotifications(ctx, "alice", 0)
			require.NoError(t, err)
			require.Len(t, saved, 1)
			assert.Equal(t, tt.wantDelivered, saved[0].Delivered)
			if tt.wantDelivered {
				assert.NotNil(t, saved[0].DeliveredAt)
			} else {
				assert.Nil(t, saved[0].DeliveredAt)
			}
		})
	}
}

func TestNotifyRankShifts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sink := &recordingSink{}
	d := NewDispatcher(store, sink, nil)

	run := &domain.ComparisonRun{ID: "compare_1", Mode: ModeSecurity, ComparisonKey: "a/a|b/b|c/c", Winner: "c/c"}
	shifts := []filter.RankShift{
		{RepositoryID: "c/c", PreviousRank: 3, CurrentRank: 1, Delta: 2},
		{RepositoryID: "a/a", PreviousRank: 1, CurrentRank: 2, Delta: -1},
	}
	require.NoError(t, d.NotifyRankShifts(ctx, "alice", run, shifts))

	require.Equal(t, 2, sink.count())
	first := sink.delivered[0]
	assert.Equal(t, domain.ChangeRankingShift, first.Type)
	assert.Equal(t, "Ranking shift: c/c moved up from #3 to #1", first.Body)
	assert.Equal(t, "high", first.Payload["severity"])
	assert.Equal(t, "medium", sink.delivered[1].Payload["severity"])
	assert.Equal(t, "Ranking shift: a/a moved down from #1 to #2", sink.delivered[1].Body)
}
