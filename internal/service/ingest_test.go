package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github-release-radar/internal/adapter/repository"
	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
	"github-release-radar/internal/metrics"
)

func featureRelease(id int64) *domain.Release {
	return &domain.Release{
		ID:          id,
		Name:        "v1.4.0",
		TagName:     "v1.4.0",
		Body:        "Add new plugin API and support for workflow templates.",
		HTMLURL:     "https://github.com/acme/widget/releases/tag/v1.4.0",
		PublishedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newOrchestrator(t *testing.T, fetcher *MockFetcher, enricher *MockEnricher, store *repository.MemoryRepo, sink *recordingSink, repos ...string) *Orchestrator {
	t.Helper()
	rec := metrics.New()
	return NewOrchestrator(
		fetcher,
		enricher,
		NewAnalysisEngine(nil, rec),
		store,
		NewDispatcher(store, sink, rec),
		repos,
		WithDelay(0),
		WithMetrics(rec),
	)
}

func TestRunCreatesSnapshotAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sink := &recordingSink{}
	fetcher := new(MockFetcher)
	enricher := new(MockEnricher)

	release := featureRelease(101)
	fetcher.On("LatestRelease", mock.Anything, "acme/widget").Return(release, nil)
	fetcher.On("RecentCommitMessages", mock.Anything, "acme/widget").Return([]string{"feat: plugin api"}, nil)
	enricher.On("Enrich", mock.Anything, release.HTMLURL).Return("Release notes page")

	_, err := store.GetOrCreateRepository(ctx, "acme/widget")
	require.NoError(t, err)
	subscribe(t, store, "alice", "acme/widget", "feature")

	o := newOrchestrator(t, fetcher, enricher, store, sink, "acme/widget")
	run, err := o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, 1, run.ReposScanned)
	assert.Equal(t, 1, run.EventsCreated)
	assert.Empty(t, run.Errors)
	assert.NotNil(t, run.FinishedAt)

	snap, err := store.LatestSnapshot(ctx, "acme/widget")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(101), snap.ExternalID)
	assert.Equal(t, "v1.4.0", snap.Title)
	assert.Equal(t, domain.ChangeFeature, snap.ChangeType)

	analysis, err := store.GetAnalysis(ctx, snap.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceHeuristic, analysis.Source)

	repo, err := store.GetRepository(ctx, "acme/widget")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, repo.LatestReleaseID)
	require.NotNil(t, repo.LatestReleaseAt)
	assert.True(t, release.PublishedAt.Equal(*repo.LatestReleaseAt))

	assert.Equal(t, 1, sink.count())

	runs, err := store.ListIngestRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunCompleted, runs[0].Status)

	fetcher.AssertExpectations(t)
	enricher.AssertExpectations(t)
}

func TestRunDeduplicatesRelease(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sink := &recordingSink{}
	fetcher := new(MockFetcher)
	enricher := new(MockEnricher)

	fetcher.On("LatestRelease", mock.Anything, "acme/widget").Return(featureRelease(7), nil)
	fetcher.On("RecentCommitMessages", mock.Anything, "acme/widget").Return([]string{}, nil).Once()
	enricher.On("Enrich", mock.Anything, mock.Anything).Return("").Once()

	o := newOrchestrator(t, fetcher, enricher, store, sink, "acme/widget")

	first, err := o.Run(ctx)
	require.NoError(t, err)
	second, err := o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, first.EventsCreated)
	assert.Equal(t, 0, second.EventsCreated)
	assert.Equal(t, domain.RunCompleted, second.Status)

	snaps, err := store.ListSnapshots(ctx, "acme/widget", 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 1, "同一个发布只应产生一个快照")

	// 第二次运行不应再抓提交记录或页面
	fetcher.AssertNumberOfCalls(t, "RecentCommitMessages", 1)
	enricher.AssertNumberOfCalls(t, "Enrich", 1)
}

func TestRunSkipsRepositoryWithoutRelease(t *testing.T) {
	store := newStore(t)
	fetcher := new(MockFetcher)
	fetcher.On("LatestRelease", mock.Anything, "acme/empty").Return(nil, nil)

	o := newOrchestrator(t, fetcher, new(MockEnricher), store, &recordingSink{}, "acme/empty")
	run, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, 1, run.ReposScanned)
	assert.Zero(t, run.EventsCreated)

	repo, err := store.GetRepository(context.Background(), "acme/empty")
	require.NoError(t, err)
	assert.Empty(t, repo.LatestReleaseID)
}

// panicFetcher 对指定仓库直接 panic
type panicFetcher struct {
	*MockFetcher
	panicOn string
}

func (p *panicFetcher) LatestRelease(ctx context.Context, repoID string) (*domain.Release, error) {
	if repoID == p.panicOn {
		panic("unexpected nil release")
	}
	return p.MockFetcher.LatestRelease(ctx, repoID)
}

func TestRunIsolatesRepositoryFailures(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	base := new(MockFetcher)
	fetcher := &panicFetcher{MockFetcher: base, panicOn: "acme/panics"}
	enricher := new(MockEnricher)

	base.On("LatestRelease", mock.Anything, "acme/broken").
		Return(nil, common.NewError(common.ErrCodeGitHubAPI, "获取最新发布失败"))
	base.On("LatestRelease", mock.Anything, "acme/widget").Return(featureRelease(42), nil)
	base.On("RecentCommitMessages", mock.Anything, "acme/widget").Return(nil, errors.New("commits unavailable"))
	enricher.On("Enrich", mock.Anything, mock.Anything).Return("")

	rec := metrics.New()
	o := NewOrchestrator(fetcher, enricher, NewAnalysisEngine(nil, rec), store, NewDispatcher(store, &recordingSink{}, rec),
		[]string{"acme/broken", "acme/panics", "acme/widget"}, WithDelay(time.Millisecond), WithMetrics(rec))

	run, err := o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompletedWithErrors, run.Status)
	assert.Equal(t, 3, run.ReposScanned)
	assert.Equal(t, 1, run.EventsCreated, "后面的仓库仍应被处理")
	require.Len(t, run.Errors, 2)
	assert.Contains(t, run.Errors[0], "acme/broken: ")
	assert.Contains(t, run.Errors[0], common.ErrCodeGitHubAPI)
	assert.Equal(t, "acme/panics: panic: unexpected nil release", run.Errors[1])

	snap, err := store.LatestSnapshot(ctx, "acme/widget")
	require.NoError(t, err)
	require.NotNil(t, snap, "提交记录失败不应中断分析")
}

// blockingFetcher 阻塞到 release 被关闭
type blockingFetcher struct {
	*MockFetcher
	entered chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) LatestRelease(ctx context.Context, repoID string) (*domain.Release, error) {
	close(b.entered)
	<-b.release
	return nil, nil
}

func TestRunRejectsOverlappingRun(t *testing.T) {
	store := newStore(t)
	fetcher := &blockingFetcher{MockFetcher: new(MockFetcher), entered: make(chan struct{}), release: make(chan struct{})}
	o := NewOrchestrator(fetcher, nil, NewAnalysisEngine(nil, nil), store, nil, []string{"acme/slow"}, WithDelay(0))

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background())
		done <- err
	}()
	<-fetcher.entered

	_, err := o.Run(context.Background())
	assert.True(t, common.HasCode(err, common.ErrCodeRunInProgress))

	close(fetcher.release)
	require.NoError(t, <-done)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	store := newStore(t)
	fetcher := new(MockFetcher)
	fetcher.On("LatestRelease", mock.Anything, "acme/one").Return(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	o := NewOrchestrator(fetcher, nil, NewAnalysisEngine(nil, nil), store, nil,
		[]string{"acme/one", "acme/two"}, WithDelay(time.Hour))

	time.AfterFunc(20*time.Millisecond, cancel)
	run, err := o.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, run.ReposScanned)
	assert.Equal(t, domain.RunCompletedWithErrors, run.Status)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0], "run interrupted")
}

func TestReleaseTitle(t *testing.T) {
	tests := []struct {
		name    string
		release domain.Release
		want    string
	}{
		{name: "使用发布名", release: domain.Release{Name: "Spring release", TagName: "v2"}, want: "Spring release"},
		{name: "回退到标签", release: domain.Release{Name: "  ", TagName: "v2"}, want: "v2"},
		{name: "固定文案", release: domain.Release{}, want: "Latest release"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReleaseTitle(&tt.release))
		})
	}
}
