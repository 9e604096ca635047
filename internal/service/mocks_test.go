package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github-release-radar/internal/adapter/repository"
	"github-release-radar/internal/domain"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) LatestRelease(ctx context.Context, repoID string) (*domain.Release, error) {
	args := m.Called(ctx, repoID)
	if r := args.Get(0); r != nil {
		return r.(*domain.Release), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFetcher) RecentCommitMessages(ctx context.Context, repoID string) ([]string, error) {
	args := m.Called(ctx, repoID)
	if r := args.Get(0); r != nil {
		return r.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) Enrich(ctx context.Context, pageURL string) string {
	args := m.Called(ctx, pageURL)
	return args.String(0)
}

type MockScorer struct {
	mock.Mock
}

func (m *MockScorer) ScoreRelease(ctx context.Context, req domain.ScoreRequest) (*domain.ScoreReport, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*domain.ScoreReport), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockNarrator struct {
	mock.Mock
}

func (m *MockNarrator) Narrate(ctx context.Context, req domain.NarrativeRequest) (*domain.Narrative, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*domain.Narrative), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingSink 记录投递过的通知，err 非空时投递失败
type recordingSink struct {
	mu        sync.Mutex
	err       error
	delivered []*domain.Notification
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, n)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func newStore(t *testing.T) *repository.MemoryRepo {
	t.Helper()
	store, err := repository.NewMemoryRepo("")
	require.NoError(t, err)
	return store
}

func scores(features, security, maturity, useCaseFit int) domain.CriteriaScores {
	return domain.CriteriaScores{
		domain.CriterionFeatures:   {Score: features, Rationale: "features"},
		domain.CriterionSecurity:   {Score: security, Rationale: "security"},
		domain.CriterionMaturity:   {Score: maturity, Rationale: "maturity"},
		domain.CriterionUseCaseFit: {Score: useCaseFit, Rationale: "useCaseFit"},
	}
}

// seedRelease 直接写入一条发布及其分析，createdAt 决定谁是最新快照
func seedRelease(t *testing.T, store *repository.MemoryRepo, repoID string, externalID int64, criteria domain.CriteriaScores, confidence float64, createdAt time.Time) *domain.Snapshot {
	t.Helper()
	ctx := context.Background()

	_, err := store.GetOrCreateRepository(ctx, repoID)
	require.NoError(t, err)

	analysis := &domain.Analysis{
		ID:           domain.NewID("analysis"),
		RepositoryID: repoID,
		Source:       domain.SourceLLM,
		Summary:      repoID + " summary",
		ChangeType:   domain.ChangeFeature,
		Significance: domain.SignificanceMedium,
		Criteria:     criteria,
		Confidence:   confidence,
		CreatedAt:    createdAt,
	}
	snapshot := &domain.Snapshot{
		ID:           domain.NewID("snapshot"),
		RepositoryID: repoID,
		ExternalID:   externalID,
		Title:        "release",
		AnalysisID:   analysis.ID,
		ChangeType:   analysis.ChangeType,
		Significance: analysis.Significance,
		CreatedAt:    createdAt,
	}
	event := &domain.ReleaseEvent{ID: domain.NewID("event"), RepositoryID: repoID, SnapshotID: snapshot.ID, ExternalID: externalID, CreatedAt: createdAt}
	require.NoError(t, store.SaveRelease(ctx, analysis, snapshot, event))
	return snapshot
}
