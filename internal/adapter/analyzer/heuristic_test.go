package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github-release-radar/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		title string
		body  string
		want  domain.ChangeType
	}{
		{name: "安全优先于修复", title: "v1.0.1", body: "security vulnerability fix", want: domain.ChangeSecurity},
		{name: "新特性", title: "v1.1.0", body: "add new feature", want: domain.ChangeFeature},
		{name: "修复", title: "v1.0.2", body: "Patch for a crash on startup", want: domain.ChangeFix},
		{name: "文档", title: "v1.0.3", body: "README tweaks", want: domain.ChangeDocs},
		{name: "无匹配", title: "v1.0.4", body: "bump version", want: domain.ChangeMaintenance},
		{name: "CVE 写在标题里", title: "CVE-2026-1234", body: "", want: domain.ChangeSecurity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.title, tt.body))
		})
	}
}

func TestHeuristic_ClassifyIgnoresCommitsAndScraped(t *testing.T) {
	report := NewHeuristic().Score(domain.ScoreRequest{
		Repo:          "acme/tool",
		ReleaseTitle:  "v2.0.0",
		ReleaseBody:   "bump version",
		CommitSample:  "security: patch cve",
		ScrapedSample: "fix crash",
	})

	assert.Equal(t, domain.ChangeMaintenance, report.ChangeType)
}

func TestCountSignals_WholeWords(t *testing.T) {
	s := CountSignals("add api; added apis. fix the bug, prefix bugs ci/cd pipeline")

	assert.Equal(t, 2, s.Features)  // add, api
	assert.Equal(t, 2, s.Stability) // fix, bug
	assert.Equal(t, 3, s.UseCase)   // api, ci, pipeline
	assert.Equal(t, 0, s.Security)
}

func TestSignificance(t *testing.T) {
	tests := []struct {
		name    string
		change  domain.ChangeType
		signals Signals
		want    domain.Significance
	}{
		{name: "安全信号多", change: domain.ChangeFix, signals: Signals{Security: 3}, want: domain.SignificanceHigh},
		{name: "特性版本特性信号多", change: domain.ChangeFeature, signals: Signals{Features: 6}, want: domain.SignificanceHigh},
		{name: "非特性版本特性信号多", change: domain.ChangeFix, signals: Signals{Features: 6}, want: domain.SignificanceMedium},
		{name: "稳定性信号多", change: domain.ChangeMaintenance, signals: Signals{Stability: 7}, want: domain.SignificanceHigh},
		{name: "一个安全信号", change: domain.ChangeMaintenance, signals: Signals{Security: 1}, want: domain.SignificanceMedium},
		{name: "信号很少", change: domain.ChangeFeature, signals: Signals{Features: 3, Stability: 3}, want: domain.SignificanceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Significance(tt.change, tt.signals))
		})
	}
}

func TestHeuristic_Score(t *testing.T) {
	report := NewHeuristic().Score(domain.ScoreRequest{
		Repo:         "acme/tool",
		ReleaseTitle: "v1.2.0",
		ReleaseBody:  "add plugin api. fix crash. auth token rotation",
	})

	// features: add, plugin, api = 3; stability: fix, crash = 2; security: auth, token = 2; use case: api = 1
	assert.Equal(t, 50+12-2, report.Criteria[domain.CriterionFeatures].Score)
	assert.Equal(t, 45+10+6, report.Criteria[domain.CriterionSecurity].Score)
	assert.Equal(t, 52+4+3-1, report.Criteria[domain.CriterionMaturity].Score)
	assert.Equal(t, 53, report.Criteria[domain.CriterionUseCaseFit].Score) // 48 + 3 + 2.25 = 53.25
	assert.Equal(t, domain.ChangeFix, report.ChangeType)
	assert.Equal(t, domain.SignificanceMedium, report.Significance)
	assert.Equal(t, HeuristicConfidence, report.Confidence)
	assert.Equal(t, "Detected fix activity with Fix impact for acme/tool.", report.Summary)
	assert.True(t, report.Complete())
}

func TestHeuristic_ScoreAlwaysComplete(t *testing.T) {
	inputs := []domain.ScoreRequest{
		{},
		{ReleaseBody: strings.Repeat("security cve leak ", 50)},
		{ReleaseBody: strings.Repeat("fix bug crash ", 100)},
		{ReleaseBody: strings.Repeat("feature api plugin ", 100)},
	}

	for _, in := range inputs {
		report := NewHeuristic().Score(in)
		assert.True(t, report.Complete())
		for _, name := range domain.Criteria {
			c := report.Criteria[name]
			assert.GreaterOrEqual(t, c.Score, 0)
			assert.LessOrEqual(t, c.Score, 100)
			assert.NotEmpty(t, c.Rationale)
		}
	}
}

func TestHeuristic_EmptyRepoName(t *testing.T) {
	report := NewHeuristic().Score(domain.ScoreRequest{})

	assert.Equal(t, "Detected maintenance activity with Maintenance impact for repository.", report.Summary)
	assert.Equal(t, domain.SignificanceLow, report.Significance)
}
