package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github-release-radar/internal/domain"
)

// HeuristicConfidence 启发式结果的固定置信度，低于远程打分
const HeuristicConfidence = 0.52

// 各维度基础分
const (
	baseFeatures   = 50
	baseSecurity   = 45
	baseMaturity   = 52
	baseUseCaseFit = 48
)

var (
	featureKeywords   = compileKeywords("feature", "feat", "add", "support", "enhance", "improve", "new", "introduce", "plugin", "api", "interface", "integration")
	securityKeywords  = compileKeywords("security", "cve", "vulnerab", "xss", "csrf", "leak", "secret", "access", "auth", "token", "encrypt")
	stabilityKeywords = compileKeywords("fix", "bug", "crash", "error", "stability", "rollback", "refactor", "performance", "perf")
	useCaseKeywords   = compileKeywords("case", "integration", "deploy", "ci", "pipeline", "workflow", "api", "sdk", "template", "docs")
)

// 分类按顺序匹配，先命中者优先
var classifyRules = []struct {
	pattern *regexp.Regexp
	change  domain.ChangeType
}{
	{regexp.MustCompile(`security|vuln|cve|threat|exploit`), domain.ChangeSecurity},
	{regexp.MustCompile(`fix|bug|crash|regression|patch|broken`), domain.ChangeFix},
	{regexp.MustCompile(`feat|feature|add|added|introduce|support|new|enhance|improve`), domain.ChangeFeature},
	{regexp.MustCompile(`doc|document|readme`), domain.ChangeDocs},
}

func compileKeywords(words ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		res = append(res, regexp.MustCompile(`\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return res
}

// Signals 四组关键词的命中次数
type Signals struct {
	Features  int
	Security  int
	Stability int
	UseCase   int
}

// CountSignals 统计整词出现次数，text 需已转小写
func CountSignals(text string) Signals {
	return Signals{
		Features:  countMatches(text, featureKeywords),
		Security:  countMatches(text, securityKeywords),
		Stability: countMatches(text, stabilityKeywords),
		UseCase:   countMatches(text, useCaseKeywords),
	}
}

func countMatches(text string, patterns []*regexp.Regexp) int {
	total := 0
	for _, p := range patterns {
		total += len(p.FindAllStringIndex(text, -1))
	}
	return total
}

// Classify 只看标题和正文，不看提交记录和抓取内容
func Classify(title, body string) domain.ChangeType {
	text := strings.ToLower(title + " " + body)
	for _, rule := range classifyRules {
		if rule.pattern.MatchString(text) {
			return rule.change
		}
	}
	return domain.ChangeMaintenance
}

// Significance 安全信号 > 2、特性发布且特性信号 > 5、或稳定性信号 > 6 时为 high
func Significance(change domain.ChangeType, s Signals) domain.Significance {
	switch {
	case s.Security > 2 || (change == domain.ChangeFeature && s.Features > 5) || s.Stability > 6:
		return domain.SignificanceHigh
	case s.Features > 3 || s.Stability > 3 || s.Security > 0:
		return domain.SignificanceMedium
	default:
		return domain.SignificanceLow
	}
}

// Heuristic 确定性的本地打分器，输出总是完整有效的
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Score 基础分加关键词信号的线性组合，截断到 [0,100]
func (h *Heuristic) Score(req domain.ScoreRequest) *domain.ScoreReport {
	text := strings.ToLower(strings.Join([]string{req.ReleaseTitle, req.ReleaseBody, req.CommitSample, req.ScrapedSample}, " "))
	s := CountSignals(text)

	authBonus := 0.0
	if strings.Contains(text, "auth") {
		authBonus = 6
	}

	features := score(baseFeatures + 4*float64(s.Features) - float64(s.Stability))
	security := score(baseSecurity + 5*float64(s.Security) + authBonus)
	maturity := score(baseMaturity + 2*float64(s.Stability) + float64(s.Features) - 0.5*float64(s.Security))
	useCaseFit := score(baseUseCaseFit + 3*float64(s.UseCase) + 0.75*float64(s.Features))

	change := Classify(req.ReleaseTitle, req.ReleaseBody)
	repo := req.Repo
	if repo == "" {
		repo = "repository"
	}

	return &domain.ScoreReport{
		Summary:      fmt.Sprintf("Detected %s activity with %s impact for %s.", change, titleCase(string(change)), repo),
		ChangeType:   change,
		Significance: Significance(change, s),
		Criteria: domain.CriteriaScores{
			domain.CriterionFeatures: {
				Score:     features,
				Rationale: fmt.Sprintf("Feature signal strength is %d, with %s visible changes.", s.Features, pick(s.Features > 0, "new additions", "limited")),
			},
			domain.CriterionSecurity: {
				Score:     security,
				Rationale: fmt.Sprintf("Security signal strength is %d, and %s.", s.Security, pick(s.Security > 0, "security-related content is present", "no explicit security mentions were detected")),
			},
			domain.CriterionMaturity: {
				Score:     maturity,
				Rationale: fmt.Sprintf("Stability and maintenance signal count is %d, indicating %s.", s.Stability, pick(s.Stability > 0, "active maintenance effort", "minimal maintenance clues")),
			},
			domain.CriterionUseCaseFit: {
				Score:     useCaseFit,
				Rationale: fmt.Sprintf("Integration and workflow mentions are at %d, giving %s project usability signal.", s.UseCase, pick(s.UseCase > 0, "moderate", "low")),
			},
		},
		Confidence: HeuristicConfidence,
	}
}

func score(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
