package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
)

const scorePrompt = `You are a precise software release analyst.
Summarize the repository update into strict JSON with fields:
- summary: short one sentence
- changeType: feature|fix|security|docs|maintenance
- significance: low|medium|high
- criteria: object with keys features, security, maturity, useCaseFit. Each key has numeric score 0-100 and rationale string.
- confidence: 0..1
Use the provided raw input and do not include markdown or extra text.

Input:
%s`

// 分数用指针接收，区分 "缺失" 和 0
type rawCriterion struct {
	Score     *float64 `json:"score"`
	Rationale string   `json:"rationale"`
}

type scoreResponse struct {
	Summary      string                  `json:"summary"`
	ChangeType   string                  `json:"changeType"`
	Significance string                  `json:"significance"`
	Criteria     map[string]rawCriterion `json:"criteria"`
	Confidence   float64                 `json:"confidence"`
}

// ScoreRelease 远程打分。任何解析或校验失败都返回 AI_PROCESSING_ERROR，由调用方决定是否回退
func (c *Client) ScoreRelease(ctx context.Context, req domain.ScoreRequest) (*domain.ScoreReport, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "序列化打分请求失败", err)
	}

	raw, err := c.generate(ctx, fmt.Sprintf(scorePrompt, input))
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "远程打分失败", err)
	}

	report, err := parseScoreResponse(raw)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "远程打分结果无效", err)
	}
	return report, nil
}

// parseScoreResponse 四个维度必须齐全且分数为数字，其余字段缺失时取默认值
func parseScoreResponse(raw string) (*domain.ScoreReport, error) {
	cleanJSON, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var res scoreResponse
	if err := json.Unmarshal([]byte(cleanJSON), &res); err != nil {
		return nil, fmt.Errorf("JSON 解析失败: %w", err)
	}

	criteria := make(domain.CriteriaScores, len(domain.Criteria))
	for _, name := range domain.Criteria {
		entry, ok := res.Criteria[name]
		if !ok || entry.Score == nil {
			return nil, fmt.Errorf("缺少维度 %s 的分数", name)
		}
		criteria[name] = domain.Criterion{
			Score:     clampScore(*entry.Score),
			Rationale: entry.Rationale,
		}
	}

	report := &domain.ScoreReport{
		Summary:      res.Summary,
		ChangeType:   domain.ChangeType(res.ChangeType),
		Significance: domain.Significance(res.Significance),
		Criteria:     criteria,
		Confidence:   math.Max(0, math.Min(1, res.Confidence)),
	}
	if report.Summary == "" {
		report.Summary = "No summary returned."
	}
	if !report.ChangeType.Valid() {
		report.ChangeType = domain.ChangeMaintenance
	}
	if !report.Significance.Valid() {
		report.Significance = domain.SignificanceMedium
	}
	return report, nil
}

func clampScore(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}
