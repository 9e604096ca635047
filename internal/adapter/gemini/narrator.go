package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"
)

const narrativePrompt = `You produce strict JSON recommendations for repository comparison.
Create a concise explainable comparison summary for the provided repository snapshots.
Return strict JSON with keys: overallWinner, rationale, winnerJustification, alternatives, confidence.
alternatives is a list of objects with keys repositoryId and reason.
Rationale should explain scoring trade-offs across levels and include repo recommendations.
Input: %s`

// 模型有时把 alternatives 写成字符串列表，有时写成对象列表
type rawAlternative struct {
	domain.Alternative
}

func (a *rawAlternative) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.Reason = s
		return nil
	}
	var obj struct {
		RepositoryID string `json:"repositoryId"`
		Repo         string `json:"repo"`
		Reason       string `json:"reason"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	a.RepositoryID = obj.RepositoryID
	if a.RepositoryID == "" {
		a.RepositoryID = obj.Repo
	}
	a.Reason = obj.Reason
	return nil
}

type narrativeResponse struct {
	OverallWinner       string           `json:"overallWinner"`
	Rationale           string           `json:"rationale"`
	WinnerJustification string           `json:"winnerJustification"`
	Alternatives        []rawAlternative `json:"alternatives"`
	Confidence          float64          `json:"confidence"`
}

// Narrate 为对比结果生成说明。缺少 overallWinner 视为无效
func (c *Client) Narrate(ctx context.Context, req domain.NarrativeRequest) (*domain.Narrative, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "序列化对比请求失败", err)
	}

	raw, err := c.generate(ctx, fmt.Sprintf(narrativePrompt, input))
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "生成对比说明失败", err)
	}

	narrative, err := parseNarrativeResponse(raw)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "对比说明无效", err)
	}
	return narrative, nil
}

func parseNarrativeResponse(raw string) (*domain.Narrative, error) {
	cleanJSON, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var res narrativeResponse
	if err := json.Unmarshal([]byte(cleanJSON), &res); err != nil {
		return nil, fmt.Errorf("JSON 解析失败: %w", err)
	}
	if res.OverallWinner == "" {
		return nil, fmt.Errorf("缺少 overallWinner")
	}

	var alternatives []domain.Alternative
	for _, alt := range res.Alternatives {
		alternatives = append(alternatives, alt.Alternative)
	}

	return &domain.Narrative{
		OverallWinner:       res.OverallWinner,
		Rationale:           res.Rationale,
		WinnerJustification: res.WinnerJustification,
		Alternatives:        alternatives,
		Confidence:          math.Max(0, math.Min(1, res.Confidence)),
	}, nil
}
