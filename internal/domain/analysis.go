package domain

// ScoreRequest 远程打分和启发式打分共用的输入
type ScoreRequest struct {
	Repo          string `json:"repo"`
	ReleaseTitle  string `json:"releaseTitle"`
	ReleaseBody   string `json:"releaseBody"`
	ReleaseURL    string `json:"releaseUrl"`
	CommitSample  string `json:"commitSample"`
	ScrapedSample string `json:"scrapedSample"`
}

// ScoreReport 一次打分的完整结果
type ScoreReport struct {
	Summary      string         `json:"summary"`
	ChangeType   ChangeType     `json:"changeType"`
	Significance Significance   `json:"significance"`
	Criteria     CriteriaScores `json:"criteria"`
	Confidence   float64        `json:"confidence"`
}

// Complete 四个维度都在且分数在 [0,100]，置信度在 [0,1]
func (r *ScoreReport) Complete() bool {
	if r == nil || !r.ChangeType.Valid() || !r.Significance.Valid() {
		return false
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return false
	}
	for _, name := range Criteria {
		c, ok := r.Criteria[name]
		if !ok || c.Score < 0 || c.Score > 100 {
			return false
		}
	}
	return true
}

// RepoSummary 对比时每个仓库最新分析的摘要
type RepoSummary struct {
	RepositoryID string         `json:"repositoryId"`
	SnapshotID   string         `json:"snapshotId"`
	Title        string         `json:"title"`
	Summary      string         `json:"summary"`
	ChangeType   ChangeType     `json:"changeType"`
	Significance Significance   `json:"significance"`
	Criteria     CriteriaScores `json:"criteria"`
	Confidence   float64        `json:"confidence"`
}

// NarrativeRequest 对比说明的输入
type NarrativeRequest struct {
	Mode      string        `json:"mode"`
	Ranking   []RankEntry   `json:"ranking"`
	Summaries []RepoSummary `json:"summaries"`
}

// Narrative 远程生成的对比说明
type Narrative struct {
	OverallWinner       string        `json:"overallWinner"`
	Rationale           string        `json:"rationale"`
	WinnerJustification string        `json:"winnerJustification"`
	Alternatives        []Alternative `json:"alternatives"`
	Confidence          float64       `json:"confidence"`
}
