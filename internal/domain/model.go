package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChangeType 发布内容的分类
type ChangeType string

const (
	ChangeSecurity    ChangeType = "security"
	ChangeFix         ChangeType = "fix"
	ChangeFeature     ChangeType = "feature"
	ChangeDocs        ChangeType = "docs"
	ChangeMaintenance ChangeType = "maintenance"

	// ChangeRankingShift 仅用于排名变化通知，不会出现在 Analysis 上
	ChangeRankingShift ChangeType = "ranking_shift"
)

// Valid 判断是否为分析结果允许的分类
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeSecurity, ChangeFix, ChangeFeature, ChangeDocs, ChangeMaintenance:
		return true
	}
	return false
}

// Significance 粗粒度的严重程度
type Significance string

const (
	SignificanceLow    Significance = "low"
	SignificanceMedium Significance = "medium"
	SignificanceHigh   Significance = "high"
)

func (s Significance) Valid() bool {
	return s == SignificanceLow || s == SignificanceMedium || s == SignificanceHigh
}

// AnalysisSource 标记分析结果来自远程模型还是本地启发式
type AnalysisSource string

const (
	SourceLLM       AnalysisSource = "llm"
	SourceHeuristic AnalysisSource = "heuristic"
)

// 四个评分维度
const (
	CriterionFeatures   = "features"
	CriterionSecurity   = "security"
	CriterionMaturity   = "maturity"
	CriterionUseCaseFit = "useCaseFit"
)

// Criteria 固定顺序的评分维度列表
var Criteria = []string{CriterionFeatures, CriterionSecurity, CriterionMaturity, CriterionUseCaseFit}

// Criterion 单个维度的评分 (0-100) 和理由
type Criterion struct {
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
}

// CriteriaScores 维度名 -> 评分
type CriteriaScores map[string]Criterion

// MonitoredRepository 被监控的仓库，ID 即规范化后的 owner/name
type MonitoredRepository struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	URL             string     `json:"url"`
	LatestReleaseID string     `json:"latest_release_id"` // 指向最新的 Snapshot
	LatestReleaseAt *time.Time `json:"latest_release_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Release 来自 GitHub 的一次发布 (不落库)
type Release struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	TagName     string    `json:"tag_name"`
	Body        string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
}

// Snapshot 一次被观察到的发布，创建后不可变
type Snapshot struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	RepositoryID string       `json:"repository_id" gorm:"uniqueIndex:idx_snapshot_release;index"`
	ExternalID   int64        `json:"external_id" gorm:"uniqueIndex:idx_snapshot_release"`
	Title        string       `json:"title"`
	TagName      string       `json:"tag_name"`
	HTMLURL      string       `json:"html_url"`
	PublishedAt  time.Time    `json:"published_at"`
	Summary      string       `json:"summary"`
	AnalysisID   string       `json:"analysis_id"`
	ChangeType   ChangeType   `json:"change_type"`
	Significance Significance `json:"significance"`
	CreatedAt    time.Time    `json:"created_at" gorm:"index"`
}

// ReleaseEvent 与 Snapshot 同时写入的发布事件流水
type ReleaseEvent struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	RepositoryID string    `json:"repository_id" gorm:"index"`
	SnapshotID   string    `json:"snapshot_id"`
	ExternalID   int64     `json:"external_id"`
	Source       string    `json:"source"`
	EventType    string    `json:"event_type"`
	ReleaseURL   string    `json:"release_url"`
	PublishedAt  time.Time `json:"published_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Analysis 一个 Snapshot 对应的评分报告
type Analysis struct {
	ID           string         `json:"id" gorm:"primaryKey"`
	RepositoryID string         `json:"repository_id" gorm:"index"`
	Source       AnalysisSource `json:"source"`
	Summary      string         `json:"summary" gorm:"type:text"`
	ChangeType   ChangeType     `json:"change_type"`
	Significance Significance   `json:"significance"`
	Criteria     CriteriaScores `json:"criteria" gorm:"serializer:json"`
	Confidence   float64        `json:"confidence"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TrendDirection 排名相对上一次对比的变化
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
	TrendNew    TrendDirection = "new"
)

// Trend 排名变化。Direction 为 new 时 PreviousRank 和 DeltaRank 为 0
type Trend struct {
	Direction    TrendDirection `json:"direction"`
	PreviousRank int            `json:"previous_rank,omitempty"`
	DeltaRank    int            `json:"delta_rank,omitempty"`
}

// RankEntry 排名列表中的一项
type RankEntry struct {
	RepositoryID  string       `json:"repository_id"`
	Rank          int          `json:"rank"`
	Score         int          `json:"score"`
	Confidence    float64      `json:"confidence"`
	Rationale     string       `json:"rationale"`
	TopChangeType ChangeType   `json:"top_change_type"`
	Significance  Significance `json:"significance"`
	Trend         Trend        `json:"trend"`
}

// Alternative 落选的候选仓库及原因
type Alternative struct {
	RepositoryID string `json:"repository_id"`
	Reason       string `json:"reason"`
}

// ComparisonRationale 对比结论的解释
type ComparisonRationale struct {
	WinnerJustification string        `json:"winner_justification"`
	Alternatives        []Alternative `json:"alternatives"`
	OverallTradeoff     string        `json:"overall_tradeoff"`
}

// ComparisonRun 一次对比的结果，创建后只读
type ComparisonRun struct {
	ID             string              `json:"id" gorm:"primaryKey"`
	UserID         string              `json:"user_id"`
	Mode           string              `json:"mode" gorm:"index:idx_comparison_lookup"`
	ComparisonKey  string              `json:"comparison_key" gorm:"index:idx_comparison_lookup"`
	RepositoryIDs  []string            `json:"repository_ids" gorm:"serializer:json"`
	Ranking        []RankEntry         `json:"ranking" gorm:"serializer:json"`
	Winner         string              `json:"winner"`
	Summary        string              `json:"summary" gorm:"type:text"`
	Rationale      ComparisonRationale `json:"rationale" gorm:"serializer:json"`
	Confidence     float64             `json:"confidence"`
	NarrativeByLLM bool                `json:"narrative_by_llm"`
	CreatedAt      time.Time           `json:"created_at" gorm:"index"`
}

// CriteriaAll 订阅时未指定条件的默认值
const CriteriaAll = "all"

// Subscription 用户对仓库的订阅，只会被停用，不会被删除
type Subscription struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"user_id" gorm:"uniqueIndex:idx_subscription_user_repo"`
	RepositoryID string    `json:"repository_id" gorm:"uniqueIndex:idx_subscription_user_repo;index"`
	Criteria     []string  `json:"criteria" gorm:"serializer:json"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
}

// Notification 一次投递尝试的记录
type Notification struct {
	ID           string         `json:"id" gorm:"primaryKey"`
	UserID       string         `json:"user_id" gorm:"index"`
	RepositoryID string         `json:"repository_id"`
	Type         ChangeType     `json:"type"`
	Title        string         `json:"title"`
	Body         string         `json:"body" gorm:"type:text"`
	Payload      map[string]any `json:"payload" gorm:"serializer:json"`
	Delivered    bool           `json:"delivered"`
	DeliveredAt  *time.Time     `json:"delivered_at"`
	CreatedAt    time.Time      `json:"created_at" gorm:"index"`
}

// RunStatus 抓取任务的状态
type RunStatus string

const (
	RunRunning             RunStatus = "running"
	RunCompleted           RunStatus = "completed"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
)

// IngestRun 一次抓取任务的报告
type IngestRun struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	StartedAt     time.Time  `json:"startedAt" gorm:"index"`
	FinishedAt    *time.Time `json:"finishedAt"`
	Status        RunStatus  `json:"status"`
	ReposScanned  int        `json:"reposScanned"`
	EventsCreated int        `json:"eventsCreated"`
	Errors        []string   `json:"errors" gorm:"serializer:json"`
}

// NewID 生成带前缀的记录 ID，例如 snapshot_3f2a...
func NewID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
