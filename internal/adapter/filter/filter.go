package filter

import (
	"fmt"
	"slices"

	"github-release-radar/internal/domain"
)

// Accepts 判断订阅是否接收某类变更
// 条件里没有 security 的订阅不接收 security 类通知，其他类型一律放行
// 注意这不是白名单：["feature"] 的订阅照样会收到 fix/docs 通知
func Accepts(sub *domain.Subscription, change domain.ChangeType) bool {
	if sub == nil || !sub.Enabled {
		return false
	}
	if change != domain.ChangeSecurity {
		return true
	}
	// all 和空条件都不算订阅了 security
	return slices.Contains(sub.Criteria, string(domain.ChangeSecurity))
}

// RankShift 同一组仓库两次对比之间的排名变化
type RankShift struct {
	RepositoryID string
	PreviousRank int
	CurrentRank  int
	Delta        int // PreviousRank - CurrentRank，正数表示上升
}

func (s RankShift) Direction() domain.TrendDirection {
	if s.Delta > 0 {
		return domain.TrendUp
	}
	return domain.TrendDown
}

// Severity 变化两位及以上为 high
func (s RankShift) Severity() domain.Significance {
	if abs(s.Delta) >= 2 {
		return domain.SignificanceHigh
	}
	return domain.SignificanceMedium
}

func (s RankShift) Message() string {
	return fmt.Sprintf("Ranking shift: %s moved %s from #%d to #%d", s.RepositoryID, s.Direction(), s.PreviousRank, s.CurrentRank)
}

// DetectRankShifts 找出排名变化至少 minShift 位的仓库，新出现的仓库不算
func DetectRankShifts(previous, current []domain.RankEntry, minShift int) []RankShift {
	if minShift < 1 {
		minShift = 1
	}

	prevRank := make(map[string]int, len(previous))
	for _, e := range previous {
		prevRank[e.RepositoryID] = e.Rank
	}

	var shifts []RankShift
	for _, e := range current {
		before, ok := prevRank[e.RepositoryID]
		if !ok || before == 0 || e.Rank == 0 {
			continue
		}
		delta := before - e.Rank
		if abs(delta) >= minShift {
			shifts = append(shifts, RankShift{
				RepositoryID: e.RepositoryID,
				PreviousRank: before,
				CurrentRank:  e.Rank,
				Delta:        delta,
			})
		}
	}
	return shifts
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
