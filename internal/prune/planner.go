// Package prune は容量不足時のトレント削減を提供する。
// 人気度の低いものから順に、不足分を満たす最短の組を選んで削減する。
package prune

import (
	"sort"

	"github.com/hitoshi/seedman/internal/model"
	"github.com/hitoshi/seedman/internal/scoring"
)

// Victim は削減対象に選ばれたトレント。
type Victim struct {
	Torrent          *model.TorrentWithStat
	Popularity       float64
	AccumulatedBytes int64 // ここまでの削減対象の累積サイズ
}

// Plan は1回の削減計画。
type Plan struct {
	UsedBytes    int64
	ReserveBytes int64
	QuotaBytes   int64
	DeficitBytes int64
	Victims      []Victim
}

// FreedBytes は計画全体で解放されるバイト数を返す。
func (p *Plan) FreedBytes() int64 {
	if len(p.Victims) == 0 {
		return 0
	}
	return p.Victims[len(p.Victims)-1].AccumulatedBytes
}

// BuildPlan は削減計画を構築する。
// クォータが0以下なら削減は行わない。不足分は (使用量+予約量)−クォータ。
// 生存中トレントを人気度昇順（最新サンプルなしは0、同値は入力順を維持）
// に並べ、累積サイズが不足分に達する最短の先頭区間を対象に選ぶ。
// 全件でも不足分に達しない場合は全件が対象になる。
func BuildPlan(usedBytes, reserveBytes, quotaBytes int64, alive []*model.TorrentWithStat) *Plan {
	plan := &Plan{
		UsedBytes:    usedBytes,
		ReserveBytes: reserveBytes,
		QuotaBytes:   quotaBytes,
	}

	if quotaBytes <= 0 {
		return plan
	}

	deficit := (usedBytes + reserveBytes) - quotaBytes
	if deficit <= 0 {
		return plan
	}
	plan.DeficitBytes = deficit

	candidates := make([]Victim, len(alive))
	for i, t := range alive {
		candidates[i] = Victim{
			Torrent:    t,
			Popularity: scoring.Popularity(&t.Torrent, t.LatestStat),
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Popularity < candidates[j].Popularity
	})

	var accumulated int64
	for _, v := range candidates {
		if accumulated >= deficit {
			break
		}
		accumulated += v.Torrent.SizeBytes
		v.AccumulatedBytes = accumulated
		plan.Victims = append(plan.Victims, v)
	}

	return plan
}
