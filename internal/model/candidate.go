package model

import (
	"math"
	"time"
)

// UnboundedFree は期限なしフリー状態の残り時間を表す番兵値。
// フリー期限が設定されていないトレントは実質無期限として扱う。
const UnboundedFree = time.Duration(math.MaxInt64)

// Candidate はカタログ検索で得られた追加候補を表す。
// 永続化されず、1回の取得サイクルの中でのみ存在する。
type Candidate struct {
	SiteName  string
	LocalID   string
	Name      string
	SizeBytes int64
	CreatedAt time.Time
	Seeders   int
	Leechers  int
	IsFree    bool
	FreeUntil *time.Time // nilなら無期限フリー（IsFreeがtrueの場合のみ意味を持つ）
}

// RemainingFree は現時刻からのフリー期間の残り時間を返す。
// フリーでない場合は0、期限未設定のフリーはUnboundedFree、
// 期限切れの場合は0を返す。
func (c *Candidate) RemainingFree(now time.Time) time.Duration {
	if !c.IsFree {
		return 0
	}
	if c.FreeUntil == nil {
		return UnboundedFree
	}
	d := c.FreeUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
