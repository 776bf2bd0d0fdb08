// Package model はドメインモデルを定義する。
package model

import "time"

// Site はトレントの取得元カタログサイトを表す。
// 最初に参照されたときに遅延作成され、以降は不変として扱う。
type Site struct {
	ID        string
	Name      string
	URL       string
	CreatedAt time.Time
}

// Lifecycle はトレントの生存状態を表す。
type Lifecycle string

const (
	// LifecycleAlive は管理下にあり削除されていない状態。
	LifecycleAlive Lifecycle = "alive"
	// LifecycleRemoved はエージェントから削除済みの状態（ソフトデリート）。
	LifecycleRemoved Lifecycle = "removed"
)

// Torrent は管理下に置かれたトレントを表す。
// info_hashは過去に削除されたレコードを含め全体で一意であり、再利用されない。
// (site_id, local_id) の組もサイトごとに一意。
type Torrent struct {
	ID        string
	InfoHash  string
	Name      string
	SiteID    string
	LocalID   string // サイト側でのトレントID
	URL       string // トレント詳細ページへのURL（相対パスの場合がある）
	SizeBytes int64
	AddedAt   time.Time
	RemovedAt *time.Time // nilなら生存中。削除時刻はソフトデリートのペイロード。
}

// Lifecycle は削除時刻の有無から生存状態を返す。
func (t *Torrent) Lifecycle() Lifecycle {
	if t.RemovedAt == nil {
		return LifecycleAlive
	}
	return LifecycleRemoved
}

// IsAlive は削除されていない場合にtrueを返す。
func (t *Torrent) IsAlive() bool {
	return t.RemovedAt == nil
}

// StatSample はあるトレントの転送カウンタをある時点で観測した記録を表す。
// (torrent_id, recorded_at) は一意。作成後は更新も削除もされない。
// カウンタはトレントの生存期間中は単調非減少であることを前提とする
// （エージェント側の状態喪失でリセットされうるが、検証はしない）。
type StatSample struct {
	ID                string
	TorrentID         string
	RecordedAt        time.Time // UTC、秒精度
	ConnectedSeeders  int
	SwarmSeeders      int
	ConnectedLeechers int
	SwarmLeechers     int
	UploadedBytes     int64
	DownloadedBytes   int64
}

// TorrentWithStat はトレントとその最新サンプルを結合したモデル。
// サンプルがまだ1件もない場合、LatestStatはnil。
type TorrentWithStat struct {
	Torrent
	LatestStat *StatSample
}
