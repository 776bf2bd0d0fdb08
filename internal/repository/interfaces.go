// Package repository はデータ永続化のインターフェースを定義する。
// グローバルなDBハンドルは持たず、起動時に1回構築して各コンポーネントに
// 明示的に注入する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/seedman/internal/model"
)

// SiteRepository はカタログサイトの永続化インターフェース。
type SiteRepository interface {
	// FindByName は指定名のサイトを取得する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Site, error)

	// GetOrCreate は指定名のサイトを取得し、存在しない場合は作成する。
	// サイトは最初の参照時に遅延作成され、以降は不変。
	GetOrCreate(ctx context.Context, name, url string) (*model.Site, error)
}

// TorrentRepository は管理下トレントの永続化インターフェース。
type TorrentRepository interface {
	// FindByID は指定IDのトレントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Torrent, error)

	// FindByHash はinfo-hashでトレントを検索する。削除済みレコードも対象。
	// 見つからない場合はnilを返す。
	FindByHash(ctx context.Context, infoHash string) (*model.Torrent, error)

	// FindBySiteAndLocalID はサイト名とサイト側IDでトレントを検索する。
	// 削除済みレコードも対象（同一トレントの再追加を防ぐため）。
	// 見つからない場合はnilを返す。
	FindBySiteAndLocalID(ctx context.Context, siteName, localID string) (*model.Torrent, error)

	// CreateWithSite はサイトの遅延作成とトレントの登録を
	// 同一トランザクションで行う。t.SiteIDとt.IDを埋める。
	CreateWithSite(ctx context.Context, t *model.Torrent, siteName, siteURL string) error

	// ListAlive は生存中（removed_atが未設定）のトレントを追加順で返す。
	ListAlive(ctx context.Context) ([]*model.Torrent, error)

	// ListAliveWithLatestStat は生存中のトレントを最新のサンプル付きで返す。
	// サンプルが1件もないトレントはLatestStat=nilで含まれる。
	ListAliveWithLatestStat(ctx context.Context) ([]*model.TorrentWithStat, error)

	// MarkRemoved は指定トレントに削除時刻を設定する（ソフトデリート）。
	MarkRemoved(ctx context.Context, id string, removedAt time.Time) error

	// SumAliveSizeBytes は生存中トレントの合計サイズ（バイト）を返す。
	SumAliveSizeBytes(ctx context.Context) (int64, error)
}

// StatRepository は転送カウンタ観測記録の永続化インターフェース。
// レコードは追記のみで、更新も削除もされない。
type StatRepository interface {
	// Append は観測記録を1件追加する。s.IDを埋める。
	// (torrent, recorded_at) が重複する場合は何もしない。
	Append(ctx context.Context, s *model.StatSample) error

	// AppendBatch は複数の観測記録を同一トランザクションで追加する。
	// (torrent, recorded_at) が重複するサンプルはスキップされる。
	AppendBatch(ctx context.Context, samples []*model.StatSample) error

	// ListBetween は記録時刻が [start, end]（両端含む）の観測記録を
	// トレントID、記録時刻順で返す。
	ListBetween(ctx context.Context, start, end time.Time) ([]*model.StatSample, error)
}
