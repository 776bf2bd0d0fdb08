// Package catalog は外部カタログサイトからの候補取得機能を提供する。
// サイトごとの実装は SiteClient インターフェースで抽象化され、
// 全ての外部呼び出しは共有のレート制限を通過する。
package catalog

import (
	"context"

	"github.com/hitoshi/seedman/internal/model"
)

// SiteClient はカタログサイトのクライアントインターフェースを定義する。
type SiteClient interface {
	// ListFreeCandidates は現在無料配布中の候補一覧をサイト掲載順で返す。
	ListFreeCandidates(ctx context.Context) ([]*model.Candidate, error)

	// FetchDescriptor は指定されたサイト側IDのトレント記述子
	// （.torrentファイルの生バイト列）をダウンロードする。
	// レスポンスサイズは上限を超えた時点でエラーになる。
	FetchDescriptor(ctx context.Context, localID string) ([]byte, error)

	// SiteName はこのクライアントが対象とするサイト名を返す。
	SiteName() string

	// SiteURL はこのクライアントが対象とするサイトのURLを返す。
	SiteURL() string
}
