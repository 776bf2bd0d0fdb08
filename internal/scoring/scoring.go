// Package scoring はトレントの保持価値スコアを計算する純関数を提供する。
// スコアは永続化せず、常に読み出し時に計算する。
package scoring

import (
	"time"

	"github.com/hitoshi/seedman/internal/model"
)

// secondsPerMonth は1ヶ月を30日とみなした秒数（30 × 86400）。
const secondsPerMonth = 2592000.0

// Ratio はアップロード/ダウンロード比を返す。
// ダウンロードが0の場合は0を返す（ゼロ除算ガード）。
func Ratio(uploadedBytes, downloadedBytes int64) float64 {
	if downloadedBytes <= 0 {
		return 0
	}
	return float64(uploadedBytes) / float64(downloadedBytes)
}

// ActiveMonths は追加時刻から観測時刻までの経過月数を返す。
// 30日を1ヶ月として換算する。
func ActiveMonths(addedAt, recordedAt time.Time) float64 {
	return recordedAt.Sub(addedAt).Seconds() / secondsPerMonth
}

// Popularity はトレントの人気度スコアを返す。
// 比率を経過月数で正規化した値で、削除優先度の順位付けにのみ使用する。
// 経過時間が0以下、またはサンプルがない場合は0を返す。
func Popularity(t *model.Torrent, s *model.StatSample) float64 {
	if s == nil {
		return 0
	}
	months := ActiveMonths(t.AddedAt, s.RecordedAt)
	if months <= 0 {
		return 0
	}
	return Ratio(s.UploadedBytes, s.DownloadedBytes) / months
}
