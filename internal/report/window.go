// Package report は転送量レポートの集計と表示を提供する。
package report

import (
	"fmt"
	"time"

	"github.com/hitoshi/seedman/internal/model"
)

// ParseWindow は集計期間の開始・終了時刻をパースする。
// RFC3339形式でタイムゾーンオフセットが必須。オフセットのない時刻は
// 実行環境によって意味が変わるため、入力検証エラーとして拒否する。
// 返り値はUTCに正規化される。
func ParseWindow(startStr, endStr string) (start, end time.Time, err error) {
	start, err = parseOffsetTime("start", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = parseOffsetTime("end", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseOffsetTime(name, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &model.ValidationError{
			Reason: fmt.Sprintf("%s はオフセット付きRFC3339形式で指定してください（例: 2026-08-01T00:00:00+09:00）: %q", name, s),
		}
	}
	return t.UTC(), nil
}
