package report

import (
	"context"
	"math"
	"time"

	"github.com/hitoshi/seedman/internal/model"
)

var inf = math.Inf(1)

// Delta は1トレントの期間内転送量差分。
// カウンタのリセット（エージェント再登録など）があった場合、
// 差分は負になり得る。値はそのまま報告する。
type Delta struct {
	TorrentID       string
	UploadedDelta   int64
	DownloadedDelta int64
	SampleCount     int
}

// Entry はレポート表示用に名前解決された差分。
type Entry struct {
	Torrent *model.Torrent
	Delta
}

// Store は集計に必要な永続化操作のインターフェース。
type Store interface {
	ListBetween(ctx context.Context, start, end time.Time) ([]*model.StatSample, error)
	FindByID(ctx context.Context, id string) (*model.Torrent, error)
}

// Analyzer は期間指定の転送量集計を行う。
type Analyzer struct {
	store Store
}

// NewAnalyzer はAnalyzerの新しいインスタンスを生成する。
func NewAnalyzer(store Store) *Analyzer {
	return &Analyzer{store: store}
}

// ComputeDeltas は期間内の観測記録から、トレントごとの差分を計算する。
// 差分は期間内の最新の観測と最古の観測の差。観測が1件だけのトレントは
// 差分{0,0}、観測のないトレントは結果に含まれない。
// samplesはトレントID、記録時刻順にソート済みであることを前提とする。
func ComputeDeltas(samples []*model.StatSample) []Delta {
	var deltas []Delta

	i := 0
	for i < len(samples) {
		j := i
		for j < len(samples) && samples[j].TorrentID == samples[i].TorrentID {
			j++
		}

		earliest := samples[i]
		latest := samples[j-1]
		deltas = append(deltas, Delta{
			TorrentID:       earliest.TorrentID,
			UploadedDelta:   latest.UploadedBytes - earliest.UploadedBytes,
			DownloadedDelta: latest.DownloadedBytes - earliest.DownloadedBytes,
			SampleCount:     j - i,
		})

		i = j
	}

	return deltas
}

// Report は期間内の転送量差分を集計し、トレント情報を解決して返す。
// 対応するトレントが見つからない差分はTorrent=nilのまま含まれる。
func (a *Analyzer) Report(ctx context.Context, start, end time.Time) ([]Entry, error) {
	samples, err := a.store.ListBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}

	deltas := ComputeDeltas(samples)
	entries := make([]Entry, 0, len(deltas))
	for _, d := range deltas {
		t, err := a.store.FindByID(ctx, d.TorrentID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Torrent: t, Delta: d})
	}

	return entries, nil
}

// TransferRatio は表示用のアップロード/ダウンロード比を返す。
// ダウンロードが0でアップロードが正の場合は+Inf、両方0の場合は0。
func TransferRatio(uploadedDelta, downloadedDelta int64) float64 {
	if downloadedDelta > 0 {
		return float64(uploadedDelta) / float64(downloadedDelta)
	}
	if uploadedDelta > 0 {
		return inf
	}
	return 0
}
