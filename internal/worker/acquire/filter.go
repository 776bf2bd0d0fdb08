// Package acquire はカタログからの候補取得サイクルを提供する。
// フィルタ、クォータ内選択、追加確認、永続化を含む。
package acquire

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/seedman/internal/metrics"
	"github.com/hitoshi/seedman/internal/model"
)

// FilterConfig は候補フィルタのしきい値。
type FilterConfig struct {
	MinSizeBytes      int64         // 0は下限なし
	MaxSizeBytes      int64         // 0は上限なし
	MinFreeRemaining  time.Duration // フリー期間の残りの下限
	MinSeeders        int
	MinLeechSeedRatio float64
}

// DuplicateChecker は候補の既登録チェックに使うインターフェース。
// 削除済みレコードも照合対象になる（同一候補は生涯1回だけ追加する）。
type DuplicateChecker interface {
	FindBySiteAndLocalID(ctx context.Context, siteName, localID string) (*model.Torrent, error)
}

// Filter は候補列に対する順序保存フィルタ。
type Filter struct {
	config    FilterConfig
	store     DuplicateChecker
	collector metrics.MetricsCollector
	logger    *slog.Logger
}

// NewFilter はFilterの新しいインスタンスを生成する。
func NewFilter(config FilterConfig, store DuplicateChecker, collector metrics.MetricsCollector, logger *slog.Logger) *Filter {
	return &Filter{
		config:    config,
		store:     store,
		collector: collector,
		logger:    logger,
	}
}

// Apply は条件を満たす候補だけを入力順のまま返す。
// シーダー0の候補はリーチャー/シーダー比を計算せず不合格として扱う。
func (f *Filter) Apply(ctx context.Context, candidates []*model.Candidate, now time.Time) ([]*model.Candidate, error) {
	var passed []*model.Candidate

	for _, c := range candidates {
		reason, err := f.check(ctx, c, now)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			f.collector.RecordSkip(reason)
			f.logger.Debug("候補をスキップします",
				slog.String("site", c.SiteName),
				slog.String("local_id", c.LocalID),
				slog.String("reason", reason),
			)
			continue
		}
		passed = append(passed, c)
	}

	return passed, nil
}

// check は候補が不合格の場合にその理由を返す。合格なら空文字列。
func (f *Filter) check(ctx context.Context, c *model.Candidate, now time.Time) (string, error) {
	if f.config.MaxSizeBytes > 0 && c.SizeBytes > f.config.MaxSizeBytes {
		return "size_max", nil
	}
	if f.config.MinSizeBytes > 0 && c.SizeBytes < f.config.MinSizeBytes {
		return "size_min", nil
	}
	if c.RemainingFree(now) < f.config.MinFreeRemaining {
		return "free_duration", nil
	}
	if c.Seeders < f.config.MinSeeders {
		return "seeders", nil
	}
	// シーダー0は比が定義できないため、最小比の設定値に関わらず不合格
	if c.Seeders == 0 {
		return "leech_seed_ratio", nil
	}
	if float64(c.Leechers)/float64(c.Seeders) < f.config.MinLeechSeedRatio {
		return "leech_seed_ratio", nil
	}

	existing, err := f.store.FindBySiteAndLocalID(ctx, c.SiteName, c.LocalID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "duplicate", nil
	}

	return "", nil
}
