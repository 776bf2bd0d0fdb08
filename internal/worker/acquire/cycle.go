package acquire

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/seedman/internal/admission"
	"github.com/hitoshi/seedman/internal/catalog"
	"github.com/hitoshi/seedman/internal/metainfo"
	"github.com/hitoshi/seedman/internal/metrics"
	"github.com/hitoshi/seedman/internal/model"
	"github.com/hitoshi/seedman/internal/prune"
)

// Admitter は追加確認のインターフェース。
type Admitter interface {
	Admit(ctx context.Context, metaBytes []byte, infoHash, name string, timeout time.Duration) (admission.State, error)
}

// AgentDeleter は補償削除に使うエージェント操作のインターフェース。
type AgentDeleter interface {
	Delete(ctx context.Context, hash string, deleteFiles bool) error
}

// Store は取得サイクルに必要な永続化操作のインターフェース。
type Store interface {
	CreateWithSite(ctx context.Context, t *model.Torrent, siteName, siteURL string) error
}

// PrunerService は容量確保のための削減実行インターフェース。
type PrunerService interface {
	Run(ctx context.Context, reserveBytes, quotaBytes int64, dryRun bool) (*prune.Plan, error)
}

// Config は取得サイクルの設定。
type Config struct {
	QuotaBytes   int64 // 0は無制限
	AdmitTimeout time.Duration
}

// Cycle はカタログからの候補取得サイクルを実行する。
type Cycle struct {
	catalog   catalog.SiteClient
	filter    *Filter
	verifier  Admitter
	agent     AgentDeleter
	store     Store
	pruner    PrunerService
	collector metrics.MetricsCollector
	logger    *slog.Logger
	config    Config
}

// NewCycle はCycleの新しいインスタンスを生成する。
func NewCycle(
	siteClient catalog.SiteClient,
	filter *Filter,
	verifier Admitter,
	agent AgentDeleter,
	store Store,
	pruner PrunerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Cycle {
	return &Cycle{
		catalog:   siteClient,
		filter:    filter,
		verifier:  verifier,
		agent:     agent,
		store:     store,
		pruner:    pruner,
		collector: collector,
		logger:    logger,
		config:    config,
	}
}

// Start は指定間隔のティッカーで取得サイクルを起動する。
// 初回実行はinitialDelayだけ遅延される（起動直後のエージェントや
// データベースの準備待ち）。コンテキストがキャンセルされるまで継続する。
func (c *Cycle) Start(ctx context.Context, interval, initialDelay time.Duration, dryRun bool) {
	c.logger.Info("取得サイクルを開始します",
		slog.Duration("interval", interval),
		slog.Duration("initial_delay", initialDelay),
	)

	select {
	case <-ctx.Done():
		return
	case <-time.After(initialDelay):
	}

	if err := c.RunOnce(ctx, dryRun); err != nil {
		c.logger.Error("取得サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("取得サイクルを停止しました")
			return
		case <-ticker.C:
			if err := c.RunOnce(ctx, dryRun); err != nil {
				c.logger.Error("取得サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は取得サイクルを1回実行する。
// 候補一覧の取得 → フィルタ → クォータ内選択 → 容量確保の削減 →
// 候補ごとの追加確認と永続化、の順で進む。候補単位の失敗は
// 記録して次の候補に進み、サイクル全体は継続する。
func (c *Cycle) RunOnce(ctx context.Context, dryRun bool) error {
	start := time.Now()
	defer func() {
		c.collector.RecordCycleDuration("acquire", time.Since(start))
	}()

	candidates, err := c.catalog.ListFreeCandidates(ctx)
	if err != nil {
		c.collector.RecordCatalogError()
		return err
	}
	c.logger.Info("フリー候補を取得しました",
		slog.String("site", c.catalog.SiteName()),
		slog.Int("candidate_count", len(candidates)),
	)

	filtered, err := c.filter.Apply(ctx, candidates, time.Now().UTC())
	if err != nil {
		return err
	}

	// 単体でクォータを超える候補は選択を妨げないよう先に除外する
	if c.config.QuotaBytes > 0 {
		within := filtered[:0]
		for _, cand := range filtered {
			if cand.SizeBytes > c.config.QuotaBytes {
				c.collector.RecordSkip("exceeds_quota")
				continue
			}
			within = append(within, cand)
		}
		filtered = within
	}

	selected := SelectWithinBudget(filtered, c.config.QuotaBytes)
	c.logger.Info("追加対象を選択しました",
		slog.Int("filtered_count", len(filtered)),
		slog.Int("selected_count", len(selected)),
		slog.Int64("total_size_bytes", TotalSize(selected)),
	)

	// 選択分の容量を確保するため、必要なら先に削減する
	if _, err := c.pruner.Run(ctx, TotalSize(selected), c.config.QuotaBytes, dryRun); err != nil {
		return err
	}

	if dryRun {
		c.logger.Info("ドライランのため追加は実行しません")
		return nil
	}

	for _, cand := range selected {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.admitOne(ctx, cand)
	}

	return nil
}

// admitOne は1候補の記述子取得、追加確認、永続化を行う。
// 失敗は種類に応じて記録され、呼び出し元のループは継続する。
func (c *Cycle) admitOne(ctx context.Context, cand *model.Candidate) {
	meta, err := c.catalog.FetchDescriptor(ctx, cand.LocalID)
	if err != nil {
		c.collector.RecordSkip("descriptor")
		c.logger.Warn("記述子の取得に失敗したためスキップします",
			slog.String("local_id", cand.LocalID),
			slog.String("error", err.Error()),
		)
		return
	}

	infoHash, err := metainfo.InfoHash(meta)
	if err != nil {
		c.collector.RecordSkip("metainfo")
		c.logger.Warn("記述子のパースに失敗したためスキップします",
			slog.String("local_id", cand.LocalID),
			slog.String("error", err.Error()),
		)
		return
	}

	if _, err := c.verifier.Admit(ctx, meta, infoHash, cand.Name, c.config.AdmitTimeout); err != nil {
		var timeout *model.TimeoutError
		if errors.As(err, &timeout) {
			c.collector.RecordAdmitTimeout()
		} else {
			c.collector.RecordSkip("admit")
		}
		c.logger.Warn("追加確認に失敗したためスキップします",
			slog.String("local_id", cand.LocalID),
			slog.String("info_hash", infoHash),
			slog.String("error", err.Error()),
		)
		return
	}

	t := &model.Torrent{
		InfoHash:  infoHash,
		Name:      cand.Name,
		LocalID:   cand.LocalID,
		URL:       "/detail/" + cand.LocalID,
		SizeBytes: cand.SizeBytes,
		AddedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := c.store.CreateWithSite(ctx, t, c.catalog.SiteName(), c.catalog.SiteURL()); err != nil {
		// エージェントには追加済みなので、補償として削除を試みる。
		// 補償の成否にかかわらず整合性リスクとして目立つ形で記録する。
		consistency := &model.ConsistencyError{InfoHash: infoHash, Err: err}
		if delErr := c.agent.Delete(ctx, infoHash, true); delErr != nil {
			c.logger.Error("consistency_risk: 記録に失敗し、補償削除にも失敗しました",
				slog.String("info_hash", infoHash),
				slog.String("error", consistency.Error()),
				slog.String("compensation_error", delErr.Error()),
			)
		} else {
			c.logger.Error("consistency_risk: 記録に失敗したため追加を取り消しました",
				slog.String("info_hash", infoHash),
				slog.String("error", consistency.Error()),
			)
		}
		return
	}

	c.collector.RecordAdmission()
	c.logger.Info("トレントを追加しました",
		slog.String("torrent_id", t.ID),
		slog.String("info_hash", infoHash),
		slog.String("name", t.Name),
		slog.Int64("size_bytes", t.SizeBytes),
	)
}
