package prune

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/seedman/internal/metrics"
	"github.com/hitoshi/seedman/internal/model"
)

// AgentDeleter は削減に必要なエージェント操作のインターフェース。
type AgentDeleter interface {
	Delete(ctx context.Context, hash string, deleteFiles bool) error
}

// Store は削減に必要な永続化操作のインターフェース。
type Store interface {
	SumAliveSizeBytes(ctx context.Context) (int64, error)
	ListAliveWithLatestStat(ctx context.Context) ([]*model.TorrentWithStat, error)
	MarkRemoved(ctx context.Context, id string, removedAt time.Time) error
}

// Pruner は削減計画の構築と実行を行う。
type Pruner struct {
	agent     AgentDeleter
	store     Store
	logger    *slog.Logger
	collector metrics.MetricsCollector
}

// NewPruner はPrunerの新しいインスタンスを生成する。
func NewPruner(agent AgentDeleter, store Store, collector metrics.MetricsCollector, logger *slog.Logger) *Pruner {
	return &Pruner{
		agent:     agent,
		store:     store,
		logger:    logger,
		collector: collector,
	}
}

// Run は現在の使用量と指定の予約量から削減計画を構築し、実行する。
// dryRunの場合は計画の構築のみ行う。構築された計画を返す。
func (p *Pruner) Run(ctx context.Context, reserveBytes, quotaBytes int64, dryRun bool) (*Plan, error) {
	usedBytes, err := p.store.SumAliveSizeBytes(ctx)
	if err != nil {
		return nil, err
	}

	alive, err := p.store.ListAliveWithLatestStat(ctx)
	if err != nil {
		return nil, err
	}

	plan := BuildPlan(usedBytes, reserveBytes, quotaBytes, alive)
	if len(plan.Victims) == 0 {
		p.logger.Info("削減の必要はありません",
			slog.Int64("used_bytes", usedBytes),
			slog.Int64("reserve_bytes", reserveBytes),
			slog.Int64("quota_bytes", quotaBytes),
		)
		return plan, nil
	}

	p.logger.Info("削減計画を構築しました",
		slog.Int64("deficit_bytes", plan.DeficitBytes),
		slog.Int64("freed_bytes", plan.FreedBytes()),
		slog.Int("victim_count", len(plan.Victims)),
	)

	if dryRun {
		p.logger.Info("ドライランのため削減は実行しません")
		return plan, nil
	}

	if err := p.Execute(ctx, plan); err != nil {
		return plan, err
	}
	return plan, nil
}

// Execute は削減計画を実行する。対象ごとにエージェントからの削除
// （データファイル込み）と削除時刻の記録を行う。1件の失敗では
// 全体を止めず、記録して次の対象に進む。
func (p *Pruner) Execute(ctx context.Context, plan *Plan) error {
	for _, v := range plan.Victims {
		t := v.Torrent

		if err := p.agent.Delete(ctx, t.InfoHash, true); err != nil {
			p.logger.Error("エージェントからの削除に失敗したためスキップします",
				slog.String("torrent_id", t.ID),
				slog.String("info_hash", t.InfoHash),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := p.store.MarkRemoved(ctx, t.ID, time.Now().UTC()); err != nil {
			// エージェント側は削除済みなのに記録が残っている状態。
			// 次回の観測サイクルでは報告されなくなるため、目立つ形で記録する。
			consistency := &model.ConsistencyError{InfoHash: t.InfoHash, Err: err}
			p.logger.Error("consistency_risk: 削除の記録に失敗しました",
				slog.String("torrent_id", t.ID),
				slog.String("info_hash", t.InfoHash),
				slog.String("error", consistency.Error()),
			)
			continue
		}

		p.collector.RecordEviction()
		p.logger.Info("トレントを削減しました",
			slog.String("torrent_id", t.ID),
			slog.String("name", t.Name),
			slog.Int64("size_bytes", t.SizeBytes),
			slog.Float64("popularity", v.Popularity),
		)
	}
	return nil
}
