// Package sample はエージェントからの転送量観測サイクルを提供する。
package sample

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/seedman/internal/agent"
	"github.com/hitoshi/seedman/internal/metrics"
	"github.com/hitoshi/seedman/internal/model"
)

// batchSize は1回の状態問い合わせに含めるハッシュ数の上限。
const batchSize = 32

// AgentClient は観測に必要なエージェント操作のインターフェース。
type AgentClient interface {
	QueryStatus(ctx context.Context, hashes []string) ([]agent.TorrentStatus, error)
}

// Store は観測に必要な永続化操作のインターフェース。
type Store interface {
	ListAlive(ctx context.Context) ([]*model.Torrent, error)
	AppendBatch(ctx context.Context, samples []*model.StatSample) error
}

// Sampler は生存中トレントの転送カウンタを観測して記録する。
type Sampler struct {
	agent     AgentClient
	store     Store
	collector metrics.MetricsCollector
	logger    *slog.Logger
}

// NewSampler はSamplerの新しいインスタンスを生成する。
func NewSampler(agentClient AgentClient, store Store, collector metrics.MetricsCollector, logger *slog.Logger) *Sampler {
	return &Sampler{
		agent:     agentClient,
		store:     store,
		collector: collector,
		logger:    logger,
	}
}

// Start は指定間隔のティッカーで観測サイクルを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (s *Sampler) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("観測サイクルを開始します",
		slog.Duration("interval", interval),
	)

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("観測サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("観測サイクルを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("観測サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は観測サイクルを1回実行する。
// 生存中トレントをハッシュのバッチに分けてエージェントに問い合わせ、
// 報告されたトレントごとに1件の観測記録を作る。記録時刻はバッチ単位の
// UTC・秒精度のタイムスタンプ。全バッチ分の記録を1トランザクションで
// 追加する。エージェントが報告しなかったトレントの記録は作らない。
// 同一秒内の再実行では重複時刻の記録がストア側でスキップされる。
func (s *Sampler) RunOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.collector.RecordCycleDuration("sample", time.Since(start))
	}()

	alive, err := s.store.ListAlive(ctx)
	if err != nil {
		return err
	}
	if len(alive) == 0 {
		s.logger.Debug("観測対象のトレントはありません")
		return nil
	}

	byHash := make(map[string]*model.Torrent, len(alive))
	hashes := make([]string, 0, len(alive))
	for _, t := range alive {
		lower := strings.ToLower(t.InfoHash)
		byHash[lower] = t
		hashes = append(hashes, lower)
	}

	var samples []*model.StatSample
	for i := 0; i < len(hashes); i += batchSize {
		end := i + batchSize
		if end > len(hashes) {
			end = len(hashes)
		}

		statuses, err := s.agent.QueryStatus(ctx, hashes[i:end])
		if err != nil {
			return err
		}

		recordedAt := time.Now().UTC().Truncate(time.Second)
		for _, status := range statuses {
			t, ok := byHash[strings.ToLower(status.Hash)]
			if !ok {
				// 問い合わせ対象外のハッシュが返ることは想定しない
				s.logger.Warn("未知のハッシュが報告されました",
					slog.String("hash", status.Hash),
				)
				continue
			}

			samples = append(samples, &model.StatSample{
				TorrentID:         t.ID,
				RecordedAt:        recordedAt,
				ConnectedSeeders:  status.NumSeeds,
				SwarmSeeders:      status.NumComplete,
				ConnectedLeechers: status.NumLeechs,
				SwarmLeechers:     status.NumIncomplete,
				UploadedBytes:     status.Uploaded,
				DownloadedBytes:   status.Downloaded,
			})
		}
	}

	if len(samples) == 0 {
		s.logger.Info("エージェントから報告されたトレントはありません",
			slog.Int("alive_count", len(alive)),
		)
		return nil
	}

	if err := s.store.AppendBatch(ctx, samples); err != nil {
		return err
	}

	s.collector.RecordSamples(len(samples))
	s.logger.Info("転送量を観測しました",
		slog.Int("alive_count", len(alive)),
		slog.Int("sample_count", len(samples)),
	)
	return nil
}
