package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/seedman/internal/model"
)

// PostgresStatRepo はPostgreSQLを使用した観測記録リポジトリ。
type PostgresStatRepo struct {
	db *sql.DB
}

// NewPostgresStatRepo はPostgresStatRepoを生成する。
func NewPostgresStatRepo(db *sql.DB) *PostgresStatRepo {
	return &PostgresStatRepo{db: db}
}

// (torrent_id, recorded_at) が既存の記録と重複する場合は行を挿入しない。
// 観測は秒精度のため、同一秒内に観測サイクルが2回走っても一意制約違反で
// バッチ全体が失敗することはない。
const insertStatQuery = `
	INSERT INTO torrent_stats
		(id, torrent_id, recorded_at,
		 connected_seeders, swarm_seeders, connected_leechers, swarm_leechers,
		 uploaded_bytes, downloaded_bytes)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (torrent_id, recorded_at) DO NOTHING`

// Append は観測記録を1件追加する。同一時刻の記録が既にある場合は何もしない。
func (r *PostgresStatRepo) Append(ctx context.Context, s *model.StatSample) error {
	s.ID = uuid.NewString()

	_, err := r.db.ExecContext(ctx, insertStatQuery,
		s.ID, s.TorrentID, s.RecordedAt,
		s.ConnectedSeeders, s.SwarmSeeders, s.ConnectedLeechers, s.SwarmLeechers,
		s.UploadedBytes, s.DownloadedBytes)
	if err != nil {
		return fmt.Errorf("観測記録の追加に失敗しました: %w", err)
	}
	return nil
}

// AppendBatch は複数の観測記録を同一トランザクションで追加する。
// 同一時刻の記録が既にあるサンプルはスキップされ、残りは追加される。
func (r *PostgresStatRepo) AppendBatch(ctx context.Context, samples []*model.StatSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertStatQuery)
	if err != nil {
		return fmt.Errorf("クエリの準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		s.ID = uuid.NewString()
		_, err := stmt.ExecContext(ctx,
			s.ID, s.TorrentID, s.RecordedAt,
			s.ConnectedSeeders, s.SwarmSeeders, s.ConnectedLeechers, s.SwarmLeechers,
			s.UploadedBytes, s.DownloadedBytes)
		if err != nil {
			return fmt.Errorf("観測記録の追加に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListBetween は記録時刻が [start, end] の観測記録を返す。
func (r *PostgresStatRepo) ListBetween(ctx context.Context, start, end time.Time) ([]*model.StatSample, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, torrent_id, recorded_at,
		        connected_seeders, swarm_seeders, connected_leechers, swarm_leechers,
		        uploaded_bytes, downloaded_bytes
		 FROM torrent_stats
		 WHERE recorded_at >= $1 AND recorded_at <= $2
		 ORDER BY torrent_id, recorded_at`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("観測記録の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var samples []*model.StatSample
	for rows.Next() {
		s := &model.StatSample{}
		err := rows.Scan(&s.ID, &s.TorrentID, &s.RecordedAt,
			&s.ConnectedSeeders, &s.SwarmSeeders, &s.ConnectedLeechers, &s.SwarmLeechers,
			&s.UploadedBytes, &s.DownloadedBytes)
		if err != nil {
			return nil, fmt.Errorf("観測記録の読み取りに失敗しました: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("観測記録の走査に失敗しました: %w", err)
	}
	return samples, nil
}
