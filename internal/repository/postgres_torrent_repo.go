package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/seedman/internal/model"
)

// PostgresTorrentRepo はPostgreSQLを使用したトレントリポジトリ。
type PostgresTorrentRepo struct {
	db *sql.DB
}

// NewPostgresTorrentRepo はPostgresTorrentRepoを生成する。
func NewPostgresTorrentRepo(db *sql.DB) *PostgresTorrentRepo {
	return &PostgresTorrentRepo{db: db}
}

const torrentColumns = `t.id, t.info_hash, t.name, t.site_id, t.local_id, t.url, t.size_bytes, t.added_at, t.removed_at`

func scanTorrent(row interface{ Scan(...any) error }) (*model.Torrent, error) {
	t := &model.Torrent{}
	err := row.Scan(&t.ID, &t.InfoHash, &t.Name, &t.SiteID, &t.LocalID,
		&t.URL, &t.SizeBytes, &t.AddedAt, &t.RemovedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindByID は指定IDのトレントを取得する。見つからない場合はnilを返す。
func (r *PostgresTorrentRepo) FindByID(ctx context.Context, id string) (*model.Torrent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+torrentColumns+` FROM torrents t WHERE t.id = $1`, id)

	t, err := scanTorrent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("トレントの取得に失敗しました: %w", err)
	}
	return t, nil
}

// FindByHash はinfo-hashでトレントを検索する。削除済みレコードも対象。
func (r *PostgresTorrentRepo) FindByHash(ctx context.Context, infoHash string) (*model.Torrent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+torrentColumns+` FROM torrents t WHERE t.info_hash = $1`, infoHash)

	t, err := scanTorrent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("トレントの検索に失敗しました: %w", err)
	}
	return t, nil
}

// FindBySiteAndLocalID はサイト名とサイト側IDでトレントを検索する。
func (r *PostgresTorrentRepo) FindBySiteAndLocalID(ctx context.Context, siteName, localID string) (*model.Torrent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+torrentColumns+`
		 FROM torrents t
		 JOIN sites s ON s.id = t.site_id
		 WHERE s.name = $1 AND t.local_id = $2`,
		siteName, localID)

	t, err := scanTorrent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("トレントの検索に失敗しました: %w", err)
	}
	return t, nil
}

// CreateWithSite はサイトの遅延作成とトレントの登録を同一トランザクションで行う。
func (r *PostgresTorrentRepo) CreateWithSite(ctx context.Context, t *model.Torrent, siteName, siteURL string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	var siteID string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO sites (id, name, url)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		uuid.NewString(), siteName, siteURL,
	).Scan(&siteID)
	if err != nil {
		return fmt.Errorf("サイトの作成に失敗しました: %w", err)
	}

	t.ID = uuid.NewString()
	t.SiteID = siteID

	_, err = tx.ExecContext(ctx,
		`INSERT INTO torrents (id, info_hash, name, site_id, local_id, url, size_bytes, added_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.InfoHash, t.Name, t.SiteID, t.LocalID, t.URL, t.SizeBytes, t.AddedAt)
	if err != nil {
		return fmt.Errorf("トレントの登録に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListAlive は生存中のトレントを追加順で返す。
func (r *PostgresTorrentRepo) ListAlive(ctx context.Context) ([]*model.Torrent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+torrentColumns+`
		 FROM torrents t
		 WHERE t.removed_at IS NULL
		 ORDER BY t.added_at, t.id`)
	if err != nil {
		return nil, fmt.Errorf("トレント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var torrents []*model.Torrent
	for rows.Next() {
		t, err := scanTorrent(rows)
		if err != nil {
			return nil, fmt.Errorf("トレントの読み取りに失敗しました: %w", err)
		}
		torrents = append(torrents, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("トレント一覧の走査に失敗しました: %w", err)
	}
	return torrents, nil
}

// ListAliveWithLatestStat は生存中のトレントを最新のサンプル付きで返す。
func (r *PostgresTorrentRepo) ListAliveWithLatestStat(ctx context.Context) ([]*model.TorrentWithStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+torrentColumns+`,
		        st.id, st.torrent_id, st.recorded_at,
		        st.connected_seeders, st.swarm_seeders,
		        st.connected_leechers, st.swarm_leechers,
		        st.uploaded_bytes, st.downloaded_bytes
		 FROM torrents t
		 LEFT JOIN LATERAL (
		     SELECT * FROM torrent_stats
		     WHERE torrent_id = t.id
		     ORDER BY recorded_at DESC
		     LIMIT 1
		 ) st ON true
		 WHERE t.removed_at IS NULL
		 ORDER BY t.added_at, t.id`)
	if err != nil {
		return nil, fmt.Errorf("トレント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []*model.TorrentWithStat
	for rows.Next() {
		t := &model.Torrent{}
		var (
			statID     sql.NullString
			torrentID  sql.NullString
			recordedAt sql.NullTime
			cs, ss     sql.NullInt64
			cl, sl     sql.NullInt64
			up, down   sql.NullInt64
		)
		err := rows.Scan(&t.ID, &t.InfoHash, &t.Name, &t.SiteID, &t.LocalID,
			&t.URL, &t.SizeBytes, &t.AddedAt, &t.RemovedAt,
			&statID, &torrentID, &recordedAt, &cs, &ss, &cl, &sl, &up, &down)
		if err != nil {
			return nil, fmt.Errorf("トレントの読み取りに失敗しました: %w", err)
		}

		ts := &model.TorrentWithStat{Torrent: *t}
		if statID.Valid {
			ts.LatestStat = &model.StatSample{
				ID:                statID.String,
				TorrentID:         torrentID.String,
				RecordedAt:        recordedAt.Time,
				ConnectedSeeders:  int(cs.Int64),
				SwarmSeeders:      int(ss.Int64),
				ConnectedLeechers: int(cl.Int64),
				SwarmLeechers:     int(sl.Int64),
				UploadedBytes:     up.Int64,
				DownloadedBytes:   down.Int64,
			}
		}
		result = append(result, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("トレント一覧の走査に失敗しました: %w", err)
	}
	return result, nil
}

// MarkRemoved は指定トレントに削除時刻を設定する。
func (r *PostgresTorrentRepo) MarkRemoved(ctx context.Context, id string, removedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE torrents SET removed_at = $1 WHERE id = $2 AND removed_at IS NULL`,
		removedAt, id)
	if err != nil {
		return fmt.Errorf("トレントの削除記録に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("トレントが見つかりません: id=%s", id)
	}
	return nil
}

// SumAliveSizeBytes は生存中トレントの合計サイズを返す。
func (r *PostgresTorrentRepo) SumAliveSizeBytes(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0) FROM torrents WHERE removed_at IS NULL`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("合計サイズの取得に失敗しました: %w", err)
	}
	return total, nil
}
