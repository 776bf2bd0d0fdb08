package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/seedman/internal/model"
)

// PostgresSiteRepo はPostgreSQLを使用したサイトリポジトリ。
type PostgresSiteRepo struct {
	db *sql.DB
}

// NewPostgresSiteRepo はPostgresSiteRepoを生成する。
func NewPostgresSiteRepo(db *sql.DB) *PostgresSiteRepo {
	return &PostgresSiteRepo{db: db}
}

// FindByName は指定名のサイトを取得する。見つからない場合はnilを返す。
func (r *PostgresSiteRepo) FindByName(ctx context.Context, name string) (*model.Site, error) {
	site := &model.Site{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, url, created_at FROM sites WHERE name = $1`,
		name,
	).Scan(&site.ID, &site.Name, &site.URL, &site.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}

	return site, nil
}

// GetOrCreate は指定名のサイトを取得し、存在しない場合は作成する。
// 並行作成と衝突した場合はON CONFLICTで既存行が優先される。
func (r *PostgresSiteRepo) GetOrCreate(ctx context.Context, name, url string) (*model.Site, error) {
	site := &model.Site{}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO sites (id, name, url)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name, url, created_at`,
		uuid.NewString(), name, url,
	).Scan(&site.ID, &site.Name, &site.URL, &site.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("サイトの作成に失敗しました: %w", err)
	}

	return site, nil
}
