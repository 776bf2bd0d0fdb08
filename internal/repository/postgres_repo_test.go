package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/seedman/internal/model"
)

// 各リポジトリが対応するインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ SiteRepository = (*PostgresSiteRepo)(nil)
	var _ TorrentRepository = (*PostgresTorrentRepo)(nil)
	var _ StatRepository = (*PostgresStatRepo)(nil)
}

// 各リポジトリが正しく初期化されることを検証
func TestNewPostgresRepos_Initialize(t *testing.T) {
	if NewPostgresSiteRepo(nil) == nil {
		t.Fatal("expected non-nil site repo")
	}
	if NewPostgresTorrentRepo(nil) == nil {
		t.Fatal("expected non-nil torrent repo")
	}
	if NewPostgresStatRepo(nil) == nil {
		t.Fatal("expected non-nil stat repo")
	}
}

// Torrentモデルのフィールドが正しく構築されることを検証
func TestPostgresTorrentRepo_TorrentModel_Fields(t *testing.T) {
	now := time.Now()
	torrent := &model.Torrent{
		ID:        "torrent-id-1",
		InfoHash:  "aabbccddeeff00112233445566778899aabbccdd",
		Name:      "テストトレント",
		SiteID:    "site-id-1",
		LocalID:   "12345",
		SizeBytes: 1073741824,
		AddedAt:   now,
	}

	if torrent.InfoHash != "aabbccddeeff00112233445566778899aabbccdd" {
		t.Errorf("torrent.InfoHash = %q, want %q", torrent.InfoHash, "aabbccddeeff00112233445566778899aabbccdd")
	}
	if !torrent.IsAlive() {
		t.Error("torrent without removed_at should be alive")
	}

	torrent.RemovedAt = &now
	if torrent.IsAlive() {
		t.Error("torrent with removed_at should not be alive")
	}
}

// TorrentWithStatのLatestStatがnil許容であることを検証
func TestPostgresTorrentRepo_TorrentWithStat_NilStat(t *testing.T) {
	ts := &model.TorrentWithStat{
		Torrent: model.Torrent{ID: "torrent-id-2"},
	}

	if ts.LatestStat != nil {
		t.Error("latest stat should be nil by default")
	}
}
