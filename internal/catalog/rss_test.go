package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/seedman/internal/model"
	"github.com/hitoshi/seedman/internal/security"
)

const testFeedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torrent="http://xmlns.ezrss.it/0.1/">
  <channel>
    <title>Test Tracker Feed</title>
    <item>
      <title>First &amp; Release</title>
      <guid>item-1</guid>
      <pubDate>Sat, 01 Aug 2026 10:00:00 +0000</pubDate>
      <enclosure url="%s/torrents/1.torrent" length="4096" type="application/x-bittorrent"/>
      <torrent:seeds>3</torrent:seeds>
      <torrent:peers>5</torrent:peers>
    </item>
    <item>
      <title>No Enclosure Item</title>
      <guid>item-2</guid>
    </item>
    <item>
      <title>Second Release</title>
      <guid>item-3</guid>
      <pubDate>Sun, 02 Aug 2026 11:00:00 +0000</pubDate>
      <enclosure url="%s/torrents/3.torrent" length="8192" type="application/x-bittorrent"/>
    </item>
  </channel>
</rss>`

func newTestRSSClient(t *testing.T, feedURL string) *RSSClient {
	t.Helper()
	var buf bytes.Buffer
	return NewRSSClient(feedURL, stubGuard{}, security.NewNameSanitizer(),
		1000, 1<<20, newTestLogger(&buf))
}

// RSSClientがSiteClientインターフェースを満たすことを検証
func TestRSSClient_ImplementsInterface(t *testing.T) {
	var _ SiteClient = (*RSSClient)(nil)
}

// フィードの各アイテムが無期限フリーの候補になることを検証
func TestRSSClient_ListFreeCandidates(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(formatFeed(server.URL)))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	c := newTestRSSClient(t, server.URL+"/feed.xml")

	candidates, err := c.ListFreeCandidates(context.Background())
	if err != nil {
		t.Fatalf("ListFreeCandidates error: %v", err)
	}

	// エンクロージャのないitem-2はスキップされる
	if len(candidates) != 2 {
		t.Fatalf("len(candidates) = %d, want 2", len(candidates))
	}

	first := candidates[0]
	if first.LocalID != "item-1" {
		t.Errorf("LocalID = %q, want %q", first.LocalID, "item-1")
	}
	if first.Name != "First & Release" {
		t.Errorf("Name = %q, want %q", first.Name, "First & Release")
	}
	if first.SizeBytes != 4096 {
		t.Errorf("SizeBytes = %d, want 4096", first.SizeBytes)
	}
	if !first.IsFree || first.FreeUntil != nil {
		t.Error("RSS候補は無期限フリーであるべき")
	}
	// torrent名前空間拡張からスウォーム情報を読み取る（peers=シーダー込み総数）
	if first.Seeders != 3 || first.Leechers != 2 {
		t.Errorf("seeders/leechers = %d/%d, want 3/2", first.Seeders, first.Leechers)
	}

	second := candidates[1]
	if second.LocalID != "item-3" {
		t.Errorf("LocalID = %q, want %q", second.LocalID, "item-3")
	}
	// 拡張のないアイテムはスウォーム情報なし（シーダー0のまま）
	if second.Seeders != 0 || second.Leechers != 0 {
		t.Errorf("seeders/leechers = %d/%d, want 0/0", second.Seeders, second.Leechers)
	}
}

// FetchDescriptorが直近の候補一覧で記録したURLから取得することを検証
func TestRSSClient_FetchDescriptor(t *testing.T) {
	descriptor := []byte("d4:infod4:name4:teste e")

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(formatFeed(server.URL)))
	})
	mux.HandleFunc("/torrents/1.torrent", func(w http.ResponseWriter, r *http.Request) {
		w.Write(descriptor)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	c := newTestRSSClient(t, server.URL+"/feed.xml")

	if _, err := c.ListFreeCandidates(context.Background()); err != nil {
		t.Fatalf("ListFreeCandidates error: %v", err)
	}

	got, err := c.FetchDescriptor(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("FetchDescriptor error: %v", err)
	}
	if !bytes.Equal(got, descriptor) {
		t.Errorf("descriptor = %q, want %q", got, descriptor)
	}
}

// 未知のサイト側IDが入力検証エラーになることを検証
func TestRSSClient_FetchDescriptor_UnknownID(t *testing.T) {
	c := newTestRSSClient(t, "http://feed.example.com/feed.xml")

	_, err := c.FetchDescriptor(context.Background(), "never-listed")
	var validation *model.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func formatFeed(serverURL string) string {
	return fmt.Sprintf(testFeedTemplate, serverURL, serverURL)
}
