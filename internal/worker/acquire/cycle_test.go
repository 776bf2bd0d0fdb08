package acquire

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/seedman/internal/admission"
	"github.com/hitoshi/seedman/internal/metrics"
	"github.com/hitoshi/seedman/internal/model"
	"github.com/hitoshi/seedman/internal/prune"
)

// testMeta はinfo辞書を含む最小の.torrentメタデータ。
const testMeta = "d8:announce24:http://tracker.test/anno4:infod6:lengthi1024e4:name8:test.bin12:piece lengthi16384e6:pieces20:aaaaaaaaaaaaaaaaaaaaee"

// mockSiteClient はテスト用のカタログクライアント。
type mockSiteClient struct {
	candidates []*model.Candidate
	listErr    error
	fetchFunc  func(ctx context.Context, localID string) ([]byte, error)
	fetched    []string
}

func (m *mockSiteClient) ListFreeCandidates(ctx context.Context) ([]*model.Candidate, error) {
	return m.candidates, m.listErr
}

func (m *mockSiteClient) FetchDescriptor(ctx context.Context, localID string) ([]byte, error) {
	m.fetched = append(m.fetched, localID)
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, localID)
	}
	return []byte(testMeta), nil
}

func (m *mockSiteClient) SiteName() string { return "MTeam" }
func (m *mockSiteClient) SiteURL() string  { return "https://catalog.example.com" }

// mockAdmitter はテスト用の追加確認。
type mockAdmitter struct {
	admitFunc func(ctx context.Context, metaBytes []byte, infoHash, name string, timeout time.Duration) (admission.State, error)
	admitted  []string
}

func (m *mockAdmitter) Admit(ctx context.Context, metaBytes []byte, infoHash, name string, timeout time.Duration) (admission.State, error) {
	m.admitted = append(m.admitted, infoHash)
	if m.admitFunc != nil {
		return m.admitFunc(ctx, metaBytes, infoHash, name, timeout)
	}
	return admission.StateConfirmed, nil
}

// mockDeleter はテスト用の補償削除。
type mockDeleter struct {
	deleted []string
}

func (m *mockDeleter) Delete(ctx context.Context, hash string, deleteFiles bool) error {
	m.deleted = append(m.deleted, hash)
	return nil
}

// mockCycleStore はテスト用の永続化ストア。
type mockCycleStore struct {
	createFunc func(ctx context.Context, t *model.Torrent, siteName, siteURL string) error
	created    []*model.Torrent
}

func (m *mockCycleStore) CreateWithSite(ctx context.Context, t *model.Torrent, siteName, siteURL string) error {
	if m.createFunc != nil {
		if err := m.createFunc(ctx, t, siteName, siteURL); err != nil {
			return err
		}
	}
	m.created = append(m.created, t)
	return nil
}

// mockPruner はテスト用の削減サービス。
type mockPruner struct {
	reserves []int64
	dryRuns  []bool
}

func (m *mockPruner) Run(ctx context.Context, reserveBytes, quotaBytes int64, dryRun bool) (*prune.Plan, error) {
	m.reserves = append(m.reserves, reserveBytes)
	m.dryRuns = append(m.dryRuns, dryRun)
	return &prune.Plan{}, nil
}

type cycleMocks struct {
	site    *mockSiteClient
	admit   *mockAdmitter
	deleter *mockDeleter
	store   *mockCycleStore
	pruner  *mockPruner
}

func newTestCycle(candidates []*model.Candidate, config Config) (*Cycle, *cycleMocks) {
	mocks := &cycleMocks{
		site:    &mockSiteClient{candidates: candidates},
		admit:   &mockAdmitter{},
		deleter: &mockDeleter{},
		store:   &mockCycleStore{},
		pruner:  &mockPruner{},
	}
	filter := NewFilter(FilterConfig{}, &mockDupChecker{}, metrics.Nop{}, newTestLogger())
	cycle := NewCycle(mocks.site, filter, mocks.admit, mocks.deleter, mocks.store,
		mocks.pruner, metrics.Nop{}, newTestLogger(), config)
	return cycle, mocks
}

// 1サイクルで候補が追加・永続化されることを検証
func TestCycle_RunOnce_AdmitsAndPersists(t *testing.T) {
	candidates := []*model.Candidate{
		freeCandidate("101", 100, 10, 10),
	}
	cycle, mocks := newTestCycle(candidates, Config{AdmitTimeout: time.Second})

	if err := cycle.RunOnce(context.Background(), false); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if len(mocks.admit.admitted) != 1 {
		t.Fatalf("admitted = %v, want 1件", mocks.admit.admitted)
	}
	if len(mocks.store.created) != 1 {
		t.Fatalf("created = %v, want 1件", mocks.store.created)
	}

	created := mocks.store.created[0]
	if created.LocalID != "101" {
		t.Errorf("LocalID = %q, want %q", created.LocalID, "101")
	}
	if created.URL != "/detail/101" {
		t.Errorf("URL = %q, want %q", created.URL, "/detail/101")
	}
	if created.InfoHash != mocks.admit.admitted[0] {
		t.Errorf("永続化されたハッシュと確認されたハッシュが一致しない")
	}
	if created.AddedAt.Location() != time.UTC || created.AddedAt.Nanosecond() != 0 {
		t.Errorf("AddedAt はUTC・秒精度であるべき: %v", created.AddedAt)
	}
}

// 削減が選択分の合計サイズを予約して実行されることを検証
func TestCycle_RunOnce_ReservesSelectedSize(t *testing.T) {
	candidates := []*model.Candidate{
		freeCandidate("1", 60, 10, 10),
		freeCandidate("2", 40, 10, 10),
	}
	cycle, mocks := newTestCycle(candidates, Config{QuotaBytes: 200, AdmitTimeout: time.Second})

	if err := cycle.RunOnce(context.Background(), false); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if len(mocks.pruner.reserves) != 1 || mocks.pruner.reserves[0] != 100 {
		t.Errorf("pruner reserves = %v, want [100]", mocks.pruner.reserves)
	}
}

// ドライランでは削減計画のみで記述子取得も追加も行わないことを検証
func TestCycle_RunOnce_DryRun(t *testing.T) {
	candidates := []*model.Candidate{
		freeCandidate("1", 100, 10, 10),
	}
	cycle, mocks := newTestCycle(candidates, Config{AdmitTimeout: time.Second})

	if err := cycle.RunOnce(context.Background(), true); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if len(mocks.pruner.dryRuns) != 1 || !mocks.pruner.dryRuns[0] {
		t.Errorf("pruner dryRuns = %v, want [true]", mocks.pruner.dryRuns)
	}
	if len(mocks.site.fetched) != 0 {
		t.Errorf("ドライランで記述子が取得された: %v", mocks.site.fetched)
	}
	if len(mocks.admit.admitted) != 0 {
		t.Errorf("ドライランで追加が実行された: %v", mocks.admit.admitted)
	}
}

// 単体でクォータを超える候補が除外され、後続は選ばれることを検証
func TestCycle_RunOnce_DropsOversizedCandidates(t *testing.T) {
	candidates := []*model.Candidate{
		freeCandidate("huge", 500, 10, 10),
		freeCandidate("small", 50, 10, 10),
	}
	cycle, mocks := newTestCycle(candidates, Config{QuotaBytes: 100, AdmitTimeout: time.Second})

	if err := cycle.RunOnce(context.Background(), false); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if len(mocks.store.created) != 1 || mocks.store.created[0].LocalID != "small" {
		t.Errorf("created = %v, want [small]", mocks.store.created)
	}
}

// 追加確認タイムアウトで該当候補のみスキップされることを検証
func TestCycle_RunOnce_SkipsTimedOutCandidate(t *testing.T) {
	candidates := []*model.Candidate{
		freeCandidate("1", 50, 10, 10),
		freeCandidate("2", 50, 10, 10),
	}
	cycle, mocks := newTestCycle(candidates, Config{AdmitTimeout: time.Second})

	calls := 0
	mocks.admit.admitFunc = func(ctx context.Context, metaBytes []byte, infoHash, name string, timeout time.Duration) (admission.State, error) {
		calls++
		if calls == 1 {
			return admission.StateTimedOut, &model.TimeoutError{InfoHash: infoHash, Timeout: timeout}
		}
		return admission.StateConfirmed, nil
	}

	if err := cycle.RunOnce(context.Background(), false); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	// 1件目はタイムアウト、2件目は成功
	if len(mocks.store.created) != 1 {
		t.Errorf("created = %d件, want 1件", len(mocks.store.created))
	}
}

// 永続化失敗で補償削除が実行されることを検証
func TestCycle_RunOnce_CompensatesFailedPersist(t *testing.T) {
	candidates := []*model.Candidate{
		freeCandidate("1", 50, 10, 10),
	}
	cycle, mocks := newTestCycle(candidates, Config{AdmitTimeout: time.Second})

	mocks.store.createFunc = func(ctx context.Context, tr *model.Torrent, siteName, siteURL string) error {
		return &model.TransientError{Op: "トレントの登録", Err: context.DeadlineExceeded}
	}

	if err := cycle.RunOnce(context.Background(), false); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if len(mocks.deleter.deleted) != 1 {
		t.Fatalf("補償削除が実行されるべき: deleted = %v", mocks.deleter.deleted)
	}
	if mocks.deleter.deleted[0] != mocks.admit.admitted[0] {
		t.Errorf("補償削除のハッシュが確認済みハッシュと一致しない")
	}
}

// カタログ取得の失敗でサイクルがエラーを返すことを検証
func TestCycle_RunOnce_CatalogError(t *testing.T) {
	cycle, mocks := newTestCycle(nil, Config{AdmitTimeout: time.Second})
	mocks.site.listErr = &model.TransientError{Op: "カタログ検索", Err: context.DeadlineExceeded}

	if err := cycle.RunOnce(context.Background(), false); err == nil {
		t.Fatal("カタログ失敗でエラーを返すべき")
	}
}
