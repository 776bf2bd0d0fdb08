package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/hitoshi/seedman/internal/model"
	"github.com/hitoshi/seedman/internal/security"
)

// rssSiteName はRSS系サイトのカタログ登録名。
const rssSiteName = "RSS"

// RSSClient はRSSフィードを候補源とするカタログクライアント。
// フィードにはプロモーション情報がないため、全アイテムを
// 無期限フリーとして扱う。
type RSSClient struct {
	feedURL           string
	httpClient        *http.Client // SSRF防止付き
	parser            *gofeed.Parser
	sanitizer         security.NameSanitizerService
	limiter           *rate.Limiter
	logger            *slog.Logger
	maxDescriptorSize int64

	// mu はdescriptorURLsを保護する。候補一覧の取得時に
	// サイト側ID→記述子URLの対応を記録し、FetchDescriptorで参照する。
	mu             sync.Mutex
	descriptorURLs map[string]string
}

// NewRSSClient はRSSClientの新しいインスタンスを生成する。
func NewRSSClient(
	feedURL string,
	guard security.SSRFGuardService,
	sanitizer security.NameSanitizerService,
	ratePerSec float64,
	maxDescriptorSize int64,
	logger *slog.Logger,
) *RSSClient {
	return &RSSClient{
		feedURL:           feedURL,
		httpClient:        guard.NewSafeClient(60 * time.Second),
		parser:            gofeed.NewParser(),
		sanitizer:         sanitizer,
		limiter:           rate.NewLimiter(rate.Limit(ratePerSec), 1),
		logger:            logger,
		maxDescriptorSize: maxDescriptorSize,
		descriptorURLs:    make(map[string]string),
	}
}

// SiteName はこのクライアントが対象とするサイト名を返す。
func (c *RSSClient) SiteName() string {
	return rssSiteName
}

// SiteURL はこのクライアントが対象とするサイトのURLを返す。
func (c *RSSClient) SiteURL() string {
	return c.feedURL
}

// ListFreeCandidates はフィードを取得し、エンクロージャ付きの
// 各アイテムを候補として掲載順で返す。
func (c *RSSClient) ListFreeCandidates(ctx context.Context) ([]*model.Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.fetchBody(ctx, c.feedURL)
	if err != nil {
		return nil, err
	}

	feed, err := c.parser.ParseString(string(body))
	if err != nil {
		return nil, &model.TransientError{Op: "フィードのパース", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	candidates := make([]*model.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		cand, descriptorURL, ok := c.toCandidate(item)
		if !ok {
			continue
		}
		c.descriptorURLs[cand.LocalID] = descriptorURL
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// toCandidate はフィードアイテムを候補に変換する。
// エンクロージャのないアイテムはスキップされる。
func (c *RSSClient) toCandidate(item *gofeed.Item) (*model.Candidate, string, bool) {
	if len(item.Enclosures) == 0 || item.Enclosures[0].URL == "" {
		c.logger.Warn("エンクロージャのないフィードアイテムをスキップします",
			slog.String("title", item.Title),
		)
		return nil, "", false
	}
	enclosure := item.Enclosures[0]

	localID := item.GUID
	if localID == "" {
		localID = enclosure.URL
	}

	size, err := strconv.ParseInt(enclosure.Length, 10, 64)
	if err != nil {
		size = 0
	}

	createdAt := time.Now().UTC()
	if item.PublishedParsed != nil {
		createdAt = item.PublishedParsed.UTC()
	}

	// torrent名前空間拡張（ezrss系フィード）があればスウォーム情報を読み取る。
	// peersはシーダーを含む総数。拡張のないフィードの候補はシーダー0のままで、
	// 比率フィルタにより除外される。
	seeders := extInt(item, "torrent", "seeds")
	leechers := extInt(item, "torrent", "peers") - seeders
	if leechers < 0 {
		leechers = 0
	}

	// フィードにプロモーション情報はないため、フリー状態は無期限として扱う
	return &model.Candidate{
		SiteName:  rssSiteName,
		LocalID:   localID,
		Name:      c.sanitizer.Sanitize(item.Title),
		SizeBytes: size,
		CreatedAt: createdAt,
		Seeders:   seeders,
		Leechers:  leechers,
		IsFree:    true,
		FreeUntil: nil,
	}, enclosure.URL, true
}

// extInt は指定名前空間の拡張要素を整数として読み取る。
// 存在しない、または整数でない場合は0を返す。
func extInt(item *gofeed.Item, space, name string) int {
	values, ok := item.Extensions[space][name]
	if !ok || len(values) == 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(values[0].Value))
	if err != nil {
		return 0
	}
	return n
}

// FetchDescriptor は直近のListFreeCandidatesで記録された
// エンクロージャURLから記述子をダウンロードする。
func (c *RSSClient) FetchDescriptor(ctx context.Context, localID string) ([]byte, error) {
	c.mu.Lock()
	descriptorURL, ok := c.descriptorURLs[localID]
	c.mu.Unlock()

	if !ok {
		return nil, &model.ValidationError{
			Reason: fmt.Sprintf("未知のサイト側ID: %s", localID),
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return c.fetchBody(ctx, descriptorURL)
}

// fetchBody は指定URLの本文をサイズ上限付きで取得する。
func (c *RSSClient) fetchBody(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.TransientError{Op: "フィードの取得", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.TransientError{
			Op:  "フィードの取得",
			Err: fmt.Errorf("ステータス %d が返されました", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDescriptorSize+1))
	if err != nil {
		return nil, &model.TransientError{Op: "レスポンスの読み取り", Err: err}
	}
	if int64(len(body)) > c.maxDescriptorSize {
		return nil, &model.ValidationError{
			Reason: fmt.Sprintf("レスポンスがサイズ上限 %d バイトを超えています", c.maxDescriptorSize),
		}
	}

	return body, nil
}
