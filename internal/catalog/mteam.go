package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/seedman/internal/model"
	"github.com/hitoshi/seedman/internal/security"
)

const (
	// mteamSiteName はMTeam系サイトのカタログ登録名。
	mteamSiteName = "MTeam"
	// mteamDateLayout はAPIが返すゾーン情報なしの日時形式。
	// サイトのローカルタイムゾーンとして解釈し、UTCに変換する。
	mteamDateLayout = "2006-01-02 15:04:05"
	// searchPageSize は1回の検索で取得する件数。
	searchPageSize = 40
)

// flexInt64 は数値・数値文字列の両方を受け付けるJSONフィールド。
// MTeam APIはサイズやカウンタを文字列で返すことがある。
type flexInt64 int64

// UnmarshalJSON はjson.Unmarshalerインターフェースを実装する。
func (n *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("数値のパースに失敗しました: %q: %w", s, err)
	}
	*n = flexInt64(v)
	return nil
}

// mteamSearchRequest は検索APIのリクエストボディ。
type mteamSearchRequest struct {
	Mode       string   `json:"mode"`
	Visible    int      `json:"visible"`
	Categories []string `json:"categories"`
	PageSize   int      `json:"pageSize"`
	PageNumber int      `json:"pageNumber"`
	Discount   string   `json:"discount,omitempty"`
}

// mteamTorrentStatus は検索結果アイテムのstatusブロック。
type mteamTorrentStatus struct {
	Seeders         flexInt64 `json:"seeders"`
	Leechers        flexInt64 `json:"leechers"`
	Discount        string    `json:"discount"`
	DiscountEndTime *string   `json:"discountEndTime"`
}

// mteamTorrentItem は検索結果の1アイテム。
type mteamTorrentItem struct {
	ID          flexInt64          `json:"id"`
	Name        string             `json:"name"`
	CreatedDate string             `json:"createdDate"`
	Size        flexInt64          `json:"size"`
	Status      mteamTorrentStatus `json:"status"`
}

// mteamSearchResponse は検索APIのレスポンス。データは二重にネストされる。
type mteamSearchResponse struct {
	Message string `json:"message"`
	Data    struct {
		Data []mteamTorrentItem `json:"data"`
	} `json:"data"`
}

// mteamTokenResponse はgenDlToken APIのレスポンス。dataはダウンロードURL。
type mteamTokenResponse struct {
	Message string `json:"message"`
	Data    string `json:"data"`
}

// MTeamClient はMTeam系JSON APIのカタログクライアント。
// 検索と記述子取得の全ての外部呼び出しが共有のレート制限を通過する。
type MTeamClient struct {
	apiBase           string
	apiKey            string
	siteURL           string
	httpClient        *http.Client
	descriptorClient  *http.Client // SSRF防止付き。トークンが返すURLのダウンロード専用
	guard             security.SSRFGuardService
	sanitizer         security.NameSanitizerService
	limiter           *rate.Limiter
	logger            *slog.Logger
	maxDescriptorSize int64
	location          *time.Location // ゾーンなし日時の解釈に使用
}

// NewMTeamClient はMTeamClientの新しいインスタンスを生成する。
// ratePerSecは全外部呼び出しに共有適用されるレート上限。
func NewMTeamClient(
	apiBase, apiKey string,
	guard security.SSRFGuardService,
	sanitizer security.NameSanitizerService,
	ratePerSec float64,
	maxDescriptorSize int64,
	logger *slog.Logger,
) *MTeamClient {
	return &MTeamClient{
		apiBase:           strings.TrimRight(apiBase, "/"),
		apiKey:            apiKey,
		siteURL:           strings.TrimRight(apiBase, "/"),
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		descriptorClient:  guard.NewSafeClient(60 * time.Second),
		guard:             guard,
		sanitizer:         sanitizer,
		limiter:           rate.NewLimiter(rate.Limit(ratePerSec), 1),
		logger:            logger,
		maxDescriptorSize: maxDescriptorSize,
		location:          time.Local,
	}
}

// SiteName はこのクライアントが対象とするサイト名を返す。
func (c *MTeamClient) SiteName() string {
	return mteamSiteName
}

// SiteURL はこのクライアントが対象とするサイトのURLを返す。
func (c *MTeamClient) SiteURL() string {
	return c.siteURL
}

// ListFreeCandidates は一般・成人向けの両カテゴリから
// 現在無料配布中の候補一覧をサイト掲載順で返す。
func (c *MTeamClient) ListFreeCandidates(ctx context.Context) ([]*model.Candidate, error) {
	var items []mteamTorrentItem
	for _, mode := range []string{"normal", "adult"} {
		part, err := c.searchFree(ctx, mode)
		if err != nil {
			return nil, err
		}
		items = append(items, part...)
	}

	candidates := make([]*model.Candidate, 0, len(items))
	for _, item := range items {
		cand, err := c.toCandidate(item)
		if err != nil {
			// 1件のパース失敗で全体を落とさない
			c.logger.Warn("候補のパースに失敗したためスキップします",
				slog.String("site", mteamSiteName),
				slog.Int64("local_id", int64(item.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// searchFree は指定モードでFREEディスカウントのトレントを検索する。
func (c *MTeamClient) searchFree(ctx context.Context, mode string) ([]mteamTorrentItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(mteamSearchRequest{
		Mode:       mode,
		Visible:    1,
		Categories: []string{},
		PageSize:   searchPageSize,
		PageNumber: 1,
		Discount:   "FREE",
	})
	if err != nil {
		return nil, fmt.Errorf("検索リクエストの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/torrent/search", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.TransientError{Op: "カタログ検索", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.TransientError{
			Op:  "カタログ検索",
			Err: fmt.Errorf("ステータス %d が返されました", resp.StatusCode),
		}
	}

	var result mteamSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &model.TransientError{Op: "カタログ検索レスポンスのパース", Err: err}
	}
	if result.Message != "SUCCESS" {
		return nil, &model.TransientError{
			Op:  "カタログ検索",
			Err: fmt.Errorf("APIがエラーを返しました: %s", result.Message),
		}
	}

	return result.Data.Data, nil
}

// toCandidate は検索結果アイテムをドメインの候補に変換する。
func (c *MTeamClient) toCandidate(item mteamTorrentItem) (*model.Candidate, error) {
	createdAt, err := c.parseSiteTime(item.CreatedDate)
	if err != nil {
		return nil, err
	}

	cand := &model.Candidate{
		SiteName:  mteamSiteName,
		LocalID:   strconv.FormatInt(int64(item.ID), 10),
		Name:      c.sanitizer.Sanitize(item.Name),
		SizeBytes: int64(item.Size),
		CreatedAt: createdAt,
		Seeders:   int(item.Status.Seeders),
		Leechers:  int(item.Status.Leechers),
		IsFree:    item.Status.Discount == "FREE",
	}

	if item.Status.DiscountEndTime != nil && *item.Status.DiscountEndTime != "" {
		endTime, err := c.parseSiteTime(*item.Status.DiscountEndTime)
		if err != nil {
			return nil, err
		}
		cand.FreeUntil = &endTime
	}

	return cand, nil
}

// parseSiteTime はゾーン情報なしのサイト日時をローカルタイムゾーンとして
// 解釈し、UTCに変換する。
func (c *MTeamClient) parseSiteTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(mteamDateLayout, s, c.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("日時のパースに失敗しました: %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FetchDescriptor はgenDlToken APIでダウンロードリンクを取得し、
// SSRF防止付きクライアントでトレント記述子をダウンロードする。
func (c *MTeamClient) FetchDescriptor(ctx context.Context, localID string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("id", localID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/torrent/genDlToken", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.TransientError{Op: "ダウンロードトークンの取得", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.TransientError{
			Op:  "ダウンロードトークンの取得",
			Err: fmt.Errorf("ステータス %d が返されました", resp.StatusCode),
		}
	}

	var token mteamTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, &model.TransientError{Op: "トークンレスポンスのパース", Err: err}
	}
	if token.Message != "SUCCESS" {
		return nil, &model.TransientError{
			Op:  "ダウンロードトークンの取得",
			Err: fmt.Errorf("APIがエラーを返しました: %s", token.Message),
		}
	}

	// トークンAPIが返すURLは外部入力としてSSRF検証する
	if err := c.guard.ValidateURL(token.Data); err != nil {
		return nil, &model.ValidationError{
			Reason: fmt.Sprintf("ダウンロードURLが安全ではありません: %v", err),
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return c.downloadDescriptor(ctx, token.Data)
}

// downloadDescriptor は記述子本体をサイズ上限付きでダウンロードする。
func (c *MTeamClient) downloadDescriptor(ctx context.Context, dlURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dlURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.descriptorClient.Do(req)
	if err != nil {
		return nil, &model.TransientError{Op: "記述子のダウンロード", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.TransientError{
			Op:  "記述子のダウンロード",
			Err: fmt.Errorf("ステータス %d が返されました", resp.StatusCode),
		}
	}

	// 上限+1バイトまで読み、超過を検出する
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDescriptorSize+1))
	if err != nil {
		return nil, &model.TransientError{Op: "記述子の読み取り", Err: err}
	}
	if int64(len(body)) > c.maxDescriptorSize {
		return nil, &model.ValidationError{
			Reason: fmt.Sprintf("記述子がサイズ上限 %d バイトを超えています", c.maxDescriptorSize),
		}
	}

	return body, nil
}
