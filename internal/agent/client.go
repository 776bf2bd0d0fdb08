// Package agent はダウンロードエージェント（qBittorrent WebAPI）の
// クライアントを提供する。
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/seedman/internal/model"
)

// TorrentStatus はエージェントが報告するトレントの状態。
type TorrentStatus struct {
	Hash          string `json:"hash"`
	Name          string `json:"name"`
	NumSeeds      int    `json:"num_seeds"`      // 接続中のシーダー数
	NumComplete   int    `json:"num_complete"`   // スウォーム全体のシーダー数
	NumLeechs     int    `json:"num_leechs"`     // 接続中のリーチャー数
	NumIncomplete int    `json:"num_incomplete"` // スウォーム全体のリーチャー数
	Uploaded      int64  `json:"uploaded"`       // 累積アップロードバイト数
	Downloaded    int64  `json:"downloaded"`     // 累積ダウンロードバイト数
}

// AddOptions はトレント追加時の設定。
type AddOptions struct {
	UploadLimitBytes   int64  // 0は無制限
	DownloadLimitBytes int64  // 0は無制限
	Category           string // 空なら未設定
}

// Client はqBittorrent WebAPI v2のクライアント。
// 認証はコンストラクタで1回行い、セッションクッキーを保持する。
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	options    AddOptions
}

// NewClient はClientを生成し、エージェントへのログインを行う。
// 認証失敗は回復不能として扱われる（呼び出し元はプロセスを終了させる）。
func NewClient(ctx context.Context, baseURL, username, password string, options AddOptions, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("クッキージャーの作成に失敗しました: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		logger:  logger,
		options: options,
	}

	if err := c.login(ctx, username, password); err != nil {
		return nil, &model.FatalError{Err: err}
	}

	return c, nil
}

// login はWebAPIにログインし、セッションクッキーを取得する。
// qBittorrentは認証失敗でも200を返すことがあるため、本文も検証する。
func (c *Client) login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("ログインリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("エージェントへのログインに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ログインレスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		return fmt.Errorf("エージェントの認証に失敗しました: status=%d body=%q",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Info("エージェントへのログインに成功しました",
		slog.String("base_url", c.baseURL),
	)
	return nil
}

// SubmitAdd はトレント記述子をエージェントに投入し、生の応答文字列を返す。
// 応答の "Ok." は追加成功を保証せず、"Fails." でも成功していることが
// あるため、応答値での判定は行わない。実際の取り込み確認は
// QueryStatusによるポーリングで行う。
func (c *Client) SubmitAdd(ctx context.Context, metaBytes []byte, name string) (string, error) {
	var buf strings.Builder
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("torrents", name+".torrent")
	if err != nil {
		return "", fmt.Errorf("マルチパートの構築に失敗しました: %w", err)
	}
	if _, err := part.Write(metaBytes); err != nil {
		return "", fmt.Errorf("マルチパートの構築に失敗しました: %w", err)
	}

	fields := map[string]string{
		"rename":  name,
		"upLimit": strconv.FormatInt(c.options.UploadLimitBytes, 10),
		"dlLimit": strconv.FormatInt(c.options.DownloadLimitBytes, 10),
	}
	if c.options.Category != "" {
		fields["category"] = c.options.Category
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", fmt.Errorf("マルチパートの構築に失敗しました: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("マルチパートの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v2/torrents/add", strings.NewReader(buf.String()))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &model.TransientError{Op: "トレントの投入", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &model.TransientError{Op: "投入レスポンスの読み取り", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &model.TransientError{
			Op:  "トレントの投入",
			Err: fmt.Errorf("ステータス %d が返されました", resp.StatusCode),
		}
	}

	return strings.TrimSpace(string(body)), nil
}

// QueryStatus は指定ハッシュのトレント状態を問い合わせる。
// エージェントが認識していないハッシュは結果に含まれない
// （空スライス = 1件も認識されていない）。
func (c *Client) QueryStatus(ctx context.Context, hashes []string) ([]TorrentStatus, error) {
	lowered := make([]string, len(hashes))
	for i, h := range hashes {
		lowered[i] = strings.ToLower(h)
	}

	query := url.Values{}
	query.Set("hashes", strings.Join(lowered, "|"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v2/torrents/info?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.TransientError{Op: "トレント状態の取得", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.TransientError{
			Op:  "トレント状態の取得",
			Err: fmt.Errorf("ステータス %d が返されました", resp.StatusCode),
		}
	}

	var statuses []TorrentStatus
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		return nil, &model.TransientError{Op: "状態レスポンスのパース", Err: err}
	}

	return statuses, nil
}

// Delete は指定ハッシュのトレントをエージェントから削除する。
// deleteFilesがtrueの場合はダウンロード済みデータも削除される。
func (c *Client) Delete(ctx context.Context, hash string, deleteFiles bool) error {
	form := url.Values{}
	form.Set("hashes", strings.ToLower(hash))
	form.Set("deleteFiles", strconv.FormatBool(deleteFiles))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v2/torrents/delete", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.TransientError{Op: "トレントの削除", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &model.TransientError{
			Op:  "トレントの削除",
			Err: fmt.Errorf("ステータス %d が返されました", resp.StatusCode),
		}
	}

	return nil
}
