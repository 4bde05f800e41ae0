// Package storeclient はjson-server互換のレコードストアを呼び出すHTTPクライアントを提供する。
// コレクション単位の一覧取得・作成・削除のみを扱い、リトライは行わない。
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/datanet/internal/metrics"
	"github.com/hitoshi/datanet/internal/model"
)

// maxResponseBytes はレスポンスボディの読み取り上限。
const maxResponseBytes = 4 << 20

// ErrMalformedResponse はレスポンスボディが期待するJSONとして解釈できないことを表す。
var ErrMalformedResponse = errors.New("malformed store response")

// TransportError はレコードストアとの通信失敗を表す。
// 到達不能・2xx以外のステータス・不正なペイロードのいずれか。
type TransportError struct {
	Method     string
	Path       string
	StatusCode int // 応答を受け取れなかった場合は0
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("store %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("store %s %s: %v", e.Method, e.Path, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Query は一覧取得時のフィルタとソート条件。
// Filtersは完全一致のみ。Sortが空ならストアの返却順をそのまま使う。
type Query struct {
	Filters map[string]string
	Sort    string
	Order   string // "asc" または "desc"
}

func (q Query) values() url.Values {
	v := url.Values{}
	for k, val := range q.Filters {
		v.Set(k, val)
	}
	if q.Sort != "" {
		v.Set("_sort", q.Sort)
		if q.Order != "" {
			v.Set("_order", q.Order)
		}
	}
	return v
}

// Client はレコードストアのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // ベースURL（末尾スラッシュなし）
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
// limiterがnilの場合は流量制限を行わない。mcがnilの場合はメトリクスを記録しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint string, limiter *rate.Limiter, mc metrics.MetricsCollector) *Client {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   strings.TrimRight(endpoint, "/"),
		limiter:    limiter,
		metrics:    mc,
	}
}

// List はコレクションのレコード一覧を取得し、outにデコードする。
func (c *Client) List(ctx context.Context, collection string, q Query, out any) error {
	path := "/" + collection
	if qs := q.values().Encode(); qs != "" {
		path += "?" + qs
	}
	return c.do(ctx, http.MethodGet, collection, path, nil, out)
}

// Create はレコードを作成し、ストアが返した作成済みレコードをoutにデコードする。
// outがnilの場合はレスポンスボディを読み捨てる。
func (c *Client) Create(ctx context.Context, collection string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("レコードのエンコードに失敗しました: %w", err)
	}
	return c.do(ctx, http.MethodPost, collection, "/"+collection, body, out)
}

// Delete は指定IDのレコードを削除する。
func (c *Client) Delete(ctx context.Context, collection string, id model.RecordID) error {
	path := "/" + collection + "/" + url.PathEscape(id.String())
	return c.do(ctx, http.MethodDelete, collection, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, collection, path string, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Method: method, Path: path, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordStoreRequest(collection, method, 0, time.Since(start))
		c.logger.Error("レコードストアの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()
	c.metrics.RecordStoreRequest(collection, method, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("レコードストアがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return &TransportError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("レコードストアのレスポンスのパースに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &TransportError{
			Method: method,
			Path:   path,
			Err:    fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}
	return nil
}
