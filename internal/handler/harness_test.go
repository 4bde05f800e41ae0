package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/datanet/internal/auth"
	"github.com/hitoshi/datanet/internal/devstore"
	"github.com/hitoshi/datanet/internal/metrics"
	"github.com/hitoshi/datanet/internal/middleware"
	"github.com/hitoshi/datanet/internal/repository"
	"github.com/hitoshi/datanet/internal/security"
	"github.com/hitoshi/datanet/internal/storefront"
	"github.com/hitoshi/datanet/internal/storeclient"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// testEnv は開発用ストアとBFFを起動したテスト環境。
type testEnv struct {
	bff      *httptest.Server
	records  *repository.MemoryRecordRepo
	manager  *storefront.Manager
	registry *prometheus.Registry
	logs     *bytes.Buffer
}

// newTestEnv はシード済みの開発用ストアに接続したBFFを起動する。
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := newTestLogger(logs)

	records := repository.NewMemoryRecordRepo()
	seed, err := devstore.DefaultSeed()
	if err != nil {
		t.Fatalf("DefaultSeed: %v", err)
	}
	if _, err := devstore.Apply(context.Background(), records, seed); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	store := httptest.NewServer(devstore.NewRouter(devstore.NewServer(records, logger)))
	t.Cleanup(store.Close)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	httpClient := store.Client()
	httpClient.Timeout = 2 * time.Second
	client := storeclient.NewClient(httpClient, logger, store.URL, nil, collector)

	manager := storefront.NewManager(storefront.Deps{
		Auth:          auth.NewService(repository.NewRemoteUserRepo(client), logger),
		Packages:      repository.NewRemotePackageRepo(client),
		Sanitizer:     security.NewTextSanitizer(),
		Carts:         repository.NewRemoteCartRepo(client),
		Transactions:  repository.NewRemoteTransactionRepo(client),
		Metrics:       collector,
		Logger:        logger,
		MaxConcurrent: 4,
		ConfirmTTL:    time.Minute,
		IdleTimeout:   30 * time.Minute,
	})

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), logger)
	t.Cleanup(rl.Stop)

	bff := httptest.NewServer(NewRouter(&RouterDeps{
		Sessions:          manager,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthConfig:        AuthHandlerConfig{SessionMaxAge: 3600},
		Gatherer:          registry,
		Logger:            logger,
	}))
	t.Cleanup(bff.Close)

	return &testEnv{bff: bff, records: records, manager: manager, registry: registry, logs: logs}
}

// apiClient はCookieとCSRFトークンを保持するブラウザ相当のクライアント。
type apiClient struct {
	t     *testing.T
	base  string
	http  *http.Client
	token string
}

func (e *testEnv) newClient(t *testing.T) *apiClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	c := &apiClient{t: t, base: e.bff.URL, http: &http.Client{Jar: jar, Timeout: 5 * time.Second}}

	var body struct {
		Token string `json:"token"`
	}
	resp := c.do(http.MethodGet, "/api/csrf-token", nil, &body)
	if resp.StatusCode != http.StatusOK || body.Token == "" {
		t.Fatalf("csrf-token: status=%d token=%q", resp.StatusCode, body.Token)
	}
	c.token = body.Token
	return c
}

// do はリクエストを送り、outが非nilならレスポンスをデコードする。
func (c *apiClient) do(method, path string, in, out any) *http.Response {
	c.t.Helper()
	var r io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	if err != nil {
		c.t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-CSRF-Token", c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			c.t.Fatalf("%s %s: decode %s: %v", method, path, raw, err)
		}
	}
	return resp
}

// login はデモユーザーでログインする。
func (c *apiClient) login() {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/auth/login", loginRequest{Email: "demo@user.com", Password: "demo123"}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
}

// opBody はゲート経由の操作のレスポンス。
type opBody struct {
	Status       string `json:"status"`
	Confirmation *struct {
		ID      string `json:"id"`
		Kind    string `json:"kind"`
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"confirmation"`
	Result json.RawMessage `json:"result"`
}

// resolve は保留中の確認に判断を返す。
func (c *apiClient) resolve(id string, decision bool, out any) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, "/api/confirmation", resolveRequest{ID: id, Confirm: decision}, out)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
