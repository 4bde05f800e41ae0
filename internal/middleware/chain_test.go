package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/datanet/internal/storefront"
)

// newTestChain はルーターと同じ順序でミドルウェアを組み立てる。
func newTestChain(t *testing.T, finder SessionFinder, logs *bytes.Buffer) chi.Router {
	t.Helper()
	logger := newTestLogger(logs)
	rl := NewRateLimiter(DefaultRateLimiterConfig(), logger)
	t.Cleanup(rl.Stop)

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(logger))
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewSecurityHeadersMiddleware())
	r.Use(NewCSRFMiddleware(CSRFConfig{}, logger))
	r.Get("/api/csrf-token", NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP)
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(finder))
		r.Use(rl.GeneralMiddleware())
		r.Get("/api/cart", func(w http.ResponseWriter, r *http.Request) {
			s, _ := SessionFromContext(r.Context())
			w.Write([]byte(s.Token))
		})
		r.Post("/api/cart", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})
	return r
}

func TestMiddlewareChain_SessionGET(t *testing.T) {
	var logs bytes.Buffer
	finder := &mockSessionFinder{sessions: map[string]*storefront.Session{
		"tok-1": newTestSession("tok-1", "user-chain"),
	}}
	r := newTestChain(t, finder, &logs)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok-1"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "tok-1" {
		t.Errorf("status=%d body=%q, want 200 tok-1", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

func TestMiddlewareChain_POSTNeedsCSRFThenSession(t *testing.T) {
	var logs bytes.Buffer
	finder := &mockSessionFinder{sessions: map[string]*storefront.Session{
		"tok-1": newTestSession("tok-1", "user-chain"),
	}}
	r := newTestChain(t, finder, &logs)

	// CSRFトークンを取得
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	var tok struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&tok); err != nil {
		t.Fatalf("failed to decode token: %v", err)
	}

	// CSRFなしは403、セッション確認まで進まない
	req := httptest.NewRequest(http.MethodPost, "/api/cart", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok-1"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("without CSRF: status = %d, want 403", w.Code)
	}
	if finder.calls != 0 {
		t.Errorf("session lookup calls = %d, want 0", finder.calls)
	}

	// CSRFありでセッションなしは401
	req = httptest.NewRequest(http.MethodPost, "/api/cart", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tok.Token})
	req.Header.Set(csrfHeaderName, tok.Token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("without session: status = %d, want 401", w.Code)
	}

	// 両方そろえば通る
	req = httptest.NewRequest(http.MethodPost, "/api/cart", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tok.Token})
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok-1"})
	req.Header.Set(csrfHeaderName, tok.Token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("with CSRF and session: status = %d, want 201", w.Code)
	}
}

func TestMiddlewareChain_PanicRecovered(t *testing.T) {
	var logs bytes.Buffer
	r := newTestChain(t, &mockSessionFinder{}, &logs)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
	if !bytes.Contains(logs.Bytes(), []byte("panic recovered")) {
		t.Errorf("expected panic to be logged, got: %s", logs.String())
	}
}
