package storefront

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/datanet/internal/auth"
	"github.com/hitoshi/datanet/internal/checkout"
	"github.com/hitoshi/datanet/internal/confirm"
	"github.com/hitoshi/datanet/internal/devstore"
	"github.com/hitoshi/datanet/internal/metrics"
	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/repository"
	"github.com/hitoshi/datanet/internal/security"
	"github.com/hitoshi/datanet/internal/session"
	"github.com/hitoshi/datanet/internal/storeclient"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newTestManager はシード済みの開発用ストアに接続したManagerを組み立てる。
func newTestManager(t *testing.T) (*Manager, *repository.MemoryRecordRepo) {
	t.Helper()
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	records := repository.NewMemoryRecordRepo()
	seed, err := devstore.DefaultSeed()
	if err != nil {
		t.Fatalf("DefaultSeed: %v", err)
	}
	if _, err := devstore.Apply(context.Background(), records, seed); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	srv := httptest.NewServer(devstore.NewRouter(devstore.NewServer(records, logger)))
	t.Cleanup(srv.Close)

	return newManagerFor(srv.URL, srv, logger), records
}

func newManagerFor(url string, srv *httptest.Server, logger *slog.Logger) *Manager {
	httpClient := srv.Client()
	httpClient.Timeout = 2 * time.Second
	client := storeclient.NewClient(httpClient, logger, url, nil, metrics.Nop{})

	return NewManager(Deps{
		Auth:          auth.NewService(repository.NewRemoteUserRepo(client), logger),
		Packages:      repository.NewRemotePackageRepo(client),
		Sanitizer:     security.NewTextSanitizer(),
		Carts:         repository.NewRemoteCartRepo(client),
		Transactions:  repository.NewRemoteTransactionRepo(client),
		Logger:        logger,
		MaxConcurrent: 4,
		ConfirmTTL:    time.Minute,
		IdleTimeout:   30 * time.Minute,
	})
}

func hasNotice(notices []session.Notice, level session.NoticeLevel, msg string) bool {
	for _, n := range notices {
		if n.Level == level && n.Message == msg {
			return true
		}
	}
	return false
}

func TestManager_Login_OpensHydratedSession(t *testing.T) {
	m, _ := newTestManager(t)

	s, err := m.Login(context.Background(), "demo@user.com", "demo123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.Token == "" {
		t.Fatal("token should be issued")
	}
	if got := s.Context.User(); got.Email != "demo@user.com" || got.Password != "" {
		t.Errorf("user = %+v, want demo user without password", got)
	}
	if len(s.Catalog.Snapshot()) != 4 {
		t.Errorf("catalog = %d packages, want 4", len(s.Catalog.Snapshot()))
	}
	if len(s.Cart.Entries()) != 0 || len(s.History.Transactions()) != 0 {
		t.Error("fresh user should have empty cart and history")
	}
	if !hasNotice(s.Context.PeekNotices(), session.NoticeSuccess, "Login successful!") {
		t.Errorf("notices = %v", s.Context.PeekNotices())
	}

	got, ok := m.Get(s.Token)
	if !ok || got != s {
		t.Error("Get should return the opened session")
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}
}

func TestManager_Login_InvalidCredentials(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Login(context.Background(), "demo@user.com", "wrong")
	if !model.HasCode(err, model.ErrCodeInvalidCredentials) {
		t.Errorf("err = %v, want INVALID_CREDENTIALS", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0", m.Count())
	}
}

func TestManager_Signup_ThenDuplicateRejected(t *testing.T) {
	m, records := newTestManager(t)
	ctx := context.Background()

	in := auth.SignupInput{Name: "Budi", Email: "budi@example.com", Password: "rahasia", Phone: "0812"}
	s, err := m.Signup(ctx, in)
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if s.Context.UserID() == "" {
		t.Error("new user should have a store-assigned id")
	}
	if !hasNotice(s.Context.PeekNotices(), session.NoticeSuccess, "Sign up successful! You are now logged in.") {
		t.Errorf("notices = %v", s.Context.PeekNotices())
	}

	_, err = m.Signup(ctx, in)
	if !model.HasCode(err, model.ErrCodeEmailAlreadyRegistered) {
		t.Errorf("err = %v, want EMAIL_ALREADY_REGISTERED", err)
	}
	users, _ := records.List(ctx, repository.CollectionUsers, map[string]string{"email": "budi@example.com"})
	if len(users) != 1 {
		t.Errorf("users with email = %d, want 1", len(users))
	}
}

func TestManager_GatedCheckout_EndToEnd(t *testing.T) {
	m, records := newTestManager(t)
	ctx := context.Background()

	s, err := m.Login(ctx, "demo@user.com", "demo123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	power, ok := s.Catalog.Find("2")
	if !ok {
		t.Fatal("Power package should be in the catalog")
	}
	for range 2 {
		if err := s.Cart.Add(ctx, power); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	prompt, res := s.Gate.Start(func(ctx context.Context) (any, error) {
		return s.Checkout.Checkout(ctx)
	})
	if res != nil {
		t.Fatalf("expected a prompt, got result %+v", res)
	}
	if prompt.Kind != confirm.KindCheckout || !strings.Contains(prompt.Message, "Rp 398.000") {
		t.Errorf("prompt = %+v", prompt)
	}

	prompt, res = s.Gate.Resolve(prompt.ID, true)
	if prompt != nil || res == nil || res.Err != nil {
		t.Fatalf("Resolve = (%v, %+v)", prompt, res)
	}
	outcome, ok := res.Value.(*checkout.Outcome)
	if !ok || outcome.State != checkout.StateCompleted || len(outcome.Committed) != 2 {
		t.Fatalf("outcome = %+v", res.Value)
	}

	if len(s.Cart.Entries()) != 0 {
		t.Errorf("cart = %v, want empty", s.Cart.Entries())
	}
	if len(s.History.Transactions()) != 2 {
		t.Errorf("history = %d, want 2", len(s.History.Transactions()))
	}
	if s.Context.View() != session.ViewTransactions {
		t.Errorf("view = %q, want transactions", s.Context.View())
	}

	stored, _ := records.List(ctx, repository.CollectionTransactions, map[string]string{"userId": "1"})
	if len(stored) != 2 {
		t.Fatalf("stored transactions = %d, want 2", len(stored))
	}
	if stored[0]["packageData"] != "30 Mbps" || stored[0]["duration"] != model.TransactionDuration {
		t.Errorf("transaction = %v", stored[0])
	}
	cartLeft, _ := records.List(ctx, repository.CollectionCart, nil)
	if len(cartLeft) != 0 {
		t.Errorf("cart records left = %d, want 0", len(cartLeft))
	}
}

func TestManager_Logout_DeclineKeepsSession(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	s, err := m.Login(ctx, "demo@user.com", "demo123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	logout := func(ctx context.Context) (any, error) {
		return m.Logout(ctx, s, s.Gate)
	}

	prompt, _ := s.Gate.Start(logout)
	if prompt == nil || prompt.Kind != confirm.KindLogout || prompt.Title != "Confirm Logout" {
		t.Fatalf("prompt = %+v", prompt)
	}
	_, res := s.Gate.Resolve(prompt.ID, false)
	if lr := res.Value.(*LogoutResult); lr.LoggedOut {
		t.Error("declined logout should keep the session")
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}

	prompt, _ = s.Gate.Start(logout)
	_, res = s.Gate.Resolve(prompt.ID, true)
	lr := res.Value.(*LogoutResult)
	if !lr.LoggedOut || lr.Message != "Logged out successfully" {
		t.Errorf("result = %+v", lr)
	}
	if _, ok := m.Get(s.Token); ok {
		t.Error("session should be gone after logout")
	}
}

func TestManager_Open_CatalogFailureStillOpens(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	dead := httptest.NewServer(nil)
	url := dead.URL
	dead.Close()

	m := newManagerFor(url, dead, logger)
	s := m.Open(context.Background(), model.User{ID: "u-1", Name: "Offline"})

	if !hasNotice(s.Context.PeekNotices(), session.NoticeError, "Failed to load packages") {
		t.Errorf("notices = %v", s.Context.PeekNotices())
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}
}

func TestManager_CatalogFailureDoesNotAffectOtherSessions(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	records := repository.NewMemoryRecordRepo()
	seed, err := devstore.DefaultSeed()
	if err != nil {
		t.Fatalf("DefaultSeed: %v", err)
	}
	if _, err := devstore.Apply(context.Background(), records, seed); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	var packagesDown atomic.Bool
	store := devstore.NewRouter(devstore.NewServer(records, logger))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if packagesDown.Load() && strings.HasPrefix(r.URL.Path, "/packages") {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		store.ServeHTTP(w, r)
	}))
	defer srv.Close()

	m := newManagerFor(srv.URL, srv, logger)
	ctx := context.Background()

	first := m.Open(ctx, model.User{ID: "u-a", Name: "A"})
	if len(first.Catalog.Snapshot()) != 4 {
		t.Fatalf("first catalog = %d packages, want 4", len(first.Catalog.Snapshot()))
	}

	packagesDown.Store(true)
	second := m.Open(ctx, model.User{ID: "u-b", Name: "B"})
	if len(second.Catalog.Snapshot()) != 0 {
		t.Errorf("second catalog = %d packages, want 0", len(second.Catalog.Snapshot()))
	}
	if !hasNotice(second.Context.PeekNotices(), session.NoticeError, "Failed to load packages") {
		t.Errorf("second notices = %v", second.Context.PeekNotices())
	}

	if got := len(first.Catalog.Snapshot()); got != 4 {
		t.Errorf("first catalog after other session failed = %d packages, want 4", got)
	}
	lite, ok := first.Catalog.Find("1")
	if !ok {
		t.Fatal("first session should still find package 1")
	}
	if err := first.Cart.Add(ctx, lite); err != nil {
		t.Errorf("Add after other session's catalog failure: %v", err)
	}
	if hasNotice(first.Context.PeekNotices(), session.NoticeError, "Failed to load packages") {
		t.Error("first session should not be notified of another session's failure")
	}
}

func TestManager_Sweep_ExpiresIdleAndDeclinesPending(t *testing.T) {
	m, records := newTestManager(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	idle, err := m.Login(ctx, "demo@user.com", "demo123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	lite, _ := idle.Catalog.Find("1")
	if err := idle.Cart.Add(ctx, lite); err != nil {
		t.Fatalf("Add: %v", err)
	}
	prompt, _ := idle.Gate.Start(func(ctx context.Context) (any, error) {
		return idle.Checkout.Checkout(ctx)
	})
	if prompt == nil {
		t.Fatal("checkout should wait for confirmation")
	}

	m.now = func() time.Time { return base.Add(20 * time.Minute) }
	active := m.Open(ctx, model.User{ID: "u-2", Name: "Active"})

	m.now = func() time.Time { return base.Add(40 * time.Minute) }
	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}
	if _, ok := m.Get(idle.Token); ok {
		t.Error("idle session should be swept")
	}
	if _, ok := m.Get(active.Token); !ok {
		t.Error("active session should remain")
	}
	if idle.Gate.Pending() != nil {
		t.Error("pending confirmation should be declined")
	}

	// 拒否されたチェックアウトは取引を作らない
	deadline := time.Now().Add(2 * time.Second)
	for idle.Checkout.State() != checkout.StateIdle && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	txs, _ := records.List(ctx, repository.CollectionTransactions, nil)
	if len(txs) != 0 {
		t.Errorf("transactions = %d, want 0", len(txs))
	}
}

func TestManager_Run_StopsOnCancel(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
