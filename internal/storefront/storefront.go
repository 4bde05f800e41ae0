// Package storefront はサインイン中のセッションごとにカート・チェックアウト・注文履歴を組み立て、
// トークンで引けるように管理する。
package storefront

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/datanet/internal/auth"
	"github.com/hitoshi/datanet/internal/cart"
	"github.com/hitoshi/datanet/internal/catalog"
	"github.com/hitoshi/datanet/internal/checkout"
	"github.com/hitoshi/datanet/internal/confirm"
	"github.com/hitoshi/datanet/internal/history"
	"github.com/hitoshi/datanet/internal/metrics"
	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/repository"
	"github.com/hitoshi/datanet/internal/security"
	"github.com/hitoshi/datanet/internal/session"
)

// 通知メッセージ。
const (
	msgLoginSuccess  = "Login successful!"
	msgSignupSuccess = "Sign up successful! You are now logged in."
	msgCatalogFailed = "Failed to load packages"
	msgLoggedOut     = "Logged out successfully"
)

// defaultSweepEvery は期限切れセッションの確認間隔の既定値。
const defaultSweepEvery = time.Minute

// Deps はセッション構築に必要な依存関係。
type Deps struct {
	Auth          *auth.Service
	Packages      repository.PackageRepository
	Sanitizer     security.TextSanitizer // ストアから読んだ表示用文字列に使う。nilなら既定のポリシー
	Normalizer    *catalog.Normalizer
	Carts         repository.CartRepository
	Transactions  repository.TransactionRepository
	Metrics       metrics.MetricsCollector
	Logger        *slog.Logger
	MaxConcurrent int
	ConfirmTTL    time.Duration
	IdleTimeout   time.Duration // 最終アクセスからこの時間が過ぎたセッションは破棄する
}

// Session は1ユーザー分のコンポーネント一式。全コンポーネントが同じsession.Contextを共有する。
type Session struct {
	Token    string
	Context  *session.Context
	Gate     *confirm.Gate
	Catalog  *catalog.Cache
	Cart     *cart.Orchestrator
	Checkout *checkout.Committer
	History  *history.Manager

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// LogoutResult はログアウト操作の結果。
type LogoutResult struct {
	LoggedOut bool   `json:"loggedOut"`
	Message   string `json:"message,omitempty"`
}

// Manager はトークンからセッションを引くレジストリ。
type Manager struct {
	deps Deps
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager はManagerを生成する。
func NewManager(deps Deps) *Manager {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Normalizer == nil {
		deps.Normalizer = catalog.NewNormalizer(catalog.DefaultCapacityUnit)
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = security.NewTextSanitizer()
	}
	deps.Carts = repository.NewSanitizingCartRepo(deps.Carts, deps.Sanitizer)
	deps.Transactions = repository.NewSanitizingTransactionRepo(deps.Transactions, deps.Sanitizer)
	return &Manager{
		deps:     deps,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Login は認証してセッションを開始する。
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := m.deps.Auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s := m.Open(ctx, *user)
	s.Context.Success(msgLoginSuccess)
	return s, nil
}

// Signup はユーザーを作成してそのままセッションを開始する。
func (m *Manager) Signup(ctx context.Context, in auth.SignupInput) (*Session, error) {
	user, err := m.deps.Auth.Signup(ctx, in)
	if err != nil {
		return nil, err
	}
	s := m.Open(ctx, *user)
	s.Context.Success(msgSignupSuccess)
	return s, nil
}

// Open はユーザーのセッションを作成し、カタログ・カート・注文履歴を読み込む。
// カタログのスナップショットはセッションごとに持ち、他のセッションの読み込み失敗の影響を受けない。
// 読み込みの失敗はセッション開始を妨げない。カタログの失敗だけ通知する。
func (m *Manager) Open(ctx context.Context, user model.User) *Session {
	sc := session.New(user)
	gate := confirm.NewGate(m.deps.ConfirmTTL, m.deps.Logger)

	cartOrch := cart.NewOrchestrator(m.deps.Carts, sc, gate, m.deps.Metrics, m.deps.Logger, m.deps.MaxConcurrent)
	hist := history.NewManager(m.deps.Transactions, sc, gate, m.deps.Logger)
	committer := checkout.NewCommitter(m.deps.Transactions, cartOrch, hist, sc, gate, m.deps.Normalizer, m.deps.Metrics, m.deps.Logger)

	s := &Session{
		Token:    uuid.New().String(),
		Context:  sc,
		Gate:     gate,
		Catalog:  catalog.NewCache(m.deps.Packages, m.deps.Sanitizer, m.deps.Logger),
		Cart:     cartOrch,
		Checkout: committer,
		History:  hist,
		lastSeen: m.now(),
	}

	if _, err := s.Catalog.Load(ctx); err != nil {
		sc.Error(msgCatalogFailed)
	}
	_ = s.Cart.Hydrate(ctx)
	_ = s.History.Load(ctx)

	m.mu.Lock()
	m.sessions[s.Token] = s
	m.mu.Unlock()

	m.deps.Logger.Info("セッションを開始しました",
		slog.String("user_id", user.ID.String()),
	)
	return s
}

// Get はトークンのセッションを返し、最終アクセス時刻を更新する。
func (m *Manager) Get(token string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.touch(m.now())
	return s, true
}

// Logout は確認を求めた上でセッションを終了する。
// confirmerにはセッションのGateまたは任意のConfirmerを渡す。
func (m *Manager) Logout(ctx context.Context, s *Session, confirmer confirm.Confirmer) (*LogoutResult, error) {
	ok, err := confirmer.Confirm(ctx, confirm.Prompt{
		Kind:    confirm.KindLogout,
		Title:   "Confirm Logout",
		Message: "Are you sure you want to logout?",
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return &LogoutResult{LoggedOut: false}, nil
	}

	m.Close(s.Token)
	return &LogoutResult{LoggedOut: true, Message: msgLoggedOut}, nil
}

// Close はセッションを破棄する。ローカルのカートと注文履歴も空にする。
func (m *Manager) Close(token string) {
	m.mu.Lock()
	s, ok := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.Cart.Reset()
	s.History.Reset()
	s.Context.SetView(session.ViewHome)

	m.deps.Logger.Info("セッションを終了しました",
		slog.String("user_id", s.Context.UserID().String()),
	)
}

// Count は有効なセッション数を返す。
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep はIdleTimeoutを過ぎたセッションを破棄し、破棄した数を返す。
// 保留中の確認は拒否として解決する。
func (m *Manager) Sweep() int {
	if m.deps.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.deps.IdleTimeout)

	m.mu.Lock()
	var expired []*Session
	for token, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, token)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Gate.DeclinePending()
		s.Cart.Reset()
		s.History.Reset()
	}
	if len(expired) > 0 {
		m.deps.Logger.Info("期限切れのセッションを破棄しました",
			slog.Int("expired_count", len(expired)),
		)
	}
	return len(expired)
}

// Run はctxがキャンセルされるまで定期的にSweepを実行する。
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepEvery
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
