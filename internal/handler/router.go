package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/datanet/internal/catalog"
	"github.com/hitoshi/datanet/internal/metrics"
	"github.com/hitoshi/datanet/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Sessions          SessionManager
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig

	AuthConfig AuthHandlerConfig
	Normalizer *catalog.Normalizer

	// Gatherer がnilの場合は/metricsを公開しない
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → SecurityHeaders → CORS → CSRF
//	→ (認証が必要なルートのみ) Session → RateLimit(General)
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRF, deps.Logger))

	authHandler := NewAuthHandler(deps.Sessions, deps.AuthConfig, deps.Logger)
	catalogHandler := NewCatalogHandler(deps.Normalizer, deps.Logger)
	cartHandler := NewCartHandler(deps.Logger)
	txHandler := NewTransactionHandler(deps.Logger)
	confirmHandler := NewConfirmationHandler(authHandler, deps.Logger)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: deps.Sessions.Count()})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	r.Post("/api/auth/login", authHandler.Login)
	r.Post("/api/auth/signup", authHandler.Signup)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Sessions))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/auth/me", authHandler.Me)

		r.Get("/api/packages", catalogHandler.ListPackages)

		r.Route("/api/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/", cartHandler.AddToCart)
			r.Delete("/{id}", cartHandler.RemoveFromCart)
		})

		// POST /api/checkout - チェックアウト専用レート制限を追加
		r.With(deps.RateLimiter.CheckoutMiddleware()).Post("/api/checkout", cartHandler.Checkout)

		r.Route("/api/transactions", func(r chi.Router) {
			r.Get("/", txHandler.ListTransactions)
			r.Delete("/{id}", txHandler.DeleteTransaction)
		})

		r.Get("/api/confirmation", confirmHandler.GetPending)
		r.Post("/api/confirmation", confirmHandler.Resolve)

		r.Get("/api/notices", DrainNotices)
		r.Get("/api/view", GetView)
		r.Put("/api/view", SetView)
	})

	return r
}
