// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/datanet/internal/auth"
	"github.com/hitoshi/datanet/internal/confirm"
	"github.com/hitoshi/datanet/internal/middleware"
	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/session"
	"github.com/hitoshi/datanet/internal/storefront"
)

// SessionManager は認証ハンドラーが必要とするセッション管理のインターフェース。
// *storefront.Manager が実装する。
type SessionManager interface {
	Login(ctx context.Context, email, password string) (*storefront.Session, error)
	Signup(ctx context.Context, in auth.SignupInput) (*storefront.Session, error)
	Logout(ctx context.Context, s *storefront.Session, confirmer confirm.Confirmer) (*storefront.LogoutResult, error)
	Get(token string) (*storefront.Session, bool)
	Count() int
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・サインアップ・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	sessions SessionManager
	config   AuthHandlerConfig
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions SessionManager, config AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		config:   config,
		logger:   logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse はパスワードを含まないユーザー情報。
type userResponse struct {
	ID    model.RecordID `json:"id"`
	Name  string         `json:"name"`
	Email string         `json:"email"`
	Phone string         `json:"phone,omitempty"`
}

// sessionResponse はログイン中のユーザーと表示中のビュー。
type sessionResponse struct {
	User userResponse `json:"user"`
	View session.View `json:"view"`
}

func toSessionResponse(s *storefront.Session) sessionResponse {
	u := s.Context.User()
	return sessionResponse{
		User: userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone},
		View: s.Context.View(),
	}
}

// Login はメールアドレスとパスワードでログインし、セッションCookieを設定する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.setSessionCookie(w, s.Token, h.config.SessionMaxAge)
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

// Signup はユーザーを作成してログインする。
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupInput
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.sessions.Signup(r.Context(), req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.setSessionCookie(w, s.Token, h.config.SessionMaxAge)
	writeJSON(w, http.StatusCreated, toSessionResponse(s))
}

// Logout はログアウトの確認を開始する。承認はPOST /api/confirmationで行う。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	prompt, res := s.Gate.Start(func(ctx context.Context) (any, error) {
		return h.sessions.Logout(ctx, s, s.Gate)
	})
	h.finishLogout(w, res)
	writeOperation(w, h.logger, prompt, res)
}

// Me はログイン中のユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

// finishLogout はログアウトが完了した結果であればセッションCookieを削除する。
// レスポンスボディより前に呼ぶこと。
func (h *AuthHandler) finishLogout(w http.ResponseWriter, res *confirm.Result) {
	if res == nil || res.Err != nil {
		return
	}
	if lr, ok := res.Value.(*storefront.LogoutResult); ok && lr.LoggedOut {
		h.setSessionCookie(w, "", -1)
	}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
