// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/storefront"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "datanet_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey = contextKey("session")
	userIDContextKey  = contextKey("user_id")
)

// SessionFinder はトークンからセッションを引くインターフェース。
// *storefront.Manager が実装する。
type SessionFinder interface {
	Get(token string) (*storefront.Session, bool)
}

// NewSessionMiddleware はHTTP Only Cookieのトークンからセッションを引き、
// リクエストコンテキストに注入するミドルウェアを返す。
// セッションが無いリクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(finder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			s, ok := finder.Get(cookie.Value)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithSession(r.Context(), s)
			if s.Context != nil {
				noteUserID(ctx, s.Context.UserID().String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*storefront.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*storefront.Session)
	return s, ok && s != nil
}

// ContextWithSession はコンテキストにセッションとそのユーザーIDを注入する。
func ContextWithSession(ctx context.Context, s *storefront.Session) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, s)
	if s.Context != nil {
		ctx = context.WithValue(ctx, userIDContextKey, s.Context.UserID().String())
	}
	return ctx
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// セッションを伴わないテスト用。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
