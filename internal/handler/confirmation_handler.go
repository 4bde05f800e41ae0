package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/datanet/internal/middleware"
	"github.com/hitoshi/datanet/internal/model"
)

// ConfirmationHandler は保留中の確認を取得・解決するHTTPハンドラー。
type ConfirmationHandler struct {
	auth   *AuthHandler
	logger *slog.Logger
}

// NewConfirmationHandler はConfirmationHandlerを生成する。
// ログアウトの承認時にセッションCookieを削除するためAuthHandlerを受け取る。
func NewConfirmationHandler(auth *AuthHandler, logger *slog.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{auth: auth, logger: logger}
}

type resolveRequest struct {
	ID      string `json:"id"`
	Confirm bool   `json:"confirm"`
}

// GetPending は保留中の確認を返す。ない場合は204。
// GET /api/confirmation
func (h *ConfirmationHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	p := s.Gate.Pending()
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Resolve は保留中の確認に判断を返し、操作の結果を返す。
// 操作が続けて別の確認を求めた場合は再び202になる。
// POST /api/confirmation
func (h *ConfirmationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("id is required"))
		return
	}

	prompt, res := s.Gate.Resolve(req.ID, req.Confirm)
	if prompt == nil {
		h.auth.finishLogout(w, res)
	}
	writeOperation(w, h.logger, prompt, res)
}
