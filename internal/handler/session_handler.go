package handler

import (
	"net/http"

	"github.com/hitoshi/datanet/internal/middleware"
	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/session"
)

type viewRequest struct {
	View string `json:"view"`
}

type viewResponse struct {
	View session.View `json:"view"`
}

// DrainNotices は未取得の通知を古い順に返し、キューを空にする。
// GET /api/notices
func DrainNotices(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, s.Context.DrainNotices())
}

// GetView は現在のビューを返す。
// GET /api/view
func GetView(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{View: s.Context.View()})
}

// SetView はビューを切り替える。
// PUT /api/view
func SetView(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req viewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := session.ParseView(req.View)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(err.Error()))
		return
	}
	s.Context.SetView(v)
	writeJSON(w, http.StatusOK, viewResponse{View: v})
}
