package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/datanet/internal/cart"
	"github.com/hitoshi/datanet/internal/checkout"
	"github.com/hitoshi/datanet/internal/middleware"
	"github.com/hitoshi/datanet/internal/model"
)

// CartHandler はカートとチェックアウトのHTTPハンドラー。
type CartHandler struct {
	logger *slog.Logger
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(logger *slog.Logger) *CartHandler {
	return &CartHandler{logger: logger}
}

type cartResponse struct {
	Entries      []model.CartEntry `json:"entries"`
	Total        int64             `json:"total"`
	TotalDisplay string            `json:"totalDisplay"`
}

type addToCartRequest struct {
	PackageID model.RecordID `json:"packageId"`
}

// GetCart はセッションユーザーのカートと合計金額を返す。
// GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if r.URL.Query().Get("refresh") == "1" {
		if err := s.Cart.Hydrate(r.Context()); err != nil {
			handleServiceError(w, h.logger, err)
			return
		}
	}

	entries := s.Cart.Entries()
	total := cart.Total(entries)
	writeJSON(w, http.StatusOK, cartResponse{
		Entries:      entries,
		Total:        total,
		TotalDisplay: checkout.FormatRupiah(total),
	})
}

// AddToCart はカタログのパッケージをカートに追加する。
// POST /api/cart
func (h *CartHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req addToCartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PackageID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("packageId is required"))
		return
	}

	pkg, found := s.Catalog.Find(req.PackageID)
	if !found {
		handleServiceError(w, h.logger, model.NewPackageNotFoundError(req.PackageID))
		return
	}

	if err := s.Cart.Add(r.Context(), pkg); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	entries := s.Cart.Entries()
	total := cart.Total(entries)
	writeJSON(w, http.StatusCreated, cartResponse{
		Entries:      entries,
		Total:        total,
		TotalDisplay: checkout.FormatRupiah(total),
	})
}

// RemoveFromCart はカート行の削除の確認を開始する。
// DELETE /api/cart/{id}
func (h *CartHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	entryID := model.RecordID(chi.URLParam(r, "id"))
	prompt, res := s.Gate.Start(func(ctx context.Context) (any, error) {
		removed, err := s.Cart.Remove(ctx, entryID)
		if err != nil {
			return nil, err
		}
		return removedResult{Removed: removed}, nil
	})
	writeOperation(w, h.logger, prompt, res)
}

// Checkout はチェックアウトを開始する。確認が必要なため通常は202を返す。
// POST /api/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	prompt, res := s.Gate.Start(func(ctx context.Context) (any, error) {
		return s.Checkout.Checkout(ctx)
	})
	writeOperation(w, h.logger, prompt, res)
}

// removedResult は削除操作の結果。拒否された場合はRemovedがfalse。
type removedResult struct {
	Removed bool `json:"removed"`
}
