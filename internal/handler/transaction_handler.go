package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/datanet/internal/middleware"
	"github.com/hitoshi/datanet/internal/model"
)

// TransactionHandler は注文履歴のHTTPハンドラー。
type TransactionHandler struct {
	logger *slog.Logger
}

// NewTransactionHandler はTransactionHandlerを生成する。
func NewTransactionHandler(logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{logger: logger}
}

// ListTransactions は注文履歴を新しい順で返す。?refresh=1 でストアから読み直す。
// GET /api/transactions
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if r.URL.Query().Get("refresh") == "1" {
		if err := s.History.Load(r.Context()); err != nil {
			handleServiceError(w, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.History.Transactions())
}

// DeleteTransaction は注文削除の確認を開始する。
// DELETE /api/transactions/{id}
func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	txID := model.RecordID(chi.URLParam(r, "id"))
	prompt, res := s.Gate.Start(func(ctx context.Context) (any, error) {
		deleted, err := s.History.Delete(ctx, txID)
		if err != nil {
			return nil, err
		}
		return deletedResult{Deleted: deleted}, nil
	})
	writeOperation(w, h.logger, prompt, res)
}

type deletedResult struct {
	Deleted bool `json:"deleted"`
}
