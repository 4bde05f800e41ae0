package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/datanet/internal/confirm"
	"github.com/hitoshi/datanet/internal/middleware"
	"github.com/hitoshi/datanet/internal/model"
)

// maxRequestBytes はリクエストボディの上限。
const maxRequestBytes = 64 << 10

// 確認を伴う操作のレスポンス状態。
const (
	statusConfirmationRequired = "confirmation_required"
	statusDone                 = "done"
)

// operationResponse は確認を伴う操作のレスポンス。
// 確認待ちの場合はConfirmation、完了した場合はResultを持つ。
type operationResponse struct {
	Status       string          `json:"status"`
	Confirmation *confirm.Prompt `json:"confirmation,omitempty"`
	Result       any             `json:"result,omitempty"`
}

// errInvalidRequest はリクエストボディが解析できない場合のエラー。
func errInvalidRequest() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "Invalid request body",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はボディをvにデコードする。失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, errInvalidRequest())
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		var partial *model.PartialCommitError
		if errors.As(err, &partial) {
			w.Header().Set("X-Partial-Commit", "true")
		}
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	logger.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, "INVALID_REQUEST":
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodePackageNotFound,
		model.ErrCodeCartEntryNotFound,
		model.ErrCodeTransactionNotFound,
		model.ErrCodeConfirmationNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailAlreadyRegistered, model.ErrCodeCheckoutInProgress, model.ErrCodeOperationInFlight:
		return http.StatusConflict
	case model.ErrCodeCartEmpty:
		return http.StatusUnprocessableEntity
	case model.ErrCodeCatalogUnavailable,
		model.ErrCodeCartLoadFailed,
		model.ErrCodeAddToCartFailed,
		model.ErrCodeRemoveFromCartFailed,
		model.ErrCodeCheckoutFailed,
		model.ErrCodeHistoryLoadFailed,
		model.ErrCodeDeleteTransactionFail,
		model.ErrCodeLoginFailed,
		model.ErrCodeSignupFailed:
		// レコードストアとの通信失敗
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeOperation はGate.Start/Resolveの戻り値をレスポンスにする。
// 確認待ちなら202、完了なら200、操作がエラーで終わった場合はエラーレスポンス。
func writeOperation(w http.ResponseWriter, logger *slog.Logger, prompt *confirm.Prompt, res *confirm.Result) {
	if prompt != nil {
		writeJSON(w, http.StatusAccepted, operationResponse{
			Status:       statusConfirmationRequired,
			Confirmation: prompt,
		})
		return
	}
	if res.Err != nil {
		handleServiceError(w, logger, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, operationResponse{
		Status: statusDone,
		Result: res.Value,
	})
}
