// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // ユーザー向けメッセージ
	Category string // カテゴリ: validation, conflict, auth, catalog, cart, checkout, history, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因（ログ用。レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeCatalogUnavailable     = "CATALOG_UNAVAILABLE"
	ErrCodePackageNotFound        = "PACKAGE_NOT_FOUND"
	ErrCodeCartLoadFailed         = "CART_LOAD_FAILED"
	ErrCodeAddToCartFailed        = "ADD_TO_CART_FAILED"
	ErrCodeRemoveFromCartFailed   = "REMOVE_FROM_CART_FAILED"
	ErrCodeCartEntryNotFound      = "CART_ENTRY_NOT_FOUND"
	ErrCodeCartEmpty              = "CART_EMPTY"
	ErrCodeCheckoutFailed         = "CHECKOUT_FAILED"
	ErrCodeCheckoutInProgress     = "CHECKOUT_IN_PROGRESS"
	ErrCodeHistoryLoadFailed      = "HISTORY_LOAD_FAILED"
	ErrCodeDeleteTransactionFail  = "DELETE_TRANSACTION_FAILED"
	ErrCodeTransactionNotFound    = "TRANSACTION_NOT_FOUND"
	ErrCodeOperationInFlight      = "OPERATION_IN_FLIGHT"
	ErrCodeConfirmationNotFound   = "CONFIRMATION_NOT_FOUND"
	ErrCodeLoginFailed            = "LOGIN_FAILED"
	ErrCodeSignupFailed           = "SIGNUP_FAILED"
)

// HasCode はエラーチェーン中に指定コードのAPIErrorが含まれるかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewValidationError は必須入力不足などの入力エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewEmailAlreadyRegisteredError はサインアップ時のメールアドレス重複エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "Email already registered",
		Category: "conflict",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン照合失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewUnauthorizedError は未ログインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Please sign in first",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewLoginFailedError はログイン処理中の通信失敗エラーを生成する。
func NewLoginFailedError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  "Login failed. Please try again.",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewSignupFailedError はサインアップ処理中の通信失敗エラーを生成する。
func NewSignupFailedError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeSignupFailed,
		Message:  "Sign up failed",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewCatalogUnavailableError はカタログ取得失敗エラーを生成する。
func NewCatalogUnavailableError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeCatalogUnavailable,
		Message:  "Failed to load packages",
		Category: "catalog",
		Action:   "ページを再読み込みしてください。",
		Err:      err,
	}
}

// NewPackageNotFoundError はカタログに存在しないパッケージ指定のエラーを生成する。
func NewPackageNotFoundError(id RecordID) *APIError {
	return &APIError{
		Code:     ErrCodePackageNotFound,
		Message:  fmt.Sprintf("Package not found: %s", id),
		Category: "catalog",
		Action:   "カタログを再読み込みしてください。",
	}
}

// NewCartLoadError はカート取得失敗エラーを生成する。
func NewCartLoadError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeCartLoadFailed,
		Message:  "Failed to load cart",
		Category: "cart",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewAddToCartError はカート追加失敗エラーを生成する。
func NewAddToCartError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeAddToCartFailed,
		Message:  "Failed to add to cart",
		Category: "cart",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewRemoveFromCartError はカート削除失敗エラーを生成する。
func NewRemoveFromCartError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeRemoveFromCartFailed,
		Message:  "Failed to remove item",
		Category: "cart",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewCartEntryNotFoundError はセッションユーザーのカートに存在しない行の指定エラーを生成する。
// 他ユーザーの行も存在しないものとして扱う。
func NewCartEntryNotFoundError(id RecordID) *APIError {
	return &APIError{
		Code:     ErrCodeCartEntryNotFound,
		Message:  fmt.Sprintf("Cart item not found: %s", id),
		Category: "cart",
		Action:   "カートを再読み込みしてください。",
	}
}

// NewCartEmptyError は空カートでのチェックアウト拒否エラーを生成する。
func NewCartEmptyError() *APIError {
	return &APIError{
		Code:     ErrCodeCartEmpty,
		Message:  "Cart is empty",
		Category: "validation",
		Action:   "パッケージをカートに追加してください。",
	}
}

// NewCheckoutFailedError はチェックアウト失敗エラーを生成する。
// 部分コミットかどうかに関わらずユーザー向けメッセージは共通。
func NewCheckoutFailedError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeCheckoutFailed,
		Message:  "Checkout failed. Please try again.",
		Category: "checkout",
		Action:   "注文履歴を確認してから再度お試しください。",
		Err:      err,
	}
}

// NewCheckoutInProgressError はチェックアウトの多重実行エラーを生成する。
func NewCheckoutInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeCheckoutInProgress,
		Message:  "Checkout is already in progress",
		Category: "checkout",
		Action:   "処理の完了を待ってください。",
	}
}

// NewHistoryLoadError は注文履歴取得失敗エラーを生成する。
func NewHistoryLoadError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeHistoryLoadFailed,
		Message:  "Failed to load transactions",
		Category: "history",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewDeleteTransactionError は注文削除失敗エラーを生成する。
func NewDeleteTransactionError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeDeleteTransactionFail,
		Message:  "Failed to delete order",
		Category: "history",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewTransactionNotFoundError はセッションユーザーの注文履歴に存在しない取引の指定エラーを生成する。
func NewTransactionNotFoundError(id RecordID) *APIError {
	return &APIError{
		Code:     ErrCodeTransactionNotFound,
		Message:  fmt.Sprintf("Order not found: %s", id),
		Category: "history",
		Action:   "注文履歴を再読み込みしてください。",
	}
}

// NewOperationInFlightError は確認待ちの操作が既にある場合のエラーを生成する。
func NewOperationInFlightError() *APIError {
	return &APIError{
		Code:     ErrCodeOperationInFlight,
		Message:  "Another operation is waiting for confirmation",
		Category: "system",
		Action:   "表示中の確認ダイアログに応答してください。",
	}
}

// NewConfirmationNotFoundError は確認IDが見つからない場合のエラーを生成する。
func NewConfirmationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeConfirmationNotFound,
		Message:  fmt.Sprintf("Confirmation not found: %s", id),
		Category: "system",
		Action:   "操作をやり直してください。",
	}
}

// PartialCommitError はチェックアウト中に1件以上の取引が作成された後で失敗したことを表す。
// ロールバックは行われず、カートもクリアされない。再実行すると取引が重複し得る。
type PartialCommitError struct {
	Committed   []Transaction // 失敗前に作成済みの取引
	FailedIndex int           // 失敗したカート行の位置（0始まり）
	Total       int           // チェックアウト対象のカート行数
	Err         error
}

// Error はerrorインターフェースを実装する。
func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("partial commit: %d of %d transactions created before failure at entry %d: %v",
		len(e.Committed), e.Total, e.FailedIndex+1, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *PartialCommitError) Unwrap() error {
	return e.Err
}
