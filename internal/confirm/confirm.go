// Package confirm はユーザーの確認を待つ中断点を提供する。
//
// 破壊的な操作（カート行の削除、チェックアウト、注文削除、ログアウト）は
// 実行前にConfirmerへ問い合わせ、拒否された場合は何も書き込まずに終了する。
package confirm

import (
	"context"
	"time"
)

// 確認の種類。
const (
	KindRemoveCartItem    = "remove_cart_item"
	KindCheckout          = "checkout"
	KindDeleteTransaction = "delete_transaction"
	KindLogout            = "logout"
)

// Prompt はユーザーに提示する確認内容。
type Prompt struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	OKText    string    `json:"okText,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Confirmer はユーザーの判断を待つ。trueなら承認、falseなら拒否。
// 判断できなかった場合はエラーを返し、呼び出し側は拒否と同様に何も書き込まない。
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// Func は関数をConfirmerとして使うためのアダプタ。
type Func func(ctx context.Context, p Prompt) (bool, error)

// Confirm はConfirmerを実装する。
func (f Func) Confirm(ctx context.Context, p Prompt) (bool, error) {
	return f(ctx, p)
}

// Always は常に同じ判断を返すConfirmer。CLIの非対話実行やテストで使う。
func Always(decision bool) Confirmer {
	return Func(func(context.Context, Prompt) (bool, error) {
		return decision, nil
	})
}
