// Package repository はレコードストア上のコレクションへのアクセスを定義する。
// アプリケーション側はリモートのストアをHTTPで扱い、開発用ストアはメモリまたはPostgreSQLに保存する。
package repository

import (
	"context"

	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/storeclient"
)

// コレクション名。
const (
	CollectionPackages     = "packages"
	CollectionCart         = "cart"
	CollectionTransactions = "transactions"
	CollectionUsers        = "users"
)

// RecordStore はコレクション単位のHTTP操作のインターフェース。
// *storeclient.Client が実装する。
type RecordStore interface {
	List(ctx context.Context, collection string, q storeclient.Query, out any) error
	Create(ctx context.Context, collection string, in, out any) error
	Delete(ctx context.Context, collection string, id model.RecordID) error
}

// PackageRepository はカタログの読み取りインターフェース。
type PackageRepository interface {
	// List は全パッケージをストアの返却順で取得する。
	List(ctx context.Context) ([]model.Package, error)
}

// CartRepository はカート行の永続化インターフェース。
type CartRepository interface {
	// List はカートコレクション全体を取得する。ユーザーによる絞り込みは行わない。
	List(ctx context.Context) ([]model.CartEntry, error)

	// Create はカート行を作成し、ストアが採番したIDを含む行を返す。
	Create(ctx context.Context, entry model.CartEntry) (*model.CartEntry, error)

	// Delete は指定IDのカート行を削除する。
	Delete(ctx context.Context, id model.RecordID) error
}

// TransactionRepository は取引レコードの永続化インターフェース。
type TransactionRepository interface {
	// ListByUser は指定ユーザーの取引をcreatedAt降順で取得する。
	ListByUser(ctx context.Context, userID model.RecordID) ([]model.Transaction, error)

	// Create は取引を作成し、ストアが採番したIDを含むレコードを返す。
	Create(ctx context.Context, tx model.Transaction) (*model.Transaction, error)

	// Delete は指定IDの取引を削除する。
	Delete(ctx context.Context, id model.RecordID) error
}

// UserRepository はユーザーレコードの永続化インターフェース。
type UserRepository interface {
	// FindByCredentials はメールアドレスとパスワードが一致するユーザーを返す。見つからない場合はnilを返す。
	FindByCredentials(ctx context.Context, email, password string) (*model.User, error)

	// FindByEmail は指定メールアドレスのユーザーを返す。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、ストアが採番したIDを含むレコードを返す。
	Create(ctx context.Context, user model.User) (*model.User, error)
}

// Record は開発用ストアが保持する1件のフラットなJSONレコード。
type Record map[string]any

// RecordRepository は開発用ストアのバックエンドインターフェース。
// コレクションは初回の書き込みで暗黙に作成される。
type RecordRepository interface {
	// List はコレクションのレコードを挿入順で返す。filtersは値の文字列表現による完全一致。
	List(ctx context.Context, collection string, filters map[string]string) ([]Record, error)

	// Get は指定IDのレコードを返す。見つからない場合はnilを返す。
	Get(ctx context.Context, collection, id string) (Record, error)

	// Create はレコードを保存する。idが無い場合は採番して付与する。
	Create(ctx context.Context, collection string, rec Record) (Record, error)

	// Delete は指定IDのレコードを削除する。存在しなかった場合はfalseを返す。
	Delete(ctx context.Context, collection, id string) (bool, error)
}
