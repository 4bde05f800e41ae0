package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/storeclient"
)

// RemoteTransactionRepo はレコードストアのtransactionsコレクションを扱うリポジトリ。
type RemoteTransactionRepo struct {
	store RecordStore
}

// NewRemoteTransactionRepo はRemoteTransactionRepoを生成する。
func NewRemoteTransactionRepo(store RecordStore) *RemoteTransactionRepo {
	return &RemoteTransactionRepo{store: store}
}

// ListByUser は指定ユーザーの取引を新しい順に取得する。
// 並び順はストア側のソートに依存する。
func (r *RemoteTransactionRepo) ListByUser(ctx context.Context, userID model.RecordID) ([]model.Transaction, error) {
	var txs []model.Transaction
	q := storeclient.Query{
		Filters: map[string]string{"userId": userID.String()},
		Sort:    "createdAt",
		Order:   "desc",
	}
	if err := r.store.List(ctx, CollectionTransactions, q, &txs); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// Create は取引を作成する。
func (r *RemoteTransactionRepo) Create(ctx context.Context, tx model.Transaction) (*model.Transaction, error) {
	tx.ID = ""
	var created model.Transaction
	if err := r.store.Create(ctx, CollectionTransactions, tx, &created); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return &created, nil
}

// Delete は指定IDの取引を削除する。
func (r *RemoteTransactionRepo) Delete(ctx context.Context, id model.RecordID) error {
	if err := r.store.Delete(ctx, CollectionTransactions, id); err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	return nil
}
