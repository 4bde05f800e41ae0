package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/storeclient"
)

// RemoteCartRepo はレコードストアのcartコレクションを扱うリポジトリ。
type RemoteCartRepo struct {
	store RecordStore
}

// NewRemoteCartRepo はRemoteCartRepoを生成する。
func NewRemoteCartRepo(store RecordStore) *RemoteCartRepo {
	return &RemoteCartRepo{store: store}
}

// List はカートコレクション全体を取得する。
func (r *RemoteCartRepo) List(ctx context.Context) ([]model.CartEntry, error) {
	var entries []model.CartEntry
	if err := r.store.List(ctx, CollectionCart, storeclient.Query{}, &entries); err != nil {
		return nil, fmt.Errorf("failed to list cart: %w", err)
	}
	return entries, nil
}

// Create はカート行を作成する。
func (r *RemoteCartRepo) Create(ctx context.Context, entry model.CartEntry) (*model.CartEntry, error) {
	entry.ID = ""
	var created model.CartEntry
	if err := r.store.Create(ctx, CollectionCart, entry, &created); err != nil {
		return nil, fmt.Errorf("failed to create cart entry: %w", err)
	}
	return &created, nil
}

// Delete は指定IDのカート行を削除する。
func (r *RemoteCartRepo) Delete(ctx context.Context, id model.RecordID) error {
	if err := r.store.Delete(ctx, CollectionCart, id); err != nil {
		return fmt.Errorf("failed to delete cart entry %s: %w", id, err)
	}
	return nil
}
