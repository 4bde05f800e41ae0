package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/storeclient"
)

// RemotePackageRepo はレコードストアのpackagesコレクションを読むリポジトリ。
type RemotePackageRepo struct {
	store RecordStore
}

// NewRemotePackageRepo はRemotePackageRepoを生成する。
func NewRemotePackageRepo(store RecordStore) *RemotePackageRepo {
	return &RemotePackageRepo{store: store}
}

// List は全パッケージを取得する。
func (r *RemotePackageRepo) List(ctx context.Context) ([]model.Package, error) {
	var pkgs []model.Package
	if err := r.store.List(ctx, CollectionPackages, storeclient.Query{}, &pkgs); err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	return pkgs, nil
}
