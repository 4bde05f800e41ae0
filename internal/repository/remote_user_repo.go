package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/storeclient"
)

// RemoteUserRepo はレコードストアのusersコレクションを扱うリポジトリ。
type RemoteUserRepo struct {
	store RecordStore
}

// NewRemoteUserRepo はRemoteUserRepoを生成する。
func NewRemoteUserRepo(store RecordStore) *RemoteUserRepo {
	return &RemoteUserRepo{store: store}
}

// FindByCredentials はメールアドレスとパスワードの一致するユーザーを返す。
// 見つからない場合はnilを返す。
func (r *RemoteUserRepo) FindByCredentials(ctx context.Context, email, password string) (*model.User, error) {
	return r.findOne(ctx, map[string]string{"email": email, "password": password})
}

// FindByEmail は指定メールアドレスのユーザーを返す。見つからない場合はnilを返す。
func (r *RemoteUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, map[string]string{"email": email})
}

// Create はユーザーを作成する。
func (r *RemoteUserRepo) Create(ctx context.Context, user model.User) (*model.User, error) {
	user.ID = ""
	var created model.User
	if err := r.store.Create(ctx, CollectionUsers, user, &created); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &created, nil
}

func (r *RemoteUserRepo) findOne(ctx context.Context, filters map[string]string) (*model.User, error) {
	var users []model.User
	if err := r.store.List(ctx, CollectionUsers, storeclient.Query{Filters: filters}, &users); err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}
