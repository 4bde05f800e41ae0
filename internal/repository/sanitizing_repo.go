package repository

import (
	"context"

	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/security"
)

// SanitizingCartRepo はストアから読んだカート行の表示用文字列からHTMLを除去する。
// 書き込みはそのまま委譲する。
type SanitizingCartRepo struct {
	inner     CartRepository
	sanitizer security.TextSanitizer
}

// NewSanitizingCartRepo はSanitizingCartRepoを生成する。
func NewSanitizingCartRepo(inner CartRepository, sanitizer security.TextSanitizer) *SanitizingCartRepo {
	return &SanitizingCartRepo{inner: inner, sanitizer: sanitizer}
}

// List はカート行を取得し、名前と特徴をサニタイズする。
func (r *SanitizingCartRepo) List(ctx context.Context) ([]model.CartEntry, error) {
	entries, err := r.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i] = r.sanitizeEntry(entries[i])
	}
	return entries, nil
}

// Create はカート行を作成する。戻り値もサニタイズする。
func (r *SanitizingCartRepo) Create(ctx context.Context, entry model.CartEntry) (*model.CartEntry, error) {
	created, err := r.inner.Create(ctx, entry)
	if err != nil || created == nil {
		return created, err
	}
	e := r.sanitizeEntry(*created)
	return &e, nil
}

// Delete はカート行を削除する。
func (r *SanitizingCartRepo) Delete(ctx context.Context, id model.RecordID) error {
	return r.inner.Delete(ctx, id)
}

func (r *SanitizingCartRepo) sanitizeEntry(e model.CartEntry) model.CartEntry {
	e.Name = r.sanitizer.Sanitize(e.Name)
	features := make([]string, 0, len(e.Features))
	for _, f := range e.Features {
		if s := r.sanitizer.Sanitize(f); s != "" {
			features = append(features, s)
		}
	}
	e.Features = features
	return e
}

// SanitizingTransactionRepo はストアから読んだ取引のパッケージ名と容量表記からHTMLを除去する。
type SanitizingTransactionRepo struct {
	inner     TransactionRepository
	sanitizer security.TextSanitizer
}

// NewSanitizingTransactionRepo はSanitizingTransactionRepoを生成する。
func NewSanitizingTransactionRepo(inner TransactionRepository, sanitizer security.TextSanitizer) *SanitizingTransactionRepo {
	return &SanitizingTransactionRepo{inner: inner, sanitizer: sanitizer}
}

// ListByUser は取引を取得してサニタイズする。順序は変えない。
func (r *SanitizingTransactionRepo) ListByUser(ctx context.Context, userID model.RecordID) ([]model.Transaction, error) {
	txs, err := r.inner.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		txs[i] = r.sanitizeTx(txs[i])
	}
	return txs, nil
}

// Create は取引を作成する。戻り値もサニタイズする。
func (r *SanitizingTransactionRepo) Create(ctx context.Context, tx model.Transaction) (*model.Transaction, error) {
	created, err := r.inner.Create(ctx, tx)
	if err != nil || created == nil {
		return created, err
	}
	t := r.sanitizeTx(*created)
	return &t, nil
}

// Delete は取引を削除する。
func (r *SanitizingTransactionRepo) Delete(ctx context.Context, id model.RecordID) error {
	return r.inner.Delete(ctx, id)
}

func (r *SanitizingTransactionRepo) sanitizeTx(tx model.Transaction) model.Transaction {
	tx.PackageName = r.sanitizer.Sanitize(tx.PackageName)
	tx.PackageData = r.sanitizer.Sanitize(tx.PackageData)
	return tx
}
