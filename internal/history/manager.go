// Package history はセッションユーザーの注文履歴を管理する。
package history

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/hitoshi/datanet/internal/confirm"
	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/repository"
	"github.com/hitoshi/datanet/internal/session"
)

// Manager は注文履歴のスナップショットを保持する。
type Manager struct {
	repo      repository.TransactionRepository
	sess      *session.Context
	confirmer confirm.Confirmer
	logger    *slog.Logger

	mu           sync.RWMutex
	transactions []model.Transaction
}

// NewManager はManagerを生成する。
func NewManager(repo repository.TransactionRepository, sess *session.Context, confirmer confirm.Confirmer, logger *slog.Logger) *Manager {
	return &Manager{
		repo:         repo,
		sess:         sess,
		confirmer:    confirmer,
		logger:       logger,
		transactions: []model.Transaction{},
	}
}

// Transactions は現在の注文履歴のコピーを新しい順で返す。
func (m *Manager) Transactions() []model.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Transaction{}, m.transactions...)
}

// Load はストアから注文履歴を読み直す。
// 失敗時は直前のスナップショットを維持し、ログのみ出力する。
func (m *Manager) Load(ctx context.Context) error {
	txs, err := m.repo.ListByUser(ctx, m.sess.UserID())
	if err != nil {
		m.logger.Error("注文履歴の読み込みに失敗しました",
			slog.String("user_id", m.sess.UserID().String()),
			slog.String("error", err.Error()),
		)
		return model.NewHistoryLoadError(err)
	}
	if txs == nil {
		txs = []model.Transaction{}
	}

	m.mu.Lock()
	m.transactions = txs
	m.mu.Unlock()
	return nil
}

// Delete は確認を求めた上で取引を削除し、履歴を読み直す。
// 拒否された場合は何も書き込まずに(false, nil)を返す。
// 取引はストアから読み直したセッションユーザーの履歴にあるものだけ削除する。
func (m *Manager) Delete(ctx context.Context, id model.RecordID) (bool, error) {
	ok, err := m.confirmer.Confirm(ctx, confirm.Prompt{
		Kind:    confirm.KindDeleteTransaction,
		Title:   "Delete order",
		Message: "Are you sure you want to delete this order? This action cannot be undone.",
		OKText:  "Delete",
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	owned, err := m.repo.ListByUser(ctx, m.sess.UserID())
	if err != nil {
		apiErr := model.NewDeleteTransactionError(err)
		m.sess.Error(apiErr.Message)
		return false, apiErr
	}
	if !slices.ContainsFunc(owned, func(tx model.Transaction) bool { return tx.ID == id }) {
		m.logger.Warn("セッションユーザーのものではない注文の削除を拒否しました",
			slog.String("user_id", m.sess.UserID().String()),
			slog.String("transaction_id", id.String()),
		)
		return false, model.NewTransactionNotFoundError(id)
	}

	if err := m.repo.Delete(ctx, id); err != nil {
		m.logger.Error("注文の削除に失敗しました",
			slog.String("user_id", m.sess.UserID().String()),
			slog.String("transaction_id", id.String()),
			slog.String("error", err.Error()),
		)
		apiErr := model.NewDeleteTransactionError(err)
		m.sess.Error(apiErr.Message)
		return false, apiErr
	}

	m.logger.Info("注文を削除しました",
		slog.String("user_id", m.sess.UserID().String()),
		slog.String("transaction_id", id.String()),
	)
	_ = m.Load(ctx)
	m.sess.Success("Order deleted")
	return true, nil
}

// Reset はローカルのスナップショットを空にする。ログアウト時に使う。
func (m *Manager) Reset() {
	m.mu.Lock()
	m.transactions = []model.Transaction{}
	m.mu.Unlock()
}
