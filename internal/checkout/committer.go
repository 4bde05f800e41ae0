// Package checkout はカートの内容を取引レコードとして確定する。
//
// 取引はカート順に1件ずつ作成し、途中で失敗してもロールバックしない。
// 作成済みの取引は注文履歴に残り、カートはクリアされないため、再実行すると
// 取引が重複し得る。この状態はPartialCommitErrorとして呼び出し側に伝える。
package checkout

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/datanet/internal/cart"
	"github.com/hitoshi/datanet/internal/catalog"
	"github.com/hitoshi/datanet/internal/confirm"
	"github.com/hitoshi/datanet/internal/metrics"
	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/repository"
	"github.com/hitoshi/datanet/internal/session"
)

// State はチェックアウトの状態。
type State string

const (
	StateIdle            State = "idle"
	StateConfirming      State = "confirming"
	StateCommitting      State = "committing"
	StateCompleted       State = "completed"
	StatePartiallyFailed State = "partially_failed"
	StateFailed          State = "failed"
)

// 通知メッセージ。
const (
	msgCartEmpty       = "Cart is empty"
	msgCompleted       = "Order completed successfully!"
	msgClearIncomplete = "Some items could not be removed from your cart"
)

// CartStore はチェックアウトが使うカート操作。
type CartStore interface {
	Entries() []model.CartEntry
	Hydrate(ctx context.Context) error
	Clear(ctx context.Context) error
}

// HistoryLoader は注文履歴の読み直し。
type HistoryLoader interface {
	Load(ctx context.Context) error
}

// Outcome は1回のチェックアウト試行の結果。
type Outcome struct {
	AttemptID string              `json:"attemptId,omitempty"`
	State     State               `json:"state"`
	Declined  bool                `json:"declined,omitempty"`
	Total     int64               `json:"total"`
	Committed []model.Transaction `json:"committed"`
	// ClearFailed は取引は確定したがカートの一部を削除できなかったことを表す。
	ClearFailed bool `json:"clearFailed,omitempty"`
}

// Committer はチェックアウトの状態機械。
type Committer struct {
	repo       repository.TransactionRepository
	cart       CartStore
	history    HistoryLoader
	sess       *session.Context
	confirmer  confirm.Confirmer
	normalizer *catalog.Normalizer
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	now        func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	state   State
}

// NewCommitter はCommitterを生成する。normalizerがnilの場合は既定単位を使う。
func NewCommitter(
	repo repository.TransactionRepository,
	cartStore CartStore,
	history HistoryLoader,
	sess *session.Context,
	confirmer confirm.Confirmer,
	normalizer *catalog.Normalizer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Committer {
	if normalizer == nil {
		normalizer = catalog.NewNormalizer(catalog.DefaultCapacityUnit)
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Committer{
		repo:       repo,
		cart:       cartStore,
		history:    history,
		sess:       sess,
		confirmer:  confirmer,
		normalizer: normalizer,
		metrics:    mc,
		logger:     logger,
		now:        time.Now,
		state:      StateIdle,
	}
}

// State は現在の状態を返す。試行の終了後は常にidle。
func (c *Committer) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Committer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Checkout は現在のカートを確定する。
//
// 空のカートは書き込みなしで拒否する。確認が拒否された場合はDeclinedのOutcomeを返す。
// 1件目の作成に失敗した場合はfailed、2件目以降で失敗した場合はpartially_failedとなり、
// エラーは*model.PartialCommitErrorを返す。実行中の二重呼び出しはCHECKOUT_IN_PROGRESS。
func (c *Committer) Checkout(ctx context.Context) (*Outcome, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, model.NewCheckoutInProgressError()
	}
	defer func() {
		c.setState(StateIdle)
		c.running.Store(false)
	}()

	entries := c.cart.Entries()
	if len(entries) == 0 {
		c.sess.Warn(msgCartEmpty)
		return nil, model.NewCartEmptyError()
	}
	total := cart.Total(entries)

	c.setState(StateConfirming)
	ok, err := c.confirmer.Confirm(ctx, confirm.Prompt{
		Kind:    confirm.KindCheckout,
		Title:   "Confirm Purchase",
		Message: "Are you sure you want to complete this purchase? Total: " + FormatRupiah(total),
		OKText:  "Yes, purchase",
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Outcome{State: StateIdle, Declined: true, Total: total, Committed: []model.Transaction{}}, nil
	}

	c.setState(StateCommitting)
	attemptID := uuid.New().String()
	userID := c.sess.UserID()
	logger := c.logger.With(
		slog.String("attempt_id", attemptID),
		slog.String("user_id", userID.String()),
	)
	logger.Info("チェックアウトを開始します",
		slog.Int("entry_count", len(entries)),
		slog.Int64("total", total),
	)

	committed := make([]model.Transaction, 0, len(entries))
	var last time.Time
	for i, e := range entries {
		createdAt := c.now().UTC()
		if createdAt.Before(last) {
			createdAt = last
		}
		last = createdAt

		tx := model.Transaction{
			UserID:      userID,
			PackageID:   packageIDOf(e),
			PackageName: e.Name,
			PackageData: c.normalizer.Display(e.Speed, e.Data),
			Price:       e.Price,
			Duration:    model.TransactionDuration,
			Status:      model.TransactionStatusCompleted,
			CreatedAt:   createdAt,
		}

		created, err := c.repo.Create(ctx, tx)
		if err != nil {
			return c.fail(ctx, logger, attemptID, total, committed, i, len(entries), err)
		}
		committed = append(committed, *created)
	}

	c.metrics.RecordTransactionsCommitted(len(committed))

	out := &Outcome{AttemptID: attemptID, State: StateCompleted, Total: total, Committed: committed}
	if err := c.cart.Clear(ctx); err != nil {
		// 取引は確定済みのため注文としては成功扱い
		logger.Warn("チェックアウト後のカートクリアに失敗しました",
			slog.String("error", err.Error()),
		)
		out.ClearFailed = true
		c.sess.Warn(msgClearIncomplete)
	}
	_ = c.cart.Hydrate(ctx)
	_ = c.history.Load(ctx)

	c.sess.Success(msgCompleted)
	c.sess.SetView(session.ViewTransactions)
	c.metrics.RecordCheckout(string(StateCompleted))

	logger.Info("チェックアウトが完了しました",
		slog.Int("transaction_count", len(committed)),
	)
	return out, nil
}

// fail は作成失敗時の処理を行う。作成済みの取引は削除しない。
func (c *Committer) fail(
	ctx context.Context,
	logger *slog.Logger,
	attemptID string,
	total int64,
	committed []model.Transaction,
	failedIndex, count int,
	cause error,
) (*Outcome, error) {
	apiErr := model.NewCheckoutFailedError(cause)
	c.sess.Error(apiErr.Message)

	out := &Outcome{AttemptID: attemptID, Total: total, Committed: committed}
	var err error = apiErr

	if len(committed) == 0 {
		out.State = StateFailed
		logger.Error("チェックアウトに失敗しました",
			slog.Int("failed_index", failedIndex),
			slog.String("error", cause.Error()),
		)
	} else {
		out.State = StatePartiallyFailed
		err = &model.PartialCommitError{
			Committed:   committed,
			FailedIndex: failedIndex,
			Total:       count,
			Err:         apiErr,
		}
		c.metrics.RecordTransactionsCommitted(len(committed))
		logger.Error("チェックアウトが途中で失敗しました。作成済みの取引は残ります",
			slog.Bool("partial_commit", true),
			slog.Int("committed", len(committed)),
			slog.Int("failed_index", failedIndex),
			slog.Int("entry_count", count),
			slog.String("error", cause.Error()),
		)
	}
	c.metrics.RecordCheckout(string(out.State))

	// 作成済みの取引を表示するため履歴だけ読み直す
	_ = c.history.Load(ctx)
	return out, err
}

// packageIDOf はカート行の元パッケージIDを返す。古い行でpackageIdが無い場合は行IDを使う。
func packageIDOf(e model.CartEntry) model.RecordID {
	if e.PackageID != "" {
		return e.PackageID
	}
	return e.ID
}
