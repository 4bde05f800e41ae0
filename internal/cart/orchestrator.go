// Package cart はセッションユーザーのカートを管理する。
// 書き込みに成功した後は必ずストアから読み直し、スナップショットはストアの内容だけを反映する。
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/datanet/internal/confirm"
	"github.com/hitoshi/datanet/internal/metrics"
	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/repository"
	"github.com/hitoshi/datanet/internal/session"
)

// defaultMaxConcurrent はClearの同時削除数の既定値。
const defaultMaxConcurrent = 8

// ClearError はカートの一括削除で1件以上の削除に失敗したことを表す。
// 失敗しても他の削除は中断しない。
type ClearError struct {
	Attempted int
	Failed    []model.RecordID
	Errs      []error
}

// Error はerrorインターフェースを実装する。
func (e *ClearError) Error() string {
	return fmt.Sprintf("failed to clear cart: %d of %d deletes failed", len(e.Failed), e.Attempted)
}

// Unwrap は個々の削除エラーを返す。
func (e *ClearError) Unwrap() []error {
	return e.Errs
}

// Orchestrator はカートの読み込み・追加・削除・一括削除を行う。
type Orchestrator struct {
	repo          repository.CartRepository
	sess          *session.Context
	confirmer     confirm.Confirmer
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	maxConcurrent int
	now           func() time.Time

	mu      sync.RWMutex
	entries []model.CartEntry
}

// NewOrchestrator はOrchestratorを生成する。maxConcurrentが0以下の場合は既定値を使う。
func NewOrchestrator(
	repo repository.CartRepository,
	sess *session.Context,
	confirmer confirm.Confirmer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrent int,
) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Orchestrator{
		repo:          repo,
		sess:          sess,
		confirmer:     confirmer,
		metrics:       mc,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		now:           time.Now,
		entries:       []model.CartEntry{},
	}
}

// Entries は現在のカートのコピーを返す。
func (o *Orchestrator) Entries() []model.CartEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return cloneEntries(o.entries)
}

// Hydrate はストアからカートを読み直す。
// ストアはカート全体を返すため、セッションユーザーの行だけを残す。
// 失敗時は直前のスナップショットを維持し、通知は出さない。
func (o *Orchestrator) Hydrate(ctx context.Context) error {
	entries, err := o.userEntries(ctx)
	if err != nil {
		o.logger.Error("カートの読み込みに失敗しました",
			slog.String("user_id", o.sess.UserID().String()),
			slog.String("error", err.Error()),
		)
		o.metrics.RecordCartOperation("hydrate", "failure")
		return model.NewCartLoadError(err)
	}

	o.mu.Lock()
	o.entries = entries
	o.mu.Unlock()

	o.metrics.RecordCartOperation("hydrate", "success")
	return nil
}

// Add はパッケージをカートに追加し、カートを読み直す。
// 同じパッケージの重複追加は許容する。失敗時はスナップショットを変更しない。
func (o *Orchestrator) Add(ctx context.Context, pkg model.Package) error {
	entry := model.NewCartEntry(o.sess.UserID(), pkg, o.now().UTC())

	created, err := o.repo.Create(ctx, entry)
	if err != nil {
		o.logger.Error("カートへの追加に失敗しました",
			slog.String("user_id", o.sess.UserID().String()),
			slog.String("package_id", pkg.ID.String()),
			slog.String("error", err.Error()),
		)
		o.metrics.RecordCartOperation("add", "failure")
		apiErr := model.NewAddToCartError(err)
		o.sess.Error(apiErr.Message)
		return apiErr
	}

	o.logger.Info("カートに追加しました",
		slog.String("user_id", o.sess.UserID().String()),
		slog.String("entry_id", created.ID.String()),
		slog.String("package_id", pkg.ID.String()),
	)
	o.metrics.RecordCartOperation("add", "success")

	// 読み直しの失敗は追加自体の失敗ではない
	_ = o.Hydrate(ctx)
	o.sess.Success(fmt.Sprintf("%s added to cart!", pkg.Name))
	return nil
}

// Remove は確認を求めた上でカート行を削除し、カートを読み直す。
// 拒否された場合は何も書き込まずに(false, nil)を返す。
// セッションユーザーの行でなければ削除せずCART_ENTRY_NOT_FOUNDを返す。
func (o *Orchestrator) Remove(ctx context.Context, entryID model.RecordID) (bool, error) {
	ok, err := o.confirmer.Confirm(ctx, confirm.Prompt{
		Kind:    confirm.KindRemoveCartItem,
		Title:   "Cancel order",
		Message: "Are you sure you want to remove this item from your cart?",
		OKText:  "Yes, cancel",
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	// 他ユーザーの行は存在しないものとして扱う
	owned, err := o.userEntries(ctx)
	if err != nil {
		o.metrics.RecordCartOperation("remove", "failure")
		apiErr := model.NewRemoveFromCartError(err)
		o.sess.Error(apiErr.Message)
		return false, apiErr
	}
	if !containsEntry(owned, entryID) {
		o.logger.Warn("セッションユーザーのものではないカート行の削除を拒否しました",
			slog.String("user_id", o.sess.UserID().String()),
			slog.String("entry_id", entryID.String()),
		)
		o.metrics.RecordCartOperation("remove", "not_found")
		return false, model.NewCartEntryNotFoundError(entryID)
	}

	if err := o.repo.Delete(ctx, entryID); err != nil {
		o.logger.Error("カート行の削除に失敗しました",
			slog.String("user_id", o.sess.UserID().String()),
			slog.String("entry_id", entryID.String()),
			slog.String("error", err.Error()),
		)
		o.metrics.RecordCartOperation("remove", "failure")
		apiErr := model.NewRemoveFromCartError(err)
		o.sess.Error(apiErr.Message)
		return false, apiErr
	}

	o.metrics.RecordCartOperation("remove", "success")
	_ = o.Hydrate(ctx)
	o.sess.Success("Item removed from cart")
	return true, nil
}

// Clear はセッションユーザーのカート行をストアから読み、全件を並行して削除する。
// 削除の失敗は他の削除を止めず、失敗があればClearErrorにまとめて返す。
// スナップショットは更新しないため、呼び出し側でHydrateすること。
func (o *Orchestrator) Clear(ctx context.Context) error {
	entries, err := o.userEntries(ctx)
	if err != nil {
		o.metrics.RecordCartOperation("clear", "failure")
		return model.NewCartLoadError(err)
	}

	var (
		mu     sync.Mutex
		failed []model.RecordID
		errs   []error
	)

	// 各削除はエラーを返さず結果を集約する。1件の失敗で他をキャンセルさせないため
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)
	for _, e := range entries {
		g.Go(func() error {
			if err := o.repo.Delete(gctx, e.ID); err != nil {
				mu.Lock()
				failed = append(failed, e.ID)
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		o.logger.Warn("カートの一括削除で一部の削除に失敗しました",
			slog.String("user_id", o.sess.UserID().String()),
			slog.Int("attempted", len(entries)),
			slog.Int("failed", len(failed)),
		)
		o.metrics.RecordCartOperation("clear", "partial")
		return &ClearError{Attempted: len(entries), Failed: failed, Errs: errs}
	}

	o.metrics.RecordCartOperation("clear", "success")
	return nil
}

// Reset はローカルのスナップショットを空にする。ログアウト時に使う。
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.entries = []model.CartEntry{}
	o.mu.Unlock()
}

// Total はカート行の価格合計を返す。
func Total(entries []model.CartEntry) int64 {
	var sum int64
	for _, e := range entries {
		sum += e.Price
	}
	return sum
}

func (o *Orchestrator) userEntries(ctx context.Context) ([]model.CartEntry, error) {
	all, err := o.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	uid := o.sess.UserID()
	out := make([]model.CartEntry, 0, len(all))
	for _, e := range all {
		if e.UserID == uid {
			out = append(out, e)
		}
	}
	return out, nil
}

func containsEntry(entries []model.CartEntry, id model.RecordID) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

func cloneEntries(entries []model.CartEntry) []model.CartEntry {
	out := make([]model.CartEntry, len(entries))
	for i, e := range entries {
		features := make([]string, len(e.Features))
		copy(features, e.Features)
		e.Features = features
		out[i] = e
	}
	return out
}
