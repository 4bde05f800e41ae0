package confirm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/datanet/internal/model"
)

// ErrNoOperation はGate.Start経由でない呼び出しから確認を求められたことを表す。
var ErrNoOperation = errors.New("confirmation requested outside of a gated operation")

// Result はゲート経由で実行した操作の結果。
type Result struct {
	Value any
	Err   error
}

// Op はゲート経由で実行する操作。ctxをそのままConfirmに渡すこと。
type Op func(ctx context.Context) (any, error)

type opKey struct{}

// operation は実行中の操作1件の状態。
type operation struct {
	prompt   *Prompt
	promptCh chan Prompt
	decision chan bool
	done     chan Result
}

// Gate はHTTPのような要求/応答型のUIで確認を扱うためのConfirmer。
//
// Startで操作を別ゴルーチンで実行し、操作が確認を求めたらその時点でPromptを返す。
// 操作はResolveで判断が届くまで停止する。1つのGateで同時に実行できる操作は1つだけで、
// TTL内に判断が届かない場合は拒否として扱う。
type Gate struct {
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	inflight *operation
}

// NewGate はGateを生成する。
func NewGate(ttl time.Duration, logger *slog.Logger) *Gate {
	return &Gate{
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Start は操作を開始する。
// 操作が確認を求めた場合はそのPromptを、確認なしで完了した場合はResultを返す。
// 別の操作が実行中の場合はOPERATION_IN_FLIGHTエラーのResultを返す。
func (g *Gate) Start(op Op) (*Prompt, *Result) {
	g.mu.Lock()
	if g.inflight != nil {
		g.mu.Unlock()
		return nil, &Result{Err: model.NewOperationInFlightError()}
	}
	o := &operation{
		promptCh: make(chan Prompt, 1),
		decision: make(chan bool, 1),
		done:     make(chan Result, 1),
	}
	g.inflight = o
	g.mu.Unlock()

	go func() {
		// 操作はHTTPリクエストより長く生きるため、リクエストのコンテキストは引き継がない
		ctx := context.WithValue(context.Background(), opKey{}, o)
		v, err := op(ctx)

		g.mu.Lock()
		if g.inflight == o {
			g.inflight = nil
		}
		g.mu.Unlock()

		o.done <- Result{Value: v, Err: err}
	}()

	return g.await(o)
}

// Resolve は保留中の確認に判断を届け、操作の次の確認か結果を待って返す。
// idが保留中の確認と一致しない場合はCONFIRMATION_NOT_FOUNDエラーのResultを返す。
func (g *Gate) Resolve(id string, decision bool) (*Prompt, *Result) {
	g.mu.Lock()
	o := g.inflight
	if o == nil || o.prompt == nil || o.prompt.ID != id {
		g.mu.Unlock()
		return nil, &Result{Err: model.NewConfirmationNotFoundError(id)}
	}
	o.prompt = nil
	g.mu.Unlock()

	o.decision <- decision
	return g.await(o)
}

// Pending は保留中の確認を返す。無い場合はnil。
func (g *Gate) Pending() *Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight == nil || g.inflight.prompt == nil {
		return nil
	}
	p := *g.inflight.prompt
	return &p
}

// DeclinePending は保留中の確認があれば拒否として解決する。セッション終了時に使う。
// 操作の完了は待たない。
func (g *Gate) DeclinePending() {
	g.mu.Lock()
	o := g.inflight
	if o == nil || o.prompt == nil {
		g.mu.Unlock()
		return
	}
	o.prompt = nil
	g.mu.Unlock()

	o.decision <- false
}

// Confirm はConfirmerを実装する。Startで開始した操作の中からのみ呼び出せる。
func (g *Gate) Confirm(ctx context.Context, p Prompt) (bool, error) {
	o, ok := ctx.Value(opKey{}).(*operation)
	if !ok {
		return false, ErrNoOperation
	}

	p.ID = uuid.New().String()
	if g.ttl > 0 {
		p.ExpiresAt = g.now().Add(g.ttl)
	}

	g.mu.Lock()
	o.prompt = &p
	g.mu.Unlock()
	o.promptCh <- p

	var expired <-chan time.Time
	if g.ttl > 0 {
		timer := time.NewTimer(g.ttl)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case d := <-o.decision:
		return d, nil
	case <-expired:
		g.mu.Lock()
		if o.prompt != nil && o.prompt.ID == p.ID {
			o.prompt = nil
			g.mu.Unlock()
			g.logger.Info("確認の期限が切れたため拒否として扱います",
				slog.String("confirmation_id", p.ID),
				slog.String("kind", p.Kind),
			)
			return false, nil
		}
		g.mu.Unlock()
		// 期限と同時にResolveが判断を取得済み
		return <-o.decision, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (g *Gate) await(o *operation) (*Prompt, *Result) {
	select {
	case p := <-o.promptCh:
		return &p, nil
	case r := <-o.done:
		return nil, &r
	}
}
