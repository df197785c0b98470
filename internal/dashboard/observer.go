// Package dashboard はダッシュボード画面のセッション監視を提供する。
//
// Observerはブラウザセッションの認証状態の変化を購読し、表示中のユーザーを保持する。
// Deactivateが戻った後は状態が変化しないことを保証する。
package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hitoshi/ecarebots/internal/auth"
	"github.com/hitoshi/ecarebots/internal/flow"
	"github.com/hitoshi/ecarebots/internal/metrics"
	"github.com/hitoshi/ecarebots/internal/model"
)

// UserSource はダッシュボードが必要とする認証操作。
// *auth.Serviceが満たす。
type UserSource interface {
	CurrentUser(ctx context.Context, sessionID string) (*model.User, error)
	Subscribe(sessionID string, listener auth.Listener) *auth.Subscription
	SignOut(ctx context.Context, sessionID string) error
}

// State はダッシュボードの表示状態。
type State struct {
	Loading bool
	User    *model.User
}

// Greeting は挨拶に表示する名前を返す。氏名、メールアドレスの順に使い、
// どちらも無い場合は空文字列を返す。
func (s State) Greeting() string {
	return s.User.DisplayName()
}

// Option はObserverの設定。
type Option func(*Observer)

// WithOnChange は状態が変化するたびに呼ばれる関数を設定する。
// 通知の配信中に呼ばれるため、ブロックしてはならない。
func WithOnChange(fn func(State)) Option {
	return func(o *Observer) {
		o.onChange = fn
	}
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(collector metrics.MetricsCollector) Option {
	return func(o *Observer) {
		o.metrics = collector
	}
}

// Observer は1つのブラウザセッションのダッシュボードを表す。
type Observer struct {
	source    UserSource
	sessionID string
	nav       flow.Navigator
	metrics   metrics.MetricsCollector
	onChange  func(State)

	mu      sync.Mutex
	state   State
	started bool
	active  bool
	version uint64
	sub     *auth.Subscription

	signedOut atomic.Bool
}

// NewObserver はObserverを生成する。初期状態はLoading。
func NewObserver(source UserSource, sessionID string, nav flow.Navigator, opts ...Option) *Observer {
	o := &Observer{
		source:    source,
		sessionID: sessionID,
		nav:       nav,
		metrics:   metrics.Nop{},
		state:     State{Loading: true},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Activate は認証状態の変化を購読してから現在のユーザーを取得する。
// 取得中に届いた通知は取得結果より優先する。2回目以降の呼び出しは何もしない。
func (o *Observer) Activate(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.active = true
	o.mu.Unlock()
	o.metrics.ObserverStarted()

	sub := o.source.Subscribe(o.sessionID, o.handle)

	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	o.sub = sub
	fetchedAt := o.version
	o.mu.Unlock()

	user, err := o.source.CurrentUser(ctx, o.sessionID)
	if err != nil {
		slog.Warn("failed to load current user", slog.String("error", err.Error()))
		user = nil
	}

	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	if o.version == fetchedAt {
		o.state.User = user
	}
	o.state.Loading = false
	st := o.state
	o.mu.Unlock()

	o.emit(st)
}

// handle は通知を受けて表示中のユーザーを置き換える。SIGNED_OUTではnilになる。
func (o *Observer) handle(n auth.Notification) {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	o.version++
	o.state.User = n.User
	st := o.state
	o.mu.Unlock()

	o.emit(st)
}

func (o *Observer) emit(st State) {
	if o.onChange != nil {
		o.onChange(st)
	}
}

// Deactivate は購読を解除する。戻った後は状態が変化しない。複数回呼んでも安全。
func (o *Observer) Deactivate() {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	o.active = false
	sub := o.sub
	o.sub = nil
	o.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	o.metrics.ObserverStopped()
}

// State は現在の表示状態を返す。
func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SignOut はサインアウトしてトップページへ遷移する。
// サインアウトの成否に関わらず遷移し、2回目以降の呼び出しは何もしない。
func (o *Observer) SignOut(ctx context.Context) {
	if !o.signedOut.CompareAndSwap(false, true) {
		return
	}
	if err := o.source.SignOut(ctx, o.sessionID); err != nil {
		slog.Warn("sign out failed", slog.String("error", err.Error()))
	}
	o.nav.Navigate(flow.RouteHome)
}
