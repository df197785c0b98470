package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ecarebots/internal/dashboard"
	"github.com/hitoshi/ecarebots/internal/metrics"
	"github.com/hitoshi/ecarebots/internal/middleware"
	"github.com/hitoshi/ecarebots/internal/model"
)

// DefaultHeartbeatInterval はイベントストリームのコメント行を送る間隔。
const DefaultHeartbeatInterval = 25 * time.Second

// DashboardHandlerConfig はダッシュボードハンドラーの設定。
type DashboardHandlerConfig struct {
	CookieDomain      string
	CookieSecure      bool
	HeartbeatInterval time.Duration
	Metrics           metrics.MetricsCollector
}

// DashboardHandler はダッシュボード画面とそのイベントストリームのHTTPハンドラー。
type DashboardHandler struct {
	source dashboard.UserSource
	config DashboardHandlerConfig
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(source dashboard.UserSource, config DashboardHandlerConfig) *DashboardHandler {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Nop{}
	}
	return &DashboardHandler{source: source, config: config}
}

func (h *DashboardHandler) newObserver(r *http.Request, nav *httpNavigator, opts ...dashboard.Option) *dashboard.Observer {
	opts = append(opts, dashboard.WithMetrics(h.config.Metrics))
	return dashboard.NewObserver(h.source, middleware.SessionIDFromContext(r.Context()), nav, opts...)
}

// Dashboard はダッシュボードを表示する。
// 1リクエストを1回の活性化として扱い、現在のユーザーを取得して挨拶を描画する。
// GET /dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	obs := h.newObserver(r, &httpNavigator{})
	obs.Activate(r.Context())
	state := obs.State()
	obs.Deactivate()

	render(w, http.StatusOK, pageDashboard, dashboardPage{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Greeting:  state.Greeting(),
	})
}

// Logout はダッシュボードのサインアウト操作を処理する。
// サインアウトの成否に関わらずCookieを削除してトップページへリダイレクトする。
// POST /auth/logout
func (h *DashboardHandler) Logout(w http.ResponseWriter, r *http.Request) {
	nav := &httpNavigator{}
	obs := h.newObserver(r, nav)
	obs.SignOut(r.Context())

	clearSessionCookie(w, h.config.CookieDomain, h.config.CookieSecure)
	nav.redirect(w, r)
}

// greetingEvent はイベントストリームで送る挨拶。
type greetingEvent struct {
	Name string `json:"name"`
}

// Events は接続中ずっとObserverを活性化し、挨拶の変化をServer-Sent Eventsで送る。
// GET /dashboard/events
func (h *DashboardHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStreamUnsupportedError())
		return
	}

	// サーバー全体の書き込みタイムアウトをこの接続だけ解除する
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("write deadline not supported", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// 最新の状態だけが意味を持つため、通知はバッファ1で合流させる
	changed := make(chan struct{}, 1)
	obs := h.newObserver(r, &httpNavigator{}, dashboard.WithOnChange(func(dashboard.State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}))

	ctx := r.Context()
	obs.Activate(ctx)
	defer obs.Deactivate()

	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	last := ""
	sent := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			st := obs.State()
			if st.Loading {
				continue
			}
			name := st.Greeting()
			if sent && name == last {
				continue
			}
			if err := writeEvent(w, "greeting", greetingEvent{Name: name}); err != nil {
				return
			}
			flusher.Flush()
			last, sent = name, true
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent はServer-Sent Eventsの1イベントを書き込む。
func writeEvent(w http.ResponseWriter, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}
