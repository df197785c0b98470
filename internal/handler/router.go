package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/ecarebots/internal/flow"
	"github.com/hitoshi/ecarebots/internal/metrics"
	"github.com/hitoshi/ecarebots/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	TrustProxyHeaders bool

	// 運用
	HealthChecker  HealthChecker
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// 認証・ダッシュボード
	AuthService     AuthServiceInterface
	AuthConfig      AuthHandlerConfig
	DashboardConfig DashboardHandlerConfig
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → (RealIP) → Session → Logging → Metrics → SecurityHeaders
//
// 画面ルートにはさらにCSRFを、フォーム送信にはレート制限を適用する。
// アクセス制御は行わない。セッションはCookieから解決してコンテキストに載せるだけ。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	rateLimit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		rateLimit = deps.RateLimiter.Middleware()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	dashboardConfig := deps.DashboardConfig
	if dashboardConfig.Metrics == nil {
		dashboardConfig.Metrics = collector
	}
	dashboardHandler := NewDashboardHandler(deps.AuthService, dashboardConfig)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Handle("/static/*", staticHandler())

	// --- 画面 ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get(flow.RouteHome, Landing)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", authHandler.LoginPage)
			r.With(rateLimit).Post("/login", authHandler.Login)
			r.Get("/signup", authHandler.SignupPage)
			r.With(rateLimit).Post("/signup", authHandler.Signup)
			r.Post("/logout", dashboardHandler.Logout)
		})

		r.Get(flow.RouteDashboard, dashboardHandler.Dashboard)
		r.Get(flow.RouteDashboard+"/events", dashboardHandler.Events)
	})

	return r
}
