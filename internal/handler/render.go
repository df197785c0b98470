// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/ecarebots/internal/flow"
	"github.com/hitoshi/ecarebots/internal/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// ページテンプレート名。
const (
	pageLanding   = "landing.html"
	pageLogin     = "login.html"
	pageSignup    = "signup.html"
	pageDashboard = "dashboard.html"
)

// pages はページごとにレイアウトと組み合わせて解析したテンプレート。
var pages = parsePages(pageLanding, pageLogin, pageSignup, pageDashboard)

func parsePages(names ...string) map[string]*template.Template {
	m := make(map[string]*template.Template, len(names))
	for _, name := range names {
		m[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return m
}

// loginPage はログイン画面の表示データ。
type loginPage struct {
	CSRFToken string
	Email     string
	State     flow.FormState
}

// signupPage はサインアップ画面の表示データ。
type signupPage struct {
	CSRFToken string
	FullName  string
	Email     string
	State     flow.FormState
}

// dashboardPage はダッシュボード画面の表示データ。
type dashboardPage struct {
	CSRFToken string
	Greeting  string
}

// render はページをバッファに描画してからレスポンスに書き込む。
// 描画に失敗した場合は途中までのHTMLを返さず500にする。
func render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := pages[page]
	if !ok {
		slog.Error("unknown page template", slog.String("page", page))
		middleware.WriteInternalServerError(w)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// staticHandler は埋め込みの静的ファイルを配信する。
func staticHandler() http.Handler {
	return http.FileServer(http.FS(staticFS))
}
