package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ecarebots/internal/dashboard"
	"github.com/hitoshi/ecarebots/internal/flow"
	"github.com/hitoshi/ecarebots/internal/middleware"
	"github.com/hitoshi/ecarebots/internal/model"
)

// AuthServiceInterface はハンドラーが必要とする認証サービスのインターフェース。
// *auth.Serviceが満たす。
type AuthServiceInterface interface {
	flow.Authenticator
	flow.Registrar
	dashboard.UserSource
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain        string
	CookieSecure        bool
	SessionMaxAge       int           // セッションCookieの有効期間（秒）
	SignupRedirectDelay time.Duration // サインアップ成功後にログイン画面へ遷移するまでの時間
}

// AuthHandler はログイン・サインアップのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// LoginPage はログインフォームを表示する。
// GET /auth/login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusOK, pageLogin, loginPage{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	})
}

// Login はログインフォームの送信を処理する。
// セッションが得られた場合はCookieを設定してダッシュボードへリダイレクトし、
// 失敗時はプロバイダーのメッセージを表示してフォームを再表示する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	form := flow.LoginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}

	nav := &httpNavigator{}
	result := flow.NewLoginFlow(h.service, nav).Submit(r.Context(), form)

	if result.Session != nil {
		h.setSessionCookie(w, result.Session)
	}
	if nav.redirect(w, r) {
		return
	}

	render(w, http.StatusOK, pageLogin, loginPage{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Email:     form.Email,
		State:     result.State,
	})
}

// SignupPage はサインアップフォームを表示する。
// GET /auth/signup
func (h *AuthHandler) SignupPage(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusOK, pageSignup, signupPage{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	})
}

// Signup はサインアップフォームの送信を処理する。
// 成功時は確認メッセージを表示し、一定時間後にログイン画面へ遷移させる。
// POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	form := flow.SignupForm{
		FullName:        r.PostFormValue("full_name"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}

	nav := &httpNavigator{}
	result := flow.NewSignupFlow(h.service, nav, h.config.SignupRedirectDelay).Submit(r.Context(), form)
	if nav.redirect(w, r) {
		return
	}

	render(w, http.StatusOK, pageSignup, signupPage{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		FullName:  form.FullName,
		Email:     form.Email,
		State:     result.State,
	})
}

// setSessionCookie はセッションCookieを設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Debug("session cookie set", slog.String("user_id", session.UserID))
}

// clearSessionCookie はセッションCookieを削除する。
func clearSessionCookie(w http.ResponseWriter, domain string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
