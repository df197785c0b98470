package flow

import (
	"context"
	"log/slog"

	"github.com/hitoshi/ecarebots/internal/model"
)

// MsgLoginFailed はプロバイダー以外の原因でログインに失敗した場合の文言。
const MsgLoginFailed = "An error occurred during login"

// Authenticator はパスワードでサインインする。
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
}

// LoginForm はログインフォームの入力値。
type LoginForm struct {
	Email    string
	Password string
}

// LoginResult はログイン送信の結果。
type LoginResult struct {
	State   FormState
	Session *model.Session
}

// LoginFlow はログインフォームの送信を処理する。
type LoginFlow struct {
	auth Authenticator
	nav  Navigator
}

// NewLoginFlow はLoginFlowを生成する。
func NewLoginFlow(auth Authenticator, nav Navigator) *LoginFlow {
	return &LoginFlow{auth: auth, nav: nav}
}

// Submit はサインインを1回だけ試み、セッションが得られた場合のみダッシュボードへ遷移する。
// 失敗時はメッセージを表示し、遷移しない。
func (f *LoginFlow) Submit(ctx context.Context, form LoginForm) LoginResult {
	state := FormState{}.Begin()

	session, err := f.auth.SignIn(ctx, form.Email, form.Password)
	if err != nil {
		slog.Info("login failed", slog.String("error", err.Error()))
		return LoginResult{State: state.Fail(model.ProviderMessage(err, MsgLoginFailed)).Finish()}
	}

	if session != nil {
		f.nav.Navigate(RouteDashboard)
	}
	return LoginResult{State: state.Finish(), Session: session}
}
