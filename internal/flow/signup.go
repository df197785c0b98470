package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/ecarebots/internal/model"
)

// サインアップフォームの文言。
const (
	MsgPasswordMismatch = "Passwords do not match"
	MsgPasswordTooShort = "Password must be at least 8 characters long"
	MsgSignupFailed     = "An error occurred during signup"
)

// MinPasswordLength はパスワードの最小文字数（rune単位）。
const MinPasswordLength = 8

// DefaultRedirectDelay はサインアップ成功からログイン画面へ遷移するまでの時間。
const DefaultRedirectDelay = 3 * time.Second

// Registrar はユーザーを登録する。
type Registrar interface {
	SignUp(ctx context.Context, fullName, email, password string) (*model.User, error)
}

// SignupForm はサインアップフォームの入力値。
type SignupForm struct {
	FullName        string
	Email           string
	Password        string
	ConfirmPassword string
}

// SignupResult はサインアップ送信の結果。
type SignupResult struct {
	State FormState
	User  *model.User
}

// SignupFlow はサインアップフォームの送信を処理する。
type SignupFlow struct {
	registrar Registrar
	nav       Navigator
	delay     time.Duration

	mu     sync.Mutex
	cancel func()
}

// NewSignupFlow はSignupFlowを生成する。delayが0以下の場合はDefaultRedirectDelayを使う。
func NewSignupFlow(registrar Registrar, nav Navigator, delay time.Duration) *SignupFlow {
	if delay <= 0 {
		delay = DefaultRedirectDelay
	}
	return &SignupFlow{registrar: registrar, nav: nav, delay: delay}
}

// ValidateSignup はプロバイダーを呼ぶ前の入力検証を行い、エラー文言を返す。
// 確認用パスワードの不一致を長さより先に判定する。
func ValidateSignup(form SignupForm) string {
	if form.Password != form.ConfirmPassword {
		return MsgPasswordMismatch
	}
	if utf8.RuneCountInString(form.Password) < MinPasswordLength {
		return MsgPasswordTooShort
	}
	return ""
}

// Submit は入力を検証し、問題なければ登録を1回だけ試みる。
// 登録に成功した場合は成功表示にし、一定時間後にログイン画面への遷移を予約する。
func (f *SignupFlow) Submit(ctx context.Context, form SignupForm) SignupResult {
	state := FormState{}.Begin()

	if msg := ValidateSignup(form); msg != "" {
		return SignupResult{State: state.Fail(msg).Finish()}
	}

	user, err := f.registrar.SignUp(ctx, form.FullName, form.Email, form.Password)
	if err != nil {
		slog.Info("signup failed", slog.String("error", err.Error()))
		return SignupResult{State: state.Fail(model.ProviderMessage(err, MsgSignupFailed)).Finish()}
	}
	if user == nil {
		return SignupResult{State: state.Finish()}
	}

	cancel := f.nav.NavigateAfter(f.delay, RouteLogin)
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.cancel = cancel
	f.mu.Unlock()

	return SignupResult{State: state.Succeed().Finish(), User: user}
}

// Delay はログイン画面への遷移までの時間を返す。
func (f *SignupFlow) Delay() time.Duration {
	return f.delay
}

// Cancel は予約済みの遷移を取り消す。予約が無い場合は何もしない。
func (f *SignupFlow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}
