// Package flow はログイン・サインアップフォームの送信処理を提供する。
// 画面の状態はFormStateとして明示的に持ち、遷移は純粋関数で行う。
package flow

import "time"

// 画面のルート。
const (
	RouteHome      = "/"
	RouteLogin     = "/auth/login"
	RouteSignup    = "/auth/signup"
	RouteDashboard = "/dashboard"
)

// Navigator は画面遷移を行う。
type Navigator interface {
	// Navigate はrouteへ遷移する。
	Navigate(route string)
	// NavigateAfter はd経過後にrouteへ遷移する。返り値の関数で予約を取り消せる。
	NavigateAfter(d time.Duration, route string) (cancel func())
}

// FormState はフォームの表示状態。
type FormState struct {
	Loading bool
	Error   string
	Success bool
}

// Begin は送信開始時の状態を返す。前回のエラーと成功表示は消える。
func (s FormState) Begin() FormState {
	return FormState{Loading: true}
}

// Fail はエラーメッセージを表示する状態を返す。
func (s FormState) Fail(message string) FormState {
	return FormState{Loading: s.Loading, Error: message}
}

// Succeed は成功表示の状態を返す。
func (s FormState) Succeed() FormState {
	return FormState{Loading: s.Loading, Success: true}
}

// Finish は送信完了時の状態を返す。
func (s FormState) Finish() FormState {
	s.Loading = false
	return s
}
