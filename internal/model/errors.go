// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ProviderError は認証プロバイダーの操作失敗を表す。
// 本サービスにおけるエラー種別はこれ1つで、ネットワーク障害・認証情報誤り・
// サーバーエラーを区別しない。Messageはプロバイダーが返した文言そのもの。
type ProviderError struct {
	Status  int    // HTTPステータス（通信失敗時は0）
	Code    string // プロバイダーのエラーコード（無い場合は空）
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error (%d): %s", e.Status, e.Message)
}

// ProviderMessage はerrがProviderErrorを含む場合にその文言を返す。
// 含まない場合はfallbackを返す。
func ProviderMessage(err error, fallback string) string {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return fallback
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeCSRFFailed        = "CSRF_FAILED"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeStreamUnsupported = "STREAM_UNSUPPORTED"
)

// NewCSRFFailedError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and submit the form again.",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewStreamUnsupportedError はレスポンスのストリーミングができない場合のエラーを生成する。
func NewStreamUnsupportedError() *APIError {
	return &APIError{
		Code:     ErrCodeStreamUnsupported,
		Message:  "Streaming is not supported by this connection.",
		Category: "system",
		Action:   "Reload the dashboard to see the latest state.",
	}
}
