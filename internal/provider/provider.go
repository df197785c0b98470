// Package provider は外部の認証プロバイダー（GoTrue互換API）との通信を提供する。
// プロセス全体のシングルトンではなく、インターフェースとして各コンポーネントに注入する。
package provider

import (
	"context"
	"time"

	"github.com/hitoshi/ecarebots/internal/model"
)

// Session はプロバイダーが発行したセッションを表す。
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *model.User
}

// Client は認証プロバイダーの操作インターフェース。
// 失敗時は*model.ProviderErrorをラップしたエラーを返す。
type Client interface {
	// SignInWithPassword はメールアドレスとパスワードでサインインする。
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignUp はユーザーを登録する。メール確認が有効な場合、返されるSessionはnil。
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.User, *Session, error)
	// SignOut はアクセストークンに紐づくセッションを無効化する。
	SignOut(ctx context.Context, accessToken string) error
	// GetUser はアクセストークンに紐づくユーザーを取得する。
	GetUser(ctx context.Context, accessToken string) (*model.User, error)
	// RefreshSession はリフレッシュトークンで新しいセッションを取得する。
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
}
