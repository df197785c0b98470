// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/ecarebots/internal/model"
)

// SessionRepository はブラウザセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error

	// ListExpiringTokens はアクセストークンがbefore以前に失効する有効なセッションを
	// token_expires_atの昇順で最大limit件返す。
	ListExpiringTokens(ctx context.Context, before time.Time, limit int) ([]*model.Session, error)
	// UpdateTokens はセッションのトークンと有効期限を更新する。
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, tokenExpiresAt time.Time) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
