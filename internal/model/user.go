// Package model はドメインモデルを定義する。
package model

import "time"

// User は認証プロバイダーが管理するユーザーを表す。
// 本サービスは永続化せず、プロバイダーのクライアント経由で読み書きするだけ。
type User struct {
	ID          string
	Email       string
	FullName    string // user_metadata.full_name
	Phone       string
	DateOfBirth *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayName は挨拶に使う表示名を返す。
// フルネーム、メールアドレスの順にフォールバックし、どちらも無ければ空文字を返す。
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}
