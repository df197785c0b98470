package model

import "time"

// Session はブラウザセッションを表す。
// Cookieの値(ID)とプロバイダーが発行したトークンを紐付ける。
type Session struct {
	ID             string
	UserID         string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time // アクセストークンの有効期限
	ExpiresAt      time.Time // ブラウザセッション自体の有効期限
	CreatedAt      time.Time
}
