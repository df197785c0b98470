package provider

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims はアクセストークンから読み取るクレーム。
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// ParseAccessClaims はアクセストークンのクレームを署名検証せずに読み取る。
// トークンの真正性はプロバイダー側で検証されるため、ここでは有効期限とsubの取得にのみ使う。
func ParseAccessClaims(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}
	return claims, nil
}

// tokenExpiry はトークンレスポンスから有効期限を決定する。
// expires_at、expires_in、JWTのexpクレームの順に参照する。
func tokenExpiry(now time.Time, expiresAt, expiresIn int64, accessToken string) time.Time {
	if expiresAt > 0 {
		return time.Unix(expiresAt, 0)
	}
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}
	if claims, err := ParseAccessClaims(accessToken); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return now
}
