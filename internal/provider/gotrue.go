package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/ecarebots/internal/model"
)

const (
	authPathPrefix = "/auth/v1"
	// maxResponseSize はプロバイダーレスポンスの最大読み取りサイズ。
	maxResponseSize = 1 << 20
	// unreachableMessage はプロバイダーに到達できなかった場合の表示文言。
	unreachableMessage = "Unable to reach the authentication service. Please try again."
)

// GoTrueConfig はGoTrue互換プロバイダーの設定。
type GoTrueConfig struct {
	URL     string // 例: https://xyz.supabase.co
	AnonKey string
	Timeout time.Duration

	// テスト用に差し替え可能
	HTTPClient *http.Client
	Now        func() time.Time
}

// GoTrueClient はGoTrue REST APIを使用したClientの実装。
type GoTrueClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	now        func() time.Time
}

// NewGoTrueClient はGoTrueClientを生成する。
func NewGoTrueClient(config GoTrueConfig) *GoTrueClient {
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &GoTrueClient{
		baseURL:    strings.TrimRight(config.URL, "/") + authPathPrefix,
		anonKey:    config.AnonKey,
		httpClient: httpClient,
		now:        now,
	}
}

// gotrueUser はGoTrueのユーザーオブジェクト。
type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// gotrueTokenResponse はトークンエンドポイントのレスポンス。
type gotrueTokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         *gotrueUser `json:"user"`
}

// gotrueSignupResponse はsignupエンドポイントのレスポンス。
// メール確認が必要な場合はユーザーオブジェクトがトップレベルに返り、
// 自動確認の場合はトークンレスポンスが返る。
type gotrueSignupResponse struct {
	gotrueTokenResponse
	gotrueUser
}

// gotrueError はGoTrueのエラーレスポンス。バージョンによりフィールド名が異なる。
type gotrueError struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// SignInWithPassword はパスワードグラントでサインインする。
func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var resp gotrueTokenResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}}, "",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, fmt.Errorf("password sign-in failed: %w", err)
	}
	return c.toSession(&resp)
}

// SignUp はユーザーを登録する。metadataはuser_metadataとして保存される。
func (c *GoTrueClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.User, *Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	var resp gotrueSignupResponse
	if err := c.do(ctx, http.MethodPost, "/signup", nil, "", body, &resp); err != nil {
		return nil, nil, fmt.Errorf("sign-up failed: %w", err)
	}

	// 自動確認: セッション付きで返る
	if resp.AccessToken != "" {
		session, err := c.toSession(&resp.gotrueTokenResponse)
		if err != nil {
			return nil, nil, err
		}
		return session.User, session, nil
	}

	// メール確認待ち: ユーザーのみ
	if resp.gotrueUser.ID == "" {
		return nil, nil, nil
	}
	user, err := toUser(&resp.gotrueUser)
	if err != nil {
		return nil, nil, err
	}
	return user, nil, nil
}

// SignOut はアクセストークンのセッションを無効化する。
func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil); err != nil {
		return fmt.Errorf("sign-out failed: %w", err)
	}
	return nil
}

// GetUser はアクセストークンのユーザーを取得する。
func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	var resp gotrueUser
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	return toUser(&resp)
}

// RefreshSession はリフレッシュトークングラントで新しいセッションを取得する。
func (c *GoTrueClient) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	var resp gotrueTokenResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}}, "",
		map[string]string{"refresh_token": refreshToken}, &resp)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return c.toSession(&resp)
}

// do はGoTrueへのリクエストを送信し、レスポンスをoutにデコードする。
// bearerが空の場合はanonキーをAuthorizationに使う。
func (c *GoTrueClient) do(ctx context.Context, method, path string, query url.Values, bearer string, body any, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.anonKey)
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// 通信失敗も「プロバイダー操作の失敗」として同じ種別で扱う
		return fmt.Errorf("%s %s: %w", method, path, &model.ProviderError{Message: unreachableMessage, Code: "unreachable"})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// decodeError はエラーレスポンスをProviderErrorに変換する。
func decodeError(status int, body []byte) *model.ProviderError {
	pe := &model.ProviderError{Status: status}

	var ge gotrueError
	if err := json.Unmarshal(body, &ge); err == nil {
		pe.Code = ge.ErrorCode
		if pe.Code == "" {
			pe.Code = ge.Error
		}
		for _, m := range []string{ge.Msg, ge.ErrorDescription, ge.Message, ge.Error} {
			if m != "" {
				pe.Message = m
				break
			}
		}
	}

	if pe.Message == "" {
		pe.Message = http.StatusText(status)
	}
	return pe
}

// toSession はトークンレスポンスをSessionに変換する。
func (c *GoTrueClient) toSession(resp *gotrueTokenResponse) (*Session, error) {
	if resp.AccessToken == "" {
		return nil, nil
	}

	session := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    tokenExpiry(c.now(), resp.ExpiresAt, resp.ExpiresIn, resp.AccessToken),
	}
	if resp.User != nil {
		user, err := toUser(resp.User)
		if err != nil {
			return nil, err
		}
		session.User = user
	}
	return session, nil
}

// toUser はGoTrueのユーザーオブジェクトをmodel.Userに変換する。
func toUser(u *gotrueUser) (*model.User, error) {
	if _, err := uuid.Parse(u.ID); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", u.ID, err)
	}

	user := &model.User{
		ID:        u.ID,
		Email:     u.Email,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if name, ok := u.UserMetadata["full_name"].(string); ok {
		user.FullName = name
	}
	if dob, ok := u.UserMetadata["date_of_birth"].(string); ok {
		if t, err := time.Parse(time.DateOnly, dob); err == nil {
			user.DateOfBirth = &t
		}
	}
	return user, nil
}

// compile-time interface check
var _ Client = (*GoTrueClient)(nil)
