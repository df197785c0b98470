// Package auth はブラウザセッションの管理と、外部認証プロバイダーへの
// サインイン・サインアップ・サインアウトの委譲を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ecarebots/internal/metrics"
	"github.com/hitoshi/ecarebots/internal/model"
	"github.com/hitoshi/ecarebots/internal/provider"
	"github.com/hitoshi/ecarebots/internal/repository"
	"github.com/hitoshi/ecarebots/internal/security"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	client      provider.Client
	sessionRepo repository.SessionRepository
	notifier    *Notifier
	sanitizer   security.TextSanitizer
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
// notifier、sanitizer、collectorがnilの場合はデフォルト実装を使う。
func NewService(
	client provider.Client,
	sessionRepo repository.SessionRepository,
	notifier *Notifier,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if notifier == nil {
		notifier = NewNotifier()
	}
	if sanitizer == nil {
		sanitizer = security.NewNameSanitizer()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		client:      client,
		sessionRepo: sessionRepo,
		notifier:    notifier,
		sanitizer:   sanitizer,
		metrics:     collector,
		config:      config,
		now:         time.Now,
	}
}

// SignIn はメールアドレスとパスワードでサインインし、ブラウザセッションを発行する。
// プロバイダーがセッションを返さなかった場合は(nil, nil)を返す。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	start := s.now()
	ps, err := s.client.SignInWithPassword(ctx, email, password)
	s.observe(metrics.OpSignIn, start, err)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if ps == nil {
		return nil, nil
	}

	userID, err := sessionUserID(ps)
	if err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, userID, ps)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in", slog.String("user_id", userID))
	s.notifier.Publish(Notification{
		Event:     EventSignedIn,
		SessionID: session.ID,
		UserID:    userID,
		User:      ps.User,
	})
	return session, nil
}

// SignUp はユーザーを登録する。氏名はマークアップを除去してからメタデータとして送る。
// メール確認が必要な構成ではセッションは発行されないため、ブラウザセッションは作らない。
func (s *Service) SignUp(ctx context.Context, fullName, email, password string) (*model.User, error) {
	metadata := map[string]any{
		"full_name": s.sanitizer.Sanitize(fullName),
	}

	start := s.now()
	user, ps, err := s.client.SignUp(ctx, email, password, metadata)
	s.observe(metrics.OpSignUp, start, err)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	if user == nil && ps != nil {
		user = ps.User
	}
	if user != nil {
		slog.Info("user signed up", slog.String("user_id", user.ID))
	}
	return user, nil
}

// SignOut はプロバイダー側のセッションを無効化し、ブラウザセッションを破棄する。
// プロバイダー呼び出しが失敗してもブラウザセッションは削除し、SIGNED_OUTを配信する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}

	var providerErr error
	userID := ""
	if session != nil {
		userID = session.UserID
		start := s.now()
		providerErr = s.client.SignOut(ctx, session.AccessToken)
		s.observe(metrics.OpSignOut, start, providerErr)
		if providerErr != nil {
			slog.Warn("provider sign-out failed",
				slog.String("user_id", userID),
				slog.String("error", providerErr.Error()),
			)
		}
	}

	deleteErr := s.sessionRepo.DeleteByID(ctx, sessionID)

	s.notifier.Publish(Notification{
		Event:     EventSignedOut,
		SessionID: sessionID,
		UserID:    userID,
	})
	slog.Info("user signed out", slog.String("user_id", userID))

	if deleteErr != nil {
		return fmt.Errorf("failed to delete session: %w", deleteErr)
	}
	if providerErr != nil {
		return fmt.Errorf("sign out: %w", providerErr)
	}
	return nil
}

// CurrentUser はブラウザセッションに紐づくユーザーをプロバイダーから取得する。
// セッションが無い場合は(nil, nil)を返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	start := s.now()
	user, err := s.client.GetUser(ctx, session.AccessToken)
	s.observe(metrics.OpGetUser, start, err)
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return user, nil
}

// Subscribe はブラウザセッションの認証状態の変化を購読する。
func (s *Service) Subscribe(sessionID string, listener Listener) *Subscription {
	return s.notifier.Subscribe(sessionID, listener)
}

// Refresh はセッションのトークンを更新し、TOKEN_REFRESHEDを配信する。
// プロバイダーがリフレッシュトークンを拒否した場合はセッションを削除してSIGNED_OUTを配信する。
func (s *Service) Refresh(ctx context.Context, session *model.Session) error {
	start := s.now()
	ps, err := s.client.RefreshSession(ctx, session.RefreshToken)
	s.observe(metrics.OpRefresh, start, err)
	if err != nil {
		if isRejected(err) {
			if delErr := s.sessionRepo.DeleteByID(ctx, session.ID); delErr != nil {
				slog.Error("failed to delete rejected session",
					slog.String("user_id", session.UserID),
					slog.String("error", delErr.Error()),
				)
			}
			s.notifier.Publish(Notification{
				Event:     EventSignedOut,
				SessionID: session.ID,
				UserID:    session.UserID,
			})
		}
		return fmt.Errorf("refresh session: %w", err)
	}
	if ps == nil {
		return fmt.Errorf("refresh session: provider returned no session")
	}

	if err := s.sessionRepo.UpdateTokens(ctx, session.ID, ps.AccessToken, ps.RefreshToken, ps.ExpiresAt); err != nil {
		return fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	user := ps.User
	if user == nil {
		// レスポンスにユーザーが含まれない場合は新しいトークンで取得し直す
		if user, err = s.client.GetUser(ctx, ps.AccessToken); err != nil {
			slog.Warn("failed to load user after refresh",
				slog.String("user_id", session.UserID),
				slog.String("error", err.Error()),
			)
			return nil
		}
	}

	s.notifier.Publish(Notification{
		Event:     EventTokenRefreshed,
		SessionID: session.ID,
		UserID:    session.UserID,
		User:      user,
	})
	return nil
}

// isRejected はプロバイダーが要求を明示的に拒否したかを判定する。
// 通信失敗やサーバーエラーは一時的なものとして扱う。
func isRejected(err error) bool {
	var pe *model.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Status >= http.StatusBadRequest && pe.Status < http.StatusInternalServerError
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.metrics.RecordProviderLatency(op, s.now().Sub(start))
	s.metrics.RecordAuthAttempt(op, err == nil)
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string, ps *provider.Session) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:             sessionID,
		UserID:         userID,
		AccessToken:    ps.AccessToken,
		RefreshToken:   ps.RefreshToken,
		TokenExpiresAt: ps.ExpiresAt,
		ExpiresAt:      now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt:      now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// sessionUserID はプロバイダーセッションのユーザーIDを返す。
// ユーザーオブジェクトが無い場合はアクセストークンのsubクレームを使う。
func sessionUserID(ps *provider.Session) (string, error) {
	if ps.User != nil && ps.User.ID != "" {
		return ps.User.ID, nil
	}
	claims, err := provider.ParseAccessClaims(ps.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to resolve user id: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("failed to resolve user id: access token has no subject")
	}
	return claims.Subject, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
