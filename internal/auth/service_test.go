package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/ecarebots/internal/model"
	"github.com/hitoshi/ecarebots/internal/provider"
	"github.com/hitoshi/ecarebots/internal/repository"
)

// --- モック定義 ---

type mockClient struct {
	signInFn  func(ctx context.Context, email, password string) (*provider.Session, error)
	signUpFn  func(ctx context.Context, email, password string, metadata map[string]any) (*model.User, *provider.Session, error)
	signOutFn func(ctx context.Context, accessToken string) error
	getUserFn func(ctx context.Context, accessToken string) (*model.User, error)
	refreshFn func(ctx context.Context, refreshToken string) (*provider.Session, error)
}

func (m *mockClient) SignInWithPassword(ctx context.Context, email, password string) (*provider.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.User, *provider.Session, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, metadata)
	}
	return nil, nil, nil
}

func (m *mockClient) SignOut(ctx context.Context, accessToken string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, accessToken)
	}
	return nil
}

func (m *mockClient) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, accessToken)
	}
	return nil, nil
}

func (m *mockClient) RefreshSession(ctx context.Context, refreshToken string) (*provider.Session, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, nil
}

// memSessionRepo はテスト用のインメモリSessionRepository。
type memSessionRepo struct {
	mu        sync.Mutex
	sessions  map[string]*model.Session
	createErr error
	findErr   error
	deleteErr error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *memSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *memSessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.sessions, id)
	return nil
}

func (r *memSessionRepo) ListExpiringTokens(_ context.Context, before time.Time, limit int) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Session
	for _, s := range r.sessions {
		if !s.TokenExpiresAt.After(before) && len(out) < limit {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memSessionRepo) UpdateTokens(_ context.Context, id, accessToken, refreshToken string, tokenExpiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	s.AccessToken = accessToken
	s.RefreshToken = refreshToken
	s.TokenExpiresAt = tokenExpiresAt
	return nil
}

func (r *memSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

// --- compile-time interface checks ---
var _ provider.Client = (*mockClient)(nil)
var _ repository.SessionRepository = (*memSessionRepo)(nil)

const testUserID = "6f1c2b9e-3d4a-4f6b-9a8e-1c2d3e4f5a6b"

func testUser() *model.User {
	return &model.User{ID: testUserID, Email: "ada@example.com", FullName: "Ada Lovelace"}
}

// recordNotifications はsessionIDへの通知を記録する。
func recordNotifications(svc *Service, sessionID string) (*[]Notification, *Subscription) {
	var mu sync.Mutex
	got := &[]Notification{}
	sub := svc.Subscribe(sessionID, func(n Notification) {
		mu.Lock()
		defer mu.Unlock()
		*got = append(*got, n)
	})
	return got, sub
}

// --- テスト ---

func TestSignIn_Success_CreatesSession(t *testing.T) {
	repo := newMemSessionRepo()
	expiry := time.Now().Add(time.Hour)
	client := &mockClient{
		signInFn: func(_ context.Context, email, password string) (*provider.Session, error) {
			if email != "ada@example.com" || password != "secret-pass" {
				t.Errorf("unexpected credentials %q/%q", email, password)
			}
			return &provider.Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: expiry, User: testUser()}, nil
		},
	}
	svc := NewService(client, repo, nil, nil, nil, ServiceConfig{SessionMaxAge: 3600})

	session, err := svc.SignIn(context.Background(), "ada@example.com", "secret-pass")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if session == nil {
		t.Fatal("expected session")
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64 hex chars", len(session.ID))
	}
	if session.UserID != testUserID {
		t.Errorf("UserID = %q, want %q", session.UserID, testUserID)
	}
	if !session.TokenExpiresAt.Equal(expiry) {
		t.Errorf("TokenExpiresAt = %v, want %v", session.TokenExpiresAt, expiry)
	}

	stored, _ := repo.FindByID(context.Background(), session.ID)
	if stored == nil || stored.AccessToken != "a" {
		t.Errorf("stored session = %+v", stored)
	}
}

func TestSignIn_ProviderError_Propagates(t *testing.T) {
	repo := newMemSessionRepo()
	client := &mockClient{
		signInFn: func(context.Context, string, string) (*provider.Session, error) {
			return nil, &model.ProviderError{Status: 400, Message: "Invalid login credentials"}
		},
	}
	svc := NewService(client, repo, nil, nil, nil, ServiceConfig{SessionMaxAge: 3600})

	session, err := svc.SignIn(context.Background(), "ada@example.com", "wrong")
	if session != nil {
		t.Error("expected no session")
	}
	if got := model.ProviderMessage(err, ""); got != "Invalid login credentials" {
		t.Errorf("provider message = %q", got)
	}
	if len(repo.sessions) != 0 {
		t.Error("no session should be stored on error")
	}
}

func TestSignIn_NoSession_ReturnsNil(t *testing.T) {
	svc := NewService(&mockClient{}, newMemSessionRepo(), nil, nil, nil, ServiceConfig{})

	session, err := svc.SignIn(context.Background(), "ada@example.com", "secret-pass")
	if err != nil || session != nil {
		t.Errorf("SignIn() = %v, %v; want nil, nil", session, err)
	}
}

func TestSignIn_RepoError_ReturnsError(t *testing.T) {
	repo := newMemSessionRepo()
	repo.createErr = errors.New("db down")
	client := &mockClient{
		signInFn: func(context.Context, string, string) (*provider.Session, error) {
			return &provider.Session{AccessToken: "a", User: testUser()}, nil
		},
	}
	svc := NewService(client, repo, nil, nil, nil, ServiceConfig{})

	if _, err := svc.SignIn(context.Background(), "ada@example.com", "secret-pass"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSignUp_SanitizesFullNameIntoMetadata(t *testing.T) {
	var gotMetadata map[string]any
	calls := 0
	client := &mockClient{
		signUpFn: func(_ context.Context, email, password string, metadata map[string]any) (*model.User, *provider.Session, error) {
			calls++
			gotMetadata = metadata
			return testUser(), nil, nil
		},
	}
	svc := NewService(client, newMemSessionRepo(), nil, nil, nil, ServiceConfig{})

	user, err := svc.SignUp(context.Background(), "<b>Ada</b> Lovelace", "ada@example.com", "abcdefgh")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if user == nil || user.ID != testUserID {
		t.Errorf("user = %+v", user)
	}
	if calls != 1 {
		t.Errorf("provider SignUp called %d times, want 1", calls)
	}
	if gotMetadata["full_name"] != "Ada Lovelace" {
		t.Errorf("metadata full_name = %v, want Ada Lovelace", gotMetadata["full_name"])
	}
}

func TestSignUp_AutoConfirmReturnsSessionUser(t *testing.T) {
	client := &mockClient{
		signUpFn: func(context.Context, string, string, map[string]any) (*model.User, *provider.Session, error) {
			return nil, &provider.Session{AccessToken: "a", User: testUser()}, nil
		},
	}
	svc := NewService(client, newMemSessionRepo(), nil, nil, nil, ServiceConfig{})

	user, err := svc.SignUp(context.Background(), "Ada", "ada@example.com", "abcdefgh")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if user == nil || user.ID != testUserID {
		t.Errorf("user = %+v, want session user", user)
	}
}

func TestSignOut_DeletesSessionAndPublishesSignedOut(t *testing.T) {
	repo := newMemSessionRepo()
	repo.sessions["sid"] = &model.Session{ID: "sid", UserID: testUserID, AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)}

	var gotToken string
	client := &mockClient{
		signOutFn: func(_ context.Context, accessToken string) error {
			gotToken = accessToken
			return nil
		},
	}
	svc := NewService(client, repo, nil, nil, nil, ServiceConfig{})
	got, sub := recordNotifications(svc, "sid")
	defer sub.Unsubscribe()

	if err := svc.SignOut(context.Background(), "sid"); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if gotToken != "a" {
		t.Errorf("provider SignOut token = %q, want a", gotToken)
	}
	if _, ok := repo.sessions["sid"]; ok {
		t.Error("session should be deleted")
	}
	if len(*got) != 1 || (*got)[0].Event != EventSignedOut || (*got)[0].User != nil {
		t.Errorf("notifications = %+v, want one SIGNED_OUT with nil user", *got)
	}
}

func TestSignOut_ProviderFailureStillDeletesSession(t *testing.T) {
	repo := newMemSessionRepo()
	repo.sessions["sid"] = &model.Session{ID: "sid", UserID: testUserID, AccessToken: "a"}
	client := &mockClient{
		signOutFn: func(context.Context, string) error {
			return &model.ProviderError{Message: "unreachable"}
		},
	}
	svc := NewService(client, repo, nil, nil, nil, ServiceConfig{})

	err := svc.SignOut(context.Background(), "sid")
	if err == nil {
		t.Error("expected provider error to be reported")
	}
	if _, ok := repo.sessions["sid"]; ok {
		t.Error("session should be deleted even when provider fails")
	}
}

func TestSignOut_EmptySessionID_NoOp(t *testing.T) {
	client := &mockClient{
		signOutFn: func(context.Context, string) error {
			t.Error("provider should not be called")
			return nil
		},
	}
	svc := NewService(client, newMemSessionRepo(), nil, nil, nil, ServiceConfig{})

	if err := svc.SignOut(context.Background(), ""); err != nil {
		t.Errorf("SignOut() error = %v", err)
	}
}

func TestCurrentUser_NoSession_ReturnsNil(t *testing.T) {
	client := &mockClient{
		getUserFn: func(context.Context, string) (*model.User, error) {
			t.Error("provider should not be called without a session")
			return nil, nil
		},
	}
	svc := NewService(client, newMemSessionRepo(), nil, nil, nil, ServiceConfig{})

	user, err := svc.CurrentUser(context.Background(), "unknown")
	if err != nil || user != nil {
		t.Errorf("CurrentUser() = %v, %v; want nil, nil", user, err)
	}
}

func TestCurrentUser_ReturnsProviderUser(t *testing.T) {
	repo := newMemSessionRepo()
	repo.sessions["sid"] = &model.Session{ID: "sid", UserID: testUserID, AccessToken: "a"}
	client := &mockClient{
		getUserFn: func(_ context.Context, accessToken string) (*model.User, error) {
			if accessToken != "a" {
				t.Errorf("access token = %q, want a", accessToken)
			}
			return testUser(), nil
		},
	}
	svc := NewService(client, repo, nil, nil, nil, ServiceConfig{})

	user, err := svc.CurrentUser(context.Background(), "sid")
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if user.DisplayName() != "Ada Lovelace" {
		t.Errorf("DisplayName() = %q", user.DisplayName())
	}
}

func TestRefresh_Success_UpdatesTokensAndPublishes(t *testing.T) {
	repo := newMemSessionRepo()
	session := &model.Session{ID: "sid", UserID: testUserID, AccessToken: "a1", RefreshToken: "r1"}
	repo.sessions["sid"] = session
	expiry := time.Now().Add(time.Hour)
	client := &mockClient{
		refreshFn: func(_ context.Context, refreshToken string) (*provider.Session, error) {
			if refreshToken != "r1" {
				t.Errorf("refresh token = %q, want r1", refreshToken)
			}
			return &provider.Session{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: expiry, User: testUser()}, nil
		},
	}
	svc := NewService(client, repo, nil, nil, nil, ServiceConfig{})
	got, sub := recordNotifications(svc, "sid")
	defer sub.Unsubscribe()

	if err := svc.Refresh(context.Background(), session); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	stored := repo.sessions["sid"]
	if stored.AccessToken != "a2" || stored.RefreshToken != "r2" || !stored.TokenExpiresAt.Equal(expiry) {
		t.Errorf("stored = %+v", stored)
	}
	if len(*got) != 1 || (*got)[0].Event != EventTokenRefreshed || (*got)[0].User == nil {
		t.Errorf("notifications = %+v, want one TOKEN_REFRESHED with user", *got)
	}
}

func TestRefresh_Rejected_DeletesSessionAndSignsOut(t *testing.T) {
	repo := newMemSessionRepo()
	session := &model.Session{ID: "sid", UserID: testUserID, RefreshToken: "r1"}
	repo.sessions["sid"] = session
	client := &mockClient{
		refreshFn: func(context.Context, string) (*provider.Session, error) {
			return nil, &model.ProviderError{Status: 400, Message: "Invalid Refresh Token"}
		},
	}
	svc := NewService(client, repo, nil, nil, nil, ServiceConfig{})
	got, sub := recordNotifications(svc, "sid")
	defer sub.Unsubscribe()

	if err := svc.Refresh(context.Background(), session); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := repo.sessions["sid"]; ok {
		t.Error("rejected session should be deleted")
	}
	if len(*got) != 1 || (*got)[0].Event != EventSignedOut {
		t.Errorf("notifications = %+v, want one SIGNED_OUT", *got)
	}
}

func TestRefresh_Unreachable_KeepsSession(t *testing.T) {
	repo := newMemSessionRepo()
	session := &model.Session{ID: "sid", UserID: testUserID, RefreshToken: "r1"}
	repo.sessions["sid"] = session
	client := &mockClient{
		refreshFn: func(context.Context, string) (*provider.Session, error) {
			return nil, fmt.Errorf("POST /token: %w", &model.ProviderError{Code: "unreachable", Message: "down"})
		},
	}
	svc := NewService(client, repo, nil, nil, nil, ServiceConfig{})
	got, sub := recordNotifications(svc, "sid")
	defer sub.Unsubscribe()

	if err := svc.Refresh(context.Background(), session); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := repo.sessions["sid"]; !ok {
		t.Error("session should be kept on transient failure")
	}
	if len(*got) != 0 {
		t.Errorf("no notification expected, got %+v", *got)
	}
}

func TestGenerateSessionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := generateSessionID()
		if err != nil {
			t.Fatalf("generateSessionID() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate session ID %q", id)
		}
		seen[id] = true
	}
}
