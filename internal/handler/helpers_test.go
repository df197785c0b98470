package handler

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/ecarebots/internal/auth"
	"github.com/hitoshi/ecarebots/internal/model"
	"golang.org/x/net/html"
)

// --- モック定義 ---

type mockAuthService struct {
	notifier *auth.Notifier

	signInFn      func(ctx context.Context, email, password string) (*model.Session, error)
	signUpFn      func(ctx context.Context, fullName, email, password string) (*model.User, error)
	signOutFn     func(ctx context.Context, sessionID string) error
	currentUserFn func(ctx context.Context, sessionID string) (*model.User, error)

	mu           sync.Mutex
	signUpCalls  int
	signOutCalls []string
}

func newMockAuthService() *mockAuthService {
	return &mockAuthService{notifier: auth.NewNotifier()}
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) SignUp(ctx context.Context, fullName, email, password string) (*model.User, error) {
	m.mu.Lock()
	m.signUpCalls++
	m.mu.Unlock()
	if m.signUpFn != nil {
		return m.signUpFn(ctx, fullName, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) SignOut(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	m.signOutCalls = append(m.signOutCalls, sessionID)
	m.mu.Unlock()
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockAuthService) Subscribe(sessionID string, listener auth.Listener) *auth.Subscription {
	return m.notifier.Subscribe(sessionID, listener)
}

// --- compile-time interface checks ---
var _ AuthServiceInterface = (*mockAuthService)(nil)
var _ AuthServiceInterface = (*auth.Service)(nil)

// --- HTMLヘルパー ---

func parseHTML(t *testing.T, r io.Reader) *html.Node {
	t.Helper()
	doc, err := html.Parse(r)
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	return doc
}

// findAll はmatchを満たす要素を文書順に返す。
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func byTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func byAttr(key, value string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		v, ok := attr(n, key)
		return ok && v == value
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// alerts はrole="alert"の要素を返す。
func alerts(doc *html.Node) []*html.Node {
	return findAll(doc, byAttr("role", "alert"))
}
