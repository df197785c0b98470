package auth

import (
	"sync"

	"github.com/google/uuid"
	"github.com/hitoshi/ecarebots/internal/model"
)

// Event は認証状態の変化の種別。
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// Notification は購読者に配信される認証状態の変化。
// SIGNED_OUTの場合Userはnil。
type Notification struct {
	Event     Event
	SessionID string
	UserID    string
	User      *model.User
}

// Listener は通知を受け取る関数。
// 配信中にSubscription.Unsubscribeを呼んではならない。
type Listener func(Notification)

// Subscription はNotifierへの購読を表すハンドル。
type Subscription struct {
	id        string
	sessionID string
	notifier  *Notifier
	listener  Listener

	mu     sync.Mutex
	closed bool
}

// ID は購読IDを返す。
func (s *Subscription) ID() string {
	return s.id
}

// Unsubscribe は購読を解除する。
// 配信中の通知があれば完了を待ち、戻った後はListenerが呼ばれることはない。
// 複数回呼んでも安全。
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.notifier.remove(s)
}

func (s *Subscription) deliver(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.listener(n)
}

// Notifier はブラウザセッションIDごとに認証状態の変化を配信する。
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscription
}

// NewNotifier はNotifierを生成する。
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[string]map[string]*Subscription),
	}
}

// Subscribe はsessionIDに対する通知を購読する。
func (n *Notifier) Subscribe(sessionID string, listener Listener) *Subscription {
	sub := &Subscription{
		id:        uuid.New().String(),
		sessionID: sessionID,
		notifier:  n,
		listener:  listener,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	bySession, ok := n.subs[sessionID]
	if !ok {
		bySession = make(map[string]*Subscription)
		n.subs[sessionID] = bySession
	}
	bySession[sub.id] = sub
	return sub
}

// Publish は通知をnotification.SessionIDの購読者に同期的に配信する。
func (n *Notifier) Publish(notification Notification) {
	n.mu.RLock()
	targets := make([]*Subscription, 0, len(n.subs[notification.SessionID]))
	for _, sub := range n.subs[notification.SessionID] {
		targets = append(targets, sub)
	}
	n.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(notification)
	}
}

// Count はsessionIDの購読者数を返す。
func (n *Notifier) Count(sessionID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[sessionID])
}

func (n *Notifier) remove(sub *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	bySession, ok := n.subs[sub.sessionID]
	if !ok {
		return
	}
	delete(bySession, sub.id)
	if len(bySession) == 0 {
		delete(n.subs, sub.sessionID)
	}
}
