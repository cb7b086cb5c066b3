package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// TestProvider is an in memory Provider for tests.
// Passwords are kept in plain text.
type TestProvider struct {
	mutex     sync.Mutex
	accounts  map[string]testAccount // email -> account
	sessions  map[string]Session     // token -> session
	listeners []SessionListener
	seq       int

	// FailCreateAccount, when set, is returned by CreateAccount.
	FailCreateAccount error
	CreatedAccounts   int
}

type testAccount struct {
	uid      string
	password string
}

func NewTestProvider() *TestProvider {
	return &TestProvider{
		accounts: map[string]testAccount{},
		sessions: map[string]Session{},
	}
}

// AddAccount registers an account with a fixed uid.
func (p *TestProvider) AddAccount(uid, email, password string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.accounts[strings.ToLower(strings.TrimSpace(email))] = testAccount{uid: uid, password: password}
}

func (p *TestProvider) CreateAccount(_ context.Context, email, password string) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.FailCreateAccount != nil {
		return "", p.FailCreateAccount
	}
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	if _, ok := p.accounts[email]; ok {
		return "", ErrEmailAlreadyInUse
	}

	p.seq++
	uid := fmt.Sprintf("uid-%d", p.seq)
	p.accounts[email] = testAccount{uid: uid, password: password}
	p.CreatedAccounts++
	return uid, nil
}

func (p *TestProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	p.mutex.Lock()
	acc, ok := p.accounts[email]
	if !ok || acc.password != password {
		p.mutex.Unlock()
		return nil, ErrInvalidCredential
	}
	p.seq++
	session := Session{
		Token:     fmt.Sprintf("token-%d", p.seq),
		UID:       acc.uid,
		Email:     email,
		CreatedAt: time.Now(),
	}
	p.sessions[session.Token] = session
	listeners := append([]SessionListener(nil), p.listeners...)
	p.mutex.Unlock()

	for _, l := range listeners {
		l(ctx, SessionChange{Token: session.Token, Session: &session})
	}
	return &session, nil
}

func (p *TestProvider) SignOut(ctx context.Context, token string) error {
	p.mutex.Lock()
	if _, ok := p.sessions[token]; !ok {
		p.mutex.Unlock()
		return ErrSessionNotFound
	}
	delete(p.sessions, token)
	listeners := append([]SessionListener(nil), p.listeners...)
	p.mutex.Unlock()

	for _, l := range listeners {
		l(ctx, SessionChange{Token: token})
	}
	return nil
}

func (p *TestProvider) Lookup(_ context.Context, token string) (*Session, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	session, ok := p.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (p *TestProvider) OnSessionChange(listener SessionListener) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.listeners = append(p.listeners, listener)
}

func (p *TestProvider) SessionCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.sessions)
}
