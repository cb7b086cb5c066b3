package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrEmailAlreadyInUse = errors.New("email already in use")
	ErrWeakPassword      = errors.New("password should be at least 6 characters")
	ErrSessionNotFound   = errors.New("session not found")
)

const MinPasswordLength = 6

var _ Provider = (*Service)(nil)
var _ Provider = (*TestProvider)(nil)

// Session is an authenticated identity, not yet bound to an application profile.
type Session struct {
	Token     string    `json:"-"`
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionChange is emitted after every sign in and sign out.
// A nil Session means the session identified by Token has ended.
type SessionChange struct {
	Token   string
	Session *Session
}

type SessionListener func(ctx context.Context, change SessionChange)

type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	CreateAccount(ctx context.Context, email, password string) (string, error)
	Lookup(ctx context.Context, token string) (*Session, error)
	OnSessionChange(listener SessionListener)
}

// NormalizeEmail validates the address and returns it lowercased, or ErrInvalidEmail.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: [%s]", ErrInvalidEmail, email)
	}
	return strings.ToLower(addr.Address), nil
}

// FriendlyMessage turns a sign in error into text fit for the login form.
func FriendlyMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredential):
		return "Invalid email or password."
	case errors.Is(err, ErrInvalidEmail):
		return "The email address is not valid."
	case errors.Is(err, ErrEmailAlreadyInUse):
		return "This email is already registered."
	case errors.Is(err, ErrWeakPassword):
		return "The password must be at least 6 characters long."
	default:
		return "Sign in failed, please try again later."
	}
}
