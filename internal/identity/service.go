package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/pkg"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTTL            = 24 * 7 * time.Hour
	tokenLength           = 35
	accountKeyPrefix      = "fittrack-account||"
	accountEmailKeyPrefix = "fittrack-account-email||"
	sessionKeyPrefix      = "fittrack-session||"
	tokensSetKey          = "fittrack-sessions"
)

type account struct {
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}

// Service keeps accounts and sessions in redis.
type Service struct {
	redisClient *redis.Client
	ttl         time.Duration

	mutex     sync.RWMutex
	listeners []SessionListener

	// ability to inject generators and clock (for unit and dev testing)
	RandStringFunc   func(s int) (string, error)
	HashPasswordFunc func(password string) (string, error)
	NewUIDFunc       func() string
	Now              func() time.Time
}

func NewService(ttl time.Duration, redisClient *redis.Client) *Service {
	return &Service{
		redisClient:      redisClient,
		ttl:              ttl,
		RandStringFunc:   pkg.GenerateRandomString,
		HashPasswordFunc: pkg.HashPassword,
		NewUIDFunc:       uuid.NewString,
		Now:              time.Now,
	}
}

func (s *Service) OnSessionChange(listener SessionListener) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *Service) notify(ctx context.Context, change SessionChange) {
	s.mutex.RLock()
	listeners := make([]SessionListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mutex.RUnlock()

	for _, l := range listeners {
		l(ctx, change)
	}
}

func (s *Service) CreateAccount(ctx context.Context, email, password string) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "identity.create-account")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	email, err = NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}

	passwordHash, err := s.HashPasswordFunc(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	accountJson, err := json.Marshal(account{Email: email, PasswordHash: passwordHash})
	if err != nil {
		return "", fmt.Errorf("marshal account: %w", err)
	}

	uid := s.NewUIDFunc()
	emailKey := accountEmailKeyPrefix + email
	claimed, err := s.redisClient.SetNX(ctx, emailKey, uid, 0).Result()
	if err != nil {
		return "", fmt.Errorf("claim email: %w", err)
	}
	if !claimed {
		return "", ErrEmailAlreadyInUse
	}

	if err := s.redisClient.Set(ctx, accountKeyPrefix+uid, string(accountJson), 0).Err(); err != nil {
		// release the email so a retry can succeed
		if delErr := s.redisClient.Del(ctx, emailKey).Err(); delErr != nil {
			log.Errorf("identity, release email claim %s: %s", email, delErr)
		}
		return "", fmt.Errorf("store account: %w", err)
	}

	span.SetAttributes(attribute.String("uid", uid))
	log.Debugf("identity, account created: %s", uid)
	return uid, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "identity.sign-in")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	email, err = NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	uid, err := s.redisClient.Get(ctx, accountEmailKeyPrefix+email).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("get account id: %w", err)
	}

	accountJson, err := s.redisClient.Get(ctx, accountKeyPrefix+uid).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	var acc account
	if err := json.Unmarshal([]byte(accountJson), &acc); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}

	if !pkg.CheckPasswordHash(password, acc.PasswordHash) {
		return nil, ErrInvalidCredential
	}

	token, err := s.RandStringFunc(tokenLength)
	if err != nil {
		return nil, err
	}

	session := &Session{
		Token:     token,
		UID:       uid,
		Email:     email,
		CreatedAt: s.Now().UTC(),
	}
	sessionJson, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	if err := s.redisClient.Set(ctx, sessionKeyPrefix+token, string(sessionJson), 0).Err(); err != nil {
		return nil, err
	}

	// add token to list of sessions
	if err := s.redisClient.SAdd(ctx, tokensSetKey, token).Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("uid", uid))
	s.notify(ctx, SessionChange{Token: token, Session: session})
	return session, nil
}

func (s *Service) SignOut(ctx context.Context, token string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "identity.sign-out")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	sessionKey := sessionKeyPrefix + token
	deleted, err := s.redisClient.Del(ctx, sessionKey).Result()
	if err != nil {
		return err
	}

	// remove token from the list of sessions
	if err := s.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
		return err
	}

	if deleted == 0 {
		return ErrSessionNotFound
	}

	s.notify(ctx, SessionChange{Token: token})
	return nil
}

func (s *Service) Lookup(ctx context.Context, token string) (*Session, error) {
	sessionJson, err := s.redisClient.Get(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var session Session
	if err := json.Unmarshal([]byte(sessionJson), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if s.Now().Sub(session.CreatedAt) > s.ttl {
		return nil, ErrSessionNotFound
	}

	session.Token = token
	return &session, nil
}

// ScanAndClean will run through all sessions, check the TTL, and clean them if old
func (s *Service) ScanAndClean(ctx context.Context) {
	sessionTokens, err := s.redisClient.SMembers(ctx, tokensSetKey).Result()
	if err != nil {
		log.Errorf("!!! identity, scan and clean, get sessions: %s", err)
		return
	}

	if len(sessionTokens) == 0 {
		log.Debugln("=> identity, scan and clean abort, no sessions")
		return
	}

	log.Debugf("=> identity, scan and clean [%d sessions] start ...", len(sessionTokens))
	var toRemove []string
	for _, token := range sessionTokens {
		sessionJson, err := s.redisClient.Get(ctx, sessionKeyPrefix+token).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				toRemove = append(toRemove, token)
				continue
			}
			log.Errorf("=> identity, scan and clean token %s: %s", token, err)
			continue
		}

		var session Session
		if err := json.Unmarshal([]byte(sessionJson), &session); err != nil {
			log.Errorf("=> identity, scan and clean token %s: %s", token, err)
			continue
		}

		if s.Now().Sub(session.CreatedAt) > s.ttl {
			log.Debugf("=>\twill clean the session of user: %s", session.UID)
			toRemove = append(toRemove, token)
		}
	}

	for _, token := range toRemove {
		if err := s.redisClient.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
			log.Errorf("=> identity, clean token %s: %s", token, err)
			continue
		}

		// remove token from the list of sessions
		if err := s.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
			log.Errorf("=> identity, clean token %s: %s", token, err)
			continue
		}

		s.notify(ctx, SessionChange{Token: token})
	}
}

// RunCleaner calls ScanAndClean every interval until ctx is done.
func (s *Service) RunCleaner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ScanAndClean(ctx)
		}
	}
}
