package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/2beens/fittrack/internal/datasync"
	"github.com/2beens/fittrack/internal/identity"
	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/profile"
	"github.com/2beens/fittrack/internal/store"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

var ErrNoSession = errors.New("no active session")

type profileResolver interface {
	Resolve(ctx context.Context, session identity.Session) (*model.User, error)
}

// Manager keeps one Session per identity token and drives it through
// Unauthenticated -> Resolving -> Ready -> Unauthenticated as the identity
// provider reports session changes.
type Manager struct {
	mutex    sync.Mutex
	sessions map[string]*Session
	// concurrent Ensure calls for one token share a single open
	opening singleflight.Group

	provider identity.Provider
	resolver profileResolver
	store    store.Store
	metrics  *metrics.Manager
}

type NewManagerParams struct {
	Provider identity.Provider
	Resolver profileResolver
	Store    store.Store
	Metrics  *metrics.Manager
}

// NewManager subscribes the manager to the provider's session changes.
func NewManager(params NewManagerParams) *Manager {
	resolver := params.Resolver
	if resolver == nil {
		resolver = profile.NewResolver(params.Store, params.Provider)
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		provider: params.Provider,
		resolver: resolver,
		store:    params.Store,
		metrics:  params.Metrics,
	}
	params.Provider.OnSessionChange(m.handleChange)
	return m
}

func (m *Manager) handleChange(ctx context.Context, change identity.SessionChange) {
	if change.Session == nil {
		m.end(change.Token)
		return
	}
	if _, err := m.open(ctx, *change.Session); err != nil {
		log.Debugf("session manager, open session for %s: %s", change.Session.UID, err)
	}
}

// Get returns the session of token if it is Ready.
func (m *Manager) Get(token string) (*Session, error) {
	m.mutex.Lock()
	s, ok := m.sessions[token]
	m.mutex.Unlock()
	if !ok || s.State() != Ready {
		return nil, ErrNoSession
	}
	return s, nil
}

// Ensure returns the session of an identity session that is still valid
// with the provider, opening it when this process has not seen it yet
// (e.g. after a restart).
func (m *Manager) Ensure(ctx context.Context, idSession identity.Session) (*Session, error) {
	if s, err := m.Get(idSession.Token); err == nil {
		return s, nil
	}

	// the first caller's cancellation must not fail the requests sharing its open
	openCtx := context.WithoutCancel(ctx)
	v, err, _ := m.opening.Do(idSession.Token, func() (any, error) {
		if s, err := m.Get(idSession.Token); err == nil {
			return s, nil
		}
		return m.open(openCtx, idSession)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) open(ctx context.Context, idSession identity.Session) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "session.open")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("uid", idSession.UID))

	s := &Session{
		Token: idSession.Token,
		state: Resolving,
		layer: datasync.NewLayer(datasync.NewLayerParams{
			Store:    m.store,
			Accounts: m.provider,
			Metrics:  m.metrics,
		}),
	}

	m.mutex.Lock()
	previous := m.sessions[idSession.Token]
	m.sessions[idSession.Token] = s
	m.updateGaugeLocked()
	m.mutex.Unlock()
	if previous != nil {
		previous.end()
	}

	user, err := m.resolver.Resolve(ctx, idSession)
	if err != nil {
		// the resolver already signed the session out
		if errors.Is(err, profile.ErrProfileMissingOrInvalid) && m.metrics != nil {
			m.metrics.CounterForcedSignOuts.Inc()
		}
		m.remove(idSession.Token, s)
		return nil, fmt.Errorf("resolve profile: %w", err)
	}

	loadErr := s.layer.Load(ctx, *user)
	if !m.isCurrent(idSession.Token, s) {
		s.end()
		return nil, ErrNoSession
	}
	if loadErr != nil {
		log.Errorf("session manager, initial load for %s: %s", user.ID, loadErr)
	}
	s.setReady(*user, loadErr)
	log.Debugf("session manager, session of %s [%s] ready", user.ID, user.Role)
	return s, nil
}

func (m *Manager) isCurrent(token string, s *Session) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.sessions[token] == s
}

// remove drops s if it is still the session registered for token.
func (m *Manager) remove(token string, s *Session) {
	m.mutex.Lock()
	current, ok := m.sessions[token]
	if ok && current == s {
		delete(m.sessions, token)
		m.updateGaugeLocked()
	}
	m.mutex.Unlock()
	s.end()
}

func (m *Manager) end(token string) {
	m.mutex.Lock()
	s, ok := m.sessions[token]
	if ok {
		delete(m.sessions, token)
		m.updateGaugeLocked()
	}
	m.mutex.Unlock()
	if ok {
		s.end()
		log.Debugf("session manager, session ended")
	}
}

// SignOut ends the session with the identity provider; the session change
// notification tears the local state down.
func (m *Manager) SignOut(ctx context.Context, token string) error {
	err := m.provider.SignOut(ctx, token)
	// also covers sessions the provider already forgot
	m.end(token)
	return err
}

func (m *Manager) ActiveSessions() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.sessions)
}

// Close ends every session locally, for server shutdown.
func (m *Manager) Close() {
	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.updateGaugeLocked()
	m.mutex.Unlock()

	for _, s := range sessions {
		s.end()
	}
}

func (m *Manager) updateGaugeLocked() {
	if m.metrics == nil {
		return
	}
	m.metrics.GaugeActiveSessions.Set(float64(len(m.sessions)))
}
