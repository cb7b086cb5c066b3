package session

import (
	"sync"

	"github.com/2beens/fittrack/internal/datasync"
	"github.com/2beens/fittrack/internal/model"
)

type State int

const (
	Unauthenticated State = iota
	Resolving
	Ready
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Resolving:
		return "resolving"
	case Ready:
		return "ready"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is the application state of one signed in identity session.
// Its Layer is only usable while the state is Ready.
type Session struct {
	Token string

	mutex   sync.RWMutex
	state   State
	user    *model.User
	layer   *datasync.Layer
	loadErr error
}

func (s *Session) State() State {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

// User returns the resolved profile, available once Ready.
func (s *Session) User() (model.User, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.user == nil {
		return model.User{}, false
	}
	return *s.user, true
}

func (s *Session) Layer() *datasync.Layer {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.layer
}

// LoadErr is the error of the initial bulk load. The session stays Ready
// with whatever was loaded before the failure.
func (s *Session) LoadErr() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.loadErr
}

func (s *Session) setReady(user model.User, loadErr error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.user = &user
	s.state = Ready
	s.loadErr = loadErr
}

func (s *Session) end() {
	s.mutex.Lock()
	s.state = Unauthenticated
	s.user = nil
	layer := s.layer
	s.mutex.Unlock()

	layer.Close()
}
