package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/2beens/fittrack/internal/identity"
	"github.com/2beens/fittrack/internal/middleware"
	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/session"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type signInProvider interface {
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
}

type sessionRegistry interface {
	Get(token string) (*session.Session, error)
	SignOut(ctx context.Context, token string) error
}

type AuthHandler struct {
	identity    signInProvider
	sessions    sessionRegistry
	versionInfo string
}

func NewAuthHandler(identity signInProvider, sessions sessionRegistry, versionInfo string) *AuthHandler {
	return &AuthHandler{
		identity:    identity,
		sessions:    sessions,
		versionInfo: versionInfo,
	}
}

func (h *AuthHandler) SetupRoutes(
	mainRouter *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	metricsManager *metrics.Manager,
	loginAllowedPerMin int,
) {
	mainRouter.HandleFunc("/", h.handleRoot).Methods("GET", "OPTIONS").Name("root")
	mainRouter.HandleFunc("/version", h.handleGetVersionInfo).Methods("GET").Name("version")
	mainRouter.HandleFunc("/me", h.handleMe).Methods("GET", "OPTIONS").Name("me")

	loginSubrouter := mainRouter.PathPrefix("/a").Subrouter()
	loginSubrouter.
		HandleFunc("/login", h.handleLogin).
		Methods("POST", "OPTIONS").Name("login")
	loginSubrouter.
		HandleFunc("/logout", h.handleLogout).
		Methods("POST", "OPTIONS").Name("logout")

	loginSubrouter.Use(middleware.RateLimit(rateLimiter, metricsManager, "login", loginAllowedPerMin))
}

func (h *AuthHandler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
}

func (h *AuthHandler) handleGetVersionInfo(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, h.versionInfo)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	User      model.User `json:"user"`
	LoadError string     `json:"loadError,omitempty"`
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.login")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	var loginReq loginRequest
	if r.Header.Get("Content-Type") == pkg.ContentType.JSON {
		if err := decodeJSON(r, &loginReq); err != nil {
			log.Errorf("login, unmarshal json params: %s", err)
			http.Error(w, "login failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("login failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusBadRequest)
			return
		}
		loginReq = loginRequest{
			Email:    r.Form.Get("email"),
			Password: r.Form.Get("password"),
		}
	}

	if loginReq.Email == "" {
		http.Error(w, "error, email empty", http.StatusBadRequest)
		return
	}
	if loginReq.Password == "" {
		http.Error(w, "error, password empty", http.StatusBadRequest)
		return
	}

	idSession, err := h.identity.SignIn(ctx, loginReq.Email, loginReq.Password)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, identity.ErrInvalidCredential) && !errors.Is(err, identity.ErrInvalidEmail) {
			log.Errorf("login failed: %s", err)
			status = http.StatusInternalServerError
		}
		span.SetStatus(codes.Error, "sign-in")
		http.Error(w, identity.FriendlyMessage(err), status)
		return
	}
	span.SetAttributes(attribute.String("uid", idSession.UID))

	// the session manager resolved the profile while handling the sign in
	s, err := h.sessions.Get(idSession.Token)
	if err != nil {
		log.Debugf("login for %s rejected, no usable profile", idSession.UID)
		span.SetStatus(codes.Error, "no-profile")
		http.Error(w, "This account cannot use the app.", http.StatusUnauthorized)
		return
	}
	user, _ := s.User()

	resp := loginResponse{
		Token: idSession.Token,
		User:  user,
	}
	if loadErr := s.LoadErr(); loadErr != nil {
		resp.LoadError = errorMessage(loadErr)
	}

	log.Tracef("new login success: %s [%s]", user.ID, user.Role)
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.logout")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	authToken := r.Header.Get(middleware.TokenHeader)
	if authToken == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	if err := h.sessions.SignOut(ctx, authToken); err != nil {
		if errors.Is(err, identity.ErrSessionNotFound) {
			http.Error(w, "no can do", http.StatusUnauthorized)
			return
		}
		log.Errorf("logout failed: %s", err)
		http.Error(w, "logout failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "logged-out")
}

type meResponse struct {
	User      model.User    `json:"user"`
	State     session.State `json:"state"`
	Loading   bool          `json:"loading"`
	LoadError string        `json:"loadError,omitempty"`
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}

	resp := meResponse{
		User:    user,
		State:   s.State(),
		Loading: s.Layer().Loading(),
	}
	if loadErr := s.LoadErr(); loadErr != nil {
		resp.LoadError = errorMessage(loadErr)
	}
	writeJSON(w, http.StatusOK, resp)
}
