package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/2beens/fittrack/internal/identity"
	"github.com/2beens/fittrack/internal/session"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=middleware_test

// TokenHeader carries the identity session token.
const TokenHeader = "X-FITTRACK-TOKEN"

type sessionLookup interface {
	Lookup(ctx context.Context, token string) (*identity.Session, error)
}

type sessionOpener interface {
	Ensure(ctx context.Context, idSession identity.Session) (*session.Session, error)
}

type AuthMiddlewareHandler struct {
	identity     sessionLookup
	sessions     sessionOpener
	allowedPaths map[string]bool
}

func NewAuthMiddlewareHandler(identity sessionLookup, sessions sessionOpener) *AuthMiddlewareHandler {
	return &AuthMiddlewareHandler{
		identity: identity,
		sessions: sessions,
		allowedPaths: map[string]bool{
			"/":         true,
			"/version":  true,
			"/a/login":  true,
			"/a/logout": true,
		},
	}
}

// AuthCheck resolves the request token to a ready session and attaches it
// to the request context.
func (h *AuthMiddlewareHandler) AuthCheck() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.GlobalTracer.Start(r.Context(), "middleware.auth")
			defer span.End()

			if r.Method == http.MethodOptions {
				w.Header().Add("Allow", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.WriteHeader(http.StatusOK)
				span.SetStatus(codes.Ok, "options-ok")
				return
			}

			if h.allowedPaths[r.URL.Path] {
				span.SetStatus(codes.Ok, "ok")
				next.ServeHTTP(w, r)
				return
			}

			authToken := r.Header.Get(TokenHeader)
			if authToken == "" {
				log.Tracef("[missing token] [auth middleware] unauthorized => %s", r.URL.Path)
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "missing-auth-token")
				return
			}

			idSession, err := h.identity.Lookup(ctx, authToken)
			if err != nil {
				if !errors.Is(err, identity.ErrSessionNotFound) {
					log.Errorf("[failed session lookup] => %s: %s", r.URL.Path, err)
					span.RecordError(err)
				}
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "session-lookup")
				return
			}

			s, err := h.sessions.Ensure(ctx, *idSession)
			if err != nil {
				log.Debugf("[no ready session] [auth middleware] %s => %s: %s", idSession.UID, r.URL.Path, err)
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "session-not-ready")
				return
			}

			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), s)))
		})
	}
}
