package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/fittrack/internal/identity"
	"github.com/2beens/fittrack/internal/middleware"
	"github.com/2beens/fittrack/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuthMiddlewareHandler_AuthCheck(t *testing.T) {
	validSession := &identity.Session{Token: "valid-token", UID: "coach1", Email: "carl@fittrack.test"}
	readySession := &session.Session{Token: "valid-token"}

	testCases := []struct {
		name               string
		path               string
		method             string
		token              string
		lookupSession      *identity.Session
		lookupErr          error
		ensureErr          error
		expectedStatusCode int
		expectSession      bool
	}{
		{
			name:               "AllowedPathWithoutToken",
			path:               "/a/login",
			method:             http.MethodPost,
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "Options",
			path:               "/routines",
			method:             http.MethodOptions,
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "MissingToken",
			path:               "/routines",
			method:             http.MethodGet,
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "UnknownToken",
			path:               "/routines",
			method:             http.MethodGet,
			token:              "invalid-token",
			lookupErr:          identity.ErrSessionNotFound,
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "LookupFails",
			path:               "/routines",
			method:             http.MethodGet,
			token:              "valid-token",
			lookupErr:          errors.New("redis down"),
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "ProfileNotResolved",
			path:               "/routines",
			method:             http.MethodGet,
			token:              "valid-token",
			lookupSession:      validSession,
			ensureErr:          session.ErrNoSession,
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "ValidToken",
			path:               "/routines",
			method:             http.MethodGet,
			token:              "valid-token",
			lookupSession:      validSession,
			expectedStatusCode: http.StatusOK,
			expectSession:      true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockLookup := NewMocksessionLookup(ctrl)
			mockOpener := NewMocksessionOpener(ctrl)
			authMiddleware := middleware.NewAuthMiddlewareHandler(mockLookup, mockOpener)

			req, err := http.NewRequest(tc.method, tc.path, nil)
			require.NoError(t, err)
			if tc.token != "" {
				req.Header.Add(middleware.TokenHeader, tc.token)
				mockLookup.EXPECT().
					Lookup(gomock.Any(), tc.token).
					Return(tc.lookupSession, tc.lookupErr)
			}
			if tc.lookupSession != nil {
				var ensured *session.Session
				if tc.ensureErr == nil {
					ensured = readySession
				}
				mockOpener.EXPECT().
					Ensure(gomock.Any(), *tc.lookupSession).
					Return(ensured, tc.ensureErr)
			}

			var gotSession *session.Session
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotSession, _ = session.FromContext(r.Context())
			})
			rr := httptest.NewRecorder()
			authMiddleware.AuthCheck()(handler).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatusCode, rr.Code)
			if tc.expectSession {
				assert.Same(t, readySession, gotSession)
			} else {
				assert.Nil(t, gotSession)
			}
		})
	}
}
