//go:build integration_test || all_tests

package test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/2beens/fittrack/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestLogin() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.redisRateLimitCleanup(ctx))

	t.Run("good creds, then logout", func(t *testing.T) {
		loginResp := s.doLogin(ctx, t, testSuperCoachEmail, testPassword)
		assert.Equal(t, model.RoleSuperCoach, loginResp.User.Role)

		status, _ := s.do(ctx, t, http.MethodGet, "/me", loginResp.Token, nil)
		assert.Equal(t, http.StatusOK, status)

		status, body := s.do(ctx, t, http.MethodPost, "/a/logout", loginResp.Token, nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "logged-out", string(body))

		status, _ = s.do(ctx, t, http.MethodGet, "/me", loginResp.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("email is case insensitive", func(t *testing.T) {
		loginResp := s.doLogin(ctx, t, strings.ToUpper(testSuperCoachEmail), testPassword)
		assert.Equal(t, testSuperCoachEmail, loginResp.User.Email)
	})

	cases := map[string]struct {
		email           string
		password        string
		expectedStatus  int
		expectedMessage string
	}{
		"bad password": {
			email:           testSuperCoachEmail,
			password:        "bad-password",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "Invalid email or password.",
		},
		"unknown email": {
			email:           "nobody@fittrack.test",
			password:        testPassword,
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "Invalid email or password.",
		},
		"malformed email": {
			email:           "not-an-email",
			password:        testPassword,
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "The email address is not valid.",
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			status, body := s.do(ctx, t, http.MethodPost, "/a/login", "", map[string]string{
				"email":    tc.email,
				"password": tc.password,
			})
			require.Equal(t, tc.expectedStatus, status)
			assert.Equal(t, tc.expectedMessage, strings.TrimSpace(string(body)))
		})
	}

	t.Run("rate limiting", func(t *testing.T) {
		// simulate login requests brute force attack
		require.NoError(t, s.redisRateLimitCleanup(ctx))

		for i := 1; i <= loginPerMin+5; i++ {
			status, _ := s.do(ctx, t, http.MethodPost, "/a/login", "", map[string]string{
				"email":    testSuperCoachEmail,
				"password": "bad-password",
			})
			if i <= loginPerMin {
				require.Equal(t, http.StatusUnauthorized, status, "iteration: %d", i)
			} else {
				require.Equal(t, http.StatusTooManyRequests, status, "iteration: %d", i)
			}
		}

		require.NoError(t, s.redisRateLimitCleanup(ctx))
	})
}
