package identity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/2beens/fittrack/pkg"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() {
		_ = db.Close()
	})

	s := NewService(time.Hour, db)
	s.RandStringFunc = func(int) (string, error) { return "test-token", nil }
	s.NewUIDFunc = func() string { return "uid-1" }
	s.HashPasswordFunc = func(password string) (string, error) { return "hash-of-" + password, nil }
	s.Now = func() time.Time { return testNow }
	return s, mock
}

func sessionJson(t *testing.T, uid, email string, createdAt time.Time) string {
	t.Helper()
	raw, err := json.Marshal(Session{UID: uid, Email: email, CreatedAt: createdAt})
	require.NoError(t, err)
	return string(raw)
}

func TestService_CreateAccount(t *testing.T) {
	s, mock := newTestService(t)
	ctx := context.Background()

	mock.ExpectSetNX(accountEmailKeyPrefix+"coach@example.com", "uid-1", 0).SetVal(true)
	mock.ExpectSet(
		accountKeyPrefix+"uid-1",
		`{"email":"coach@example.com","passwordHash":"hash-of-secret1"}`,
		0,
	).SetVal("OK")

	uid, err := s.CreateAccount(ctx, "Coach@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_CreateAccount_EmailInUse(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectSetNX(accountEmailKeyPrefix+"coach@example.com", "uid-1", 0).SetVal(false)

	uid, err := s.CreateAccount(context.Background(), "coach@example.com", "secret1")
	require.ErrorIs(t, err, ErrEmailAlreadyInUse)
	assert.Empty(t, uid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_CreateAccount_ReleasesEmailOnFailure(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectSetNX(accountEmailKeyPrefix+"coach@example.com", "uid-1", 0).SetVal(true)
	mock.ExpectSet(
		accountKeyPrefix+"uid-1",
		`{"email":"coach@example.com","passwordHash":"hash-of-secret1"}`,
		0,
	).SetErr(errors.New("redis down"))
	mock.ExpectDel(accountEmailKeyPrefix + "coach@example.com").SetVal(1)

	_, err := s.CreateAccount(context.Background(), "coach@example.com", "secret1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_CreateAccount_Validation(t *testing.T) {
	s, mock := newTestService(t)

	_, err := s.CreateAccount(context.Background(), "not-an-email", "secret1")
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = s.CreateAccount(context.Background(), "coach@example.com", "123")
	require.ErrorIs(t, err, ErrWeakPassword)

	// no redis calls for rejected input
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_SignIn(t *testing.T) {
	s, mock := newTestService(t)
	ctx := context.Background()

	hash, err := pkg.HashPasswordWithCost("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	accountJson, err := json.Marshal(account{Email: "client@example.com", PasswordHash: hash})
	require.NoError(t, err)

	var changes []SessionChange
	s.OnSessionChange(func(_ context.Context, change SessionChange) {
		changes = append(changes, change)
	})

	mock.ExpectGet(accountEmailKeyPrefix + "client@example.com").SetVal("uid-7")
	mock.ExpectGet(accountKeyPrefix + "uid-7").SetVal(string(accountJson))
	mock.ExpectSet(sessionKeyPrefix+"test-token", sessionJson(t, "uid-7", "client@example.com", testNow), 0).SetVal("OK")
	mock.ExpectSAdd(tokensSetKey, "test-token").SetVal(1)

	session, err := s.SignIn(ctx, "client@example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "test-token", session.Token)
	assert.Equal(t, "uid-7", session.UID)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, changes, 1)
	assert.Equal(t, "test-token", changes[0].Token)
	require.NotNil(t, changes[0].Session)
	assert.Equal(t, "uid-7", changes[0].Session.UID)

	// wrong password
	mock.ExpectGet(accountEmailKeyPrefix + "client@example.com").SetVal("uid-7")
	mock.ExpectGet(accountKeyPrefix + "uid-7").SetVal(string(accountJson))
	_, err = s.SignIn(ctx, "client@example.com", "wrong-pass")
	require.ErrorIs(t, err, ErrInvalidCredential)

	// unknown email
	mock.ExpectGet(accountEmailKeyPrefix + "nobody@example.com").RedisNil()
	_, err = s.SignIn(ctx, "nobody@example.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredential)

	// malformed email
	_, err = s.SignIn(ctx, "nobody", "secret1")
	require.ErrorIs(t, err, ErrInvalidEmail)

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Len(t, changes, 1)
}

func TestService_SignOut(t *testing.T) {
	s, mock := newTestService(t)
	ctx := context.Background()

	var changes []SessionChange
	s.OnSessionChange(func(_ context.Context, change SessionChange) {
		changes = append(changes, change)
	})

	mock.ExpectDel(sessionKeyPrefix + "test-token").SetVal(1)
	mock.ExpectSRem(tokensSetKey, "test-token").SetVal(1)
	require.NoError(t, s.SignOut(ctx, "test-token"))

	mock.ExpectDel(sessionKeyPrefix + "gone").SetVal(0)
	mock.ExpectSRem(tokensSetKey, "gone").SetVal(0)
	require.ErrorIs(t, s.SignOut(ctx, "gone"), ErrSessionNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, changes, 1)
	assert.Equal(t, SessionChange{Token: "test-token"}, changes[0])
}

func TestService_Lookup(t *testing.T) {
	s, mock := newTestService(t)
	ctx := context.Background()

	mock.ExpectGet(sessionKeyPrefix + "invalid token").RedisNil()
	session, err := s.Lookup(ctx, "invalid token")
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Nil(t, session)

	mock.ExpectGet(sessionKeyPrefix + "fresh").SetVal(sessionJson(t, "uid-1", "a@b.com", testNow.Add(-time.Minute)))
	session, err = s.Lookup(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", session.Token)
	assert.Equal(t, "uid-1", session.UID)

	mock.ExpectGet(sessionKeyPrefix + "old").SetVal(sessionJson(t, "uid-1", "a@b.com", testNow.Add(-2*time.Hour)))
	_, err = s.Lookup(ctx, "old")
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ScanAndClean(t *testing.T) {
	s, mock := newTestService(t)
	ctx := context.Background()

	var ended []string
	s.OnSessionChange(func(_ context.Context, change SessionChange) {
		if change.Session == nil {
			ended = append(ended, change.Token)
		}
	})

	t1, t2 := "token1", "token2"
	mock.ExpectSMembers(tokensSetKey).SetVal([]string{t1, t2})
	mock.ExpectGet(sessionKeyPrefix + t1).SetVal(sessionJson(t, "u1", "a@b.com", testNow.Add(-2*time.Hour)))
	mock.ExpectGet(sessionKeyPrefix + t2).SetVal(sessionJson(t, "u2", "c@d.com", testNow))
	// expect deleted only t1, old life
	mock.ExpectDel(sessionKeyPrefix + t1).SetVal(1)
	mock.ExpectSRem(tokensSetKey, t1).SetVal(1)

	s.ScanAndClean(ctx)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{t1}, ended)
}

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Jair@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "jair@example.com", email)

	for _, bad := range []string{"", "jair", "Jair <jair@example.com>", "jair@"} {
		_, err := NormalizeEmail(bad)
		assert.ErrorIs(t, err, ErrInvalidEmail, bad)
	}
}

func TestFriendlyMessage(t *testing.T) {
	assert.Equal(t, "Invalid email or password.", FriendlyMessage(ErrInvalidCredential))
	assert.Equal(t, "The email address is not valid.", FriendlyMessage(ErrInvalidEmail))
	assert.Equal(t, "Sign in failed, please try again later.", FriendlyMessage(errors.New("network")))
}
