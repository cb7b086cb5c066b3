//go:build integration_test || all_tests

package test

import (
	"context"
	"net/http"
	"strings"

	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/store"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logsResponse[T any] struct {
	State string `json:"state"`
	Logs  []T    `json:"logs"`
}

// TestCoachingFlow walks a fresh install from the super coach down to a
// client logging progress, over HTTP and against postgres and redis.
func (s *IntegrationTestSuite) TestCoachingFlow() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.redisRateLimitCleanup(ctx))

	superCoach := s.doLogin(ctx, t, testSuperCoachEmail, testPassword)
	usersBefore := s.countDocuments(ctx, store.Users)

	coachEmail := strings.ToLower(gofakeit.Username()) + "@coach.fittrack.test"
	status, body := s.do(ctx, t, http.MethodPost, "/coaches", superCoach.Token, map[string]string{
		"name":     gofakeit.Name(),
		"email":    coachEmail,
		"password": "coach-pass",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	coach := decodeBody[model.User](t, body)
	assert.Equal(t, model.RoleCoach, coach.Role)

	status, body = s.do(ctx, t, http.MethodPost, "/coaches", superCoach.Token, map[string]string{
		"name":     gofakeit.Name(),
		"email":    coachEmail,
		"password": "coach-pass",
	})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "This email address is already registered.", strings.TrimSpace(string(body)))

	coachLogin := s.doLogin(ctx, t, coachEmail, "coach-pass")
	require.Equal(t, coach.ID, coachLogin.User.ID)

	status, body = s.do(ctx, t, http.MethodPost, "/routines", coachLogin.Token, map[string]any{
		"name": "Full body",
		"type": model.RoutineTypeTraditionalWeightlifting,
		"exercises": []map[string]string{
			{"name": "Deadlift", "sets": "3", "reps": "5"},
		},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	routine := decodeBody[model.Routine](t, body)
	require.Len(t, routine.Exercises, 1)

	clientEmail := strings.ToLower(gofakeit.Username()) + "@client.fittrack.test"
	status, body = s.do(ctx, t, http.MethodPost, "/clients", coachLogin.Token, map[string]string{
		"name":     gofakeit.Name(),
		"email":    clientEmail,
		"password": "client-pass",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	client := decodeBody[model.ClientProfile](t, body)
	assert.Equal(t, coach.ID, client.CoachID)
	assert.Equal(t, usersBefore+2, s.countDocuments(ctx, store.Users))

	status, body = s.do(ctx, t, http.MethodPost, "/clients/"+client.ID+"/routines/"+routine.ID, coachLogin.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, []string{routine.ID}, decodeBody[model.ClientProfile](t, body).AssignedRoutineIDs)

	clientLogin := s.doLogin(ctx, t, clientEmail, "client-pass")
	status, body = s.do(ctx, t, http.MethodGet, "/routines", clientLogin.Token, nil)
	require.Equal(t, http.StatusOK, status)
	clientRoutines := decodeBody[[]model.Routine](t, body)
	require.Len(t, clientRoutines, 1)
	assert.Equal(t, "Deadlift", clientRoutines[0].Exercises[0].Name)

	status, body = s.do(ctx, t, http.MethodPost, "/clients/"+client.ID+"/logs/exerciseProgress", clientLogin.Token, map[string]any{
		"date":         "2024-05-01",
		"routineId":    routine.ID,
		"exerciseId":   routine.Exercises[0].ID,
		"weightLbs":    225,
		"repsAchieved": "5,5,4",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = s.do(ctx, t, http.MethodPost, "/clients/"+client.ID+"/logs/bodyWeight", clientLogin.Token, map[string]any{
		"date":     "2024-05-01",
		"weightKg": 82.4,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	// the coach session never saw these writes, so they come from postgres
	status, body = s.do(ctx, t, http.MethodGet, "/clients/"+client.ID+"/logs/exerciseProgress?wait=true", coachLogin.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	progress := decodeBody[logsResponse[model.ExerciseProgressLog]](t, body)
	assert.Equal(t, "ready", progress.State)
	require.Len(t, progress.Logs, 1)
	assert.Equal(t, "Deadlift", progress.Logs[0].ExerciseName)
	require.NotNil(t, progress.Logs[0].WeightLbs)
	assert.Equal(t, 225.0, *progress.Logs[0].WeightLbs)

	status, body = s.do(ctx, t, http.MethodGet, "/clients/"+client.ID+"/logs/bodyWeight", coachLogin.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	weights := decodeBody[logsResponse[model.BodyWeightLog]](t, body)
	assert.Equal(t, "ready", weights.State)
	require.Len(t, weights.Logs, 1)
	assert.Equal(t, 82.4, weights.Logs[0].WeightKg)

	// clients stay inside their own data
	status, _ = s.do(ctx, t, http.MethodGet, "/clients", clientLogin.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(ctx, t, http.MethodPost, "/routines", clientLogin.Token, map[string]any{"name": "mine"})
	assert.Equal(t, http.StatusForbidden, status)
}
