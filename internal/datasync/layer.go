package datasync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/store"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=datasync_test

type accountProvisioner interface {
	CreateAccount(ctx context.Context, email, password string) (string, error)
}

type logKey struct {
	clientID string
	logType  model.LogType
}

// Layer holds the role scoped mirrors of one session. It starts empty, is
// filled by Load and emptied by Close. Mirrors only change through Layer
// operations, and every accessor returns copies.
type Layer struct {
	mutex    sync.RWMutex
	store    store.Store
	accounts accountProvisioner
	metrics  *metrics.Manager

	user *model.User
	// generation changes on every Load and Close. Responses started under an
	// older generation are dropped.
	generation    uint64
	sessionCtx    context.Context
	cancelSession context.CancelFunc

	routines            []model.Routine
	clients             []model.ClientProfile
	coaches             []model.User
	bodyWeightLogs      map[string][]model.BodyWeightLog
	bodyMeasurementLogs map[string][]model.BodyMeasurementsLog
	exerciseLogs        map[string][]model.ExerciseProgressLog

	logQueries  map[logKey]*LogQuery
	logFetches  singleflight.Group
	logFetchers sync.WaitGroup

	fetchingRoutines bool
	fetchingClients  bool
	fetchingCoaches  bool
	fetchingLogs     int

	now   func() time.Time
	newID func() string
}

type NewLayerParams struct {
	Store    store.Store
	Accounts accountProvisioner
	Metrics  *metrics.Manager
}

func NewLayer(params NewLayerParams) *Layer {
	l := &Layer{
		store:    params.Store,
		accounts: params.Accounts,
		metrics:  params.Metrics,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	l.resetLocked()
	return l
}

func (l *Layer) resetLocked() {
	l.user = nil
	l.routines = nil
	l.clients = nil
	l.coaches = nil
	l.bodyWeightLogs = make(map[string][]model.BodyWeightLog)
	l.bodyMeasurementLogs = make(map[string][]model.BodyMeasurementsLog)
	l.exerciseLogs = make(map[string][]model.ExerciseProgressLog)
	l.logQueries = make(map[logKey]*LogQuery)
	l.fetchingRoutines = false
	l.fetchingClients = false
	l.fetchingCoaches = false
	l.fetchingLogs = 0
}

// session returns the current user and generation, or an auth failure
// when no session is loaded.
func (l *Layer) session(op string) (model.User, uint64, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.user == nil {
		return model.User{}, 0, newError(KindAuthFailure, op, msgNoSession, ErrSessionClosed)
	}
	return *l.user, l.generation, nil
}

// Load bulk loads the mirrors visible to user. Routines are loaded first,
// then client profiles, coaches and, for clients only, their own logs.
// The first failing fetch aborts the remaining ones.
func (l *Layer) Load(ctx context.Context, user model.User) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "datasync.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("uid", user.ID), attribute.String("role", string(user.Role)))

	if !user.Role.IsValid() || user.ID == "" {
		return newError(KindAuthFailure, "load", "The user profile is incomplete.", nil)
	}

	l.Close()

	l.mutex.Lock()
	l.generation++
	gen := l.generation
	u := user
	l.user = &u
	l.sessionCtx, l.cancelSession = context.WithCancel(context.Background())
	sessionCtx := l.sessionCtx
	l.fetchingRoutines = true
	l.fetchingClients = true
	l.fetchingCoaches = true
	l.mutex.Unlock()

	// a Close during the load cancels the remote calls
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sessionCtx, cancel)
	defer stop()

	if err := l.loadRoutines(ctx, gen, user); err != nil {
		l.abortLoad(gen)
		return err
	}
	if err := l.loadClients(ctx, gen, user); err != nil {
		l.abortLoad(gen)
		return err
	}
	if err := l.loadCoaches(ctx, gen, user); err != nil {
		l.abortLoad(gen)
		return err
	}
	if user.Role == model.RoleClient {
		if err := l.loadOwnLogs(ctx, gen, user.ID); err != nil {
			l.abortLoad(gen)
			return err
		}
	}

	log.Debugf("datasync, loaded session data for %s [%s]", user.ID, user.Role)
	return nil
}

func (l *Layer) abortLoad(gen uint64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if gen != l.generation {
		return
	}
	l.fetchingRoutines = false
	l.fetchingClients = false
	l.fetchingCoaches = false
}

// apply runs fn under the write lock if gen is still the current generation.
func (l *Layer) apply(gen uint64, fn func()) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if gen != l.generation || l.user == nil {
		return false
	}
	fn()
	return true
}

func staleSession(op string) error {
	return newError(KindAuthFailure, op, msgNoSession, ErrSessionClosed)
}

func (l *Layer) readFailure(op string, err error) error {
	log.Errorf("datasync, %s: %s", op, err)
	return newError(KindRemoteReadFailure, op, msgRemoteReadFailure, err)
}

func (l *Layer) loadRoutines(ctx context.Context, gen uint64, user model.User) error {
	var (
		docs []store.Document
		err  error
	)
	switch user.Role {
	case model.RoleSuperCoach:
		docs, err = l.store.Query(ctx, store.Routines, store.OrderedBy("createdAt", true))
	case model.RoleCoach:
		docs, err = l.store.Query(ctx, store.Routines, store.Where("createdBy", user.ID).OrderedBy("createdAt", true))
	case model.RoleClient:
		docs, err = l.fetchAssignedRoutines(ctx, user.ID)
	}
	l.metrics.ObserveFetch("routines", err)
	if err != nil {
		return l.readFailure("load_routines", err)
	}

	routines, err := decodeDocs(docs, func(r *model.Routine, id string) { r.ID = id })
	if err != nil {
		return l.readFailure("load_routines", err)
	}

	if !l.apply(gen, func() {
		l.routines = routines
		l.fetchingRoutines = false
	}) {
		return staleSession("load_routines")
	}
	return nil
}

// fetchAssignedRoutines reads the client's own profile and then the assigned
// routines in one batch. Only the first store.MaxBatchIDs assigned ids are read.
func (l *Layer) fetchAssignedRoutines(ctx context.Context, clientID string) ([]store.Document, error) {
	var profile model.ClientProfile
	if err := l.store.Get(ctx, store.ClientProfiles, clientID, &profile); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get own client profile: %w", err)
	}

	ids := store.DedupIDs(profile.AssignedRoutineIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > store.MaxBatchIDs {
		log.Warnf(
			"datasync, client %s has %d assigned routines, only the first %d are loaded",
			clientID, len(ids), store.MaxBatchIDs,
		)
		ids = ids[:store.MaxBatchIDs]
	}
	return l.store.GetByIDs(ctx, store.Routines, ids)
}

func (l *Layer) loadClients(ctx context.Context, gen uint64, user model.User) error {
	var (
		clients []model.ClientProfile
		err     error
	)
	setID := func(c *model.ClientProfile, id string) { c.ID = id }

	switch user.Role {
	case model.RoleSuperCoach, model.RoleCoach:
		q := store.Query{}
		if user.Role == model.RoleCoach {
			q = store.Where("coachId", user.ID)
		}
		var docs []store.Document
		docs, err = l.store.Query(ctx, store.ClientProfiles, q)
		if err == nil {
			clients, err = decodeDocs(docs, setID)
		}
	case model.RoleClient:
		var profile model.ClientProfile
		err = l.store.Get(ctx, store.ClientProfiles, user.ID, &profile)
		switch {
		case err == nil:
			profile.ID = user.ID
			clients = []model.ClientProfile{profile}
		case isNotFound(err):
			err = nil
		}
	}
	l.metrics.ObserveFetch("clients", err)
	if err != nil {
		return l.readFailure("load_clients", err)
	}

	for i := range clients {
		clients[i] = clients[i].Clone()
	}
	if !l.apply(gen, func() {
		l.clients = clients
		l.fetchingClients = false
	}) {
		return staleSession("load_clients")
	}
	return nil
}

func (l *Layer) loadCoaches(ctx context.Context, gen uint64, user model.User) error {
	var coaches []model.User
	if user.Role == model.RoleSuperCoach {
		docs, err := l.store.Query(ctx, store.Users, store.Where("role", model.RoleCoach))
		if err == nil {
			coaches, err = decodeDocs(docs, func(u *model.User, id string) { u.ID = id })
		}
		l.metrics.ObserveFetch("coaches", err)
		if err != nil {
			return l.readFailure("load_coaches", err)
		}
	}

	if !l.apply(gen, func() {
		l.coaches = coaches
		l.fetchingCoaches = false
	}) {
		return staleSession("load_coaches")
	}
	return nil
}

// Close ends the session: mirrors are cleared, in flight fetches are
// cancelled and their late responses discarded.
func (l *Layer) Close() {
	l.mutex.Lock()
	l.generation++
	cancel := l.cancelSession
	l.cancelSession = nil
	queries := l.logQueries
	l.resetLocked()
	l.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, q := range queries {
		q.fail(ErrSessionClosed)
	}
	l.logFetchers.Wait()
}

// Loading is true while any bulk or log fetch is in flight.
func (l *Layer) Loading() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.fetchingRoutines || l.fetchingClients || l.fetchingCoaches || l.fetchingLogs > 0
}

// User returns the profile the layer was loaded for.
func (l *Layer) User() (model.User, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.user == nil {
		return model.User{}, false
	}
	return *l.user, true
}

type Snapshot struct {
	User     model.User            `json:"user"`
	Loading  bool                  `json:"loading"`
	Routines []model.Routine       `json:"routines"`
	Clients  []model.ClientProfile `json:"clients"`
	Coaches  []model.User          `json:"coaches"`
}

// Snapshot returns the whole role scoped view in one consistent read.
func (l *Layer) Snapshot() (Snapshot, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.user == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		User:     *l.user,
		Loading:  l.fetchingRoutines || l.fetchingClients || l.fetchingCoaches || l.fetchingLogs > 0,
		Routines: cloneRoutines(l.routines),
		Clients:  cloneClients(l.clients),
		Coaches:  cloneUsers(l.coaches),
	}, true
}

func decodeDocs[T any](docs []store.Document, setID func(*T, string)) ([]T, error) {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		if err := doc.DataTo(&item); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", doc.ID, err)
		}
		setID(&item, doc.ID)
		items = append(items, item)
	}
	return items, nil
}
