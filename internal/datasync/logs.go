package datasync

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/store"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type NewBodyWeightLog struct {
	Date     string  `json:"date"`
	WeightKg float64 `json:"weightKg"`
}

type NewBodyMeasurementsLog struct {
	Date         string                  `json:"date"`
	Measurements []model.BodyMeasurement `json:"measurements"`
}

type NewExerciseProgressLog struct {
	Date         string   `json:"date"`
	RoutineID    string   `json:"routineId"`
	ExerciseID   string   `json:"exerciseId"`
	WeightLbs    *float64 `json:"weightLbs,omitempty"`
	RepsAchieved string   `json:"repsAchieved,omitempty"`
	Duration     string   `json:"duration,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// logQueriesLocked returns the three queries of a client, creating them as
// NotRequested when missing.
func (l *Layer) logQueriesLocked(clientID string) []*LogQuery {
	queries := make([]*LogQuery, 0, len(model.LogTypes))
	for _, lt := range model.LogTypes {
		key := logKey{clientID: clientID, logType: lt}
		q, ok := l.logQueries[key]
		if !ok {
			q = newLogQuery(clientID, lt)
			l.logQueries[key] = q
		}
		queries = append(queries, q)
	}
	return queries
}

// ClientLogQuery returns the query tracking one log type of a client.
// It does not start a fetch.
func (l *Layer) ClientLogQuery(clientID string, logType model.LogType) (*LogQuery, bool) {
	if clientID == "" || !logType.IsValid() {
		return nil, false
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.user == nil {
		return nil, false
	}
	l.logQueriesLocked(clientID)
	return l.logQueries[logKey{clientID: clientID, logType: logType}], true
}

// RequestClientLogs starts fetching the three log collections of a client
// unless they were already requested. It returns without waiting.
func (l *Layer) RequestClientLogs(clientID string) {
	l.requestLogs(clientID, false)
}

// Refresh fetches the client's logs again, also after a failed fetch.
// A refresh issued while a fetch is in flight joins that fetch.
func (l *Layer) Refresh(clientID string) {
	l.requestLogs(clientID, true)
}

// FetchClientLogs requests the client's logs and waits for the result.
func (l *Layer) FetchClientLogs(ctx context.Context, clientID string) error {
	q, ok := l.ClientLogQuery(clientID, model.LogTypeBodyWeight)
	if !ok {
		return staleSession("fetch_logs")
	}
	l.RequestClientLogs(clientID)
	if err := q.Wait(ctx); err != nil {
		return newError(KindRemoteReadFailure, "fetch_logs", msgRemoteReadFailure, err)
	}
	return nil
}

func (l *Layer) requestLogs(clientID string, force bool) {
	if clientID == "" {
		return
	}

	l.mutex.Lock()
	if l.user == nil {
		l.mutex.Unlock()
		return
	}
	queries := l.logQueriesLocked(clientID)
	// the three queries of a client always move together
	if !force {
		switch queries[0].State() {
		case Pending:
			if l.metrics != nil {
				l.metrics.CounterDedupedLogFetches.Inc()
			}
			l.mutex.Unlock()
			return
		case Ready, Failed:
			l.mutex.Unlock()
			return
		}
	}
	for _, q := range queries {
		q.setPending()
	}
	gen := l.generation
	sessionCtx := l.sessionCtx
	l.fetchingLogs++
	l.logFetchers.Add(1)
	l.mutex.Unlock()

	go func() {
		defer l.logFetchers.Done()

		_, _, shared := l.logFetches.Do(logFetchKey(gen, clientID), func() (any, error) {
			return nil, l.fetchLogs(sessionCtx, gen, clientID)
		})
		if shared && l.metrics != nil {
			l.metrics.CounterDedupedLogFetches.Inc()
		}

		l.apply(gen, func() {
			l.fetchingLogs--
		})
	}()
}

func logFetchKey(gen uint64, clientID string) string {
	return fmt.Sprintf("%d/%s", gen, clientID)
}

// fetchLogs reads the three log collections of a client in parallel and
// replaces its log mirrors, keeping entries added locally meanwhile.
func (l *Layer) fetchLogs(ctx context.Context, gen uint64, clientID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "datasync.fetch-logs")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("client.id", clientID))

	var (
		weights      []model.BodyWeightLog
		measurements []model.BodyMeasurementsLog
		exercises    []model.ExerciseProgressLog
	)
	byDateDesc := store.OrderedBy("date", true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := l.store.Query(gctx, store.BodyWeightLogs(clientID), byDateDesc)
		if err != nil {
			return err
		}
		weights, err = decodeDocs(docs, func(lg *model.BodyWeightLog, id string) {
			lg.ID, lg.ClientID = id, clientID
		})
		return err
	})
	g.Go(func() error {
		docs, err := l.store.Query(gctx, store.BodyMeasurementLogs(clientID), byDateDesc)
		if err != nil {
			return err
		}
		measurements, err = decodeDocs(docs, func(lg *model.BodyMeasurementsLog, id string) {
			lg.ID, lg.ClientID = id, clientID
		})
		return err
	})
	g.Go(func() error {
		docs, err := l.store.Query(gctx, store.ExerciseProgressLogs(clientID), byDateDesc)
		if err != nil {
			return err
		}
		exercises, err = decodeDocs(docs, func(lg *model.ExerciseProgressLog, id string) {
			lg.ID, lg.ClientID = id, clientID
		})
		return err
	})
	err = g.Wait()
	l.metrics.ObserveFetch("client_logs", err)

	l.mutex.Lock()
	defer l.mutex.Unlock()
	// a refresh issued once the queries are settled must start a new fetch
	l.logFetches.Forget(logFetchKey(gen, clientID))
	if gen != l.generation || l.user == nil {
		return ErrSessionClosed
	}

	queries := l.logQueriesLocked(clientID)
	if err != nil {
		log.Errorf("datasync, fetch logs of client %s: %s", clientID, err)
		failure := newError(KindRemoteReadFailure, "fetch_logs", msgRemoteReadFailure, err)
		for _, q := range queries {
			q.fail(failure)
		}
		return err
	}

	l.bodyWeightLogs[clientID] = mergeLogs(weights, l.bodyWeightLogs[clientID], func(lg model.BodyWeightLog) string { return lg.ID })
	l.bodyMeasurementLogs[clientID] = mergeLogs(measurements, l.bodyMeasurementLogs[clientID], func(lg model.BodyMeasurementsLog) string { return lg.ID })
	l.exerciseLogs[clientID] = mergeLogs(exercises, l.exerciseLogs[clientID], func(lg model.ExerciseProgressLog) string { return lg.ID })
	for _, q := range queries {
		q.succeed()
	}
	return nil
}

// mergeLogs adds to fetched the local entries it lacks. Logs are append
// only, so a local entry missing remotely was written after the read.
func mergeLogs[T model.Dated](fetched, local []T, id func(T) string) []T {
	seen := make(map[string]struct{}, len(fetched))
	for _, lg := range fetched {
		seen[id(lg)] = struct{}{}
	}
	merged := slices.Clone(fetched)
	if merged == nil {
		merged = []T{}
	}
	for _, lg := range local {
		if _, ok := seen[id(lg)]; !ok {
			merged = append(merged, lg)
		}
	}
	model.SortByDateDesc(merged)
	return merged
}

// loadOwnLogs eagerly loads a client's own logs as part of Load.
func (l *Layer) loadOwnLogs(ctx context.Context, gen uint64, clientID string) error {
	if !l.apply(gen, func() {
		for _, q := range l.logQueriesLocked(clientID) {
			q.setPending()
		}
		l.fetchingLogs++
	}) {
		return staleSession("load_logs")
	}

	err := l.fetchLogs(ctx, gen, clientID)
	l.apply(gen, func() {
		l.fetchingLogs--
	})
	if err == ErrSessionClosed {
		return staleSession("load_logs")
	}
	if err != nil {
		return newError(KindRemoteReadFailure, "load_logs", msgRemoteReadFailure, err)
	}
	return nil
}

func logState(queries map[logKey]*LogQuery, clientID string, logType model.LogType) QueryState {
	q, ok := queries[logKey{clientID: clientID, logType: logType}]
	if !ok {
		return NotRequested
	}
	return q.State()
}

// GetClientBodyWeightLogs returns the mirrored logs, newest first, with the
// state of their fetch. The first call for a client starts the fetch, so the
// result may be empty and Pending; Subscribe or Wait on ClientLogQuery for
// the final content.
func (l *Layer) GetClientBodyWeightLogs(clientID string) ([]model.BodyWeightLog, QueryState) {
	l.RequestClientLogs(clientID)
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	logs := slices.Clone(l.bodyWeightLogs[clientID])
	if logs == nil {
		logs = []model.BodyWeightLog{}
	}
	return logs, logState(l.logQueries, clientID, model.LogTypeBodyWeight)
}

func (l *Layer) GetClientBodyMeasurementsLogs(clientID string) ([]model.BodyMeasurementsLog, QueryState) {
	l.RequestClientLogs(clientID)
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	logs := make([]model.BodyMeasurementsLog, 0, len(l.bodyMeasurementLogs[clientID]))
	for _, lg := range l.bodyMeasurementLogs[clientID] {
		logs = append(logs, lg.Clone())
	}
	return logs, logState(l.logQueries, clientID, model.LogTypeBodyMeasurements)
}

// GetClientExerciseProgressLogs optionally keeps only the logs of one routine.
func (l *Layer) GetClientExerciseProgressLogs(clientID, routineID string) ([]model.ExerciseProgressLog, QueryState) {
	l.RequestClientLogs(clientID)
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	logs := []model.ExerciseProgressLog{}
	for _, lg := range l.exerciseLogs[clientID] {
		if routineID == "" || lg.RoutineID == routineID {
			logs = append(logs, lg)
		}
	}
	return logs, logState(l.logQueries, clientID, model.LogTypeExerciseProgress)
}

func (l *Layer) AddBodyWeightLog(ctx context.Context, clientID string, input NewBodyWeightLog) (_ *model.BodyWeightLog, err error) {
	const op = "add_body_weight_log"
	ctx, span := tracing.GlobalTracer.Start(ctx, "datasync.add-body-weight-log")
	defer func() {
		l.metrics.ObserveMutation(op, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("client.id", clientID))

	_, gen, err := l.session(op)
	if err != nil {
		return nil, err
	}
	if clientID == "" {
		return nil, invalidInput(op, "The client is required.")
	}
	date, err := model.ParseDate(input.Date)
	if err != nil {
		return nil, newError(KindInvalidInput, op, "The date must have the YYYY-MM-DD format.", err)
	}
	if err := model.ValidateBodyWeight(input.WeightKg); err != nil {
		return nil, newError(KindInvalidInput, op, "The weight must be a positive number.", err)
	}

	id, err := l.store.Create(ctx, store.BodyWeightLogs(clientID), map[string]any{
		"date":      date,
		"weightKg":  input.WeightKg,
		"clientId":  clientID,
		"createdAt": store.ServerTimestamp,
	})
	if err != nil {
		return nil, l.writeFailure(op, err)
	}

	entry := model.BodyWeightLog{
		ID:        id,
		ClientID:  clientID,
		Date:      date,
		WeightKg:  input.WeightKg,
		CreatedAt: l.now().UTC(),
	}
	l.apply(gen, func() {
		logs := append(slices.Clone(l.bodyWeightLogs[clientID]), entry)
		model.SortByDateDesc(logs)
		l.bodyWeightLogs[clientID] = logs
	})
	return &entry, nil
}

func (l *Layer) AddBodyMeasurementsLog(ctx context.Context, clientID string, input NewBodyMeasurementsLog) (_ *model.BodyMeasurementsLog, err error) {
	const op = "add_body_measurements_log"
	ctx, span := tracing.GlobalTracer.Start(ctx, "datasync.add-body-measurements-log")
	defer func() {
		l.metrics.ObserveMutation(op, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("client.id", clientID))

	_, gen, err := l.session(op)
	if err != nil {
		return nil, err
	}
	if clientID == "" {
		return nil, invalidInput(op, "The client is required.")
	}
	date, err := model.ParseDate(input.Date)
	if err != nil {
		return nil, newError(KindInvalidInput, op, "The date must have the YYYY-MM-DD format.", err)
	}
	if err := model.ValidateMeasurements(input.Measurements); err != nil {
		return nil, newError(KindInvalidInput, op, "Measurements need a known type and a positive value.", err)
	}

	measurements := slices.Clone(input.Measurements)
	id, err := l.store.Create(ctx, store.BodyMeasurementLogs(clientID), map[string]any{
		"date":         date,
		"measurements": measurements,
		"clientId":     clientID,
		"createdAt":    store.ServerTimestamp,
	})
	if err != nil {
		return nil, l.writeFailure(op, err)
	}

	entry := model.BodyMeasurementsLog{
		ID:           id,
		ClientID:     clientID,
		Date:         date,
		Measurements: measurements,
		CreatedAt:    l.now().UTC(),
	}
	l.apply(gen, func() {
		logs := append(slices.Clone(l.bodyMeasurementLogs[clientID]), entry.Clone())
		model.SortByDateDesc(logs)
		l.bodyMeasurementLogs[clientID] = logs
	})
	return &entry, nil
}

// AddExerciseProgressLog stores the exercise name as currently mirrored.
// An unknown routine or exercise gets a placeholder name.
func (l *Layer) AddExerciseProgressLog(ctx context.Context, clientID string, input NewExerciseProgressLog) (_ *model.ExerciseProgressLog, err error) {
	const op = "add_exercise_progress_log"
	ctx, span := tracing.GlobalTracer.Start(ctx, "datasync.add-exercise-progress-log")
	defer func() {
		l.metrics.ObserveMutation(op, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("client.id", clientID))

	_, gen, err := l.session(op)
	if err != nil {
		return nil, err
	}
	if clientID == "" {
		return nil, invalidInput(op, "The client is required.")
	}
	date, err := model.ParseDate(input.Date)
	if err != nil {
		return nil, newError(KindInvalidInput, op, "The date must have the YYYY-MM-DD format.", err)
	}
	if strings.TrimSpace(input.RoutineID) == "" || strings.TrimSpace(input.ExerciseID) == "" {
		return nil, invalidInput(op, "The routine and the exercise are required.")
	}
	if input.WeightLbs != nil && *input.WeightLbs < 0 {
		return nil, invalidInput(op, "The weight cannot be negative.")
	}

	exerciseName := msgUnknownExerciseName
	if routine, ok := l.GetRoutineByID(input.RoutineID); ok {
		if ex, ok := routine.ExerciseByID(input.ExerciseID); ok {
			exerciseName = ex.Name
		}
	}

	data := map[string]any{
		"date":         date,
		"routineId":    input.RoutineID,
		"exerciseId":   input.ExerciseID,
		"exerciseName": exerciseName,
		"clientId":     clientID,
		"createdAt":    store.ServerTimestamp,
	}
	if input.WeightLbs != nil {
		data["weightLbs"] = *input.WeightLbs
	}
	if input.RepsAchieved != "" {
		data["repsAchieved"] = input.RepsAchieved
	}
	if input.Duration != "" {
		data["duration"] = input.Duration
	}
	if input.Notes != "" {
		data["notes"] = input.Notes
	}

	id, err := l.store.Create(ctx, store.ExerciseProgressLogs(clientID), data)
	if err != nil {
		return nil, l.writeFailure(op, err)
	}

	entry := model.ExerciseProgressLog{
		ID:           id,
		ClientID:     clientID,
		Date:         date,
		RoutineID:    input.RoutineID,
		ExerciseID:   input.ExerciseID,
		ExerciseName: exerciseName,
		WeightLbs:    input.WeightLbs,
		RepsAchieved: input.RepsAchieved,
		Duration:     input.Duration,
		Notes:        input.Notes,
		CreatedAt:    l.now().UTC(),
	}
	l.apply(gen, func() {
		logs := append(slices.Clone(l.exerciseLogs[clientID]), entry)
		model.SortByDateDesc(logs)
		l.exerciseLogs[clientID] = logs
	})
	return &entry, nil
}
