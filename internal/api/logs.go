package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/fittrack/internal/datasync"
	"github.com/2beens/fittrack/internal/model"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const logsWaitTimeout = 10 * time.Second

type logsResponse struct {
	State datasync.QueryState `json:"state"`
	Logs  any                 `json:"logs"`
	Error string              `json:"error,omitempty"`
}

func logTypeVar(w http.ResponseWriter, r *http.Request) (model.LogType, bool) {
	logType := model.LogType(mux.Vars(r)["logType"])
	if !logType.IsValid() {
		http.Error(w, "unknown log type", http.StatusNotFound)
		return "", false
	}
	return logType, true
}

// handleGetLogs returns what the mirror currently holds together with the
// fetch state. With wait=true it blocks until the first fetch settles.
func (h *Handler) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	clientID := mux.Vars(r)["id"]
	layer := s.Layer()
	if !clientAccessible(w, layer, user, clientID) {
		return
	}
	logType, ok := logTypeVar(w, r)
	if !ok {
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), logsWaitTimeout)
		err := layer.FetchClientLogs(ctx, clientID)
		cancel()
		if err != nil && ctx.Err() == nil {
			writeError(w, err)
			return
		}
	}

	var resp logsResponse
	switch logType {
	case model.LogTypeBodyWeight:
		logs, state := layer.GetClientBodyWeightLogs(clientID)
		resp = logsResponse{State: state, Logs: nonNil(logs)}
	case model.LogTypeBodyMeasurements:
		logs, state := layer.GetClientBodyMeasurementsLogs(clientID)
		resp = logsResponse{State: state, Logs: nonNil(logs)}
	case model.LogTypeExerciseProgress:
		logs, state := layer.GetClientExerciseProgressLogs(clientID, r.URL.Query().Get("routineId"))
		resp = logsResponse{State: state, Logs: nonNil(logs)}
	}

	if resp.State == datasync.Failed {
		if query, found := layer.ClientLogQuery(clientID, logType); found && query.Err() != nil {
			resp.Error = errorMessage(query.Err())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAddLog(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	clientID := mux.Vars(r)["id"]
	layer := s.Layer()
	if !clientAccessible(w, layer, user, clientID) {
		return
	}
	logType, ok := logTypeVar(w, r)
	if !ok {
		return
	}

	var (
		entry any
		err   error
	)
	switch logType {
	case model.LogTypeBodyWeight:
		var input datasync.NewBodyWeightLog
		if err = decodeJSON(r, &input); err == nil {
			entry, err = layer.AddBodyWeightLog(r.Context(), clientID, input)
		}
	case model.LogTypeBodyMeasurements:
		var input datasync.NewBodyMeasurementsLog
		if err = decodeJSON(r, &input); err == nil {
			entry, err = layer.AddBodyMeasurementsLog(r.Context(), clientID, input)
		}
	case model.LogTypeExerciseProgress:
		var input datasync.NewExerciseProgressLog
		if err = decodeJSON(r, &input); err == nil {
			entry, err = layer.AddExerciseProgressLog(r.Context(), clientID, input)
		}
	}
	if err != nil {
		if datasync.KindOf(err) == "" {
			log.Debugf("add %s log: %s", logType, err)
			http.Error(w, "invalid log entry", http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleRefreshLogs(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	clientID := mux.Vars(r)["id"]
	if !clientAccessible(w, s.Layer(), user, clientID) {
		return
	}
	s.Layer().Refresh(clientID)
	w.WriteHeader(http.StatusAccepted)
}

func nonNil[T any](logs []T) []T {
	if logs == nil {
		return []T{}
	}
	return logs
}
