package api

import (
	"errors"
	"net/http"

	"github.com/2beens/fittrack/internal/datasync"
	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/session"

	"github.com/gorilla/mux"
)

// Handler exposes the data layer of the caller's session over HTTP.
// Every route runs behind the auth middleware, which puts the session into the request context.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/dashboard", h.handleDashboard).Methods("GET", "OPTIONS").Name("dashboard")

	router.HandleFunc("/routines", h.handleListRoutines).Methods("GET", "OPTIONS").Name("routines")
	router.HandleFunc("/routines", h.handleAddRoutine).Methods("POST").Name("add-routine")
	router.HandleFunc("/routines/{id}", h.handleGetRoutine).Methods("GET").Name("routine")
	router.HandleFunc("/routines/{id}", h.handleUpdateRoutine).Methods("PATCH").Name("update-routine")
	router.HandleFunc("/routines/{id}", h.handleDeleteRoutine).Methods("DELETE").Name("delete-routine")

	router.HandleFunc("/coaches", h.handleListCoaches).Methods("GET", "OPTIONS").Name("coaches")
	router.HandleFunc("/coaches", h.handleAddCoach).Methods("POST").Name("add-coach")

	router.HandleFunc("/clients", h.handleListClients).Methods("GET", "OPTIONS").Name("clients")
	router.HandleFunc("/clients", h.handleAddClient).Methods("POST").Name("add-client")
	router.HandleFunc("/clients/{id}", h.handleGetClient).Methods("GET").Name("client")
	router.HandleFunc("/clients/{id}/routines", h.handleClientRoutines).Methods("GET").Name("client-routines")
	router.HandleFunc("/clients/{id}/routines/{routineId}", h.handleAssignRoutine).Methods("POST").Name("assign-routine")
	router.HandleFunc("/clients/{id}/routines/{routineId}", h.handleUnassignRoutine).Methods("DELETE").Name("unassign-routine")

	router.HandleFunc("/clients/{id}/logs/refresh", h.handleRefreshLogs).Methods("POST").Name("refresh-logs")
	router.HandleFunc("/clients/{id}/logs/{logType}", h.handleGetLogs).Methods("GET").Name("logs")
	router.HandleFunc("/clients/{id}/logs/{logType}", h.handleAddLog).Methods("POST").Name("add-log")
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s, _, ok := requireSession(w, r)
	if !ok {
		return
	}
	snapshot, ok := s.Layer().Snapshot()
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// requireSession writes a 401 and returns false when the request carries no ready session.
func requireSession(w http.ResponseWriter, r *http.Request) (*session.Session, model.User, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return nil, model.User{}, false
	}
	user, ok := s.User()
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return nil, model.User{}, false
	}
	return s, user, true
}

func requireRole(w http.ResponseWriter, user model.User, roles ...model.Role) bool {
	for _, role := range roles {
		if user.Role == role {
			return true
		}
	}
	http.Error(w, "forbidden", http.StatusForbidden)
	return false
}

// clientAccessible checks that the user may see the client with the given id.
// Clients only see themselves; coaches only see what their mirror holds.
func clientAccessible(w http.ResponseWriter, layer *datasync.Layer, user model.User, clientID string) bool {
	if user.Role == model.RoleClient {
		if clientID != user.ID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return false
		}
		return true
	}
	if _, found := layer.GetClientByID(clientID); !found {
		http.Error(w, "client not found", http.StatusNotFound)
		return false
	}
	return true
}

func errorMessage(err error) string {
	var dsErr *datasync.Error
	if errors.As(err, &dsErr) {
		return dsErr.Message
	}
	return err.Error()
}
