package api

import (
	"net/http"
	"slices"

	"github.com/2beens/fittrack/internal/datasync"
	"github.com/2beens/fittrack/internal/model"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) handleListCoaches(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !requireRole(w, user, model.RoleSuperCoach) {
		return
	}
	coaches := s.Layer().GetAllCoaches()
	if coaches == nil {
		coaches = []model.User{}
	}
	writeJSON(w, http.StatusOK, coaches)
}

func (h *Handler) handleAddCoach(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !requireRole(w, user, model.RoleSuperCoach) {
		return
	}

	var details datasync.NewAccount
	if err := decodeJSON(r, &details); err != nil {
		log.Debugf("add coach: %s", err)
		http.Error(w, "invalid coach details", http.StatusBadRequest)
		return
	}

	coach, err := s.Layer().AddCoach(r.Context(), details, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, coach)
}

func (h *Handler) handleListClients(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	layer := s.Layer()

	var clients []model.ClientProfile
	switch user.Role {
	case model.RoleSuperCoach:
		if coachID := r.URL.Query().Get("coachId"); coachID != "" {
			clients = layer.GetCoachClients(coachID)
		} else {
			clients = layer.GetAllClients()
		}
	case model.RoleCoach:
		clients = layer.GetCoachClients(user.ID)
	default:
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if clients == nil {
		clients = []model.ClientProfile{}
	}
	writeJSON(w, http.StatusOK, clients)
}

type addClientRequest struct {
	datasync.NewAccount
	CoachID string `json:"coachId"`
}

func (h *Handler) handleAddClient(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !requireRole(w, user, model.RoleCoach, model.RoleSuperCoach) {
		return
	}

	var req addClientRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Debugf("add client: %s", err)
		http.Error(w, "invalid client details", http.StatusBadRequest)
		return
	}

	coachID := user.ID
	if user.Role == model.RoleSuperCoach && req.CoachID != "" && req.CoachID != user.ID {
		if !isCoach(s.Layer().GetAllCoaches(), req.CoachID) {
			http.Error(w, "unknown coach", http.StatusBadRequest)
			return
		}
		coachID = req.CoachID
	}

	client, err := s.Layer().AddClient(r.Context(), req.NewAccount, coachID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (h *Handler) handleGetClient(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	clientID := mux.Vars(r)["id"]
	if !clientAccessible(w, s.Layer(), user, clientID) {
		return
	}
	client, found := s.Layer().GetClientByID(clientID)
	if !found {
		http.Error(w, "client not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (h *Handler) handleClientRoutines(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	clientID := mux.Vars(r)["id"]
	if !clientAccessible(w, s.Layer(), user, clientID) {
		return
	}
	routines := s.Layer().GetClientAssignedRoutines(clientID)
	if routines == nil {
		routines = []model.Routine{}
	}
	writeJSON(w, http.StatusOK, routines)
}

func (h *Handler) handleAssignRoutine(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !requireRole(w, user, model.RoleCoach, model.RoleSuperCoach) {
		return
	}
	vars := mux.Vars(r)
	if !clientAccessible(w, s.Layer(), user, vars["id"]) {
		return
	}
	if _, found := s.Layer().GetRoutineByID(vars["routineId"]); !found {
		http.Error(w, "routine not found", http.StatusNotFound)
		return
	}

	client, err := s.Layer().AssignRoutineToClient(r.Context(), vars["id"], vars["routineId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (h *Handler) handleUnassignRoutine(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !requireRole(w, user, model.RoleCoach, model.RoleSuperCoach) {
		return
	}
	vars := mux.Vars(r)
	if !clientAccessible(w, s.Layer(), user, vars["id"]) {
		return
	}

	client, err := s.Layer().UnassignRoutineFromClient(r.Context(), vars["id"], vars["routineId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func isCoach(coaches []model.User, id string) bool {
	return slices.ContainsFunc(coaches, func(c model.User) bool { return c.ID == id })
}
