package api

import (
	"net/http"

	"github.com/2beens/fittrack/internal/datasync"
	"github.com/2beens/fittrack/internal/model"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	layer := s.Layer()

	var routines []model.Routine
	switch user.Role {
	case model.RoleSuperCoach:
		if coachID := r.URL.Query().Get("createdBy"); coachID != "" {
			routines = layer.GetCoachRoutines(coachID)
		} else {
			routines = layer.GetAllRoutines()
		}
	case model.RoleCoach:
		routines = layer.GetCoachRoutines(user.ID)
	case model.RoleClient:
		routines = layer.GetClientAssignedRoutines(user.ID)
	}
	if routines == nil {
		routines = []model.Routine{}
	}
	writeJSON(w, http.StatusOK, routines)
}

func (h *Handler) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	s, _, ok := requireSession(w, r)
	if !ok {
		return
	}
	routine, found := s.Layer().GetRoutineByID(mux.Vars(r)["id"])
	if !found {
		http.Error(w, "routine not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, routine)
}

func (h *Handler) handleAddRoutine(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !requireRole(w, user, model.RoleCoach, model.RoleSuperCoach) {
		return
	}

	var input datasync.NewRoutine
	if err := decodeJSON(r, &input); err != nil {
		log.Debugf("add routine: %s", err)
		http.Error(w, "invalid routine", http.StatusBadRequest)
		return
	}

	routine, err := s.Layer().AddRoutine(r.Context(), input, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, routine)
}

// ownedRoutine returns the routine when the user may change it: super coaches
// may change any routine, coaches only the ones they created.
func ownedRoutine(w http.ResponseWriter, r *http.Request, layer *datasync.Layer, user model.User) (model.Routine, bool) {
	if !requireRole(w, user, model.RoleCoach, model.RoleSuperCoach) {
		return model.Routine{}, false
	}
	routine, found := layer.GetRoutineByID(mux.Vars(r)["id"])
	if !found {
		http.Error(w, "routine not found", http.StatusNotFound)
		return model.Routine{}, false
	}
	if user.Role != model.RoleSuperCoach && routine.CreatedBy != user.ID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return model.Routine{}, false
	}
	return routine, true
}

func (h *Handler) handleUpdateRoutine(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	routine, ok := ownedRoutine(w, r, s.Layer(), user)
	if !ok {
		return
	}

	var patch datasync.RoutinePatch
	if err := decodeJSON(r, &patch); err != nil {
		log.Debugf("update routine: %s", err)
		http.Error(w, "invalid routine patch", http.StatusBadRequest)
		return
	}

	updated, err := s.Layer().UpdateRoutine(r.Context(), routine.ID, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	s, user, ok := requireSession(w, r)
	if !ok {
		return
	}
	routine, ok := ownedRoutine(w, r, s.Layer(), user)
	if !ok {
		return
	}

	if err := s.Layer().DeleteRoutine(r.Context(), routine.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
